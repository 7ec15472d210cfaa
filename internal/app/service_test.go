package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rentmates/tenancy-service/internal/domain"
	"github.com/rentmates/tenancy-service/internal/store"
	"github.com/rentmates/tenancy-service/pkg/directoryclient"
	"github.com/rentmates/tenancy-service/pkg/vaultclient"
)

// memRepo is an in-memory Repository with the same guard semantics as the
// Postgres implementation: conditional transitions report false instead of
// overwriting, and balance mutations always travel with a transaction row.
type memRepo struct {
	mu sync.Mutex

	joinRequests map[uuid.UUID]*domain.JoinRequest
	jrEvents     []domain.JoinRequestEvent
	contracts    map[uuid.UUID]*domain.Contract
	wallets      map[uuid.UUID]*domain.WalletAccount // keyed by user id
	transactions map[uuid.UUID]*domain.Transaction
	rentCycles   map[uuid.UUID]*domain.RentCycle
	holds        map[uuid.UUID]*domain.TerminationHold
	visits       map[uuid.UUID]*domain.VisitRequest
	conflicts    []domain.ReconciliationConflict
}

func newMemRepo() *memRepo {
	return &memRepo{
		joinRequests: make(map[uuid.UUID]*domain.JoinRequest),
		contracts:    make(map[uuid.UUID]*domain.Contract),
		wallets:      make(map[uuid.UUID]*domain.WalletAccount),
		transactions: make(map[uuid.UUID]*domain.Transaction),
		rentCycles:   make(map[uuid.UUID]*domain.RentCycle),
		holds:        make(map[uuid.UUID]*domain.TerminationHold),
		visits:       make(map[uuid.UUID]*domain.VisitRequest),
	}
}

func (m *memRepo) CreateJoinRequest(ctx context.Context, jr *domain.JoinRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.joinRequests {
		if existing.StudentID == jr.StudentID && existing.PropertyID == jr.PropertyID && existing.Status != domain.JoinRequestRejected {
			return store.ErrDuplicateRequest
		}
	}
	cp := *jr
	cp.CreatedAt = time.Now().UTC()
	m.joinRequests[jr.ID] = &cp
	return nil
}

func (m *memRepo) FindJoinRequestByID(ctx context.Context, id uuid.UUID) (*domain.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jr, ok := m.joinRequests[id]
	if !ok {
		return nil, store.ErrJoinRequestNotFound
	}
	cp := *jr
	return &cp, nil
}

func (m *memRepo) ListJoinRequestsByStudent(ctx context.Context, studentID uuid.UUID) ([]domain.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.JoinRequest
	for _, jr := range m.joinRequests {
		if jr.StudentID == studentID {
			out = append(out, *jr)
		}
	}
	return out, nil
}

func (m *memRepo) ListJoinRequestsByLandlord(ctx context.Context, landlordID uuid.UUID) ([]domain.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.JoinRequest
	for _, jr := range m.joinRequests {
		if jr.LandlordID == landlordID {
			out = append(out, *jr)
		}
	}
	return out, nil
}

func (m *memRepo) TransitionJoinRequest(ctx context.Context, id uuid.UUID, from, to string, actorID uuid.UUID, note *string, contractID *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jr, ok := m.joinRequests[id]
	if !ok {
		return false, store.ErrJoinRequestNotFound
	}
	if jr.Status != from {
		return false, nil
	}
	jr.Status = to
	if to == domain.JoinRequestRejected {
		jr.RejectionReason = note
	}
	if contractID != nil {
		jr.ContractID = contractID
	}
	m.jrEvents = append(m.jrEvents, domain.JoinRequestEvent{
		ID:            uuid.New(),
		JoinRequestID: id,
		FromStatus:    from,
		ToStatus:      to,
		ActorID:       actorID,
		Note:          note,
		CreatedAt:     time.Now().UTC(),
	})
	return true, nil
}

func (m *memRepo) CreateContract(ctx context.Context, c *domain.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.contracts[c.ID] = &cp
	return nil
}

func (m *memRepo) FindContractByID(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[id]
	if !ok {
		return nil, store.ErrContractNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) FindContractByJoinRequestID(ctx context.Context, joinRequestID uuid.UUID) (*domain.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contracts {
		if c.JoinRequestID == joinRequestID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrContractNotFound
}

func (m *memRepo) RecordSignature(ctx context.Context, contractID uuid.UUID, role string, signatureRef string, signedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[contractID]
	if !ok {
		return false, store.ErrContractNotFound
	}
	sig := &c.StudentSignature
	if role == domain.RoleLandlord {
		sig = &c.LandlordSignature
	}
	if sig.Signed {
		return false, nil
	}
	sig.Signed = true
	sig.SignedAt = &signedAt
	sig.SignatureRef = &signatureRef
	return true, nil
}

func (m *memRepo) UpdateContractTerms(ctx context.Context, contractID uuid.UUID, terms domain.ContractTerms) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[contractID]
	if !ok {
		return false, store.ErrContractNotFound
	}
	if c.StudentSignature.Signed && c.LandlordSignature.Signed {
		return false, nil
	}
	c.Terms = terms
	return true, nil
}

func (m *memRepo) MarkContractTerminated(ctx context.Context, contractID uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[contractID]
	if !ok {
		return false, store.ErrContractNotFound
	}
	if c.Terminated {
		return false, nil
	}
	c.Terminated = true
	c.TerminatedAt = &at
	return true, nil
}

func (m *memRepo) GetOrCreateWalletAccount(ctx context.Context, userID uuid.UUID) (*domain.WalletAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateWalletLocked(userID), nil
}

func (m *memRepo) getOrCreateWalletLocked(userID uuid.UUID) *domain.WalletAccount {
	if w, ok := m.wallets[userID]; ok {
		cp := *w
		return &cp
	}
	w := &domain.WalletAccount{ID: uuid.New(), UserID: userID, CreatedAt: time.Now().UTC()}
	m.wallets[userID] = w
	cp := *w
	return &cp
}

func (m *memRepo) FindWalletAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.WalletAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return nil, store.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memRepo) SetWalletAddress(ctx context.Context, userID uuid.UUID, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return store.ErrWalletNotFound
	}
	w.OnChainAddress = &address
	return nil
}

func (m *memRepo) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	cp.CreatedAt = time.Now().UTC()
	m.transactions[tx.ID] = &cp
	return nil
}

func (m *memRepo) FindTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *memRepo) FindTransactionByHash(ctx context.Context, onChainTxHash string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.OnChainTxHash != nil && *tx.OnChainTxHash == onChainTxHash {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, store.ErrTransactionNotFound
}

func (m *memRepo) ListTransactionsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range m.transactions {
		if tx.UserID == userID {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) ConfirmDeposit(ctx context.Context, onChainTxHash string) (*domain.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.OnChainTxHash == nil || *tx.OnChainTxHash != onChainTxHash || tx.Type != domain.TxDeposit {
			continue
		}
		if tx.Status != domain.TxPending {
			cp := *tx
			return &cp, false, nil
		}
		tx.Status = domain.TxCompleted
		m.wallets[tx.UserID].OffChainBalance += tx.Amount
		cp := *tx
		return &cp, true, nil
	}
	return nil, false, store.ErrTransactionNotFound
}

func (m *memRepo) FailDeposit(ctx context.Context, onChainTxHash string, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.OnChainTxHash == nil || *tx.OnChainTxHash != onChainTxHash || tx.Type != domain.TxDeposit {
			continue
		}
		if tx.Status != domain.TxPending {
			return false, nil
		}
		tx.Status = domain.TxFailed
		tx.FailureReason = &reason
		return true, nil
	}
	return false, store.ErrTransactionNotFound
}

func (m *memRepo) FindEscrowTransactionByContract(ctx context.Context, contractID uuid.UUID) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.RelatedContractID != nil && *tx.RelatedContractID == contractID &&
			tx.Type == domain.TxDepositEscrow && tx.Status == domain.TxCompleted {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, store.ErrTransactionNotFound
}

func (m *memRepo) CreateWithdrawal(ctx context.Context, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[tx.UserID]
	if !ok {
		return store.ErrWalletNotFound
	}
	if w.OffChainBalance < tx.Amount {
		return store.ErrInsufficientFunds
	}
	w.OffChainBalance -= tx.Amount
	cp := *tx
	cp.CreatedAt = time.Now().UTC()
	m.transactions[tx.ID] = &cp
	return nil
}

func (m *memRepo) SetTransactionHash(ctx context.Context, txID uuid.UUID, onChainTxHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[txID]
	if !ok {
		return store.ErrTransactionNotFound
	}
	tx.OnChainTxHash = &onChainTxHash
	return nil
}

func (m *memRepo) CompleteWithdrawal(ctx context.Context, txID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[txID]
	if !ok {
		return false, store.ErrTransactionNotFound
	}
	if tx.Status != domain.TxPending {
		return false, nil
	}
	tx.Status = domain.TxCompleted
	return true, nil
}

func (m *memRepo) FailWithdrawalAndRefund(ctx context.Context, txID uuid.UUID, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[txID]
	if !ok {
		return false, store.ErrTransactionNotFound
	}
	if tx.Status != domain.TxPending {
		return false, nil
	}
	tx.Status = domain.TxFailed
	tx.FailureReason = &reason
	m.wallets[tx.UserID].OffChainBalance += tx.Amount
	return true, nil
}

func (m *memRepo) ApplyRentPaymentPair(ctx context.Context, payment, received *domain.Transaction, rentCycleID uuid.UUID, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cycle, ok := m.rentCycles[rentCycleID]
	if !ok {
		return store.ErrRentCycleNotFound
	}
	if cycle.Status == domain.RentCyclePaid {
		return store.ErrRentCycleNotFound
	}
	payer, ok := m.wallets[payment.UserID]
	if !ok {
		return store.ErrWalletNotFound
	}
	if payer.OffChainBalance < payment.Amount {
		return store.ErrInsufficientFunds
	}
	payee, ok := m.wallets[received.UserID]
	if !ok {
		return store.ErrWalletNotFound
	}
	payer.OffChainBalance -= payment.Amount
	payee.OffChainBalance += received.Amount
	pcp, rcp := *payment, *received
	pcp.CreatedAt, rcp.CreatedAt = paidAt, paidAt
	m.transactions[payment.ID] = &pcp
	m.transactions[received.ID] = &rcp
	cycle.Status = domain.RentCyclePaid
	cycle.PaidAt = &paidAt
	return nil
}

func (m *memRepo) ApplyCredit(ctx context.Context, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[tx.UserID]
	if !ok {
		return store.ErrWalletNotFound
	}
	w.OffChainBalance += tx.Amount
	cp := *tx
	cp.CreatedAt = time.Now().UTC()
	m.transactions[tx.ID] = &cp
	return nil
}

func (m *memRepo) ApplyDebit(ctx context.Context, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[tx.UserID]
	if !ok {
		return store.ErrWalletNotFound
	}
	if w.OffChainBalance < tx.Amount {
		return store.ErrInsufficientFunds
	}
	w.OffChainBalance -= tx.Amount
	cp := *tx
	cp.CreatedAt = time.Now().UTC()
	m.transactions[tx.ID] = &cp
	return nil
}

func (m *memRepo) ListPendingOnChainTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range m.transactions {
		if tx.Status == domain.TxPending && tx.OnChainTxHash != nil {
			out = append(out, *tx)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) IncrementReconcileAttempts(ctx context.Context, txID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[txID]
	if !ok {
		return 0, store.ErrTransactionNotFound
	}
	tx.ReconcileAttempts++
	return tx.ReconcileAttempts, nil
}

func (m *memRepo) SumCompletedTransactionDeltas(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, tx := range m.transactions {
		if tx.UserID == userID && tx.Status == domain.TxCompleted {
			sum += tx.Delta()
		}
	}
	return sum, nil
}

func (m *memRepo) PendingDepositTotal(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, tx := range m.transactions {
		if tx.UserID == userID && tx.Type == domain.TxDeposit && tx.Status == domain.TxPending {
			sum += tx.Amount
		}
	}
	return sum, nil
}

func (m *memRepo) CreateReconciliationConflict(ctx context.Context, c *domain.ReconciliationConflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts = append(m.conflicts, *c)
	return nil
}

func (m *memRepo) CreateRentCycles(ctx context.Context, cycles []domain.RentCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range cycles {
		cp := cycles[i]
		m.rentCycles[cp.ID] = &cp
	}
	return nil
}

func (m *memRepo) FindRentCycleByID(ctx context.Context, id uuid.UUID) (*domain.RentCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rentCycles[id]
	if !ok {
		return nil, store.ErrRentCycleNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) ListRentCyclesByContract(ctx context.Context, contractID uuid.UUID) ([]domain.RentCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RentCycle
	for _, c := range m.rentCycles {
		if c.ContractID == contractID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CycleIndex < out[j].CycleIndex })
	return out, nil
}

func (m *memRepo) contractActiveForCycleLocked(cycle *domain.RentCycle) bool {
	c, ok := m.contracts[cycle.ContractID]
	if !ok {
		return false
	}
	if !c.Terminated {
		return true
	}
	return !cycle.DueDate.After(*c.TerminatedAt)
}

func (m *memRepo) MarkRentCyclesDue(ctx context.Context, now time.Time, grace time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	cutoff := now.Add(grace)
	for _, c := range m.rentCycles {
		if c.Status == domain.RentCycleUpcoming && !c.DueDate.After(cutoff) && m.contractActiveForCycleLocked(c) {
			c.Status = domain.RentCycleDue
			n++
		}
	}
	return n, nil
}

func (m *memRepo) MarkRentCyclesOverdue(ctx context.Context, now time.Time, grace time.Duration) ([]domain.RentCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RentCycle
	cutoff := now.Add(-grace)
	for _, c := range m.rentCycles {
		if c.Status == domain.RentCycleDue && c.DueDate.Before(cutoff) && m.contractActiveForCycleLocked(c) {
			c.Status = domain.RentCycleOverdue
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memRepo) ListAutoPayCandidates(ctx context.Context, from, to time.Time) ([]domain.RentCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RentCycle
	for _, c := range m.rentCycles {
		if (c.Status == domain.RentCycleUpcoming || c.Status == domain.RentCycleDue) &&
			!c.DueDate.Before(from) && !c.DueDate.After(to) && m.contractActiveForCycleLocked(c) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memRepo) CreateTerminationHold(ctx context.Context, h *domain.TerminationHold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.holds {
		if existing.ContractID == h.ContractID {
			return store.ErrHoldExists
		}
	}
	cp := *h
	m.holds[h.ID] = &cp
	return nil
}

func (m *memRepo) FindTerminationHoldByContract(ctx context.Context, contractID uuid.UUID) (*domain.TerminationHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.holds {
		if h.ContractID == contractID {
			cp := *h
			return &cp, nil
		}
	}
	return nil, store.ErrHoldNotFound
}

func (m *memRepo) TransitionTerminationHold(ctx context.Context, holdID uuid.UUID, from, to string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	if !ok {
		return false, store.ErrHoldNotFound
	}
	if h.Resolution != from {
		return false, nil
	}
	h.Resolution = to
	if to == domain.HoldResolved || to == domain.HoldAutoRefunded {
		h.ResolvedAt = &at
	} else {
		h.ResolvedAt = nil
	}
	return true, nil
}

func (m *memRepo) ListExpiredPendingHolds(ctx context.Context, now time.Time) ([]domain.TerminationHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TerminationHold
	for _, h := range m.holds {
		if h.Resolution == domain.HoldPending && !h.HoldExpiresAt.After(now) {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (m *memRepo) CreateVisitRequest(ctx context.Context, v *domain.VisitRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.visits[v.ID] = &cp
	return nil
}

func (m *memRepo) FindVisitRequestByID(ctx context.Context, id uuid.UUID) (*domain.VisitRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok {
		return nil, store.ErrVisitNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memRepo) ListVisitRequestsByLandlord(ctx context.Context, landlordID uuid.UUID) ([]domain.VisitRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.VisitRequest
	for _, v := range m.visits {
		if v.LandlordID == landlordID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *memRepo) ConfirmVisit(ctx context.Context, id uuid.UUID, meetLink *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok {
		return false, store.ErrVisitNotFound
	}
	if v.Status != domain.VisitPending {
		return false, nil
	}
	v.Status = domain.VisitConfirmed
	v.MeetLink = meetLink
	return true, nil
}

func (m *memRepo) RescheduleVisit(ctx context.Context, id uuid.UUID, newTime time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok {
		return false, store.ErrVisitNotFound
	}
	if v.Status != domain.VisitPending && v.Status != domain.VisitConfirmed && v.Status != domain.VisitRescheduled {
		return false, nil
	}
	v.Status = domain.VisitRescheduled
	v.RescheduledTo = &newTime
	return true, nil
}

func (m *memRepo) RejectVisit(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok {
		return false, store.ErrVisitNotFound
	}
	if v.Status != domain.VisitPending {
		return false, nil
	}
	v.Status = domain.VisitRejected
	v.RejectionReason = &reason
	return true, nil
}

func (m *memRepo) ListVisitsDueCompletion(ctx context.Context, now time.Time) ([]domain.VisitRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.VisitRequest
	for _, v := range m.visits {
		if (v.Status == domain.VisitConfirmed || v.Status == domain.VisitRescheduled) && !v.EffectiveVisitAt().After(now) {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *memRepo) MarkVisitCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok {
		return false, store.ErrVisitNotFound
	}
	if v.Status != domain.VisitConfirmed && v.Status != domain.VisitRescheduled {
		return false, nil
	}
	v.Status = domain.VisitCompleted
	return true, nil
}

var _ store.Repository = (*memRepo)(nil)

// setBalance seeds an account balance directly, for test arrangement only.
func (m *memRepo) setBalance(userID uuid.UUID, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreateWalletLocked(userID)
	m.wallets[userID].OffChainBalance = balance
}

func (m *memRepo) balance(userID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return 0
	}
	return w.OffChainBalance
}

// stubVault scripts the watcher's answers per hash.
type stubVault struct {
	mu        sync.Mutex
	statuses  map[string]string // hash -> status; missing hash errors
	submitErr error
	nextHash  string
	submitted []int64
}

func (v *stubVault) GetTxStatus(ctx context.Context, hash string) (*vaultclient.TxStatusResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	status, ok := v.statuses[hash]
	if !ok {
		return nil, errors.New("watcher unavailable")
	}
	var out vaultclient.TxStatusResponse
	out.Data.Hash = hash
	out.Data.Status = status
	return &out, nil
}

func (v *stubVault) SubmitWithdrawal(ctx context.Context, toAddress string, amount int64) (*vaultclient.WithdrawalResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.submitErr != nil {
		return nil, v.submitErr
	}
	v.submitted = append(v.submitted, amount)
	var out vaultclient.WithdrawalResponse
	out.Data.Hash = v.nextHash
	out.Data.Status = vaultclient.TxStatusPending
	return &out, nil
}

// stubDirectory serves properties from a map.
type stubDirectory struct {
	properties map[uuid.UUID]directoryclient.Property
}

func (d *stubDirectory) GetProperty(ctx context.Context, id uuid.UUID) (*directoryclient.Property, error) {
	p, ok := d.properties[id]
	if !ok {
		return nil, fmt.Errorf("directory entity not found: %s", id)
	}
	return &p, nil
}

func (d *stubDirectory) GetUser(ctx context.Context, id uuid.UUID) (*directoryclient.User, error) {
	return &directoryclient.User{ID: id}, nil
}

// stubPublisher records routing keys.
type stubPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *stubPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *stubPublisher) Close() {}

func (p *stubPublisher) published(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.keys {
		if k == routingKey {
			n++
		}
	}
	return n
}

// fixture bundles a service with its collaborators for scenario tests.
type fixture struct {
	repo      *memRepo
	vault     *stubVault
	directory *stubDirectory
	events    *stubPublisher
	service   *Service

	landlordID uuid.UUID
	studentID  uuid.UUID
	propertyID uuid.UUID
}

func newFixture() *fixture {
	repo := newMemRepo()
	vault := &stubVault{statuses: map[string]string{}}
	landlordID := uuid.New()
	propertyID := uuid.New()
	directory := &stubDirectory{properties: map[uuid.UUID]directoryclient.Property{
		propertyID: {
			ID:         propertyID,
			LandlordID: landlordID,
			Title:      "Sunnybrook Apt 4B",
			Address:    "12 College Road",
			City:       "Austin",
			RentDueDay: 5,
		},
	}}
	events := &stubPublisher{}
	svc := NewService(repo, vault, directory, events, DefaultPolicy())
	return &fixture{
		repo:       repo,
		vault:      vault,
		directory:  directory,
		events:     events,
		service:    svc,
		landlordID: landlordID,
		studentID:  uuid.New(),
		propertyID: propertyID,
	}
}

// submitAndApprove walks a request through submission and approval.
func (f *fixture) submitAndApprove(ctx context.Context, bid int64, months int, moveIn time.Time) (*domain.JoinRequest, *domain.Contract, error) {
	jr, err := f.service.SubmitJoinRequest(ctx, f.studentID, domain.SubmitJoinRequestPayload{
		PropertyID:          f.propertyID,
		BidAmount:           bid,
		LeaseDurationMonths: months,
		MoveInDate:          moveIn,
	})
	if err != nil {
		return nil, nil, err
	}
	return f.service.ApproveJoinRequest(ctx, f.landlordID, jr.ID)
}

// signBoth completes the dual-signature protocol: student first, landlord
// second. The student must hold enough balance for the escrow debit.
func (f *fixture) signBoth(ctx context.Context, contractID uuid.UUID) (*domain.Contract, error) {
	if _, err := f.service.SignContract(ctx, f.studentID, contractID, domain.SignContractPayload{SignatureRef: "0xsig-student"}); err != nil {
		return nil, err
	}
	return f.service.SignContract(ctx, f.landlordID, contractID, domain.SignContractPayload{SignatureRef: "0xsig-landlord"})
}
