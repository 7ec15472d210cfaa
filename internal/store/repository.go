/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the tenancy lifecycle service.
 * The interface decouples the business logic from the PostgreSQL
 * implementation and lets the app layer be tested against in-memory stubs.
 *
 * State transitions are expressed as conditional updates: a method takes the
 * expected current state and reports via its boolean result whether the
 * transition was applied. Losing a race therefore surfaces as `false`, which
 * the app layer maps to its InvalidTransition error, never as a silent
 * overwrite.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For entity ids.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rentmates/tenancy-service/internal/domain"
)

var (
	ErrJoinRequestNotFound = errors.New("join request not found")
	ErrContractNotFound    = errors.New("contract not found")
	ErrWalletNotFound      = errors.New("wallet account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrRentCycleNotFound   = errors.New("rent cycle not found")
	ErrHoldNotFound        = errors.New("termination hold not found")
	ErrHoldExists          = errors.New("termination hold already exists for contract")
	ErrVisitNotFound       = errors.New("visit request not found")
	ErrDuplicateRequest    = errors.New("an active join request already exists for this student and property")
	ErrInsufficientFunds   = errors.New("insufficient funds")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Join request methods. CreateJoinRequest returns ErrDuplicateRequest when
	// a non-rejected request already exists for the (student, property) pair.
	CreateJoinRequest(ctx context.Context, jr *domain.JoinRequest) error
	FindJoinRequestByID(ctx context.Context, id uuid.UUID) (*domain.JoinRequest, error)
	ListJoinRequestsByStudent(ctx context.Context, studentID uuid.UUID) ([]domain.JoinRequest, error)
	ListJoinRequestsByLandlord(ctx context.Context, landlordID uuid.UUID) ([]domain.JoinRequest, error)
	// TransitionJoinRequest atomically moves the request from `from` to `to`,
	// appends the status-history event, and optionally links the contract.
	TransitionJoinRequest(ctx context.Context, id uuid.UUID, from, to string, actorID uuid.UUID, note *string, contractID *uuid.UUID) (bool, error)

	// Contract methods.
	CreateContract(ctx context.Context, c *domain.Contract) error
	FindContractByID(ctx context.Context, id uuid.UUID) (*domain.Contract, error)
	FindContractByJoinRequestID(ctx context.Context, joinRequestID uuid.UUID) (*domain.Contract, error)
	// RecordSignature sets the signature for one party, guarded on that party
	// not having signed yet. Returns false if the guard did not hold.
	RecordSignature(ctx context.Context, contractID uuid.UUID, role string, signatureRef string, signedAt time.Time) (bool, error)
	// UpdateContractTerms rewrites the terms snapshot, guarded on the contract
	// not being fully signed. Returns false once both signatures are present.
	UpdateContractTerms(ctx context.Context, contractID uuid.UUID, terms domain.ContractTerms) (bool, error)
	MarkContractTerminated(ctx context.Context, contractID uuid.UUID, at time.Time) (bool, error)

	// Wallet and ledger methods. Balance mutation always travels with its
	// Transaction row inside a single database transaction.
	GetOrCreateWalletAccount(ctx context.Context, userID uuid.UUID) (*domain.WalletAccount, error)
	FindWalletAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.WalletAccount, error)
	SetWalletAddress(ctx context.Context, userID uuid.UUID, address string) error
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	FindTransactionByHash(ctx context.Context, onChainTxHash string) (*domain.Transaction, error)
	// FindEscrowTransactionByContract returns the completed deposit_escrow
	// transaction for a contract, or ErrTransactionNotFound when the deposit
	// was never actually debited.
	FindEscrowTransactionByContract(ctx context.Context, contractID uuid.UUID) (*domain.Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error)
	// ConfirmDeposit completes a pending deposit and credits the balance in
	// one transaction. The `pending` guard makes re-confirmation a no-op:
	// applied=false, no double credit.
	ConfirmDeposit(ctx context.Context, onChainTxHash string) (*domain.Transaction, bool, error)
	FailDeposit(ctx context.Context, onChainTxHash string, reason string) (bool, error)
	// CreateWithdrawal atomically checks the balance, debits it, and inserts
	// the pending withdraw row. Returns ErrInsufficientFunds when the check
	// fails; the check and debit are a single statement so concurrent
	// withdrawals cannot both pass against a stale read.
	CreateWithdrawal(ctx context.Context, tx *domain.Transaction) error
	// SetTransactionHash attaches the on-chain hash returned by the vault to a
	// pending transaction so the reconciler can poll it.
	SetTransactionHash(ctx context.Context, txID uuid.UUID, onChainTxHash string) error
	CompleteWithdrawal(ctx context.Context, txID uuid.UUID) (bool, error)
	// FailWithdrawalAndRefund marks the withdraw failed and credits the
	// pessimistic debit back, atomically.
	FailWithdrawalAndRefund(ctx context.Context, txID uuid.UUID, reason string) (bool, error)
	// ApplyRentPaymentPair debits the payer, credits the payee, inserts both
	// completed transaction rows, and marks the rent cycle paid — all or
	// nothing. Returns ErrInsufficientFunds when the payer cannot cover it.
	ApplyRentPaymentPair(ctx context.Context, payment, received *domain.Transaction, rentCycleID uuid.UUID, paidAt time.Time) error
	// ApplyCredit inserts a completed credit transaction and increments the
	// balance atomically (used for deposit refunds).
	ApplyCredit(ctx context.Context, tx *domain.Transaction) error
	// ApplyDebit inserts a completed debit transaction and decrements the
	// balance atomically, guarded on sufficient funds (used for the security
	// deposit escrow debit).
	ApplyDebit(ctx context.Context, tx *domain.Transaction) error
	ListPendingOnChainTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	IncrementReconcileAttempts(ctx context.Context, txID uuid.UUID) (int, error)
	SumCompletedTransactionDeltas(ctx context.Context, userID uuid.UUID) (int64, error)
	PendingDepositTotal(ctx context.Context, userID uuid.UUID) (int64, error)
	CreateReconciliationConflict(ctx context.Context, c *domain.ReconciliationConflict) error

	// Rent cycle methods.
	CreateRentCycles(ctx context.Context, cycles []domain.RentCycle) error
	FindRentCycleByID(ctx context.Context, id uuid.UUID) (*domain.RentCycle, error)
	ListRentCyclesByContract(ctx context.Context, contractID uuid.UUID) ([]domain.RentCycle, error)
	// MarkRentCyclesDue flips upcoming cycles to due once now >= dueDate -
	// grace, skipping terminated contracts. Returns the number updated.
	MarkRentCyclesDue(ctx context.Context, now time.Time, grace time.Duration) (int64, error)
	// MarkRentCyclesOverdue flips unpaid due cycles to overdue once now >
	// dueDate + grace, skipping terminated contracts. Returns the flipped
	// rows so the caller can notify.
	MarkRentCyclesOverdue(ctx context.Context, now time.Time, grace time.Duration) ([]domain.RentCycle, error)
	// ListAutoPayCandidates returns unpaid cycles on active contracts whose
	// due date falls inside the window.
	ListAutoPayCandidates(ctx context.Context, from, to time.Time) ([]domain.RentCycle, error)

	// Termination hold methods.
	CreateTerminationHold(ctx context.Context, h *domain.TerminationHold) error
	FindTerminationHoldByContract(ctx context.Context, contractID uuid.UUID) (*domain.TerminationHold, error)
	TransitionTerminationHold(ctx context.Context, holdID uuid.UUID, from, to string, at time.Time) (bool, error)
	ListExpiredPendingHolds(ctx context.Context, now time.Time) ([]domain.TerminationHold, error)

	// Visit request methods.
	CreateVisitRequest(ctx context.Context, v *domain.VisitRequest) error
	FindVisitRequestByID(ctx context.Context, id uuid.UUID) (*domain.VisitRequest, error)
	ListVisitRequestsByLandlord(ctx context.Context, landlordID uuid.UUID) ([]domain.VisitRequest, error)
	ConfirmVisit(ctx context.Context, id uuid.UUID, meetLink *string) (bool, error)
	RescheduleVisit(ctx context.Context, id uuid.UUID, newTime time.Time) (bool, error)
	RejectVisit(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	// ListVisitsDueCompletion returns confirmed or rescheduled visits whose
	// (possibly rescheduled) time has passed.
	ListVisitsDueCompletion(ctx context.Context, now time.Time) ([]domain.VisitRequest, error)
	MarkVisitCompleted(ctx context.Context, id uuid.UUID) (bool, error)
}
