/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. All state-machine
 * transitions are conditional UPDATEs guarded on the expected current state,
 * and every balance mutation happens in the same database transaction as the
 * ledger row that explains it.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rentmates/tenancy-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Join requests ---

const joinRequestColumns = `id, property_id, student_id, landlord_id, bid_amount, lease_duration_months,
	move_in_date, message, status, rejection_reason, contract_id, created_at, updated_at`

func scanJoinRequest(row pgx.Row) (*domain.JoinRequest, error) {
	var jr domain.JoinRequest
	err := row.Scan(
		&jr.ID, &jr.PropertyID, &jr.StudentID, &jr.LandlordID, &jr.BidAmount, &jr.LeaseDurationMonths,
		&jr.MoveInDate, &jr.Message, &jr.Status, &jr.RejectionReason, &jr.ContractID, &jr.CreatedAt, &jr.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrJoinRequestNotFound
		}
		return nil, err
	}
	return &jr, nil
}

// CreateJoinRequest inserts a new pending request. A partial unique index on
// (student_id, property_id) WHERE status <> 'rejected' enforces the
// one-active-request invariant; a violation maps to ErrDuplicateRequest.
func (r *PostgresRepository) CreateJoinRequest(ctx context.Context, jr *domain.JoinRequest) error {
	query := `
		INSERT INTO join_requests (id, property_id, student_id, landlord_id, bid_amount, lease_duration_months, move_in_date, message, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		jr.ID, jr.PropertyID, jr.StudentID, jr.LandlordID, jr.BidAmount, jr.LeaseDurationMonths,
		jr.MoveInDate, jr.Message, jr.Status,
	).Scan(&jr.CreatedAt, &jr.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRequest
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) FindJoinRequestByID(ctx context.Context, id uuid.UUID) (*domain.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE id = $1`
	return scanJoinRequest(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) listJoinRequests(ctx context.Context, query string, arg any) ([]domain.JoinRequest, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.JoinRequest
	for rows.Next() {
		jr, err := scanJoinRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *jr)
	}
	return requests, rows.Err()
}

func (r *PostgresRepository) ListJoinRequestsByStudent(ctx context.Context, studentID uuid.UUID) ([]domain.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE student_id = $1 ORDER BY created_at DESC`
	return r.listJoinRequests(ctx, query, studentID)
}

func (r *PostgresRepository) ListJoinRequestsByLandlord(ctx context.Context, landlordID uuid.UUID) ([]domain.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE landlord_id = $1 ORDER BY created_at DESC`
	return r.listJoinRequests(ctx, query, landlordID)
}

// TransitionJoinRequest applies `from -> to` guarded on the current status and
// appends the history event in the same database transaction. Concurrent
// callers race on the guard; exactly one sees applied=true.
func (r *PostgresRepository) TransitionJoinRequest(ctx context.Context, id uuid.UUID, from, to string, actorID uuid.UUID, note *string, contractID *uuid.UUID) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE join_requests
		SET status = $3,
		    rejection_reason = CASE WHEN $3 = 'rejected' THEN $4 ELSE rejection_reason END,
		    contract_id = COALESCE($5, contract_id),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	tag, err := tx.Exec(ctx, query, id, from, to, note, contractID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	eventQuery := `
		INSERT INTO join_request_events (id, join_request_id, from_status, to_status, actor_id, note)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, eventQuery, uuid.New(), id, from, to, actorID, note); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

// --- Contracts ---

const contractColumns = `id, join_request_id, property_id, student_id, landlord_id,
	monthly_rent, security_deposit, rent_due_day, lease_start, lease_end, lease_duration_months,
	property_title, property_address,
	student_signed, student_signed_at, student_signature_ref,
	landlord_signed, landlord_signed_at, landlord_signature_ref,
	terminated, terminated_at, created_at, updated_at`

func scanContract(row pgx.Row) (*domain.Contract, error) {
	var c domain.Contract
	err := row.Scan(
		&c.ID, &c.JoinRequestID, &c.PropertyID, &c.StudentID, &c.LandlordID,
		&c.Terms.MonthlyRent, &c.Terms.SecurityDeposit, &c.Terms.RentDueDay,
		&c.Terms.LeaseStart, &c.Terms.LeaseEnd, &c.Terms.LeaseDurationMonths,
		&c.Terms.PropertyTitle, &c.Terms.PropertyAddress,
		&c.StudentSignature.Signed, &c.StudentSignature.SignedAt, &c.StudentSignature.SignatureRef,
		&c.LandlordSignature.Signed, &c.LandlordSignature.SignedAt, &c.LandlordSignature.SignatureRef,
		&c.Terminated, &c.TerminatedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrContractNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *PostgresRepository) CreateContract(ctx context.Context, c *domain.Contract) error {
	query := `
		INSERT INTO contracts (id, join_request_id, property_id, student_id, landlord_id,
			monthly_rent, security_deposit, rent_due_day, lease_start, lease_end, lease_duration_months,
			property_title, property_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		c.ID, c.JoinRequestID, c.PropertyID, c.StudentID, c.LandlordID,
		c.Terms.MonthlyRent, c.Terms.SecurityDeposit, c.Terms.RentDueDay,
		c.Terms.LeaseStart, c.Terms.LeaseEnd, c.Terms.LeaseDurationMonths,
		c.Terms.PropertyTitle, c.Terms.PropertyAddress,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *PostgresRepository) FindContractByID(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1`
	return scanContract(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) FindContractByJoinRequestID(ctx context.Context, joinRequestID uuid.UUID) (*domain.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE join_request_id = $1`
	return scanContract(r.db.QueryRow(ctx, query, joinRequestID))
}

// RecordSignature sets one party's signature, guarded on that party not
// having signed. The guard makes the signing call safe under concurrent
// retries: only one write lands.
func (r *PostgresRepository) RecordSignature(ctx context.Context, contractID uuid.UUID, role string, signatureRef string, signedAt time.Time) (bool, error) {
	var query string
	switch role {
	case domain.RoleStudent:
		query = `
			UPDATE contracts
			SET student_signed = TRUE, student_signed_at = $2, student_signature_ref = $3, updated_at = NOW()
			WHERE id = $1 AND student_signed = FALSE
		`
	case domain.RoleLandlord:
		query = `
			UPDATE contracts
			SET landlord_signed = TRUE, landlord_signed_at = $2, landlord_signature_ref = $3, updated_at = NOW()
			WHERE id = $1 AND landlord_signed = FALSE
		`
	default:
		return false, fmt.Errorf("unknown signing role %q", role)
	}

	tag, err := r.db.Exec(ctx, query, contractID, signedAt, signatureRef)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateContractTerms rewrites the snapshot while the contract is not fully
// signed. Once both signatures are present the guard fails and the terms are
// frozen for good.
func (r *PostgresRepository) UpdateContractTerms(ctx context.Context, contractID uuid.UUID, terms domain.ContractTerms) (bool, error) {
	query := `
		UPDATE contracts
		SET monthly_rent = $2, security_deposit = $3, rent_due_day = $4,
		    lease_start = $5, lease_end = $6, lease_duration_months = $7,
		    property_title = $8, property_address = $9, updated_at = NOW()
		WHERE id = $1 AND NOT (student_signed AND landlord_signed)
	`
	tag, err := r.db.Exec(ctx, query, contractID,
		terms.MonthlyRent, terms.SecurityDeposit, terms.RentDueDay,
		terms.LeaseStart, terms.LeaseEnd, terms.LeaseDurationMonths,
		terms.PropertyTitle, terms.PropertyAddress,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) MarkContractTerminated(ctx context.Context, contractID uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE contracts
		SET terminated = TRUE, terminated_at = $2, updated_at = NOW()
		WHERE id = $1 AND terminated = FALSE
	`
	tag, err := r.db.Exec(ctx, query, contractID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// --- Wallets and ledger ---

func scanWallet(row pgx.Row) (*domain.WalletAccount, error) {
	var w domain.WalletAccount
	err := row.Scan(&w.ID, &w.UserID, &w.OffChainBalance, &w.OnChainAddress, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *PostgresRepository) GetOrCreateWalletAccount(ctx context.Context, userID uuid.UUID) (*domain.WalletAccount, error) {
	query := `
		INSERT INTO wallet_accounts (id, user_id, off_chain_balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = wallet_accounts.updated_at
		RETURNING id, user_id, off_chain_balance, on_chain_address, created_at, updated_at
	`
	return scanWallet(r.db.QueryRow(ctx, query, uuid.New(), userID))
}

func (r *PostgresRepository) FindWalletAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.WalletAccount, error) {
	query := `SELECT id, user_id, off_chain_balance, on_chain_address, created_at, updated_at FROM wallet_accounts WHERE user_id = $1`
	return scanWallet(r.db.QueryRow(ctx, query, userID))
}

func (r *PostgresRepository) SetWalletAddress(ctx context.Context, userID uuid.UUID, address string) error {
	tag, err := r.db.Exec(ctx, `UPDATE wallet_accounts SET on_chain_address = $2, updated_at = NOW() WHERE user_id = $1`, userID, address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

const transactionColumns = `id, wallet_account_id, user_id, type, amount, status, on_chain_tx_hash,
	related_rent_cycle_id, related_contract_id, counterparty_id, description, reconcile_attempts,
	failure_reason, created_at, updated_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.WalletAccountID, &t.UserID, &t.Type, &t.Amount, &t.Status, &t.OnChainTxHash,
		&t.RelatedRentCycle, &t.RelatedContractID, &t.CounterpartyID, &t.Description,
		&t.ReconcileAttempts, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

func insertTransaction(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, wallet_account_id, user_id, type, amount, status, on_chain_tx_hash,
			related_rent_cycle_id, related_contract_id, counterparty_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	return q.QueryRow(ctx, query,
		t.ID, t.WalletAccountID, t.UserID, t.Type, t.Amount, t.Status, t.OnChainTxHash,
		t.RelatedRentCycle, t.RelatedContractID, t.CounterpartyID, t.Description,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *PostgresRepository) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	return insertTransaction(ctx, r.db, t)
}

func (r *PostgresRepository) FindTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) FindTransactionByHash(ctx context.Context, onChainTxHash string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE on_chain_tx_hash = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, onChainTxHash))
}

func (r *PostgresRepository) FindEscrowTransactionByContract(ctx context.Context, contractID uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE related_contract_id = $1 AND type = 'deposit_escrow' AND status = 'completed'
		ORDER BY created_at DESC
		LIMIT 1`
	return scanTransaction(r.db.QueryRow(ctx, query, contractID))
}

func (r *PostgresRepository) ListTransactionsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// ConfirmDeposit completes the pending deposit identified by hash and credits
// the balance, in one database transaction. The `status = 'pending'` guard is
// what makes confirmation idempotent: a second confirmation matches zero rows
// and never credits twice.
func (r *PostgresRepository) ConfirmDeposit(ctx context.Context, onChainTxHash string) (*domain.Transaction, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE transactions
		SET status = 'completed', updated_at = NOW()
		WHERE on_chain_tx_hash = $1 AND type = 'deposit' AND status = 'pending'
		RETURNING ` + transactionColumns
	updated, err := scanTransaction(tx.QueryRow(ctx, query, onChainTxHash))
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			// Either unknown hash or already confirmed; the caller decides which.
			existing, findErr := r.FindTransactionByHash(ctx, onChainTxHash)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	credit := `UPDATE wallet_accounts SET off_chain_balance = off_chain_balance + $2, updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, credit, updated.WalletAccountID, updated.Amount); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

func (r *PostgresRepository) FailDeposit(ctx context.Context, onChainTxHash string, reason string) (bool, error) {
	query := `
		UPDATE transactions
		SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE on_chain_tx_hash = $1 AND type = 'deposit' AND status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, onChainTxHash, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CreateWithdrawal performs the check-then-debit as a single conditional
// UPDATE, then inserts the pending withdraw row in the same transaction. Two
// concurrent withdrawals cannot both pass the balance check.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, t *domain.Transaction) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	debit := `
		UPDATE wallet_accounts
		SET off_chain_balance = off_chain_balance - $2, updated_at = NOW()
		WHERE id = $1 AND off_chain_balance >= $2
	`
	tag, err := tx.Exec(ctx, debit, t.WalletAccountID, t.Amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}

	if err := insertTransaction(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) SetTransactionHash(ctx context.Context, txID uuid.UUID, onChainTxHash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE transactions SET on_chain_tx_hash = $2, updated_at = NOW() WHERE id = $1`, txID, onChainTxHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *PostgresRepository) CompleteWithdrawal(ctx context.Context, txID uuid.UUID) (bool, error) {
	query := `
		UPDATE transactions
		SET status = 'completed', updated_at = NOW()
		WHERE id = $1 AND type = 'withdraw' AND status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, txID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FailWithdrawalAndRefund reverses the pessimistic debit: the withdraw row is
// marked failed and the amount credited back, atomically.
func (r *PostgresRepository) FailWithdrawalAndRefund(ctx context.Context, txID uuid.UUID, reason string) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE transactions
		SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND type = 'withdraw' AND status = 'pending'
		RETURNING wallet_account_id, amount
	`
	var walletID uuid.UUID
	var amount int64
	if err := tx.QueryRow(ctx, query, txID, reason).Scan(&walletID, &amount); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}

	credit := `UPDATE wallet_accounts SET off_chain_balance = off_chain_balance + $2, updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, credit, walletID, amount); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyRentPaymentPair moves one rent amount from payer to payee: debit with
// balance guard, credit, both ledger rows, and the cycle flip to paid — all
// inside one database transaction.
func (r *PostgresRepository) ApplyRentPaymentPair(ctx context.Context, payment, received *domain.Transaction, rentCycleID uuid.UUID, paidAt time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cycleQuery := `
		UPDATE rent_cycles
		SET status = 'paid', paid_at = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('upcoming', 'due', 'overdue')
	`
	tag, err := tx.Exec(ctx, cycleQuery, rentCycleID, paidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRentCycleNotFound
	}

	debit := `
		UPDATE wallet_accounts
		SET off_chain_balance = off_chain_balance - $2, updated_at = NOW()
		WHERE id = $1 AND off_chain_balance >= $2
	`
	tag, err = tx.Exec(ctx, debit, payment.WalletAccountID, payment.Amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}

	credit := `UPDATE wallet_accounts SET off_chain_balance = off_chain_balance + $2, updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, credit, received.WalletAccountID, received.Amount); err != nil {
		return err
	}

	if err := insertTransaction(ctx, tx, payment); err != nil {
		return err
	}
	if err := insertTransaction(ctx, tx, received); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ApplyCredit inserts a completed credit row and increments the balance
// atomically. Used for the deposit refund at hold resolution.
func (r *PostgresRepository) ApplyCredit(ctx context.Context, t *domain.Transaction) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertTransaction(ctx, tx, t); err != nil {
		return err
	}
	credit := `UPDATE wallet_accounts SET off_chain_balance = off_chain_balance + $2, updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, credit, t.WalletAccountID, t.Amount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ApplyDebit inserts a completed debit row and decrements the balance with
// the same sufficient-funds guard as a withdrawal.
func (r *PostgresRepository) ApplyDebit(ctx context.Context, t *domain.Transaction) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	debit := `
		UPDATE wallet_accounts
		SET off_chain_balance = off_chain_balance - $2, updated_at = NOW()
		WHERE id = $1 AND off_chain_balance >= $2
	`
	tag, err := tx.Exec(ctx, debit, t.WalletAccountID, t.Amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}

	if err := insertTransaction(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) ListPendingOnChainTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = 'pending' AND type IN ('deposit', 'withdraw') AND on_chain_tx_hash IS NOT NULL
		ORDER BY created_at ASC
		LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func (r *PostgresRepository) IncrementReconcileAttempts(ctx context.Context, txID uuid.UUID) (int, error) {
	var attempts int
	query := `UPDATE transactions SET reconcile_attempts = reconcile_attempts + 1, updated_at = NOW() WHERE id = $1 RETURNING reconcile_attempts`
	if err := r.db.QueryRow(ctx, query, txID).Scan(&attempts); err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrTransactionNotFound
		}
		return 0, err
	}
	return attempts, nil
}

func (r *PostgresRepository) SumCompletedTransactionDeltas(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
		SELECT COALESCE(SUM(CASE
			WHEN type IN ('deposit', 'rent_received', 'deposit_refund') THEN amount
			ELSE -amount
		END), 0)
		FROM transactions
		WHERE user_id = $1 AND status = 'completed'
	`
	var sum int64
	err := r.db.QueryRow(ctx, query, userID).Scan(&sum)
	return sum, err
}

func (r *PostgresRepository) PendingDepositTotal(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1 AND type = 'deposit' AND status = 'pending'`
	var sum int64
	err := r.db.QueryRow(ctx, query, userID).Scan(&sum)
	return sum, err
}

func (r *PostgresRepository) CreateReconciliationConflict(ctx context.Context, c *domain.ReconciliationConflict) error {
	query := `
		INSERT INTO reconciliation_conflicts (id, transaction_id, on_chain_tx_hash, stored_status, vault_status, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query, c.ID, c.TransactionID, c.OnChainTxHash, c.StoredStatus, c.VaultStatus, c.Detail).Scan(&c.CreatedAt)
}

// --- Rent cycles ---

const rentCycleColumns = `id, contract_id, cycle_index, due_date, amount, status, paid_at, created_at, updated_at`

func scanRentCycle(row pgx.Row) (*domain.RentCycle, error) {
	var rc domain.RentCycle
	err := row.Scan(&rc.ID, &rc.ContractID, &rc.CycleIndex, &rc.DueDate, &rc.Amount, &rc.Status, &rc.PaidAt, &rc.CreatedAt, &rc.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRentCycleNotFound
		}
		return nil, err
	}
	return &rc, nil
}

func (r *PostgresRepository) CreateRentCycles(ctx context.Context, cycles []domain.RentCycle) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO rent_cycles (id, contract_id, cycle_index, due_date, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, c := range cycles {
		if _, err := tx.Exec(ctx, query, c.ID, c.ContractID, c.CycleIndex, c.DueDate, c.Amount, c.Status); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) FindRentCycleByID(ctx context.Context, id uuid.UUID) (*domain.RentCycle, error) {
	query := `SELECT ` + rentCycleColumns + ` FROM rent_cycles WHERE id = $1`
	return scanRentCycle(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) ListRentCyclesByContract(ctx context.Context, contractID uuid.UUID) ([]domain.RentCycle, error) {
	query := `SELECT ` + rentCycleColumns + ` FROM rent_cycles WHERE contract_id = $1 ORDER BY cycle_index ASC`
	rows, err := r.db.Query(ctx, query, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []domain.RentCycle
	for rows.Next() {
		rc, err := scanRentCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, *rc)
	}
	return cycles, rows.Err()
}

// MarkRentCyclesDue flips upcoming cycles on live contracts to due once the
// grace window opens. Cycles past a termination date are excluded so a
// terminated contract stops generating transitions.
func (r *PostgresRepository) MarkRentCyclesDue(ctx context.Context, now time.Time, grace time.Duration) (int64, error) {
	// now >= due_date - grace  <=>  due_date <= now + grace
	cutoff := now.Add(grace)
	query := `
		UPDATE rent_cycles rc
		SET status = 'due', updated_at = NOW()
		FROM contracts c
		WHERE rc.contract_id = c.id
		  AND rc.status = 'upcoming'
		  AND rc.due_date <= $1
		  AND (c.terminated = FALSE OR rc.due_date <= c.terminated_at)
	`
	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) MarkRentCyclesOverdue(ctx context.Context, now time.Time, grace time.Duration) ([]domain.RentCycle, error) {
	// now > due_date + grace  <=>  due_date < now - grace
	cutoff := now.Add(-grace)
	query := `
		UPDATE rent_cycles rc
		SET status = 'overdue', updated_at = NOW()
		FROM contracts c
		WHERE rc.contract_id = c.id
		  AND rc.status = 'due'
		  AND rc.paid_at IS NULL
		  AND rc.due_date < $1
		  AND (c.terminated = FALSE OR rc.due_date <= c.terminated_at)
		RETURNING rc.id, rc.contract_id, rc.cycle_index, rc.due_date, rc.amount, rc.status, rc.paid_at, rc.created_at, rc.updated_at
	`
	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []domain.RentCycle
	for rows.Next() {
		rc, err := scanRentCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, *rc)
	}
	return cycles, rows.Err()
}

func (r *PostgresRepository) ListAutoPayCandidates(ctx context.Context, from, to time.Time) ([]domain.RentCycle, error) {
	query := `
		SELECT ` + rentCycleColumns + `
		FROM rent_cycles rc
		JOIN contracts c ON c.id = rc.contract_id
		WHERE rc.status IN ('upcoming', 'due')
		  AND rc.paid_at IS NULL
		  AND rc.due_date >= $1 AND rc.due_date < $2
		  AND c.terminated = FALSE
		ORDER BY rc.due_date ASC
	`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []domain.RentCycle
	for rows.Next() {
		rc, err := scanRentCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, *rc)
	}
	return cycles, rows.Err()
}

// --- Termination holds ---

const holdColumns = `id, contract_id, initiator_role, initiated_at, hold_expires_at, deposit_amount, resolution, resolved_at, created_at, updated_at`

func scanHold(row pgx.Row) (*domain.TerminationHold, error) {
	var h domain.TerminationHold
	err := row.Scan(&h.ID, &h.ContractID, &h.InitiatorRole, &h.InitiatedAt, &h.HoldExpiresAt, &h.DepositAmount, &h.Resolution, &h.ResolvedAt, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrHoldNotFound
		}
		return nil, err
	}
	return &h, nil
}

func (r *PostgresRepository) CreateTerminationHold(ctx context.Context, h *domain.TerminationHold) error {
	query := `
		INSERT INTO termination_holds (id, contract_id, initiator_role, initiated_at, hold_expires_at, deposit_amount, resolution)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, h.ID, h.ContractID, h.InitiatorRole, h.InitiatedAt, h.HoldExpiresAt, h.DepositAmount, h.Resolution).Scan(&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrHoldExists
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) FindTerminationHoldByContract(ctx context.Context, contractID uuid.UUID) (*domain.TerminationHold, error) {
	query := `SELECT ` + holdColumns + ` FROM termination_holds WHERE contract_id = $1`
	return scanHold(r.db.QueryRow(ctx, query, contractID))
}

func (r *PostgresRepository) TransitionTerminationHold(ctx context.Context, holdID uuid.UUID, from, to string, at time.Time) (bool, error) {
	query := `
		UPDATE termination_holds
		SET resolution = $3, resolved_at = CASE WHEN $3 IN ('auto_refunded', 'resolved') THEN $4 ELSE resolved_at END, updated_at = NOW()
		WHERE id = $1 AND resolution = $2
	`
	tag, err := r.db.Exec(ctx, query, holdID, from, to, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) ListExpiredPendingHolds(ctx context.Context, now time.Time) ([]domain.TerminationHold, error) {
	query := `SELECT ` + holdColumns + ` FROM termination_holds WHERE resolution = 'pending' AND hold_expires_at <= $1 ORDER BY hold_expires_at ASC`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []domain.TerminationHold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, *h)
	}
	return holds, rows.Err()
}

// --- Visit requests ---

const visitColumns = `id, property_id, student_id, landlord_id, visit_type, visit_at, status, meet_link, rescheduled_to, rejection_reason, created_at, updated_at`

func scanVisit(row pgx.Row) (*domain.VisitRequest, error) {
	var v domain.VisitRequest
	err := row.Scan(&v.ID, &v.PropertyID, &v.StudentID, &v.LandlordID, &v.VisitType, &v.VisitAt, &v.Status, &v.MeetLink, &v.RescheduledTo, &v.RejectionReason, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrVisitNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *PostgresRepository) CreateVisitRequest(ctx context.Context, v *domain.VisitRequest) error {
	query := `
		INSERT INTO visit_requests (id, property_id, student_id, landlord_id, visit_type, visit_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query, v.ID, v.PropertyID, v.StudentID, v.LandlordID, v.VisitType, v.VisitAt, v.Status).Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (r *PostgresRepository) FindVisitRequestByID(ctx context.Context, id uuid.UUID) (*domain.VisitRequest, error) {
	query := `SELECT ` + visitColumns + ` FROM visit_requests WHERE id = $1`
	return scanVisit(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) ListVisitRequestsByLandlord(ctx context.Context, landlordID uuid.UUID) ([]domain.VisitRequest, error) {
	query := `SELECT ` + visitColumns + ` FROM visit_requests WHERE landlord_id = $1 ORDER BY visit_at ASC`
	rows, err := r.db.Query(ctx, query, landlordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visits []domain.VisitRequest
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, *v)
	}
	return visits, rows.Err()
}

func (r *PostgresRepository) ConfirmVisit(ctx context.Context, id uuid.UUID, meetLink *string) (bool, error) {
	query := `
		UPDATE visit_requests
		SET status = 'confirmed', meet_link = COALESCE($2, meet_link), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, id, meetLink)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) RescheduleVisit(ctx context.Context, id uuid.UUID, newTime time.Time) (bool, error) {
	query := `
		UPDATE visit_requests
		SET status = 'rescheduled', rescheduled_to = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'confirmed', 'rescheduled')
	`
	tag, err := r.db.Exec(ctx, query, id, newTime)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) RejectVisit(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	query := `
		UPDATE visit_requests
		SET status = 'rejected', rejection_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, id, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) ListVisitsDueCompletion(ctx context.Context, now time.Time) ([]domain.VisitRequest, error) {
	query := `
		SELECT ` + visitColumns + `
		FROM visit_requests
		WHERE status IN ('confirmed', 'rescheduled')
		  AND COALESCE(rescheduled_to, visit_at) < $1
		ORDER BY visit_at ASC
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visits []domain.VisitRequest
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, *v)
	}
	return visits, rows.Err()
}

func (r *PostgresRepository) MarkVisitCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE visit_requests
		SET status = 'completed', updated_at = NOW()
		WHERE id = $1 AND status IN ('confirmed', 'rescheduled')
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
