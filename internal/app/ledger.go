/**
 * @description
 * The off-chain escrow ledger: wallet connection, deposit recording and
 * confirmation, withdrawals, and balance reads. Deposits are recorded as
 * pending after the client has already moved funds on-chain; the reconciler
 * (or an explicit confirm call) flips them to completed. Withdrawals debit
 * pessimistically before touching the vault and refund on failure.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rentmates/tenancy-service/internal/domain"
	"github.com/rentmates/tenancy-service/internal/store"
)

var walletAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ErrInvalidWalletAddress means the submitted address is not a valid
// 0x-prefixed 40-hex-digit address.
var ErrInvalidWalletAddress = errors.New("wallet address must be a 0x-prefixed 40 hex digit address")

// ErrInvalidAmount means a non-positive ledger amount.
var ErrInvalidAmount = errors.New("amount must be positive")

// ConnectWallet links an on-chain address to the caller's ledger account,
// creating the account on first touch.
func (s *Service) ConnectWallet(ctx context.Context, userID uuid.UUID, payload domain.ConnectWalletPayload) (*domain.WalletAccount, error) {
	if !walletAddressPattern.MatchString(payload.WalletAddress) {
		return nil, ErrInvalidWalletAddress
	}
	if _, err := s.repo.GetOrCreateWalletAccount(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.repo.SetWalletAddress(ctx, userID, payload.WalletAddress); err != nil {
		return nil, err
	}
	return s.repo.FindWalletAccountByUserID(ctx, userID)
}

// RecordDeposit inserts the pending ledger row for a deposit the client has
// already submitted on-chain. The balance is untouched until confirmation; a
// duplicate hash surfaces as the existing row, not a second pending deposit.
func (s *Service) RecordDeposit(ctx context.Context, userID uuid.UUID, payload domain.RecordDepositPayload) (*domain.Transaction, error) {
	if payload.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if payload.OnChainTxHash == "" {
		return nil, errors.New("on-chain transaction hash is required")
	}

	if existing, err := s.repo.FindTransactionByHash(ctx, payload.OnChainTxHash); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, err
	}

	account, err := s.repo.GetOrCreateWalletAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	hash := payload.OnChainTxHash
	tx := &domain.Transaction{
		ID:              uuid.New(),
		WalletAccountID: account.ID,
		UserID:          userID,
		Type:            domain.TxDeposit,
		Amount:          payload.Amount,
		Status:          domain.TxPending,
		OnChainTxHash:   &hash,
		Description:     "Vault deposit",
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// ConfirmDeposit flips a pending deposit to completed and credits the balance.
// Safe to call any number of times for the same hash: the `pending` guard in
// the repository makes every call after the first a no-op.
func (s *Service) ConfirmDeposit(ctx context.Context, onChainTxHash string) (*domain.Transaction, error) {
	tx, applied, err := s.repo.ConfirmDeposit(ctx, onChainTxHash)
	if err != nil {
		return nil, err
	}
	if applied {
		s.notify(ctx, domain.EventDepositConfirmed, tx.UserID, "transaction", tx.ID, tx.Status, &tx.Amount)
	}
	return tx, nil
}

// FailDeposit marks a pending deposit as failed. The balance was never
// credited, so there is nothing to unwind.
func (s *Service) FailDeposit(ctx context.Context, onChainTxHash string, reason string) error {
	applied, err := s.repo.FailDeposit(ctx, onChainTxHash, reason)
	if err != nil {
		return err
	}
	if applied {
		if tx, err := s.repo.FindTransactionByHash(ctx, onChainTxHash); err == nil {
			s.notify(ctx, domain.EventDepositFailed, tx.UserID, "transaction", tx.ID, tx.Status, &tx.Amount)
		}
	}
	return nil
}

// Withdraw moves funds from the ledger back to the user's connected address.
// The debit happens first, atomically with the funds check; the vault call
// follows, and a synchronous vault rejection refunds immediately. A vault
// acceptance leaves the row pending with its hash for the reconciler.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, payload domain.WithdrawPayload) (*domain.Transaction, error) {
	if payload.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.repo.FindWalletAccountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account.OnChainAddress == nil {
		return nil, ErrWalletNotConnected
	}

	tx := &domain.Transaction{
		ID:              uuid.New(),
		WalletAccountID: account.ID,
		UserID:          userID,
		Type:            domain.TxWithdraw,
		Amount:          payload.Amount,
		Status:          domain.TxPending,
		Description:     fmt.Sprintf("Withdrawal to %s", *account.OnChainAddress),
	}
	if err := s.repo.CreateWithdrawal(ctx, tx); err != nil {
		return nil, err
	}

	resp, err := s.vault.SubmitWithdrawal(ctx, *account.OnChainAddress, payload.Amount)
	if err != nil {
		// Synchronous rejection: compensate the pessimistic debit.
		if _, refundErr := s.repo.FailWithdrawalAndRefund(ctx, tx.ID, fmt.Sprintf("vault rejected withdrawal: %v", err)); refundErr != nil {
			log.Printf("level=error component=service flow=ledger msg=\"CRITICAL: withdrawal failed and refund failed; funds debited without submission\" tx_id=%s err=%v", tx.ID, refundErr)
		}
		return nil, fmt.Errorf("vault rejected withdrawal: %w", err)
	}

	if err := s.repo.SetTransactionHash(ctx, tx.ID, resp.Data.Hash); err != nil {
		// The vault accepted it; the reconciler can no longer match the row
		// by hash. Flagged for the operator rather than refunded, since the
		// funds may genuinely move on-chain.
		log.Printf("level=error component=service flow=ledger msg=\"CRITICAL: withdrawal submitted but hash not recorded\" tx_id=%s hash=%s err=%v", tx.ID, resp.Data.Hash, err)
		return nil, fmt.Errorf("withdrawal submitted but hash not recorded: %w", err)
	}
	hash := resp.Data.Hash
	tx.OnChainTxHash = &hash
	return tx, nil
}

// GetBalance returns the ledger-confirmed spendable balance plus the total of
// deposits still awaiting on-chain confirmation.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*domain.WalletBalanceResponse, error) {
	account, err := s.repo.GetOrCreateWalletAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending, err := s.repo.PendingDepositTotal(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.WalletBalanceResponse{
		WalletAddress:   account.OnChainAddress,
		OffChainBalance: account.OffChainBalance,
		PendingDeposits: pending,
	}, nil
}

// ListTransactions returns the caller's ledger history, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactionsByUser(ctx, userID, limit, offset)
}

// CheckLedgerConsistency recomputes the balance from completed transaction
// deltas and compares it with the stored balance. Used by the audit endpoint
// and the nightly consistency job; a mismatch is reported, never repaired.
func (s *Service) CheckLedgerConsistency(ctx context.Context, userID uuid.UUID) (stored, computed int64, err error) {
	account, err := s.repo.FindWalletAccountByUserID(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	computed, err = s.repo.SumCompletedTransactionDeltas(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	if account.OffChainBalance != computed {
		log.Printf("level=error component=service flow=ledger msg=\"CRITICAL: ledger balance mismatch\" user_id=%s stored=%d computed=%d at=%s",
			userID, account.OffChainBalance, computed, time.Now().UTC().Format(time.RFC3339))
	}
	return account.OffChainBalance, computed, nil
}
