/**
 * @description
 * The on-chain reconciliation loop. Every pending transaction that carries a
 * hash is polled against the vault watcher and settled: confirmed deposits
 * credit, confirmed withdrawals finalize, failed movements unwind. A watcher
 * answer that contradicts local state is never auto-resolved; it lands in the
 * conflict queue for an operator.
 *
 * Deposits wait indefinitely (the funds either arrive or the watcher reports
 * failure); withdrawals that stay unanswered past the attempt cap are reverted
 * so the pessimistic debit does not strand funds forever.
 */

package app

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/rentmates/tenancy-service/internal/domain"
	"github.com/rentmates/tenancy-service/pkg/vaultclient"
)

// ReconcileSummary reports one sweep of the reconciler.
type ReconcileSummary struct {
	Polled     int
	Confirmed  int
	Failed     int
	Reverted   int
	Conflicts  int
	PollErrors int
}

// ReconcilePendingTransactions polls every pending on-chain transaction once.
// Watcher unavailability only bumps the attempt counter; state changes happen
// solely on a definitive watcher answer or on the withdraw attempt cap.
func (s *Service) ReconcilePendingTransactions(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary

	pending, err := s.repo.ListPendingOnChainTransactions(ctx, s.policy.ReconcileBatchLimit)
	if err != nil {
		return summary, fmt.Errorf("failed to list pending transactions: %w", err)
	}

	for i := range pending {
		tx := &pending[i]
		summary.Polled++

		status, err := s.vault.GetTxStatus(ctx, *tx.OnChainTxHash)
		if err != nil {
			summary.PollErrors++
			s.handlePollFailure(ctx, tx, err, &summary)
			continue
		}

		switch status.Data.Status {
		case vaultclient.TxStatusConfirmed:
			if err := s.settleConfirmed(ctx, tx); err != nil {
				log.Printf("level=error component=reconciler msg=\"failed to settle confirmed transaction\" tx_id=%s err=%v", tx.ID, err)
				continue
			}
			summary.Confirmed++
		case vaultclient.TxStatusFailed:
			if err := s.settleFailed(ctx, tx); err != nil {
				log.Printf("level=error component=reconciler msg=\"failed to settle failed transaction\" tx_id=%s err=%v", tx.ID, err)
				continue
			}
			summary.Failed++
		case vaultclient.TxStatusPending:
			// Still in flight; leave it for the next sweep.
		default:
			summary.Conflicts++
			s.recordConflict(ctx, tx, status.Data.Status, "watcher reported an unrecognized status")
		}
	}

	if summary.Polled > 0 {
		log.Printf("level=info component=reconciler msg=\"sweep complete\" polled=%d confirmed=%d failed=%d reverted=%d conflicts=%d poll_errors=%d",
			summary.Polled, summary.Confirmed, summary.Failed, summary.Reverted, summary.Conflicts, summary.PollErrors)
	}
	return summary, nil
}

func (s *Service) settleConfirmed(ctx context.Context, tx *domain.Transaction) error {
	switch tx.Type {
	case domain.TxDeposit:
		_, err := s.ConfirmDeposit(ctx, *tx.OnChainTxHash)
		return err
	case domain.TxWithdraw:
		applied, err := s.repo.CompleteWithdrawal(ctx, tx.ID)
		if err != nil {
			return err
		}
		if applied {
			s.notify(ctx, domain.EventWithdrawCompleted, tx.UserID, "transaction", tx.ID, domain.TxCompleted, &tx.Amount)
		}
		return nil
	}
	s.recordConflict(ctx, tx, vaultclient.TxStatusConfirmed, "confirmed status for a non on-chain transaction type")
	return nil
}

func (s *Service) settleFailed(ctx context.Context, tx *domain.Transaction) error {
	switch tx.Type {
	case domain.TxDeposit:
		return s.FailDeposit(ctx, *tx.OnChainTxHash, "on-chain transaction failed")
	case domain.TxWithdraw:
		applied, err := s.repo.FailWithdrawalAndRefund(ctx, tx.ID, "on-chain transaction failed")
		if err != nil {
			return err
		}
		if applied {
			s.notify(ctx, domain.EventWithdrawFailed, tx.UserID, "transaction", tx.ID, domain.TxFailed, &tx.Amount)
		}
		return nil
	}
	s.recordConflict(ctx, tx, vaultclient.TxStatusFailed, "failed status for a non on-chain transaction type")
	return nil
}

// handlePollFailure bumps the attempt counter and, for withdrawals that hit
// the cap, reverts the pessimistic debit. Deposits never auto-revert: no
// balance was touched and the funds may still land.
func (s *Service) handlePollFailure(ctx context.Context, tx *domain.Transaction, pollErr error, summary *ReconcileSummary) {
	attempts, err := s.repo.IncrementReconcileAttempts(ctx, tx.ID)
	if err != nil {
		log.Printf("level=error component=reconciler msg=\"failed to bump reconcile attempts\" tx_id=%s err=%v", tx.ID, err)
		return
	}
	log.Printf("level=warn component=reconciler msg=\"watcher poll failed\" tx_id=%s type=%s attempts=%d err=%v", tx.ID, tx.Type, attempts, pollErr)

	if tx.Type != domain.TxWithdraw || attempts < s.policy.MaxReconcileAttempts {
		return
	}

	applied, err := s.repo.FailWithdrawalAndRefund(ctx, tx.ID, fmt.Sprintf("reverted after %d reconcile attempts", attempts))
	if err != nil {
		log.Printf("level=error component=reconciler msg=\"CRITICAL: attempt-capped withdrawal revert failed\" tx_id=%s err=%v", tx.ID, err)
		return
	}
	if applied {
		summary.Reverted++
		s.notify(ctx, domain.EventWithdrawFailed, tx.UserID, "transaction", tx.ID, domain.TxFailed, &tx.Amount)
		log.Printf("level=warn component=reconciler msg=\"withdrawal reverted at attempt cap\" tx_id=%s attempts=%d", tx.ID, attempts)
	}
}

func (s *Service) recordConflict(ctx context.Context, tx *domain.Transaction, vaultStatus, detail string) {
	conflict := &domain.ReconciliationConflict{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		OnChainTxHash: *tx.OnChainTxHash,
		StoredStatus:  tx.Status,
		VaultStatus:   vaultStatus,
		Detail:        detail,
	}
	if err := s.repo.CreateReconciliationConflict(ctx, conflict); err != nil {
		log.Printf("level=error component=reconciler msg=\"failed to record reconciliation conflict\" tx_id=%s err=%v", tx.ID, err)
		return
	}
	log.Printf("level=error component=reconciler msg=\"reconciliation conflict queued for operator\" tx_id=%s stored=%s vault=%s", tx.ID, tx.Status, vaultStatus)
}
