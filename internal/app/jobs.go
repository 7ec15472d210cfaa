/**
 * @description
 * Scheduled job implementations: the rent due/overdue sweep, auto-pay, the
 * on-chain reconciler, the termination-hold auto-refund, and the visit
 * completion sweep. Each job is a thin wrapper over the service, logging a
 * start/finish pair the way all the background workers here do.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	service *Service
	logger  *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(service *Service, logger *slog.Logger) *Jobs {
	return &Jobs{
		service: service,
		logger:  logger,
	}
}

// SweepRentCycles flips upcoming cycles to due and unpaid due cycles to
// overdue.
func (j *Jobs) SweepRentCycles() {
	j.logger.Info("starting rent cycle sweep job")
	ctx := context.Background()

	due, overdue, err := j.service.SweepRentCycles(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("rent cycle sweep failed", "error", err)
		return
	}

	j.logger.Info("rent cycle sweep job finished", "marked_due", due, "marked_overdue", overdue)
}

// AutoPayRent settles cycles coming due within the lead window from tenant
// balances.
func (j *Jobs) AutoPayRent() {
	j.logger.Info("starting rent auto-pay job")
	ctx := context.Background()

	paid, skipped, err := j.service.AutoPayDueRent(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("rent auto-pay failed", "error", err)
		return
	}

	j.logger.Info("rent auto-pay job finished", "paid", paid, "skipped", skipped)
}

// ReconcileOnChain polls the vault watcher for every pending on-chain
// transaction.
func (j *Jobs) ReconcileOnChain() {
	ctx := context.Background()

	summary, err := j.service.ReconcilePendingTransactions(ctx)
	if err != nil {
		j.logger.Error("on-chain reconciliation failed", "error", err)
		return
	}

	if summary.Polled > 0 {
		j.logger.Info("on-chain reconciliation finished",
			"polled", summary.Polled,
			"confirmed", summary.Confirmed,
			"failed", summary.Failed,
			"reverted", summary.Reverted,
			"conflicts", summary.Conflicts,
			"poll_errors", summary.PollErrors)
	}
}

// SweepTerminationHolds auto-refunds expired pending deposit holds.
func (j *Jobs) SweepTerminationHolds() {
	j.logger.Info("starting termination hold sweep job")
	ctx := context.Background()

	refunded, err := j.service.SweepTerminationHolds(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("termination hold sweep failed", "error", err)
		return
	}

	j.logger.Info("termination hold sweep job finished", "refunded", refunded)
}

// SweepCompletedVisits marks past confirmed visits completed.
func (j *Jobs) SweepCompletedVisits() {
	ctx := context.Background()

	completed, err := j.service.SweepCompletedVisits(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("visit completion sweep failed", "error", err)
		return
	}

	if completed > 0 {
		j.logger.Info("visit completion sweep finished", "completed", completed)
	}
}
