/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/rentmates/tenancy-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.RentSweepSchedule, s.jobs.SweepRentCycles); err != nil {
		s.logger.Error("failed to schedule rent cycle sweep", "error", err)
	} else {
		s.logger.Info("scheduled rent cycle sweep", "schedule", s.config.RentSweepSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.AutoPaySchedule, s.jobs.AutoPayRent); err != nil {
		s.logger.Error("failed to schedule rent auto-pay", "error", err)
	} else {
		s.logger.Info("scheduled rent auto-pay", "schedule", s.config.AutoPaySchedule)
	}

	if _, err := s.cron.AddFunc(s.config.ReconcileSchedule, s.jobs.ReconcileOnChain); err != nil {
		s.logger.Error("failed to schedule on-chain reconciliation", "error", err)
	} else {
		s.logger.Info("scheduled on-chain reconciliation", "schedule", s.config.ReconcileSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.TerminationSweepSchedule, s.jobs.SweepTerminationHolds); err != nil {
		s.logger.Error("failed to schedule termination hold sweep", "error", err)
	} else {
		s.logger.Info("scheduled termination hold sweep", "schedule", s.config.TerminationSweepSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.VisitSweepSchedule, s.jobs.SweepCompletedVisits); err != nil {
		s.logger.Error("failed to schedule visit completion sweep", "error", err)
	} else {
		s.logger.Info("scheduled visit completion sweep", "schedule", s.config.VisitSweepSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
