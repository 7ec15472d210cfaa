/**
 * @description
 * This file contains the core service type for the tenancy lifecycle. The
 * `Service` struct orchestrates the join-request state machine, the contract
 * dual-signature protocol, the escrow ledger, and the rent-cycle and
 * termination timers, coordinating between the database repository, the
 * on-chain vault watcher, the property/user directory, and the message
 * broker.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/vaultclient, pkg/directoryclient, pkg/rabbitmq: External collaborators.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rentmates/tenancy-service/internal/domain"
	"github.com/rentmates/tenancy-service/internal/store"
	"github.com/rentmates/tenancy-service/pkg/directoryclient"
	"github.com/rentmates/tenancy-service/pkg/rabbitmq"
	"github.com/rentmates/tenancy-service/pkg/vaultclient"
)

// VaultClient is the slice of the vault watcher API the service needs.
type VaultClient interface {
	GetTxStatus(ctx context.Context, hash string) (*vaultclient.TxStatusResponse, error)
	SubmitWithdrawal(ctx context.Context, toAddress string, amount int64) (*vaultclient.WithdrawalResponse, error)
}

// DirectoryClient is the read-only property/user directory interface.
type DirectoryClient interface {
	GetProperty(ctx context.Context, id uuid.UUID) (*directoryclient.Property, error)
	GetUser(ctx context.Context, id uuid.UUID) (*directoryclient.User, error)
}

// Policy holds the lifecycle tunables that are configuration, not contract:
// poll/backoff parameters, grace windows, and the hold period.
type Policy struct {
	DepositMonths        int           // security deposit as a multiple of monthly rent
	RentGraceWindow      time.Duration // around each due date for due/overdue sweeps
	TerminationHold      time.Duration // deposit freeze after termination
	AutoPayLeadTime      time.Duration // how far before the due date auto-pay runs
	MaxReconcileAttempts int           // vault poll failures before a withdraw is reverted
	ReconcileBatchLimit  int
}

// DefaultPolicy mirrors the production defaults: two months deposit, three
// days of grace, a 60-day termination hold.
func DefaultPolicy() Policy {
	return Policy{
		DepositMonths:        2,
		RentGraceWindow:      72 * time.Hour,
		TerminationHold:      60 * 24 * time.Hour,
		AutoPayLeadTime:      24 * time.Hour,
		MaxReconcileAttempts: 10,
		ReconcileBatchLimit:  100,
	}
}

// Service provides the core business logic for the tenancy lifecycle.
type Service struct {
	repo      store.Repository
	vault     VaultClient
	directory DirectoryClient
	events    rabbitmq.Publisher
	policy    Policy
}

// NewService creates a new lifecycle service instance.
func NewService(repo store.Repository, vault VaultClient, directory DirectoryClient, events rabbitmq.Publisher, policy Policy) *Service {
	if policy.ReconcileBatchLimit <= 0 {
		policy.ReconcileBatchLimit = 100
	}
	if policy.MaxReconcileAttempts <= 0 {
		policy.MaxReconcileAttempts = 10
	}
	return &Service{
		repo:      repo,
		vault:     vault,
		directory: directory,
		events:    events,
		policy:    policy,
	}
}

// notify publishes a lifecycle event. Publishing is best-effort: the state
// transition has already committed, so a broker failure is logged and
// swallowed rather than unwinding the transition.
func (s *Service) notify(ctx context.Context, routingKey string, userID uuid.UUID, entityType string, entityID uuid.UUID, status string, amount *int64) {
	if s.events == nil {
		return
	}
	event := domain.LifecycleEvent{
		UserID:     userID,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     status,
		Amount:     amount,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, domain.LifecycleExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"event publish failed\" routing_key=%s entity_id=%s err=%v", routingKey, entityID, err)
	}
}
