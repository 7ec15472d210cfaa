/**
 * @description
 * Event payloads published to RabbitMQ on lifecycle transitions. The
 * notification-service consumes these; this service only publishes.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Exchange and routing keys for lifecycle events.
const (
	LifecycleExchange = "rentmates.events"

	EventJoinRequestSubmitted = "join_request.submitted"
	EventJoinRequestApproved  = "join_request.approved"
	EventJoinRequestRejected  = "join_request.rejected"
	EventJoinRequestCompleted = "join_request.completed"
	EventContractSigned       = "contract.signed"
	EventContractCompleted    = "contract.completed"
	EventDepositConfirmed     = "wallet.deposit.confirmed"
	EventDepositFailed        = "wallet.deposit.failed"
	EventWithdrawCompleted    = "wallet.withdraw.completed"
	EventWithdrawFailed       = "wallet.withdraw.failed"
	EventRentCyclePaid        = "rent.cycle.paid"
	EventRentCycleOverdue     = "rent.cycle.overdue"
	EventTerminationInitiated = "termination.initiated"
	EventTerminationResolved  = "termination.resolved"
	EventVisitUpdated         = "visit.updated"
)

// LifecycleEvent is the generic payload for every transition notification.
// EntityType/EntityID identify the record that changed; UserID is the party
// the notification is addressed to.
type LifecycleEvent struct {
	UserID     uuid.UUID      `json:"user_id"`
	EntityType string         `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	Status     string         `json:"status"`
	Amount     *int64         `json:"amount,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
