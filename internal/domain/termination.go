/**
 * @description
 * Domain model for lease termination and the security-deposit hold. A
 * termination freezes the deposit for a hold period; if the landlord neither
 * releases nor disputes before the hold expires, the deposit auto-refunds to
 * the tenant.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Termination hold resolutions.
const (
	HoldPending      = "pending"
	HoldAutoRefunded = "auto_refunded"
	HoldDisputed     = "disputed"
	HoldResolved     = "resolved"
)

// TerminationHold is the waiting period after a termination request during
// which the security deposit stays frozen.
type TerminationHold struct {
	ID            uuid.UUID `json:"id"`
	ContractID    uuid.UUID `json:"contract_id"`
	InitiatorRole string    `json:"initiator_role"`
	InitiatedAt   time.Time `json:"initiated_at"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
	DepositAmount int64     `json:"deposit_amount"` // in cents
	Resolution    string    `json:"resolution"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ResolveTerminationPayload is used by the landlord release and by the
// external dispute actor. Resolution must be one of `resolved` or `disputed`,
// or `pending` to clear a dispute back into the auto-refund path.
type ResolveTerminationPayload struct {
	Resolution string `json:"resolution"`
}
