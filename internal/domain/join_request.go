/**
 * @description
 * This file defines the domain models for the join-request side of the tenancy
 * lifecycle: a student's bid on a property and the audit trail of everything
 * that happens to it. These structs map directly to the `join_requests` and
 * `join_request_events` tables.
 *
 * @notes
 * - Monetary amounts are stored as `int64` in the smallest currency unit
 *   (cents), which avoids floating-point inaccuracies with financial data.
 * - Join requests are never deleted; every status change appends a row to
 *   `join_request_events` so the history can be replayed for audit.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Join request statuses as stored in the database.
const (
	JoinRequestPending   = "pending"
	JoinRequestApproved  = "approved"
	JoinRequestRejected  = "rejected"
	JoinRequestCompleted = "completed"

	// JoinRequestWaitingCompletion is a derived, display-only status. It is
	// never written to the `status` column: a request reads `approved` in
	// storage until both contract signatures land. See DisplayStatus.
	JoinRequestWaitingCompletion = "waiting_completion"
)

// JoinRequest represents a student's bid to rent a property. It is created by
// the student and mutated only by landlord approval/rejection and by contract
// completion events.
type JoinRequest struct {
	ID                  uuid.UUID  `json:"id"`
	PropertyID          uuid.UUID  `json:"property_id"`
	StudentID           uuid.UUID  `json:"student_id"`
	LandlordID          uuid.UUID  `json:"landlord_id"`
	BidAmount           int64      `json:"bid_amount"` // monthly rent bid, in cents
	LeaseDurationMonths int        `json:"lease_duration_months"`
	MoveInDate          time.Time  `json:"move_in_date"`
	Message             *string    `json:"message,omitempty"`
	Status              string     `json:"status"`
	DisplayStatus       string     `json:"display_status,omitempty"`
	RejectionReason     *string    `json:"rejection_reason,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	ContractID          *uuid.UUID `json:"contract_id,omitempty"`
}

// JoinRequestEvent is one row of the append-only status history.
type JoinRequestEvent struct {
	ID            uuid.UUID `json:"id"`
	JoinRequestID uuid.UUID `json:"join_request_id"`
	FromStatus    string    `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	ActorID       uuid.UUID `json:"actor_id"`
	Note          *string   `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SubmitJoinRequestPayload is the DTO for the student-facing submit endpoint.
type SubmitJoinRequestPayload struct {
	PropertyID          uuid.UUID `json:"property_id"`
	BidAmount           int64     `json:"bid_amount"` // in cents
	LeaseDurationMonths int       `json:"lease_duration_months"`
	MoveInDate          time.Time `json:"move_in_date"`
	Message             *string   `json:"message,omitempty"`
}

// RejectJoinRequestPayload carries the landlord's rejection reason.
type RejectJoinRequestPayload struct {
	Reason string `json:"reason"`
}
