/**
 * @description
 * Domain model for property visit requests. Visits are independent of the
 * join-request lifecycle and carry no financial coupling.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Visit types.
const (
	VisitPhysical = "physical"
	VisitVirtual  = "virtual"
)

// Visit statuses.
const (
	VisitPending     = "pending"
	VisitConfirmed   = "confirmed"
	VisitRescheduled = "rescheduled"
	VisitRejected    = "rejected"
	VisitCompleted   = "completed"
)

// VisitRequest is a student's request to view a property, physically or over
// a meet link.
type VisitRequest struct {
	ID              uuid.UUID  `json:"id"`
	PropertyID      uuid.UUID  `json:"property_id"`
	StudentID       uuid.UUID  `json:"student_id"`
	LandlordID      uuid.UUID  `json:"landlord_id"`
	VisitType       string     `json:"visit_type"`
	VisitAt         time.Time  `json:"visit_at"`
	Status          string     `json:"status"`
	MeetLink        *string    `json:"meet_link,omitempty"` // virtual only
	RescheduledTo   *time.Time `json:"rescheduled_to,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// EffectiveVisitAt is the time the visit is actually expected to happen,
// accounting for a reschedule.
func (v *VisitRequest) EffectiveVisitAt() time.Time {
	if v.RescheduledTo != nil {
		return *v.RescheduledTo
	}
	return v.VisitAt
}

// RequestVisitPayload is the DTO for the student-facing visit request.
type RequestVisitPayload struct {
	PropertyID uuid.UUID `json:"property_id"`
	VisitType  string    `json:"visit_type"`
	VisitAt    time.Time `json:"visit_at"`
}

// ConfirmVisitPayload carries the meet link required for virtual visits.
type ConfirmVisitPayload struct {
	MeetLink *string `json:"meet_link,omitempty"`
}

// RescheduleVisitPayload moves the visit to a new time.
type RescheduleVisitPayload struct {
	VisitAt time.Time `json:"visit_at"`
}
