/**
 * @description
 * Domain model for rent cycles: one billing month of a signed lease. The
 * whole batch is generated when a contract becomes fully signed, and each
 * cycle is mutated only by payment confirmation and the daily due-date sweep.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Rent cycle statuses.
const (
	RentCycleUpcoming = "upcoming"
	RentCycleDue      = "due"
	RentCyclePaid     = "paid"
	RentCycleOverdue  = "overdue"
)

// RentCycle is one lease month. CycleIndex is 1-based;
// dueDate[i] = leaseStart + i months.
type RentCycle struct {
	ID         uuid.UUID  `json:"id"`
	ContractID uuid.UUID  `json:"contract_id"`
	CycleIndex int        `json:"cycle_index"`
	DueDate    time.Time  `json:"due_date"`
	Amount     int64      `json:"amount"` // in cents
	Status     string     `json:"status"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
