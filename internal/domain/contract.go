/**
 * @description
 * Domain models for the tenancy contract and its dual-signature protocol.
 * A Contract is materialized 1:1 from an approved join request with the
 * financial terms snapshotted at approval time; the snapshot freezes for good
 * once both parties have signed.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Signing parties.
const (
	RoleStudent  = "student"
	RoleLandlord = "landlord"
)

// Signature records one party's signature on a contract. SignatureRef is the
// on-chain reference (transaction hash) handed back by the party's wallet.
type Signature struct {
	Signed       bool       `json:"signed"`
	SignedAt     *time.Time `json:"signed_at,omitempty"`
	SignatureRef *string    `json:"signature_ref,omitempty"`
}

// ContractTerms is the immutable financial snapshot copied from the join
// request and the property directory when the landlord approves.
type ContractTerms struct {
	MonthlyRent         int64     `json:"monthly_rent"`     // in cents
	SecurityDeposit     int64     `json:"security_deposit"` // in cents
	RentDueDay          int       `json:"rent_due_day"`     // day of month, 1-28
	LeaseStart          time.Time `json:"lease_start"`
	LeaseEnd            time.Time `json:"lease_end"`
	LeaseDurationMonths int       `json:"lease_duration_months"`
	PropertyTitle       string    `json:"property_title"`
	PropertyAddress     string    `json:"property_address"`
}

// Contract is the two-party agreement derived from an approved join request.
// It is retained for audit after the lease ends; there is no delete path.
type Contract struct {
	ID                uuid.UUID     `json:"id"`
	JoinRequestID     uuid.UUID     `json:"join_request_id"`
	PropertyID        uuid.UUID     `json:"property_id"`
	StudentID         uuid.UUID     `json:"student_id"`
	LandlordID        uuid.UUID     `json:"landlord_id"`
	Terms             ContractTerms `json:"terms"`
	StudentSignature  Signature     `json:"student_signature"`
	LandlordSignature Signature     `json:"landlord_signature"`
	Terminated        bool          `json:"terminated"`
	TerminatedAt      *time.Time    `json:"terminated_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// FullySigned reports whether both parties have signed.
func (c *Contract) FullySigned() bool {
	return c.StudentSignature.Signed && c.LandlordSignature.Signed
}

// SignContractPayload is the DTO for the signing endpoint. The signature
// reference must already exist (the wallet interaction happens before this
// call), so an abandoned signing dialog never reaches the coordinator.
type SignContractPayload struct {
	SignatureRef string `json:"signature_ref"`
}

// AmendContractTermsPayload lets the landlord adjust terms while the contract
// is still unsigned or half-signed. Rejected once both signatures are present.
type AmendContractTermsPayload struct {
	MonthlyRent     *int64 `json:"monthly_rent,omitempty"`
	SecurityDeposit *int64 `json:"security_deposit,omitempty"`
	RentDueDay      *int   `json:"rent_due_day,omitempty"`
}
