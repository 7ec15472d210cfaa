/**
 * @description
 * The join-request state machine: pending -> approved -> completed, or
 * pending -> rejected. Approval synchronously materializes the contract with
 * a frozen terms snapshot; completion is driven by the contract coordinator
 * once both signatures land.
 *
 * Approving one request deliberately does NOT auto-reject competing requests
 * on the same property: the landlord picks manually per request.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/rentmates/tenancy-service/internal/domain"
	"github.com/rentmates/tenancy-service/internal/store"
	"github.com/rentmates/tenancy-service/pkg/directoryclient"
)

// SubmitJoinRequest creates a new pending bid from a student. At most one
// non-rejected request per (student, property) pair may be active; the
// repository enforces that and reports store.ErrDuplicateRequest.
func (s *Service) SubmitJoinRequest(ctx context.Context, studentID uuid.UUID, payload domain.SubmitJoinRequestPayload) (*domain.JoinRequest, error) {
	if payload.BidAmount <= 0 {
		return nil, ErrInvalidBid
	}
	if payload.LeaseDurationMonths <= 0 {
		return nil, fmt.Errorf("%w: lease duration must be at least one month", ErrInvalidBid)
	}

	property, err := s.directory.GetProperty(ctx, payload.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve property: %w", err)
	}

	jr := &domain.JoinRequest{
		ID:                  uuid.New(),
		PropertyID:          payload.PropertyID,
		StudentID:           studentID,
		LandlordID:          property.LandlordID,
		BidAmount:           payload.BidAmount,
		LeaseDurationMonths: payload.LeaseDurationMonths,
		MoveInDate:          payload.MoveInDate,
		Message:             payload.Message,
		Status:              domain.JoinRequestPending,
	}
	if err := s.repo.CreateJoinRequest(ctx, jr); err != nil {
		return nil, err
	}

	s.notify(ctx, domain.EventJoinRequestSubmitted, property.LandlordID, "join_request", jr.ID, jr.Status, &jr.BidAmount)
	jr.DisplayStatus = jr.Status
	return jr, nil
}

// ApproveJoinRequest transitions pending -> approved and synchronously
// creates the contract with terms frozen from the current request and
// property data. A concurrent approve/reject race resolves to whichever
// transition lands first; the loser gets ErrInvalidTransition.
func (s *Service) ApproveJoinRequest(ctx context.Context, landlordID uuid.UUID, joinRequestID uuid.UUID) (*domain.JoinRequest, *domain.Contract, error) {
	jr, err := s.repo.FindJoinRequestByID(ctx, joinRequestID)
	if err != nil {
		return nil, nil, err
	}
	if jr.LandlordID != landlordID {
		return nil, nil, ErrForbidden
	}
	if jr.Status != domain.JoinRequestPending {
		return nil, nil, ErrInvalidTransition
	}

	property, err := s.directory.GetProperty(ctx, jr.PropertyID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to snapshot property terms: %w", err)
	}
	if property.LandlordID != landlordID {
		return nil, nil, ErrForbidden
	}

	contract := s.buildContract(jr, property)
	if err := s.repo.CreateContract(ctx, contract); err != nil {
		return nil, nil, fmt.Errorf("failed to create contract: %w", err)
	}

	applied, err := s.repo.TransitionJoinRequest(ctx, jr.ID, domain.JoinRequestPending, domain.JoinRequestApproved, landlordID, nil, &contract.ID)
	if err != nil {
		return nil, nil, err
	}
	if !applied {
		// Lost the race to a concurrent reject; the contract row is orphaned
		// and unreachable (the request never links it).
		log.Printf("level=warn component=service flow=join_request msg=\"approve lost transition race; contract orphaned\" join_request_id=%s contract_id=%s", jr.ID, contract.ID)
		return nil, nil, ErrInvalidTransition
	}

	jr.Status = domain.JoinRequestApproved
	jr.ContractID = &contract.ID
	jr.DisplayStatus = domain.JoinRequestWaitingCompletion

	s.notify(ctx, domain.EventJoinRequestApproved, jr.StudentID, "join_request", jr.ID, jr.Status, &jr.BidAmount)
	return jr, contract, nil
}

// buildContract snapshots the financial terms from the request and property.
// The lease runs from the move-in date for the bid duration; the deposit is a
// configured multiple of the monthly rent.
func (s *Service) buildContract(jr *domain.JoinRequest, property *directoryclient.Property) *domain.Contract {
	dueDay := property.RentDueDay
	if dueDay < 1 || dueDay > 28 {
		dueDay = 1
	}
	leaseStart := jr.MoveInDate
	return &domain.Contract{
		ID:            uuid.New(),
		JoinRequestID: jr.ID,
		PropertyID:    jr.PropertyID,
		StudentID:     jr.StudentID,
		LandlordID:    jr.LandlordID,
		Terms: domain.ContractTerms{
			MonthlyRent:         jr.BidAmount,
			SecurityDeposit:     jr.BidAmount * int64(s.policy.DepositMonths),
			RentDueDay:          dueDay,
			LeaseStart:          leaseStart,
			LeaseEnd:            leaseStart.AddDate(0, jr.LeaseDurationMonths, 0),
			LeaseDurationMonths: jr.LeaseDurationMonths,
			PropertyTitle:       property.Title,
			PropertyAddress:     property.Address,
		},
	}
}

// RejectJoinRequest transitions pending -> rejected with the landlord's
// reason. Rejected is terminal.
func (s *Service) RejectJoinRequest(ctx context.Context, landlordID uuid.UUID, joinRequestID uuid.UUID, reason string) (*domain.JoinRequest, error) {
	jr, err := s.repo.FindJoinRequestByID(ctx, joinRequestID)
	if err != nil {
		return nil, err
	}
	if jr.LandlordID != landlordID {
		return nil, ErrForbidden
	}

	note := &reason
	if reason == "" {
		note = nil
	}
	applied, err := s.repo.TransitionJoinRequest(ctx, jr.ID, domain.JoinRequestPending, domain.JoinRequestRejected, landlordID, note, nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrInvalidTransition
	}

	jr.Status = domain.JoinRequestRejected
	jr.DisplayStatus = jr.Status
	jr.RejectionReason = note

	s.notify(ctx, domain.EventJoinRequestRejected, jr.StudentID, "join_request", jr.ID, jr.Status, nil)
	return jr, nil
}

// completeJoinRequest is the coordinator's callback once both signatures are
// present: approved -> completed.
func (s *Service) completeJoinRequest(ctx context.Context, joinRequestID uuid.UUID, actorID uuid.UUID) error {
	applied, err := s.repo.TransitionJoinRequest(ctx, joinRequestID, domain.JoinRequestApproved, domain.JoinRequestCompleted, actorID, nil, nil)
	if err != nil {
		return err
	}
	if !applied {
		return ErrInvalidTransition
	}
	return nil
}

// GetJoinRequest returns the request with its display status computed. The
// stored status stays `approved` between approval and full signature;
// `waiting_completion` is derived from the contract's signature state, never
// stored, so there is a single source of truth.
func (s *Service) GetJoinRequest(ctx context.Context, callerID uuid.UUID, joinRequestID uuid.UUID) (*domain.JoinRequest, error) {
	jr, err := s.repo.FindJoinRequestByID(ctx, joinRequestID)
	if err != nil {
		return nil, err
	}
	if jr.StudentID != callerID && jr.LandlordID != callerID {
		return nil, ErrForbidden
	}
	s.applyDisplayStatus(ctx, jr)
	return jr, nil
}

// ListJoinRequests returns the caller's requests, as student or landlord.
func (s *Service) ListJoinRequests(ctx context.Context, callerID uuid.UUID, role string) ([]domain.JoinRequest, error) {
	var (
		requests []domain.JoinRequest
		err      error
	)
	if role == domain.RoleLandlord {
		requests, err = s.repo.ListJoinRequestsByLandlord(ctx, callerID)
	} else {
		requests, err = s.repo.ListJoinRequestsByStudent(ctx, callerID)
	}
	if err != nil {
		return nil, err
	}
	for i := range requests {
		s.applyDisplayStatus(ctx, &requests[i])
	}
	return requests, nil
}

func (s *Service) applyDisplayStatus(ctx context.Context, jr *domain.JoinRequest) {
	jr.DisplayStatus = jr.Status
	if jr.Status != domain.JoinRequestApproved {
		return
	}
	contract, err := s.repo.FindContractByJoinRequestID(ctx, jr.ID)
	if err != nil {
		if !errors.Is(err, store.ErrContractNotFound) {
			log.Printf("level=warn component=service flow=join_request msg=\"display status lookup failed\" join_request_id=%s err=%v", jr.ID, err)
		}
		return
	}
	if !contract.FullySigned() {
		jr.DisplayStatus = domain.JoinRequestWaitingCompletion
	}
}
