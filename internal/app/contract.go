/**
 * @description
 * The dual-signature coordinator. Signing order is fixed: the student signs
 * first, then the landlord. Re-signing with the same reference is a no-op;
 * a different reference is a conflict. The caller whose conditional signature
 * update actually lands the second signature runs finalization exactly once:
 * complete the join request, generate the full batch of rent cycles, and move
 * the security deposit into escrow.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rentmates/tenancy-service/internal/domain"
)

// GetContract returns the contract to one of its parties.
func (s *Service) GetContract(ctx context.Context, callerID uuid.UUID, contractID uuid.UUID) (*domain.Contract, error) {
	contract, err := s.repo.FindContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.StudentID != callerID && contract.LandlordID != callerID {
		return nil, ErrForbidden
	}
	return contract, nil
}

// SignContract records the caller's signature. The repository guard (party
// not yet signed) decides races: exactly one concurrent duplicate sign wins,
// and exactly one caller observes the contract becoming fully signed and runs
// finalization.
func (s *Service) SignContract(ctx context.Context, callerID uuid.UUID, contractID uuid.UUID, payload domain.SignContractPayload) (*domain.Contract, error) {
	if payload.SignatureRef == "" {
		return nil, ErrMissingSignatureRef
	}

	contract, err := s.repo.FindContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}

	var role string
	switch callerID {
	case contract.StudentID:
		role = domain.RoleStudent
	case contract.LandlordID:
		role = domain.RoleLandlord
	default:
		return nil, ErrForbidden
	}
	if contract.Terminated {
		return nil, ErrInvalidTransition
	}
	if role == domain.RoleLandlord && !contract.StudentSignature.Signed {
		return nil, ErrOutOfOrderSignature
	}

	signedAt := time.Now().UTC()
	applied, err := s.repo.RecordSignature(ctx, contract.ID, role, payload.SignatureRef, signedAt)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Already signed. Same reference is an idempotent retry; a different
		// one means two distinct wallet interactions claim the same slot.
		current, err := s.repo.FindContractByID(ctx, contract.ID)
		if err != nil {
			return nil, err
		}
		existing := current.StudentSignature
		if role == domain.RoleLandlord {
			existing = current.LandlordSignature
		}
		if existing.SignatureRef != nil && *existing.SignatureRef == payload.SignatureRef {
			return current, nil
		}
		return nil, ErrSignatureConflict
	}

	contract, err = s.repo.FindContractByID(ctx, contract.ID)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, domain.EventContractSigned, counterparty(contract, callerID), "contract", contract.ID, role, nil)

	if contract.FullySigned() {
		if err := s.finalizeContract(ctx, contract, callerID); err != nil {
			// The signature is committed; finalization failures must not
			// unwind it. Surfaced loudly for the on-call to replay.
			log.Printf("level=error component=service flow=contract msg=\"CRITICAL: contract fully signed but finalization failed\" contract_id=%s err=%v", contract.ID, err)
			return contract, fmt.Errorf("contract signed but activation failed: %w", err)
		}
	}
	return contract, nil
}

// finalizeContract runs once, on the caller whose signature completed the
// pair: security deposit debited into escrow, join request -> completed, rent
// cycles generated for the full lease. The escrow debit goes first so an
// unfunded tenant stops finalization before the join request completes or any
// cycles exist; the lease only activates on a funded deposit.
func (s *Service) finalizeContract(ctx context.Context, contract *domain.Contract, actorID uuid.UUID) error {
	if err := s.escrowSecurityDeposit(ctx, contract); err != nil {
		return err
	}

	if err := s.completeJoinRequest(ctx, contract.JoinRequestID, actorID); err != nil {
		return fmt.Errorf("failed to complete join request: %w", err)
	}

	cycles := buildRentCycles(contract)
	if err := s.repo.CreateRentCycles(ctx, cycles); err != nil {
		return fmt.Errorf("failed to generate rent cycles: %w", err)
	}

	s.notify(ctx, domain.EventJoinRequestCompleted, contract.StudentID, "join_request", contract.JoinRequestID, domain.JoinRequestCompleted, nil)
	s.notify(ctx, domain.EventContractCompleted, contract.LandlordID, "contract", contract.ID, "completed", &contract.Terms.MonthlyRent)
	return nil
}

// buildRentCycles generates one cycle per lease month, all upcoming, with
// dueDate[i] = leaseStart + i months (1-based index).
func buildRentCycles(contract *domain.Contract) []domain.RentCycle {
	cycles := make([]domain.RentCycle, 0, contract.Terms.LeaseDurationMonths)
	for i := 1; i <= contract.Terms.LeaseDurationMonths; i++ {
		cycles = append(cycles, domain.RentCycle{
			ID:         uuid.New(),
			ContractID: contract.ID,
			CycleIndex: i,
			DueDate:    contract.Terms.LeaseStart.AddDate(0, i, 0),
			Amount:     contract.Terms.MonthlyRent,
			Status:     domain.RentCycleUpcoming,
		})
	}
	return cycles
}

// escrowSecurityDeposit debits the student's off-chain balance by the deposit
// amount as a completed ledger row tied to the contract.
func (s *Service) escrowSecurityDeposit(ctx context.Context, contract *domain.Contract) error {
	account, err := s.repo.GetOrCreateWalletAccount(ctx, contract.StudentID)
	if err != nil {
		return fmt.Errorf("failed to load student wallet: %w", err)
	}
	tx := &domain.Transaction{
		ID:                uuid.New(),
		WalletAccountID:   account.ID,
		UserID:            contract.StudentID,
		Type:              domain.TxDepositEscrow,
		Amount:            contract.Terms.SecurityDeposit,
		Status:            domain.TxCompleted,
		RelatedContractID: &contract.ID,
		CounterpartyID:    &contract.LandlordID,
		Description:       fmt.Sprintf("Security deposit escrow for %s", contract.Terms.PropertyTitle),
	}
	if err := s.repo.ApplyDebit(ctx, tx); err != nil {
		return fmt.Errorf("failed to escrow security deposit: %w", err)
	}
	return nil
}

// AmendContractTerms lets the landlord adjust the snapshot before both
// signatures land. Any amendment while half-signed implicitly stands on the
// student's existing signature; the UI re-prompts, but the server only
// enforces the fully-signed freeze.
func (s *Service) AmendContractTerms(ctx context.Context, landlordID uuid.UUID, contractID uuid.UUID, payload domain.AmendContractTermsPayload) (*domain.Contract, error) {
	contract, err := s.repo.FindContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.LandlordID != landlordID {
		return nil, ErrForbidden
	}
	if contract.FullySigned() {
		return nil, ErrContractImmutable
	}

	terms := contract.Terms
	if payload.MonthlyRent != nil {
		if *payload.MonthlyRent <= 0 {
			return nil, ErrInvalidBid
		}
		terms.MonthlyRent = *payload.MonthlyRent
	}
	if payload.SecurityDeposit != nil {
		if *payload.SecurityDeposit < 0 {
			return nil, ErrInvalidBid
		}
		terms.SecurityDeposit = *payload.SecurityDeposit
	}
	if payload.RentDueDay != nil {
		if *payload.RentDueDay < 1 || *payload.RentDueDay > 28 {
			return nil, fmt.Errorf("%w: rent due day must be between 1 and 28", ErrInvalidBid)
		}
		terms.RentDueDay = *payload.RentDueDay
	}

	applied, err := s.repo.UpdateContractTerms(ctx, contract.ID, terms)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Both signatures landed between our read and the update.
		return nil, ErrContractImmutable
	}

	contract.Terms = terms
	s.notify(ctx, domain.EventContractSigned, contract.StudentID, "contract", contract.ID, "terms_amended", &terms.MonthlyRent)
	return contract, nil
}

func counterparty(c *domain.Contract, callerID uuid.UUID) uuid.UUID {
	if callerID == c.StudentID {
		return c.LandlordID
	}
	return c.StudentID
}
