/**
 * @description
 * Lease termination and the security-deposit hold. Terminating a fully signed
 * contract freezes the escrowed deposit for a hold period; the landlord can
 * release it early, a dispute parks it, and an unresolved hold auto-refunds to
 * the tenant when the period expires.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rentmates/tenancy-service/internal/domain"
	"github.com/rentmates/tenancy-service/internal/store"
)

// InitiateTermination ends the lease and opens the deposit hold. Either party
// may initiate. Rent cycles dated after the termination instant stop being
// swept or payable; the hold records the frozen deposit amount.
func (s *Service) InitiateTermination(ctx context.Context, callerID uuid.UUID, contractID uuid.UUID) (*domain.TerminationHold, error) {
	contract, err := s.repo.FindContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}

	var initiatorRole string
	switch callerID {
	case contract.StudentID:
		initiatorRole = domain.RoleStudent
	case contract.LandlordID:
		initiatorRole = domain.RoleLandlord
	default:
		return nil, ErrForbidden
	}
	if !contract.FullySigned() || contract.Terminated {
		return nil, ErrInvalidTransition
	}

	// The hold freezes what was actually escrowed, not the terms snapshot.
	// A fully signed contract whose escrow debit never landed (finalization
	// failure on an unfunded tenant) has no deposit to refund.
	var depositAmount int64
	escrow, err := s.repo.FindEscrowTransactionByContract(ctx, contract.ID)
	switch {
	case err == nil:
		depositAmount = escrow.Amount
	case errors.Is(err, store.ErrTransactionNotFound):
		log.Printf("level=warn component=service flow=termination msg=\"no escrow transaction for contract; hold frozen at zero\" contract_id=%s", contract.ID)
	default:
		return nil, err
	}

	now := time.Now().UTC()
	applied, err := s.repo.MarkContractTerminated(ctx, contract.ID, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrInvalidTransition
	}

	hold := &domain.TerminationHold{
		ID:            uuid.New(),
		ContractID:    contract.ID,
		InitiatorRole: initiatorRole,
		InitiatedAt:   now,
		HoldExpiresAt: now.Add(s.policy.TerminationHold),
		DepositAmount: depositAmount,
		Resolution:    domain.HoldPending,
	}
	if err := s.repo.CreateTerminationHold(ctx, hold); err != nil {
		return nil, err
	}

	s.notify(ctx, domain.EventTerminationInitiated, counterparty(contract, callerID), "termination_hold", hold.ID, hold.Resolution, &hold.DepositAmount)
	return hold, nil
}

// ResolveTermination handles the landlord release, the dispute park, and the
// dispute clear:
//   - resolved: landlord releases early; the deposit refunds to the tenant now.
//   - disputed: the hold parks and the auto-refund timer stops counting.
//   - pending:  clears a dispute back onto the auto-refund path; if the
//     original hold period has already lapsed, the refund fires immediately.
func (s *Service) ResolveTermination(ctx context.Context, callerID uuid.UUID, contractID uuid.UUID, payload domain.ResolveTerminationPayload) (*domain.TerminationHold, error) {
	hold, err := s.repo.FindTerminationHoldByContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	contract, err := s.repo.FindContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	switch payload.Resolution {
	case domain.HoldResolved:
		if callerID != contract.LandlordID {
			return nil, ErrForbidden
		}
		if err := s.refundDeposit(ctx, contract, hold, domain.HoldPending, domain.HoldResolved, now); err != nil {
			return nil, err
		}
	case domain.HoldDisputed:
		if callerID != contract.StudentID && callerID != contract.LandlordID {
			return nil, ErrForbidden
		}
		applied, err := s.repo.TransitionTerminationHold(ctx, hold.ID, domain.HoldPending, domain.HoldDisputed, now)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, ErrInvalidTransition
		}
	case domain.HoldPending:
		if callerID != contract.LandlordID {
			return nil, ErrForbidden
		}
		if hold.Resolution != domain.HoldDisputed {
			return nil, ErrInvalidTransition
		}
		if now.After(hold.HoldExpiresAt) {
			if err := s.refundDeposit(ctx, contract, hold, domain.HoldDisputed, domain.HoldAutoRefunded, now); err != nil {
				return nil, err
			}
		} else {
			applied, err := s.repo.TransitionTerminationHold(ctx, hold.ID, domain.HoldDisputed, domain.HoldPending, now)
			if err != nil {
				return nil, err
			}
			if !applied {
				return nil, ErrInvalidTransition
			}
		}
	default:
		return nil, fmt.Errorf("unknown resolution %q: %w", payload.Resolution, ErrInvalidTransition)
	}

	updated, err := s.repo.FindTerminationHoldByContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, domain.EventTerminationResolved, counterparty(contract, callerID), "termination_hold", updated.ID, updated.Resolution, &updated.DepositAmount)
	return updated, nil
}

// refundDeposit transitions the hold and credits the escrowed deposit back to
// the tenant. The hold transition goes first: its conditional guard is the
// exactly-once gate, so a race between the sweep and a landlord release never
// double-credits.
func (s *Service) refundDeposit(ctx context.Context, contract *domain.Contract, hold *domain.TerminationHold, from, to string, at time.Time) error {
	applied, err := s.repo.TransitionTerminationHold(ctx, hold.ID, from, to, at)
	if err != nil {
		return err
	}
	if !applied {
		return ErrInvalidTransition
	}
	if hold.DepositAmount == 0 {
		// Nothing was escrowed; the hold resolves without moving money.
		return nil
	}

	account, err := s.repo.GetOrCreateWalletAccount(ctx, contract.StudentID)
	if err != nil {
		return fmt.Errorf("failed to load tenant wallet for refund: %w", err)
	}
	tx := &domain.Transaction{
		ID:                uuid.New(),
		WalletAccountID:   account.ID,
		UserID:            contract.StudentID,
		Type:              domain.TxDepositRefund,
		Amount:            hold.DepositAmount,
		Status:            domain.TxCompleted,
		RelatedContractID: &contract.ID,
		CounterpartyID:    &contract.LandlordID,
		Description:       fmt.Sprintf("Security deposit refund for %s", contract.Terms.PropertyTitle),
	}
	if err := s.repo.ApplyCredit(ctx, tx); err != nil {
		// The hold already transitioned; a failed credit must be replayed by
		// the operator, not retried blindly.
		log.Printf("level=error component=service flow=termination msg=\"CRITICAL: hold resolved but deposit credit failed\" hold_id=%s contract_id=%s amount=%d err=%v",
			hold.ID, contract.ID, hold.DepositAmount, err)
		return fmt.Errorf("hold resolved but deposit credit failed: %w", err)
	}
	return nil
}

// SweepTerminationHolds auto-refunds every pending hold whose period has
// lapsed. Disputed holds are excluded by the pending filter.
func (s *Service) SweepTerminationHolds(ctx context.Context, now time.Time) (refunded int, err error) {
	expired, err := s.repo.ListExpiredPendingHolds(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired holds: %w", err)
	}

	for i := range expired {
		hold := &expired[i]
		contract, err := s.repo.FindContractByID(ctx, hold.ContractID)
		if err != nil {
			log.Printf("level=error component=service flow=termination msg=\"auto-refund skipped; contract lookup failed\" hold_id=%s err=%v", hold.ID, err)
			continue
		}
		if err := s.refundDeposit(ctx, contract, hold, domain.HoldPending, domain.HoldAutoRefunded, now); err != nil {
			log.Printf("level=error component=service flow=termination msg=\"auto-refund failed\" hold_id=%s err=%v", hold.ID, err)
			continue
		}
		refunded++
		s.notify(ctx, domain.EventTerminationResolved, contract.StudentID, "termination_hold", hold.ID, domain.HoldAutoRefunded, &hold.DepositAmount)
	}
	return refunded, nil
}
