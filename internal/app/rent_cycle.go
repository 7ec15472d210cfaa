/**
 * @description
 * Rent-cycle operations: the daily due/overdue sweeps, manual rent payment,
 * and the auto-pay pass that settles cycles one day ahead of their due date
 * when the tenant's balance covers them. A payment is always a ledger pair:
 * the student's rent_payment debit and the landlord's rent_received credit
 * commit together with the cycle flip.
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

// ListRentCycles returns the schedule for a contract to one of its parties.
func (s *Service) ListRentCycles(ctx context.Context, callerID uuid.UUID, contractID uuid.UUID) ([]domain.RentCycle, error) {
	contract, err := s.repo.FindContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.StudentID != callerID && contract.LandlordID != callerID {
		return nil, ErrForbidden
	}
	return s.repo.ListRentCyclesByContract(ctx, contractID)
}

// PayRent settles one cycle from the student's balance. Paying an upcoming
// cycle early is allowed; paying a cycle twice is not, and the repository's
// status guard turns the second attempt into ErrInvalidTransition.
func (s *Service) PayRent(ctx context.Context, studentID uuid.UUID, rentCycleID uuid.UUID) (*domain.RentCycle, error) {
	cycle, err := s.repo.FindRentCycleByID(ctx, rentCycleID)
	if err != nil {
		return nil, err
	}
	contract, err := s.repo.FindContractByID(ctx, cycle.ContractID)
	if err != nil {
		return nil, err
	}
	if contract.StudentID != studentID {
		return nil, ErrForbidden
	}
	if cycle.Status == domain.RentCyclePaid {
		return nil, ErrInvalidTransition
	}
	if contract.Terminated && cycle.DueDate.After(*contract.TerminatedAt) {
		return nil, ErrInvalidTransition
	}

	if err := s.settleRentCycle(ctx, contract, cycle); err != nil {
		return nil, err
	}
	return s.repo.FindRentCycleByID(ctx, rentCycleID)
}

// settleRentCycle builds the debit/credit pair and applies it atomically with
// the cycle's paid flip.
func (s *Service) settleRentCycle(ctx context.Context, contract *domain.Contract, cycle *domain.RentCycle) error {
	studentAccount, err := s.repo.GetOrCreateWalletAccount(ctx, contract.StudentID)
	if err != nil {
		return err
	}
	landlordAccount, err := s.repo.GetOrCreateWalletAccount(ctx, contract.LandlordID)
	if err != nil {
		return err
	}

	description := fmt.Sprintf("Rent for %s, month %d", contract.Terms.PropertyTitle, cycle.CycleIndex)
	payment := &domain.Transaction{
		ID:                uuid.New(),
		WalletAccountID:   studentAccount.ID,
		UserID:            contract.StudentID,
		Type:              domain.TxRentPayment,
		Amount:            cycle.Amount,
		Status:            domain.TxCompleted,
		RelatedRentCycle:  &cycle.ID,
		RelatedContractID: &contract.ID,
		CounterpartyID:    &contract.LandlordID,
		Description:       description,
	}
	received := &domain.Transaction{
		ID:                uuid.New(),
		WalletAccountID:   landlordAccount.ID,
		UserID:            contract.LandlordID,
		Type:              domain.TxRentReceived,
		Amount:            cycle.Amount,
		Status:            domain.TxCompleted,
		RelatedRentCycle:  &cycle.ID,
		RelatedContractID: &contract.ID,
		CounterpartyID:    &contract.StudentID,
		Description:       description,
	}

	if err := s.repo.ApplyRentPaymentPair(ctx, payment, received, cycle.ID, time.Now().UTC()); err != nil {
		return err
	}

	s.notify(ctx, domain.EventRentCyclePaid, contract.LandlordID, "rent_cycle", cycle.ID, domain.RentCyclePaid, &cycle.Amount)
	return nil
}

// SweepRentCycles runs the daily status pass: upcoming cycles inside the
// grace window become due, unpaid due cycles past the window become overdue.
func (s *Service) SweepRentCycles(ctx context.Context, now time.Time) (due int64, overdue int, err error) {
	due, err = s.repo.MarkRentCyclesDue(ctx, now, s.policy.RentGraceWindow)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to mark cycles due: %w", err)
	}

	flipped, err := s.repo.MarkRentCyclesOverdue(ctx, now, s.policy.RentGraceWindow)
	if err != nil {
		return due, 0, fmt.Errorf("failed to mark cycles overdue: %w", err)
	}
	for i := range flipped {
		cycle := &flipped[i]
		contract, err := s.repo.FindContractByID(ctx, cycle.ContractID)
		if err != nil {
			log.Printf("level=warn component=service flow=rent msg=\"overdue notify skipped; contract lookup failed\" cycle_id=%s err=%v", cycle.ID, err)
			continue
		}
		s.notify(ctx, domain.EventRentCycleOverdue, contract.StudentID, "rent_cycle", cycle.ID, domain.RentCycleOverdue, &cycle.Amount)
		s.notify(ctx, domain.EventRentCycleOverdue, contract.LandlordID, "rent_cycle", cycle.ID, domain.RentCycleOverdue, &cycle.Amount)
	}
	return due, len(flipped), nil
}

// AutoPayDueRent settles unpaid cycles whose due date falls within the
// auto-pay lead time, skipping tenants whose balance cannot cover the rent.
// A skipped cycle stays unpaid and takes the normal due/overdue path.
func (s *Service) AutoPayDueRent(ctx context.Context, now time.Time) (paid, skipped int, err error) {
	candidates, err := s.repo.ListAutoPayCandidates(ctx, now, now.Add(s.policy.AutoPayLeadTime))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list auto-pay candidates: %w", err)
	}

	for i := range candidates {
		cycle := &candidates[i]
		contract, err := s.repo.FindContractByID(ctx, cycle.ContractID)
		if err != nil {
			log.Printf("level=warn component=service flow=rent msg=\"auto-pay skipped; contract lookup failed\" cycle_id=%s err=%v", cycle.ID, err)
			skipped++
			continue
		}
		if err := s.settleRentCycle(ctx, contract, cycle); err != nil {
			if errors.Is(err, store.ErrInsufficientFunds) {
				log.Printf("level=info component=service flow=rent msg=\"auto-pay skipped; insufficient funds\" cycle_id=%s student_id=%s amount=%d", cycle.ID, contract.StudentID, cycle.Amount)
			} else {
				log.Printf("level=error component=service flow=rent msg=\"auto-pay failed\" cycle_id=%s err=%v", cycle.ID, err)
			}
			skipped++
			continue
		}
		paid++
	}
	return paid, skipped, nil
}
