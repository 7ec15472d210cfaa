package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rentmates/tenancy-service/internal/domain"
	"github.com/rentmates/tenancy-service/internal/store"
)

// signedLease walks the fixture through approval and full signature and
// returns the contract. The student is left with `balance` after the escrow
// debit.
func signedLease(t *testing.T, f *fixture, bid int64, months int, moveIn time.Time, balanceAfterEscrow int64) *domain.Contract {
	t.Helper()
	ctx := context.Background()
	deposit := bid * int64(f.service.policy.DepositMonths)
	f.repo.setBalance(f.studentID, balanceAfterEscrow+deposit)

	_, contract, err := f.submitAndApprove(ctx, bid, months, moveIn)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	signed, err := f.signBoth(ctx, contract.ID)
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}
	return signed
}

func TestPayRent_MovesLedgerPairAndMarksPaid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	moveIn := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	contract := signedLease(t, f, 80000, 12, moveIn, 200000)

	cycles, _ := f.repo.ListRentCyclesByContract(ctx, contract.ID)
	first := cycles[0]

	paid, err := f.service.PayRent(ctx, f.studentID, first.ID)
	if err != nil {
		t.Fatalf("pay failed: %v", err)
	}
	if paid.Status != domain.RentCyclePaid || paid.PaidAt == nil {
		t.Fatalf("expected paid cycle, got %q", paid.Status)
	}
	if got := f.repo.balance(f.studentID); got != 120000 {
		t.Fatalf("expected student balance 120000, got %d", got)
	}
	if got := f.repo.balance(f.landlordID); got != 80000 {
		t.Fatalf("expected landlord balance 80000, got %d", got)
	}
	if f.events.published(domain.EventRentCyclePaid) != 1 {
		t.Fatal("expected a rent.cycle.paid event")
	}
}

func TestPayRent_DoublePayRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	contract := signedLease(t, f, 80000, 12, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), 200000)

	cycles, _ := f.repo.ListRentCyclesByContract(ctx, contract.ID)
	if _, err := f.service.PayRent(ctx, f.studentID, cycles[0].ID); err != nil {
		t.Fatalf("first pay failed: %v", err)
	}
	if _, err := f.service.PayRent(ctx, f.studentID, cycles[0].ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double pay, got %v", err)
	}
	if got := f.repo.balance(f.landlordID); got != 80000 {
		t.Fatalf("double pay must not double credit, landlord balance %d", got)
	}
}

func TestPayRent_InsufficientFunds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	contract := signedLease(t, f, 80000, 12, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), 79999)

	cycles, _ := f.repo.ListRentCyclesByContract(ctx, contract.ID)
	if _, err := f.service.PayRent(ctx, f.studentID, cycles[0].ID); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestSweepRentCycles_DueAndOverdueTransitions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	moveIn := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	contract := signedLease(t, f, 80000, 12, moveIn, 1_000_000)

	// First cycle due 2026-02-01. Inside the 72h grace window it becomes due.
	due, overdue, err := f.service.SweepRentCycles(ctx, time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if due != 1 || overdue != 0 {
		t.Fatalf("expected 1 due, 0 overdue; got %d, %d", due, overdue)
	}

	// Unpaid past due date + grace flips to overdue.
	_, overdue, err = f.service.SweepRentCycles(ctx, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if overdue != 1 {
		t.Fatalf("expected 1 overdue, got %d", overdue)
	}
	if f.events.published(domain.EventRentCycleOverdue) != 2 {
		t.Fatal("expected overdue events to both parties")
	}

	cycles, _ := f.repo.ListRentCyclesByContract(ctx, contract.ID)
	if cycles[0].Status != domain.RentCycleOverdue {
		t.Fatalf("expected first cycle overdue, got %q", cycles[0].Status)
	}
}

func TestSweepRentCycles_SkipsTerminatedContracts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	// Move-in a month out so every due date postdates the termination instant.
	moveIn := time.Now().UTC().AddDate(0, 1, 0)
	contract := signedLease(t, f, 80000, 12, moveIn, 1_000_000)

	if _, err := f.service.InitiateTermination(ctx, f.studentID, contract.ID); err != nil {
		t.Fatalf("termination failed: %v", err)
	}

	// All due dates are after the termination instant; nothing sweeps.
	due, overdue, err := f.service.SweepRentCycles(ctx, moveIn.AddDate(0, 5, 0))
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if due != 0 || overdue != 0 {
		t.Fatalf("expected terminated contract excluded from sweeps, got due=%d overdue=%d", due, overdue)
	}
}

func TestAutoPay_SettlesCyclesInsideLeadWindow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	moveIn := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	signedLease(t, f, 80000, 12, moveIn, 200000)

	// First cycle due 2026-02-01; auto-pay runs one day ahead.
	paid, skipped, err := f.service.AutoPayDueRent(ctx, time.Date(2026, 1, 31, 6, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("auto-pay failed: %v", err)
	}
	if paid != 1 || skipped != 0 {
		t.Fatalf("expected 1 paid, got paid=%d skipped=%d", paid, skipped)
	}
	if got := f.repo.balance(f.landlordID); got != 80000 {
		t.Fatalf("expected landlord credited, got %d", got)
	}

	// Second cycle is outside the window; nothing more to do.
	paid, _, err = f.service.AutoPayDueRent(ctx, time.Date(2026, 1, 31, 6, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("second auto-pay failed: %v", err)
	}
	if paid != 0 {
		t.Fatalf("expected no further payments, got %d", paid)
	}
}

func TestAutoPay_SkipsInsufficientBalanceWithoutFailing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	moveIn := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	signedLease(t, f, 80000, 12, moveIn, 50000)

	paid, skipped, err := f.service.AutoPayDueRent(ctx, time.Date(2026, 1, 31, 6, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("auto-pay failed: %v", err)
	}
	if paid != 0 || skipped != 1 {
		t.Fatalf("expected skip on insufficient funds, got paid=%d skipped=%d", paid, skipped)
	}
	if got := f.repo.balance(f.studentID); got != 50000 {
		t.Fatalf("skipped auto-pay must not touch the balance, got %d", got)
	}
}
