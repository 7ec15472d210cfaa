package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rentmates/tenancy-service/internal/domain"
)

func TestSignContract_LandlordCannotSignFirst(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, contract, err := f.submitAndApprove(ctx, 80000, 12, time.Now().AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	_, err = f.service.SignContract(ctx, f.landlordID, contract.ID, domain.SignContractPayload{SignatureRef: "0xsig-landlord"})
	if !errors.Is(err, ErrOutOfOrderSignature) {
		t.Fatalf("expected ErrOutOfOrderSignature, got %v", err)
	}
}

func TestSignContract_RequiresSignatureRef(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, contract, err := f.submitAndApprove(ctx, 80000, 12, time.Now().AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	_, err = f.service.SignContract(ctx, f.studentID, contract.ID, domain.SignContractPayload{})
	if !errors.Is(err, ErrMissingSignatureRef) {
		t.Fatalf("expected ErrMissingSignatureRef, got %v", err)
	}
}

func TestSignContract_ResignSameRefIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, contract, err := f.submitAndApprove(ctx, 80000, 12, time.Now().AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	payload := domain.SignContractPayload{SignatureRef: "0xsig-student"}
	if _, err := f.service.SignContract(ctx, f.studentID, contract.ID, payload); err != nil {
		t.Fatalf("first sign failed: %v", err)
	}
	signed, err := f.service.SignContract(ctx, f.studentID, contract.ID, payload)
	if err != nil {
		t.Fatalf("expected idempotent retry to succeed, got %v", err)
	}
	if !signed.StudentSignature.Signed {
		t.Fatal("expected student signature to remain set")
	}
}

func TestSignContract_ResignDifferentRefConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, contract, err := f.submitAndApprove(ctx, 80000, 12, time.Now().AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	if _, err := f.service.SignContract(ctx, f.studentID, contract.ID, domain.SignContractPayload{SignatureRef: "0xsig-a"}); err != nil {
		t.Fatalf("first sign failed: %v", err)
	}
	_, err = f.service.SignContract(ctx, f.studentID, contract.ID, domain.SignContractPayload{SignatureRef: "0xsig-b"})
	if !errors.Is(err, ErrSignatureConflict) {
		t.Fatalf("expected ErrSignatureConflict, got %v", err)
	}
}

func TestFullSignature_FinalizesContract(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.setBalance(f.studentID, 500_000)
	moveIn := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	jr, contract, err := f.submitAndApprove(ctx, 80000, 12, moveIn)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	signed, err := f.signBoth(ctx, contract.ID)
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}
	if !signed.FullySigned() {
		t.Fatal("expected contract to be fully signed")
	}

	// Join request completes.
	storedJR, err := f.repo.FindJoinRequestByID(ctx, jr.ID)
	if err != nil {
		t.Fatalf("jr lookup failed: %v", err)
	}
	if storedJR.Status != domain.JoinRequestCompleted {
		t.Fatalf("expected join request completed, got %q", storedJR.Status)
	}

	// One cycle per lease month, dueDate[i] = leaseStart + i months.
	cycles, err := f.repo.ListRentCyclesByContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("cycle lookup failed: %v", err)
	}
	if len(cycles) != 12 {
		t.Fatalf("expected 12 rent cycles, got %d", len(cycles))
	}
	for i, cycle := range cycles {
		wantDue := moveIn.AddDate(0, i+1, 0)
		if !cycle.DueDate.Equal(wantDue) {
			t.Fatalf("cycle %d: expected due %v, got %v", cycle.CycleIndex, wantDue, cycle.DueDate)
		}
		if cycle.Amount != 80000 {
			t.Fatalf("cycle %d: expected amount 80000, got %d", cycle.CycleIndex, cycle.Amount)
		}
		if cycle.Status != domain.RentCycleUpcoming {
			t.Fatalf("cycle %d: expected upcoming, got %q", cycle.CycleIndex, cycle.Status)
		}
	}

	// Security deposit escrowed: 500000 - 160000.
	if got := f.repo.balance(f.studentID); got != 340_000 {
		t.Fatalf("expected escrow debit to leave balance 340000, got %d", got)
	}

	if f.events.published(domain.EventContractCompleted) != 1 {
		t.Fatal("expected one contract.completed event")
	}
}

func TestFullSignature_SecondFinalizationDoesNotRun(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.setBalance(f.studentID, 500_000)

	_, contract, err := f.submitAndApprove(ctx, 80000, 12, time.Now().AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if _, err := f.signBoth(ctx, contract.ID); err != nil {
		t.Fatalf("signing failed: %v", err)
	}

	// A replayed landlord sign with the same ref is idempotent and must not
	// re-run finalization (no second escrow debit, no extra cycles).
	if _, err := f.service.SignContract(ctx, f.landlordID, contract.ID, domain.SignContractPayload{SignatureRef: "0xsig-landlord"}); err != nil {
		t.Fatalf("replayed sign failed: %v", err)
	}

	cycles, _ := f.repo.ListRentCyclesByContract(ctx, contract.ID)
	if len(cycles) != 12 {
		t.Fatalf("expected 12 cycles after replay, got %d", len(cycles))
	}
	if got := f.repo.balance(f.studentID); got != 340_000 {
		t.Fatalf("expected single escrow debit, balance %d", got)
	}
}

func TestAmendContractTerms_FrozenAfterFullSignature(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.setBalance(f.studentID, 500_000)

	_, contract, err := f.submitAndApprove(ctx, 80000, 12, time.Now().AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	// Amending while unsigned or half-signed works.
	newRent := int64(85000)
	amended, err := f.service.AmendContractTerms(ctx, f.landlordID, contract.ID, domain.AmendContractTermsPayload{MonthlyRent: &newRent})
	if err != nil {
		t.Fatalf("amend failed: %v", err)
	}
	if amended.Terms.MonthlyRent != 85000 {
		t.Fatalf("expected amended rent, got %d", amended.Terms.MonthlyRent)
	}

	if _, err := f.signBoth(ctx, contract.ID); err != nil {
		t.Fatalf("signing failed: %v", err)
	}

	_, err = f.service.AmendContractTerms(ctx, f.landlordID, contract.ID, domain.AmendContractTermsPayload{MonthlyRent: &newRent})
	if !errors.Is(err, ErrContractImmutable) {
		t.Fatalf("expected ErrContractImmutable after full signature, got %v", err)
	}
}
