/**
 * @description
 * Visit scheduling: students request a physical or virtual viewing, landlords
 * confirm (virtual visits need a meet link), reschedule, or reject. A sweep
 * marks confirmed visits completed once their effective time passes.
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
)

// ErrMeetLinkRequired means a virtual visit was confirmed without a link.
var ErrMeetLinkRequired = errors.New("virtual visits require a meet link on confirmation")

// RequestVisit creates a pending viewing request for a property.
func (s *Service) RequestVisit(ctx context.Context, studentID uuid.UUID, payload domain.RequestVisitPayload) (*domain.VisitRequest, error) {
	if payload.VisitType != domain.VisitPhysical && payload.VisitType != domain.VisitVirtual {
		return nil, fmt.Errorf("unknown visit type %q: %w", payload.VisitType, ErrInvalidTransition)
	}
	if payload.VisitAt.Before(time.Now()) {
		return nil, errors.New("visit time must be in the future")
	}

	property, err := s.directory.GetProperty(ctx, payload.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve property: %w", err)
	}

	visit := &domain.VisitRequest{
		ID:         uuid.New(),
		PropertyID: payload.PropertyID,
		StudentID:  studentID,
		LandlordID: property.LandlordID,
		VisitType:  payload.VisitType,
		VisitAt:    payload.VisitAt,
		Status:     domain.VisitPending,
	}
	if err := s.repo.CreateVisitRequest(ctx, visit); err != nil {
		return nil, err
	}

	s.notify(ctx, domain.EventVisitUpdated, property.LandlordID, "visit_request", visit.ID, visit.Status, nil)
	return visit, nil
}

// ConfirmVisit accepts a pending visit. Virtual visits must carry a meet
// link; physical visits ignore one if sent.
func (s *Service) ConfirmVisit(ctx context.Context, landlordID uuid.UUID, visitID uuid.UUID, payload domain.ConfirmVisitPayload) (*domain.VisitRequest, error) {
	visit, err := s.repo.FindVisitRequestByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit.LandlordID != landlordID {
		return nil, ErrForbidden
	}

	meetLink := payload.MeetLink
	if visit.VisitType == domain.VisitVirtual {
		if meetLink == nil || *meetLink == "" {
			return nil, ErrMeetLinkRequired
		}
	} else {
		meetLink = nil
	}

	applied, err := s.repo.ConfirmVisit(ctx, visit.ID, meetLink)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrInvalidTransition
	}

	visit.Status = domain.VisitConfirmed
	visit.MeetLink = meetLink
	s.notify(ctx, domain.EventVisitUpdated, visit.StudentID, "visit_request", visit.ID, visit.Status, nil)
	return visit, nil
}

// RescheduleVisit moves a pending, confirmed, or already rescheduled visit
// to a new time. The
// original slot is kept for the audit trail; EffectiveVisitAt resolves the
// override.
func (s *Service) RescheduleVisit(ctx context.Context, landlordID uuid.UUID, visitID uuid.UUID, payload domain.RescheduleVisitPayload) (*domain.VisitRequest, error) {
	visit, err := s.repo.FindVisitRequestByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit.LandlordID != landlordID {
		return nil, ErrForbidden
	}
	if payload.VisitAt.Before(time.Now()) {
		return nil, errors.New("visit time must be in the future")
	}

	applied, err := s.repo.RescheduleVisit(ctx, visit.ID, payload.VisitAt)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrInvalidTransition
	}

	visit.Status = domain.VisitRescheduled
	visit.RescheduledTo = &payload.VisitAt
	s.notify(ctx, domain.EventVisitUpdated, visit.StudentID, "visit_request", visit.ID, visit.Status, nil)
	return visit, nil
}

// RejectVisit declines a pending visit with a reason.
func (s *Service) RejectVisit(ctx context.Context, landlordID uuid.UUID, visitID uuid.UUID, reason string) (*domain.VisitRequest, error) {
	visit, err := s.repo.FindVisitRequestByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit.LandlordID != landlordID {
		return nil, ErrForbidden
	}

	applied, err := s.repo.RejectVisit(ctx, visit.ID, reason)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrInvalidTransition
	}

	visit.Status = domain.VisitRejected
	visit.RejectionReason = &reason
	s.notify(ctx, domain.EventVisitUpdated, visit.StudentID, "visit_request", visit.ID, visit.Status, nil)
	return visit, nil
}

// ListVisits returns the landlord's visit queue, pending first.
func (s *Service) ListVisits(ctx context.Context, landlordID uuid.UUID) ([]domain.VisitRequest, error) {
	return s.repo.ListVisitRequestsByLandlord(ctx, landlordID)
}

// SweepCompletedVisits marks confirmed or rescheduled visits completed once
// their effective time has passed.
func (s *Service) SweepCompletedVisits(ctx context.Context, now time.Time) (completed int, err error) {
	due, err := s.repo.ListVisitsDueCompletion(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list visits due completion: %w", err)
	}
	for i := range due {
		visit := &due[i]
		applied, err := s.repo.MarkVisitCompleted(ctx, visit.ID)
		if err != nil {
			log.Printf("level=warn component=service flow=visit msg=\"completion sweep failed for visit\" visit_id=%s err=%v", visit.ID, err)
			continue
		}
		if applied {
			completed++
		}
	}
	return completed, nil
}
