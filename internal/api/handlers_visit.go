/**
 * @description
 * HTTP handlers for the visit scheduling endpoints.
 */

package api

import (
	"encoding/json"
	"net/http"

	"github.com/rentmates/tenancy-service/internal/domain"
)

// RequestVisitHandler creates a pending viewing request.
func (h *Handlers) RequestVisitHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var payload domain.RequestVisitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	visit, err := h.service.RequestVisit(r.Context(), userID, payload)
	if err != nil {
		h.writeServiceError(w, "request_visit", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, visit)
}

// ListVisitsHandler returns the landlord's visit queue.
func (h *Handlers) ListVisitsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	visits, err := h.service.ListVisits(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "list_visits", err)
		return
	}
	h.writeJSON(w, http.StatusOK, visits)
}

// ConfirmVisitHandler accepts a pending visit; virtual visits require a meet
// link in the payload.
func (h *Handlers) ConfirmVisitHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	visitID, ok := h.parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var payload domain.ConfirmVisitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	visit, err := h.service.ConfirmVisit(r.Context(), userID, visitID, payload)
	if err != nil {
		h.writeServiceError(w, "confirm_visit", err)
		return
	}
	h.writeJSON(w, http.StatusOK, visit)
}

// RescheduleVisitHandler moves a visit to a new time.
func (h *Handlers) RescheduleVisitHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	visitID, ok := h.parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var payload domain.RescheduleVisitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	visit, err := h.service.RescheduleVisit(r.Context(), userID, visitID, payload)
	if err != nil {
		h.writeServiceError(w, "reschedule_visit", err)
		return
	}
	h.writeJSON(w, http.StatusOK, visit)
}

// RejectVisitHandler declines a pending visit.
func (h *Handlers) RejectVisitHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	visitID, ok := h.parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	visit, err := h.service.RejectVisit(r.Context(), userID, visitID, payload.Reason)
	if err != nil {
		h.writeServiceError(w, "reject_visit", err)
		return
	}
	h.writeJSON(w, http.StatusOK, visit)
}
