/**
 * @description
 * This file contains the HTTP handlers for the join-request endpoints, plus
 * the response helpers shared by every handler file. Handlers parse the
 * request, call the service, and map service errors to HTTP codes; business
 * rules live entirely in the app layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: Service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rentmates/tenancy-service/internal/app"
	"github.com/rentmates/tenancy-service/internal/domain"
	"github.com/rentmates/tenancy-service/internal/store"
)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service *app.Service
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service) *Handlers {
	return &Handlers{service: service}
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the service error taxonomy to HTTP status codes.
// Unrecognized errors become a 500 with a log line; the body never leaks
// internals.
func (h *Handlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, app.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "You are not permitted to act on this resource")
	case errors.Is(err, app.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrOutOfOrderSignature),
		errors.Is(err, app.ErrSignatureConflict),
		errors.Is(err, app.ErrContractImmutable):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidBid),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrInvalidWalletAddress),
		errors.Is(err, app.ErrMissingSignatureRef),
		errors.Is(err, app.ErrMeetLinkRequired):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrWalletNotConnected):
		h.writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, store.ErrDuplicateRequest):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrHoldExists):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrJoinRequestNotFound),
		errors.Is(err, store.ErrContractNotFound),
		errors.Is(err, store.ErrWalletNotFound),
		errors.Is(err, store.ErrTransactionNotFound),
		errors.Is(err, store.ErrRentCycleNotFound),
		errors.Is(err, store.ErrHoldNotFound),
		errors.Is(err, store.ErrVisitNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("level=error component=api endpoint=%s outcome=failed err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// requireUser pulls the authenticated user id off the context.
func (h *Handlers) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return uuid.Nil, false
	}
	return userID, true
}

// parseIDParam parses a UUID path parameter.
func (h *Handlers) parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalInt(value string, fallback int) (int, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

// SubmitJoinRequestHandler handles a student's bid on a property.
func (h *Handlers) SubmitJoinRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var payload domain.SubmitJoinRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("level=warn component=api endpoint=submit_join_request outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	jr, err := h.service.SubmitJoinRequest(r.Context(), userID, payload)
	if err != nil {
		h.writeServiceError(w, "submit_join_request", err)
		return
	}

	log.Printf("level=info component=api endpoint=submit_join_request outcome=accepted student_id=%s property_id=%s bid=%d", userID, payload.PropertyID, payload.BidAmount)
	h.writeJSON(w, http.StatusCreated, jr)
}

// ListJoinRequestsHandler returns the caller's requests, as student or
// landlord depending on the token role.
func (h *Handlers) ListJoinRequestsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	requests, err := h.service.ListJoinRequests(r.Context(), userID, GetUserRole(r.Context()))
	if err != nil {
		h.writeServiceError(w, "list_join_requests", err)
		return
	}
	h.writeJSON(w, http.StatusOK, requests)
}

// GetJoinRequestHandler returns one request to one of its parties.
func (h *Handlers) GetJoinRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	requestID, ok := h.parseIDParam(w, r, "id")
	if !ok {
		return
	}

	jr, err := h.service.GetJoinRequest(r.Context(), userID, requestID)
	if err != nil {
		h.writeServiceError(w, "get_join_request", err)
		return
	}
	h.writeJSON(w, http.StatusOK, jr)
}

// ApproveJoinRequestHandler approves a pending request and returns the
// materialized contract alongside it.
func (h *Handlers) ApproveJoinRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	requestID, ok := h.parseIDParam(w, r, "id")
	if !ok {
		return
	}

	jr, contract, err := h.service.ApproveJoinRequest(r.Context(), userID, requestID)
	if err != nil {
		h.writeServiceError(w, "approve_join_request", err)
		return
	}

	log.Printf("level=info component=api endpoint=approve_join_request outcome=accepted landlord_id=%s join_request_id=%s contract_id=%s", userID, jr.ID, contract.ID)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"join_request": jr,
		"contract":     contract,
	})
}

// RejectJoinRequestHandler rejects a pending request with a reason.
func (h *Handlers) RejectJoinRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	requestID, ok := h.parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var payload domain.RejectJoinRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	jr, err := h.service.RejectJoinRequest(r.Context(), userID, requestID, payload.Reason)
	if err != nil {
		h.writeServiceError(w, "reject_join_request", err)
		return
	}
	h.writeJSON(w, http.StatusOK, jr)
}
