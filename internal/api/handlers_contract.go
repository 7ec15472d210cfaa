/**
 * @description
 * HTTP handlers for the contract endpoints: read, sign, amend terms, list the
 * rent schedule, pay a cycle, and the termination flow.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/rentmates/tenancy-service/internal/domain"
)

// GetContractHandler returns a contract to one of its parties.
func (h *Handlers) GetContractHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	contractID, ok := h.parseIDParam(w, r, "id")
	if !ok {
		return
	}

	contract, err := h.service.GetContract(r.Context(), userID, contractID)
	if err != nil {
		h.writeServiceError(w, "get_contract", err)
		return
	}
	h.writeJSON(w, http.StatusOK, contract)
}

// SignContractHandler records the caller's signature. The signature reference
// comes from the wallet interaction the client already completed.
func (h *Handlers) SignContractHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	contractID, ok := h.parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var payload domain.SignContractPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	contract, err := h.service.SignContract(r.Context(), userID, contractID, payload)
	if err != nil {
		h.writeServiceError(w, "sign_contract", err)
		return
	}

	log.Printf("level=info component=api endpoint=sign_contract outcome=accepted user_id=%s contract_id=%s fully_signed=%t", userID, contract.ID, contract.FullySigned())
	h.writeJSON(w, http.StatusOK, contract)
}

// AmendContractTermsHandler lets the landlord adjust terms before both
// signatures land.
func (h *Handlers) AmendContractTermsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	contractID, ok := h.parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var payload domain.AmendContractTermsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	contract, err := h.service.AmendContractTerms(r.Context(), userID, contractID, payload)
	if err != nil {
		h.writeServiceError(w, "amend_contract_terms", err)
		return
	}
	h.writeJSON(w, http.StatusOK, contract)
}

// ListRentCyclesHandler returns the rent schedule for a contract.
func (h *Handlers) ListRentCyclesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	contractID, ok := h.parseIDParam(w, r, "id")
	if !ok {
		return
	}

	cycles, err := h.service.ListRentCycles(r.Context(), userID, contractID)
	if err != nil {
		h.writeServiceError(w, "list_rent_cycles", err)
		return
	}
	h.writeJSON(w, http.StatusOK, cycles)
}

// PayRentHandler settles one rent cycle from the caller's balance.
func (h *Handlers) PayRentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	cycleID, ok := h.parseIDParam(w, r, "id")
	if !ok {
		return
	}

	cycle, err := h.service.PayRent(r.Context(), userID, cycleID)
	if err != nil {
		h.writeServiceError(w, "pay_rent", err)
		return
	}

	log.Printf("level=info component=api endpoint=pay_rent outcome=accepted student_id=%s cycle_id=%s amount=%d", userID, cycle.ID, cycle.Amount)
	h.writeJSON(w, http.StatusOK, cycle)
}

// InitiateTerminationHandler ends the lease and opens the deposit hold.
func (h *Handlers) InitiateTerminationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	contractID, ok := h.parseIDParam(w, r, "id")
	if !ok {
		return
	}

	hold, err := h.service.InitiateTermination(r.Context(), userID, contractID)
	if err != nil {
		h.writeServiceError(w, "initiate_termination", err)
		return
	}

	log.Printf("level=info component=api endpoint=initiate_termination outcome=accepted user_id=%s contract_id=%s hold_id=%s", userID, contractID, hold.ID)
	h.writeJSON(w, http.StatusCreated, hold)
}

// ResolveTerminationHandler handles the landlord release, the dispute park,
// and the dispute clear.
func (h *Handlers) ResolveTerminationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	contractID, ok := h.parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var payload domain.ResolveTerminationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	hold, err := h.service.ResolveTermination(r.Context(), userID, contractID, payload)
	if err != nil {
		h.writeServiceError(w, "resolve_termination", err)
		return
	}
	h.writeJSON(w, http.StatusOK, hold)
}
