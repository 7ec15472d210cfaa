/**
 * @description
 * HTTP handlers for the wallet and ledger endpoints: connecting an on-chain
 * address, recording and confirming deposits, withdrawals, balance and
 * history reads, and the ledger consistency audit. The deposit confirm/fail
 * callbacks are internal endpoints for the vault watcher, guarded by the
 * shared API key rather than a user token.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rentmates/tenancy-service/internal/domain"
)

// ConnectWalletHandler links an on-chain address to the caller's account.
func (h *Handlers) ConnectWalletHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var payload domain.ConnectWalletPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.service.ConnectWallet(r.Context(), userID, payload)
	if err != nil {
		h.writeServiceError(w, "connect_wallet", err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// GetBalanceHandler returns the spendable balance and pending deposit total.
func (h *Handlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "get_balance", err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

// ListTransactionsHandler returns the caller's ledger history, newest first.
func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	limit, err := parseOptionalInt(r.URL.Query().Get("limit"), 50)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, err := parseOptionalInt(r.URL.Query().Get("offset"), 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	transactions, err := h.service.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeServiceError(w, "list_transactions", err)
		return
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

// RecordDepositHandler records a deposit the client already submitted
// on-chain. The row stays pending until the watcher confirms it.
func (h *Handlers) RecordDepositHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var payload domain.RecordDepositPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.service.RecordDeposit(r.Context(), userID, payload)
	if err != nil {
		h.writeServiceError(w, "record_deposit", err)
		return
	}

	log.Printf("level=info component=api endpoint=record_deposit outcome=accepted user_id=%s tx_id=%s amount=%d", userID, tx.ID, tx.Amount)
	h.writeJSON(w, http.StatusCreated, tx)
}

// WithdrawHandler requests a withdrawal to the connected address.
func (h *Handlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var payload domain.WithdrawPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.service.Withdraw(r.Context(), userID, payload)
	if err != nil {
		h.writeServiceError(w, "withdraw", err)
		return
	}

	log.Printf("level=info component=api endpoint=withdraw outcome=accepted user_id=%s tx_id=%s amount=%d", userID, tx.ID, tx.Amount)
	h.writeJSON(w, http.StatusCreated, tx)
}

// CheckLedgerConsistencyHandler recomputes the caller's balance from the
// transaction log and reports both figures.
func (h *Handlers) CheckLedgerConsistencyHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	stored, computed, err := h.service.CheckLedgerConsistency(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "ledger_consistency", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"stored_balance":   stored,
		"computed_balance": computed,
		"consistent":       stored == computed,
	})
}

// ConfirmDepositCallbackHandler is the vault watcher's confirmation callback.
// Idempotent: replays of the same hash return the settled row.
func (h *Handlers) ConfirmDepositCallbackHandler(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if hash == "" {
		h.writeError(w, http.StatusBadRequest, "Transaction hash is required")
		return
	}

	tx, err := h.service.ConfirmDeposit(r.Context(), hash)
	if err != nil {
		h.writeServiceError(w, "confirm_deposit_callback", err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// FailDepositCallbackHandler is the vault watcher's failure callback.
func (h *Handlers) FailDepositCallbackHandler(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if hash == "" {
		h.writeError(w, http.StatusBadRequest, "Transaction hash is required")
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Reason == "" {
		payload.Reason = "on-chain transaction failed"
	}

	if err := h.service.FailDeposit(r.Context(), hash, payload.Reason); err != nil {
		h.writeServiceError(w, "fail_deposit_callback", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}
