/**
 * @description
 * This file sets up the HTTP router for the tenancy service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies middleware for logging, CORS, and authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for chi.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and returns the router for the tenancy service.
func NewRouter(h *Handlers, jwtSecret, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// User-facing routes require a session token.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		// Join requests
		r.Post("/join-requests", h.SubmitJoinRequestHandler)
		r.Get("/join-requests", h.ListJoinRequestsHandler)
		r.Get("/join-requests/{id}", h.GetJoinRequestHandler)
		r.Post("/join-requests/{id}/approve", h.ApproveJoinRequestHandler)
		r.Post("/join-requests/{id}/reject", h.RejectJoinRequestHandler)

		// Contracts
		r.Get("/contracts/{id}", h.GetContractHandler)
		r.Post("/contracts/{id}/sign", h.SignContractHandler)
		r.Patch("/contracts/{id}/terms", h.AmendContractTermsHandler)
		r.Get("/contracts/{id}/rent-cycles", h.ListRentCyclesHandler)
		r.Post("/contracts/{id}/terminate", h.InitiateTerminationHandler)
		r.Post("/contracts/{id}/termination/resolve", h.ResolveTerminationHandler)

		// Rent cycles
		r.Post("/rent-cycles/{id}/pay", h.PayRentHandler)

		// Wallet and ledger
		r.Post("/wallet/connect", h.ConnectWalletHandler)
		r.Get("/wallet/balance", h.GetBalanceHandler)
		r.Get("/wallet/transactions", h.ListTransactionsHandler)
		r.Get("/wallet/consistency", h.CheckLedgerConsistencyHandler)
		r.Post("/wallet/deposits", h.RecordDepositHandler)
		r.Post("/wallet/withdrawals", h.WithdrawHandler)

		// Visits
		r.Post("/visits", h.RequestVisitHandler)
		r.Get("/visits", h.ListVisitsHandler)
		r.Post("/visits/{id}/confirm", h.ConfirmVisitHandler)
		r.Post("/visits/{id}/reschedule", h.RescheduleVisitHandler)
		r.Post("/visits/{id}/reject", h.RejectVisitHandler)
	})

	// Internal callbacks from the vault watcher.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/internal/deposits/{hash}/confirm", h.ConfirmDepositCallbackHandler)
		r.Post("/internal/deposits/{hash}/fail", h.FailDepositCallbackHandler)
	})

	return r
}
