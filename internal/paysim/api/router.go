// Package api implements the YooKassa-compatible HTTP API of the payment
// simulator.
package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zodiacbot/zodiacbot/internal/paysim/store"
	"github.com/zodiacbot/zodiacbot/pkg/httpkit"
)

// Credentials is the shop account the simulator accepts. Empty fields
// accept any non-empty value.
type Credentials struct {
	ShopID    string
	SecretKey string
}

// Handler holds all API handler state.
type Handler struct {
	store  *store.MemoryStore
	mw     *httpkit.Middleware
	creds  Credentials
	logger *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s *store.MemoryStore, mw *httpkit.Middleware, creds Credentials, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: s, mw: mw, creds: creds, logger: logger}
}

// Routes mounts the v3 payments API and the simulator's payment admin
// endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v3", func(r chi.Router) {
		r.Use(h.authMiddleware)
		// Fault injection for API routes (not admin)
		r.Use(h.mw.FaultInjection)
		r.Use(h.idempotencyMiddleware)

		r.Post("/payments", h.CreatePayment)
		r.Get("/payments/{id}", h.GetPayment)
		r.Get("/payments", h.ListPayments)
	})

	// Outside /v3, no auth
	r.Post("/admin/payments/{id}/succeed", h.AdminSucceedPayment)
	r.Post("/admin/payments/{id}/cancel", h.AdminCancelPayment)
}

// authMiddleware validates HTTP Basic shop credentials.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shopID, secret, ok := r.BasicAuth()
		if !ok || shopID == "" || secret == "" || !h.credentialsMatch(shopID, secret) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "",
				"Authentication by given credentials failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) credentialsMatch(shopID, secret string) bool {
	if h.creds.ShopID != "" && subtle.ConstantTimeCompare([]byte(shopID), []byte(h.creds.ShopID)) != 1 {
		return false
	}
	if h.creds.SecretKey != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(h.creds.SecretKey)) != 1 {
		return false
	}
	return true
}

// apiError is the gateway's error body.
type apiError struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Parameter   string `json:"parameter,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, parameter, description string) {
	httpkit.JSON(w, status, apiError{
		Type:        "error",
		ID:          uuid.NewString(),
		Code:        code,
		Description: description,
		Parameter:   parameter,
	})
}
