package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zodiacbot/zodiacbot/internal/paysim/store"
	"github.com/zodiacbot/zodiacbot/pkg/httpkit"
)

// createPaymentRequest is the JSON body for POST /v3/payments.
type createPaymentRequest struct {
	Amount       store.Amount       `json:"amount"`
	Confirmation store.Confirmation `json:"confirmation"`
	Capture      bool               `json:"capture"`
	Description  string             `json:"description"`
	Metadata     map[string]string  `json:"metadata"`
}

// validate returns the offending parameter and a description, or "" when
// the request is acceptable.
func (req createPaymentRequest) validate() (string, string) {
	v, err := strconv.ParseFloat(req.Amount.Value, 64)
	if err != nil || v <= 0 {
		return "amount.value", "Amount value must be a positive decimal"
	}
	if len(req.Amount.Currency) != 3 {
		return "amount.currency", "Currency must be an ISO-4217 code"
	}
	if req.Confirmation.Type != "redirect" {
		return "confirmation.type", "Only redirect confirmation is supported"
	}
	if req.Confirmation.ReturnURL == "" {
		return "confirmation.return_url", "Return URL is required for redirect confirmation"
	}
	if len(req.Description) > 128 {
		return "description", "Description must not exceed 128 characters"
	}
	return "", ""
}

// CreatePayment handles POST /v3/payments.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "", "Invalid JSON body: "+err.Error())
		return
	}
	if param, desc := req.validate(); param != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", param, desc)
		return
	}

	p, replayed := h.store.Create(r.Header.Get("Idempotence-Key"), store.CreateRequest{
		Amount:       req.Amount,
		Confirmation: req.Confirmation,
		Capture:      req.Capture,
		Description:  req.Description,
		Metadata:     req.Metadata,
	})
	h.logger.Debug("payment created", "id", p.ID, "amount", p.Amount.Value, "replayed", replayed)
	httpkit.JSON(w, http.StatusOK, p)
}

// GetPayment handles GET /v3/payments/{id}. The id may also be the
// Idempotence-Key the payment was created with.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := h.store.Resolve(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "payment_id", "Payment not found: "+id)
		return
	}
	httpkit.JSON(w, http.StatusOK, p)
}

// paymentList is the list envelope.
type paymentList struct {
	Type       string          `json:"type"`
	Items      []store.Payment `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// ListPayments handles GET /v3/payments?limit&cursor&status.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		items := h.store.Filter(status)
		if items == nil {
			items = []store.Payment{}
		}
		httpkit.JSON(w, http.StatusOK, paymentList{Type: "list", Items: items})
		return
	}

	limit := 10
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit", "Limit must be between 1 and 100")
			return
		}
		limit = n
	}
	page := h.store.Payments.Paginate(q.Get("cursor"), limit)
	httpkit.JSON(w, http.StatusOK, paymentList{Type: "list", Items: page.Items, NextCursor: page.NextCursor})
}

// AdminSucceedPayment handles POST /admin/payments/{id}/succeed, standing
// in for the payer completing checkout.
func (h *Handler) AdminSucceedPayment(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, h.store.Succeed)
}

// AdminCancelPayment handles POST /admin/payments/{id}/cancel.
func (h *Handler) AdminCancelPayment(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, h.store.Cancel)
}

func (h *Handler) adminTransition(w http.ResponseWriter, r *http.Request, fn func(string) (store.Payment, error)) {
	id := chi.URLParam(r, "id")
	p, err := fn(id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpkit.Error(w, http.StatusNotFound, "no such payment: "+id)
	case errors.Is(err, store.ErrFinal):
		httpkit.Error(w, http.StatusConflict, "payment "+p.ID+" is already "+p.Status)
	case err != nil:
		httpkit.Error(w, http.StatusInternalServerError, err.Error())
	default:
		h.logger.Info("payment transitioned", "id", p.ID, "status", p.Status)
		httpkit.JSON(w, http.StatusOK, p)
	}
}
