package api

import (
	"net/http"

	"github.com/zodiacbot/zodiacbot/internal/i18n"
	"github.com/zodiacbot/zodiacbot/pkg/httpkit"
)

// CreateCheckout handles POST /payment/create-checkout-session.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	co, err := h.billing.CreateCheckout(r.Context(), req.UserID, req.Plan)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpkit.JSON(w, http.StatusOK, co)
}

// PaymentSuccess handles GET /payment/success?payment_id, the return leg of
// a checkout. It is safe to call repeatedly.
func (h *Handler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	sub, err := h.billing.Reconcile(r.Context(), r.URL.Query().Get("payment_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpkit.JSON(w, http.StatusOK, expiresResponse{Status: "success", Expires: sub.ExpiresAt})
}

// PaymentCancel handles GET /payment/cancel.
func (h *Handler) PaymentCancel(w http.ResponseWriter, r *http.Request) {
	status := h.billing.Cancel(r.Context(), r.URL.Query().Get("user_id"))
	httpkit.JSON(w, http.StatusOK, statusMessage{Status: status, Message: i18n.Text(r.Context(), i18n.KeyPaymentCancelled)})
}

type autopaymentRequest struct {
	UserID  string `json:"userId"`
	Enabled bool   `json:"enabled"`
}

// UpdateAutopayment handles POST /payment/update-autopayment.
func (h *Handler) UpdateAutopayment(w http.ResponseWriter, r *http.Request) {
	var req autopaymentRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.billing.SetAutopayment(r.Context(), req.UserID, req.Enabled); err != nil {
		h.fail(w, r, err)
		return
	}
	key := i18n.KeyAutopaymentOff
	if req.Enabled {
		key = i18n.KeyAutopaymentEnabled
	}
	h.ok(w, r, key, req.UserID)
}

