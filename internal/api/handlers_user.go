package api

import (
	"context"
	"net/http"
	"time"

	"github.com/zodiacbot/zodiacbot/internal/billing"
	"github.com/zodiacbot/zodiacbot/internal/i18n"
	"github.com/zodiacbot/zodiacbot/internal/identity"
	"github.com/zodiacbot/zodiacbot/internal/storage"
	"github.com/zodiacbot/zodiacbot/pkg/httpkit"
)

// Profile handles GET /user/profile?user_id. The profile is created on
// first contact.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	handle, err := userParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.profiles.GetOrCreate(r.Context(), handle)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpkit.JSON(w, http.StatusOK, u)
}

// UpdateProfile handles POST /user/update-profile?user_id&telegram_name&full_name.
// Only parameters present in the query are written.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	handle, err := userParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	var upd identity.ProfileUpdate
	if q.Has("telegram_name") {
		v := q.Get("telegram_name")
		upd.DisplayName = &v
	}
	if q.Has("full_name") {
		v := q.Get("full_name")
		upd.FullName = &v
	}
	u, err := h.profiles.Update(r.Context(), handle, upd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpkit.JSON(w, http.StatusOK, u)
}

type planRequest struct {
	UserID string `json:"user_id"`
	Plan   string `json:"plan"`
}

type expiresResponse struct {
	Status  string     `json:"status"`
	Expires *time.Time `json:"expires"`
}

// Subscribe handles POST /user/subscribe.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	h.activate(w, r, h.billing.Subscribe)
}

// RenewSubscription handles POST /user/renew-subscription.
func (h *Handler) RenewSubscription(w http.ResponseWriter, r *http.Request) {
	h.activate(w, r, h.billing.Renew)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, handle, plan string) (billing.Subscription, error)) {
	var req planRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sub, err := fn(r.Context(), req.UserID, req.Plan)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpkit.JSON(w, http.StatusOK, expiresResponse{Status: "success", Expires: sub.ExpiresAt})
}

// SubscriptionStatus handles GET /user/subscription-status?user_id.
func (h *Handler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	handle, err := userParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sub, err := h.billing.CheckStatus(r.Context(), handle)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpkit.JSON(w, http.StatusOK, sub)
}

// Referral handles POST /user/referral?user_id&referrer_id.
func (h *Handler) Referral(w http.ResponseWriter, r *http.Request) {
	handle, err := userParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.billing.AddReferral(r.Context(), handle, r.URL.Query().Get("referrer_id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, i18n.KeyReferralAdded, billing.ReferralBonus)
}

// DeleteTarotHistory handles POST /user/delete-tarot-history?user_id.
func (h *Handler) DeleteTarotHistory(w http.ResponseWriter, r *http.Request) {
	handle, err := userParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.profiles.Get(r.Context(), handle)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.ledger.DeleteAllOfKind(r.Context(), storage.KindTarot, u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, i18n.KeyTarotHistoryWiped, n)
}

// UserHistory handles GET /user/history?user_id: recent tarot and coffee
// records merged, newest first.
func (h *Handler) UserHistory(w http.ResponseWriter, r *http.Request) {
	handle, err := userParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.profiles.Get(r.Context(), handle)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := h.ledger.ListAllRecent(r.Context(), u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpkit.JSON(w, http.StatusOK, historyResponse{Status: "success", History: h.renderHistory(r, records, true)})
}
