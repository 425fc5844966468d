package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zodiacbot/zodiacbot/internal/apperr"
	"github.com/zodiacbot/zodiacbot/internal/i18n"
	"github.com/zodiacbot/zodiacbot/internal/storage"
	"github.com/zodiacbot/zodiacbot/pkg/httpkit"
)

type tarotDrawRequest struct {
	UserID     string `json:"user_id"`
	Question   string `json:"question"`
	SpreadType string `json:"spread_type"`
}

type tarotDrawResponse struct {
	Cards          []string  `json:"cards"`
	Interpretation string    `json:"interpretation"`
	Date           time.Time `json:"date"`
}

// TarotDraw handles POST /tarot/draw.
func (h *Handler) TarotDraw(w http.ResponseWriter, r *http.Request) {
	var req tarotDrawRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.oracle.DrawTarot(r.Context(), req.UserID, req.Question, req.SpreadType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("tarot draw", "user", req.UserID, "spread", req.SpreadType, "outcome", res.Outcome)
	httpkit.JSON(w, http.StatusOK, tarotDrawResponse{Cards: res.Cards, Interpretation: res.Interpretation, Date: res.Date})
}

// coffeeFortuneRequest accepts both the bot's and the mini-app's field names.
type coffeeFortuneRequest struct {
	UserID      string `json:"user_id"`
	UserIDAlt   string `json:"userId"`
	Question    string `json:"question"`
	ImageBase64 string `json:"image_base64"`
	Photo       string `json:"photo"`
}

func (req coffeeFortuneRequest) handle() string {
	if req.UserID != "" {
		return req.UserID
	}
	return req.UserIDAlt
}

func (req coffeeFortuneRequest) image() string {
	if req.ImageBase64 != "" {
		return req.ImageBase64
	}
	return req.Photo
}

type coffeeFortuneResponse struct {
	Interpretation string    `json:"interpretation"`
	Date           time.Time `json:"date"`
}

// CoffeeFortune handles POST /coffee/fortune.
func (h *Handler) CoffeeFortune(w http.ResponseWriter, r *http.Request) {
	var req coffeeFortuneRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.oracle.CoffeeFortune(r.Context(), req.handle(), req.Question, req.image())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("coffee fortune", "user", req.handle(), "outcome", res.Outcome)
	httpkit.JSON(w, http.StatusOK, coffeeFortuneResponse{Interpretation: res.Interpretation, Date: res.Date})
}

// historyItem is one record as the history endpoints render it.
type historyItem struct {
	ID             string `json:"id"`
	Kind           string `json:"kind,omitempty"`
	Date           string `json:"date"`
	Question       string `json:"question"`
	Cards          string `json:"cards,omitempty"`
	ImageID        string `json:"image_id,omitempty"`
	Interpretation string `json:"interpretation"`
	Notes          string `json:"notes"`
	Summary        string `json:"summary"`
}

func (h *Handler) renderHistory(r *http.Request, records []storage.Record, withKind bool) []historyItem {
	layout := i18n.Text(r.Context(), i18n.KeyDateLayout)
	items := make([]historyItem, 0, len(records))
	for _, rec := range records {
		item := historyItem{
			ID:             rec.ID,
			Date:           rec.CreatedAt.Format(layout),
			Question:       rec.Question,
			Cards:          strings.Join(rec.Cards, ", "),
			ImageID:        rec.ImageRef,
			Interpretation: rec.Interpretation,
			Notes:          rec.Notes,
			Summary:        rec.Summary,
		}
		if withKind {
			item.Kind = string(rec.Kind)
		}
		items = append(items, item)
	}
	return items
}

type historyResponse struct {
	Status  string        `json:"status"`
	History []historyItem `json:"history"`
}

// recentForKnownUser lists kind records for handle. Unknown users get an
// empty list and are not created.
func (h *Handler) recentForKnownUser(r *http.Request, handle string, kind storage.Kind) ([]storage.Record, error) {
	u, err := h.profiles.Get(r.Context(), handle)
	if apperr.CodeOf(err) == apperr.CodeNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return h.ledger.ListRecent(r.Context(), kind, u.ID)
}

// TarotHistory handles GET /tarot/user/history?user_id.
func (h *Handler) TarotHistory(w http.ResponseWriter, r *http.Request) {
	handle, err := userParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := h.recentForKnownUser(r, handle, storage.KindTarot)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpkit.JSON(w, http.StatusOK, historyResponse{Status: "success", History: h.renderHistory(r, records, false)})
}

// CoffeeHistory handles GET /coffee/history?user_id.
func (h *Handler) CoffeeHistory(w http.ResponseWriter, r *http.Request) {
	handle, err := userParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := h.recentForKnownUser(r, handle, storage.KindCoffee)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpkit.JSON(w, http.StatusOK, h.renderHistory(r, records, false))
}

// updateEntry handles PUT /{kind}/update-entry?user_id&entry_id&notes&summary.
// Empty notes or summary are treated as absent.
func (h *Handler) updateEntry(kind storage.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		q := r.URL.Query()
		var patch storage.RecordPatch
		if v := q.Get("notes"); v != "" {
			patch.Notes = &v
		}
		if v := q.Get("summary"); v != "" {
			patch.Summary = &v
		}
		if err := h.ledger.UpdateFields(r.Context(), kind, u.ID, q.Get("entry_id"), patch); err != nil {
			h.fail(w, r, err)
			return
		}
		h.ok(w, r, i18n.KeyEntryUpdated)
	}
}

// deleteEntry handles DELETE /{kind}/delete-entry/{entry_id}?user_id.
func (h *Handler) deleteEntry(kind storage.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		if err := h.ledger.DeleteOne(r.Context(), kind, u.ID, chi.URLParam(r, "entry_id")); err != nil {
			h.fail(w, r, err)
			return
		}
		h.ok(w, r, i18n.KeyEntryDeleted)
	}
}

type clearResponse struct {
	Status       string `json:"status"`
	DeletedCount int    `json:"deleted_count"`
}

// ClearAllHistory handles DELETE /tarot/clear-history?user_id, which
// removes tarot and coffee records alike.
func (h *Handler) ClearAllHistory(w http.ResponseWriter, r *http.Request) {
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
	n, err := h.ledger.DeleteAllForUser(r.Context(), u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpkit.JSON(w, http.StatusOK, clearResponse{Status: "success", DeletedCount: n})
}

// ClearCoffeeHistory handles DELETE /coffee/clear-history?user_id.
func (h *Handler) ClearCoffeeHistory(w http.ResponseWriter, r *http.Request) {
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
	n, err := h.ledger.DeleteAllOfKind(r.Context(), storage.KindCoffee, u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpkit.JSON(w, http.StatusOK, clearResponse{Status: "success", DeletedCount: n})
}
