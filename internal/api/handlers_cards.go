package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/zodiacbot/zodiacbot/internal/apperr"
	"github.com/zodiacbot/zodiacbot/internal/i18n"
	"github.com/zodiacbot/zodiacbot/internal/oracle"
	"github.com/zodiacbot/zodiacbot/pkg/httpkit"
)

// CardList handles GET /cards/list.
func (h *Handler) CardList(w http.ResponseWriter, r *http.Request) {
	httpkit.JSON(w, http.StatusOK, oracle.Meanings)
}

type cardInterpretation struct {
	Card           string `json:"card"`
	Interpretation string `json:"interpretation"`
}

// InterpretCard handles GET /cards/interpret/{card_name}?question. Without
// a question the card is read as a general reading.
func (h *Handler) InterpretCard(w http.ResponseWriter, r *http.Request) {
	card, err := url.PathUnescape(chi.URLParam(r, "card_name"))
	if err != nil || card == "" {
		h.fail(w, r, apperr.Validation("bad card name").Localize(i18n.KeyInvalidRequest))
		return
	}
	question := r.URL.Query().Get("question")
	if question == "" {
		question = i18n.Text(r.Context(), i18n.KeyGeneralReading)
	}
	res := h.oracle.Interpret(r.Context(), oracle.CardInsight{Card: card, Question: question})
	httpkit.JSON(w, http.StatusOK, cardInterpretation{Card: card, Interpretation: res.Text})
}
