package api

import (
	"net/http"

	"github.com/zodiacbot/zodiacbot/internal/oracle"
	"github.com/zodiacbot/zodiacbot/pkg/httpkit"
)

// directRequest carries every field the direct reading endpoints accept.
// Each endpoint reads the subset its reading needs.
type directRequest struct {
	Cards              []int    `json:"cards"`
	Area               string   `json:"area"`
	ReadingType        string   `json:"readingType"`
	TimePeriods        []string `json:"timePeriods"`
	Category           string   `json:"category"`
	Runes              []int    `json:"runes"`
	RelationshipAspect string   `json:"relationshipAspect"`
	RuneAspect         string   `json:"runeAspect"`
	Aspect             string   `json:"aspect"`
	Type               string   `json:"type"`
}

// direct builds a handler that interprets the reading returned by build
// and replies with {field: text}. Nothing is persisted.
func (h *Handler) direct(field string, build func(directRequest) oracle.Reading) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req directRequest
		if err := decode(w, r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		reading := build(req)
		res := h.oracle.Interpret(r.Context(), reading)
		h.logger.Info("direct reading", "reading", reading.Name(), "user", r.URL.Query().Get("user_id"), "outcome", res.Outcome)
		httpkit.JSON(w, http.StatusOK, map[string]string{field: res.Text})
	}
}

// CoffeeInterpret handles POST /coffee-interpret.
func (h *Handler) CoffeeInterpret(w http.ResponseWriter, r *http.Request) {
	h.direct("interpretation", func(req directRequest) oracle.Reading {
		return oracle.CoffeeSymbols{Area: req.Area, Cards: req.Cards, ReadingType: req.ReadingType}
	})(w, r)
}

// TarotReveal handles POST /tarot-reveal.
func (h *Handler) TarotReveal(w http.ResponseWriter, r *http.Request) {
	h.direct("interpretation", func(req directRequest) oracle.Reading {
		return oracle.TarotReveal{Cards: req.Cards, ReadingType: req.ReadingType, TimePeriods: req.TimePeriods}
	})(w, r)
}

// RunesReveal handles POST /runes-reveal.
func (h *Handler) RunesReveal(w http.ResponseWriter, r *http.Request) {
	h.direct("interpretation", func(req directRequest) oracle.Reading {
		return oracle.RuneReading{Runes: req.Runes, RelationshipAspect: req.RelationshipAspect, RuneAspect: req.RuneAspect}
	})(w, r)
}

// PersonalForecast handles POST /personal-forecast.
func (h *Handler) PersonalForecast(w http.ResponseWriter, r *http.Request) {
	h.direct("forecast", func(req directRequest) oracle.Reading {
		return oracle.PersonalForecast{Cards: req.Cards, Category: req.Category}
	})(w, r)
}

// Analyze handles POST /analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	h.direct("analysis", func(req directRequest) oracle.Reading {
		return oracle.SituationAnalysis{Cards: req.Cards, Category: req.Category}
	})(w, r)
}

// SpiritualGrowth handles POST /spiritual-growth.
func (h *Handler) SpiritualGrowth(w http.ResponseWriter, r *http.Request) {
	h.direct("advice", func(req directRequest) oracle.Reading {
		return oracle.SpiritualGrowth{Cards: req.Cards, Aspect: req.Aspect}
	})(w, r)
}

// TarotReading handles POST /tarot-reading.
func (h *Handler) TarotReading(w http.ResponseWriter, r *http.Request) {
	h.direct("reading", func(req directRequest) oracle.Reading {
		return oracle.TarotSpread{Type: req.Type}
	})(w, r)
}

type promptRequest struct {
	Mode     string `json:"mode"`
	Question string `json:"question"`
	Context  struct {
		Cards []string `json:"cards"`
	} `json:"context"`
}

// AIPrompt handles POST /ai/prompt.
func (h *Handler) AIPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res := h.oracle.Interpret(r.Context(), oracle.FreePrompt{Mode: req.Mode, Question: req.Question, Cards: req.Context.Cards})
	httpkit.JSON(w, http.StatusOK, map[string]string{"response": res.Text})
}
