// Package api implements the ZodiacBot HTTP API: tarot and coffee readings
// with history, user profiles and subscriptions, checkout, and the direct
// reading endpoints used by the mini-app.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	"github.com/zodiacbot/zodiacbot/internal/apperr"
	"github.com/zodiacbot/zodiacbot/internal/billing"
	"github.com/zodiacbot/zodiacbot/internal/history"
	"github.com/zodiacbot/zodiacbot/internal/i18n"
	"github.com/zodiacbot/zodiacbot/internal/identity"
	"github.com/zodiacbot/zodiacbot/internal/oracle"
	"github.com/zodiacbot/zodiacbot/internal/storage"
	"github.com/zodiacbot/zodiacbot/pkg/clock"
	"github.com/zodiacbot/zodiacbot/pkg/httpkit"
)

// maxBodyBytes bounds request bodies; coffee photos arrive inline as base64.
const maxBodyBytes = 10 << 20

// Deps are the services the handlers call.
type Deps struct {
	APIKey   string
	Locale   language.Tag
	Profiles *identity.Service
	Ledger   *history.Ledger
	Oracle   *oracle.Pipeline
	Billing  *billing.Engine
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Handler holds all API handler state.
type Handler struct {
	apiKey   []byte
	locale   language.Tag
	profiles *identity.Service
	ledger   *history.Ledger
	oracle   *oracle.Pipeline
	billing  *billing.Engine
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	return &Handler{
		apiKey:   []byte(d.APIKey),
		locale:   d.Locale,
		profiles: d.Profiles,
		ledger:   d.Ledger,
		oracle:   d.Oracle,
		billing:  d.Billing,
		clock:    d.Clock,
		logger:   d.Logger,
		tracer:   otel.Tracer("github.com/zodiacbot/zodiacbot/internal/api"),
	}
}

// Routes mounts the API.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.traceMiddleware)
	r.Use(h.languageMiddleware)

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Route("/tarot", func(r chi.Router) {
			r.Post("/draw", h.TarotDraw)
			r.Get("/user/history", h.TarotHistory)
			r.Put("/update-entry", h.updateEntry(storage.KindTarot))
			r.Delete("/delete-entry/{entry_id}", h.deleteEntry(storage.KindTarot))
			r.Delete("/clear-history", h.ClearAllHistory)
		})

		r.Route("/coffee", func(r chi.Router) {
			r.Post("/fortune", h.CoffeeFortune)
			r.Get("/history", h.CoffeeHistory)
			r.Put("/update-entry", h.updateEntry(storage.KindCoffee))
			r.Delete("/delete-entry/{entry_id}", h.deleteEntry(storage.KindCoffee))
			r.Delete("/clear-history", h.ClearCoffeeHistory)
		})

		r.Route("/user", func(r chi.Router) {
			r.Get("/profile", h.Profile)
			r.Post("/update-profile", h.UpdateProfile)
			r.Post("/subscribe", h.Subscribe)
			r.Post("/renew-subscription", h.RenewSubscription)
			r.Get("/subscription-status", h.SubscriptionStatus)
			r.Post("/referral", h.Referral)
			r.Post("/delete-tarot-history", h.DeleteTarotHistory)
			r.Get("/history", h.UserHistory)
		})

		r.Route("/payment", func(r chi.Router) {
			r.Post("/create-checkout-session", h.CreateCheckout)
			r.Get("/success", h.PaymentSuccess)
			r.Get("/cancel", h.PaymentCancel)
			r.Post("/update-autopayment", h.UpdateAutopayment)
		})

		r.Post("/coffee-interpret", h.CoffeeInterpret)
		r.Post("/tarot-reveal", h.TarotReveal)
		r.Post("/runes-reveal", h.RunesReveal)
		r.Post("/personal-forecast", h.PersonalForecast)
		r.Post("/analyze", h.Analyze)
		r.Post("/spiritual-growth", h.SpiritualGrowth)
		r.Post("/tarot-reading", h.TarotReading)

		r.Post("/ai/prompt", h.AIPrompt)

		r.Get("/cards/list", h.CardList)
		r.Get("/cards/interpret/{card_name}", h.InterpretCard)
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httpkit.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authMiddleware checks the shared X-API-Key secret.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if len(h.apiKey) == 0 || subtle.ConstantTimeCompare([]byte(key), h.apiKey) != 1 {
			h.logger.Warn("rejected request with invalid api key", "path", r.URL.Path, "request_id", chimw.GetReqID(r.Context()))
			httpkit.Error(w, http.StatusForbidden, i18n.Text(r.Context(), i18n.KeyInvalidAPIKey))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// languageMiddleware stores the caller's language in the request context.
func (h *Handler) languageMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag := i18n.Resolve(r.Header.Get("Accept-Language"), h.locale)
		w.Header().Set("Content-Language", tag.String())
		next.ServeHTTP(w, r.WithContext(i18n.WithLanguage(r.Context(), tag)))
	})
}

// traceMiddleware opens a server span per request, named after the
// matched route.
func (h *Handler) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		if rctx := chi.RouteContext(ctx); rctx != nil && rctx.RoutePattern() != "" {
			span.SetName(r.Method + " " + rctx.RoutePattern())
		}
		span.SetAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.Int("http.response.status_code", ww.Status()),
		)
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}

// fail renders err as {"detail": ...} with the status its code maps to.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	code := apperr.CodeOf(err)
	detail := i18n.Text(ctx, i18n.KeyInternal)
	if e, ok := apperr.As(err); ok && e.Key != "" {
		detail = i18n.Text(ctx, e.Key, e.Args...)
	}

	attrs := []any{"path", r.URL.Path, "code", code, "error", err, "request_id", chimw.GetReqID(ctx)}
	switch code {
	case apperr.CodeNotFound, apperr.CodeValidation:
		h.logger.Info("request rejected", attrs...)
	default:
		h.logger.Error("request failed", attrs...)
	}
	httpkit.Error(w, code.HTTPStatus(), detail)
}

// decode reads a JSON body into v. An empty body leaves v at its zero value.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Wrap(apperr.CodeValidation, "decode request body", err).Localize(i18n.KeyInvalidRequest)
}

// userParam returns the required user_id query parameter.
func userParam(r *http.Request) (string, error) {
	handle := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if handle == "" {
		return "", apperr.Validation("missing user_id").Localize(i18n.KeyUserIDRequired)
	}
	return handle, nil
}

// statusMessage is the {status, message} acknowledgement body.
type statusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *Handler) ok(w http.ResponseWriter, r *http.Request, key string, args ...any) {
	httpkit.JSON(w, http.StatusOK, statusMessage{Status: "success", Message: i18n.Text(r.Context(), key, args...)})
}
