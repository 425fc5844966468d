// Package billing runs the subscription lifecycle: checkout through the
// payment gateway, reconciliation of paid checkouts, direct subscribe and
// renew, lazy expiry and referral bonuses.
//
// A subscription is inactive until a confirmed payment (or a direct
// subscribe/renew) activates it with an expiry. Expiry is detected lazily
// by CheckStatus, which flips the stored status back to inactive.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zodiacbot/zodiacbot/internal/apperr"
	"github.com/zodiacbot/zodiacbot/internal/i18n"
	"github.com/zodiacbot/zodiacbot/internal/identity"
	"github.com/zodiacbot/zodiacbot/internal/storage"
	"github.com/zodiacbot/zodiacbot/internal/yookassa"
	"github.com/zodiacbot/zodiacbot/pkg/clock"
)

// PlanMonthly is the only plan name with a 30-day term. Every other name
// buys the annual term.
const PlanMonthly = "monthly"

// ReferralBonus is credited to a referrer for each referred user.
const ReferralBonus = 1000

// StatusCancelled is reported by Cancel.
const StatusCancelled = "cancelled"

const day = 24 * time.Hour

// Gateway is the payment provider.
type Gateway interface {
	CreatePayment(ctx context.Context, idempotenceKey string, req yookassa.PaymentRequest) (yookassa.Payment, error)
	GetPayment(ctx context.Context, id string) (yookassa.Payment, error)
}

// Profiles resolves and mutates user profiles.
type Profiles interface {
	Get(ctx context.Context, handle string) (storage.User, error)
	GetOrCreate(ctx context.Context, handle string) (storage.User, error)
	Update(ctx context.Context, handle string, upd identity.ProfileUpdate) (storage.User, error)
	CreditPoints(ctx context.Context, handle string, amount int64) error
}

// Config holds checkout settings.
type Config struct {
	ReturnURL    string
	Currency     string
	MonthlyPrice string
	AnnualPrice  string
}

// Plan is a purchasable subscription term.
type Plan struct {
	Name  string
	Days  int
	Price string
}

// Checkout is a created payment awaiting confirmation.
type Checkout struct {
	URL       string `json:"url"`
	PaymentID string `json:"payment_id"`
}

// Subscription is a user's subscription state.
type Subscription struct {
	Status    storage.SubscriptionStatus `json:"status"`
	ExpiresAt *time.Time                 `json:"expires"`
	DaysLeft  int                        `json:"days_left"`
}

// Engine implements the subscription operations.
type Engine struct {
	users    storage.UserStore
	profiles Profiles
	gateway  Gateway
	clock    clock.Clock
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates an Engine.
func New(users storage.UserStore, profiles Profiles, gateway Gateway, clk clock.Clock, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Currency == "" {
		cfg.Currency = "RUB"
	}
	return &Engine{
		users:    users,
		profiles: profiles,
		gateway:  gateway,
		clock:    clk,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("github.com/zodiacbot/zodiacbot/internal/billing"),
	}
}

// Plan resolves a plan name to its term and price.
func (e *Engine) Plan(name string) Plan {
	if name == PlanMonthly {
		return Plan{Name: name, Days: 30, Price: e.cfg.MonthlyPrice}
	}
	return Plan{Name: name, Days: 365, Price: e.cfg.AnnualPrice}
}

// CreateCheckout creates a gateway payment for plan. The returned PaymentID
// is the fresh idempotency token sent to the gateway; Reconcile accepts it.
func (e *Engine) CreateCheckout(ctx context.Context, handle, planName string) (_ Checkout, err error) {
	ctx, span := e.start(ctx, "billing.CreateCheckout", handle)
	defer func() { end(span, err) }()

	if _, err := e.profiles.Get(ctx, handle); err != nil {
		return Checkout{}, err
	}

	plan := e.Plan(planName)
	token := uuid.NewString()
	span.SetAttributes(attribute.String("billing.plan", plan.Name), attribute.String("billing.token", tokenPrefix(token)))

	p, err := e.gateway.CreatePayment(ctx, token, yookassa.PaymentRequest{
		Amount:       yookassa.Amount{Value: plan.Price, Currency: e.cfg.Currency},
		Confirmation: yookassa.Confirmation{Type: "redirect", ReturnURL: e.returnURL(token)},
		Capture:      true,
		Description:  fmt.Sprintf("Подписка %s для пользователя %s", plan.Name, handle),
		Metadata: map[string]string{
			"user_id": handle,
			"plan":    plan.Name,
			"days":    strconv.Itoa(plan.Days),
		},
	})
	if err != nil {
		e.logger.Error("create payment failed", "user", handle, "plan", plan.Name, "error", err)
		return Checkout{}, apperr.Upstream("create payment", err).Localize(i18n.KeyPaymentFailed)
	}
	if p.Confirmation == nil || p.Confirmation.ConfirmationURL == "" {
		return Checkout{}, apperr.Upstream("create payment", errors.New("gateway returned no confirmation url")).
			Localize(i18n.KeyPaymentFailed)
	}

	e.logger.Info("checkout created", "user", handle, "plan", plan.Name, "payment", p.ID, "token", tokenPrefix(token))
	return Checkout{URL: p.Confirmation.ConfirmationURL, PaymentID: token}, nil
}

func (e *Engine) returnURL(token string) string {
	sep := "?"
	if strings.Contains(e.cfg.ReturnURL, "?") {
		sep = "&"
	}
	return e.cfg.ReturnURL + sep + "payment_id=" + url.QueryEscape(token)
}

// Reconcile reads a payment back from the gateway and, when it succeeded,
// activates the subscription of the user named in its metadata for the
// number of days it carries. Reconciling the same payment twice restarts
// the term from now.
func (e *Engine) Reconcile(ctx context.Context, paymentID string) (_ Subscription, err error) {
	ctx, span := e.start(ctx, "billing.Reconcile", "")
	defer func() { end(span, err) }()

	if strings.TrimSpace(paymentID) == "" {
		return Subscription{}, apperr.Validation("empty payment id").Localize(i18n.KeyPaymentIDRequired)
	}
	short := tokenPrefix(paymentID)
	span.SetAttributes(attribute.String("billing.token", short))

	p, err := e.gateway.GetPayment(ctx, paymentID)
	if errors.Is(err, yookassa.ErrNotFound) {
		return Subscription{}, apperr.Wrap(apperr.CodeNotFound, "payment "+short, err).Localize(i18n.KeyPaymentIncomplete)
	}
	if err != nil {
		return Subscription{}, apperr.Upstream("get payment "+short, err).Localize(i18n.KeyPaymentFailed)
	}
	span.SetAttributes(attribute.String("payment.status", p.Status))
	if p.Status != yookassa.StatusSucceeded {
		e.logger.Info("payment not complete", "payment", short, "status", p.Status)
		return Subscription{}, apperr.Validation("payment status " + p.Status).Localize(i18n.KeyPaymentIncomplete)
	}

	handle := p.Metadata["user_id"]
	if handle == "" {
		return Subscription{}, apperr.Upstream("payment "+short, errors.New("metadata has no user_id")).
			Localize(i18n.KeyPaymentFailed)
	}
	days, err := strconv.Atoi(p.Metadata["days"])
	if err != nil || days <= 0 {
		days = e.Plan(p.Metadata["plan"]).Days
	}

	sub, err := e.activate(ctx, handle, e.clock.Now().Add(time.Duration(days)*day))
	if err != nil {
		return Subscription{}, err
	}
	e.logger.Info("payment reconciled", "payment", short, "user", handle, "days", days, "expires", sub.ExpiresAt)
	return sub, nil
}

// Subscribe activates plan for handle starting now, creating the profile
// when needed.
func (e *Engine) Subscribe(ctx context.Context, handle, planName string) (_ Subscription, err error) {
	ctx, span := e.start(ctx, "billing.Subscribe", handle)
	defer func() { end(span, err) }()

	if _, err := e.profiles.GetOrCreate(ctx, handle); err != nil {
		return Subscription{}, err
	}
	plan := e.Plan(planName)
	return e.activate(ctx, handle, e.clock.Now().Add(time.Duration(plan.Days)*day))
}

// Renew extends the subscription by the plan's term, counting from the
// current expiry when it is still in the future.
func (e *Engine) Renew(ctx context.Context, handle, planName string) (_ Subscription, err error) {
	ctx, span := e.start(ctx, "billing.Renew", handle)
	defer func() { end(span, err) }()

	u, err := e.profiles.Get(ctx, handle)
	if err != nil {
		return Subscription{}, err
	}
	base := e.clock.Now()
	if u.ExpiresAt != nil && u.ExpiresAt.After(base) {
		base = *u.ExpiresAt
	}
	plan := e.Plan(planName)
	return e.activate(ctx, handle, base.Add(time.Duration(plan.Days)*day))
}

func (e *Engine) activate(ctx context.Context, handle string, expires time.Time) (Subscription, error) {
	err := e.users.SetSubscription(ctx, handle, storage.StatusActive, &expires)
	if errors.Is(err, storage.ErrNotFound) {
		return Subscription{}, identity.ErrUserNotFound(handle)
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("set subscription for %s: %w", handle, err)
	}
	return Subscription{
		Status:    storage.StatusActive,
		ExpiresAt: &expires,
		DaysLeft:  daysLeft(expires, e.clock.Now()),
	}, nil
}

// CheckStatus reports the subscription, first deactivating it when its
// expiry has passed.
func (e *Engine) CheckStatus(ctx context.Context, handle string) (Subscription, error) {
	u, err := e.profiles.Get(ctx, handle)
	if err != nil {
		return Subscription{}, err
	}
	now := e.clock.Now()
	if u.Status != storage.StatusActive || u.ExpiresAt == nil {
		return Subscription{Status: storage.StatusInactive}, nil
	}
	if u.ExpiresAt.After(now) {
		return Subscription{Status: storage.StatusActive, ExpiresAt: u.ExpiresAt, DaysLeft: daysLeft(*u.ExpiresAt, now)}, nil
	}

	changed, err := e.users.ExpireSubscription(ctx, handle, now)
	if err != nil {
		return Subscription{}, fmt.Errorf("expire subscription for %s: %w", handle, err)
	}
	if changed {
		e.logger.Info("subscription expired", "user", handle, "expired_at", u.ExpiresAt)
	}
	return Subscription{Status: storage.StatusInactive}, nil
}

// daysLeft is the number of whole days until expires.
func daysLeft(expires, now time.Time) int {
	if !expires.After(now) {
		return 0
	}
	return int(expires.Sub(now) / day)
}

// SetAutopayment records whether the user opted into automatic renewal.
func (e *Engine) SetAutopayment(ctx context.Context, handle string, enabled bool) error {
	if _, err := e.profiles.Update(ctx, handle, identity.ProfileUpdate{Autopayment: &enabled}); err != nil {
		return err
	}
	e.logger.Info("autopayment updated", "user", handle, "enabled", enabled)
	return nil
}

// AddReferral records that referrer invited handle and credits the
// referrer ReferralBonus points. A user can be referred once.
func (e *Engine) AddReferral(ctx context.Context, handle, referrer string) (err error) {
	ctx, span := e.start(ctx, "billing.AddReferral", handle)
	defer func() { end(span, err) }()

	if strings.TrimSpace(referrer) == "" {
		return apperr.Validation("empty referrer").Localize(i18n.KeyReferrerRequired)
	}
	if handle == referrer {
		return apperr.Validation("self referral").Localize(i18n.KeySelfReferral)
	}
	if _, err := e.profiles.Get(ctx, handle); err != nil {
		return err
	}
	if _, err := e.profiles.Get(ctx, referrer); err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			return apperr.NotFound("referrer " + referrer + " not found").Localize(i18n.KeyReferrerNotFound)
		}
		return err
	}

	switch err := e.users.SetReferrer(ctx, handle, referrer); {
	case errors.Is(err, storage.ErrConflict):
		return apperr.Validation("user " + handle + " already referred").Localize(i18n.KeyAlreadyReferred)
	case errors.Is(err, storage.ErrNotFound):
		return identity.ErrUserNotFound(handle)
	case err != nil:
		return fmt.Errorf("set referrer of %s: %w", handle, err)
	}

	if err := e.profiles.CreditPoints(ctx, referrer, ReferralBonus); err != nil {
		return err
	}
	e.logger.Info("referral added", "user", handle, "referrer", referrer, "bonus", ReferralBonus)
	return nil
}

// Cancel acknowledges an abandoned checkout. Nothing is stored.
func (e *Engine) Cancel(ctx context.Context, handle string) string {
	e.logger.InfoContext(ctx, "checkout cancelled", "user", handle)
	return StatusCancelled
}

// tokenPrefix shortens a payment token for logs and spans. The full token
// redeems the payment on the success route.
func tokenPrefix(token string) string {
	const n = 8
	if len(token) <= n {
		return token
	}
	return token[:n] + "..."
}

func (e *Engine) start(ctx context.Context, name, handle string) (context.Context, trace.Span) {
	var opts []trace.SpanStartOption
	if handle != "" {
		opts = append(opts, trace.WithAttributes(attribute.String("user.handle", handle)))
	}
	return e.tracer.Start(ctx, name, opts...)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
	}
	span.End()
}
