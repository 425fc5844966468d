package api_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/zodiacbot/zodiacbot/internal/api"
	"github.com/zodiacbot/zodiacbot/internal/billing"
	"github.com/zodiacbot/zodiacbot/internal/history"
	"github.com/zodiacbot/zodiacbot/internal/i18n"
	"github.com/zodiacbot/zodiacbot/internal/identity"
	"github.com/zodiacbot/zodiacbot/internal/oracle"
	paysim "github.com/zodiacbot/zodiacbot/internal/paysim/api"
	paystore "github.com/zodiacbot/zodiacbot/internal/paysim/store"
	"github.com/zodiacbot/zodiacbot/internal/storage"
	"github.com/zodiacbot/zodiacbot/internal/storage/memory"
	"github.com/zodiacbot/zodiacbot/internal/yookassa"
	"github.com/zodiacbot/zodiacbot/pkg/clock"
	"github.com/zodiacbot/zodiacbot/pkg/httpkit"
	"github.com/zodiacbot/zodiacbot/pkg/testutil"
)

const apiKey = "test-key"

var start = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

// echoGenerator replies with the prompt it was given.
type echoGenerator struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (g *echoGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return "reading: " + prompt, nil
}

func (g *echoGenerator) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// steppingClock moves forward a minute on every read so the rate gate
// never rejects.
type steppingClock struct{ *clock.Fixed }

func (c steppingClock) Now() time.Time {
	c.Advance(time.Minute)
	return c.Fixed.Now()
}

type fixture struct {
	client *testutil.Client
	anon   *testutil.Client
	gen    *echoGenerator
	store  *memory.Store
	sim    *paystore.MemoryStore
	clock  *clock.Fixed
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sim := paystore.New()
	simSrv := httpkit.New(&httpkit.Config{Name: "paysim-test"}, logger)
	paysim.NewHandler(sim, simSrv.Middleware(), paysim.Credentials{ShopID: "shop", SecretKey: "secret"}, logger).Routes(simSrv.Router)
	simTS := httptest.NewServer(simSrv)
	t.Cleanup(simTS.Close)

	clk := clock.NewFixed(start)
	st := memory.New()
	gen := &echoGenerator{}
	profiles := identity.New(st, clk, logger)
	ledger := history.New(st, clk, logger)
	gate := oracle.NewGate(steppingClock{clock.NewFixed(start)}, time.Second)
	pipeline := oracle.New(gen, gate, profiles, ledger, clk, oracle.WithLogger(logger))
	engine := billing.New(st, profiles, yookassa.New(simTS.URL, "shop", "secret", 5*time.Second), clk, billing.Config{
		ReturnURL:    "https://zodiacbot.test/payment/success",
		MonthlyPrice: "500.00",
		AnnualPrice:  "5000.00",
	}, logger)

	srv := httpkit.New(&httpkit.Config{Name: "zodiacbot-test"}, logger)
	api.NewHandler(api.Deps{
		APIKey:   apiKey,
		Locale:   language.Russian,
		Profiles: profiles,
		Ledger:   ledger,
		Oracle:   pipeline,
		Billing:  engine,
		Clock:    clk,
		Logger:   logger,
	}).Routes(srv.Router)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	anon := testutil.NewClient(t, ts)
	return &fixture{
		client: anon.WithHeader("X-API-Key", apiKey),
		anon:   anon,
		gen:    gen,
		store:  st,
		sim:    sim,
		clock:  clk,
	}
}

func ru(key string, args ...any) string {
	return i18n.Text(i18n.WithLanguage(context.Background(), language.Russian), key, args...)
}

func (f *fixture) draw(t *testing.T, user, question string) map[string]any {
	t.Helper()
	resp := f.client.Post("/tarot/draw", map[string]string{"user_id": user, "question": question, "spread_type": oracle.SpreadThreeCards})
	resp.AssertStatus(http.StatusOK)
	return resp.JSONMap()
}

type historyBody struct {
	Status  string `json:"status"`
	History []struct {
		ID             string `json:"id"`
		Kind           string `json:"kind"`
		Date           string `json:"date"`
		Question       string `json:"question"`
		Cards          string `json:"cards"`
		Interpretation string `json:"interpretation"`
		Notes          string `json:"notes"`
		Summary        string `json:"summary"`
	} `json:"history"`
}

func (f *fixture) tarotHistory(t *testing.T, user string) historyBody {
	t.Helper()
	var body historyBody
	f.client.Get(testutil.Query("/tarot/user/history", "user_id", user)).AssertStatus(http.StatusOK).JSON(&body)
	return body
}

// ---------------------------------------------------------------------------
// Auth, health, language
// ---------------------------------------------------------------------------

func TestHealthIsOpen(t *testing.T) {
	f := setup(t)
	f.anon.Get("/health").AssertStatus(http.StatusOK).AssertBodyContains(`"ok"`)
}

func TestAPIKeyRequired(t *testing.T) {
	f := setup(t)
	for _, c := range []*testutil.Client{f.anon, f.anon.WithHeader("X-API-Key", "wrong")} {
		resp := c.Get("/cards/list")
		resp.AssertStatus(http.StatusForbidden)
		assert.Equal(t, "Invalid API Key", resp.JSONMap()["detail"])
	}
}

func TestAcceptLanguage(t *testing.T) {
	f := setup(t)

	resp := f.client.Get("/user/history?user_id=ghost")
	resp.AssertStatus(http.StatusNotFound)
	assert.Equal(t, "ru", resp.Headers.Get("Content-Language"))
	assert.Equal(t, ru(i18n.KeyUserNotFound), resp.JSONMap()["detail"])

	resp = f.client.WithHeader("Accept-Language", "en-US,en;q=0.9").Get("/user/history?user_id=ghost")
	resp.AssertStatus(http.StatusNotFound)
	assert.Equal(t, "en", resp.Headers.Get("Content-Language"))
	assert.Equal(t, "User not found", resp.JSONMap()["detail"])
}

// ---------------------------------------------------------------------------
// Tarot
// ---------------------------------------------------------------------------

func TestTarotDrawRecordsHistory(t *testing.T) {
	f := setup(t)

	body := f.draw(t, "alice", "Will it work out?")
	cards, ok := body["cards"].([]any)
	require.True(t, ok, "cards: %v", body["cards"])
	assert.Len(t, cards, 3)
	assert.Contains(t, body["interpretation"], "Will it work out?")
	assert.NotEmpty(t, body["date"])

	hist := f.tarotHistory(t, "alice")
	assert.Equal(t, "success", hist.Status)
	require.Len(t, hist.History, 1)
	entry := hist.History[0]
	assert.Equal(t, "Will it work out?", entry.Question)
	assert.Equal(t, 2, strings.Count(entry.Cards, ", "))
	assert.Equal(t, start.Format("02.01.2006 в 15:04"), entry.Date)
}

func TestTarotDrawValidation(t *testing.T) {
	f := setup(t)
	f.client.Post("/tarot/draw", map[string]string{"question": "q"}).AssertStatus(http.StatusBadRequest)
	f.client.DoRaw(http.MethodPost, "/tarot/draw", "application/json", []byte("{not json")).
		AssertStatus(http.StatusBadRequest)
}

func TestTarotDrawUpstreamFailureIsNotRecorded(t *testing.T) {
	f := setup(t)
	f.gen.fail(errors.New("upstream down"))

	body := f.draw(t, "alice", "q")
	assert.Equal(t, ru(i18n.KeyApology), body["interpretation"])

	// The profile was never created, so history is empty rather than 404.
	hist := f.tarotHistory(t, "alice")
	assert.Empty(t, hist.History)
	_, err := f.store.GetUser(context.Background(), "alice")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTarotHistoryUnknownUser(t *testing.T) {
	f := setup(t)
	hist := f.tarotHistory(t, "nobody")
	assert.Equal(t, "success", hist.Status)
	assert.Empty(t, hist.History)
	f.client.Get("/tarot/user/history").AssertStatus(http.StatusBadRequest)
}

func TestUpdateAndDeleteEntry(t *testing.T) {
	f := setup(t)
	f.draw(t, "alice", "q")
	id := f.tarotHistory(t, "alice").History[0].ID

	f.client.Put(testutil.Query("/tarot/update-entry", "user_id", "alice", "entry_id", id, "notes", "keep"), nil).
		AssertStatus(http.StatusOK).
		AssertBodyContains(ru(i18n.KeyEntryUpdated))
	entry := f.tarotHistory(t, "alice").History[0]
	assert.Equal(t, "keep", entry.Notes)
	assert.Empty(t, entry.Summary)

	// Empty values do not count as updates.
	f.client.Put(testutil.Query("/tarot/update-entry", "user_id", "alice", "entry_id", id, "notes", ""), nil).
		AssertStatus(http.StatusBadRequest)
	f.client.Put(testutil.Query("/tarot/update-entry", "user_id", "alice", "entry_id", "not-a-uuid", "notes", "x"), nil).
		AssertStatus(http.StatusBadRequest)
	f.client.Put(testutil.Query("/tarot/update-entry", "user_id", "alice", "entry_id", uuid.NewString(), "notes", "x"), nil).
		AssertStatus(http.StatusNotFound)
	f.client.Put(testutil.Query("/tarot/update-entry", "user_id", "bob", "entry_id", id, "notes", "x"), nil).
		AssertStatus(http.StatusNotFound)

	// The tarot record is not reachable through the coffee collection.
	f.client.Delete(testutil.Query("/coffee/delete-entry/"+id, "user_id", "alice")).AssertStatus(http.StatusNotFound)

	f.client.Delete(testutil.Query("/tarot/delete-entry/"+id, "user_id", "alice")).
		AssertStatus(http.StatusOK).
		AssertBodyContains(ru(i18n.KeyEntryDeleted))
	assert.Empty(t, f.tarotHistory(t, "alice").History)
	f.client.Delete(testutil.Query("/tarot/delete-entry/"+id, "user_id", "alice")).AssertStatus(http.StatusNotFound)
}

func TestClearHistory(t *testing.T) {
	f := setup(t)
	f.draw(t, "alice", "one")
	f.draw(t, "alice", "two")
	f.client.Post("/coffee/fortune", map[string]string{"user_id": "alice", "question": "c", "image_base64": "aGVsbG8="}).
		AssertStatus(http.StatusOK)

	var cleared struct {
		Status       string `json:"status"`
		DeletedCount int    `json:"deleted_count"`
	}
	f.client.Delete("/coffee/clear-history?user_id=alice").AssertStatus(http.StatusOK).JSON(&cleared)
	assert.Equal(t, 1, cleared.DeletedCount)

	f.client.Delete("/tarot/clear-history?user_id=alice").AssertStatus(http.StatusOK).JSON(&cleared)
	assert.Equal(t, "success", cleared.Status)
	assert.Equal(t, 2, cleared.DeletedCount)

	f.client.Delete("/tarot/clear-history?user_id=ghost").AssertStatus(http.StatusNotFound)
}

// ---------------------------------------------------------------------------
// Coffee
// ---------------------------------------------------------------------------

func TestCoffeeFortuneAcceptsAlternateFields(t *testing.T) {
	f := setup(t)

	resp := f.client.Post("/coffee/fortune", map[string]string{
		"userId":   "alice",
		"question": "love",
		"photo":    "data:image/jpeg;base64,aGVsbG8=",
	})
	resp.AssertStatus(http.StatusOK)
	assert.Contains(t, resp.JSONMap()["interpretation"], "love")

	var items []map[string]any
	f.client.Get("/coffee/history?user_id=alice").AssertStatus(http.StatusOK).JSON(&items)
	require.Len(t, items, 1)
	assert.Equal(t, oracle.ImageRef("aGVsbG8="), items[0]["image_id"])
	assert.Equal(t, "love", items[0]["question"])

	f.client.Get("/coffee/history?user_id=ghost").AssertStatus(http.StatusOK).AssertBodyContains("[]")
}

// ---------------------------------------------------------------------------
// User
// ---------------------------------------------------------------------------

func TestProfileLifecycle(t *testing.T) {
	f := setup(t)

	f.client.Post("/user/update-profile?user_id=alice&telegram_name=Al", nil).AssertStatus(http.StatusNotFound)

	var u storage.User
	f.client.Get("/user/profile?user_id=alice").AssertStatus(http.StatusOK).JSON(&u)
	assert.Equal(t, "alice", u.Handle)
	assert.Equal(t, identity.DefaultDisplayName, u.DisplayName)
	assert.Equal(t, storage.StatusInactive, u.Status)

	f.client.Post("/user/update-profile?user_id=alice&full_name=Alice+Liddell", nil).AssertStatus(http.StatusOK).JSON(&u)
	assert.Equal(t, "Alice Liddell", u.FullName)
	assert.Equal(t, identity.DefaultDisplayName, u.DisplayName)
}

func TestSubscribeRenewAndStatus(t *testing.T) {
	f := setup(t)

	var sub struct {
		Status   string     `json:"status"`
		Expires  *time.Time `json:"expires"`
		DaysLeft int        `json:"days_left"`
	}
	f.client.Post("/user/subscribe", map[string]string{"user_id": "alice", "plan": "monthly"}).
		AssertStatus(http.StatusOK).JSON(&sub)
	assert.Equal(t, "success", sub.Status)
	require.NotNil(t, sub.Expires)
	assert.True(t, start.Add(30*24*time.Hour).Equal(*sub.Expires))

	f.client.Post("/user/renew-subscription", map[string]string{"user_id": "alice", "plan": "monthly"}).
		AssertStatus(http.StatusOK).JSON(&sub)
	assert.True(t, start.Add(60*24*time.Hour).Equal(*sub.Expires))

	f.client.Post("/user/renew-subscription", map[string]string{"user_id": "ghost", "plan": "monthly"}).
		AssertStatus(http.StatusNotFound)

	f.client.Get("/user/subscription-status?user_id=alice").AssertStatus(http.StatusOK).JSON(&sub)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, 60, sub.DaysLeft)

	f.clock.Advance(61 * 24 * time.Hour)
	f.client.Get("/user/subscription-status?user_id=alice").AssertStatus(http.StatusOK).JSON(&sub)
	assert.Equal(t, "inactive", sub.Status)
	assert.Nil(t, sub.Expires)
	assert.Zero(t, sub.DaysLeft)
}

func TestReferral(t *testing.T) {
	f := setup(t)
	f.client.Get("/user/profile?user_id=alice").AssertStatus(http.StatusOK)
	f.client.Get("/user/profile?user_id=bob").AssertStatus(http.StatusOK)

	f.client.Post("/user/referral?user_id=alice&referrer_id=bob", nil).
		AssertStatus(http.StatusOK).
		AssertBodyContains(ru(i18n.KeyReferralAdded, billing.ReferralBonus))

	var bob storage.User
	f.client.Get("/user/profile?user_id=bob").JSON(&bob)
	assert.EqualValues(t, billing.ReferralBonus, bob.Points)

	f.client.Post("/user/referral?user_id=alice&referrer_id=bob", nil).AssertStatus(http.StatusBadRequest)
	f.client.Post("/user/referral?user_id=bob&referrer_id=bob", nil).AssertStatus(http.StatusBadRequest)
	f.client.Post("/user/referral?user_id=bob&referrer_id=ghost", nil).AssertStatus(http.StatusNotFound)
	f.client.Post("/user/referral?user_id=bob", nil).AssertStatus(http.StatusBadRequest)
}

func TestDeleteTarotHistoryKeepsCoffee(t *testing.T) {
	f := setup(t)
	f.draw(t, "alice", "q")
	f.client.Post("/coffee/fortune", map[string]string{"user_id": "alice", "question": "c", "image_base64": "eA=="}).
		AssertStatus(http.StatusOK)

	f.client.Post("/user/delete-tarot-history?user_id=alice", nil).
		AssertStatus(http.StatusOK).
		AssertBodyContains(ru(i18n.KeyTarotHistoryWiped, 1))

	var merged historyBody
	f.client.Get("/user/history?user_id=alice").AssertStatus(http.StatusOK).JSON(&merged)
	require.Len(t, merged.History, 1)
	assert.Equal(t, "coffee", merged.History[0].Kind)
}

func TestUserHistoryMergesNewestFirst(t *testing.T) {
	f := setup(t)
	f.draw(t, "alice", "first")
	f.clock.Advance(time.Hour)
	f.client.Post("/coffee/fortune", map[string]string{"user_id": "alice", "question": "second", "image_base64": "eA=="}).
		AssertStatus(http.StatusOK)
	f.clock.Advance(time.Hour)
	f.draw(t, "alice", "third")

	var merged historyBody
	f.client.Get("/user/history?user_id=alice").AssertStatus(http.StatusOK).JSON(&merged)
	require.Len(t, merged.History, 3)
	got := []string{merged.History[0].Question, merged.History[1].Question, merged.History[2].Question}
	assert.Equal(t, []string{"third", "second", "first"}, got)
	assert.Equal(t, "tarot", merged.History[0].Kind)
}

// ---------------------------------------------------------------------------
// Payment
// ---------------------------------------------------------------------------

func TestCheckoutAndSuccess(t *testing.T) {
	f := setup(t)
	f.client.Get("/user/profile?user_id=alice").AssertStatus(http.StatusOK)

	var co billing.Checkout
	f.client.Post("/payment/create-checkout-session", map[string]string{"user_id": "alice", "plan": "monthly"}).
		AssertStatus(http.StatusOK).JSON(&co)
	require.NotEmpty(t, co.PaymentID)
	assert.Contains(t, co.URL, paystore.CheckoutURL)

	f.client.Get("/payment/success?payment_id="+co.PaymentID).
		AssertStatus(http.StatusBadRequest).
		AssertBodyContains(ru(i18n.KeyPaymentIncomplete))

	_, err := f.sim.Succeed(co.PaymentID)
	require.NoError(t, err)

	var ok struct {
		Status  string     `json:"status"`
		Expires *time.Time `json:"expires"`
	}
	f.client.Get("/payment/success?payment_id="+co.PaymentID).AssertStatus(http.StatusOK).JSON(&ok)
	assert.Equal(t, "success", ok.Status)
	require.NotNil(t, ok.Expires)
	assert.True(t, start.Add(30*24*time.Hour).Equal(*ok.Expires))

	f.client.Get("/payment/success").AssertStatus(http.StatusBadRequest)
	f.client.Get("/payment/success?payment_id="+uuid.NewString()).AssertStatus(http.StatusNotFound)
}

func TestPaymentCancel(t *testing.T) {
	f := setup(t)
	body := f.client.Get("/payment/cancel").AssertStatus(http.StatusOK).JSONMap()
	assert.Equal(t, "cancelled", body["status"])
	assert.Equal(t, ru(i18n.KeyPaymentCancelled), body["message"])
}

func TestUpdateAutopayment(t *testing.T) {
	f := setup(t)
	f.client.Get("/user/profile?user_id=alice").AssertStatus(http.StatusOK)

	f.client.Post("/payment/update-autopayment", map[string]any{"userId": "alice", "enabled": true}).
		AssertStatus(http.StatusOK).
		AssertBodyContains(ru(i18n.KeyAutopaymentEnabled, "alice"))
	u, err := f.store.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, u.Autopayment)

	f.client.Post("/payment/update-autopayment", map[string]any{"userId": "alice", "enabled": false}).
		AssertStatus(http.StatusOK).
		AssertBodyContains(ru(i18n.KeyAutopaymentOff, "alice"))

	f.client.Post("/payment/update-autopayment", map[string]any{"userId": "ghost", "enabled": true}).
		AssertStatus(http.StatusNotFound)
}

// ---------------------------------------------------------------------------
// Direct readings and cards
// ---------------------------------------------------------------------------

func TestDirectReadings(t *testing.T) {
	f := setup(t)
	cases := []struct {
		path  string
		body  map[string]any
		field string
		want  string
	}{
		{"/coffee-interpret", map[string]any{"area": "love", "cards": []int{1, 2}}, "interpretation", "love"},
		{"/tarot-reveal", map[string]any{"cards": []int{3}, "readingType": "career"}, "interpretation", "career"},
		{"/runes-reveal", map[string]any{"runes": []int{4}, "relationshipAspect": "trust"}, "interpretation", "trust"},
		{"/personal-forecast", map[string]any{"cards": []int{5}, "category": "health"}, "forecast", "health"},
		{"/analyze", map[string]any{"cards": []int{6}, "category": "work"}, "analysis", "work"},
		{"/spiritual-growth", map[string]any{"cards": []int{7}, "aspect": "patience"}, "advice", "patience"},
		{"/tarot-reading", map[string]any{"type": "celtic"}, "reading", "celtic"},
	}
	for _, c := range cases {
		t.Run(strings.TrimPrefix(c.path, "/"), func(t *testing.T) {
			body := f.client.Post(c.path+"?user_id=alice", c.body).AssertStatus(http.StatusOK).JSONMap()
			assert.Contains(t, body[c.field], c.want)
		})
	}

	// Direct readings never create profiles or history.
	_, err := f.store.GetUser(context.Background(), "alice")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAIPrompt(t *testing.T) {
	f := setup(t)
	body := f.client.Post("/ai/prompt", map[string]any{
		"mode":     "tarot",
		"question": "what next",
		"context":  map[string]any{"cards": []string{"The Star"}},
	}).AssertStatus(http.StatusOK).JSONMap()
	assert.Contains(t, body["response"], "what next")
	assert.Contains(t, body["response"], "The Star")
}

func TestCards(t *testing.T) {
	f := setup(t)

	var list []oracle.Meaning
	f.client.Get("/cards/list").AssertStatus(http.StatusOK).JSON(&list)
	assert.Equal(t, oracle.Meanings, list)

	var got struct {
		Card           string `json:"card"`
		Interpretation string `json:"interpretation"`
	}
	f.client.Get("/cards/interpret/The%20Star").AssertStatus(http.StatusOK).JSON(&got)
	assert.Equal(t, "The Star", got.Card)
	assert.Contains(t, got.Interpretation, ru(i18n.KeyGeneralReading))

	f.client.Get("/cards/interpret/The%20Moon?question=love").AssertStatus(http.StatusOK).JSON(&got)
	assert.Contains(t, got.Interpretation, "love")

	f.gen.fail(errors.New("down"))
	f.client.Get("/cards/interpret/The%20Sun").AssertStatus(http.StatusOK).JSON(&got)
	assert.Equal(t, ru(i18n.KeyCardApology), got.Interpretation)
}
