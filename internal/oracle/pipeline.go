// Package oracle turns divination requests into generated interpretations.
// It assembles a prompt per reading variant, gates upstream traffic to one
// call per interval, and converts upstream failures into user-safe text.
// Tarot draws and coffee fortunes are written through to the history
// ledger after a successful generation.
package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zodiacbot/zodiacbot/internal/apperr"
	"github.com/zodiacbot/zodiacbot/internal/history"
	"github.com/zodiacbot/zodiacbot/internal/i18n"
	"github.com/zodiacbot/zodiacbot/internal/storage"
	"github.com/zodiacbot/zodiacbot/pkg/clock"
)

// Generator produces completion text for a system persona and one user
// prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Profiles resolves users, creating them on first contact.
type Profiles interface {
	GetOrCreate(ctx context.Context, handle string) (storage.User, error)
}

// Recorder appends interpretation records.
type Recorder interface {
	Append(ctx context.Context, e history.Entry) (storage.Record, error)
}

// Outcome classifies an interpretation attempt.
type Outcome int

const (
	// Generated means Text came from the upstream generator.
	Generated Outcome = iota
	// RateLimited means the gate rejected the call; Text asks the user to wait.
	RateLimited
	// Failed means the upstream call failed; Text is an apology.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Generated:
		return "generated"
	case RateLimited:
		return "rate_limited"
	default:
		return "failed"
	}
}

// Result is the text returned to the caller for a reading.
type Result struct {
	Outcome Outcome
	Text    string
}

// TarotResult is the response to a tarot draw.
type TarotResult struct {
	Cards          []string
	Interpretation string
	Date           time.Time
	Outcome        Outcome
}

// CoffeeResult is the response to a coffee fortune.
type CoffeeResult struct {
	Interpretation string
	Date           time.Time
	Outcome        Outcome
}

// Pipeline runs readings against the upstream generator.
type Pipeline struct {
	gen      Generator
	gate     *Gate
	profiles Profiles
	ledger   Recorder
	clock    clock.Clock
	rng      *rand.Rand
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRand fixes the random source used for card draws.
func WithRand(rng *rand.Rand) Option {
	return func(p *Pipeline) { p.rng = rng }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// New creates a Pipeline.
func New(gen Generator, gate *Gate, profiles Profiles, ledger Recorder, clk clock.Clock, opts ...Option) *Pipeline {
	p := &Pipeline{
		gen:      gen,
		gate:     gate,
		profiles: profiles,
		ledger:   ledger,
		clock:    clk,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interpret runs r through the gate and the generator. It never fails:
// upstream errors and gate rejections come back as localized text with
// the matching Outcome.
func (p *Pipeline) Interpret(ctx context.Context, r Reading) Result {
	prompt := r.Prompt()
	if !p.gate.Admit() {
		p.logger.Info("upstream call skipped by rate gate", "reading", r.Name())
		return Result{Outcome: RateLimited, Text: i18n.Text(ctx, i18n.KeyRateLimited)}
	}

	p.logger.Info("sending prompt", "reading", r.Name(), "prompt", truncate(prompt, 50))
	text, err := p.gen.Generate(ctx, Persona, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = apperr.New(apperr.CodeUpstream, "empty completion")
	}
	if err != nil {
		p.logger.Error("upstream generation failed", "reading", r.Name(), "prompt", truncate(prompt, 50), "error", err)
		key := i18n.KeyApology
		if _, ok := r.(CardInsight); ok {
			key = i18n.KeyCardApology
		}
		return Result{Outcome: Failed, Text: i18n.Text(ctx, key)}
	}
	return Result{Outcome: Generated, Text: text}
}

// DrawTarot draws cards for spread, interprets them against question and,
// when generation succeeds, records the reading in the user's history.
func (p *Pipeline) DrawTarot(ctx context.Context, handle, question, spread string) (TarotResult, error) {
	if err := requireHandle(handle); err != nil {
		return TarotResult{}, err
	}
	cards := Draw(spread, p.rng)
	res := p.Interpret(ctx, TarotDraw{Question: question, Cards: cards})
	out := TarotResult{Cards: cards, Interpretation: res.Text, Date: p.clock.Now(), Outcome: res.Outcome}
	if res.Outcome != Generated {
		return out, nil
	}

	err := p.record(ctx, handle, history.Entry{
		Kind:           storage.KindTarot,
		Question:       question,
		Cards:          cards,
		Interpretation: res.Text,
	})
	if err != nil {
		return TarotResult{}, err
	}
	p.logger.Info("tarot reading recorded", "user", handle, "cards", len(cards))
	return out, nil
}

// CoffeeFortune interprets a coffee-ground photo against question and
// records the reading when generation succeeds. The image is not decoded;
// only its digest is stored.
func (p *Pipeline) CoffeeFortune(ctx context.Context, handle, question, image string) (CoffeeResult, error) {
	if err := requireHandle(handle); err != nil {
		return CoffeeResult{}, err
	}
	res := p.Interpret(ctx, CoffeeFortune{Question: question})
	out := CoffeeResult{Interpretation: res.Text, Date: p.clock.Now(), Outcome: res.Outcome}
	if res.Outcome != Generated {
		return out, nil
	}

	err := p.record(ctx, handle, history.Entry{
		Kind:           storage.KindCoffee,
		Question:       question,
		ImageRef:       ImageRef(image),
		Interpretation: res.Text,
	})
	if err != nil {
		return CoffeeResult{}, err
	}
	p.logger.Info("coffee reading recorded", "user", handle)
	return out, nil
}

func (p *Pipeline) record(ctx context.Context, handle string, e history.Entry) error {
	u, err := p.profiles.GetOrCreate(ctx, handle)
	if err != nil {
		return err
	}
	e.UserID = u.ID
	_, err = p.ledger.Append(ctx, e)
	return err
}

// ImageRef returns the stored reference for an image payload: the SHA-256
// of the base64 body with any data-URL prefix removed.
func ImageRef(image string) string {
	payload := StripDataURL(image)
	if payload == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(payload))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// StripDataURL drops a "data:image/...;base64," prefix.
func StripDataURL(image string) string {
	if strings.HasPrefix(image, "data:image") {
		if _, body, ok := strings.Cut(image, ","); ok {
			return body
		}
	}
	return image
}

func requireHandle(handle string) error {
	if strings.TrimSpace(handle) == "" {
		return apperr.Validation("empty user handle").Localize(i18n.KeyUserIDRequired)
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
