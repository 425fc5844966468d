// Package store holds the payment simulator's state.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zodiacbot/zodiacbot/pkg/clock"
	pkgstore "github.com/zodiacbot/zodiacbot/pkg/store"
)

// Payment statuses.
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

// CheckoutURL prefixes the confirmation URL handed back for redirect payments.
const CheckoutURL = "https://yoomoney.ru/checkout/payments/v2/contract?orderId="

var (
	// ErrNotFound is returned for unknown payment ids.
	ErrNotFound = errors.New("payment not found")
	// ErrFinal is returned when a payment has already reached a final status.
	ErrFinal = errors.New("payment is already in a final status")
)

// Amount is a decimal money value.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Confirmation is the payer redirect.
type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// Payment is one simulated payment.
type Payment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       Amount            `json:"amount"`
	Confirmation *Confirmation     `json:"confirmation,omitempty"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Test         bool              `json:"test"`
	CreatedAt    time.Time         `json:"created_at"`
	CapturedAt   *time.Time        `json:"captured_at,omitempty"`
}

// Final reports whether the payment can no longer change.
func (p Payment) Final() bool {
	return p.Status == StatusSucceeded || p.Status == StatusCanceled
}

// CreateRequest is the validated input for Create.
type CreateRequest struct {
	Amount       Amount
	Confirmation Confirmation
	Capture      bool
	Description  string
	Metadata     map[string]string
}

// MemoryStore holds all simulator state in memory.
type MemoryStore struct {
	// mu serializes Create so a key maps to exactly one payment.
	mu       sync.Mutex
	Payments *pkgstore.Store[Payment]
	// keys maps an Idempotence-Key to the payment it created.
	keys  *pkgstore.Store[string]
	Clock *clock.Offset
}

// New creates an empty MemoryStore.
func New() *MemoryStore {
	return &MemoryStore{
		Payments: pkgstore.New[Payment](),
		keys:     pkgstore.New[string](),
		Clock:    clock.NewOffset(),
	}
}

// Create stores a new pending payment. A repeated key returns the payment
// the key first created and reports replayed=true.
func (s *MemoryStore) Create(key string, req CreateRequest) (p Payment, replayed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if id, ok := s.keys.Get(key); ok {
			if existing, ok := s.Payments.Get(id); ok {
				return existing, true
			}
		}
	}
	id := uuid.NewString()

	p = Payment{
		ID:          id,
		Status:      StatusPending,
		Amount:      req.Amount,
		Capture:     req.Capture,
		Description: req.Description,
		Metadata:    req.Metadata,
		Test:        true,
		CreatedAt:   s.Clock.Now(),
	}
	if req.Confirmation.Type == "redirect" {
		p.Confirmation = &Confirmation{
			Type:            "redirect",
			ReturnURL:       req.Confirmation.ReturnURL,
			ConfirmationURL: CheckoutURL + id,
		}
	}
	s.Payments.Set(id, p)
	if key != "" {
		s.keys.Set(key, id)
	}
	return p, false
}

// Resolve finds a payment by its id or by the Idempotence-Key that created it.
func (s *MemoryStore) Resolve(idOrKey string) (Payment, bool) {
	if p, ok := s.Payments.Get(idOrKey); ok {
		return p, true
	}
	id, ok := s.keys.Get(idOrKey)
	if !ok {
		return Payment{}, false
	}
	return s.Payments.Get(id)
}

// Succeed marks a payment paid. Payments created without capture stop at
// waiting_for_capture.
func (s *MemoryStore) Succeed(idOrKey string) (Payment, error) {
	return s.transition(idOrKey, func(p *Payment) {
		p.Paid = true
		if !p.Capture {
			p.Status = StatusWaitingForCapture
			return
		}
		now := s.Clock.Now()
		p.Status = StatusSucceeded
		p.CapturedAt = &now
	})
}

// Cancel marks a payment canceled.
func (s *MemoryStore) Cancel(idOrKey string) (Payment, error) {
	return s.transition(idOrKey, func(p *Payment) {
		p.Status = StatusCanceled
		p.Paid = false
	})
}

func (s *MemoryStore) transition(idOrKey string, fn func(p *Payment)) (Payment, error) {
	current, ok := s.Resolve(idOrKey)
	if !ok {
		return Payment{}, ErrNotFound
	}
	p, ok := s.Payments.Update(current.ID, func(p *Payment) bool {
		if p.Final() {
			return false
		}
		fn(p)
		return true
	})
	if !ok {
		return p, ErrFinal
	}
	return p, nil
}

// Filter returns payments with status, oldest first.
func (s *MemoryStore) Filter(status string) []Payment {
	return s.Payments.Filter(func(_ string, p Payment) bool { return p.Status == status })
}

// stateSnapshot is the JSON-serializable state for admin endpoints.
type stateSnapshot struct {
	Payments        map[string]Payment `json:"payments"`
	IdempotenceKeys map[string]string  `json:"idempotence_keys"`
}

// Snapshot returns the full state as a JSON-serializable value.
func (s *MemoryStore) Snapshot() any {
	return stateSnapshot{
		Payments:        s.Payments.Snapshot(),
		IdempotenceKeys: s.keys.Snapshot(),
	}
}

// LoadState replaces the full state from JSON.
func (s *MemoryStore) LoadState(data []byte) error {
	var snap stateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding state: %w", err)
	}
	if snap.Payments == nil {
		snap.Payments = map[string]Payment{}
	}
	if snap.IdempotenceKeys == nil {
		snap.IdempotenceKeys = map[string]string{}
	}
	s.Payments.LoadSnapshot(snap.Payments)
	s.keys.LoadSnapshot(snap.IdempotenceKeys)
	return nil
}

// Reset clears all state.
func (s *MemoryStore) Reset() {
	s.Payments.Reset()
	s.keys.Reset()
}
