// Package storage defines the persistence contracts for user profiles and
// interpretation history. Every mutation is a single-row operation so
// concurrent requests for the same user stay consistent without
// multi-row transactions.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested user or record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a uniqueness-constrained write lost to an
	// existing row, or a set-once field was already set.
	ErrConflict = errors.New("record already exists")
)

// Kind identifies an interpretation history collection.
type Kind string

const (
	KindTarot  Kind = "tarot"
	KindCoffee Kind = "coffee"
)

// Kinds lists every history kind.
var Kinds = []Kind{KindTarot, KindCoffee}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindTarot || k == KindCoffee
}

// SubscriptionStatus is the persisted subscription state.
type SubscriptionStatus string

const (
	StatusInactive SubscriptionStatus = "inactive"
	StatusActive   SubscriptionStatus = "active"
)

// User is a persisted profile.
type User struct {
	ID          int64              `json:"id"`
	Handle      string             `json:"user_id"`
	DisplayName string             `json:"telegram_name"`
	FullName    string             `json:"full_name,omitempty"`
	Status      SubscriptionStatus `json:"subscription_status"`
	ExpiresAt   *time.Time         `json:"subscription_expires"`
	Points      int64              `json:"points"`
	ReferredBy  string             `json:"referred_by,omitempty"`
	Autopayment bool               `json:"autopayment_enabled"`
	JoinedAt    time.Time          `json:"joined"`
}

// UserPatch holds the profile fields a partial update may set. Nil fields
// are left untouched.
type UserPatch struct {
	DisplayName *string
	FullName    *string
	Autopayment *bool
}

// Empty reports whether the patch sets nothing.
func (p UserPatch) Empty() bool {
	return p.DisplayName == nil && p.FullName == nil && p.Autopayment == nil
}

// Record is one persisted interpretation.
type Record struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	UserID         int64     `json:"user_id"`
	Question       string    `json:"question"`
	Cards          []string  `json:"cards,omitempty"`
	ImageRef       string    `json:"image_id,omitempty"`
	Interpretation string    `json:"interpretation"`
	Notes          string    `json:"notes"`
	Summary        string    `json:"summary"`
	CreatedAt      time.Time `json:"created_at"`
}

// RecordPatch holds the user-editable record fields. Nil fields are left
// untouched.
type RecordPatch struct {
	Notes   *string
	Summary *string
}

// Empty reports whether the patch sets nothing.
func (p RecordPatch) Empty() bool {
	return p.Notes == nil && p.Summary == nil
}

// UserStore persists profiles keyed by external handle.
type UserStore interface {
	// GetUser returns ErrNotFound when handle is unknown.
	GetUser(ctx context.Context, handle string) (User, error)
	// InsertUser assigns the internal id and returns ErrConflict when the
	// handle already exists.
	InsertUser(ctx context.Context, u User) (User, error)
	UpdateUser(ctx context.Context, handle string, patch UserPatch) (User, error)
	IncrementPoints(ctx context.Context, handle string, delta int64) error
	// SetReferrer sets referred_by only while it is unset; it returns
	// ErrConflict when a referrer is already recorded.
	SetReferrer(ctx context.Context, handle, referrer string) error
	SetSubscription(ctx context.Context, handle string, status SubscriptionStatus, expiresAt *time.Time) error
	// ExpireSubscription moves an active subscription whose expiry is at or
	// before now to inactive and reports whether it did.
	ExpireSubscription(ctx context.Context, handle string, now time.Time) (bool, error)
}

// HistoryStore persists interpretation records per kind.
type HistoryStore interface {
	InsertRecord(ctx context.Context, r Record) error
	// ListRecords returns records created at or after since, newest first.
	ListRecords(ctx context.Context, kind Kind, userID int64, since time.Time, limit int) ([]Record, error)
	UpdateRecord(ctx context.Context, kind Kind, userID int64, id string, patch RecordPatch) (bool, error)
	DeleteRecord(ctx context.Context, kind Kind, userID int64, id string) (bool, error)
	DeleteRecords(ctx context.Context, kind Kind, userID int64) (int, error)
}

// Store is the full persistence surface.
type Store interface {
	UserStore
	HistoryStore
	Close() error
}
