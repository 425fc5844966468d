// Package memory implements storage.Store on top of the generic in-memory
// store. It serves tests and the `memory` storage driver.
package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/zodiacbot/zodiacbot/internal/storage"
	pkgstore "github.com/zodiacbot/zodiacbot/pkg/store"
)

// Store holds all profile and history state in memory.
type Store struct {
	Users   *pkgstore.Store[storage.User]
	history map[storage.Kind]*pkgstore.Store[storage.Record]
}

var _ storage.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	s := &Store{
		Users:   pkgstore.New[storage.User](),
		history: make(map[storage.Kind]*pkgstore.Store[storage.Record], len(storage.Kinds)),
	}
	for _, k := range storage.Kinds {
		s.history[k] = pkgstore.New[storage.Record]()
	}
	return s
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) records(kind storage.Kind) (*pkgstore.Store[storage.Record], error) {
	rs, ok := s.history[kind]
	if !ok {
		return nil, fmt.Errorf("unknown history kind %q", kind)
	}
	return rs, nil
}

// GetUser returns the profile for handle.
func (s *Store) GetUser(ctx context.Context, handle string) (storage.User, error) {
	if err := ctx.Err(); err != nil {
		return storage.User{}, err
	}
	u, ok := s.Users.Get(handle)
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

// InsertUser stores u under its handle when absent.
func (s *Store) InsertUser(ctx context.Context, u storage.User) (storage.User, error) {
	if err := ctx.Err(); err != nil {
		return storage.User{}, err
	}
	if _, exists := s.Users.Get(u.Handle); exists {
		return storage.User{}, storage.ErrConflict
	}
	u.ID = s.Users.NextSeq()
	if !s.Users.Insert(u.Handle, u) {
		return storage.User{}, storage.ErrConflict
	}
	return u, nil
}

// UpdateUser applies patch to the profile for handle.
func (s *Store) UpdateUser(ctx context.Context, handle string, patch storage.UserPatch) (storage.User, error) {
	if err := ctx.Err(); err != nil {
		return storage.User{}, err
	}
	u, ok := s.Users.Update(handle, func(u *storage.User) bool {
		if patch.DisplayName != nil {
			u.DisplayName = *patch.DisplayName
		}
		if patch.FullName != nil {
			u.FullName = *patch.FullName
		}
		if patch.Autopayment != nil {
			u.Autopayment = *patch.Autopayment
		}
		return true
	})
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

// IncrementPoints adds delta to the points balance.
func (s *Store) IncrementPoints(ctx context.Context, handle string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.Users.Update(handle, func(u *storage.User) bool {
		u.Points += delta
		return true
	}); !ok {
		return storage.ErrNotFound
	}
	return nil
}

// SetReferrer records referrer while none is set.
func (s *Store) SetReferrer(ctx context.Context, handle, referrer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.Users.Get(handle); !ok {
		return storage.ErrNotFound
	}
	if _, ok := s.Users.Update(handle, func(u *storage.User) bool {
		if u.ReferredBy != "" {
			return false
		}
		u.ReferredBy = referrer
		return true
	}); !ok {
		return storage.ErrConflict
	}
	return nil
}

// SetSubscription overwrites status and expiry.
func (s *Store) SetSubscription(ctx context.Context, handle string, status storage.SubscriptionStatus, expiresAt *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.Users.Update(handle, func(u *storage.User) bool {
		u.Status = status
		u.ExpiresAt = copyTime(expiresAt)
		return true
	}); !ok {
		return storage.ErrNotFound
	}
	return nil
}

// ExpireSubscription deactivates an active subscription that has lapsed.
func (s *Store) ExpireSubscription(ctx context.Context, handle string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, ok := s.Users.Get(handle); !ok {
		return false, storage.ErrNotFound
	}
	_, changed := s.Users.Update(handle, func(u *storage.User) bool {
		if u.Status != storage.StatusActive || u.ExpiresAt == nil || u.ExpiresAt.After(now) {
			return false
		}
		u.Status = storage.StatusInactive
		u.ExpiresAt = nil
		return true
	})
	return changed, nil
}

// InsertRecord appends r to its kind's collection.
func (s *Store) InsertRecord(ctx context.Context, r storage.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rs, err := s.records(r.Kind)
	if err != nil {
		return err
	}
	r.Cards = slices.Clone(r.Cards)
	if !rs.Insert(r.ID, r) {
		return storage.ErrConflict
	}
	return nil
}

// ListRecords returns the user's records created at or after since, newest first.
func (s *Store) ListRecords(ctx context.Context, kind storage.Kind, userID int64, since time.Time, limit int) ([]storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rs, err := s.records(kind)
	if err != nil {
		return nil, err
	}
	out := rs.Filter(func(_ string, r storage.Record) bool {
		return r.UserID == userID && !r.CreatedAt.Before(since)
	})
	// Filter yields insertion order; reversed, equal timestamps list the
	// latest insert first.
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b storage.Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateRecord applies patch to the user's record with id.
func (s *Store) UpdateRecord(ctx context.Context, kind storage.Kind, userID int64, id string, patch storage.RecordPatch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	rs, err := s.records(kind)
	if err != nil {
		return false, err
	}
	if patch.Empty() {
		return false, fmt.Errorf("empty record patch")
	}
	_, ok := rs.Update(id, func(r *storage.Record) bool {
		if r.UserID != userID {
			return false
		}
		if patch.Notes != nil {
			r.Notes = *patch.Notes
		}
		if patch.Summary != nil {
			r.Summary = *patch.Summary
		}
		return true
	})
	return ok, nil
}

// DeleteRecord removes the user's record with id.
func (s *Store) DeleteRecord(ctx context.Context, kind storage.Kind, userID int64, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	rs, err := s.records(kind)
	if err != nil {
		return false, err
	}
	n := rs.DeleteFunc(func(rid string, r storage.Record) bool {
		return rid == id && r.UserID == userID
	})
	return n > 0, nil
}

// DeleteRecords removes every record of kind owned by the user.
func (s *Store) DeleteRecords(ctx context.Context, kind storage.Kind, userID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rs, err := s.records(kind)
	if err != nil {
		return 0, err
	}
	return rs.DeleteFunc(func(_ string, r storage.Record) bool {
		return r.UserID == userID
	}), nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
