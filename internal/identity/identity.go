// Package identity maps external user handles to stored profiles. Profiles
// are created lazily on first contact and never deleted.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/zodiacbot/zodiacbot/internal/apperr"
	"github.com/zodiacbot/zodiacbot/internal/i18n"
	"github.com/zodiacbot/zodiacbot/internal/storage"
	"github.com/zodiacbot/zodiacbot/pkg/clock"
)

// DefaultDisplayName is stored for profiles created without a name.
const DefaultDisplayName = "Unknown"

// ProfileUpdate lists the profile fields a caller may change. Nil fields are
// left as they are.
type ProfileUpdate struct {
	DisplayName *string
	FullName    *string
	Autopayment *bool
}

// Service resolves and mutates user profiles.
type Service struct {
	store  storage.UserStore
	clock  clock.Clock
	logger *slog.Logger
	group  singleflight.Group
}

// New creates a Service over store.
func New(store storage.UserStore, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, clock: clk, logger: logger}
}

// ErrUserNotFound builds the classified error for a missing profile.
func ErrUserNotFound(handle string) *apperr.Error {
	return apperr.NotFound("user " + handle + " not found").Localize(i18n.KeyUserNotFound)
}

// Get returns the profile for handle without creating it.
func (s *Service) Get(ctx context.Context, handle string) (storage.User, error) {
	if err := validHandle(handle); err != nil {
		return storage.User{}, err
	}
	u, err := s.store.GetUser(ctx, handle)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, ErrUserNotFound(handle)
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("get user %s: %w", handle, err)
	}
	return u, nil
}

// GetOrCreate returns the profile for handle, inserting a fresh inactive one
// when none exists. Concurrent callers for the same handle in this process
// share one lookup, which a cancelled caller does not abort. A lost insert
// race against another process is resolved by reading the winner's row.
func (s *Service) GetOrCreate(ctx context.Context, handle string) (storage.User, error) {
	if err := validHandle(handle); err != nil {
		return storage.User{}, err
	}
	// The shared lookup outlives any single caller; each caller stops
	// waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(handle, func() (any, error) {
		return s.getOrCreate(shared, handle)
	})
	select {
	case <-ctx.Done():
		return storage.User{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return storage.User{}, res.Err
		}
		return res.Val.(storage.User), nil
	}
}

func (s *Service) getOrCreate(ctx context.Context, handle string) (storage.User, error) {
	u, err := s.store.GetUser(ctx, handle)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, fmt.Errorf("get user %s: %w", handle, err)
	}

	u, err = s.store.InsertUser(ctx, storage.User{
		Handle:      handle,
		DisplayName: DefaultDisplayName,
		Status:      storage.StatusInactive,
		JoinedAt:    s.clock.Now(),
	})
	switch {
	case err == nil:
		s.logger.Info("user created", "user", handle, "id", u.ID)
		return u, nil
	case errors.Is(err, storage.ErrConflict):
		s.logger.Debug("user created concurrently, re-reading", "user", handle)
		u, err = s.store.GetUser(ctx, handle)
		if err != nil {
			return storage.User{}, fmt.Errorf("re-read user %s: %w", handle, err)
		}
		return u, nil
	default:
		return storage.User{}, fmt.Errorf("insert user %s: %w", handle, err)
	}
}

// Update merges the set fields of upd into the profile. An empty update
// returns the current profile.
func (s *Service) Update(ctx context.Context, handle string, upd ProfileUpdate) (storage.User, error) {
	patch := storage.UserPatch(upd)
	if patch.Empty() {
		return s.Get(ctx, handle)
	}
	u, err := s.store.UpdateUser(ctx, handle, patch)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, ErrUserNotFound(handle)
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("update user %s: %w", handle, err)
	}
	return u, nil
}

// CreditPoints atomically adds amount to the points balance.
func (s *Service) CreditPoints(ctx context.Context, handle string, amount int64) error {
	err := s.store.IncrementPoints(ctx, handle, amount)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrUserNotFound(handle)
	}
	if err != nil {
		return fmt.Errorf("credit %d points to %s: %w", amount, handle, err)
	}
	s.logger.Info("points credited", "user", handle, "amount", amount)
	return nil
}

func validHandle(handle string) error {
	if strings.TrimSpace(handle) == "" {
		return apperr.Validation("empty user handle").Localize(i18n.KeyUserIDRequired)
	}
	return nil
}
