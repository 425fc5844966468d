// Package storagetest holds the behavioural contract every storage.Store
// driver must satisfy. Driver packages call Run from their own tests.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zodiacbot/zodiacbot/internal/storage"
)

// Factory opens an empty store for one subtest.
type Factory func(t *testing.T) storage.Store

// Run executes the contract against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Run("users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("concurrent insert", func(t *testing.T) { testConcurrentInsert(t, open(t)) })
	t.Run("referrer set once", func(t *testing.T) { testReferrer(t, open(t)) })
	t.Run("subscription expiry", func(t *testing.T) { testExpire(t, open(t)) })
	t.Run("history", func(t *testing.T) { testHistory(t, open(t)) })
	t.Run("history same instant", func(t *testing.T) { testSameInstant(t, open(t)) })
	t.Run("history ownership", func(t *testing.T) { testOwnership(t, open(t)) })
}

var base = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

func newUser(handle string) storage.User {
	return storage.User{
		Handle:      handle,
		DisplayName: "Unknown",
		Status:      storage.StatusInactive,
		JoinedAt:    base,
	}
}

func strPtr(s string) *string { return &s }

func testUsers(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.GetUser(ctx, "u1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	created, err := s.InsertUser(ctx, newUser("u1"))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	_, err = s.InsertUser(ctx, newUser("u1"))
	require.ErrorIs(t, err, storage.ErrConflict)

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, storage.StatusInactive, got.Status)
	assert.Nil(t, got.ExpiresAt)
	assert.True(t, got.JoinedAt.Equal(base))

	enabled := true
	updated, err := s.UpdateUser(ctx, "u1", storage.UserPatch{FullName: strPtr("Ada L."), Autopayment: &enabled})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", updated.FullName)
	assert.Equal(t, "Unknown", updated.DisplayName, "unset fields stay untouched")
	assert.True(t, updated.Autopayment)

	_, err = s.UpdateUser(ctx, "nobody", storage.UserPatch{FullName: strPtr("x")})
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.IncrementPoints(ctx, "u1", 1000))
	require.NoError(t, s.IncrementPoints(ctx, "u1", 1000))
	got, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2000, got.Points)
	require.ErrorIs(t, s.IncrementPoints(ctx, "nobody", 1), storage.ErrNotFound)

	expires := base.Add(30 * 24 * time.Hour)
	require.NoError(t, s.SetSubscription(ctx, "u1", storage.StatusActive, &expires))
	got, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusActive, got.Status)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(expires))
	require.ErrorIs(t, s.SetSubscription(ctx, "nobody", storage.StatusActive, &expires), storage.ErrNotFound)
}

func testConcurrentInsert(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const workers = 16

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.InsertUser(ctx, newUser("racer"))
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, storage.ErrConflict)
	}
	assert.Equal(t, 1, wins)
}

func testReferrer(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.InsertUser(ctx, newUser("a"))
	require.NoError(t, err)

	require.NoError(t, s.SetReferrer(ctx, "a", "b"))
	require.ErrorIs(t, s.SetReferrer(ctx, "a", "c"), storage.ErrConflict)
	require.ErrorIs(t, s.SetReferrer(ctx, "nobody", "c"), storage.ErrNotFound)

	got, err := s.GetUser(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "b", got.ReferredBy)
}

func testExpire(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.InsertUser(ctx, newUser("lapsed"))
	require.NoError(t, err)
	_, err = s.InsertUser(ctx, newUser("current"))
	require.NoError(t, err)

	past := base.Add(-time.Hour)
	future := base.Add(time.Hour)
	require.NoError(t, s.SetSubscription(ctx, "lapsed", storage.StatusActive, &past))
	require.NoError(t, s.SetSubscription(ctx, "current", storage.StatusActive, &future))

	changed, err := s.ExpireSubscription(ctx, "lapsed", base)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.ExpireSubscription(ctx, "lapsed", base)
	require.NoError(t, err)
	assert.False(t, changed, "second expiry is a no-op")

	got, err := s.GetUser(ctx, "lapsed")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusInactive, got.Status)
	assert.Nil(t, got.ExpiresAt)

	changed, err = s.ExpireSubscription(ctx, "current", base)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = s.ExpireSubscription(ctx, "nobody", base)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func insertRecords(t *testing.T, s storage.Store, kind storage.Kind, userID int64, n int, start time.Time) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := range n {
		r := storage.Record{
			ID:             uuid.NewString(),
			Kind:           kind,
			UserID:         userID,
			Question:       fmt.Sprintf("question %d", i),
			Interpretation: "text",
			CreatedAt:      start.Add(time.Duration(i) * time.Minute),
		}
		if kind == storage.KindTarot {
			r.Cards = []string{"The Fool", "The Star"}
		} else {
			r.ImageRef = "sha256:abc"
		}
		require.NoError(t, s.InsertRecord(context.Background(), r))
		ids = append(ids, r.ID)
	}
	return ids
}

func testHistory(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u, err := s.InsertUser(ctx, newUser("h"))
	require.NoError(t, err)

	ids := insertRecords(t, s, storage.KindTarot, u.ID, 3, base)
	insertRecords(t, s, storage.KindCoffee, u.ID, 2, base)
	// Outside the window.
	insertRecords(t, s, storage.KindTarot, u.ID, 1, base.Add(-8*24*time.Hour))

	since := base.Add(-7 * 24 * time.Hour)
	list, err := s.ListRecords(ctx, storage.KindTarot, u.ID, since, 100)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID, "newest first")
	assert.Equal(t, ids[0], list[2].ID)
	assert.Equal(t, []string{"The Fool", "The Star"}, list[0].Cards)

	limited, err := s.ListRecords(ctx, storage.KindTarot, u.ID, since, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	ok, err := s.UpdateRecord(ctx, storage.KindTarot, u.ID, ids[1], storage.RecordPatch{Notes: strPtr("keep")})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.UpdateRecord(ctx, storage.KindTarot, u.ID, ids[1], storage.RecordPatch{Summary: strPtr("short")})
	require.NoError(t, err)
	assert.True(t, ok)
	list, err = s.ListRecords(ctx, storage.KindTarot, u.ID, since, 100)
	require.NoError(t, err)
	assert.Equal(t, "keep", list[1].Notes)
	assert.Equal(t, "short", list[1].Summary)

	ok, err = s.UpdateRecord(ctx, storage.KindTarot, u.ID, uuid.NewString(), storage.RecordPatch{Notes: strPtr("x")})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.DeleteRecord(ctx, storage.KindTarot, u.ID, ids[0])
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.DeleteRecord(ctx, storage.KindTarot, u.ID, ids[0])
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.DeleteRecords(ctx, storage.KindTarot, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "two in window plus one outside it")
	n, err = s.DeleteRecords(ctx, storage.KindCoffee, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testSameInstant(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u, err := s.InsertUser(ctx, newUser("burst"))
	require.NoError(t, err)

	var ids []string
	for i := range 5 {
		r := storage.Record{
			ID:             uuid.NewString(),
			Kind:           storage.KindCoffee,
			UserID:         u.ID,
			Question:       fmt.Sprintf("burst %d", i),
			ImageRef:       "sha256:abc",
			Interpretation: "text",
			CreatedAt:      base,
		}
		require.NoError(t, s.InsertRecord(ctx, r))
		ids = append(ids, r.ID)
	}

	list, err := s.ListRecords(ctx, storage.KindCoffee, u.ID, base, 100)
	require.NoError(t, err)
	got := make([]string, 0, len(list))
	for _, r := range list {
		got = append(got, r.ID)
	}
	assert.Equal(t, []string{ids[4], ids[3], ids[2], ids[1], ids[0]}, got, "latest insert first")

	limited, err := s.ListRecords(ctx, storage.KindCoffee, u.ID, base, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, ids[4], limited[0].ID)
	assert.Equal(t, ids[3], limited[1].ID)
}

func testOwnership(t *testing.T, s storage.Store) {
	ctx := context.Background()
	owner, err := s.InsertUser(ctx, newUser("owner"))
	require.NoError(t, err)
	other, err := s.InsertUser(ctx, newUser("other"))
	require.NoError(t, err)

	ids := insertRecords(t, s, storage.KindCoffee, owner.ID, 1, base)

	ok, err := s.UpdateRecord(ctx, storage.KindCoffee, other.ID, ids[0], storage.RecordPatch{Notes: strPtr("hijack")})
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.DeleteRecord(ctx, storage.KindCoffee, other.ID, ids[0])
	require.NoError(t, err)
	assert.False(t, ok)
	n, err := s.DeleteRecords(ctx, storage.KindCoffee, other.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := s.ListRecords(ctx, storage.KindCoffee, owner.ID, base.Add(-time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Notes)
	assert.Equal(t, "sha256:abc", list[0].ImageRef)
}
