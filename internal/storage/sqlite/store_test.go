package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zodiacbot/zodiacbot/internal/storage"
	"github.com/zodiacbot/zodiacbot/internal/storage/storagetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "zodiac.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return openTestStore(t)
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "zodiac.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	joined := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_, err = s.InsertUser(ctx, storage.User{Handle: "42", Status: storage.StatusInactive, JoinedAt: joined})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.GetUser(ctx, "42")
	require.NoError(t, err)
	assert.True(t, got.JoinedAt.Equal(joined))
}

func TestUpdateRecordRejectsEmptyPatch(t *testing.T) {
	s := openTestStore(t)
	_, err := s.UpdateRecord(context.Background(), storage.KindTarot, 1, "id", storage.RecordPatch{})
	require.Error(t, err)
}
