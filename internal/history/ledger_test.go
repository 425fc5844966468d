package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zodiacbot/zodiacbot/internal/apperr"
	"github.com/zodiacbot/zodiacbot/internal/storage"
	"github.com/zodiacbot/zodiacbot/internal/storage/memory"
	"github.com/zodiacbot/zodiacbot/pkg/clock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newLedger(t *testing.T) (*Ledger, *clock.Fixed) {
	t.Helper()
	clk := clock.NewFixed(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	return New(memory.New(), clk, slog.New(slog.NewTextHandler(io.Discard, nil))), clk
}

func appendTarot(t *testing.T, l *Ledger, userID int64, question string) storage.Record {
	t.Helper()
	r, err := l.Append(context.Background(), Entry{
		Kind:           storage.KindTarot,
		UserID:         userID,
		Question:       question,
		Cards:          []string{"The Fool"},
		Interpretation: "text for " + question,
	})
	require.NoError(t, err)
	return r
}

func TestAppendListDeleteAll(t *testing.T) {
	ctx := context.Background()
	l, clk := newLedger(t)

	for _, q := range []string{"first", "second", "third"} {
		appendTarot(t, l, 1, q)
		clk.Advance(time.Minute)
	}

	recent, err := l.ListRecent(ctx, storage.KindTarot, 1)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "third", recent[0].Question)
	assert.Equal(t, "first", recent[2].Question)

	deleted, err := l.DeleteAllForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	recent, err = l.ListRecent(ctx, storage.KindTarot, 1)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestListRecentWindow(t *testing.T) {
	ctx := context.Background()
	l, clk := newLedger(t)

	appendTarot(t, l, 1, "old")
	clk.Advance(Window + time.Hour)
	appendTarot(t, l, 1, "fresh")

	recent, err := l.ListRecent(ctx, storage.KindTarot, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "fresh", recent[0].Question)
}

func TestListRecentCap(t *testing.T) {
	ctx := context.Background()
	l, clk := newLedger(t)

	for range Limit + 5 {
		appendTarot(t, l, 1, "q")
		clk.Advance(time.Second)
	}
	recent, err := l.ListRecent(ctx, storage.KindTarot, 1)
	require.NoError(t, err)
	assert.Len(t, recent, Limit)
}

func TestListAllRecentMergesKinds(t *testing.T) {
	ctx := context.Background()
	l, clk := newLedger(t)

	appendTarot(t, l, 1, "tarot")
	clk.Advance(time.Minute)
	_, err := l.Append(ctx, Entry{Kind: storage.KindCoffee, UserID: 1, Question: "coffee", ImageRef: "sha256:ab"})
	require.NoError(t, err)

	all, err := l.ListAllRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, storage.KindCoffee, all[0].Kind)
	assert.Equal(t, storage.KindTarot, all[1].Kind)
}

func TestUpdateFields(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	r := appendTarot(t, l, 1, "q")

	notes := "remember this"
	require.NoError(t, l.UpdateFields(ctx, storage.KindTarot, 1, r.ID, storage.RecordPatch{Notes: &notes}))

	recent, err := l.ListRecent(ctx, storage.KindTarot, 1)
	require.NoError(t, err)
	assert.Equal(t, "remember this", recent[0].Notes)
	assert.Empty(t, recent[0].Summary)
	assert.Equal(t, "text for q", recent[0].Interpretation)

	cases := []struct {
		name   string
		userID int64
		id     string
		patch  storage.RecordPatch
		code   apperr.Code
	}{
		{"malformed id", 1, "not-a-uuid", storage.RecordPatch{Notes: &notes}, apperr.CodeValidation},
		{"empty patch", 1, r.ID, storage.RecordPatch{}, apperr.CodeValidation},
		{"unknown id", 1, uuid.NewString(), storage.RecordPatch{Notes: &notes}, apperr.CodeNotFound},
		{"other owner", 2, r.ID, storage.RecordPatch{Notes: &notes}, apperr.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := l.UpdateFields(ctx, storage.KindTarot, tc.userID, tc.id, tc.patch)
			assert.Equal(t, tc.code, apperr.CodeOf(err))
		})
	}
}

func TestDeleteOne(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	r := appendTarot(t, l, 1, "q")

	err := l.DeleteOne(ctx, storage.KindTarot, 2, r.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	require.NoError(t, l.DeleteOne(ctx, storage.KindTarot, 1, r.ID))

	err = l.DeleteOne(ctx, storage.KindTarot, 1, r.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	err = l.DeleteOne(ctx, storage.KindTarot, 1, "zzz")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestDeleteAllOfKindLeavesOtherKinds(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	appendTarot(t, l, 1, "q")
	_, err := l.Append(ctx, Entry{Kind: storage.KindCoffee, UserID: 1, Question: "c"})
	require.NoError(t, err)

	n, err := l.DeleteAllOfKind(ctx, storage.KindCoffee, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recent, err := l.ListRecent(ctx, storage.KindTarot, 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

type failingStore struct{ storage.HistoryStore }

func (failingStore) DeleteRecords(context.Context, storage.Kind, int64) (int, error) {
	return 0, errors.New("store offline")
}

func TestDeleteAllForUserPropagatesStoreError(t *testing.T) {
	l := New(failingStore{}, clock.System{}, nil)

	_, err := l.DeleteAllForUser(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
}

func TestUnknownKindRejected(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.ListRecent(context.Background(), storage.Kind("runes"), 1)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}
