// Package history is the per-user ledger of generated interpretations.
// Retrieval is windowed to the last seven days and capped; records are
// immutable apart from their notes and summary.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zodiacbot/zodiacbot/internal/apperr"
	"github.com/zodiacbot/zodiacbot/internal/i18n"
	"github.com/zodiacbot/zodiacbot/internal/storage"
	"github.com/zodiacbot/zodiacbot/pkg/clock"
)

const (
	// Window bounds how far back ListRecent looks.
	Window = 7 * 24 * time.Hour
	// Limit caps the number of records ListRecent returns.
	Limit = 100
)

// Entry is the content of a new record.
type Entry struct {
	Kind           storage.Kind
	UserID         int64
	Question       string
	Cards          []string
	ImageRef       string
	Interpretation string
}

// Ledger appends, lists and edits interpretation records.
type Ledger struct {
	store  storage.HistoryStore
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Ledger over store.
func New(store storage.HistoryStore, clk clock.Clock, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, clock: clk, logger: logger}
}

// Append stores e with a fresh id and the current time.
func (l *Ledger) Append(ctx context.Context, e Entry) (storage.Record, error) {
	if err := checkKind(e.Kind); err != nil {
		return storage.Record{}, err
	}
	r := storage.Record{
		ID:             uuid.NewString(),
		Kind:           e.Kind,
		UserID:         e.UserID,
		Question:       e.Question,
		Cards:          slices.Clone(e.Cards),
		ImageRef:       e.ImageRef,
		Interpretation: e.Interpretation,
		CreatedAt:      l.clock.Now(),
	}
	if err := l.store.InsertRecord(ctx, r); err != nil {
		return storage.Record{}, fmt.Errorf("append %s record for user %d: %w", e.Kind, e.UserID, err)
	}
	l.logger.Debug("history appended", "kind", e.Kind, "user_id", e.UserID, "record", r.ID)
	return r, nil
}

// ListRecent returns the user's records of kind from the last seven days,
// newest first, at most Limit of them.
func (l *Ledger) ListRecent(ctx context.Context, kind storage.Kind, userID int64) ([]storage.Record, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	since := l.clock.Now().Add(-Window)
	rs, err := l.store.ListRecords(ctx, kind, userID, since, Limit)
	if err != nil {
		return nil, fmt.Errorf("list %s history for user %d: %w", kind, userID, err)
	}
	return rs, nil
}

// ListAllRecent merges the recent records of every kind, newest first,
// capped at Limit.
func (l *Ledger) ListAllRecent(ctx context.Context, userID int64) ([]storage.Record, error) {
	var (
		mu  sync.Mutex
		all []storage.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range storage.Kinds {
		g.Go(func() error {
			rs, err := l.ListRecent(gctx, kind, userID)
			if err != nil {
				return err
			}
			mu.Lock()
			all = append(all, rs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(all, func(a, b storage.Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(all) > Limit {
		all = all[:Limit]
	}
	return all, nil
}

// UpdateFields sets the notes and summary present in patch on the user's
// record. A malformed id is a validation failure; an id that matches no
// record owned by the user is not found.
func (l *Ledger) UpdateFields(ctx context.Context, kind storage.Kind, userID int64, recordID string, patch storage.RecordPatch) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if err := checkRecordID(recordID); err != nil {
		return err
	}
	if patch.Empty() {
		return apperr.Validation("no fields to update").Localize(i18n.KeyNothingToUpdate)
	}
	ok, err := l.store.UpdateRecord(ctx, kind, userID, recordID, patch)
	if err != nil {
		return fmt.Errorf("update %s record %s: %w", kind, recordID, err)
	}
	if !ok {
		return errEntryNotFound(kind, recordID)
	}
	return nil
}

// DeleteOne removes one record owned by the user.
func (l *Ledger) DeleteOne(ctx context.Context, kind storage.Kind, userID int64, recordID string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if err := checkRecordID(recordID); err != nil {
		return err
	}
	ok, err := l.store.DeleteRecord(ctx, kind, userID, recordID)
	if err != nil {
		return fmt.Errorf("delete %s record %s: %w", kind, recordID, err)
	}
	if !ok {
		return errEntryNotFound(kind, recordID)
	}
	l.logger.Info("history record deleted", "kind", kind, "user_id", userID, "record", recordID)
	return nil
}

// DeleteAllOfKind removes every record of kind owned by the user and
// returns how many were removed.
func (l *Ledger) DeleteAllOfKind(ctx context.Context, kind storage.Kind, userID int64) (int, error) {
	if err := checkKind(kind); err != nil {
		return 0, err
	}
	n, err := l.store.DeleteRecords(ctx, kind, userID)
	if err != nil {
		return 0, fmt.Errorf("clear %s history for user %d: %w", kind, userID, err)
	}
	l.logger.Info("history cleared", "kind", kind, "user_id", userID, "deleted", n)
	return n, nil
}

// DeleteAllForUser removes the user's records of every kind and returns
// the total removed.
func (l *Ledger) DeleteAllForUser(ctx context.Context, userID int64) (int, error) {
	counts := make([]int, len(storage.Kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range storage.Kinds {
		g.Go(func() error {
			n, err := l.DeleteAllOfKind(gctx, kind, userID)
			counts[i] = n
			return err
		})
	}
	err := g.Wait()
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, err
}

func checkKind(kind storage.Kind) error {
	if !kind.Valid() {
		return apperr.Validation(fmt.Sprintf("unknown history kind %q", kind)).Localize(i18n.KeyInvalidRequest)
	}
	return nil
}

func checkRecordID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Wrap(apperr.CodeValidation, "invalid record id "+id, err).Localize(i18n.KeyInvalidEntryID)
	}
	return nil
}

func errEntryNotFound(kind storage.Kind, id string) error {
	return apperr.NotFound(fmt.Sprintf("%s record %s not found", kind, id)).Localize(i18n.KeyEntryNotFound)
}
