// Package sqlite provides the SQLite-backed storage.Store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/zodiacbot/zodiacbot/internal/storage"
	"github.com/zodiacbot/zodiacbot/internal/storage/sqlite/migrations"
	"github.com/zodiacbot/zodiacbot/internal/storage/sqlitemigrate"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists profiles and history in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const userColumns = `id, handle, display_name, full_name, subscription_status,
	subscription_expires_at, points, referred_by, autopayment_enabled, joined_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (storage.User, error) {
	var (
		u           storage.User
		status      string
		expiresAt   sql.NullInt64
		referredBy  sql.NullString
		autopayment int64
		joinedAt    int64
	)
	if err := row.Scan(&u.ID, &u.Handle, &u.DisplayName, &u.FullName, &status,
		&expiresAt, &u.Points, &referredBy, &autopayment, &joinedAt); err != nil {
		return storage.User{}, err
	}
	u.Status = storage.SubscriptionStatus(status)
	if expiresAt.Valid {
		t := fromMillis(expiresAt.Int64)
		u.ExpiresAt = &t
	}
	u.ReferredBy = referredBy.String
	u.Autopayment = autopayment != 0
	u.JoinedAt = fromMillis(joinedAt)
	return u, nil
}

// GetUser returns the profile for handle.
func (s *Store) GetUser(ctx context.Context, handle string) (storage.User, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE handle = ?`, handle)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.User{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// InsertUser inserts u and returns it with the assigned id.
func (s *Store) InsertUser(ctx context.Context, u storage.User) (storage.User, error) {
	if strings.TrimSpace(u.Handle) == "" {
		return storage.User{}, fmt.Errorf("user handle is required")
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (
		   handle, display_name, full_name, subscription_status,
		   subscription_expires_at, points, referred_by, autopayment_enabled, joined_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Handle,
		u.DisplayName,
		u.FullName,
		string(u.Status),
		nullMillis(u.ExpiresAt),
		u.Points,
		nullString(u.ReferredBy),
		boolInt(u.Autopayment),
		toMillis(u.JoinedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.User{}, storage.ErrConflict
		}
		return storage.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storage.User{}, fmt.Errorf("insert user id: %w", err)
	}
	u.ID = id
	return u, nil
}

// UpdateUser applies patch to the profile for handle.
func (s *Store) UpdateUser(ctx context.Context, handle string, patch storage.UserPatch) (storage.User, error) {
	var (
		sets []string
		args []any
	)
	if patch.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, *patch.DisplayName)
	}
	if patch.FullName != nil {
		sets = append(sets, "full_name = ?")
		args = append(args, *patch.FullName)
	}
	if patch.Autopayment != nil {
		sets = append(sets, "autopayment_enabled = ?")
		args = append(args, boolInt(*patch.Autopayment))
	}
	if len(sets) > 0 {
		args = append(args, handle)
		res, err := s.sqlDB.ExecContext(ctx,
			`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE handle = ?`, args...)
		if err != nil {
			return storage.User{}, fmt.Errorf("update user: %w", err)
		}
		if err := requireRow(res); err != nil {
			return storage.User{}, err
		}
	}
	return s.GetUser(ctx, handle)
}

// IncrementPoints adds delta to the points balance in one statement.
func (s *Store) IncrementPoints(ctx context.Context, handle string, delta int64) error {
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE users SET points = points + ? WHERE handle = ?`, delta, handle)
	if err != nil {
		return fmt.Errorf("increment points: %w", err)
	}
	return requireRow(res)
}

// SetReferrer records referrer while referred_by is still null.
func (s *Store) SetReferrer(ctx context.Context, handle, referrer string) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE users SET referred_by = ? WHERE handle = ? AND referred_by IS NULL`, referrer, handle)
	if err != nil {
		return fmt.Errorf("set referrer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set referrer rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetUser(ctx, handle); err != nil {
		return err
	}
	return storage.ErrConflict
}

// SetSubscription overwrites status and expiry.
func (s *Store) SetSubscription(ctx context.Context, handle string, status storage.SubscriptionStatus, expiresAt *time.Time) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE users SET subscription_status = ?, subscription_expires_at = ? WHERE handle = ?`,
		string(status), nullMillis(expiresAt), handle)
	if err != nil {
		return fmt.Errorf("set subscription: %w", err)
	}
	return requireRow(res)
}

// ExpireSubscription deactivates an active subscription that has lapsed.
func (s *Store) ExpireSubscription(ctx context.Context, handle string, now time.Time) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE users SET subscription_status = ?, subscription_expires_at = NULL
		 WHERE handle = ? AND subscription_status = ? AND subscription_expires_at IS NOT NULL
		   AND subscription_expires_at <= ?`,
		string(storage.StatusInactive), handle, string(storage.StatusActive), toMillis(now))
	if err != nil {
		return false, fmt.Errorf("expire subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("expire subscription rows: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetUser(ctx, handle); err != nil {
		return false, err
	}
	return false, nil
}

func historyTable(kind storage.Kind) (string, error) {
	switch kind {
	case storage.KindTarot:
		return "tarot_history", nil
	case storage.KindCoffee:
		return "coffee_history", nil
	default:
		return "", fmt.Errorf("unknown history kind %q", kind)
	}
}

// InsertRecord stores r in its kind's table.
func (s *Store) InsertRecord(ctx context.Context, r storage.Record) error {
	var err error
	switch r.Kind {
	case storage.KindTarot:
		cards, mErr := json.Marshal(nonNil(r.Cards))
		if mErr != nil {
			return fmt.Errorf("encode cards: %w", mErr)
		}
		_, err = s.sqlDB.ExecContext(ctx,
			`INSERT INTO tarot_history (id, user_id, question, cards, interpretation, notes, summary, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.UserID, r.Question, string(cards), r.Interpretation, r.Notes, r.Summary, toMillis(r.CreatedAt))
	case storage.KindCoffee:
		_, err = s.sqlDB.ExecContext(ctx,
			`INSERT INTO coffee_history (id, user_id, question, image_ref, interpretation, notes, summary, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.UserID, r.Question, r.ImageRef, r.Interpretation, r.Notes, r.Summary, toMillis(r.CreatedAt))
	default:
		return fmt.Errorf("unknown history kind %q", r.Kind)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert %s record: %w", r.Kind, err)
	}
	return nil
}

// ListRecords returns the user's records created at or after since, newest first.
func (s *Store) ListRecords(ctx context.Context, kind storage.Kind, userID int64, since time.Time, limit int) ([]storage.Record, error) {
	var query string
	switch kind {
	case storage.KindTarot:
		query = `SELECT id, user_id, question, cards, interpretation, notes, summary, created_at
		         FROM tarot_history WHERE user_id = ? AND created_at >= ?
		         ORDER BY created_at DESC, rowid DESC LIMIT ?`
	case storage.KindCoffee:
		query = `SELECT id, user_id, question, image_ref, interpretation, notes, summary, created_at
		         FROM coffee_history WHERE user_id = ? AND created_at >= ?
		         ORDER BY created_at DESC, rowid DESC LIMIT ?`
	default:
		return nil, fmt.Errorf("unknown history kind %q", kind)
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, userID, toMillis(since), limit)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", kind, err)
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		var (
			r         storage.Record
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Question, &payload, &r.Interpretation,
			&r.Notes, &r.Summary, &createdAt); err != nil {
			return nil, fmt.Errorf("scan %s record: %w", kind, err)
		}
		r.Kind = kind
		r.CreatedAt = fromMillis(createdAt)
		if kind == storage.KindTarot {
			if err := json.Unmarshal([]byte(payload), &r.Cards); err != nil {
				return nil, fmt.Errorf("decode cards for %s: %w", r.ID, err)
			}
		} else {
			r.ImageRef = payload
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s records: %w", kind, err)
	}
	return out, nil
}

// UpdateRecord applies patch to the user's record with id.
func (s *Store) UpdateRecord(ctx context.Context, kind storage.Kind, userID int64, id string, patch storage.RecordPatch) (bool, error) {
	table, err := historyTable(kind)
	if err != nil {
		return false, err
	}
	var (
		sets []string
		args []any
	)
	if patch.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *patch.Notes)
	}
	if patch.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *patch.Summary)
	}
	if len(sets) == 0 {
		return false, fmt.Errorf("empty record patch")
	}
	args = append(args, id, userID)
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE `+table+` SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("update %s record: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s record rows: %w", kind, err)
	}
	return n > 0, nil
}

// DeleteRecord removes the user's record with id.
func (s *Store) DeleteRecord(ctx context.Context, kind storage.Kind, userID int64, id string) (bool, error) {
	table, err := historyTable(kind)
	if err != nil {
		return false, err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete %s record: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s record rows: %w", kind, err)
	}
	return n > 0, nil
}

// DeleteRecords removes every record of kind owned by the user.
func (s *Store) DeleteRecords(ctx context.Context, kind storage.Kind, userID int64) (int, error) {
	table, err := historyTable(kind)
	if err != nil {
		return 0, err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete %s records: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s records rows: %w", kind, err)
	}
	return int(n), nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func nonNil(cards []string) []string {
	if cards == nil {
		return []string{}
	}
	return cards
}
