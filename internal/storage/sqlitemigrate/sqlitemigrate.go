// Package sqlitemigrate applies embedded SQL migrations to a SQLite database,
// recording each applied file in schema_migrations.
package sqlitemigrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const migrationTable = "schema_migrations"

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// Apply runs every *.sql file at the root of migrations that has not been
// applied yet, in lexical order, each inside its own transaction.
func Apply(ctx context.Context, db *sql.DB, migrations fs.FS) error {
	if db == nil {
		return fmt.Errorf("sql db is required")
	}

	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range files {
		applied, err := isApplied(ctx, db, name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		content, err := fs.ReadFile(migrations, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := applyOne(ctx, db, name, UpSection(string(content))); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(ctx context.Context, db *sql.DB, name, upSQL string) error {
	if strings.TrimSpace(upSQL) == "" {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, upSQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
		name, time.Now().UTC().UnixMilli(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

// UpSection returns the SQL between the Up and Down markers. Content
// without an Up marker is returned whole.
func UpSection(content string) string {
	upIdx := strings.Index(content, upMarker)
	if upIdx == -1 {
		return content
	}
	rest := content[upIdx+len(upMarker):]
	if downIdx := strings.Index(rest, downMarker); downIdx != -1 {
		return rest[:downIdx]
	}
	return rest
}

func isApplied(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var found int
	err := db.QueryRowContext(ctx, "SELECT 1 FROM "+migrationTable+" WHERE name = ?", name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
