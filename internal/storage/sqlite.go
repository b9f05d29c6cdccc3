package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pfrederiksen/retreat-events/internal/retreat"
)

// SQLiteStore writes records to a local SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// sqliteFile is the database name used when path names a directory.
const sqliteFile = "retreats.db"

// OpenSQLite opens (creating if needed) the database at path and makes sure
// the table exists. A leading ~/ is expanded. An existing directory or a
// path without an extension gets retreats.db appended, and missing parent
// directories are created.
func OpenSQLite(ctx context.Context, path, table string) (*SQLiteStore, error) {
	path, err := sqlitePath(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, table: table}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func sqlitePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite: empty database path")
	}
	path, err := expandHome(path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(path); (err == nil && info.IsDir()) || filepath.Ext(path) == "" {
		path = filepath.Join(path, sqliteFile)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating database directory: %w", err)
	}
	return path, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			source_url TEXT,
			external_id TEXT,
			title TEXT NOT NULL,
			description TEXT,
			start_date DATETIME NOT NULL,
			end_date DATETIME,
			location TEXT,
			contact TEXT,
			registration_link TEXT,
			organizer TEXT,
			registration_deadline TEXT,
			target_group TEXT,
			uniqueness_key TEXT NOT NULL UNIQUE,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

func upsertSQL(table, conflictKey string, placeholder func(i int) string, now string) string {
	ph := make([]string, len(columns))
	set := make([]string, 0, len(columns))
	for i, c := range columns {
		ph[i] = placeholder(i + 1)
		if c != conflictKey {
			set = append(set, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	set = append(set, "updated_at = "+now)

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(columns, ", "), strings.Join(ph, ", "), conflictKey, strings.Join(set, ", "),
	)
}

// Upsert writes records in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, records []retreat.Retreat, conflictKey string) (int, error) {
	if err := checkConflictKey(conflictKey); err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := s.upsert(ctx, records, conflictKey)
	observe(DriverSQLite, start, n, err)
	return n, err
}

func (s *SQLiteStore) upsert(ctx context.Context, records []retreat.Retreat, conflictKey string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := upsertSQL(s.table, conflictKey, func(int) string { return "?" }, "CURRENT_TIMESTAMP")
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	total := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, values(r)...)
		if err != nil {
			return 0, fmt.Errorf("upserting %q: %w", r.Title, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("reading rows affected: %w", err)
		}
		total += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return total, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
