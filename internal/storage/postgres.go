package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pfrederiksen/retreat-events/internal/retreat"
)

// PostgresStore writes records straight to Postgres.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// OpenPostgres connects, pings and makes sure the table exists.
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: empty DSN")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, table: table}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			source TEXT NOT NULL,
			source_url TEXT,
			external_id TEXT,
			title VARCHAR(255) NOT NULL,
			description TEXT,
			start_date TIMESTAMPTZ NOT NULL,
			end_date TIMESTAMPTZ,
			location VARCHAR(255),
			contact VARCHAR(255),
			registration_link VARCHAR(1024),
			organizer VARCHAR(255),
			registration_deadline VARCHAR(255),
			target_group TEXT,
			uniqueness_key TEXT NOT NULL UNIQUE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

// Upsert queues every record on one pgx batch inside a transaction and sums
// the affected rows.
func (s *PostgresStore) Upsert(ctx context.Context, records []retreat.Retreat, conflictKey string) (int, error) {
	if err := checkConflictKey(conflictKey); err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := s.upsert(ctx, records, conflictKey)
	observe(DriverPostgres, start, n, err)
	return n, err
}

func (s *PostgresStore) upsert(ctx context.Context, records []retreat.Retreat, conflictKey string) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := upsertSQL(s.table, conflictKey, func(i int) string { return fmt.Sprintf("$%d", i) }, "now()")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b := &pgx.Batch{}
	for _, r := range records {
		b.Queue(query, values(r)...)
	}

	total := 0
	br := tx.SendBatch(ctx, b)
	for range records {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("upserting batch: %w", err)
		}
		total += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return total, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
