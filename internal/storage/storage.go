package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pfrederiksen/retreat-events/internal/metrics"
	"github.com/pfrederiksen/retreat-events/internal/retreat"
)

// Driver names accepted by Open.
const (
	DriverFile      = "file"
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverPostgREST = "postgrest"
)

// DefaultTable is the destination table for the SQL and REST drivers.
const DefaultTable = "retreats"

// DefaultDataDir holds the file snapshot and, unless a file is named, the
// SQLite database.
const DefaultDataDir = "~/.local/share/retreat-events"

// Store is a destination for retreat records.
type Store interface {
	Upsert(ctx context.Context, records []retreat.Retreat, conflictKey string) (int, error)
	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver string
	Table  string

	// Path is the snapshot directory for "file". For "sqlite" it is the
	// database file, or a directory that will hold retreats.db.
	Path string

	// DSN is the connection string for "postgres".
	DSN string

	// URL and Key address the hosted REST endpoint for "postgrest".
	URL string
	Key string
}

// Open creates the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !validIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	var (
		store Store
		err   error
	)
	switch strings.ToLower(cfg.Driver) {
	case DriverFile:
		store, err = New(cfg.Path)
	case DriverSQLite:
		store, err = OpenSQLite(ctx, cfg.Path, table)
	case DriverPostgres:
		store, err = OpenPostgres(ctx, cfg.DSN, table)
	case DriverPostgREST:
		store, err = NewREST(cfg.URL, cfg.Key, table)
	case "":
		return nil, fmt.Errorf("no storage driver configured")
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// validIdentifier guards names that end up inside SQL text.
func validIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// columns is the persisted shape of a record, in insert order.
var columns = []string{
	"source",
	"source_url",
	"external_id",
	"title",
	"description",
	"start_date",
	"end_date",
	"location",
	"contact",
	"registration_link",
	"organizer",
	"registration_deadline",
	"target_group",
	"uniqueness_key",
}

// values returns r's column values in the order of columns. Empty strings
// and missing dates become nil so drivers store NULL.
func values(r retreat.Retreat) []any {
	return []any{
		string(r.Source),
		nullable(r.SourceURL),
		nullable(r.ExternalID),
		r.Title,
		nullable(r.Description),
		nullableTime(r.StartDate),
		nullableTime(r.EndDate),
		nullable(r.Location),
		nullable(r.Contact),
		nullable(r.RegistrationLink),
		nullable(r.Organizer),
		nullable(r.RegistrationDeadline),
		nullable(r.TargetGroup),
		r.UniquenessKey,
	}
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

func checkConflictKey(conflictKey string) error {
	if !validIdentifier(conflictKey) {
		return fmt.Errorf("invalid conflict key %q", conflictKey)
	}
	for _, c := range columns {
		if c == conflictKey {
			return nil
		}
	}
	return fmt.Errorf("unknown conflict key %q", conflictKey)
}

// observe records the outcome of one batch.
func observe(driver string, start time.Time, written int, err error) {
	metrics.StorageDuration.WithLabelValues(driver).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageErrors.WithLabelValues(driver).Inc()
		return
	}
	metrics.RowsWritten.WithLabelValues(driver).Add(float64(written))
}
