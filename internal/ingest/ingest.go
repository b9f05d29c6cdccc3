// Package ingest runs the retreat pipeline: collect candidates from the
// enabled sources, drop the ineligible ones, deduplicate on the uniqueness
// key and upsert the survivors in fixed-size batches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pfrederiksen/retreat-events/internal/logger"
	"github.com/pfrederiksen/retreat-events/internal/metrics"
	"github.com/pfrederiksen/retreat-events/internal/retreat"
)

const (
	// BatchSize is the number of records sent per Upsert call.
	BatchSize = 200

	// ConflictKey is the column the store resolves duplicates on.
	ConflictKey = "uniqueness_key"

	DefaultPerFeedItemLimit       = 100
	DefaultListingDetailPageLimit = 40

	// SampleSize is how many records a dry run echoes back.
	SampleSize = 10
)

// ErrNoStore is returned by Run when a non-dry run has nowhere to write.
var ErrNoStore = errors.New("no store configured")

// Source is implemented by each adapter. limit caps the work the adapter
// does (items per feed, detail pages); zero or less means no cap.
type Source interface {
	Name() string
	Fetch(ctx context.Context, limit int) ([]retreat.Retreat, error)
}

// Store persists records, resolving conflicts on conflictKey. It returns the
// number of rows written. One call must be atomic.
type Store interface {
	Upsert(ctx context.Context, records []retreat.Retreat, conflictKey string) (int, error)
}

// Sources selects which adapters a run uses.
type Sources string

const (
	SourcesAll     Sources = "all"
	SourcesFeed    Sources = "feed"
	SourcesListing Sources = "listing"
)

// ParseSources accepts "feed", "listing", "all" or "" (all).
func ParseSources(s string) (Sources, error) {
	switch v := Sources(strings.ToLower(strings.TrimSpace(s))); v {
	case "", SourcesAll:
		return SourcesAll, nil
	case SourcesFeed, SourcesListing:
		return v, nil
	default:
		return "", fmt.Errorf("unknown source %q (want feed, listing or all)", s)
	}
}

func (s Sources) includes(name Sources) bool {
	return s == "" || s == SourcesAll || s == name
}

// Options controls one run.
type Options struct {
	Dry                    bool
	Sources                Sources
	PerFeedItemLimit       int
	ListingDetailPageLimit int
}

func (o Options) withDefaults() Options {
	if o.Sources == "" {
		o.Sources = SourcesAll
	}
	if o.PerFeedItemLimit <= 0 {
		o.PerFeedItemLimit = DefaultPerFeedItemLimit
	}
	if o.ListingDetailPageLimit <= 0 {
		o.ListingDetailPageLimit = DefaultListingDetailPageLimit
	}
	return o
}

// Summary reports what a run saw and wrote.
type Summary struct {
	RunID        string            `json:"run_id"`
	StartedAt    time.Time         `json:"started_at"`
	Duration     string            `json:"duration"`
	Dry          bool              `json:"dry"`
	RawFeed      int               `json:"raw_feed"`
	RawListing   int               `json:"raw_listing"`
	Eligible     int               `json:"eligible"`
	Unique       int               `json:"unique"`
	Written      int               `json:"written"`
	Sample       []retreat.Retreat `json:"sample,omitempty"`
	SourceErrors map[string]string `json:"source_errors,omitempty"`
}

// Pipeline wires the adapters to a store. Either adapter may be nil when
// it is not configured; the store may be nil for dry runs.
type Pipeline struct {
	Feed    Source
	Listing Source
	Store   Store
}

// New creates a Pipeline.
func New(feed, listing Source, store Store) *Pipeline {
	return &Pipeline{Feed: feed, Listing: listing, Store: store}
}

// Run executes one ingestion. A failing adapter is recorded in
// Summary.SourceErrors and the run continues with the others. A failing
// upsert stops the run; batches already written stay written and the partial
// summary is returned together with the error.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	opts = opts.withDefaults()
	if !opts.Dry && p.Store == nil {
		return nil, ErrNoStore
	}

	start := time.Now()
	sum := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
		Dry:       opts.Dry,
	}
	log := logger.Default().With(logger.Fields{"run_id": sum.RunID})
	log.Info("Starting ingest run", logger.Fields{
		"dry":     opts.Dry,
		"sources": string(opts.Sources),
	})

	candidates := make([]retreat.Retreat, 0)
	if opts.Sources.includes(SourcesFeed) {
		recs := p.collect(ctx, log, sum, p.Feed, opts.PerFeedItemLimit)
		sum.RawFeed = len(recs)
		candidates = append(candidates, recs...)
	}
	if opts.Sources.includes(SourcesListing) {
		recs := p.collect(ctx, log, sum, p.Listing, opts.ListingDetailPageLimit)
		sum.RawListing = len(recs)
		candidates = append(candidates, recs...)
	}
	metrics.Records.WithLabelValues(metrics.StageRaw).Add(float64(len(candidates)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	eligible := Eligible(candidates)
	sum.Eligible = len(eligible)
	metrics.Records.WithLabelValues(metrics.StageEligible).Add(float64(len(eligible)))

	unique := Dedupe(eligible)
	sum.Unique = len(unique)
	metrics.Records.WithLabelValues(metrics.StageUnique).Add(float64(len(unique)))

	if opts.Dry {
		n := len(unique)
		if n > SampleSize {
			n = SampleSize
		}
		sum.Sample = unique[:n]
		p.finish(log, sum, start)
		return sum, nil
	}

	for i := 0; i < len(unique); i += BatchSize {
		j := i + BatchSize
		if j > len(unique) {
			j = len(unique)
		}
		n, err := p.Store.Upsert(ctx, unique[i:j], ConflictKey)
		if err != nil {
			p.finish(log, sum, start)
			log.Error("Upsert failed", logger.Fields{
				"batch":   i / BatchSize,
				"records": j - i,
				"written": sum.Written,
			}, err)
			return sum, fmt.Errorf("upserting batch %d: %w", i/BatchSize, err)
		}
		sum.Written += n
	}
	metrics.Records.WithLabelValues(metrics.StageWritten).Add(float64(sum.Written))

	p.finish(log, sum, start)
	return sum, nil
}

// collect runs one adapter, recording a failure instead of returning it.
func (p *Pipeline) collect(ctx context.Context, log *logger.Logger, sum *Summary, src Source, limit int) []retreat.Retreat {
	if src == nil {
		return nil
	}

	recs, err := src.Fetch(ctx, limit)
	if err != nil {
		if sum.SourceErrors == nil {
			sum.SourceErrors = make(map[string]string)
		}
		sum.SourceErrors[src.Name()] = err.Error()
		metrics.SourceErrors.WithLabelValues(src.Name()).Inc()
		log.Error("Source failed", logger.Fields{"source": src.Name()}, err)
		return nil
	}

	log.Info("Fetched source", logger.Fields{
		"source":  src.Name(),
		"records": len(recs),
	})
	return recs
}

func (p *Pipeline) finish(log *logger.Logger, sum *Summary, start time.Time) {
	elapsed := time.Since(start)
	sum.Duration = elapsed.Round(time.Millisecond).String()
	metrics.RunDuration.Observe(elapsed.Seconds())
	metrics.LastRunTimestamp.SetToCurrentTime()

	log.Info("Finished ingest run", logger.Fields{
		"raw_feed":    sum.RawFeed,
		"raw_listing": sum.RawListing,
		"eligible":    sum.Eligible,
		"unique":      sum.Unique,
		"written":     sum.Written,
		"duration":    sum.Duration,
	})
}

// Eligible keeps the records with a title and a start date, each passed
// through retreat.Prepare. Order is preserved.
func Eligible(records []retreat.Retreat) []retreat.Retreat {
	out := make([]retreat.Retreat, 0, len(records))
	for _, r := range records {
		if !r.Eligible() {
			continue
		}
		out = append(out, retreat.Prepare(r))
	}
	return out
}

// Dedupe keeps the first record for each uniqueness key.
func Dedupe(records []retreat.Retreat) []retreat.Retreat {
	seen := make(map[string]bool)
	unique := make([]retreat.Retreat, 0, len(records))
	for _, r := range records {
		key := r.UniquenessKey
		if key == "" {
			key = retreat.UniquenessKey(r.Title, r.StartDate, r.Organizer, r.Location)
		}
		if !seen[key] {
			seen[key] = true
			unique = append(unique, r)
		}
	}
	return unique
}
