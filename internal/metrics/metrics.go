// Package metrics holds the prometheus collectors shared by the crawler, the
// ingest pipeline and the storage drivers. They register on the default
// registry and are exposed by the server's /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Crawl metrics
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retreat_events_pages_fetched_total",
			Help: "Total number of pages fetched, by page kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retreat_events_fetch_duration_seconds",
			Help:    "Duration of page fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Pipeline metrics
	Records = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retreat_events_records_total",
			Help: "Candidate records seen at each pipeline stage",
		},
		[]string{"stage"},
	)

	SourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retreat_events_source_errors_total",
			Help: "Total number of source adapter failures",
		},
		[]string{"source"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retreat_events_run_duration_seconds",
			Help:    "Duration of complete ingest runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "retreat_events_last_run_timestamp_seconds",
			Help: "Unix time of the last finished ingest run",
		},
	)

	// Storage metrics
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retreat_events_rows_written_total",
			Help: "Rows written by the storage driver",
		},
		[]string{"driver"},
	)

	StorageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retreat_events_storage_duration_seconds",
			Help:    "Duration of batch upserts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver"},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retreat_events_storage_errors_total",
			Help: "Total number of failed batch upserts",
		},
		[]string{"driver"},
	)
)

// Pipeline stage labels for Records.
const (
	StageRaw      = "raw"
	StageEligible = "eligible"
	StageUnique   = "unique"
	StageWritten  = "written"
)

// Page kinds for PagesFetched and FetchDuration.
const (
	KindFeed     = "feed"
	KindCategory = "category"
	KindListing  = "listing"
	KindDetail   = "detail"
)

// Fetch outcomes for PagesFetched.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)
