package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pfrederiksen/retreat-events/internal/config"
	"github.com/pfrederiksen/retreat-events/internal/ingest"
	"github.com/pfrederiksen/retreat-events/internal/logger"
	"github.com/pfrederiksen/retreat-events/internal/scraper"
	"github.com/pfrederiksen/retreat-events/internal/storage"
)

// setupLogging installs the default logger described by cfg. verbose forces
// debug level.
func setupLogging(cfg *config.Config, verbose bool, w io.Writer) {
	level := logger.ParseLevel(cfg.Logging.Level)
	if verbose {
		level = logger.LevelDebug
	}
	logger.SetDefault(logger.NewWithFormat(level, logger.Format(cfg.Logging.Format), w))
}

// buildPipeline assembles the adapters and, when configured and needed, the
// store. The returned close function releases the store and is never nil.
func buildPipeline(ctx context.Context, cfg *config.Config, needStore bool) (*ingest.Pipeline, func() error, error) {
	gaz, err := cfg.GazetteerTable()
	if err != nil {
		return nil, nil, fmt.Errorf("loading gazetteer: %w", err)
	}
	ext := scraper.Extractor{Location: cfg.Location(), Gazetteer: gaz}

	fetcher := scraper.NewFetcher(
		scraper.WithClient(&http.Client{Timeout: cfg.HTTP.Timeout}),
		scraper.WithRateLimit(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst),
		scraper.WithUserAgent(cfg.HTTP.UserAgent),
		scraper.WithRetries(cfg.HTTP.Retries),
	)

	p := ingest.New(nil, nil, nil)
	if len(cfg.Feeds.URLs) > 0 {
		p.Feed = scraper.NewFeedAdapter(fetcher, cfg.Feeds.URLs, ext)
	}
	if cfg.Listing.CategoryURL != "" {
		listing, err := scraper.NewListingAdapter(fetcher, scraper.ListingConfig{
			CategoryURL:    cfg.Listing.CategoryURL,
			ListingPattern: cfg.Listing.ListingPattern,
			DetailPattern:  cfg.Listing.DetailPattern,
			Concurrency:    cfg.Listing.Concurrency,
		}, ext)
		if err != nil {
			return nil, nil, fmt.Errorf("configuring listing site: %w", err)
		}
		p.Listing = listing
	}
	if p.Feed == nil && p.Listing == nil {
		logger.Warn("No sources configured", logger.Fields{
			"hint": "set feeds.urls or listing.category_url",
		})
	}

	closeFn := func() error { return nil }
	if needStore && cfg.HasStore() {
		store, err := storage.Open(ctx, cfg.StoreConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Driver, err)
		}
		p.Store = store
		closeFn = store.Close
	}

	return p, closeFn, nil
}

// defaultOptions returns the run limits configured in cfg.
func defaultOptions(cfg *config.Config) ingest.Options {
	return ingest.Options{
		Sources:                ingest.SourcesAll,
		PerFeedItemLimit:       cfg.Ingest.PerFeedItemLimit,
		ListingDetailPageLimit: cfg.Ingest.ListingDetailPageLimit,
	}
}
