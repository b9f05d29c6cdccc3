package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/pfrederiksen/retreat-events/internal/extract"
	"github.com/pfrederiksen/retreat-events/internal/logger"
	"github.com/pfrederiksen/retreat-events/internal/metrics"
	"github.com/pfrederiksen/retreat-events/internal/retreat"
	"github.com/pfrederiksen/retreat-events/internal/textnorm"
)

const (
	DefaultConcurrency = 5
	MaxConcurrency     = 10
)

// ListingConfig describes the site crawled by ListingAdapter. The patterns
// are matched against URL paths.
type ListingConfig struct {
	CategoryURL    string
	ListingPattern string
	DetailPattern  string
	Concurrency    int
}

// ListingAdapter crawls a category page, its listing pages and finally the
// detail pages, scraping one candidate from each detail page.
type ListingAdapter struct {
	fetcher     *Fetcher
	category    *url.URL
	listing     *regexp.Regexp
	detail      *regexp.Regexp
	concurrency int
	ext         Extractor
}

// NewListingAdapter validates cfg and creates the adapter.
func NewListingAdapter(f *Fetcher, cfg ListingConfig, ext Extractor) (*ListingAdapter, error) {
	category, err := url.Parse(strings.TrimSpace(cfg.CategoryURL))
	if err != nil || category.Host == "" {
		return nil, fmt.Errorf("invalid category URL %q", cfg.CategoryURL)
	}
	listing, err := regexp.Compile(cfg.ListingPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling listing pattern: %w", err)
	}
	detail, err := regexp.Compile(cfg.DetailPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling detail pattern: %w", err)
	}

	concurrency := cfg.Concurrency
	switch {
	case concurrency <= 0:
		concurrency = DefaultConcurrency
	case concurrency > MaxConcurrency:
		concurrency = MaxConcurrency
	}

	return &ListingAdapter{
		fetcher:     f,
		category:    category,
		listing:     listing,
		detail:      detail,
		concurrency: concurrency,
		ext:         ext,
	}, nil
}

// Name implements the ingest source contract.
func (a *ListingAdapter) Name() string {
	return "listing"
}

// Fetch crawls the site. limit caps the number of detail pages; zero or
// less means no cap. The category page and every listing page are required;
// a failing detail page is logged and skipped. Records come back in detail
// link order regardless of which page finished first.
func (a *ListingAdapter) Fetch(ctx context.Context, limit int) ([]retreat.Retreat, error) {
	links, err := a.DetailLinks(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}

	results := make([]*retreat.Retreat, len(links))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, link := range links {
		g.Go(func() error {
			r, err := a.scrapeDetail(gctx, link)
			if err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return nil
				}
				logger.Warn("Skipping detail page", logger.Fields{
					"url":   link,
					"error": err.Error(),
				})
				return nil
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]retreat.Retreat, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}

	logger.Info("Crawled listing site", logger.Fields{
		"category": a.category.String(),
		"details":  len(links),
		"scraped":  len(out),
		"skipped":  len(links) - len(out),
	})

	return out, nil
}

// DetailLinks runs the first two crawl stages and returns the detail page
// URLs, deduplicated across listing pages in discovery order.
func (a *ListingAdapter) DetailLinks(ctx context.Context) ([]string, error) {
	doc, err := a.fetcher.Document(ctx, a.category.String(), metrics.KindCategory)
	if err != nil {
		return nil, fmt.Errorf("category page: %w", err)
	}
	listings := CollectLinks(doc, a.category, a.listing)

	seen := make(map[string]bool)
	details := make([]string, 0)
	for _, listingURL := range listings {
		base, err := url.Parse(listingURL)
		if err != nil {
			continue
		}
		page, err := a.fetcher.Document(ctx, listingURL, metrics.KindListing)
		if err != nil {
			return nil, fmt.Errorf("listing page: %w", err)
		}
		for _, d := range CollectLinks(page, base, a.detail) {
			if !seen[d] {
				seen[d] = true
				details = append(details, d)
			}
		}
	}

	logger.Debug("Collected detail links", logger.Fields{
		"listings": len(listings),
		"details":  len(details),
	})

	return details, nil
}

func (a *ListingAdapter) scrapeDetail(ctx context.Context, pageURL string) (*retreat.Retreat, error) {
	doc, err := a.fetcher.Document(ctx, pageURL, metrics.KindDetail)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page URL: %w", err)
	}
	r := a.parseDetail(doc, base)
	return &r, nil
}

// parseDetail scrapes one detail page.
func (a *ListingAdapter) parseDetail(doc *goquery.Document, pageURL *url.URL) retreat.Retreat {
	title := textnorm.CollapseSpace(doc.Find("h1, h2, h3, h4, h5, h6").First().Text())
	text := VisibleText(doc.Find("body"))
	description := metaDescription(doc)
	rng := extract.ExtractDateRange(text, a.ext.location())
	link := pageURL.String()

	return retreat.Retreat{
		Source:               retreat.SourceListing,
		SourceURL:            link,
		ExternalID:           retreat.ListingExternalID(title, rng.Start, link),
		Title:                title,
		Description:          description,
		StartDate:            rng.Start,
		EndDate:              rng.End,
		Location:             a.ext.place(text),
		Contact:              extract.Contact(text),
		RegistrationLink:     registrationLink(doc, pageURL),
		Organizer:            extract.OrganizerLabel.Find(text),
		RegistrationDeadline: extract.DeadlineLabel.Find(text),
		TargetGroup:          extract.DetectTargetGroup(nil, joinText(title, description)),
	}
}

// registrationLink returns the first anchor whose target or text looks like
// a sign-up form, else the page itself.
func registrationLink(doc *goquery.Document, pageURL *url.URL) string {
	found := ""
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		u, ok := resolve(pageURL, href)
		if !ok {
			return true
		}
		if extract.RegistrationIntent.MatchString(u.String()) || extract.RegistrationIntent.MatchString(a.Text()) {
			found = u.String()
			return false
		}
		return true
	})
	if found != "" {
		return found
	}
	return pageURL.String()
}

func metaDescription(doc *goquery.Document) string {
	for _, sel := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if content = textnorm.StripMarkup(content); content != "" {
				return content
			}
		}
	}
	return ""
}
