package scraper

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/pfrederiksen/retreat-events/internal/extract"
	"github.com/pfrederiksen/retreat-events/internal/logger"
	"github.com/pfrederiksen/retreat-events/internal/metrics"
	"github.com/pfrederiksen/retreat-events/internal/retreat"
	"github.com/pfrederiksen/retreat-events/internal/textnorm"
)

// FeedAdapter turns RSS and Atom items into retreat candidates.
type FeedAdapter struct {
	fetcher *Fetcher
	urls    []string
	ext     Extractor
	parser  *gofeed.Parser
}

// NewFeedAdapter creates an adapter over the given feed URLs.
func NewFeedAdapter(f *Fetcher, urls []string, ext Extractor) *FeedAdapter {
	return &FeedAdapter{
		fetcher: f,
		urls:    urls,
		ext:     ext,
		parser:  gofeed.NewParser(),
	}
}

// Name implements the ingest source contract.
func (a *FeedAdapter) Name() string {
	return "feed"
}

// Fetch reads every configured feed. limit caps the items taken from each
// feed; zero or less means no cap. Items without a resolvable start date are
// discarded. A feed that cannot be fetched or parsed fails the whole call.
func (a *FeedAdapter) Fetch(ctx context.Context, limit int) ([]retreat.Retreat, error) {
	out := make([]retreat.Retreat, 0)

	for _, feedURL := range a.urls {
		body, err := a.fetcher.Fetch(ctx, feedURL, metrics.KindFeed)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", feedURL, err)
		}
		feed, err := a.parser.Parse(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
		}

		items := feed.Items
		if limit > 0 && len(items) > limit {
			items = items[:limit]
		}

		kept := 0
		for _, item := range items {
			r, ok := a.candidate(feedURL, item)
			if !ok {
				continue
			}
			out = append(out, r)
			kept++
		}

		logger.Debug("Parsed feed", logger.Fields{
			"url":   feedURL,
			"items": len(items),
			"kept":  kept,
		})
	}

	return out, nil
}

// candidate builds a record from one item. ok is false when no start date
// could be found.
func (a *FeedAdapter) candidate(feedURL string, item *gofeed.Item) (retreat.Retreat, bool) {
	raw := item.Content
	if strings.TrimSpace(raw) == "" {
		raw = item.Description
	}

	title := textnorm.StripMarkup(item.Title)
	description := textnorm.StripMarkup(raw)
	text := joinText(title, fragmentText(raw))

	rng := extract.ExtractDateRange(text, a.ext.location())
	if rng.Start == nil {
		return retreat.Retreat{}, false
	}

	link := extract.FirstLink(raw)
	if link == "" {
		link = strings.TrimSpace(item.Link)
	}

	sourceURL := strings.TrimSpace(item.Link)
	if sourceURL == "" {
		sourceURL = feedURL
	}

	return retreat.Retreat{
		Source:               retreat.SourceFeed,
		SourceURL:            sourceURL,
		ExternalID:           retreat.FeedExternalID(item.GUID, item.Link, title),
		Title:                title,
		Description:          description,
		StartDate:            rng.Start,
		EndDate:              rng.End,
		Location:             a.ext.place(text),
		Contact:              extract.Contact(text),
		RegistrationLink:     link,
		Organizer:            extract.OrganizerLabel.Find(text),
		RegistrationDeadline: extract.DeadlineLabel.Find(text),
		TargetGroup:          extract.DetectTargetGroup(item.Categories, joinText(title, description)),
	}, true
}

// fragmentText renders an HTML fragment line by line, falling back to plain
// markup stripping when the fragment cannot be parsed.
func fragmentText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return textnorm.StripMarkup(raw)
	}
	return VisibleText(doc.Selection)
}
