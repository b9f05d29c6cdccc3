// Package scraper fetches retreat announcements from the web.
//
// Two source adapters share one Fetcher (fixed timeout, identifying
// User-Agent, optional rate limit). FeedAdapter reads RSS and Atom feeds.
// ListingAdapter crawls a category page, the listing pages it links to and
// finally the detail pages, reading "Label: value" lines from each detail
// page's visible text.
package scraper
