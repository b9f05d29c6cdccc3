package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/pfrederiksen/retreat-events/internal/metrics"
	"github.com/pfrederiksen/retreat-events/internal/textnorm"
)

const (
	UserAgent = "retreat-events/1.0 (+github.com/pfrederiksen/retreat-events)"
	Timeout   = 15 * time.Second

	// maxBodyBytes bounds how much of a single response is read.
	maxBodyBytes = 10 << 20

	retryWait    = 500 * time.Millisecond
	retryMaxWait = 30 * time.Second
)

// StatusError is returned when a page answers with a non-200 status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.Code, e.URL)
}

// Fetcher performs polite GET requests: a fixed timeout, an identifying
// User-Agent and an optional shared rate limit.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	retries   int
	retryWait time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the default HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithRateLimit caps requests per second across every page the fetcher loads.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(f *Fetcher) {
		if rps <= 0 {
			f.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithRetries retries a page up to n more times after a network error, a
// 429 or a 5xx answer, backing off exponentially between attempts.
func WithRetries(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.retries = n
		}
	}
}

// NewFetcher creates a Fetcher with a 15s timeout, no rate limit and no retries.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: Timeout,
		},
		userAgent: UserAgent,
		retryWait: retryWait,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the body of pageURL. kind labels the request in metrics.
func (f *Fetcher) Fetch(ctx context.Context, pageURL, kind string) ([]byte, error) {
	start := time.Now()
	body, err := f.fetchWithRetry(ctx, pageURL)
	metrics.FetchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.PagesFetched.WithLabelValues(kind, outcome).Inc()
	return body, err
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, pageURL string) ([]byte, error) {
	if f.retries == 0 {
		return f.fetch(ctx, pageURL)
	}

	var body []byte
	op := func() error {
		var err error
		body, err = f.fetch(ctx, pageURL)
		if err != nil && !retryable(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.retryWait
	eb.MaxElapsedTime = retryMaxWait
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(f.retries)), ctx)

	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return body, nil
}

// retryable reports whether another attempt could succeed.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= 500
	}
	return true
}

func (f *Fetcher) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: pageURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", pageURL, err)
	}
	return body, nil
}

// Document fetches pageURL and parses it as HTML.
func (f *Fetcher) Document(ctx context.Context, pageURL, kind string) (*goquery.Document, error) {
	body, err := f.Fetch(ctx, pageURL, kind)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}

// CollectLinks returns the absolute http(s) targets of every a[href] in doc
// whose path matches pattern. Fragments are stripped, duplicates dropped and
// document order kept.
func CollectLinks(doc *goquery.Document, base *url.URL, pattern *regexp.Regexp) []string {
	seen := make(map[string]bool)
	links := make([]string, 0)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		u, ok := resolve(base, href)
		if !ok || !pattern.MatchString(u.Path) {
			return
		}
		abs := u.String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})

	return links
}

func resolve(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, true
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"svg":      true,
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"fieldset": true, "figcaption": true, "figure": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "header": true, "hr": true, "li": true, "main": true,
	"nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "td": true, "th": true, "tr": true, "ul": true,
}

// VisibleText returns the rendered text of sel. Block elements start new
// lines so "Label: value" rows stay on their own line; whitespace inside a
// line is collapsed and blank lines are dropped.
func VisibleText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(&b, n)
	}

	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = textnorm.CollapseSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skippedElements[n.Data] {
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}
