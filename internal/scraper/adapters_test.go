package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/retreat-events/internal/retreat"
)

func budapest(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Budapest")
	require.NoError(t, err)
	return loc
}

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Lelkigyakorlatok</title>
  <link>https://example.hu</link>
  <description>Programok</description>
  <item>
    <title>Adventi csendes hétvége</title>
    <link>https://example.hu/advent</link>
    <guid>urn:advent</guid>
    <category>Fiataloknak</category>
    <description><![CDATA[<p>Időpont: 2025. november 28. (vacsorától) – november 30. (ebédig)</p><p>Helyszín: Zebegény, Szent István Ház</p><p>Jelentkezés: <a href="https://forms.gle/xyz">űrlap</a></p>]]></description>
  </item>
  <item>
    <title>Hírlevél</title>
    <link>https://example.hu/hir</link>
    <description>Nincs benne dátum.</description>
  </item>
  <item>
    <title>Csendnap Máriabesnyőn 2026. február 7.</title>
    <link>https://example.hu/csendnap</link>
    <description>Egynapos csend.</description>
  </item>
</channel>
</rss>`

func TestFeedAdapter_Fetch(t *testing.T) {
	loc := budapest(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	adapter := NewFeedAdapter(NewFetcher(), []string{server.URL}, Extractor{Location: loc})
	assert.Equal(t, "feed", adapter.Name())

	got, err := adapter.Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 2, "the item without a date must be discarded")

	advent := got[0]
	assert.Equal(t, retreat.SourceFeed, advent.Source)
	assert.Equal(t, "urn:advent", advent.ExternalID)
	assert.Equal(t, "Adventi csendes hétvége", advent.Title)
	assert.Equal(t, time.Date(2025, time.November, 28, 18, 0, 0, 0, loc), *advent.StartDate)
	require.NotNil(t, advent.EndDate)
	assert.Equal(t, time.Date(2025, time.November, 30, 13, 0, 0, 0, loc), *advent.EndDate)
	assert.Equal(t, "Zebegény, Szent István Ház", advent.Location)
	assert.Equal(t, "https://forms.gle/xyz", advent.RegistrationLink)
	assert.Equal(t, "fiatalok", advent.TargetGroup)
	assert.Equal(t, "https://example.hu/advent", advent.SourceURL)

	csendnap := got[1]
	assert.Equal(t, "link:https://example.hu/csendnap", csendnap.ExternalID)
	assert.Equal(t, time.Date(2026, time.February, 7, 0, 0, 0, 0, loc), *csendnap.StartDate)
	assert.Nil(t, csendnap.EndDate)
	assert.Equal(t, "Máriabesnyő, Lelkigyakorlatos Ház", csendnap.Location)
	assert.Equal(t, "https://example.hu/csendnap", csendnap.RegistrationLink)
}

func TestFeedAdapter_PerFeedLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	adapter := NewFeedAdapter(NewFetcher(), []string{server.URL, server.URL}, Extractor{Location: budapest(t)})

	got, err := adapter.Fetch(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, got, 2, "one item from each of the two feeds")
}

func TestFeedAdapter_FailingFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := NewFeedAdapter(NewFetcher(), []string{server.URL}, Extractor{})

	_, err := adapter.Fetch(context.Background(), 0)
	var se *StatusError
	require.True(t, errors.As(err, &se), "error = %v", err)
	assert.Equal(t, http.StatusBadGateway, se.Code)
}

// newListingSite serves a category page, two listing pages and five detail
// links: three good pages, one that never answers and one missing page.
func newListingSite(t *testing.T, listingStatus int) *httptest.Server {
	t.Helper()

	pages := map[string]string{
		"/kategoria/lelkigyakorlat": `<html><body>
			<a href="/megoldasok/csendnapok">Csendnapok</a>
			<a href="/megoldasok/csendnapok#lista">Csendnapok</a>
			<a href="/megoldasok/hetvegek">Hétvégék</a>
			<a href="/rolunk">Rólunk</a>
		</body></html>`,
		"/megoldasok/csendnapok": `<html><body>
			<a href="/program/1">Első</a>
			<a href="/program/2">Második</a>
		</body></html>`,
		"/megoldasok/hetvegek": `<html><body>
			<a href="/program/2">Második</a>
			<a href="/program/3">Harmadik</a>
			<a href="/program/lassu">Lassú</a>
			<a href="/program/hianyzo">Hiányzó</a>
		</body></html>`,
		"/program/1": `<html><head><meta name="description" content="Öt nap csendben."></head><body>
			<h1>Ignáci csendnap</h1>
			<p>Időpont: 2025. október 6. (hétfő, vacsorától) – október 8. (szerda, ebédig)</p>
			<p><strong>Helyszín:</strong> Pannonhalmi Főapátság</p>
			<p>Szervező: Jezsuita Rend</p>
			<p>Jelentkezési határidő: szeptember 30.</p>
			<p>Kapcsolat: info@example.hu, +36 30 123 4567</p>
			<p><a href="https://forms.gle/abc">Jelentkezés</a></p>
		</body></html>`,
		"/program/2": `<html><body>
			<h2>Kármelita hétvége</h2>
			<p>2025. november 14 – 16.</p>
			<p>Programszervező: Kármelita Nővérek</p>
			<p>A ház Máriabesnyőn található.</p>
			<a href="/rolunk">Rólunk</a>
		</body></html>`,
		"/program/3": `<html><body>
			<h1>Házaspárok hétvégéje</h1>
			<p>Kezdés: 2025. december 5.</p>
		</body></html>`,
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/program/lassu":
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		case r.URL.Path == "/megoldasok/hetvegek" && listingStatus != http.StatusOK:
			w.WriteHeader(listingStatus)
			return
		}
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(page))
	}))
}

func newTestListingAdapter(t *testing.T, server *httptest.Server) *ListingAdapter {
	t.Helper()
	fetcher := NewFetcher(WithClient(&http.Client{Timeout: 300 * time.Millisecond}))
	adapter, err := NewListingAdapter(fetcher, ListingConfig{
		CategoryURL:    server.URL + "/kategoria/lelkigyakorlat",
		ListingPattern: `^/megoldasok/[^/]+$`,
		DetailPattern:  `^/program/[^/]+$`,
		Concurrency:    3,
	}, Extractor{Location: budapest(t)})
	require.NoError(t, err)
	return adapter
}

func TestListingAdapter_Fetch(t *testing.T) {
	loc := budapest(t)
	server := newListingSite(t, http.StatusOK)
	defer server.Close()

	adapter := newTestListingAdapter(t, server)
	assert.Equal(t, "listing", adapter.Name())

	got, err := adapter.Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 3, "the slow and the missing page are skipped")

	first := got[0]
	assert.Equal(t, retreat.SourceListing, first.Source)
	assert.Equal(t, "Ignáci csendnap", first.Title)
	assert.Equal(t, server.URL+"/program/1", first.SourceURL)
	assert.Equal(t, time.Date(2025, time.October, 6, 18, 0, 0, 0, loc), *first.StartDate)
	assert.Equal(t, time.Date(2025, time.October, 8, 13, 0, 0, 0, loc), *first.EndDate)
	assert.Equal(t, "Pannonhalmi Főapátság", first.Location)
	assert.Equal(t, "Jezsuita Rend", first.Organizer)
	assert.Equal(t, "szeptember 30.", first.RegistrationDeadline)
	assert.Equal(t, "info@example.hu, +36 30 123 4567", first.Contact)
	assert.Equal(t, "https://forms.gle/abc", first.RegistrationLink)
	assert.Equal(t, "Öt nap csendben.", first.Description)
	assert.Equal(t, retreat.ListingExternalID("Ignáci csendnap", first.StartDate, server.URL+"/program/1"), first.ExternalID)

	second := got[1]
	assert.Equal(t, "Kármelita hétvége", second.Title)
	assert.Equal(t, "Kármelita Nővérek", second.Organizer)
	assert.Equal(t, "Máriabesnyő, Lelkigyakorlatos Ház", second.Location)
	assert.Equal(t, server.URL+"/program/2", second.RegistrationLink)
	assert.Equal(t, time.Date(2025, time.November, 16, 23, 59, 0, 0, loc), *second.EndDate)

	third := got[2]
	assert.Equal(t, "Házaspárok hétvégéje", third.Title)
	assert.Equal(t, "házaspárok", third.TargetGroup)
	assert.Nil(t, third.EndDate)
}

func TestListingAdapter_DetailLimit(t *testing.T) {
	server := newListingSite(t, http.StatusOK)
	defer server.Close()

	got, err := newTestListingAdapter(t, server).Fetch(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Ignáci csendnap", got[0].Title)
	assert.Equal(t, "Kármelita hétvége", got[1].Title)
}

func TestListingAdapter_DetailLinks(t *testing.T) {
	server := newListingSite(t, http.StatusOK)
	defer server.Close()

	links, err := newTestListingAdapter(t, server).DetailLinks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		server.URL + "/program/1",
		server.URL + "/program/2",
		server.URL + "/program/3",
		server.URL + "/program/lassu",
		server.URL + "/program/hianyzo",
	}, links)
}

func TestListingAdapter_FailingListingPage(t *testing.T) {
	server := newListingSite(t, http.StatusInternalServerError)
	defer server.Close()

	_, err := newTestListingAdapter(t, server).Fetch(context.Background(), 0)
	var se *StatusError
	require.True(t, errors.As(err, &se), "error = %v", err)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
}

func TestNewListingAdapter_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  ListingConfig
	}{
		{"no host", ListingConfig{CategoryURL: "/relative", ListingPattern: ".", DetailPattern: "."}},
		{"bad listing pattern", ListingConfig{CategoryURL: "https://x.hu", ListingPattern: "(", DetailPattern: "."}},
		{"bad detail pattern", ListingConfig{CategoryURL: "https://x.hu", ListingPattern: ".", DetailPattern: "["}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewListingAdapter(NewFetcher(), tt.cfg, Extractor{})
			assert.Error(t, err)
		})
	}
}
