package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/retreat-events/internal/ingest"
	"github.com/pfrederiksen/retreat-events/internal/retreat"
)

const cliFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Lelkigyakorlatok</title>
  <link>https://example.hu</link>
  <description>Programok</description>
  <item>
    <title>Csendnap Máriabesnyőn 2026. február 7.</title>
    <link>https://example.hu/csendnap</link>
    <guid>urn:csendnap</guid>
    <description>Egynapos csend.</description>
  </item>
  <item>
    <title>Csendnap Máriabesnyőn 2026. február 7.</title>
    <link>https://example.hu/csendnap-ujra</link>
    <guid>urn:csendnap-ujra</guid>
    <description>Egynapos csend.</description>
  </item>
</channel>
</rss>`

func feedServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(cliFeed))
	}))
	t.Cleanup(server.Close)
	return server
}

// runCLI executes the root command in a scratch directory and returns stdout.
func runCLI(t *testing.T, config string, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "retreat-events.yaml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0644))

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--config", path))

	err := cmd.Execute()
	return stdout.String(), err
}

func feedConfig(url string) string {
	return "http:\n  rate_limit: 0\nfeeds:\n  urls:\n    - " + url + "\n"
}

func TestRun_DryJSON(t *testing.T) {
	server := feedServer(t, http.StatusOK)

	out, err := runCLI(t, feedConfig(server.URL), "run", "--dry", "--format", "json")
	require.NoError(t, err)

	var sum ingest.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.True(t, sum.Dry)
	assert.Equal(t, 2, sum.RawFeed)
	assert.Equal(t, 2, sum.Eligible)
	assert.Equal(t, 1, sum.Unique)
	assert.Equal(t, 0, sum.Written)
	require.Len(t, sum.Sample, 1)
	assert.Equal(t, "urn:csendnap", sum.Sample[0].ExternalID)
}

func TestRun_DryICS(t *testing.T) {
	server := feedServer(t, http.StatusOK)

	out, err := runCLI(t, feedConfig(server.URL), "run", "--dry", "--format", "ics")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR\r\n"))
	assert.Equal(t, 1, strings.Count(out, "BEGIN:VEVENT"))
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20260207")
}

func TestRun_WritesToSQLite(t *testing.T) {
	server := feedServer(t, http.StatusOK)
	db := filepath.Join(t.TempDir(), "retreats.db")
	config := feedConfig(server.URL) + "storage:\n  driver: sqlite\n  path: " + db + "\n"

	out, err := runCLI(t, config, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "Written:  1")

	// a second run updates the same row
	out, err = runCLI(t, config, "run", "--format", "json")
	require.NoError(t, err)
	var sum ingest.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 1, sum.Written)
}

func TestRun_SQLiteDefaultPath(t *testing.T) {
	server := feedServer(t, http.StatusOK)
	home := t.TempDir()
	t.Setenv("HOME", home)

	out, err := runCLI(t, feedConfig(server.URL)+"storage:\n  driver: sqlite\n", "run")
	require.NoError(t, err)
	assert.Contains(t, out, "Written:  1")
	assert.FileExists(t, filepath.Join(home, ".local", "share", "retreat-events", "retreats.db"))
}

func TestRun_NoStore(t *testing.T) {
	server := feedServer(t, http.StatusOK)

	_, err := runCLI(t, feedConfig(server.URL), "run")
	assert.ErrorIs(t, err, ingest.ErrNoStore)
}

func TestRun_DrySourceFailureSucceeds(t *testing.T) {
	server := feedServer(t, http.StatusInternalServerError)

	out, err := runCLI(t, feedConfig(server.URL), "run", "--dry")
	require.NoError(t, err)
	assert.Contains(t, out, "Source errors:")
	assert.Contains(t, out, "feed:")
}

func TestRun_SourceFailure(t *testing.T) {
	server := feedServer(t, http.StatusInternalServerError)
	db := filepath.Join(t.TempDir(), "retreats.db")
	config := feedConfig(server.URL) + "storage:\n  driver: sqlite\n  path: " + db + "\n"

	out, err := runCLI(t, config, "run")
	assert.ErrorIs(t, err, ErrSourceFailed)
	assert.Contains(t, out, "Source errors:")
	assert.Contains(t, out, "Written:  0")
}

func TestRun_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad format", []string{"run", "--dry", "--format", "xml"}},
		{"ics needs dry", []string{"run", "--format", "ics"}},
		{"bad sort", []string{"run", "--dry", "--sort", "price"}},
		{"bad source", []string{"run", "--dry", "--source", "twitter"}},
		{"negative limit", []string{"run", "--dry", "--feed-limit", "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, "", tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestServe_RequiresToken(t *testing.T) {
	_, err := runCLI(t, "", "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.token")
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestSortRetreats(t *testing.T) {
	records := func() []retreat.Retreat {
		return []retreat.Retreat{
			{Title: "Csendnap", StartDate: day(2026, time.March, 1), Location: "Zebegény"},
			{Title: "advent", StartDate: day(2025, time.November, 28)},
			{Title: "Böjti hétvége", StartDate: day(2026, time.March, 1), Location: "Máriabesnyő"},
			{Title: "Dátum nélkül"},
		}
	}
	titles := func(rs []retreat.Retreat) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.Title
		}
		return out
	}

	tests := []struct {
		order SortOrder
		want  []string
	}{
		{SortByDate, []string{"advent", "Böjti hétvége", "Csendnap", "Dátum nélkül"}},
		{SortByTitle, []string{"advent", "Böjti hétvége", "Csendnap", "Dátum nélkül"}},
		{SortByLocation, []string{"Böjti hétvége", "Csendnap", "advent", "Dátum nélkül"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			rs := records()
			sortRetreats(rs, tt.order)
			assert.Equal(t, tt.want, titles(rs))
		})
	}
}

func TestWriteText(t *testing.T) {
	sum := &ingest.Summary{
		RunID:      "run-1",
		Duration:   "1.2s",
		Dry:        true,
		RawFeed:    3,
		RawListing: 4,
		Eligible:   5,
		Unique:     2,
		Sample: []retreat.Retreat{{
			Source:        retreat.SourceFeed,
			Title:         "Ignáci csendnap",
			StartDate:     day(2025, time.October, 6),
			EndDate:       day(2025, time.October, 8),
			Location:      "Pannonhalma",
			Organizer:     "Jezsuita Rend",
			TargetGroup:   retreat.DefaultTargetGroup,
			UniquenessKey: "k",
		}},
		SourceErrors: map[string]string{"listing": "status 500"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteOutput(&buf, sum, FormatText, true))
	out := buf.String()

	assert.Contains(t, out, "Ingest dry run run-1 (1.2s)")
	assert.Contains(t, out, "Raw:      3 feed, 4 listing")
	assert.NotContains(t, out, "Written:")
	assert.Contains(t, out, "listing: status 500")
	assert.Contains(t, out, "2025-10-06..10-08  Ignáci csendnap @ Pannonhalma")
	assert.Contains(t, out, "Organizer: Jezsuita Rend")
}

func TestWriteOutput_UnknownFormat(t *testing.T) {
	err := WriteOutput(&bytes.Buffer{}, &ingest.Summary{}, OutputFormat("xml"), false)
	assert.Error(t, err)
}
