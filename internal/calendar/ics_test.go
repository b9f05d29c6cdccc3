package calendar

import (
	"strings"
	"testing"
	"time"

	"github.com/pfrederiksen/retreat-events/internal/retreat"
)

func at(y int, m time.Month, d, hh, mm int) *time.Time {
	t := time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
	return &t
}

func TestGenerateICS(t *testing.T) {
	r := retreat.Prepare(retreat.Retreat{
		Title:            "Ignáci csendnap",
		StartDate:        at(2025, time.October, 6, 18, 0),
		EndDate:          at(2025, time.October, 8, 13, 0),
		Location:         "Pannonhalma, Főapátság",
		Organizer:        "Jezsuita Rend",
		RegistrationLink: "https://forms.gle/abc",
	})

	ics := GenerateICS([]retreat.Retreat{r})

	// Check required ICS fields
	requiredFields := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Retreat Events//retreat-events//HU",
		"BEGIN:VEVENT",
		"UID:" + retreat.GenerateID(r.UniquenessKey) + "@retreat-events",
		"DTSTAMP:",
		"DTSTART:20251006T180000Z",
		"DTEND:20251008T130000Z",
		"SUMMARY:Ignáci csendnap",
		"DESCRIPTION:Szervező: Jezsuita Rend",
		"LOCATION:Pannonhalma\\, Főapátság", // Comma is escaped
		"URL:https://forms.gle/abc",
		"STATUS:CONFIRMED",
		"END:VEVENT",
		"END:VCALENDAR",
	}

	for _, field := range requiredFields {
		if !strings.Contains(ics, field) {
			t.Errorf("ICS missing required field: %s", field)
		}
	}

	// Check that lines end with \r\n
	if !strings.Contains(ics, "\r\n") {
		t.Error("ICS should use \\r\\n line endings")
	}
}

func TestGenerateICS_AllDay(t *testing.T) {
	tests := []struct {
		name      string
		start     *time.Time
		end       *time.Time
		wantStart string
		wantEnd   string
	}{
		{
			name:      "single day",
			start:     at(2025, time.October, 16, 0, 0),
			wantStart: "DTSTART;VALUE=DATE:20251016",
			wantEnd:   "DTEND;VALUE=DATE:20251017",
		},
		{
			name:      "whole-day range",
			start:     at(2025, time.October, 16, 0, 0),
			end:       at(2025, time.October, 26, 23, 59),
			wantStart: "DTSTART;VALUE=DATE:20251016",
			wantEnd:   "DTEND;VALUE=DATE:20251027",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ics := GenerateICS([]retreat.Retreat{{Title: "Csend", StartDate: tt.start, EndDate: tt.end}})
			if !strings.Contains(ics, tt.wantStart) {
				t.Errorf("missing %s in\n%s", tt.wantStart, ics)
			}
			if !strings.Contains(ics, tt.wantEnd) {
				t.Errorf("missing %s in\n%s", tt.wantEnd, ics)
			}
		})
	}
}

func TestGenerateICS_SkipsUndated(t *testing.T) {
	ics := GenerateICS([]retreat.Retreat{
		{Title: "No date"},
		{Title: "Dated", StartDate: at(2025, time.October, 6, 0, 0)},
	})

	if n := strings.Count(ics, "BEGIN:VEVENT"); n != 1 {
		t.Errorf("expected 1 event, got %d", n)
	}
	if strings.Contains(ics, "No date") {
		t.Error("undated record should be skipped")
	}
}

func TestGenerateICS_URLFallback(t *testing.T) {
	ics := GenerateICS([]retreat.Retreat{{
		Title:     "Csend",
		StartDate: at(2025, time.October, 6, 0, 0),
		SourceURL: "https://example.hu/program/1",
	}})
	if !strings.Contains(ics, "URL:https://example.hu/program/1") {
		t.Error("source URL should be used when there is no registration link")
	}
}

func TestEscapeICS(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Simple text", "Simple text"},
		{"Text, with comma", "Text\\, with comma"},
		{"Text; with semicolon", "Text\\; with semicolon"},
		{"Text\nwith newline", "Text\\nwith newline"},
		{"Text\\with backslash", "Text\\\\with backslash"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := escapeICS(tt.input); got != tt.expected {
				t.Errorf("escapeICS(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestWriteLine_Folds(t *testing.T) {
	var b strings.Builder
	writeLine(&b, "SUMMARY:"+strings.Repeat("ő", 60))

	for i, line := range strings.Split(strings.TrimSuffix(b.String(), "\r\n"), "\r\n") {
		if len(line) > 75 {
			t.Errorf("line %d is %d octets", i, len(line))
		}
		if i > 0 && !strings.HasPrefix(line, " ") {
			t.Errorf("continuation line %d must start with a space", i)
		}
	}
	unfolded := strings.ReplaceAll(strings.TrimSuffix(b.String(), "\r\n"), "\r\n ", "")
	if unfolded != "SUMMARY:"+strings.Repeat("ő", 60) {
		t.Error("unfolding must restore the original line")
	}
}
