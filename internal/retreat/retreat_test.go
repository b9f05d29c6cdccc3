package retreat

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateID(t *testing.T) {
	id1 := GenerateID("Csendes nap", "2025-10-06")
	id2 := GenerateID("Csendes nap", "2025-10-06")

	if id1 != id2 {
		t.Errorf("GenerateID should be deterministic, got %s vs %s", id1, id2)
	}
	if len(id1) != 40 { // SHA1 produces 40 hex characters
		t.Errorf("expected ID length of 40, got %d", len(id1))
	}
	if GenerateID("a|b") != GenerateID("a", "b") {
		t.Error("parts should be joined with |")
	}
}

func TestFeedExternalID(t *testing.T) {
	tests := []struct {
		name   string
		itemID string
		link   string
		title  string
		want   string
	}{
		{"item id wins", "urn:1", "https://x.hu/1", "T", "urn:1"},
		{"link fallback", "  ", "https://x.hu/1", "T", "link:https://x.hu/1"},
		{"title hash fallback", "", "", "T", "hash:" + GenerateID("T")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FeedExternalID(tt.itemID, tt.link, tt.title); got != tt.want {
				t.Errorf("FeedExternalID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestListingExternalID(t *testing.T) {
	start := time.Date(2025, time.October, 6, 18, 0, 0, 0, time.UTC)
	got := ListingExternalID("Csend", &start, "https://x.hu/program/1")

	if !strings.HasPrefix(got, "biz:") {
		t.Fatalf("ListingExternalID() = %q, want biz: prefix", got)
	}
	want := "biz:" + GenerateID("Csend", "2025-10-06T18:00:00Z", "https://x.hu/program/1")
	if got != want {
		t.Errorf("ListingExternalID() = %q, want %q", got, want)
	}
}

func TestEligible(t *testing.T) {
	start := time.Date(2025, time.October, 6, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		r    Retreat
		want bool
	}{
		{"title and start", Retreat{Title: "Csend", StartDate: &start}, true},
		{"no start", Retreat{Title: "Csend"}, false},
		{"blank title", Retreat{Title: "   ", StartDate: &start}, false},
		{"zero start", Retreat{Title: "Csend", StartDate: &time.Time{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Eligible(); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUniquenessKey(t *testing.T) {
	morning := time.Date(2025, time.October, 6, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2025, time.October, 6, 18, 0, 0, 0, time.UTC)

	a := UniquenessKey("Ignáci Lelkigyakorlat!", &morning, "Jezsuita Rend", "")
	b := UniquenessKey("ignaci  lelkigyakorlat", &evening, "JEZSUITA REND", "Budapest")
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
	if a != "ignaci lelkigyakorlat|2025-10-06|jezsuita rend" {
		t.Errorf("UniquenessKey() = %q", a)
	}

	if got := UniquenessKey("Csend", &morning, "", "Máriabesnyő"); got != "csend|2025-10-06|mariabesnyo" {
		t.Errorf("location fallback: %q", got)
	}
	if got := UniquenessKey("Csend", nil, "", ""); got != "csend||" {
		t.Errorf("empty segments: %q", got)
	}
}

func TestPrepare(t *testing.T) {
	start := time.Date(2025, time.October, 6, 0, 0, 0, 0, time.UTC)
	in := Retreat{
		Source:           SourceFeed,
		Title:            strings.Repeat("á", 300),
		StartDate:        &start,
		Location:         strings.Repeat("l", 400),
		RegistrationLink: "https://x.hu/" + strings.Repeat("p", 2000),
	}

	out := Prepare(in)

	if n := len([]rune(out.Title)); n != MaxTitle {
		t.Errorf("title runes = %d, want %d", n, MaxTitle)
	}
	if n := len([]rune(out.Location)); n != MaxLocation {
		t.Errorf("location runes = %d, want %d", n, MaxLocation)
	}
	if n := len(out.RegistrationLink); n != MaxRegistrationLink {
		t.Errorf("registration link length = %d, want %d", n, MaxRegistrationLink)
	}
	if out.TargetGroup != DefaultTargetGroup {
		t.Errorf("TargetGroup = %q, want %q", out.TargetGroup, DefaultTargetGroup)
	}
	if out.UniquenessKey == "" {
		t.Error("expected uniqueness key")
	}
	if in.UniquenessKey != "" || len([]rune(in.Title)) != 300 {
		t.Error("Prepare must not modify its input")
	}
}
