package scraper

import (
	"strings"
	"time"

	"github.com/pfrederiksen/retreat-events/internal/extract"
)

// DefaultTimezone is the zone retreat dates are interpreted in.
const DefaultTimezone = "Europe/Budapest"

// Extractor carries what the adapters need to turn page text into fields.
// The zero value uses Budapest time and the built-in gazetteer.
type Extractor struct {
	Location  *time.Location
	Gazetteer *extract.Gazetteer
}

func (e Extractor) location() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

func (e Extractor) gazetteer() *extract.Gazetteer {
	if e.Gazetteer != nil {
		return e.Gazetteer
	}
	return extract.DefaultGazetteer()
}

// place prefers an explicit "Helyszín:" line over a gazetteer hit.
func (e Extractor) place(text string) string {
	if loc := extract.LocationLabel.Find(text); loc != "" {
		return loc
	}
	return e.gazetteer().Detect(text)
}

func joinText(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}
