package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pfrederiksen/retreat-events/internal/textnorm"
)

// Venue is one gazetteer row. Patterns are matched against lowercase,
// diacritic-folded text, so they are written without accents. Accented
// patterns see the lowercase text with its accents kept, for names whose
// folded form collides with a common word.
type Venue struct {
	Pattern  *regexp.Regexp
	Label    string
	Accented bool
}

// VenueEntry is the uncompiled form of a Venue, as read from configuration.
type VenueEntry struct {
	Pattern  string `mapstructure:"pattern" yaml:"pattern"`
	Label    string `mapstructure:"label" yaml:"label"`
	Accented bool   `mapstructure:"accented" yaml:"accented"`
}

// cityName matches a short city name with an optional case suffix. The name
// must stand alone, so Zalaegerszeg does not match "eger".
func cityName(stem, suffixes string) string {
	return `(?:^|\PL)` + stem + `(?:` + suffixes + `)?(?:\PL|$)`
}

// citySuffixes are the case endings of the short city names, accented or
// typed without accents.
const citySuffixes = `ben|be|b[oő]l|en|ett|re|r[oő]l|h[eoö]z|n[eé]l|t[oő]l|ig|i`

// Gazetteer is an ordered list of known retreat venues.
type Gazetteer struct {
	venues []Venue
}

// defaultVenues is ordered from the most specific house to generic city names.
var defaultVenues = []VenueEntry{
	{Pattern: `pannonhalm`, Label: "Pannonhalmi Főapátság"},
	{Pattern: `mariabesnyo`, Label: "Máriabesnyő, Lelkigyakorlatos Ház"},
	{Pattern: `matraverebely|szentkut`, Label: "Mátraverebély-Szentkút Nemzeti Kegyhely"},
	{Pattern: `mariaremete`, Label: "Máriaremete"},
	{Pattern: `mariapocs`, Label: "Máriapócs"},
	{Pattern: `dobogoko`, Label: "Dobogókő"},
	{Pattern: `zebegeny`, Label: "Zebegény"},
	{Pattern: `leanyfalu`, Label: "Leányfalu"},
	{Pattern: `pilisborosjeno`, Label: "Pilisborosjenő"},
	{Pattern: `pilisszentlelek`, Label: "Pilisszentlélek"},
	{Pattern: `bakonybel`, Label: "Bakonybél"},
	{Pattern: `tihany`, Label: "Tihany"},
	{Pattern: `zirc`, Label: "Zirc"},
	{Pattern: `esztergom`, Label: "Esztergom"},
	{Pattern: `kecskemet`, Label: "Kecskemét"},
	{Pattern: cityName(`eger`, citySuffixes), Label: "Eger", Accented: true},
	{Pattern: cityName(`szeged`, citySuffixes), Label: "Szeged", Accented: true},
	{Pattern: cityName(`p[eé]cs`, citySuffixes), Label: "Pécs", Accented: true},
	{Pattern: cityName(`gy[oő]r`, citySuffixes), Label: "Győr", Accented: true},
	{Pattern: `debrecen`, Label: "Debrecen"},
	{Pattern: `budapest`, Label: "Budapest"},
}

var defaultGazetteer = MustGazetteer(defaultVenues)

// NewGazetteer compiles entries in order.
func NewGazetteer(entries []VenueEntry) (*Gazetteer, error) {
	g := &Gazetteer{venues: make([]Venue, 0, len(entries))}
	for _, e := range entries {
		if strings.TrimSpace(e.Label) == "" {
			return nil, fmt.Errorf("venue %q: empty label", e.Pattern)
		}
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("venue %q: %w", e.Label, err)
		}
		g.venues = append(g.venues, Venue{Pattern: re, Label: e.Label, Accented: e.Accented})
	}
	return g, nil
}

// MustGazetteer is like NewGazetteer but panics on a bad pattern.
func MustGazetteer(entries []VenueEntry) *Gazetteer {
	g, err := NewGazetteer(entries)
	if err != nil {
		panic(err)
	}
	return g
}

// DefaultGazetteer returns the built-in venue table.
func DefaultGazetteer() *Gazetteer {
	return defaultGazetteer
}

// WithDefaults returns a gazetteer that checks extra entries before the
// built-in table.
func WithDefaults(extra []VenueEntry) (*Gazetteer, error) {
	all := make([]VenueEntry, 0, len(extra)+len(defaultVenues))
	all = append(all, extra...)
	all = append(all, defaultVenues...)
	return NewGazetteer(all)
}

// Detect returns the label of the first venue whose pattern matches text.
func (g *Gazetteer) Detect(text string) string {
	if g == nil || text == "" {
		return ""
	}
	lower := strings.ToLower(text)
	folded := textnorm.FoldDiacritics(lower)
	for _, v := range g.venues {
		target := folded
		if v.Accented {
			target = lower
		}
		if v.Pattern.MatchString(target) {
			return v.Label
		}
	}
	return ""
}

// Len returns the number of venues.
func (g *Gazetteer) Len() int {
	return len(g.venues)
}

// DetectLocation runs the built-in gazetteer over text.
func DetectLocation(text string) string {
	return defaultGazetteer.Detect(text)
}
