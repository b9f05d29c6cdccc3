package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pfrederiksen/retreat-events/internal/textnorm"
)

// Range is the result of date extraction. Either side may be nil.
type Range struct {
	Start *time.Time
	End   *time.Time
}

// clock is a time of day.
type clock struct {
	hour, minute int
}

var (
	dayStart = clock{0, 0}
	dayEnd   = clock{23, 59}
)

// dayPhrase maps a time-of-day expression (matched diacritic-insensitively
// inside the parenthetical after a date) to a fixed clock time.
type dayPhrase struct {
	phrase string
	at     clock
}

// Checked in order; the first phrase contained in the parenthetical wins.
var startPhrases = []dayPhrase{
	{"vacsoratol", clock{18, 0}},
	{"vacsoraval", clock{18, 0}},
	{"vacsora elott", clock{17, 0}},
	{"ebedtol", clock{13, 0}},
	{"ebeddel", clock{13, 0}},
	{"reggelitol", clock{8, 0}},
	{"delelott", clock{10, 0}},
	{"delutan", clock{15, 0}},
	{"estetol", clock{19, 0}},
	{"este", clock{19, 0}},
	{"ejfeltol", clock{0, 0}},
}

var endPhrases = []dayPhrase{
	{"reggeliig", clock{9, 0}},
	{"reggelivel", clock{9, 0}},
	{"reggeli utan", clock{9, 0}},
	{"ebedig", clock{13, 0}},
	{"ebeddel", clock{13, 0}},
	{"ebed utan", clock{14, 0}},
	{"vacsoraig", clock{18, 0}},
	{"delelottig", clock{11, 0}},
	{"delutanig", clock{16, 0}},
	{"delig", clock{12, 0}},
	{"estig", clock{20, 0}},
	{"ejfelig", clock{23, 59}},
}

// dateStrategy is one entry of the extraction cascade.
type dateStrategy struct {
	name    string
	pattern *regexp.Regexp
	resolve func(g groups, loc *time.Location) Range
}

const (
	yearGroup  = `(?P<%s>\d{4})\.?`
	monthGroup = `(?P<%s>%s)\.?`
	dayGroup   = `(?P<%s>\d{1,2})`
	dash       = `\s*[-–—]\s*`
	paren      = `(?:\s*\((?P<%s>[^)]*)\))?`
)

func year(name string) string  { return fmt.Sprintf(yearGroup, name) }
func month(name string) string { return fmt.Sprintf(monthGroup, name, monthPattern) }
func day(name string) string   { return fmt.Sprintf(dayGroup, name) }
func parens(name string) string {
	return fmt.Sprintf(paren, name)
}

// bareSuffix names the groups of a bare "18:00" clock, which has no
// from/until suffix.
const bareSuffix = "bare"

// hourFrom matches "18 órától", "18:30-tól", "18h-tól" or a bare "18:00".
func hourFrom(h, m string) string {
	return fmt.Sprintf(`(?:\s*(?P<%[1]s>\d{1,2})(?:[:.](?P<%[2]s>\d{2}))?\s*(?:órától|óra után|h?-?t[óő]l)|\s*(?P<%[1]s%[3]s>\d{1,2}):(?P<%[2]s%[3]s>\d{2}))?`, h, m, bareSuffix)
}

// hourUntil matches "13 óráig", "13:00-ig", "13h-ig" or a bare "13:00".
func hourUntil(h, m string) string {
	return fmt.Sprintf(`(?:\s*(?P<%[1]s>\d{1,2})(?:[:.](?P<%[2]s>\d{2}))?\s*(?:óráig|h?-?ig)|\s*(?P<%[1]s%[3]s>\d{1,2}):(?P<%[2]s%[3]s>\d{2}))?`, h, m, bareSuffix)
}

// endDayStop keeps the hour of a "10:00 – 12:00" clock range from being
// read as the end day.
const endDayStop = `(?:[.,;]|\s|$)`

// dateLabel is the marker that introduces the detailed form.
const dateLabel = `(?:időpontja|időpont|időpontok|dátuma|dátum|időtartam|időtartama|mikor)\s*:\s*`

// strategies is the extraction cascade, most specific first.
var strategies = []dateStrategy{
	{
		name: "labeled-range",
		pattern: regexp.MustCompile(`(?i)` + dateLabel +
			year("sy") + `\s*` + month("sm") + `\s*` + day("sd") + `\.?` +
			parens("sp") + hourFrom("sh", "smin") +
			dash +
			`(?:` + year("ey") + `\s*)?` + `(?:` + month("em") + `\s*)?` + day("ed") + endDayStop +
			parens("ep") + hourUntil("eh", "emin")),
		resolve: resolveRange,
	},
	{
		name: "short-range",
		pattern: regexp.MustCompile(`(?i)` +
			year("sy") + `\s*` + month("sm") + `\s*` + day("sd") + `\.?` +
			dash +
			`(?:` + year("ey") + `\s*)?` + `(?:` + month("em") + `\s*)?` + day("ed") + `\b`),
		resolve: resolveRange,
	},
	{
		name:    "single-date",
		pattern: regexp.MustCompile(`(?i)` + year("sy") + `\s*` + month("sm") + `\s*` + day("sd") + `\b`),
		resolve: resolveSingle,
	},
}

// groups holds named submatches; absent groups read as "".
type groups map[string]string

// clock returns the hour and minute groups, falling back to the bare form.
func (g groups) clock(h, m string) (string, string) {
	if g[h] != "" {
		return g[h], g[m]
	}
	return g[h+bareSuffix], g[m+bareSuffix]
}

func match(re *regexp.Regexp, text string) (groups, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	g := make(groups, len(m))
	for i, name := range re.SubexpNames() {
		if name != "" {
			g[name] = m[i]
		}
	}
	return g, true
}

// ExtractDateRange finds the first date or date range in text and resolves
// it in loc. Strategies are tried in order and the first match wins; if
// nothing matches both sides are nil.
func ExtractDateRange(text string, loc *time.Location) Range {
	if loc == nil {
		loc = time.Local
	}
	for _, s := range strategies {
		if g, ok := match(s.pattern, text); ok {
			return s.resolve(g, loc)
		}
	}
	return Range{}
}

func resolveSingle(g groups, loc *time.Location) Range {
	y, m, d, ok := ymd(g["sy"], g["sm"], g["sd"])
	if !ok {
		return Range{}
	}
	return Range{Start: at(y, m, d, dayStart, loc)}
}

func resolveRange(g groups, loc *time.Location) Range {
	var r Range

	sy, sm, sd, startOK := ymd(g["sy"], g["sm"], g["sd"])
	if startOK {
		hs, ms := g.clock("sh", "smin")
		if c, ok := pickClock(hs, ms, g["sp"], startPhrases, dayStart); ok {
			r.Start = at(sy, sm, sd, c, loc)
		}
	}

	// The end side inherits year and month from the start when omitted.
	ey, em, ed := g["ey"], g["em"], g["ed"]
	explicitYear := ey != ""
	if ey == "" {
		ey = g["sy"]
	}
	if em == "" {
		em = g["sm"]
	}
	y, m, d, endOK := ymd(ey, em, ed)
	if !endOK {
		return r
	}
	hs, ms := g.clock("eh", "emin")
	c, ok := pickClock(hs, ms, g["ep"], endPhrases, dayEnd)
	if !ok {
		return r
	}
	r.End = at(y, m, d, c, loc)

	if r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		// "december 28 – január 2" without a second year crosses into the
		// next one. Any other end before the start is dropped.
		if !explicitYear && g["em"] != "" {
			r.End = at(y+1, m, d, c, loc)
		} else {
			r.End = nil
		}
	}
	return r
}

// ymd parses the year/month/day tokens without validating the calendar.
func ymd(ys, ms, ds string) (int, time.Month, int, bool) {
	y, err := strconv.Atoi(ys)
	if err != nil {
		return 0, 0, 0, false
	}
	m, ok := lookupMonth(ms)
	if !ok {
		return 0, 0, 0, false
	}
	d, err := strconv.Atoi(ds)
	if err != nil {
		return 0, 0, 0, false
	}
	return y, m, d, true
}

// pickClock prefers an explicit hour, then a time-of-day phrase, then def.
// It reports false when the explicit hour is out of range.
func pickClock(hs, ms, phraseText string, phrases []dayPhrase, def clock) (clock, bool) {
	if hs != "" {
		h, err := strconv.Atoi(hs)
		if err != nil || h > 23 {
			return clock{}, false
		}
		minute := 0
		if ms != "" {
			minute, err = strconv.Atoi(ms)
			if err != nil || minute > 59 {
				return clock{}, false
			}
		}
		return clock{h, minute}, true
	}
	if phraseText != "" {
		folded := textnorm.FoldDiacritics(strings.ToLower(phraseText))
		for _, p := range phrases {
			if strings.Contains(folded, p.phrase) {
				return p.at, true
			}
		}
	}
	return def, true
}

// at builds a timestamp and returns nil when the components do not form a
// real calendar date (time.Date would silently normalize "február 30").
func at(y int, m time.Month, d int, c clock, loc *time.Location) *time.Time {
	t := time.Date(y, m, d, c.hour, c.minute, 0, 0, loc)
	if t.Year() != y || t.Month() != m || t.Day() != d {
		return nil
	}
	return &t
}
