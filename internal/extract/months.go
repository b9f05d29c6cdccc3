package extract

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// monthLexicon maps lowercase Hungarian month names and abbreviations
// (without the trailing dot) to months. Unaccented spellings are included
// because they show up in URLs and hastily typed listings.
var monthLexicon = map[string]time.Month{
	"január": time.January, "januar": time.January, "jan": time.January,
	"február": time.February, "februar": time.February, "febr": time.February, "feb": time.February,
	"március": time.March, "marcius": time.March, "márc": time.March, "marc": time.March, "már": time.March,
	"április": time.April, "aprilis": time.April, "ápr": time.April, "apr": time.April,
	"május": time.May, "majus": time.May, "máj": time.May, "maj": time.May,
	"június": time.June, "junius": time.June, "jún": time.June, "jun": time.June,
	"július": time.July, "julius": time.July, "júl": time.July, "jul": time.July,
	"augusztus": time.August, "aug": time.August,
	"szeptember": time.September, "szept": time.September, "szep": time.September,
	"október": time.October, "oktober": time.October, "okt": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// monthPattern is an alternation of every lexicon entry, longest first so
// that "március" wins over "márc" and "már".
var monthPattern = buildMonthPattern()

func buildMonthPattern() string {
	names := make([]string, 0, len(monthLexicon))
	for name := range monthLexicon {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	for i, name := range names {
		names[i] = regexp.QuoteMeta(name)
	}
	return "(?:" + strings.Join(names, "|") + ")"
}

// lookupMonth resolves a matched month token. Matching is case-insensitive.
func lookupMonth(token string) (time.Month, bool) {
	token = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(token)), ".")
	m, ok := monthLexicon[token]
	return m, ok
}
