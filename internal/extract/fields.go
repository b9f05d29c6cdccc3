package extract

import (
	"regexp"
	"strings"

	"github.com/pfrederiksen/retreat-events/internal/textnorm"
)

var (
	urlPattern = regexp.MustCompile(`https?://[^\s<>"'(){}\[\]]+`)

	// RegistrationIntent matches URLs and anchor texts that look like a sign-up form.
	RegistrationIntent = regexp.MustCompile(`(?i)(docs\.google\.com/forms|forms\.gle|typeform\.com|jotform|formstack|cognitoforms|urlap|űrlap|jelentkez|regisztr|register|registration|signup|sign-up|apply)`)

	emailPattern    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern    = regexp.MustCompile(`\+?\d[\d \t\-/().]{6,}\d`)
	dateLikePattern = regexp.MustCompile(`^\d{4}[.\-/ ]+\d{1,2}[.\-/ ]+\d{1,2}$`)
	datePrefix      = regexp.MustCompile(`^\d{4}\.\s*\d{1,2}\.`)
	currencySuffix  = regexp.MustCompile(`(?i)^\s*(?:,-\s*)?(?:ft\b|huf\b|forint|eur\b|€)`)
)

const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
)

// FirstLink returns the first absolute URL in text, preferring one that
// looks like a registration form. Returns "" when text has no URL.
func FirstLink(text string) string {
	links := urlPattern.FindAllString(text, -1)
	if len(links) == 0 {
		return ""
	}
	for _, l := range links {
		l = trimURL(l)
		if RegistrationIntent.MatchString(l) {
			return l
		}
	}
	return trimURL(links[0])
}

// trimURL drops punctuation that usually belongs to the surrounding sentence.
func trimURL(u string) string {
	return strings.TrimRight(u, ".,;:!?")
}

// ExtractContact finds the first email address and the first phone number.
// Both are joined as "email, phone" when present.
func ExtractContact(text string) string {
	email := emailPattern.FindString(text)
	phone := findPhone(emailPattern.ReplaceAllString(text, " "))

	switch {
	case email != "" && phone != "":
		return email + ", " + phone
	case email != "":
		return email
	default:
		return phone
	}
}

// findPhone skips dates, spaced ranges such as "45 000 - 60 000" and
// amounts followed by a currency.
func findPhone(text string) string {
	for _, loc := range phonePattern.FindAllStringIndex(text, -1) {
		candidate := strings.TrimSpace(text[loc[0]:loc[1]])
		switch {
		case dateLikePattern.MatchString(strings.TrimSuffix(candidate, ".")),
			datePrefix.MatchString(candidate),
			strings.Contains(candidate, " - "),
			currencySuffix.MatchString(text[loc[1]:]):
			continue
		}
		digits := 0
		for _, r := range candidate {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits >= minPhoneDigits && digits <= maxPhoneDigits {
			return textnorm.CollapseSpace(candidate)
		}
	}
	return ""
}

// Label finds "Label: value" lines in page text.
type Label struct {
	Names   []string
	pattern *regexp.Regexp
}

// NewLabel compiles a case-insensitive matcher for lines starting with any
// of the given names followed by a colon.
func NewLabel(names ...string) *Label {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return &Label{
		Names:   names,
		pattern: regexp.MustCompile(`(?im)^[ \t]*(?:` + strings.Join(quoted, "|") + `)[ \t]*:[ \t]*(.+?)[ \t]*$`),
	}
}

// Find returns the value of the first matching line, or "".
func (l *Label) Find(text string) string {
	m := l.pattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return textnorm.CollapseSpace(m[1])
}

// Labels used on retreat detail pages.
var (
	LocationLabel  = NewLabel("Helyszín", "Helyszíne", "Helyszínek", "Hely")
	OrganizerLabel = NewLabel("A program szervezője", "Programszervező", "Szervezők", "Szervező", "Szervezője")
	DeadlineLabel  = NewLabel("Jelentkezési határidő", "Jelentkezési határideje", "Határidő")
	ContactLabel   = NewLabel("Kapcsolat", "Elérhetőség", "Információ")
)

// Contact prefers the email or phone on a "Kapcsolat:" style line and falls
// back to the first one anywhere in text.
func Contact(text string) string {
	if line := ContactLabel.Find(text); line != "" {
		if c := ExtractContact(line); c != "" {
			return c
		}
	}
	return ExtractContact(text)
}

// LabeledField is a convenience wrapper around NewLabel(names...).Find(text).
func LabeledField(text string, names ...string) string {
	return NewLabel(names...).Find(text)
}
