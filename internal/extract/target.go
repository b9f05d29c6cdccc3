package extract

import (
	"regexp"
	"strings"

	"github.com/pfrederiksen/retreat-events/internal/textnorm"
)

type targetGroup struct {
	pattern *regexp.Regexp
	label   string
}

// targetGroups is matched against folded, lowercase text.
var targetGroups = []targetGroup{
	{regexp.MustCompile(`jegyes`), "jegyesek"},
	{regexp.MustCompile(`hazas`), "házaspárok"},
	{regexp.MustCompile(`csalad`), "családok"},
	{regexp.MustCompile(`\bpap(ok|oknak|i)?\b|szerzetes|diakonus`), "papok, szerzetesek"},
	{regexp.MustCompile(`fiatal|egyetemist|ifjusag|\bdiak`), "fiatalok"},
	{regexp.MustCompile(`\bnok\b|noknek|asszony`), "nők"},
	{regexp.MustCompile(`ferfi`), "férfiak"},
	{regexp.MustCompile(`\bidos|nyugdij`), "idősek"},
}

// DetectTargetGroup classifies a retreat from its source categories first,
// then from its text. Returns "" when nothing matches.
func DetectTargetGroup(categories []string, text string) string {
	for _, c := range categories {
		if label := matchTargetGroup(c); label != "" {
			return label
		}
	}
	return matchTargetGroup(text)
}

func matchTargetGroup(s string) string {
	if s == "" {
		return ""
	}
	folded := textnorm.FoldDiacritics(strings.ToLower(s))
	for _, tg := range targetGroups {
		if tg.pattern.MatchString(folded) {
			return tg.label
		}
	}
	return ""
}
