package retreat

import (
	"crypto/sha1"
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/retreat-events/internal/textnorm"
)

// Source tags where a candidate came from.
type Source string

const (
	SourceFeed    Source = "feed"
	SourceListing Source = "listing-site"
	SourceManual  Source = "manual"
)

// DefaultTargetGroup is used when the source gives no classification.
const DefaultTargetGroup = "mindenki"

// KeyDelimiter separates uniqueness key segments. NormalizeForKey never
// produces it.
const KeyDelimiter = "|"

// Field caps in runes, applied before persistence.
const (
	MaxTitle            = 255
	MaxLocation         = 255
	MaxContact          = 255
	MaxRegistrationLink = 1024
	MaxOrganizer        = 255
	MaxDeadline         = 255
)

// Retreat is a candidate event record. Empty strings stand for null.
type Retreat struct {
	Source               Source     `json:"source"`
	SourceURL            string     `json:"source_url"`
	ExternalID           string     `json:"external_id"`
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	StartDate            *time.Time `json:"start_date,omitempty"`
	EndDate              *time.Time `json:"end_date,omitempty"`
	Location             string     `json:"location,omitempty"`
	Contact              string     `json:"contact,omitempty"`
	RegistrationLink     string     `json:"registration_link,omitempty"`
	Organizer            string     `json:"organizer,omitempty"`
	RegistrationDeadline string     `json:"registration_deadline,omitempty"`
	TargetGroup          string     `json:"target_group,omitempty"`
	UniquenessKey        string     `json:"uniqueness_key,omitempty"`
}

// GenerateID returns the hex SHA1 of the parts joined with "|".
func GenerateID(parts ...string) string {
	h := sha1.New()
	h.Write([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// FeedExternalID picks the best stable id a feed item offers:
// its own id, then its link, then a hash of the title.
func FeedExternalID(itemID, link, title string) string {
	if id := strings.TrimSpace(itemID); id != "" {
		return id
	}
	if l := strings.TrimSpace(link); l != "" {
		return "link:" + l
	}
	return "hash:" + GenerateID(title)
}

// ListingExternalID identifies a scraped detail page.
func ListingExternalID(title string, start *time.Time, pageURL string) string {
	return "biz:" + GenerateID(title, isoOrEmpty(start), pageURL)
}

func isoOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Eligible reports whether the record may be persisted: it needs a title
// and a resolvable start date.
func (r *Retreat) Eligible() bool {
	return strings.TrimSpace(r.Title) != "" && r.StartDate != nil && !r.StartDate.IsZero()
}

// UniquenessKey computes normalize(title)|date(start)|normalize(organizer or location).
func UniquenessKey(title string, start *time.Time, organizer, location string) string {
	place := organizer
	if strings.TrimSpace(place) == "" {
		place = location
	}
	return strings.Join([]string{
		textnorm.NormalizeForKey(title),
		textnorm.DateOnly(start),
		textnorm.NormalizeForKey(place),
	}, KeyDelimiter)
}

// Prepare returns a copy of r with fields trimmed to their caps, the target
// group defaulted and the uniqueness key set. The input is left untouched.
func Prepare(r Retreat) Retreat {
	out := r
	out.Title = textnorm.Truncate(strings.TrimSpace(r.Title), MaxTitle)
	out.Location = textnorm.Truncate(strings.TrimSpace(r.Location), MaxLocation)
	out.Contact = textnorm.Truncate(strings.TrimSpace(r.Contact), MaxContact)
	out.RegistrationLink = textnorm.Truncate(strings.TrimSpace(r.RegistrationLink), MaxRegistrationLink)
	out.Organizer = textnorm.Truncate(strings.TrimSpace(r.Organizer), MaxOrganizer)
	out.RegistrationDeadline = textnorm.Truncate(strings.TrimSpace(r.RegistrationDeadline), MaxDeadline)
	if strings.TrimSpace(out.TargetGroup) == "" {
		out.TargetGroup = DefaultTargetGroup
	}
	out.UniquenessKey = UniquenessKey(out.Title, out.StartDate, out.Organizer, out.Location)
	return out
}
