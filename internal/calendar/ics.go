package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/retreat-events/internal/retreat"
)

// GenerateICS generates an iCalendar (.ics) document with one VEVENT per
// retreat. Records without a start date are skipped.
func GenerateICS(records []retreat.Retreat) string {
	return generate(records, time.Now().UTC())
}

func generate(records []retreat.Retreat, now time.Time) string {
	var ics strings.Builder

	ics.WriteString("BEGIN:VCALENDAR\r\n")
	ics.WriteString("VERSION:2.0\r\n")
	ics.WriteString("PRODID:-//Retreat Events//retreat-events//HU\r\n")
	ics.WriteString("CALSCALE:GREGORIAN\r\n")
	ics.WriteString("METHOD:PUBLISH\r\n")

	for _, r := range records {
		if r.StartDate == nil {
			continue
		}
		writeEvent(&ics, r, now)
	}

	ics.WriteString("END:VCALENDAR\r\n")
	return ics.String()
}

func writeEvent(ics *strings.Builder, r retreat.Retreat, now time.Time) {
	key := r.UniquenessKey
	if key == "" {
		key = retreat.UniquenessKey(r.Title, r.StartDate, r.Organizer, r.Location)
	}

	ics.WriteString("BEGIN:VEVENT\r\n")

	// UID stays stable across exports of the same retreat
	writeLine(ics, fmt.Sprintf("UID:%s@retreat-events", retreat.GenerateID(key)))
	writeLine(ics, "DTSTAMP:"+formatICSTime(now))

	start := *r.StartDate
	if allDay(r) {
		end := start.AddDate(0, 0, 1)
		if r.EndDate != nil {
			end = r.EndDate.AddDate(0, 0, 1)
		}
		writeLine(ics, "DTSTART;VALUE=DATE:"+start.Format("20060102"))
		writeLine(ics, "DTEND;VALUE=DATE:"+end.Format("20060102"))
	} else {
		writeLine(ics, "DTSTART:"+formatICSTime(start))
		if r.EndDate != nil {
			writeLine(ics, "DTEND:"+formatICSTime(*r.EndDate))
		}
	}

	writeLine(ics, "SUMMARY:"+escapeICS(r.Title))

	var desc []string
	if r.Description != "" {
		desc = append(desc, r.Description)
	}
	if r.Organizer != "" {
		desc = append(desc, "Szervező: "+r.Organizer)
	}
	if r.RegistrationDeadline != "" {
		desc = append(desc, "Jelentkezési határidő: "+r.RegistrationDeadline)
	}
	if r.Contact != "" {
		desc = append(desc, "Kapcsolat: "+r.Contact)
	}
	if len(desc) > 0 {
		writeLine(ics, "DESCRIPTION:"+escapeICS(strings.Join(desc, "\n")))
	}

	if r.Location != "" {
		writeLine(ics, "LOCATION:"+escapeICS(r.Location))
	}

	link := r.RegistrationLink
	if link == "" {
		link = r.SourceURL
	}
	if link != "" {
		writeLine(ics, "URL:"+link)
	}

	ics.WriteString("STATUS:CONFIRMED\r\n")
	ics.WriteString("TRANSP:OPAQUE\r\n")
	ics.WriteString("END:VEVENT\r\n")
}

// allDay reports whether the record spans whole days: it starts at midnight
// and either has no end or ends at 23:59.
func allDay(r retreat.Retreat) bool {
	s := r.StartDate
	if s.Hour() != 0 || s.Minute() != 0 {
		return false
	}
	if r.EndDate == nil {
		return true
	}
	return r.EndDate.Hour() == 23 && r.EndDate.Minute() == 59
}

// writeLine folds content lines longer than 75 octets, as RFC 5545 requires,
// without splitting a UTF-8 sequence.
func writeLine(ics *strings.Builder, line string) {
	limit := 75
	for len(line) > limit {
		cut := limit
		for cut > 0 && !isRuneStart(line[cut]) {
			cut--
		}
		ics.WriteString(line[:cut])
		ics.WriteString("\r\n ")
		line = line[cut:]
		// continuation lines lose one octet to the leading space
		limit = 74
	}
	ics.WriteString(line)
	ics.WriteString("\r\n")
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// formatICSTime formats a time.Time as an iCalendar datetime string
func formatICSTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// escapeICS escapes special characters for iCalendar format
func escapeICS(s string) string {
	// Replace special characters according to RFC 5545
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
