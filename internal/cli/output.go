package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/pfrederiksen/retreat-events/internal/calendar"
	"github.com/pfrederiksen/retreat-events/internal/ingest"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatICS  OutputFormat = "ics"
)

func (f OutputFormat) valid() bool {
	return f == FormatText || f == FormatJSON || f == FormatICS
}

// WriteOutput writes the run summary in the specified format. The ics format
// renders only the sampled records.
func WriteOutput(w io.Writer, sum *ingest.Summary, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, sum)
	case FormatText:
		return writeText(w, sum, verbose)
	case FormatICS:
		_, err := io.WriteString(w, calendar.GenerateICS(sum.Sample))
		return err
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs the summary as JSON
func writeJSON(w io.Writer, sum *ingest.Summary) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(sum)
}

// writeText outputs the summary as human-readable text
func writeText(w io.Writer, sum *ingest.Summary, verbose bool) error {
	mode := "run"
	if sum.Dry {
		mode = "dry run"
	}
	fmt.Fprintf(w, "Ingest %s %s (%s)\n", mode, sum.RunID, sum.Duration)
	fmt.Fprintf(w, "  Raw:      %d feed, %d listing\n", sum.RawFeed, sum.RawListing)
	fmt.Fprintf(w, "  Eligible: %d\n", sum.Eligible)
	fmt.Fprintf(w, "  Unique:   %d\n", sum.Unique)
	if !sum.Dry {
		fmt.Fprintf(w, "  Written:  %d\n", sum.Written)
	}

	if len(sum.SourceErrors) > 0 {
		names := make([]string, 0, len(sum.SourceErrors))
		for name := range sum.SourceErrors {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintln(w, "\nSource errors:")
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %s\n", name, sum.SourceErrors[name])
		}
	}

	if !sum.Dry {
		return nil
	}
	if len(sum.Sample) == 0 {
		fmt.Fprintln(w, "\nNo retreats found.")
		return nil
	}

	fmt.Fprintf(w, "\nSample (%d of %d):\n", len(sum.Sample), sum.Unique)
	for _, r := range sum.Sample {
		date := "????-??-??"
		if r.StartDate != nil {
			date = r.StartDate.Format("2006-01-02")
			if r.EndDate != nil && r.EndDate.Format("2006-01-02") != date {
				date += ".." + r.EndDate.Format("01-02")
			}
		}
		line := fmt.Sprintf("  %s  %s", date, r.Title)
		if r.Location != "" {
			line += " @ " + r.Location
		}
		fmt.Fprintln(w, line)

		if verbose {
			fmt.Fprintf(w, "       Source: %s %s\n", r.Source, r.SourceURL)
			if r.Organizer != "" {
				fmt.Fprintf(w, "       Organizer: %s\n", r.Organizer)
			}
			if r.Contact != "" {
				fmt.Fprintf(w, "       Contact: %s\n", r.Contact)
			}
			if r.RegistrationLink != "" {
				fmt.Fprintf(w, "       Registration: %s\n", r.RegistrationLink)
			}
			if r.RegistrationDeadline != "" {
				fmt.Fprintf(w, "       Deadline: %s\n", r.RegistrationDeadline)
			}
			fmt.Fprintf(w, "       Target group: %s\n", r.TargetGroup)
			fmt.Fprintf(w, "       Key: %s\n", r.UniquenessKey)
		}
	}
	return nil
}
