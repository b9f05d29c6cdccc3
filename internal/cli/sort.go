package cli

import (
	"sort"
	"strings"

	"github.com/pfrederiksen/retreat-events/internal/retreat"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortByDate     SortOrder = "date"
	SortByTitle    SortOrder = "title"
	SortByLocation SortOrder = "location"
)

func (o SortOrder) valid() bool {
	return o == SortByDate || o == SortByTitle || o == SortByLocation
}

// sortRetreats sorts records in place based on the specified sort order
func sortRetreats(records []retreat.Retreat, order SortOrder) {
	switch order {
	case SortByDate:
		sort.SliceStable(records, func(i, j int) bool {
			return compareByDate(records[i], records[j])
		})
	case SortByTitle:
		sort.SliceStable(records, func(i, j int) bool {
			ti, tj := strings.ToLower(records[i].Title), strings.ToLower(records[j].Title)
			if ti != tj {
				return ti < tj
			}
			return compareByDate(records[i], records[j])
		})
	case SortByLocation:
		sort.SliceStable(records, func(i, j int) bool {
			li, lj := records[i].Location, records[j].Location
			if li != lj {
				// records without a venue go last
				if li == "" || lj == "" {
					return lj == ""
				}
				return strings.ToLower(li) < strings.ToLower(lj)
			}
			return compareByDate(records[i], records[j])
		})
	}
}

// compareByDate compares two records by start date
// Returns true if record i should come before record j
func compareByDate(i, j retreat.Retreat) bool {
	// If both dates are set, compare them
	if i.StartDate != nil && j.StartDate != nil && !i.StartDate.Equal(*j.StartDate) {
		return i.StartDate.Before(*j.StartDate)
	}

	// If only one date is set, put the dated one first
	if i.StartDate != nil && j.StartDate == nil {
		return true
	}
	if i.StartDate == nil && j.StartDate != nil {
		return false
	}

	return strings.ToLower(i.Title) < strings.ToLower(j.Title)
}
