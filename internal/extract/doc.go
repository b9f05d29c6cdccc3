// Package extract pulls structured retreat fields out of Hungarian free text.
//
// The date extractor runs an ordered table of regular-expression strategies
// (labeled detailed range, short range, single date) and returns the first
// match as a start/end pair in a given time zone. The field extractors find
// registration links, contact details, labeled "Label: value" lines, venue
// names from a gazetteer and target groups from a small lexicon. All of them
// are heuristics; a miss yields an empty result, never an error.
package extract
