// Package cli implements the command-line interface for retreat-events.
//
// The root command carries two subcommands. "run" performs one ingestion and
// prints the summary as text, JSON or, for dry runs, an iCalendar file of the
// sampled retreats. "serve" exposes the same run behind an authenticated
// HTTP endpoint. Both load settings through the config package and assemble
// the scraper adapters and the configured store into an ingest pipeline.
package cli
