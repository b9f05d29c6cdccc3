// Package retreat defines the candidate retreat record shared by every source
// adapter, the storage layer and the ingest pipeline.
//
// A record is built once per source item, then passed through Prepare, which
// caps field lengths, applies the catch-all target group and computes the
// uniqueness key: the normalized title, the calendar date of the start and
// the normalized organizer (or location) joined with "|". The key is what
// identifies the same real-world retreat across sources and across runs;
// the SHA1-based external ids are only a fallback reference to the origin.
package retreat
