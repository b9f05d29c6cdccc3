// Package storage persists retreat records.
//
// Four drivers implement Store, each resolving duplicates on a caller-given
// conflict column (normally uniqueness_key) and treating one Upsert call as a
// single atomic batch:
//
//   - file: a JSON snapshot on disk, keyed by uniqueness key. The default
//     location is ~/.local/share/retreat-events/.
//   - sqlite: a local database file through database/sql. Given a directory,
//     such as the default data directory, it uses retreats.db inside it.
//   - postgres: a pgx pool, one transaction per batch.
//   - postgrest: the REST API of a hosted Postgres, using merge-duplicates.
package storage
