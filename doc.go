// Package mongoferry migrates relational data into MongoDB.
//
// The engine introspects the source catalog (MySQL, SQL Server,
// PostgreSQL, or SQLite), derives a default field mapping from native
// column types, applies operator-supplied renames and type coercions, and
// streams the table into a target collection in bounded batches with
// upsert-or-insert commits. Per-field conversion is total: values that
// cannot be represented become null rather than failing the migration, so
// operators should always review a Preview before running. Documents that
// cannot be BSON-encoded are dropped from their batch and reported; a bulk
// write failure aborts the run, leaving prior batches committed.
//
// The package is a library; cmd/mongoferry is the TOML-driven command-line
// driver.
package mongoferry
