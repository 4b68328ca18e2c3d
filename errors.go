package mongoferry

import (
	"fmt"
	"strings"
)

// ConfigurationError reports invalid operator input (empty table selection,
// bad batch size, an id_field that is not part of the mapping, ...). It is
// raised before any row is read; nothing has been committed.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

// SchemaIntrospectionError wraps a catalog query failure. Introspection
// errors are fatal: configuration cannot proceed without trustworthy
// schema metadata, so they are never retried.
type SchemaIntrospectionError struct {
	Op    string // "list tables", "list columns", ...
	Table string // empty for database-level queries
	Err   error
}

func (e *SchemaIntrospectionError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("introspect: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("introspect: %s for %s: %v", e.Op, e.Table, e.Err)
}

func (e *SchemaIntrospectionError) Unwrap() error { return e.Err }

// DuplicateTargetNameError reports two source columns resolving to the same
// target field name. This is an operator error: the mapping is rejected
// before execution begins.
type DuplicateTargetNameError struct {
	TargetName string
	Columns    []string // source columns that collided, in mapping order
}

func (e *DuplicateTargetNameError) Error() string {
	return fmt.Sprintf("duplicate target field %q (source columns %s)",
		e.TargetName, strings.Join(e.Columns, ", "))
}

// CommitError reports a bulk write failure. It is fatal for the run:
// batches committed before it remain committed, and the carried position
// lets the operator decide how to resume (re-run relies on upsert
// idempotence; with plain inserts a re-run duplicates documents).
type CommitError struct {
	Table     string
	Offset    int64 // paging offset of the failed batch
	Processed int64 // documents committed before the failure
	Total     int64 // row-count snapshot taken at the start of the run
	Err       error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit batch for %s at offset %d (%d/%d committed): %v",
		e.Table, e.Offset, e.Processed, e.Total, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
