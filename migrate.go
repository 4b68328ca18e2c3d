package mongoferry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// MigrationSpec describes one table migration. It is fixed for the
// duration of a run; the executor never mutates it.
type MigrationSpec struct {
	// Table is the source table identifier (may be schema-qualified).
	Table string

	// Collection is the target collection name. Empty means the table
	// name with '.' replaced by '_'.
	Collection string

	// Mapping is the resolved field mapping from ResolveMapping.
	Mapping []FieldMapping

	// BatchSize is the page size for the scan loop. Must be positive;
	// 100–10000 is the recommended operating range.
	BatchSize int

	// IDField names the source column whose converted value becomes the
	// document identifier. Empty lets the target store assign identifiers.
	IDField string

	// Upsert commits batches as replace-or-insert keyed by identifier.
	// Re-running an upsert migration with a stable IDField is idempotent;
	// re-running without it duplicates every document.
	Upsert bool

	// Strict fails a document into the run's failure list when a non-null
	// field cannot be represented, instead of silently nulling it.
	Strict bool

	// OrderBy fixes the deterministic paging order. Callers normally fill
	// it with DefaultOrderBy from the introspected table.
	OrderBy []string
}

// RowFailure records one document excluded from its batch, positioned by
// the row's index in the full-table scan order.
type RowFailure struct {
	RowIndex int64
	Reason   string
}

// Progress is a one-way side-channel report emitted after each committed
// batch. Observers must not block.
type Progress struct {
	Table     string
	Processed int64
	Total     int64
}

// Fraction returns processed/total clamped to 1.0. The total is a
// point-in-time snapshot, so processed can legitimately pass it when the
// source grows mid-run.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 1.0
	}
	f := float64(p.Processed) / float64(p.Total)
	if f > 1.0 {
		return 1.0
	}
	return f
}

// MigrationResult summarizes a finished or aborted run.
type MigrationResult struct {
	Table      string
	Collection string
	TotalRows  int64 // count snapshot taken before the first page
	Processed  int64 // documents committed
	Batches    int   // batches committed
	Failures   []RowFailure
}

// SourceReader is the slice of the source a running migration needs:
// a row-count snapshot and a deterministic paged scan.
type SourceReader interface {
	CountRows(ctx context.Context, table string) (int64, error)
	FetchPage(ctx context.Context, table string, orderBy []string, limit, offset int) ([]Row, error)
}

// NewReader binds a source engine to an open connection, yielding the
// reader the executor consumes.
func NewReader(src SourceDB, db *sql.DB) SourceReader {
	return &sqlReader{src: src, db: db}
}

type sqlReader struct {
	src SourceDB
	db  *sql.DB
}

func (r *sqlReader) CountRows(ctx context.Context, table string) (int64, error) {
	return r.src.CountRows(ctx, r.db, table)
}

func (r *sqlReader) FetchPage(ctx context.Context, table string, orderBy []string, limit, offset int) ([]Row, error) {
	return r.src.FetchPage(ctx, r.db, table, orderBy, limit, offset)
}

// Migrator executes batch migrations against one source reader and one
// target. A Migrator owns no state of its own; every run's state lives in
// the run loop.
type Migrator struct {
	Source SourceReader
	Target Target

	// Progress, when set, observes each committed batch.
	Progress func(Progress)
}

// runState is the executor's position in the batch loop. The loop is an
// explicit machine so abort points and the cancellation checkpoint are a
// stated contract rather than an implicit property of a for loop.
type runState int

const (
	stateIdle runState = iota
	statePaging
	stateConverting
	stateValidating
	stateCommitting
	stateDone
	stateAborted
)

type indexedDoc struct {
	row int64 // index in full-table scan order
	doc Document
}

// Run migrates one table. Paging, conversion, validation, and commit for a
// batch happen strictly sequentially; the next page is not fetched until
// the current batch's commit finishes. Cancellation is honored only
// between batches — an in-flight batch always runs to completion, and
// nothing already committed is rolled back.
//
// Fatal errors (*ConfigurationError before any row is read, count/page
// query failures, *CommitError) abort the run; the returned result carries
// everything completed up to that point. Per-document failures never abort:
// they accumulate in the result's Failures.
func (m *Migrator) Run(ctx context.Context, spec MigrationSpec) (*MigrationResult, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	res := &MigrationResult{
		Table:      spec.Table,
		Collection: spec.Collection,
	}
	if res.Collection == "" {
		res.Collection = strings.ReplaceAll(spec.Table, ".", "_")
	}

	idTarget := ""
	if spec.IDField != "" {
		for _, fm := range spec.Mapping {
			if fm.SourceColumn == spec.IDField {
				idTarget = fm.TargetName
				break
			}
		}
	}

	var (
		state  = stateIdle
		offset int64
		batch  []Row
		docs   []indexedDoc
		valid  []indexedDoc
		runErr error
	)

	abort := func(err error) {
		runErr = err
		state = stateAborted
	}

	for {
		switch state {
		case stateIdle:
			total, err := m.Source.CountRows(ctx, spec.Table)
			if err != nil {
				abort(fmt.Errorf("count rows for %s: %w", spec.Table, err))
				continue
			}
			res.TotalRows = total
			state = statePaging

		case statePaging:
			// The only cancellation checkpoint: between the previous commit
			// and the next fetch.
			if err := ctx.Err(); err != nil {
				abort(err)
				continue
			}
			rows, err := m.Source.FetchPage(ctx, spec.Table, spec.OrderBy, spec.BatchSize, int(offset))
			if err != nil {
				abort(fmt.Errorf("fetch page for %s at offset %d: %w", spec.Table, offset, err))
				continue
			}
			if len(rows) == 0 {
				state = stateDone
				continue
			}
			batch = rows
			state = stateConverting

		case stateConverting:
			docs = docs[:0]
			for i, row := range batch {
				rowIndex := offset + int64(i)
				doc, err := convertRow(row, spec.Mapping, spec.Strict)
				if err != nil {
					res.Failures = append(res.Failures, RowFailure{RowIndex: rowIndex, Reason: err.Error()})
					continue
				}
				if idTarget != "" {
					doc["_id"] = doc[idTarget]
				}
				docs = append(docs, indexedDoc{row: rowIndex, doc: doc})
			}
			state = stateValidating

		case stateValidating:
			valid = valid[:0]
			for _, d := range docs {
				if err := m.Target.ValidateDocument(d.doc); err != nil {
					res.Failures = append(res.Failures, RowFailure{RowIndex: d.row, Reason: err.Error()})
					continue
				}
				valid = append(valid, d)
			}
			state = stateCommitting

		case stateCommitting:
			if len(valid) > 0 {
				payload := make([]Document, len(valid))
				for i, d := range valid {
					payload[i] = d.doc
				}
				var err error
				if spec.Upsert && hasIdentifier(payload) {
					err = m.Target.ReplaceMany(ctx, res.Collection, payload)
				} else {
					err = m.Target.InsertMany(ctx, res.Collection, payload)
				}
				if err != nil {
					abort(&CommitError{
						Table:     spec.Table,
						Offset:    offset,
						Processed: res.Processed,
						Total:     res.TotalRows,
						Err:       err,
					})
					continue
				}
				res.Processed += int64(len(payload))
			}
			offset += int64(spec.BatchSize)
			res.Batches++
			if m.Progress != nil {
				m.Progress(Progress{Table: spec.Table, Processed: res.Processed, Total: res.TotalRows})
			}
			state = statePaging

		case stateDone:
			return res, nil

		case stateAborted:
			return res, runErr
		}
	}
}

// Preview converts up to n rows from the head of the table without writing
// anything, so operators can review the converted shape (including
// silently-nulled fields) before committing to a run.
func (m *Migrator) Preview(ctx context.Context, spec MigrationSpec, n int) ([]Document, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 5
	}
	rows, err := m.Source.FetchPage(ctx, spec.Table, spec.OrderBy, n, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch preview for %s: %w", spec.Table, err)
	}
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := convertRow(row, spec.Mapping, false)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// hasIdentifier mirrors the upsert precondition: the surviving batch
// carries identifiers when its first document does.
func hasIdentifier(docs []Document) bool {
	if len(docs) == 0 {
		return false
	}
	_, ok := docs[0]["_id"]
	return ok
}

func validateSpec(spec MigrationSpec) error {
	if strings.TrimSpace(spec.Table) == "" {
		return &ConfigurationError{Reason: "no source table selected"}
	}
	if spec.BatchSize <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("batch size must be positive, got %d", spec.BatchSize)}
	}
	if len(spec.Mapping) == 0 {
		return &ConfigurationError{Reason: "empty field mapping"}
	}
	seen := make(map[string]bool, len(spec.Mapping))
	for _, fm := range spec.Mapping {
		if fm.TargetName == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("column %q has an empty target name", fm.SourceColumn)}
		}
		if seen[fm.TargetName] {
			return &ConfigurationError{Reason: fmt.Sprintf("duplicate target field %q in mapping", fm.TargetName)}
		}
		seen[fm.TargetName] = true
		if !fm.TargetType.Valid() {
			return &ConfigurationError{Reason: fmt.Sprintf("column %q: unknown target type %q", fm.SourceColumn, fm.TargetType)}
		}
	}
	if spec.IDField != "" {
		found := false
		for _, fm := range spec.Mapping {
			if fm.SourceColumn == spec.IDField {
				found = true
				break
			}
		}
		if !found {
			return &ConfigurationError{Reason: fmt.Sprintf("id_field %q is not a mapped source column", spec.IDField)}
		}
	}
	return nil
}
