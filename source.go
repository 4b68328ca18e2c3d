package mongoferry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SourceDB abstracts source database operations so the engine can migrate
// from multiple relational systems (MySQL, SQL Server, PostgreSQL, SQLite).
type SourceDB interface {
	// Name returns a human-readable engine name ("MySQL", "SQL Server", ...).
	Name() string

	// OpenDB opens a read-oriented connection with driver-specific options.
	OpenDB(dsn string) (*sql.DB, error)

	// ExtractDBName extracts a logical database name from the DSN, used for
	// catalog queries and logging.
	ExtractDBName(dsn string) (string, error)

	// ListTables returns base-table identifiers in a stable order.
	ListTables(ctx context.Context, db *sql.DB, dbName string) ([]string, error)

	// ListColumns returns column metadata for one table, in ordinal order.
	ListColumns(ctx context.Context, db *sql.DB, dbName, table string) ([]Column, error)

	// ListForeignKeys returns the foreign-key edges whose child is table.
	ListForeignKeys(ctx context.Context, db *sql.DB, dbName, table string) ([]ForeignKey, error)

	// PrimaryKeyColumns returns the primary-key column names in key order,
	// or nil when the table has no primary key.
	PrimaryKeyColumns(ctx context.Context, db *sql.DB, dbName, table string) ([]string, error)

	// CountRows returns the table's current row count. The executor treats
	// this as a point-in-time snapshot; concurrent writers can make it stale.
	CountRows(ctx context.Context, db *sql.DB, table string) (int64, error)

	// FetchPage returns up to limit rows starting at offset, ordered by the
	// given columns so that successive pages neither skip nor repeat rows.
	FetchPage(ctx context.Context, db *sql.DB, table string, orderBy []string, limit, offset int) ([]Row, error)

	// QuoteIdentifier quotes a source identifier for use in queries.
	QuoteIdentifier(name string) string
}

// NewSourceDB returns a SourceDB implementation for the given engine type.
func NewSourceDB(sourceType string) (SourceDB, error) {
	switch sourceType {
	case "mysql":
		return &mysqlSourceDB{}, nil
	case "sqlserver":
		return &sqlserverSourceDB{}, nil
	case "postgres":
		return &postgresSourceDB{}, nil
	case "sqlite":
		return &sqliteSourceDB{}, nil
	default:
		return nil, fmt.Errorf("unsupported source type %q (must be mysql, sqlserver, postgres or sqlite)", sourceType)
	}
}

// IntrospectTables lists the source's base tables, wrapping any catalog
// failure in a fatal *SchemaIntrospectionError.
func IntrospectTables(ctx context.Context, src SourceDB, db *sql.DB, dbName string) ([]string, error) {
	tables, err := src.ListTables(ctx, db, dbName)
	if err != nil {
		return nil, &SchemaIntrospectionError{Op: "list tables", Err: err}
	}
	return tables, nil
}

// IntrospectTable assembles the full definition of one table: columns,
// primary key, and foreign-key edges. Any catalog failure surfaces as a
// fatal *SchemaIntrospectionError.
func IntrospectTable(ctx context.Context, src SourceDB, db *sql.DB, dbName, table string) (*Table, error) {
	cols, err := src.ListColumns(ctx, db, dbName, table)
	if err != nil {
		return nil, &SchemaIntrospectionError{Op: "list columns", Table: table, Err: err}
	}
	if len(cols) == 0 {
		return nil, &SchemaIntrospectionError{Op: "list columns", Table: table, Err: fmt.Errorf("no columns found")}
	}
	pk, err := src.PrimaryKeyColumns(ctx, db, dbName, table)
	if err != nil {
		return nil, &SchemaIntrospectionError{Op: "primary key", Table: table, Err: err}
	}
	fks, err := src.ListForeignKeys(ctx, db, dbName, table)
	if err != nil {
		return nil, &SchemaIntrospectionError{Op: "list foreign keys", Table: table, Err: err}
	}
	return &Table{Name: table, Columns: cols, PrimaryKey: pk, ForeignKeys: fks}, nil
}

// DefaultOrderBy picks the deterministic paging order for a table: the
// primary-key columns when introspection found any, otherwise the first
// column by ordinal position.
func DefaultOrderBy(t *Table) []string {
	if len(t.PrimaryKey) > 0 {
		return t.PrimaryKey
	}
	if len(t.Columns) > 0 {
		return []string{t.Columns[0].Name}
	}
	return nil
}

// fetchRows runs a query and returns every result row as a column → value
// map, using the driver's native Go value for each cell.
func fetchRows(ctx context.Context, db *sql.DB, query string, args ...any) ([]Row, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// countRows is the shared row-count implementation; table must already be
// quoted by the calling engine.
func countRows(ctx context.Context, db *sql.DB, quotedTable string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quotedTable).Scan(&n)
	return n, err
}

// orderByClause renders "ORDER BY a, b" with engine quoting, or "" when no
// order columns are given.
func orderByClause(src SourceDB, orderBy []string) string {
	if len(orderBy) == 0 {
		return ""
	}
	quoted := make([]string, len(orderBy))
	for i, c := range orderBy {
		quoted[i] = src.QuoteIdentifier(c)
	}
	return " ORDER BY " + strings.Join(quoted, ", ")
}

// quoteQualified quotes a possibly schema-qualified identifier part by part
// ("dbo.Users" → "[dbo].[Users]" on SQL Server).
func quoteQualified(src SourceDB, name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = src.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// collectStringRows collects single-column string results.
func collectStringRows(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// splitQualified separates an optionally schema-qualified table name into
// its schema and bare-table parts.
func splitQualified(table string) (schema, name string) {
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}
