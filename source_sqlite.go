package mongoferry

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

type sqliteSourceDB struct{}

func (s *sqliteSourceDB) Name() string { return "SQLite" }

func (s *sqliteSourceDB) OpenDB(dsn string) (*sql.DB, error) {
	uri, err := sqliteReadOnlyURI(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// sqliteReadOnlyURI normalizes a path or file: URI into a read-only
// connection URI so migration can never mutate the source file.
func sqliteReadOnlyURI(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("sqlite dsn is empty")
	}
	path := dsn
	query := "mode=ro"
	if strings.HasPrefix(dsn, "file:") {
		trimmed := strings.TrimPrefix(dsn, "file:")
		if idx := strings.IndexByte(trimmed, '?'); idx >= 0 {
			path = trimmed[:idx]
			if params := trimmed[idx+1:]; params != "" {
				query = params + "&mode=ro"
			}
		} else {
			path = trimmed
		}
	}
	return "file:" + path + "?" + query, nil
}

func (s *sqliteSourceDB) ExtractDBName(dsn string) (string, error) {
	path := dsn
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err == nil {
			path = u.Path
			if path == "" {
				path = u.Opaque
			}
		} else {
			path = strings.TrimPrefix(dsn, "file:")
			if idx := strings.IndexByte(path, '?'); idx >= 0 {
				path = path[:idx]
			}
		}
	}
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	if base == "" {
		return "sqlite", nil
	}
	return base, nil
}

func (s *sqliteSourceDB) ListTables(ctx context.Context, db *sql.DB, _ string) ([]string, error) {
	return collectStringRows(ctx, db,
		`SELECT name FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		 ORDER BY name`,
	)
}

func (s *sqliteSourceDB) ListColumns(ctx context.Context, db *sql.DB, _ string, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", s.QuoteIdentifier(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var cid, notnull, pk int
		var name, colType string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, Column{
			Name:       name,
			DataType:   sqliteBaseType(colType),
			Nullable:   notnull == 0,
			OrdinalPos: cid + 1,
		})
	}
	return cols, rows.Err()
}

// sqliteBaseType strips length suffixes from a declared type
// ("VARCHAR(255)" → "varchar"). SQLite keeps declarations verbatim, so the
// catalog-reported type is whatever the CREATE TABLE said.
func sqliteBaseType(declared string) string {
	t := strings.ToLower(strings.TrimSpace(declared))
	if idx := strings.IndexByte(t, '('); idx >= 0 {
		t = strings.TrimSpace(t[:idx])
	}
	return t
}

func (s *sqliteSourceDB) ListForeignKeys(ctx context.Context, db *sql.DB, _ string, table string) ([]ForeignKey, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", s.QuoteIdentifier(table)))
	if err != nil {
		return nil, err
	}

	type rawFK struct {
		parentTable string
		childCol    string
		parentCol   sql.NullString
	}
	var raw []rawFK
	for rows.Next() {
		var id, seq int
		var parentTable, from, onUpdate, onDelete, match string
		var to sql.NullString
		if err := rows.Scan(&id, &seq, &parentTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			rows.Close()
			return nil, err
		}
		raw = append(raw, rawFK{parentTable: parentTable, childCol: from, parentCol: to})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var fks []ForeignKey
	for _, r := range raw {
		parentCol := r.parentCol.String
		if !r.parentCol.Valid {
			// Implicit reference to the parent's primary key.
			pk, err := s.PrimaryKeyColumns(ctx, db, "", r.parentTable)
			if err != nil {
				return nil, err
			}
			if len(pk) > 0 {
				parentCol = pk[0]
			} else {
				parentCol = "rowid"
			}
		}
		fks = append(fks, ForeignKey{
			ChildTable:   table,
			ChildColumn:  r.childCol,
			ParentTable:  r.parentTable,
			ParentColumn: parentCol,
		})
	}
	return fks, nil
}

func (s *sqliteSourceDB) PrimaryKeyColumns(ctx context.Context, db *sql.DB, _ string, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", s.QuoteIdentifier(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type pkCol struct {
		name string
		pos  int
	}
	var pkCols []pkCol
	for rows.Next() {
		var cid, notnull, pk int
		var name, colType string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		if pk > 0 {
			pkCols = append(pkCols, pkCol{name: name, pos: pk})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(pkCols, func(i, j int) bool { return pkCols[i].pos < pkCols[j].pos })
	var names []string
	for _, c := range pkCols {
		names = append(names, c.name)
	}
	return names, nil
}

func (s *sqliteSourceDB) CountRows(ctx context.Context, db *sql.DB, table string) (int64, error) {
	return countRows(ctx, db, s.QuoteIdentifier(table))
}

func (s *sqliteSourceDB) FetchPage(ctx context.Context, db *sql.DB, table string, orderBy []string, limit, offset int) ([]Row, error) {
	query := fmt.Sprintf("SELECT * FROM %s%s LIMIT ? OFFSET ?",
		s.QuoteIdentifier(table), orderByClause(s, orderBy))
	return fetchRows(ctx, db, query, limit, offset)
}

func (s *sqliteSourceDB) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
