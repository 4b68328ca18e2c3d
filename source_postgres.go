package mongoferry

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

type postgresSourceDB struct{}

func (p *postgresSourceDB) Name() string { return "PostgreSQL" }

func (p *postgresSourceDB) OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

func (p *postgresSourceDB) ExtractDBName(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse postgres dsn: %w", err)
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "", fmt.Errorf("postgres dsn has no database name")
	}
	return name, nil
}

// ListTables returns schema-qualified names for every non-system schema.
func (p *postgresSourceDB) ListTables(ctx context.Context, db *sql.DB, _ string) ([]string, error) {
	return collectStringRows(ctx, db,
		`SELECT table_schema || '.' || table_name
		 FROM information_schema.tables
		 WHERE table_type = 'BASE TABLE'
		   AND table_schema NOT IN ('pg_catalog', 'information_schema')
		 ORDER BY table_schema, table_name`,
	)
}

func (p *postgresSourceDB) ListColumns(ctx context.Context, db *sql.DB, _ string, table string) ([]Column, error) {
	schema, name := splitQualified(table)
	if schema == "" {
		schema = "public"
	}
	rows, err := db.QueryContext(ctx,
		`SELECT column_name, data_type, is_nullable, ordinal_position
		 FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`,
		schema, name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var nullable string
		if err := rows.Scan(&c.Name, &c.DataType, &nullable, &c.OrdinalPos); err != nil {
			return nil, err
		}
		c.DataType = strings.ToLower(c.DataType)
		c.Nullable = nullable == "YES"
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (p *postgresSourceDB) ListForeignKeys(ctx context.Context, db *sql.DB, _ string, table string) ([]ForeignKey, error) {
	schema, name := splitQualified(table)
	if schema == "" {
		schema = "public"
	}
	rows, err := db.QueryContext(ctx,
		`SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		 JOIN information_schema.constraint_column_usage ccu
		   ON tc.constraint_name = ccu.constraint_name
		  AND tc.table_schema = ccu.table_schema
		 WHERE tc.constraint_type = 'FOREIGN KEY'
		   AND tc.table_schema = $1 AND tc.table_name = $2
		 ORDER BY tc.constraint_name`,
		schema, name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.ChildTable, &fk.ChildColumn, &fk.ParentTable, &fk.ParentColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (p *postgresSourceDB) PrimaryKeyColumns(ctx context.Context, db *sql.DB, _ string, table string) ([]string, error) {
	schema, name := splitQualified(table)
	if schema == "" {
		schema = "public"
	}
	return collectStringRows(ctx, db,
		`SELECT kcu.column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		 WHERE tc.constraint_type = 'PRIMARY KEY'
		   AND tc.table_schema = $1 AND tc.table_name = $2
		 ORDER BY kcu.ordinal_position`,
		schema, name,
	)
}

func (p *postgresSourceDB) CountRows(ctx context.Context, db *sql.DB, table string) (int64, error) {
	return countRows(ctx, db, quoteQualified(p, table))
}

func (p *postgresSourceDB) FetchPage(ctx context.Context, db *sql.DB, table string, orderBy []string, limit, offset int) ([]Row, error) {
	query := fmt.Sprintf("SELECT * FROM %s%s LIMIT $1 OFFSET $2",
		quoteQualified(p, table), orderByClause(p, orderBy))
	return fetchRows(ctx, db, query, limit, offset)
}

func (p *postgresSourceDB) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
