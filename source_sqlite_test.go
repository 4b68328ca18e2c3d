package mongoferry

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
)

// newSQLiteFixture builds a small two-table database on disk and returns
// its path. The orders→customers foreign key deliberately omits the parent
// column so the implicit-primary-key resolution path is exercised.
func newSQLiteFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE customers (
			id INTEGER PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			balance DECIMAL(10,2)
		)`,
		`CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			customer_id INTEGER REFERENCES customers,
			placed_at DATETIME
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("create fixture schema: %v", err)
		}
	}
	for i := 1; i <= 7; i++ {
		if _, err := db.Exec(
			`INSERT INTO customers (id, name, balance) VALUES (?, ?, ?)`,
			i, fmt.Sprintf("customer-%d", i), float64(i)*10.5,
		); err != nil {
			t.Fatalf("insert fixture row: %v", err)
		}
	}
	return path
}

func openSQLiteFixture(t *testing.T) (SourceDB, *sql.DB) {
	t.Helper()
	src := &sqliteSourceDB{}
	db, err := src.OpenDB(newSQLiteFixture(t))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return src, db
}

func TestSQLiteListTables(t *testing.T) {
	src, db := openSQLiteFixture(t)
	tables, err := src.ListTables(context.Background(), db, "")
	if err != nil {
		t.Fatalf("ListTables: %v", err)
	}
	if len(tables) != 2 || tables[0] != "customers" || tables[1] != "orders" {
		t.Errorf("ListTables = %v, want [customers orders]", tables)
	}
}

func TestSQLiteIntrospectTable(t *testing.T) {
	src, db := openSQLiteFixture(t)
	tbl, err := IntrospectTable(context.Background(), src, db, "", "customers")
	if err != nil {
		t.Fatalf("IntrospectTable: %v", err)
	}

	want := []struct {
		name, dataType string
		nullable       bool
	}{
		{"id", "integer", true}, // INTEGER PRIMARY KEY admits null-as-rowid
		{"name", "varchar", false},
		{"balance", "decimal", true},
	}
	if len(tbl.Columns) != len(want) {
		t.Fatalf("Columns = %+v, want %d columns", tbl.Columns, len(want))
	}
	for i, w := range want {
		c := tbl.Columns[i]
		if c.Name != w.name || c.DataType != w.dataType || c.Nullable != w.nullable {
			t.Errorf("column %d = %+v, want %+v", i, c, w)
		}
		if c.OrdinalPos != i+1 {
			t.Errorf("column %s OrdinalPos = %d, want %d", c.Name, c.OrdinalPos, i+1)
		}
	}
	if len(tbl.PrimaryKey) != 1 || tbl.PrimaryKey[0] != "id" {
		t.Errorf("PrimaryKey = %v, want [id]", tbl.PrimaryKey)
	}

	if _, err := IntrospectTable(context.Background(), src, db, "", "missing"); err == nil {
		t.Error("IntrospectTable on absent table succeeded")
	}
}

func TestSQLiteForeignKeysImplicitParentColumn(t *testing.T) {
	src, db := openSQLiteFixture(t)
	fks, err := src.ListForeignKeys(context.Background(), db, "", "orders")
	if err != nil {
		t.Fatalf("ListForeignKeys: %v", err)
	}
	if len(fks) != 1 {
		t.Fatalf("ListForeignKeys = %+v, want one edge", fks)
	}
	fk := fks[0]
	if fk.ChildTable != "orders" || fk.ChildColumn != "customer_id" {
		t.Errorf("child side = %s.%s", fk.ChildTable, fk.ChildColumn)
	}
	// REFERENCES customers with no column: resolved to the parent's
	// primary key.
	if fk.ParentTable != "customers" || fk.ParentColumn != "id" {
		t.Errorf("parent side = %s.%s, want customers.id", fk.ParentTable, fk.ParentColumn)
	}
}

func TestSQLitePaging(t *testing.T) {
	src, db := openSQLiteFixture(t)
	ctx := context.Background()

	n, err := src.CountRows(ctx, db, "customers")
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if n != 7 {
		t.Fatalf("CountRows = %d, want 7", n)
	}

	var all []Row
	for offset := 0; ; offset += 3 {
		page, err := src.FetchPage(ctx, db, "customers", []string{"id"}, 3, offset)
		if err != nil {
			t.Fatalf("FetchPage offset %d: %v", offset, err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
	}
	if len(all) != 7 {
		t.Fatalf("paged scan yielded %d rows, want 7", len(all))
	}
	for i, row := range all {
		if id, ok := row["id"].(int64); !ok || id != int64(i+1) {
			t.Errorf("row %d id = %v, want %d", i, row["id"], i+1)
		}
	}
}

func TestSQLiteReadOnly(t *testing.T) {
	_, db := openSQLiteFixture(t)
	if _, err := db.Exec(`INSERT INTO customers (id, name) VALUES (99, 'x')`); err == nil {
		t.Error("write through the migration connection succeeded, want read-only failure")
	}
}

func TestSQLiteReadOnlyURI(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"shop.db", "file:shop.db?mode=ro"},
		{"/data/shop.db", "file:/data/shop.db?mode=ro"},
		{"file:shop.db", "file:shop.db?mode=ro"},
		{"file:shop.db?cache=shared", "file:shop.db?cache=shared&mode=ro"},
	}
	for _, tt := range tests {
		got, err := sqliteReadOnlyURI(tt.dsn)
		if err != nil {
			t.Errorf("sqliteReadOnlyURI(%q) error: %v", tt.dsn, err)
			continue
		}
		if got != tt.want {
			t.Errorf("sqliteReadOnlyURI(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
	if _, err := sqliteReadOnlyURI(""); err == nil {
		t.Error("sqliteReadOnlyURI(\"\") succeeded, want error")
	}
}

func TestSQLiteBaseType(t *testing.T) {
	tests := []struct{ declared, want string }{
		{"VARCHAR(255)", "varchar"},
		{"DECIMAL(10,2)", "decimal"},
		{"INTEGER", "integer"},
		{"datetime", "datetime"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sqliteBaseType(tt.declared); got != tt.want {
			t.Errorf("sqliteBaseType(%q) = %q, want %q", tt.declared, got, tt.want)
		}
	}
}

func TestSQLiteExtractDBName(t *testing.T) {
	src := &sqliteSourceDB{}
	tests := []struct{ dsn, want string }{
		{"/data/shop.db", "shop"},
		{"shop.db", "shop"},
		{"file:shop.db?mode=ro", "shop"},
	}
	for _, tt := range tests {
		got, err := src.ExtractDBName(tt.dsn)
		if err != nil {
			t.Errorf("ExtractDBName(%q) error: %v", tt.dsn, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractDBName(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

// End-to-end over a real source: introspect, resolve the default mapping,
// and run a full migration into an in-memory target.
func TestSQLiteMigrationEndToEnd(t *testing.T) {
	src, db := openSQLiteFixture(t)
	ctx := context.Background()

	tbl, err := IntrospectTable(ctx, src, db, "", "customers")
	if err != nil {
		t.Fatalf("IntrospectTable: %v", err)
	}
	mapping, err := ResolveMapping(tbl.Columns, nil)
	if err != nil {
		t.Fatalf("ResolveMapping: %v", err)
	}

	target := newFakeTarget()
	m := &Migrator{Source: NewReader(src, db), Target: target}
	res, err := m.Run(ctx, MigrationSpec{
		Table:     "customers",
		Mapping:   mapping,
		BatchSize: 3,
		IDField:   "id",
		Upsert:    true,
		OrderBy:   DefaultOrderBy(tbl),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processed != 7 || res.TotalRows != 7 || len(res.Failures) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(target.replaced) != 7 {
		t.Fatalf("target holds %d docs, want 7", len(target.replaced))
	}
	// "integer" resolves to int32, so the identifier converts with it.
	doc := target.replaced[int32(3)]
	if doc == nil {
		t.Fatalf("no document for id 3: %v", target.replaced)
	}
	if doc["name"] != "customer-3" {
		t.Errorf("doc.name = %v, want customer-3", doc["name"])
	}
}
