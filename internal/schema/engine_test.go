package schema

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgconvo/pgconvo/internal/db"
	pgcerrors "github.com/pgconvo/pgconvo/internal/errors"
)

// fakeQuerier serves canned catalog rows, dispatching on a distinctive
// fragment of each catalog query.
type fakeQuerier struct {
	results map[string]*db.QueryResult
	failOn  string
}

func (f *fakeQuerier) Query(_ context.Context, query string, _ ...any) (*db.QueryResult, error) {
	for fragment, result := range f.results {
		if strings.Contains(query, fragment) {
			if f.failOn == fragment {
				return nil, errors.New("connection reset")
			}

			return result, nil
		}
	}

	return &db.QueryResult{}, nil
}

func (f *fakeQuerier) ReadOnlyQuery(ctx context.Context, query string, args ...any) (*db.QueryResult, error) {
	return f.Query(ctx, query, args...)
}

type fakeInfo struct{}

func (fakeInfo) ServerInfo(context.Context) (string, string, error) {
	return "shopdb", "PostgreSQL 16.3", nil
}

// fixtureQuerier describes a small shop schema: customers, orders (FK to
// customers), order_items (FK to orders), plus a view.
func fixtureQuerier() *fakeQuerier {
	return &fakeQuerier{results: map[string]*db.QueryResult{
		"information_schema.tables": {Rows: []map[string]any{
			{"table_schema": "public", "table_name": "customers", "table_type": "BASE TABLE", "estimated_rows": int64(1200), "table_comment": "registered customers"},
			{"table_schema": "public", "table_name": "orders", "table_type": "BASE TABLE", "estimated_rows": int64(5400), "table_comment": nil},
			{"table_schema": "public", "table_name": "order_items", "table_type": "BASE TABLE", "estimated_rows": int64(0), "table_comment": nil},
			{"table_schema": "public", "table_name": "recent_orders", "table_type": "VIEW", "estimated_rows": int64(0), "table_comment": nil},
		}},
		"information_schema.columns": {Rows: []map[string]any{
			{"table_schema": "public", "table_name": "customers", "column_name": "id", "data_type": "integer", "udt_name": "int4", "character_maximum_length": nil, "is_nullable": "NO", "column_default": "nextval('customers_id_seq')", "column_comment": nil},
			{"table_schema": "public", "table_name": "customers", "column_name": "name", "data_type": "character varying", "udt_name": "varchar", "character_maximum_length": int64(255), "is_nullable": "NO", "column_default": nil, "column_comment": nil},
			{"table_schema": "public", "table_name": "customers", "column_name": "created_at", "data_type": "timestamp with time zone", "udt_name": "timestamptz", "character_maximum_length": nil, "is_nullable": "YES", "column_default": "now()", "column_comment": nil},
			{"table_schema": "public", "table_name": "orders", "column_name": "id", "data_type": "integer", "udt_name": "int4", "character_maximum_length": nil, "is_nullable": "NO", "column_default": nil, "column_comment": nil},
			{"table_schema": "public", "table_name": "orders", "column_name": "customer_id", "data_type": "integer", "udt_name": "int4", "character_maximum_length": nil, "is_nullable": "NO", "column_default": nil, "column_comment": nil},
			{"table_schema": "public", "table_name": "order_items", "column_name": "id", "data_type": "integer", "udt_name": "int4", "character_maximum_length": nil, "is_nullable": "NO", "column_default": nil, "column_comment": nil},
			{"table_schema": "public", "table_name": "order_items", "column_name": "order_id", "data_type": "integer", "udt_name": "int4", "character_maximum_length": nil, "is_nullable": "NO", "column_default": nil, "column_comment": nil},
			{"table_schema": "public", "table_name": "order_items", "column_name": "tags", "data_type": "ARRAY", "udt_name": "_text", "character_maximum_length": nil, "is_nullable": "YES", "column_default": nil, "column_comment": nil},
			{"table_schema": "public", "table_name": "recent_orders", "column_name": "id", "data_type": "integer", "udt_name": "int4", "character_maximum_length": nil, "is_nullable": "YES", "column_default": nil, "column_comment": nil},
		}},
		"PRIMARY KEY": {Rows: []map[string]any{
			{"table_schema": "public", "table_name": "customers", "column_name": "id"},
			{"table_schema": "public", "table_name": "orders", "column_name": "id"},
			{"table_schema": "public", "table_name": "order_items", "column_name": "id"},
		}},
		"FOREIGN KEY": {Rows: []map[string]any{
			{"table_schema": "public", "table_name": "orders", "column_name": "customer_id", "referenced_schema": "public", "referenced_table": "customers", "referenced_column": "id"},
			{"table_schema": "public", "table_name": "order_items", "column_name": "order_id", "referenced_schema": "public", "referenced_table": "orders", "referenced_column": "id"},
		}},
		"pg_index": {Rows: []map[string]any{
			{"table_schema": "public", "table_name": "customers", "index_name": "customers_pkey", "index_def": "CREATE UNIQUE INDEX customers_pkey ON public.customers USING btree (id)", "indisunique": true, "indisprimary": true},
			{"table_schema": "public", "table_name": "orders", "index_name": "orders_customer_idx", "index_def": "CREATE INDEX orders_customer_idx ON public.orders USING btree (customer_id, id DESC)", "indisunique": false, "indisprimary": false},
		}},
	}}
}

func mapFixture(t *testing.T) *Engine {
	t.Helper()

	engine := NewEngine(fixtureQuerier(), fakeInfo{})
	_, err := engine.MapDatabase(context.Background())
	require.NoError(t, err)

	return engine
}

func TestMapDatabaseBuildsGraph(t *testing.T) {
	engine := mapFixture(t)
	graph := engine.Graph()
	require.NotNil(t, graph)

	assert.Equal(t, "shopdb", graph.DatabaseName)
	assert.Contains(t, graph.EngineVersion, "PostgreSQL")
	assert.Equal(t, []string{"public"}, graph.SchemaNames)
	assert.Len(t, graph.Tables, 4)
	assert.False(t, graph.MappedAt.IsZero())

	customers := engine.GetTable("public", "customers")
	require.NotNil(t, customers)
	assert.Equal(t, KindTable, customers.Kind)
	assert.Equal(t, int64(1200), customers.EstimatedRowCount)
	assert.Equal(t, "registered customers", customers.Comment)
	assert.Equal(t, []string{"id"}, customers.PrimaryKeyColumns())

	view := engine.GetTable("public", "recent_orders")
	require.NotNil(t, view)
	assert.Equal(t, KindView, view.Kind)
}

func TestMapDatabaseNormalizesTypes(t *testing.T) {
	engine := mapFixture(t)

	customers := engine.GetTable("public", "customers")
	require.NotNil(t, customers)
	assert.Equal(t, "varchar(255)", customers.Columns[1].DeclaredType)
	assert.Equal(t, "timestamptz", customers.Columns[2].DeclaredType)

	items := engine.GetTable("public", "order_items")
	require.NotNil(t, items)
	assert.Equal(t, "text[]", items.Columns[2].DeclaredType)
}

func TestMapDatabaseMirrorInvariant(t *testing.T) {
	engine := mapFixture(t)
	graph := engine.Graph()

	for _, table := range graph.Tables {
		for _, out := range table.OutgoingRefs {
			target := engine.GetTable(out.ReferencedSchema, out.ReferencedTable)
			require.NotNil(t, target, "outgoing edge points at missing table")

			mirrored := false
			for _, in := range target.IncomingRefs {
				if in.ReferencedSchema == table.Schema &&
					in.ReferencedTable == table.Name &&
					in.ReferencedColumn == out.Column &&
					in.Column == out.ReferencedColumn {
					mirrored = true
				}
			}

			assert.True(t, mirrored,
				"no incoming mirror on %s for %s.%s", target.QualifiedName(), table.Name, out.Column)
		}
	}
}

func TestMapDatabaseIndexes(t *testing.T) {
	engine := mapFixture(t)

	customers := engine.GetTable("public", "customers")
	require.Len(t, customers.Indexes, 1)
	assert.True(t, customers.Indexes[0].IsPrimary)
	assert.True(t, customers.Indexes[0].IsUnique)
	assert.Equal(t, []string{"id"}, customers.Indexes[0].Columns)

	orders := engine.GetTable("public", "orders")
	require.Len(t, orders.Indexes, 1)
	assert.Equal(t, []string{"customer_id", "id"}, orders.Indexes[0].Columns)
}

func TestMapDatabaseConnectivityError(t *testing.T) {
	querier := fixtureQuerier()
	querier.failOn = "information_schema.tables"

	engine := NewEngine(querier, fakeInfo{})
	_, err := engine.MapDatabase(context.Background())

	require.Error(t, err)
	assert.True(t, pgcerrors.IsType(err, pgcerrors.ErrTypeConnectivity))
	assert.Nil(t, engine.Graph())
}

func TestMapDatabaseReplacesGraph(t *testing.T) {
	engine := mapFixture(t)
	first := engine.Graph()

	_, err := engine.MapDatabase(context.Background())
	require.NoError(t, err)

	second := engine.Graph()
	assert.NotSame(t, first, second)
	// The old graph stays intact for readers holding it.
	assert.Len(t, first.Tables, 4)
}

func TestSearchTables(t *testing.T) {
	engine := mapFixture(t)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"by table name", "order", []string{"orders", "order_items", "recent_orders"}},
		{"case insensitive", "CUSTOMERS", []string{"customers"}},
		{"by column name", "customer_id", []string{"orders"}},
		{"by schema name matches all", "public", []string{"customers", "orders", "order_items", "recent_orders"}},
		{"no match", "warehouse", nil},
		{"blank query", "  ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, table := range engine.SearchTables(tt.query) {
				got = append(got, table.Name)
			}

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindRelatedTables(t *testing.T) {
	engine := mapFixture(t)

	// Depth 1 from orders: customers (outgoing) and order_items (incoming).
	depth1 := engine.FindRelatedTables("public", "orders", 1)
	names := tableNames(depth1)
	assert.ElementsMatch(t, []string{"customers", "order_items"}, names)

	// Depth 2 from customers reaches order_items through orders.
	depth2 := engine.FindRelatedTables("public", "customers", 2)
	assert.ElementsMatch(t, []string{"orders", "order_items"}, tableNames(depth2))

	// The start table is never included and nothing repeats.
	for _, table := range depth2 {
		assert.NotEqual(t, "customers", table.Name)
	}
	assert.Len(t, uniqueNames(depth2), len(depth2))
}

func TestFindRelatedTablesUnknownStart(t *testing.T) {
	engine := mapFixture(t)
	assert.Nil(t, engine.FindRelatedTables("public", "missing", 2))
}

func TestParseIndexColumns(t *testing.T) {
	tests := []struct {
		name     string
		indexDef string
		want     []string
	}{
		{
			"single column",
			"CREATE UNIQUE INDEX users_pkey ON public.users USING btree (id)",
			[]string{"id"},
		},
		{
			"multiple columns with ordering",
			"CREATE INDEX orders_idx ON public.orders USING btree (customer_id, created_at DESC)",
			[]string{"customer_id", "created_at"},
		},
		{
			"quoted identifier",
			`CREATE INDEX camel_idx ON public.t USING btree ("userId")`,
			[]string{"userId"},
		},
		{
			"no parenthesized list",
			"CREATE INDEX broken ON public.t",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseIndexColumns(tt.indexDef))
		})
	}
}

func TestContextSummary(t *testing.T) {
	engine := mapFixture(t)
	summary := engine.ContextSummary()

	assert.Contains(t, summary, "public.customers (id integer [PK] [NOT NULL], name varchar(255) [NOT NULL], created_at timestamptz)")
	assert.Contains(t, summary, "[~1200 rows]")
	assert.Contains(t, summary, "customer_id integer [FK→public.customers.id] [NOT NULL]")
	assert.Contains(t, summary, "  referenced by public.orders.customer_id")
	assert.Contains(t, summary, "public.recent_orders (id integer) [VIEW]")

	// Deterministic output.
	assert.Equal(t, summary, engine.ContextSummary())
}

func TestContextSummaryBeforeMapping(t *testing.T) {
	engine := NewEngine(fixtureQuerier(), fakeInfo{})
	assert.Empty(t, engine.ContextSummary())
}

func tableNames(tables []*TableNode) []string {
	var names []string
	for _, t := range tables {
		names = append(names, t.Name)
	}

	return names
}

func uniqueNames(tables []*TableNode) map[string]bool {
	seen := make(map[string]bool)
	for _, t := range tables {
		seen[t.Name] = true
	}

	return seen
}
