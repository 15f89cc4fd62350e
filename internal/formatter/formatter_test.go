package formatter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pgconvo/pgconvo/internal/schema"
	"github.com/pgconvo/pgconvo/internal/sqlexec"
)

func TestFormatResultTable(t *testing.T) {
	f := New()

	out := f.FormatResult(sqlexec.ExecutionResult{
		Columns:  []string{"id", "name"},
		Rows:     []map[string]any{{"id": int64(1), "name": "alpha"}, {"id": int64(2), "name": nil}},
		RowCount: 2,
		Duration: 7 * time.Millisecond,
	})

	lines := strings.Split(out, "\n")
	assert.Equal(t, "id  name ", lines[0])
	assert.Equal(t, "--  -----", lines[1])
	assert.Contains(t, lines[2], "alpha")
	assert.Contains(t, lines[3], "NULL")
	assert.Contains(t, lines[4], "2 row(s)")
	assert.Contains(t, lines[4], "[7ms]")
}

func TestFormatResultEmpty(t *testing.T) {
	out := New().FormatResult(sqlexec.ExecutionResult{
		Columns:  []string{"id"},
		RowCount: 0,
		Duration: time.Millisecond,
	})

	assert.Contains(t, out, "(no rows)")
}

func TestFormatResultTruncatesRows(t *testing.T) {
	f := New()
	f.MaxRows = 2

	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"n": int64(i)}
	}

	out := f.FormatResult(sqlexec.ExecutionResult{
		Columns:  []string{"n"},
		Rows:     rows,
		RowCount: 5,
	})

	assert.Contains(t, out, "... 3 more row(s)")
	assert.Contains(t, out, "5 row(s)")
}

func TestFormatValueTruncatesWideCells(t *testing.T) {
	f := New()
	f.MaxCellWidth = 10

	got := f.formatValue(strings.Repeat("x", 40))
	assert.Equal(t, "xxxxxxx...", got)
	assert.Len(t, got, 10)
}

func TestFormatTable(t *testing.T) {
	table := &schema.TableNode{
		Schema: "public",
		Name:   "orders",
		Kind:   schema.KindTable,
		Columns: []schema.ColumnNode{
			{Name: "id", DeclaredType: "bigint", IsPrimaryKey: true},
			{Name: "customer_id", DeclaredType: "bigint", Nullable: true},
		},
		OutgoingRefs: []schema.ForeignKeyEdge{
			{Column: "customer_id", ReferencedSchema: "public", ReferencedTable: "customers", ReferencedColumn: "id"},
		},
		Indexes: []schema.IndexNode{
			{Name: "orders_pkey", Columns: []string{"id"}, IsUnique: true, IsPrimary: true},
		},
		EstimatedRowCount: 120,
	}

	out := New().FormatTable(table)

	assert.Contains(t, out, "public.orders")
	assert.Contains(t, out, "~120 rows")
	assert.Contains(t, out, "PK")
	assert.Contains(t, out, "FK customer_id -> public.customers.id")
	assert.Contains(t, out, "index orders_pkey (id) unique")
}
