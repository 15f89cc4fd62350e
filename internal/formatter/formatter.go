// Package formatter renders query results and schema details for terminal
// output.
package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/pgconvo/pgconvo/internal/schema"
	"github.com/pgconvo/pgconvo/internal/sqlexec"
)

const (
	defaultMaxRows      = 50
	defaultMaxCellWidth = 60
)

// Formatter handles terminal output formatting.
type Formatter struct {
	// MaxRows bounds how many rows FormatResult renders; the remainder is
	// reported as a count.
	MaxRows int
	// MaxCellWidth truncates long cell values.
	MaxCellWidth int
}

// New creates a formatter with the default display bounds.
func New() *Formatter {
	return &Formatter{MaxRows: defaultMaxRows, MaxCellWidth: defaultMaxCellWidth}
}

// FormatResult renders a successful execution as an aligned text table with
// a trailing row-count and timing line.
func (f *Formatter) FormatResult(result sqlexec.ExecutionResult) string {
	if len(result.Columns) == 0 || result.RowCount == 0 {
		return fmt.Sprintf("(no rows)  [%s]", formatDuration(result.Duration))
	}

	rows := result.Rows
	truncated := 0

	if f.MaxRows > 0 && len(rows) > f.MaxRows {
		truncated = len(rows) - f.MaxRows
		rows = rows[:f.MaxRows]
	}

	widths := make([]int, len(result.Columns))
	for i, column := range result.Columns {
		widths[i] = len(column)
	}

	cells := make([][]string, len(rows))

	for r, row := range rows {
		cells[r] = make([]string, len(result.Columns))
		for i, column := range result.Columns {
			value := f.formatValue(row[column])
			cells[r][i] = value

			if len(value) > widths[i] {
				widths[i] = len(value)
			}
		}
	}

	var b strings.Builder

	writeRow := func(values []string) {
		for i, value := range values {
			if i > 0 {
				b.WriteString("  ")
			}

			b.WriteString(value)
			b.WriteString(strings.Repeat(" ", widths[i]-len(value)))
		}

		b.WriteString("\n")
	}

	writeRow(result.Columns)

	for i, width := range widths {
		if i > 0 {
			b.WriteString("  ")
		}

		b.WriteString(strings.Repeat("-", width))
	}

	b.WriteString("\n")

	for _, row := range cells {
		writeRow(row)
	}

	if truncated > 0 {
		fmt.Fprintf(&b, "... %d more row(s)\n", truncated)
	}

	fmt.Fprintf(&b, "%d row(s)  [%s]", result.RowCount, formatDuration(result.Duration))

	return b.String()
}

// FormatTable renders one table's structure: columns with types and
// markers, then indexes and foreign keys.
func (f *Formatter) FormatTable(table *schema.TableNode) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s", table.QualifiedName())

	if table.Kind == schema.KindView {
		b.WriteString(" (view)")
	}

	if table.EstimatedRowCount > 0 {
		fmt.Fprintf(&b, "  ~%d rows", table.EstimatedRowCount)
	}

	b.WriteString("\n")

	if table.Comment != "" {
		fmt.Fprintf(&b, "  %s\n", table.Comment)
	}

	for _, column := range table.Columns {
		fmt.Fprintf(&b, "  %-30s %s", column.Name, column.DeclaredType)

		if column.IsPrimaryKey {
			b.WriteString("  PK")
		}

		if !column.Nullable {
			b.WriteString("  NOT NULL")
		}

		b.WriteString("\n")
	}

	for _, edge := range table.OutgoingRefs {
		fmt.Fprintf(&b, "  FK %s -> %s.%s.%s\n",
			edge.Column, edge.ReferencedSchema, edge.ReferencedTable, edge.ReferencedColumn)
	}

	for _, index := range table.Indexes {
		marker := ""
		if index.IsUnique {
			marker = " unique"
		}

		fmt.Fprintf(&b, "  index %s (%s)%s\n", index.Name, strings.Join(index.Columns, ", "), marker)
	}

	return strings.TrimRight(b.String(), "\n")
}

func (f *Formatter) formatValue(value any) string {
	var text string

	switch v := value.(type) {
	case nil:
		return "NULL"
	case time.Time:
		text = v.Format(time.RFC3339)
	case float64:
		text = fmt.Sprintf("%g", v)
	default:
		text = fmt.Sprintf("%v", v)
	}

	text = strings.ReplaceAll(text, "\n", " ")

	if f.MaxCellWidth > 0 && len(text) > f.MaxCellWidth {
		text = text[:f.MaxCellWidth-3] + "..."
	}

	return text
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	return d.Round(10 * time.Millisecond).String()
}
