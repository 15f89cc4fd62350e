package schema

import (
	"fmt"
	"strings"
)

// ContextSummary renders the whole graph as the compact text block embedded
// in the model's system prompt. The output is deterministic: tables in graph
// order, columns in declaration order, one line per incoming reference. The
// model is prompted against this exact shape, so changes here change the
// grounding contract.
func (e *Engine) ContextSummary() string {
	graph := e.Graph()
	if graph == nil {
		return ""
	}

	return renderSummary(graph)
}

func renderSummary(graph *Graph) string {
	var sb strings.Builder

	for _, table := range graph.Tables {
		sb.WriteString(table.QualifiedName())
		sb.WriteString(" (")

		for i, col := range table.Columns {
			if i > 0 {
				sb.WriteString(", ")
			}

			sb.WriteString(renderColumn(table, col))
		}

		sb.WriteString(")")

		if table.Kind == KindView {
			sb.WriteString(" [VIEW]")
		}

		if table.EstimatedRowCount > 0 {
			fmt.Fprintf(&sb, " [~%d rows]", table.EstimatedRowCount)
		}

		sb.WriteString("\n")

		for _, ref := range table.IncomingRefs {
			fmt.Fprintf(&sb, "  referenced by %s.%s.%s\n",
				ref.ReferencedSchema, ref.ReferencedTable, ref.ReferencedColumn)
		}
	}

	return sb.String()
}

func renderColumn(table *TableNode, col ColumnNode) string {
	var sb strings.Builder

	sb.WriteString(col.Name)
	sb.WriteString(" ")
	sb.WriteString(col.DeclaredType)

	if col.IsPrimaryKey {
		sb.WriteString(" [PK]")
	}

	for _, edge := range table.OutgoingRefs {
		if edge.Column == col.Name {
			fmt.Fprintf(&sb, " [FK→%s.%s.%s]",
				edge.ReferencedSchema, edge.ReferencedTable, edge.ReferencedColumn)
		}
	}

	if !col.Nullable {
		sb.WriteString(" [NOT NULL]")
	}

	return sb.String()
}
