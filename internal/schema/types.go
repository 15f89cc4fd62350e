// Package schema maps live Postgres catalog metadata into an in-memory
// relational graph used both for prompting the model and for navigation.
package schema

import "time"

// TableKind distinguishes tables from views in the graph.
type TableKind string

const (
	KindTable TableKind = "table"
	KindView  TableKind = "view"
)

// Graph is the root aggregate. It is rebuilt wholesale on every mapping pass
// and never mutated in place, so concurrent readers always see a complete
// graph.
type Graph struct {
	DatabaseName  string
	EngineVersion string
	SchemaNames   []string
	Tables        []*TableNode
	MappedAt      time.Time
}

// TableNode is one table or view. Identity is (Schema, Name) and is unique
// within a Graph.
type TableNode struct {
	Schema            string
	Name              string
	Kind              TableKind
	Columns           []ColumnNode
	OutgoingRefs      []ForeignKeyEdge
	IncomingRefs      []ForeignKeyEdge
	Indexes           []IndexNode
	EstimatedRowCount int64
	Comment           string
}

// ColumnNode is a single column with its vendor-normalized declared type.
type ColumnNode struct {
	Name         string
	DeclaredType string
	Nullable     bool
	DefaultValue string
	IsPrimaryKey bool
	Comment      string
}

// ForeignKeyEdge is a directed reference. For every outgoing edge on table A
// pointing at table B the graph carries a mirrored incoming edge on B; the
// two are inserted together during the build.
type ForeignKeyEdge struct {
	Column           string
	ReferencedSchema string
	ReferencedTable  string
	ReferencedColumn string
}

// IndexNode describes one index. IsPrimary implies IsUnique.
type IndexNode struct {
	Name      string
	Columns   []string
	IsUnique  bool
	IsPrimary bool
}

// QualifiedName returns the schema-qualified table name.
func (t *TableNode) QualifiedName() string {
	return t.Schema + "." + t.Name
}

// PrimaryKeyColumns returns the names of the primary key columns in column
// order.
func (t *TableNode) PrimaryKeyColumns() []string {
	var cols []string
	for _, col := range t.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col.Name)
		}
	}

	return cols
}
