package schema

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pgconvo/pgconvo/internal/db"
	"github.com/pgconvo/pgconvo/internal/errors"
)

// ServerInfoProvider reports the connected database name and engine version.
// *db.Client satisfies it; tests substitute a stub.
type ServerInfoProvider interface {
	ServerInfo(ctx context.Context) (database, version string, err error)
}

// Engine builds and serves the relational graph.
type Engine struct {
	querier db.Querier
	info    ServerInfoProvider

	mu    sync.RWMutex
	graph *Graph
}

// NewEngine creates a schema engine over the given database collaborator.
func NewEngine(querier db.Querier, info ServerInfoProvider) *Engine {
	return &Engine{querier: querier, info: info}
}

const (
	tablesQuery = `
		SELECT t.table_schema, t.table_name, t.table_type,
			COALESCE(GREATEST(pc.reltuples::bigint, 0), 0) AS estimated_rows,
			obj_description(pc.oid, 'pg_class') AS table_comment
		FROM information_schema.tables t
		LEFT JOIN pg_catalog.pg_class pc
			ON pc.relname = t.table_name
			AND pc.relnamespace = (
				SELECT oid FROM pg_catalog.pg_namespace WHERE nspname = t.table_schema
			)
		WHERE t.table_schema NOT IN ('pg_catalog', 'information_schema')
			AND t.table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY t.table_schema, t.table_name`

	columnsQuery = `
		SELECT c.table_schema, c.table_name, c.column_name,
			c.data_type, c.udt_name, c.character_maximum_length,
			c.is_nullable, c.column_default,
			col_description(
				(quote_ident(c.table_schema) || '.' || quote_ident(c.table_name))::regclass,
				c.ordinal_position
			) AS column_comment
		FROM information_schema.columns c
		WHERE c.table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY c.table_schema, c.table_name, c.ordinal_position`

	primaryKeysQuery = `
		SELECT tc.table_schema, tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY tc.table_schema, tc.table_name, kcu.ordinal_position`

	foreignKeysQuery = `
		SELECT tc.table_schema, tc.table_name, kcu.column_name,
			ccu.table_schema AS referenced_schema,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY tc.table_schema, tc.table_name, kcu.ordinal_position`

	indexesQuery = `
		SELECT n.nspname AS table_schema, t.relname AS table_name,
			i.relname AS index_name,
			pg_get_indexdef(ix.indexrelid) AS index_def,
			ix.indisunique, ix.indisprimary
		FROM pg_catalog.pg_index ix
		JOIN pg_catalog.pg_class i ON i.oid = ix.indexrelid
		JOIN pg_catalog.pg_class t ON t.oid = ix.indrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
		ORDER BY n.nspname, t.relname, i.relname`
)

// indexColumnsPattern captures the parenthesized column list from a rendered
// CREATE INDEX statement. Parsing the DDL text is best-effort: expression
// indexes or unusual formatting can yield an empty column list.
var indexColumnsPattern = regexp.MustCompile(`\(([^)]+)\)`)

// MapDatabase queries the catalog and replaces the engine's graph with a
// freshly built one. The previous graph stays valid for readers that already
// hold it.
func (e *Engine) MapDatabase(ctx context.Context) (*Graph, error) {
	graph := &Graph{MappedAt: time.Now()}

	if e.info != nil {
		name, version, err := e.info.ServerInfo(ctx)
		if err != nil {
			return nil, errors.NewConnectivityError("failed to query server info", err)
		}

		graph.DatabaseName = name
		graph.EngineVersion = version
	}

	tables, byName, err := e.fetchTables(ctx)
	if err != nil {
		return nil, err
	}

	graph.Tables = tables

	seenSchemas := make(map[string]bool)
	for _, t := range tables {
		if !seenSchemas[t.Schema] {
			seenSchemas[t.Schema] = true
			graph.SchemaNames = append(graph.SchemaNames, t.Schema)
		}
	}

	pkSet, err := e.fetchPrimaryKeys(ctx)
	if err != nil {
		return nil, err
	}

	if err := e.fetchColumns(ctx, byName, pkSet); err != nil {
		return nil, err
	}

	if err := e.fetchForeignKeys(ctx, byName); err != nil {
		return nil, err
	}

	if err := e.fetchIndexes(ctx, byName); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.graph = graph
	e.mu.Unlock()

	return graph, nil
}

// Graph returns the current graph, or nil if MapDatabase has not run yet.
func (e *Engine) Graph() *Graph {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.graph
}

// GetTable looks up a table by identity.
func (e *Engine) GetTable(schemaName, tableName string) *TableNode {
	graph := e.Graph()
	if graph == nil {
		return nil
	}

	for _, t := range graph.Tables {
		if t.Schema == schemaName && t.Name == tableName {
			return t
		}
	}

	return nil
}

// SearchTables returns tables whose schema name, table name, or any column
// name contains the query, case-insensitively, in graph order.
func (e *Engine) SearchTables(query string) []*TableNode {
	graph := e.Graph()
	if graph == nil {
		return nil
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}

	var matches []*TableNode

	for _, t := range graph.Tables {
		if strings.Contains(strings.ToLower(t.Name), needle) ||
			strings.Contains(strings.ToLower(t.Schema), needle) {
			matches = append(matches, t)
			continue
		}

		for _, col := range t.Columns {
			if strings.Contains(strings.ToLower(col.Name), needle) {
				matches = append(matches, t)
				break
			}
		}
	}

	return matches
}

// FindRelatedTables walks the union of outgoing and incoming foreign-key
// edges breadth-first from the named table, up to depth hops. The start
// table is excluded and each table appears at most once. Visited tables are
// marked at enqueue time, so the first discovered path wins even when a
// shorter alternate path exists later; this first-seen policy is deliberate.
func (e *Engine) FindRelatedTables(schemaName, tableName string, depth int) []*TableNode {
	graph := e.Graph()
	if graph == nil {
		return nil
	}

	start := e.GetTable(schemaName, tableName)
	if start == nil {
		return nil
	}

	type queued struct {
		table *TableNode
		depth int
	}

	visited := map[string]bool{start.QualifiedName(): true}
	queue := []queued{{table: start, depth: 0}}

	var related []*TableNode

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.depth >= depth {
			continue
		}

		for _, neighbor := range e.neighbors(current.table) {
			key := neighbor.QualifiedName()
			if visited[key] {
				continue
			}

			visited[key] = true
			related = append(related, neighbor)
			queue = append(queue, queued{table: neighbor, depth: current.depth + 1})
		}
	}

	return related
}

// neighbors resolves the tables on the far side of every edge of t.
func (e *Engine) neighbors(t *TableNode) []*TableNode {
	var result []*TableNode

	for _, edge := range t.OutgoingRefs {
		if n := e.GetTable(edge.ReferencedSchema, edge.ReferencedTable); n != nil {
			result = append(result, n)
		}
	}

	for _, edge := range t.IncomingRefs {
		if n := e.GetTable(edge.ReferencedSchema, edge.ReferencedTable); n != nil {
			result = append(result, n)
		}
	}

	return result
}

func (e *Engine) fetchTables(ctx context.Context) ([]*TableNode, map[string]*TableNode, error) {
	result, err := e.querier.Query(ctx, tablesQuery)
	if err != nil {
		return nil, nil, errors.NewConnectivityError("failed to query catalog tables", err)
	}

	var tables []*TableNode

	byName := make(map[string]*TableNode, len(result.Rows))

	for _, row := range result.Rows {
		node := &TableNode{
			Schema:            rowString(row, "table_schema"),
			Name:              rowString(row, "table_name"),
			Kind:              KindTable,
			EstimatedRowCount: rowInt(row, "estimated_rows"),
			Comment:           rowString(row, "table_comment"),
		}

		if rowString(row, "table_type") == "VIEW" {
			node.Kind = KindView
		}

		tables = append(tables, node)
		byName[node.QualifiedName()] = node
	}

	return tables, byName, nil
}

func (e *Engine) fetchPrimaryKeys(ctx context.Context) (map[string]bool, error) {
	result, err := e.querier.Query(ctx, primaryKeysQuery)
	if err != nil {
		return nil, errors.NewConnectivityError("failed to query primary keys", err)
	}

	// Keyed schema.table.column for O(1) membership checks while building
	// columns.
	pkSet := make(map[string]bool, len(result.Rows))

	for _, row := range result.Rows {
		key := fmt.Sprintf("%s.%s.%s",
			rowString(row, "table_schema"),
			rowString(row, "table_name"),
			rowString(row, "column_name"),
		)
		pkSet[key] = true
	}

	return pkSet, nil
}

func (e *Engine) fetchColumns(ctx context.Context, byName map[string]*TableNode, pkSet map[string]bool) error {
	result, err := e.querier.Query(ctx, columnsQuery)
	if err != nil {
		return errors.NewConnectivityError("failed to query columns", err)
	}

	for _, row := range result.Rows {
		tableKey := rowString(row, "table_schema") + "." + rowString(row, "table_name")

		table, ok := byName[tableKey]
		if !ok {
			continue
		}

		name := rowString(row, "column_name")
		column := ColumnNode{
			Name: name,
			DeclaredType: normalizeType(
				rowString(row, "data_type"),
				rowString(row, "udt_name"),
				rowIntPtr(row, "character_maximum_length"),
			),
			Nullable:     rowString(row, "is_nullable") == "YES",
			DefaultValue: rowString(row, "column_default"),
			IsPrimaryKey: pkSet[tableKey+"."+name],
			Comment:      rowString(row, "column_comment"),
		}

		table.Columns = append(table.Columns, column)
	}

	return nil
}

func (e *Engine) fetchForeignKeys(ctx context.Context, byName map[string]*TableNode) error {
	result, err := e.querier.Query(ctx, foreignKeysQuery)
	if err != nil {
		return errors.NewConnectivityError("failed to query foreign keys", err)
	}

	for _, row := range result.Rows {
		srcKey := rowString(row, "table_schema") + "." + rowString(row, "table_name")
		dstKey := rowString(row, "referenced_schema") + "." + rowString(row, "referenced_table")

		src, srcOK := byName[srcKey]
		dst, dstOK := byName[dstKey]

		if !srcOK || !dstOK {
			continue
		}

		// The outgoing and the role-swapped incoming edge are inserted
		// together, which guarantees the mirror invariant by construction.
		src.OutgoingRefs = append(src.OutgoingRefs, ForeignKeyEdge{
			Column:           rowString(row, "column_name"),
			ReferencedSchema: dst.Schema,
			ReferencedTable:  dst.Name,
			ReferencedColumn: rowString(row, "referenced_column"),
		})

		dst.IncomingRefs = append(dst.IncomingRefs, ForeignKeyEdge{
			Column:           rowString(row, "referenced_column"),
			ReferencedSchema: src.Schema,
			ReferencedTable:  src.Name,
			ReferencedColumn: rowString(row, "column_name"),
		})
	}

	return nil
}

func (e *Engine) fetchIndexes(ctx context.Context, byName map[string]*TableNode) error {
	result, err := e.querier.Query(ctx, indexesQuery)
	if err != nil {
		return errors.NewConnectivityError("failed to query indexes", err)
	}

	for _, row := range result.Rows {
		tableKey := rowString(row, "table_schema") + "." + rowString(row, "table_name")

		table, ok := byName[tableKey]
		if !ok {
			continue
		}

		isPrimary := rowBool(row, "indisprimary")

		table.Indexes = append(table.Indexes, IndexNode{
			Name:      rowString(row, "index_name"),
			Columns:   parseIndexColumns(rowString(row, "index_def")),
			IsUnique:  rowBool(row, "indisunique") || isPrimary,
			IsPrimary: isPrimary,
		})
	}

	return nil
}

// parseIndexColumns extracts column names from the parenthesized list of a
// rendered CREATE INDEX statement.
func parseIndexColumns(indexDef string) []string {
	match := indexColumnsPattern.FindStringSubmatch(indexDef)
	if match == nil {
		return nil
	}

	parts := strings.Split(match[1], ",")

	columns := make([]string, 0, len(parts))
	for _, part := range parts {
		col := strings.TrimSpace(part)
		// Strip ordering qualifiers the DDL may carry.
		col = strings.TrimSuffix(col, " DESC")
		col = strings.TrimSuffix(col, " ASC")
		col = strings.Trim(col, `"`)

		if col != "" {
			columns = append(columns, col)
		}
	}

	return columns
}

// normalizeType maps verbose catalog type names onto the short forms people
// actually write.
func normalizeType(dataType, udtName string, charMaxLength *int64) string {
	switch dataType {
	case "timestamp with time zone":
		return "timestamptz"
	case "timestamp without time zone":
		return "timestamp"
	case "time with time zone":
		return "timetz"
	case "time without time zone":
		return "time"
	case "character varying":
		if charMaxLength != nil {
			return fmt.Sprintf("varchar(%d)", *charMaxLength)
		}

		return "varchar"
	case "character":
		if charMaxLength != nil {
			return fmt.Sprintf("char(%d)", *charMaxLength)
		}

		return "char"
	case "ARRAY":
		// udt_name carries an underscore prefix for arrays ("_text" for
		// text[]).
		if strings.HasPrefix(udtName, "_") {
			return normalizeUdtName(udtName[1:]) + "[]"
		}

		return "array"
	case "USER-DEFINED":
		return udtName
	default:
		return dataType
	}
}

// normalizeUdtName converts internal type names to readable forms.
func normalizeUdtName(udtName string) string {
	switch udtName {
	case "int2":
		return "smallint"
	case "int4":
		return "integer"
	case "int8":
		return "bigint"
	case "float4":
		return "real"
	case "float8":
		return "double precision"
	case "bool":
		return "boolean"
	default:
		return udtName
	}
}

func rowString(row map[string]any, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func rowBool(row map[string]any, key string) bool {
	switch v := row[key].(type) {
	case bool:
		return v
	case string:
		return v == "t" || v == "true"
	default:
		return false
	}
}

func rowInt(row map[string]any, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func rowIntPtr(row map[string]any, key string) *int64 {
	if row[key] == nil {
		return nil
	}

	v := rowInt(row, key)

	return &v
}
