package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pgconvo/pgconvo/internal/formatter"
	"github.com/pgconvo/pgconvo/internal/schema"
)

var relatedDepth int

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the mapped database schema",
}

var schemaShowCmd = &cobra.Command{
	Use:   "show [schema.table]",
	Short: "Print the schema summary, or one table's structure",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSchemaShow,
}

var schemaSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Find tables by name, schema, or column substring",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaSearch,
}

var schemaRelatedCmd = &cobra.Command{
	Use:   "related <schema.table>",
	Short: "List tables reachable over foreign keys",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaRelated,
}

func init() {
	schemaRelatedCmd.Flags().IntVar(&relatedDepth, "depth", 2, "Maximum foreign-key hops")

	schemaCmd.AddCommand(schemaShowCmd)
	schemaCmd.AddCommand(schemaSearchCmd)
	schemaCmd.AddCommand(schemaRelatedCmd)
	rootCmd.AddCommand(schemaCmd)
}

// mapSchema connects and builds a fresh graph for one command invocation.
func mapSchema(cmd *cobra.Command) (*schema.Engine, func(), error) {
	ctx := cmd.Context()

	database, err := openDatabase(ctx)
	if err != nil {
		return nil, nil, err
	}

	engine := schema.NewEngine(database, database)
	if _, err := engine.MapDatabase(ctx); err != nil {
		database.Close()
		return nil, nil, err
	}

	return engine, func() { database.Close() }, nil
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	engine, closeDB, err := mapSchema(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	if len(args) == 0 {
		fmt.Println(engine.ContextSummary())
		return nil
	}

	schemaName, tableName := splitQualifiedName(args[0])

	table := engine.GetTable(schemaName, tableName)
	if table == nil {
		return fmt.Errorf("table %s.%s not found", schemaName, tableName)
	}

	fmt.Println(formatter.New().FormatTable(table))

	return nil
}

func runSchemaSearch(cmd *cobra.Command, args []string) error {
	engine, closeDB, err := mapSchema(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	matches := engine.SearchTables(args[0])
	if len(matches) == 0 {
		fmt.Println("No matching tables.")
		return nil
	}

	for _, table := range matches {
		fmt.Println(table.QualifiedName())
	}

	return nil
}

func runSchemaRelated(cmd *cobra.Command, args []string) error {
	engine, closeDB, err := mapSchema(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	schemaName, tableName := splitQualifiedName(args[0])

	related := engine.FindRelatedTables(schemaName, tableName, relatedDepth)
	if len(related) == 0 {
		fmt.Println("No related tables.")
		return nil
	}

	for _, table := range related {
		fmt.Println(table.QualifiedName())
	}

	return nil
}

// splitQualifiedName separates "schema.table"; a bare name defaults to the
// public schema.
func splitQualifiedName(name string) (string, string) {
	if schemaName, tableName, ok := strings.Cut(name, "."); ok {
		return schemaName, tableName
	}

	return "public", name
}
