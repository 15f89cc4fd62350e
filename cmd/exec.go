package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgconvo/pgconvo/internal/errors"
	"github.com/pgconvo/pgconvo/internal/formatter"
	"github.com/pgconvo/pgconvo/internal/sqlexec"
)

var execWrite bool

var execCmd = &cobra.Command{
	Use:   "exec <sql>",
	Short: "Run a single SQL statement without a conversation",
	Long: `Execute SQL directly against the configured database. The same safety gate
as the chat session applies: statements classified as destructive are
blocked unless --write is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().BoolVar(&execWrite, "write", false, "Allow destructive statements")

	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	database, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	executor := sqlexec.NewExecutor(database, !execWrite)

	result := executor.Execute(ctx, args[0])
	if result.Failed() {
		return errors.New(errors.ErrTypeExecution, result.Err)
	}

	fmt.Println(formatter.New().FormatResult(result))

	return nil
}
