package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgconvo/pgconvo/internal/config"
	"github.com/pgconvo/pgconvo/internal/db"
	"github.com/pgconvo/pgconvo/internal/errors"
	"github.com/pgconvo/pgconvo/internal/llm"
	"github.com/pgconvo/pgconvo/internal/logging"
)

var (
	flagDSN      string
	flagProvider string
	flagModel    string
	flagLogLevel string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pgconvo",
	Short: "Chat with a PostgreSQL database in natural language",
	Long: `pgconvo connects to a PostgreSQL database, maps its schema, and lets you
ask questions in plain language. A language model turns questions into SQL,
a safety gate blocks destructive statements while read-only mode is active,
and query results come back with a natural-language summary.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfiguration,
}

func Execute() error {
	ctx := context.Background()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDSN, "dsn", "", "Postgres connection string (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "Model provider: openai or anthropic")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "Model name (overrides the provider default)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func loadConfiguration(_ *cobra.Command, _ []string) error {
	loaded, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if flagDSN != "" {
		loaded.Database.DSN = flagDSN
	}

	if flagProvider != "" {
		loaded.LLM.Provider = flagProvider
	}

	if flagModel != "" {
		loaded.LLM.Model = flagModel
	}

	if flagLogLevel != "" {
		loaded.Logging.Level = flagLogLevel
	}

	logging.Initialize(logging.Options{
		Level:  loaded.Logging.Level,
		Format: loaded.Logging.Format,
	})

	cfg = loaded

	return nil
}

// openDatabase connects using the active configuration.
func openDatabase(ctx context.Context) (*db.Client, error) {
	if cfg.Database.DSN == "" {
		return nil, errors.New(errors.ErrTypeConfig,
			"no database configured: set --dsn, PGCONVO_DB_DSN, or database.dsn in the config file")
	}

	client, err := db.Open(ctx, db.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: parseDurationOr(cfg.Database.ConnMaxIdleTime, 5*time.Minute),
		ConnMaxLifetime: parseDurationOr(cfg.Database.ConnMaxLifetime, 30*time.Minute),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConnectivity, "failed to connect to database")
	}

	return client, nil
}

// newModelClient builds the streaming client from the active configuration.
func newModelClient(onDelta func(string)) (*llm.Client, error) {
	if cfg.LLM.APIKey == "" {
		return nil, errors.New(errors.ErrTypeConfig,
			"no API key configured: set PGCONVO_LLM_API_KEY or llm.api_key in the config file")
	}

	auth := &llm.StaticTokenSource{Token: cfg.LLM.APIKey, ProviderName: cfg.LLM.Provider}

	return llm.NewClient(auth, llm.Options{
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		MaxHistory: cfg.Agent.MaxHistory,
		Timeout:    cfg.LLM.StreamTimeoutDuration(),
		OnDelta:    onDelta,
	})
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}

	return parsed
}

// PrintError writes a failure with any attached suggestions.
func PrintError(err error) {
	fmt.Printf("Error: %v\n", err)

	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		for _, suggestion := range appErr.Suggestions {
			fmt.Printf("  hint: %s\n", suggestion)
		}
	}
}
