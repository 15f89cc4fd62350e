package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"
)

var (
	dsnURLPasswordPattern = regexp.MustCompile(`(://[^:/@]+:)[^@]+@`)
	dsnKVPasswordPattern  = regexp.MustCompile(`\bpassword=\S+`)
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the active configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	fmt.Println("Active configuration:")

	fmt.Println("\nDatabase:")
	fmt.Printf("  DSN: %s\n", redactDSN(cfg.Database.DSN))
	fmt.Printf("  Max Connections: %d\n", cfg.Database.MaxConnections)
	fmt.Printf("  Max Idle Conns: %d\n", cfg.Database.MaxIdleConns)
	fmt.Printf("  Conn Max Lifetime: %s\n", cfg.Database.ConnMaxLifetime)
	fmt.Printf("  Conn Max Idle Time: %s\n", cfg.Database.ConnMaxIdleTime)

	fmt.Println("\nModel:")
	fmt.Printf("  Provider: %s\n", cfg.LLM.Provider)
	fmt.Printf("  Model: %s\n", displayOrDefault(cfg.LLM.Model, "(provider default)"))
	fmt.Printf("  API Key: %s\n", redactSecret(cfg.LLM.APIKey))
	fmt.Printf("  Base URL: %s\n", displayOrDefault(cfg.LLM.BaseURL, "(provider default)"))
	fmt.Printf("  Stream Timeout: %s\n", cfg.LLM.StreamTimeout)

	fmt.Println("\nAgent:")
	fmt.Printf("  Read Only: %v\n", cfg.Agent.ReadOnly)
	fmt.Printf("  Max History: %d\n", cfg.Agent.MaxHistory)

	fmt.Println("\nLogging:")
	fmt.Printf("  Level: %s\n", cfg.Logging.Level)
	fmt.Printf("  Format: %s\n", cfg.Logging.Format)

	return nil
}

func displayOrDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}

func redactSecret(value string) string {
	if value == "" {
		return "(not set)"
	}

	if len(value) <= 8 {
		return "****"
	}

	return value[:4] + "..." + value[len(value)-4:]
}

// redactDSN hides the password portion of a connection string, covering
// both URL-style and key=value forms.
func redactDSN(dsn string) string {
	if dsn == "" {
		return "(not set)"
	}

	dsn = dsnURLPasswordPattern.ReplaceAllString(dsn, "${1}****@")

	return dsnKVPasswordPattern.ReplaceAllString(dsn, "password=****")
}
