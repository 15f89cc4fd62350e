package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig `json:"database" envPrefix:"PGCONVO_"`
	LLM      LLMConfig      `json:"llm"      envPrefix:"PGCONVO_"`
	Agent    AgentConfig    `json:"agent"    envPrefix:"PGCONVO_"`
	Logging  LoggingConfig  `json:"logging"  envPrefix:"PGCONVO_"`
}

// DatabaseConfig represents the Postgres connection configuration
type DatabaseConfig struct {
	DSN             string `json:"dsn"                env:"DB_DSN"                envDefault:""`
	MaxConnections  int    `json:"max_connections"    env:"DB_MAX_CONNECTIONS"    envDefault:"5"`
	MaxIdleConns    int    `json:"max_idle_conns"     env:"DB_MAX_IDLE_CONNS"     envDefault:"2"`
	ConnMaxLifetime string `json:"conn_max_lifetime"  env:"DB_CONN_MAX_LIFETIME"  envDefault:"30m"`
	ConnMaxIdleTime string `json:"conn_max_idle_time" env:"DB_CONN_MAX_IDLE_TIME" envDefault:"5m"`
}

// LLMConfig represents the model provider configuration
type LLMConfig struct {
	Provider      string `json:"provider"       env:"LLM_PROVIDER"       envDefault:"openai"` // openai or anthropic
	Model         string `json:"model"          env:"LLM_MODEL"          envDefault:""`
	APIKey        string `json:"api_key"        env:"LLM_API_KEY"        envDefault:""`
	BaseURL       string `json:"base_url"       env:"LLM_BASE_URL"       envDefault:""`
	StreamTimeout string `json:"stream_timeout" env:"LLM_STREAM_TIMEOUT" envDefault:"120s"`
}

// AgentConfig represents conversational agent behavior
type AgentConfig struct {
	ReadOnly   bool `json:"read_only"   env:"READ_ONLY"   envDefault:"true"`
	MaxHistory int  `json:"max_history" env:"MAX_HISTORY" envDefault:"20"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"  env:"LOG_LEVEL"  envDefault:"info"` // debug, info, warn, error
	Format string `json:"format" env:"LOG_FORMAT" envDefault:"text"` // text, json
}

// LoadConfig loads configuration with precedence defaults < config file <
// environment variables. The PGCONVO_ prefix comes from the envPrefix
// struct tags.
func LoadConfig() (*Config, error) {
	// Tag defaults only, no environment lookup.
	defaults := &Config{}
	if err := env.ParseWithOptions(defaults, env.Options{
		Environment: map[string]string{},
	}); err != nil {
		return nil, fmt.Errorf("failed to parse defaults: %w", err)
	}

	// Tag defaults plus whatever the environment explicitly sets.
	fromEnv := &Config{}
	if err := env.Parse(fromEnv); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	config := &Config{}
	*config = *defaults

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Environment values override the file only where they differ from the
	// tag default, so an unset variable's default cannot clobber the file.
	overlayChanged(config, defaults, fromEnv)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadConfigFromFile loads configuration from a JSON file
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(config, &fileConfig)

	// ReadOnly defaults to true and an explicit false is meaningful, so
	// presence is probed rather than inferred from the zero value.
	var raw struct {
		Agent struct {
			ReadOnly *bool `json:"read_only"`
		} `json:"agent"`
	}
	if json.Unmarshal(data, &raw) == nil && raw.Agent.ReadOnly != nil {
		config.Agent.ReadOnly = *raw.Agent.ReadOnly
	}

	return nil
}

// overlayChanged copies a field from env into target wherever env disagrees
// with the tag default, meaning the environment set it explicitly.
func overlayChanged(target, defaults, fromEnv *Config) {
	var walk func(t, d, e reflect.Value)
	walk = func(t, d, e reflect.Value) {
		if t.Kind() == reflect.Struct {
			for i := range t.NumField() {
				walk(t.Field(i), d.Field(i), e.Field(i))
			}

			return
		}

		if !e.Equal(d) {
			t.Set(e)
		}
	}

	walk(
		reflect.ValueOf(target).Elem(),
		reflect.ValueOf(defaults).Elem(),
		reflect.ValueOf(fromEnv).Elem(),
	)
}

// mergeConfigs merges source configuration into target configuration
func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := range s.NumField() {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validProviders := map[string]bool{
		"openai": true, "anthropic": true,
	}
	if !validProviders[strings.ToLower(config.LLM.Provider)] {
		return fmt.Errorf(
			"invalid llm provider: %s (must be openai or anthropic)",
			config.LLM.Provider,
		)
	}

	if _, err := time.ParseDuration(config.LLM.StreamTimeout); err != nil {
		return fmt.Errorf("invalid llm stream timeout: %s", config.LLM.StreamTimeout)
	}

	for name, dur := range map[string]string{
		"conn max lifetime":  config.Database.ConnMaxLifetime,
		"conn max idle time": config.Database.ConnMaxIdleTime,
	} {
		if _, err := time.ParseDuration(dur); err != nil {
			return fmt.Errorf("invalid database %s: %s", name, dur)
		}
	}

	if config.Database.MaxConnections <= 0 {
		return fmt.Errorf(
			"database max connections must be positive: %d",
			config.Database.MaxConnections,
		)
	}

	if config.Agent.MaxHistory <= 0 {
		return fmt.Errorf("agent max history must be positive: %d", config.Agent.MaxHistory)
	}

	return nil
}

// SaveConfig saves configuration to the config file
func SaveConfig(config *Config) error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv("PGCONVO_CONFIG"); configPath != "" {
		return configPath
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".pgconvo.json"
	}

	return filepath.Join(homeDir, ".config", "pgconvo", "config.json")
}

// StreamTimeoutDuration returns the parsed stream timeout, falling back to
// two minutes when the configured value is unparseable.
func (c *LLMConfig) StreamTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.StreamTimeout)
	if err != nil {
		return 2 * time.Minute
	}

	return d
}
