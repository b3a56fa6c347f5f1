package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SourceSpec names one IPEDS extract and where to fetch it from
type SourceSpec struct {
	Name     string
	Location string
}

// Config represents the application configuration
type Config struct {
	// Inputs
	Sources    []SourceSpec
	BaseSource string
	Vintage    string
	SchemaFile string

	// Output
	OutputPath   string
	StaticSource string

	// Value handling
	SentinelTokens   []string
	FallbackEncoding string
	PellColumn       string
	HTTPTimeout      time.Duration

	// Publishing
	PublishEnabled bool

	// Database connections, nil when not configured
	Snowflake *SnowflakeConfig
	Postgres  *PostgresConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// defaultFiles are the 2022 extract file names, relative to IPEDS_DATA_DIR
var defaultFiles = []SourceSpec{
	{Name: "hd", Location: "hd2022.csv"},
	{Name: "adm", Location: "adm2022_rv.csv"},
	{Name: "ef", Location: "ef2022a_rv.csv"},
	{Name: "sfa", Location: "sfa2122_rv.csv"},
	{Name: "ic_ay", Location: "ic2022_ay.csv"},
	{Name: "gr", Location: "gr2022_rv.csv"},
	{Name: "gr200", Location: "gr200_22_rv.csv"},
	{Name: "ic_rv", Location: "ic2022_rv.csv"},
}

// LoadEnvFile loads variables from a .env file into the process environment.
// Variables already set are not overridden. A missing default file is not an
// error; an explicitly requested one is.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	sources, err := parseSources(getEnv("IPEDS_SOURCES", ""), getEnv("IPEDS_DATA_DIR", "data"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Sources:          sources,
		BaseSource:       getEnv("IPEDS_BASE_SOURCE", "hd"),
		Vintage:          getEnv("IPEDS_VINTAGE", "2022"),
		SchemaFile:       getEnv("SCHEMA_FILE", ""),
		OutputPath:       getEnv("OUTPUT_PATH", "colleges_final.json"),
		StaticSource:     getEnv("STATIC_SOURCE", "IPEDS_2022_revised"),
		SentinelTokens:   getEnvAsStringSlice("SENTINEL_TOKENS", []string{"."}),
		FallbackEncoding: getEnv("FALLBACK_ENCODING", "ISO-8859-1"),
		PellColumn:       getEnv("PELL_COLUMN", ""),
		HTTPTimeout:      time.Duration(getEnvAsInt("HTTP_TIMEOUT_SECONDS", 120)) * time.Second,
		PublishEnabled:   getEnvAsBool("PUBLISH_ENABLED", false),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "console"),
	}

	// Warehouse sources are optional; only a partial configuration is an error
	if os.Getenv("SNOWFLAKE_ACCOUNT") != "" || os.Getenv("SNOWFLAKE_USER") != "" {
		snowConfig, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load Snowflake configuration: %w", err)
		}
		cfg.Snowflake = snowConfig
	}

	if cfg.PublishEnabled || os.Getenv("POSTGRES_USER") != "" {
		pgConfig, err := LoadPostgresConfig()
		if err != nil && cfg.PublishEnabled {
			return nil, fmt.Errorf("failed to load PostgreSQL configuration: %w", err)
		}
		cfg.Postgres = pgConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return errors.New("at least one IPEDS source is required")
	}

	if c.Source(c.BaseSource) == nil {
		return fmt.Errorf("base source %q is not among the configured sources", c.BaseSource)
	}

	if c.OutputPath == "" {
		return errors.New("output path is required")
	}

	if c.HTTPTimeout <= 0 {
		return errors.New("HTTP timeout must be positive")
	}

	if c.PublishEnabled && c.Postgres == nil {
		return errors.New("postgreSQL configuration is required when publishing is enabled")
	}

	return nil
}

// Source returns the configured source with the given name, or nil
func (c *Config) Source(name string) *SourceSpec {
	for i := range c.Sources {
		if c.Sources[i].Name == name {
			return &c.Sources[i]
		}
	}
	return nil
}

// WithOutputPath returns a copy of the config writing to a different file
func (c *Config) WithOutputPath(path string) *Config {
	clone := *c
	clone.OutputPath = path
	return &clone
}

// WithPublish returns a copy of the config with publishing toggled
func (c *Config) WithPublish(enabled bool) *Config {
	clone := *c
	clone.PublishEnabled = enabled
	return &clone
}

// parseSources reads "name=location" pairs. An empty value selects the
// 2022 extract files under dataDir.
func parseSources(value, dataDir string) ([]SourceSpec, error) {
	if strings.TrimSpace(value) == "" {
		sources := make([]SourceSpec, len(defaultFiles))
		for i, src := range defaultFiles {
			sources[i] = SourceSpec{Name: src.Name, Location: filepath.Join(dataDir, src.Location)}
		}
		return sources, nil
	}

	var sources []SourceSpec
	seen := make(map[string]bool)
	for _, pair := range splitCommaDelimited(value) {
		if pair == "" {
			continue
		}
		name, location, ok := strings.Cut(pair, "=")
		name, location = strings.TrimSpace(name), strings.TrimSpace(location)
		if !ok || name == "" || location == "" {
			return nil, fmt.Errorf("invalid IPEDS_SOURCES entry %q, expected name=location", pair)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate IPEDS source %q", name)
		}
		seen[name] = true
		sources = append(sources, SourceSpec{Name: name, Location: location})
	}
	return sources, nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
