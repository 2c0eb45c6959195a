package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the application.
type Config struct {
	// DatabasePath is the SQLite database file, used unless DatabaseURL is set.
	DatabasePath string `yaml:"database_path"`
	// DatabaseURL switches storage to Postgres when it carries a postgres:// DSN.
	DatabaseURL string `yaml:"database_url"`

	// MetricsAddr enables the Prometheus /metrics listener when non-empty.
	MetricsAddr string `yaml:"metrics_addr"`

	// BatchPageSize bounds how many users the weekly batch loads per page.
	BatchPageSize int `yaml:"batch_page_size"`

	// DefaultDietTypeID is assigned to lazily created schedule days.
	DefaultDietTypeID int64 `yaml:"default_diet_type_id"`
}

func defaults() *Config {
	return &Config{
		DatabasePath:      "data/mealweek.db",
		BatchPageSize:     100,
		DefaultDietTypeID: 1,
	}
}

// NewFromEnv creates a new Config object from environment variables. If
// MEALWEEK_CONFIG points at a YAML file, its values seed the defaults before
// the environment overrides are applied.
func NewFromEnv() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("MEALWEEK_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("BATCH_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("BATCH_PAGE_SIZE must be a positive integer, got %q", v)
		}
		cfg.BatchPageSize = n
	}
	if v := os.Getenv("DEFAULT_DIET_TYPE_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("DEFAULT_DIET_TYPE_ID must be an integer, got %q", v)
		}
		cfg.DefaultDietTypeID = n
	}

	return cfg, nil
}

// loadFile merges a YAML config file into cfg.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if c.BatchPageSize < 1 {
		return fmt.Errorf("config file %s: batch_page_size must be positive", path)
	}
	return nil
}
