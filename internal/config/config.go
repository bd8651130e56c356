// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Supported warehouse drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite3"
)

// Config holds the configuration for the warehouse datastore, the SQLite
// metastore and the realm definitions.
type Config struct {
	WarehouseDBPath    string // path to the warehouse file; empty means in-memory
	WarehouseDriver    string // duckdb (default) or sqlite3
	MetaDBPath         string // path to SQLite metadata file (realms, role restrictions)
	RealmConfigDir     string // directory of realm YAML files; empty reads realms from the metastore
	AggregateSchema    string // schema qualifying aggregate fact tables
	DimensionSchema    string // schema qualifying period and dimension tables
	DefaultResultLimit int    // row limit applied when a request names none (default 10)
	LogLevel           string // log level: debug, info, warn, error (default "info")
	Env                string // environment: "development" (default) or "production"

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the application is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// UsesRealmFiles reports whether realm definitions come from a YAML directory.
func (c *Config) UsesRealmFiles() bool {
	return c.RealmConfigDir != ""
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		WarehouseDBPath: os.Getenv("WAREHOUSE_DB_PATH"),
		WarehouseDriver: strings.ToLower(strings.TrimSpace(os.Getenv("WAREHOUSE_DRIVER"))),
		MetaDBPath:      os.Getenv("META_DB_PATH"),
		RealmConfigDir:  os.Getenv("REALM_CONFIG_DIR"),
		AggregateSchema: strings.TrimSpace(os.Getenv("AGGREGATE_SCHEMA")),
		DimensionSchema: strings.TrimSpace(os.Getenv("DIMENSION_SCHEMA")),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		Env:             os.Getenv("ENV"),
	}

	if v := os.Getenv("DEFAULT_RESULT_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("DEFAULT_RESULT_LIMIT must be a positive integer, got %q", v)
		}
		cfg.DefaultResultLimit = n
	}

	// Defaults
	if cfg.WarehouseDriver == "" {
		cfg.WarehouseDriver = DriverDuckDB
	}
	if cfg.WarehouseDriver != DriverDuckDB && cfg.WarehouseDriver != DriverSQLite {
		return nil, fmt.Errorf("WAREHOUSE_DRIVER must be %q or %q, got %q", DriverDuckDB, DriverSQLite, cfg.WarehouseDriver)
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "warehouse_meta.sqlite"
	}
	if cfg.DefaultResultLimit == 0 {
		cfg.DefaultResultLimit = 10
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.WarehouseDBPath == "" {
		cfg.Warnings = append(cfg.Warnings, "WAREHOUSE_DB_PATH not set; using an in-memory warehouse")
	}
	if cfg.WarehouseDriver == DriverSQLite && cfg.WarehouseDBPath == "" {
		return nil, fmt.Errorf("WAREHOUSE_DB_PATH is required with WAREHOUSE_DRIVER=%s", DriverSQLite)
	}

	// Production mode: an ephemeral warehouse is a fatal error.
	if cfg.IsProduction() && cfg.WarehouseDBPath == "" {
		return nil, fmt.Errorf("WAREHOUSE_DB_PATH must be set in production (ENV=production)")
	}

	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
