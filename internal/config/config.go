// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/coremodel/coremodel/internal/store"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendGorm     = "gorm"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Persistence
	StoreBackend string `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL  string `env:"DATABASE_URL,required,notEmpty"`
	GormDialect  string `env:"GORM_DIALECT" envDefault:"postgres"`

	// Cache and events (Redis). Empty disables both.
	RedisURL         string        `env:"REDIS_URL"`
	CacheTTL         time.Duration `env:"CACHE_TTL" envDefault:"1h"`
	NegativeCacheTTL time.Duration `env:"NEGATIVE_CACHE_TTL" envDefault:"1m"`

	// What happens to a user's entities when the user is deleted.
	OwnerDeletePolicy string `env:"OWNER_DELETE_POLICY" envDefault:"restrict"`

	// Apply embedded migrations during startup
	MigrateOnStart bool `env:"MIGRATE_ON_START" envDefault:"false"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// CacheEnabled reports whether a Redis URL was configured.
func (c *Config) CacheEnabled() bool {
	return strings.TrimSpace(c.RedisURL) != ""
}

// DeletePolicy returns the parsed owner delete policy.
func (c *Config) DeletePolicy() (store.DeletePolicy, error) {
	return store.ParseDeletePolicy(c.OwnerDeletePolicy)
}

// Validate rejects unknown enum values and nonsensical limits.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendPostgres, BackendSQLite, BackendGorm:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be one of postgres, sqlite, gorm: got %q", c.StoreBackend))
	}

	if c.StoreBackend == BackendGorm {
		switch c.GormDialect {
		case BackendPostgres, BackendSQLite:
		default:
			errs = append(errs, fmt.Errorf("GORM_DIALECT must be postgres or sqlite: got %q", c.GormDialect))
		}
	}

	if _, err := c.DeletePolicy(); err != nil {
		errs = append(errs, fmt.Errorf("OWNER_DELETE_POLICY: %w", err))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error: got %q", c.LogLevel))
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text: got %q", c.LogFormat))
	}

	if c.AppPort <= 0 || c.AppPort > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT out of range: %d", c.AppPort))
	}
	if c.MaxRequestBodySize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_REQUEST_BODY_SIZE must be positive"))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	return LoadWithOverrides(nil)
}

// LoadWithOverrides is Load with some variables replaced, as the CLI does
// for its flags. Empty override values are ignored.
func LoadWithOverrides(overrides map[string]string) (*Config, error) {
	environ := env.ToMap(os.Environ())
	for k, v := range overrides {
		if v != "" {
			environ[k] = v
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
