// Package config defines the top-level configuration for the vault ledger
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by VAULTLEDGER_* environment
// variables.
type Config struct {
	Chains   map[string]ChainConfig `toml:"chains"`
	Database DatabaseConfig         `toml:"database"`
	Redis    RedisConfig            `toml:"redis"`
	S3       S3Config               `toml:"s3"`
	Listener ListenerConfig         `toml:"listener"`
	Backfill BackfillConfig         `toml:"backfill"`
	Mode     string                 `toml:"mode"`
	LogLevel string                 `toml:"log_level"`
}

// ChainConfig holds per-network endpoints.
type ChainConfig struct {
	RPCURL         string `toml:"rpc_url"`
	WsURL          string `toml:"ws_url"`
	ExplorerURL    string `toml:"explorer_url"`
	ExplorerAPIKey string `toml:"explorer_api_key"`
	Decimals       int    `toml:"decimals"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	PriceTTL   duration `toml:"price_ttl"`
}

// S3Config holds object storage parameters for sweep report archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ListenerConfig tunes the live subscription listener.
type ListenerConfig struct {
	Enabled bool `toml:"enabled"`
}

// BackfillConfig tunes the historical reconciliation sweep.
type BackfillConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	Lookback duration `toml:"lookback"`
	PageSize int      `toml:"page_size"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "72h").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config with sensible starting values. Load layers the
// TOML file and environment overrides on top of it.
func Defaults() Config {
	return Config{
		Chains: map[string]ChainConfig{},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "vaultledger",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			PriceTTL:   duration{24 * time.Hour},
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Listener: ListenerConfig{
			Enabled: true,
		},
		Backfill: BackfillConfig{
			Enabled:  true,
			Interval: duration{72 * time.Hour},
			Lookback: duration{72 * time.Hour},
			PageSize: 100,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"listen":   true,
	"backfill": true,
	"full":     true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: listen, backfill, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if len(c.Chains) == 0 {
		errs = append(errs, "chains: at least one chain must be configured")
	}
	needsWS := c.Mode == "listen" || c.Mode == "full"
	needsExplorer := c.Mode == "backfill" || c.Mode == "full"
	for name, chain := range c.Chains {
		if !domain.KnownChains[domain.Chain(name)] {
			errs = append(errs, fmt.Sprintf("chains: unknown chain %q", name))
		}
		if needsWS && chain.WsURL == "" {
			errs = append(errs, fmt.Sprintf("chains.%s: ws_url is required for mode %s", name, c.Mode))
		}
		if needsExplorer && chain.ExplorerURL == "" {
			errs = append(errs, fmt.Sprintf("chains.%s: explorer_url is required for mode %s", name, c.Mode))
		}
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if c.Backfill.Enabled {
		if c.Backfill.Interval.Duration <= 0 {
			errs = append(errs, "backfill: interval must be positive")
		}
		if c.Backfill.Lookback.Duration <= 0 {
			errs = append(errs, "backfill: lookback must be positive")
		}
		if c.Backfill.PageSize < 1 {
			errs = append(errs, "backfill: page_size must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
