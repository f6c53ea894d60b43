package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VAULTLEDGER_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VAULTLEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// Database
	setStr(&cfg.Database.DSN, "VAULTLEDGER_DATABASE_DSN")
	setStr(&cfg.Database.Host, "VAULTLEDGER_DATABASE_HOST")
	setInt(&cfg.Database.Port, "VAULTLEDGER_DATABASE_PORT")
	setStr(&cfg.Database.Database, "VAULTLEDGER_DATABASE_NAME")
	setStr(&cfg.Database.User, "VAULTLEDGER_DATABASE_USER")
	setStr(&cfg.Database.Password, "VAULTLEDGER_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "VAULTLEDGER_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "VAULTLEDGER_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "VAULTLEDGER_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "VAULTLEDGER_DATABASE_RUN_MIGRATIONS")

	// Redis
	setBool(&cfg.Redis.Enabled, "VAULTLEDGER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "VAULTLEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VAULTLEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VAULTLEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VAULTLEDGER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VAULTLEDGER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VAULTLEDGER_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "VAULTLEDGER_REDIS_PRICE_TTL")

	// S3
	setBool(&cfg.S3.Enabled, "VAULTLEDGER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "VAULTLEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VAULTLEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "VAULTLEDGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VAULTLEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VAULTLEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VAULTLEDGER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VAULTLEDGER_S3_FORCE_PATH_STYLE")

	// Chains
	for name, chain := range cfg.Chains {
		prefix := "VAULTLEDGER_CHAIN_" + envName(name) + "_"
		setStr(&chain.RPCURL, prefix+"RPC_URL")
		setStr(&chain.WsURL, prefix+"WS_URL")
		setStr(&chain.ExplorerURL, prefix+"EXPLORER_URL")
		setStr(&chain.ExplorerAPIKey, prefix+"EXPLORER_API_KEY")
		cfg.Chains[name] = chain
	}

	// Listener / Backfill
	setBool(&cfg.Listener.Enabled, "VAULTLEDGER_LISTENER_ENABLED")
	setBool(&cfg.Backfill.Enabled, "VAULTLEDGER_BACKFILL_ENABLED")
	setDuration(&cfg.Backfill.Interval, "VAULTLEDGER_BACKFILL_INTERVAL")
	setDuration(&cfg.Backfill.Lookback, "VAULTLEDGER_BACKFILL_LOOKBACK")
	setInt(&cfg.Backfill.PageSize, "VAULTLEDGER_BACKFILL_PAGE_SIZE")

	// Top-level
	setStr(&cfg.Mode, "VAULTLEDGER_MODE")
	setStr(&cfg.LogLevel, "VAULTLEDGER_LOG_LEVEL")
}

// envName maps a chain key like "arbitrum_one" to "ARBITRUM_ONE".
func envName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
