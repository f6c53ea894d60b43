package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
mode = "full"
log_level = "debug"

[chains.arbitrum_one]
rpc_url = "https://arb1.example.org/rpc"
ws_url = "wss://arb1.example.org/ws"
explorer_url = "https://api.arbiscan.io/api"
explorer_api_key = "key123"

[database]
host = "db.internal"
port = 5433
database = "ledger"
user = "ledger"
password = "secret"

[redis]
addr = "cache.internal:6379"
price_ttl = "2h"

[backfill]
interval = "24h"
lookback = "96h"
page_size = 50
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)

	chain, ok := cfg.Chains["arbitrum_one"]
	require.True(t, ok)
	assert.Equal(t, "wss://arb1.example.org/ws", chain.WsURL)
	assert.Equal(t, "key123", chain.ExplorerAPIKey)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	// Untouched defaults survive the merge.
	assert.Equal(t, 10, cfg.Database.PoolMaxConns)
	assert.True(t, cfg.Database.RunMigrations)

	assert.Equal(t, 2*time.Hour, cfg.Redis.PriceTTL.Duration)
	assert.Equal(t, 24*time.Hour, cfg.Backfill.Interval.Duration)
	assert.Equal(t, 96*time.Hour, cfg.Backfill.Lookback.Duration)
	assert.Equal(t, 50, cfg.Backfill.PageSize)

	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VAULTLEDGER_DATABASE_PASSWORD", "from-env")
	t.Setenv("VAULTLEDGER_MODE", "backfill")
	t.Setenv("VAULTLEDGER_CHAIN_ARBITRUM_ONE_EXPLORER_API_KEY", "env-key")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "backfill", cfg.Mode)
	assert.Equal(t, "env-key", cfg.Chains["arbitrum_one"].ExplorerAPIKey)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	cfg.LogLevel = "verbose"
	cfg.Database.Host = ""
	cfg.Backfill.PageSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "at least one chain")
	assert.Contains(t, err.Error(), "host must not be empty")
	assert.Contains(t, err.Error(), "page_size")
}

func TestValidateUnknownChain(t *testing.T) {
	cfg := Defaults()
	cfg.Chains["solana"] = ChainConfig{WsURL: "wss://x", ExplorerURL: "https://x"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown chain "solana"`)
}

func TestValidateModeRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "listen"
	cfg.Chains["arbitrum_one"] = ChainConfig{ExplorerURL: "https://x"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws_url is required")

	cfg.Mode = "backfill"
	cfg.Chains["arbitrum_one"] = ChainConfig{WsURL: "wss://x"}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "explorer_url is required")
}
