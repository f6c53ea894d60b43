package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onyxlabs/vaultledger/internal/backfill"
	s3blob "github.com/onyxlabs/vaultledger/internal/blob/s3"
	"github.com/onyxlabs/vaultledger/internal/cache/redis"
	"github.com/onyxlabs/vaultledger/internal/chain"
	"github.com/onyxlabs/vaultledger/internal/chain/explorer"
	"github.com/onyxlabs/vaultledger/internal/config"
	"github.com/onyxlabs/vaultledger/internal/domain"
	"github.com/onyxlabs/vaultledger/internal/ledger"
	"github.com/onyxlabs/vaultledger/internal/listener"
	"github.com/onyxlabs/vaultledger/internal/pricing"
	"github.com/onyxlabs/vaultledger/internal/store/postgres"
)

// ChainSet bundles the per-chain pipeline: one listener and one backfill
// scanner sharing the same processor.
type ChainSet struct {
	ID       domain.Chain
	Listener *listener.Listener
	Scanner  *backfill.Scanner
}

// Dependencies holds every wired component the operating modes need.
type Dependencies struct {
	Vaults       domain.VaultStore
	Transactions domain.TransactionStore
	Audit        domain.AuditStore
	UoW          domain.UnitOfWork

	Locks      domain.LockManager
	RateLimit  domain.RateLimiter
	PriceCache pricing.SharePriceCache

	BlobWriter domain.BlobWriter

	Chains []ChainSet
}

const defaultAssetDecimals = 6

// Wire constructs all dependencies from cfg. onlyChain, when non-empty,
// restricts the per-chain pipelines to that chain. The returned cleanup
// function releases every acquired resource in reverse order.
func Wire(ctx context.Context, cfg *config.Config, onlyChain string) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Vaults = postgres.NewVaultStore(pool)
	deps.Transactions = postgres.NewTransactionStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)
	deps.UoW = postgres.NewUnitOfWork(pool)

	// --- Redis (optional: disables the cache tier, locks, and throttling) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewSharePriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.RateLimit = redis.NewRateLimiter(redisClient)
	}

	// --- S3 (optional: disables sweep report archival) ---
	var archiver *backfill.Archiver
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		archiver = backfill.NewArchiver(deps.BlobWriter, deps.Audit)
	}

	// --- Per-chain pipelines ---
	for name, chainCfg := range cfg.Chains {
		if onlyChain != "" && name != onlyChain {
			continue
		}
		chainID := domain.Chain(name)

		decimals := int32(chainCfg.Decimals)
		if decimals == 0 {
			decimals = defaultAssetDecimals
		}

		var caller pricing.ViewCaller
		if chainCfg.RPCURL != "" {
			c, err := chain.NewCaller(ctx, chainCfg.RPCURL, decimals)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: rpc client for %s: %w", name, err)
			}
			closers = append(closers, c.Close)
			caller = c
		}

		oracle := pricing.NewOracle(deps.PriceCache, caller, logger)
		processor := ledger.NewProcessor(deps.UoW, oracle, logger)

		set := ChainSet{ID: chainID}
		if chainCfg.WsURL != "" {
			set.Listener = listener.New(chainID, chainCfg.WsURL, deps.Vaults, processor, logger)
		}
		if chainCfg.ExplorerURL != "" {
			lister := explorer.NewClient(chainCfg.ExplorerURL, chainCfg.ExplorerAPIKey, deps.RateLimit)
			set.Scanner = backfill.NewScanner(
				chainID,
				deps.Vaults,
				deps.Transactions,
				lister,
				processor,
				deps.Locks,
				archiver,
				backfill.Config{
					PageSize: cfg.Backfill.PageSize,
					Lookback: cfg.Backfill.Lookback.Duration,
				},
				logger,
			)
		}
		deps.Chains = append(deps.Chains, set)
	}

	if onlyChain != "" && len(deps.Chains) == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain %q is not configured", onlyChain)
	}

	return deps, cleanup, nil
}
