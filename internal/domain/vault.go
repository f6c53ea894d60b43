// Package domain defines the core types and store contracts for the vault
// ledger. Monetary values use decimal arithmetic end to end; raw on-chain
// integers are scaled at the decoding boundary and never after.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Chain identifies a supported EVM network.
type Chain string

const (
	ChainEthereum    Chain = "ethereum"
	ChainArbitrumOne Chain = "arbitrum_one"
	ChainBase        Chain = "base"
)

// KnownChains is the set of networks the engine can be configured for.
var KnownChains = map[Chain]bool{
	ChainEthereum:    true,
	ChainArbitrumOne: true,
	ChainBase:        true,
}

// StrategyVariant selects which withdrawal-request event signature a vault
// contract emits.
type StrategyVariant string

const (
	StrategyOptionsWheel StrategyVariant = "options_wheel"
	StrategyDeltaNeutral StrategyVariant = "delta_neutral"
)

// VaultCategory gates the auxiliary restaking ledger: only points vaults
// track external-protocol deposits.
type VaultCategory string

const (
	CategoryRealYield VaultCategory = "real_yield"
	CategoryPoints    VaultCategory = "points"
)

// Vault is the registry entry for one on-chain vault contract.
type Vault struct {
	ID              uuid.UUID
	Name            string
	Chain           Chain
	ContractAddress string
	Strategy        StrategyVariant
	Category        VaultCategory

	// Decimals is the scale of the vault's underlying asset. Amount scaling
	// always uses this value, never the digit count of the raw integer.
	Decimals int32

	SharePrice decimal.Decimal
	IsActive   bool
	CreatedAt  time.Time
}

// PricePoint is one sample of a vault's price per share.
type PricePoint struct {
	ID            uuid.UUID
	VaultID       uuid.UUID
	Datetime      time.Time
	PricePerShare decimal.Decimal
}

// PriceBucket truncates t to the UTC day it falls in. On-chain price reads
// are recorded at most once per bucket.
func PriceBucket(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
