package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// vaultViewABI covers the read-only vault methods this engine consumes.
const vaultViewABI = `[
	{"name":"pricePerShare","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"totalValueLocked","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const callTimeout = 10 * time.Second

// Caller performs eth_call view reads against vault contracts over an HTTP
// RPC endpoint.
type Caller struct {
	client   *ethclient.Client
	abi      abi.ABI
	decimals int32
}

// NewCaller dials the node's HTTP RPC endpoint. decimals is the fixed-point
// scale the contract's uint256 values carry.
func NewCaller(ctx context.Context, rpcURL string, decimals int32) (*Caller, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial rpc %s: %w", rpcURL, err)
	}
	parsed, err := abi.JSON(strings.NewReader(vaultViewABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse vault abi: %w", err)
	}
	return &Caller{client: client, abi: parsed, decimals: decimals}, nil
}

// PricePerShare reads the vault's current share price.
func (c *Caller) PricePerShare(ctx context.Context, contractAddress string) (decimal.Decimal, error) {
	return c.viewUint(ctx, contractAddress, "pricePerShare")
}

// TotalValueLocked reads the vault's TVL.
func (c *Caller) TotalValueLocked(ctx context.Context, contractAddress string) (decimal.Decimal, error) {
	return c.viewUint(ctx, contractAddress, "totalValueLocked")
}

// Close releases the underlying RPC client.
func (c *Caller) Close() {
	c.client.Close()
}

func (c *Caller) viewUint(ctx context.Context, contractAddress, method string) (decimal.Decimal, error) {
	input, err := c.abi.Pack(method)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	to := common.HexToAddress(contractAddress)
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chain: call %s on %s: %w", method, contractAddress, err)
	}

	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return decimal.Zero, fmt.Errorf("chain: %s returned %d values", method, len(values))
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("chain: %s returned %T, want *big.Int", method, values[0])
	}
	return decimal.NewFromBigInt(raw, -c.decimals), nil
}
