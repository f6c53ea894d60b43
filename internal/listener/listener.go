// Package listener runs the per-chain live log subscription: one persistent
// WebSocket connection, one subscription covering every active vault, and
// strictly in-order dispatch into the ledger pipeline.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/onyxlabs/vaultledger/internal/chain"
	"github.com/onyxlabs/vaultledger/internal/decoder"
	"github.com/onyxlabs/vaultledger/internal/domain"
	"github.com/onyxlabs/vaultledger/internal/ledger"
)

// connState is the listener's connection lifecycle.
type connState string

const (
	stateDisconnected connState = "disconnected"
	stateConnecting   connState = "connecting"
	stateSubscribed   connState = "subscribed"
	stateStreaming    connState = "streaming"
)

const (
	baseBackoff = 2 * time.Second
	maxBackoff  = 60 * time.Second
)

// Dialer opens a fresh subscription connection. Swapped out in tests.
type Dialer func(ctx context.Context, url string) (Subscription, error)

// Subscription is the live log stream for one connection.
type Subscription interface {
	SubscribeLogs(ctx context.Context, addresses []string, topics []common.Hash) (string, error)
	ReadLog(ctx context.Context) (types.Log, error)
	Close() error
}

// Listener consumes the live event stream for one chain. Events for a vault
// are applied in receipt order: the read loop is the only goroutine touching
// the pipeline.
type Listener struct {
	chainID   domain.Chain
	wsURL     string
	vaults    domain.VaultStore
	processor *ledger.Processor
	dial      Dialer
	logger    *slog.Logger

	state connState
}

// New creates a Listener for one chain.
func New(chainID domain.Chain, wsURL string, vaults domain.VaultStore, processor *ledger.Processor, logger *slog.Logger) *Listener {
	return &Listener{
		chainID:   chainID,
		wsURL:     wsURL,
		vaults:    vaults,
		processor: processor,
		dial: func(ctx context.Context, url string) (Subscription, error) {
			return chain.Dial(ctx, url)
		},
		logger: logger.With(
			slog.String("component", "listener"),
			slog.String("chain", string(chainID)),
		),
		state: stateDisconnected,
	}
}

// Run connects, subscribes, and streams until ctx is cancelled. Disconnects
// trigger reconnect + resubscribe with exponential backoff and jitter;
// subscriptions do not survive a reconnect.
func (l *Listener) Run(ctx context.Context) error {
	vaultsByAddr, err := l.loadVaults(ctx)
	if err != nil {
		return err
	}
	if len(vaultsByAddr) == 0 {
		l.logger.InfoContext(ctx, "no active vaults on chain, listener idle")
		<-ctx.Done()
		return ctx.Err()
	}

	addresses := make([]string, 0, len(vaultsByAddr))
	for addr := range vaultsByAddr {
		addresses = append(addresses, addr)
	}

	backoff := baseBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := l.runConnection(ctx, addresses, vaultsByAddr)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !errors.Is(err, domain.ErrWSDisconnect) {
			// Dispatch-level misconfiguration is fatal, not retried.
			return err
		}

		l.setState(ctx, stateDisconnected)
		wait := jitter(backoff)
		l.logger.WarnContext(ctx, "stream disconnected, reconnecting",
			slog.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runConnection performs one connect/subscribe/stream cycle. It returns when
// the connection dies or ctx is cancelled.
func (l *Listener) runConnection(ctx context.Context, addresses []string, vaultsByAddr map[string]domain.Vault) error {
	l.setState(ctx, stateConnecting)
	sub, err := l.dial(ctx, l.wsURL)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrWSDisconnect, err)
	}
	defer sub.Close()

	subID, err := sub.SubscribeLogs(ctx, addresses, decoder.SubscriptionTopics())
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrWSDisconnect, err)
	}
	l.setState(ctx, stateSubscribed)
	l.logger.InfoContext(ctx, "log subscription established",
		slog.String("subscription", subID),
		slog.Int("vaults", len(addresses)))

	l.setState(ctx, stateStreaming)
	for {
		entry, err := sub.ReadLog(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := l.dispatch(ctx, vaultsByAddr, entry); err != nil {
			return err
		}
	}
}

// dispatch decodes one log entry and applies it to the ledger. Per-entry
// problems are logged and skipped; only misconfiguration errors propagate.
func (l *Listener) dispatch(ctx context.Context, vaultsByAddr map[string]domain.Vault, entry types.Log) error {
	if entry.Removed {
		l.logger.WarnContext(ctx, "re-orged log entry, skipping",
			slog.String("txhash", entry.TxHash.Hex()))
		return nil
	}

	vault, ok := vaultsByAddr[normalizeAddr(entry.Address.Hex())]
	if !ok {
		// The node only pushes logs for subscribed addresses; an unknown one
		// means the deployment's vault registry is wrong.
		return fmt.Errorf("listener: %w: log from unsubscribed address %s", domain.ErrVaultNotFound, entry.Address.Hex())
	}

	dec, err := decoder.DecodeLog(entry, vault.Decimals)
	if err != nil {
		l.logger.WarnContext(ctx, "undecodable log entry, skipping",
			slog.String("vault", vault.ContractAddress),
			slog.String("txhash", entry.TxHash.Hex()),
			slog.String("error", err.Error()))
		return nil
	}

	ev := domain.VaultEvent{
		Kind:         dec.Kind,
		TxHash:       entry.TxHash.Hex(),
		VaultAddress: vault.ContractAddress,
		UserAddress:  dec.UserAddress,
		Amount:       dec.Amount,
		Shares:       dec.Shares,
		Source:       domain.SourceLive,
		ObservedAt:   time.Now().UTC(),
	}
	if err := l.processor.Process(ctx, vault, ev); err != nil {
		// Store-level failure on a single event: log and keep streaming.
		l.logger.ErrorContext(ctx, "event processing failed",
			slog.String("vault", vault.ContractAddress),
			slog.String("txhash", ev.TxHash),
			slog.String("error", err.Error()))
	}
	return nil
}

func (l *Listener) loadVaults(ctx context.Context) (map[string]domain.Vault, error) {
	vaults, err := l.vaults.ListActive(ctx, l.chainID)
	if err != nil {
		return nil, fmt.Errorf("listener: load active vaults: %w", err)
	}
	byAddr := make(map[string]domain.Vault, len(vaults))
	for _, v := range vaults {
		byAddr[normalizeAddr(v.ContractAddress)] = v
	}
	return byAddr, nil
}

func (l *Listener) setState(ctx context.Context, s connState) {
	if l.state == s {
		return
	}
	l.logger.DebugContext(ctx, "connection state changed",
		slog.String("from", string(l.state)),
		slog.String("to", string(s)))
	l.state = s
}

func normalizeAddr(addr string) string {
	return strings.ToLower(addr)
}

// jitter spreads d across [d/2, 3d/2) so reconnecting listeners do not
// stampede the node.
func jitter(d time.Duration) time.Duration {
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(d)))
}
