// Package decoder parses raw vault log entries and historical method-call
// inputs into normalized events. Decoding is pure: a malformed entry yields an
// error the caller logs and skips, never a crash.
package decoder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

// Event topic hashes for the four vault operations. InitiateWithdrawal and
// RequestFunds are the options-wheel and delta-neutral names for the same
// operation.
var (
	TopicDeposited          = crypto.Keccak256Hash([]byte("Deposited(address,uint256,uint256)"))
	TopicInitiateWithdrawal = crypto.Keccak256Hash([]byte("InitiateWithdrawal(address,uint256,uint256)"))
	TopicRequestFunds       = crypto.Keccak256Hash([]byte("RequestFunds(address,uint256,uint256)"))
	TopicWithdrawn          = crypto.Keccak256Hash([]byte("Withdrawn(address,uint256,uint256)"))
	TopicPositionOpened     = crypto.Keccak256Hash([]byte("PositionOpened(uint256,uint256,uint256,uint256)"))
	TopicPositionClosed     = crypto.Keccak256Hash([]byte("PositionClosed(uint256,uint256,uint256,uint256)"))
)

// Method selectors for the backfill path. The explorer returns raw call
// inputs, so historical transactions are matched by their first four bytes.
var (
	SelectorDeposit          = selector("deposit(uint256)")
	SelectorInitiateWithdraw = selector("initiateWithdrawal(uint256)")
	SelectorCompleteWithdraw = selector("completeWithdrawal(uint256)")
)

func selector(sig string) [4]byte {
	var s [4]byte
	copy(s[:], crypto.Keccak256([]byte(sig))[:4])
	return s
}

// kindByTopic maps a log's first topic to the operation it represents. Both
// strategy variants share the Deposited and Withdrawn signatures; only the
// initiate-withdraw signature differs.
var kindByTopic = map[common.Hash]domain.EventKind{
	TopicDeposited:          domain.EventDeposit,
	TopicInitiateWithdrawal: domain.EventInitiateWithdraw,
	TopicRequestFunds:       domain.EventInitiateWithdraw,
	TopicWithdrawn:          domain.EventCompleteWithdraw,
	TopicPositionOpened:     domain.EventPositionOpened,
	TopicPositionClosed:     domain.EventPositionClosed,
}

// SubscriptionTopics returns every topic hash the live listener subscribes to.
func SubscriptionTopics() []common.Hash {
	return []common.Hash{
		TopicDeposited,
		TopicInitiateWithdrawal,
		TopicRequestFunds,
		TopicWithdrawn,
		TopicPositionOpened,
		TopicPositionClosed,
	}
}

// KindForTopic resolves a log's first topic to an event kind.
func KindForTopic(topic common.Hash) (domain.EventKind, bool) {
	k, ok := kindByTopic[topic]
	return k, ok
}

const wordSize = 32

// Decoded is the normalized output of a single log or call-input decode.
type Decoded struct {
	Kind        domain.EventKind
	Amount      decimal.Decimal
	Shares      decimal.Decimal
	UserAddress string
}

// DecodeLog parses a raw log entry into a Decoded event. The data payload is
// a sequence of 32-byte words: word 0 is the amount, word 1 (when present)
// the share count. The counterparty address is the last 20 bytes of the
// second topic. decimals is the vault's declared fixed-point scale.
func DecodeLog(entry types.Log, decimals int32) (Decoded, error) {
	if len(entry.Topics) == 0 {
		return Decoded{}, fmt.Errorf("decoder: log %s has no topics", entry.TxHash)
	}
	kind, ok := KindForTopic(entry.Topics[0])
	if !ok {
		return Decoded{}, fmt.Errorf("decoder: log %s: unrecognized topic %s", entry.TxHash, entry.Topics[0])
	}
	if len(entry.Topics) < 2 {
		return Decoded{}, fmt.Errorf("decoder: log %s: missing address topic", entry.TxHash)
	}
	if len(entry.Data) < wordSize {
		return Decoded{}, fmt.Errorf("decoder: log %s: data too short (%d bytes)", entry.TxHash, len(entry.Data))
	}

	d := Decoded{
		Kind:        kind,
		Amount:      scaled(entry.Data[:wordSize], decimals),
		UserAddress: topicAddress(entry.Topics[1]),
	}
	if len(entry.Data) >= 2*wordSize {
		d.Shares = scaled(entry.Data[wordSize:2*wordSize], decimals)
	}
	return d, nil
}

// DecodeInput parses a historical transaction's call input. The selector
// picks the operation; the first argument word is the amount. Unrecognized
// selectors return (Decoded{}, false, nil) so callers can skip unrelated
// transactions without treating them as errors.
func DecodeInput(input []byte, decimals int32) (Decoded, bool, error) {
	if len(input) < 4 {
		return Decoded{}, false, nil
	}
	var sel [4]byte
	copy(sel[:], input[:4])

	var kind domain.EventKind
	switch sel {
	case SelectorDeposit:
		kind = domain.EventDeposit
	case SelectorInitiateWithdraw:
		kind = domain.EventInitiateWithdraw
	case SelectorCompleteWithdraw:
		kind = domain.EventCompleteWithdraw
	default:
		return Decoded{}, false, nil
	}

	args := input[4:]
	if len(args) < wordSize {
		return Decoded{}, false, fmt.Errorf("decoder: %s input truncated (%d arg bytes)", kind, len(args))
	}
	return Decoded{
		Kind:   kind,
		Amount: scaled(args[:wordSize], decimals),
	}, true, nil
}

// scaled interprets word as an unsigned big-endian integer with the given
// number of implied decimal places.
func scaled(word []byte, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetBytes(word), -decimals)
}

// topicAddress extracts the address packed into a 32-byte, left-padded topic.
func topicAddress(t common.Hash) string {
	return common.BytesToAddress(t.Bytes()[wordSize-common.AddressLength:]).Hex()
}
