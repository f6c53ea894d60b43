// Package chain implements the chain data source: a WebSocket JSON-RPC log
// subscription client and a read-only contract caller.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 15 * time.Second

	// readPollTimeout is the per-read deadline. Hitting it is not an error;
	// the read loop yields and checks its context.
	readPollTimeout = 5 * time.Second
)

// Conn is a single WebSocket JSON-RPC connection to a chain node. It handles
// eth_subscribe for log filters and delivers subscription notifications via
// ReadLog. Reconnection is the caller's responsibility: a Conn that returns
// ErrWSDisconnect is dead and must be replaced (server-side subscriptions do
// not survive the connection).
type Conn struct {
	ws     *websocket.Conn
	nextID atomic.Int64

	mu     sync.Mutex // guards writes and pending
	subs   map[string]bool
	closed bool
}

// Dial opens a WebSocket connection to the node's JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}
	return &Conn{ws: ws, subs: make(map[string]bool)}, nil
}

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcMessage covers both call responses and subscription notifications.
type rpcMessage struct {
	ID     *int64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// logFilter is the eth_subscribe("logs", ...) filter object.
type logFilter struct {
	Address []string        `json:"address,omitempty"`
	Topics  [][]common.Hash `json:"topics,omitempty"`
}

// SubscribeLogs subscribes to log events for the given contract addresses,
// filtered to the union of the given first-position topics. It returns the
// server-assigned subscription id.
func (c *Conn) SubscribeLogs(ctx context.Context, addresses []string, topics []common.Hash) (string, error) {
	filter := logFilter{Address: addresses}
	if len(topics) > 0 {
		filter.Topics = [][]common.Hash{topics}
	}

	id := c.nextID.Add(1)
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "eth_subscribe",
		Params:  []any{"logs", filter},
	}
	if err := c.write(req); err != nil {
		return "", fmt.Errorf("chain: subscribe logs: %w", err)
	}

	// The subscription response arrives in-stream before any notification
	// for it, so read until we see our request id.
	deadline := time.Now().Add(handshakeTimeout)
	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg, err := c.read(deadline)
		if err != nil {
			return "", fmt.Errorf("chain: subscribe logs: %w", err)
		}
		if msg.ID == nil || *msg.ID != id {
			continue
		}
		if msg.Error != nil {
			return "", fmt.Errorf("chain: subscribe logs: %w", msg.Error)
		}
		var subID string
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return "", fmt.Errorf("chain: decode subscription id: %w", err)
		}
		c.mu.Lock()
		c.subs[subID] = true
		c.mu.Unlock()
		return subID, nil
	}
}

// ReadLog blocks until the next log notification arrives, ctx is cancelled,
// or the connection dies. Non-log frames (call responses, notifications for
// unknown subscriptions) are skipped. A dead connection is reported as
// domain.ErrWSDisconnect wrapped with the underlying cause.
func (c *Conn) ReadLog(ctx context.Context) (types.Log, error) {
	for {
		if err := ctx.Err(); err != nil {
			return types.Log{}, err
		}

		msg, err := c.read(time.Now().Add(readPollTimeout))
		if err != nil {
			if isTimeout(err) {
				continue // yield point between messages
			}
			return types.Log{}, fmt.Errorf("%w: %w", domain.ErrWSDisconnect, err)
		}

		if msg.Method != "eth_subscription" || msg.Params == nil {
			continue
		}
		c.mu.Lock()
		known := c.subs[msg.Params.Subscription]
		c.mu.Unlock()
		if !known {
			continue
		}

		var entry types.Log
		if err := json.Unmarshal(msg.Params.Result, &entry); err != nil {
			return types.Log{}, fmt.Errorf("chain: decode log entry: %w", err)
		}
		return entry, nil
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return c.ws.Close()
}

func (c *Conn) write(req rpcRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrWSDisconnect
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(req)
}

func (c *Conn) read(deadline time.Time) (rpcMessage, error) {
	c.ws.SetReadDeadline(deadline)
	var msg rpcMessage
	if err := c.ws.ReadJSON(&msg); err != nil {
		return rpcMessage{}, err
	}
	return msg, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
