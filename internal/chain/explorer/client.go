// Package explorer is an etherscan-compatible client for paginated
// transaction history, used by the backfill scanner.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

const (
	startBlock = 0
	endBlock   = 99_999_999

	// requestsPerSecond is the free-tier budget most explorer APIs allow.
	requestsPerSecond = 5
)

// Client queries an etherscan-style HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    domain.RateLimiter
}

// NewClient creates an explorer client. limiter may be nil to disable
// client-side throttling.
func NewClient(baseURL, apiKey string, limiter domain.RateLimiter) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
	}
}

// envelope is the standard etherscan response wrapper. Result is either an
// array of transactions or a plain string such as "Max rate limit reached".
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Transactions fetches one page of an address's transaction history.
// sort is "asc" or "desc". A provider rate-limit response is surfaced as
// domain.ErrRateLimited, which callers treat as a soft stop.
func (c *Client) Transactions(ctx context.Context, address string, page, offset int, sort string) ([]Transaction, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "explorer", requestsPerSecond, time.Second); err != nil {
			return nil, fmt.Errorf("explorer: throttle: %w", err)
		}
	}

	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("startblock", strconv.Itoa(startBlock))
	q.Set("endblock", strconv.Itoa(endBlock))
	q.Set("page", strconv.Itoa(page))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("sort", sort)
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("explorer: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer: txlist %s page %d: %w", address, page, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("explorer: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, domain.ErrRateLimited
		}
		return nil, fmt.Errorf("explorer: txlist %s: status %d: %s", address, resp.StatusCode, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("explorer: decode envelope: %w", err)
	}

	// A string result carries an API-level message rather than data.
	var msg string
	if err := json.Unmarshal(env.Result, &msg); err == nil {
		if strings.Contains(strings.ToLower(msg), "rate limit") {
			return nil, domain.ErrRateLimited
		}
		if strings.EqualFold(env.Message, "No transactions found") {
			return nil, nil
		}
		return nil, fmt.Errorf("explorer: txlist %s: %s", address, msg)
	}

	var txs []Transaction
	if err := json.Unmarshal(env.Result, &txs); err != nil {
		return nil, fmt.Errorf("explorer: decode transactions: %w", err)
	}
	return txs, nil
}
