// Package rpc is the JSON-RPC transport for fetching blocks from a single
// provider endpoint. Failover between providers is deliberately not handled
// here: every transport failure must surface to the caller so the health
// tracker can see it, which rules out silent endpoint rotation.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamx-network/streamx/pkg/utils"
)

// ErrBreakerOpen is returned while the endpoint's circuit breaker is open.
// It still counts as a transport error for health tracking, but fails fast
// instead of hammering a dead endpoint.
var ErrBreakerOpen = errors.New("circuit breaker open")

// ErrNotFound is returned when the node reports no block at the requested
// number (a null JSON-RPC result).
var ErrNotFound = errors.New("block not found")

// Client captures the RPC calls the streamer and prober issue against one
// provider endpoint. Every call reports its elapsed wall time so the caller
// can feed the health window.
type Client interface {
	// BlockNumber returns the provider's current chain head.
	BlockNumber(ctx context.Context) (uint64, time.Duration, error)
	// BlockByNumber fetches one block header (transaction hashes only).
	BlockByNumber(ctx context.Context, number uint64) (*Block, time.Duration, error)
}

// Factory produces RPC clients for provider endpoints.
type Factory interface {
	NewClient(endpoint string) Client
}

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

type httpFactory struct {
	opts Opts
}

// NewHTTPFactory returns a factory that builds HTTP clients with shared defaults.
func NewHTTPFactory(opts Opts) Factory {
	return &httpFactory{opts: opts}
}

func (f *httpFactory) NewClient(endpoint string) Client {
	return NewHTTPClient(endpoint, f.opts)
}

// HTTPClient is a JSON-RPC client for one endpoint with a token-bucket rate
// limit and a circuit breaker.
type HTTPClient struct {
	endpoint string
	client   *http.Client

	// token-bucket
	tokens      int64
	maxTokens   int64
	refillEvery time.Duration
	lastRefill  atomic.Value // time.Time

	// circuit-breaker
	mu          sync.Mutex
	failures    int
	openedUntil time.Time

	breakerThreshold int
	breakerCooldown  time.Duration

	nextID atomic.Uint64
}

// NewHTTPClient creates a client for the given endpoint, filling in defaults
// for unset options.
func NewHTTPClient(endpoint string, o Opts) *HTTPClient {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	c := &HTTPClient{
		endpoint:         endpoint,
		client:           client,
		maxTokens:        int64(o.Burst),
		refillEvery:      time.Second / time.Duration(o.RPS),
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
	c.tokens = c.maxTokens
	c.lastRefill.Store(time.Now())
	return c
}

// BlockNumber implements Client.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, time.Duration, error) {
	var result string
	elapsed, err := c.call(ctx, "eth_blockNumber", nil, &result)
	if err != nil {
		return 0, elapsed, err
	}
	n, err := parseQuantity(result)
	if err != nil {
		return 0, elapsed, err
	}
	return n, elapsed, nil
}

// BlockByNumber implements Client.
func (c *HTTPClient) BlockByNumber(ctx context.Context, number uint64) (*Block, time.Duration, error) {
	var result json.RawMessage
	params := []any{formatQuantity(number), false}
	elapsed, err := c.call(ctx, "eth_getBlockByNumber", params, &result)
	if err != nil {
		return nil, elapsed, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, elapsed, fmt.Errorf("%w: %d", ErrNotFound, number)
	}

	var b Block
	if err := json.Unmarshal(result, &b); err != nil {
		return nil, elapsed, fmt.Errorf("decode block %d: %w", number, err)
	}
	b.ReceivedAt = time.Now()
	return &b, elapsed, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call performs one timed JSON-RPC round trip. The elapsed duration is
// returned for failures too; a fast-failing breaker simply reports a near
// zero latency alongside the error.
func (c *HTTPClient) call(ctx context.Context, method string, params []any, out any) (time.Duration, error) {
	start := time.Now()

	if c.isOpen() {
		return time.Since(start), ErrBreakerOpen
	}

	c.acquire()

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return time.Since(start), err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return time.Since(start), err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.noteFailure()
		return time.Since(start), err
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	if resp.StatusCode >= 300 {
		c.noteFailure()
		return time.Since(start), fmt.Errorf("http %d from %s", resp.StatusCode, c.endpoint)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		c.noteFailure()
		return time.Since(start), fmt.Errorf("decode response: %w", err)
	}
	if rr.Error != nil {
		// The endpoint answered; this is a request-level error, not an
		// endpoint failure, so the breaker stays closed.
		return time.Since(start), rr.Error
	}

	c.noteSuccess()

	if out != nil {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return time.Since(start), fmt.Errorf("decode result: %w", err)
		}
	}
	return time.Since(start), nil
}

// refill refills the token-bucket with new tokens if necessary.
func (c *HTTPClient) refill() {
	last := c.lastRefill.Load().(time.Time)
	now := time.Now()
	if now.Sub(last) >= c.refillEvery {
		if atomic.LoadInt64(&c.tokens) < c.maxTokens {
			atomic.AddInt64(&c.tokens, 1)
		}
		c.lastRefill.Store(now)
	}
}

// acquire acquires a token from the token-bucket, blocking if necessary.
func (c *HTTPClient) acquire() {
	for {
		c.refill()
		if atomic.LoadInt64(&c.tokens) > 0 {
			atomic.AddInt64(&c.tokens, -1)
			return
		}
		time.Sleep(c.refillEvery / 2)
	}
}

// isOpen returns true while the breaker is in the OPEN state.
func (c *HTTPClient) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openedUntil.IsZero() {
		return false
	}
	if time.Now().After(c.openedUntil) {
		c.openedUntil = time.Time{}
		c.failures = 0
		return false
	}
	return true
}

// noteFailure opens the breaker once the failure count crosses the threshold.
func (c *HTTPClient) noteFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures >= c.breakerThreshold {
		c.openedUntil = time.Now().Add(c.breakerCooldown)
	}
}

func (c *HTTPClient) noteSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
}
