// Package rpc is the JSON-RPC client for the execution engine that answers
// balance and contract call queries.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/explorer/internal/indexing/metrics"
)

// Config holds execution engine settings.
type Config struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries uint64        `yaml:"max_retries"`
}

// Error is an error object returned by the engine.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// CallMsg is the eth_call request object.
type CallMsg struct {
	From  *common.Address `json:"from,omitempty"`
	To    common.Address  `json:"to"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
}

// Client makes JSON-RPC calls over HTTP. Transport failures are retried;
// errors returned by the engine are not.
type Client struct {
	endpoint   string
	httpClient *http.Client
	retries    uint64
	nextID     atomic.Uint64
}

// NewClient creates an engine client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: cfg.URL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retries: cfg.MaxRetries,
	}
}

// Call invokes method and decodes the result into result.
func (c *Client) Call(ctx context.Context, result any, method string, params ...any) error {
	start := time.Now()
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      c.nextID.Add(1),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.retries),
		ctx,
	)
	raw, err := backoff.RetryWithData(func() (json.RawMessage, error) {
		return c.do(ctx, body)
	}, policy)

	metrics.EngineLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EngineCallsTotal.WithLabelValues(method, "error").Inc()
		return err
	}
	metrics.EngineCallsTotal.WithLabelValues(method, "ok").Inc()

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("parse result: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("http %d: %s", resp.StatusCode, string(data)))
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("parse response: %w", err))
	}
	if rpcResp.Error != nil {
		return nil, backoff.Permanent(rpcResp.Error)
	}
	return rpcResp.Result, nil
}

// blockParam pins a query to a block by hash (EIP-1898), or latest.
func blockParam(blockHash string) any {
	if blockHash == "" {
		return "latest"
	}
	return map[string]any{"blockHash": common.HexToHash(blockHash)}
}

// Balance returns the wei balance of address at blockHash.
func (c *Client) Balance(ctx context.Context, address common.Address, blockHash string) (*big.Int, error) {
	var out hexutil.Big
	if err := c.Call(ctx, &out, "eth_getBalance", address, blockParam(blockHash)); err != nil {
		return nil, err
	}
	return out.ToInt(), nil
}

// CallContract executes a read-only call at blockHash.
func (c *Client) CallContract(ctx context.Context, msg CallMsg, blockHash string) (hexutil.Bytes, error) {
	var out hexutil.Bytes
	if err := c.Call(ctx, &out, "eth_call", msg, blockParam(blockHash)); err != nil {
		return nil, err
	}
	return out, nil
}

// IsEngineError reports whether err came from the engine itself rather than
// the transport.
func IsEngineError(err error) bool {
	var rpcErr *Error
	return errors.As(err, &rpcErr)
}
