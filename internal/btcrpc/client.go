// Package btcrpc is a JSON-RPC 1.0 client for a Bitcoin Core node, used by
// the block driver to fetch block and transaction data (spec §6 External
// interfaces, Bitcoin Core JSON-RPC).
package btcrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/runeindex/runeindexd/internal/rlog"
)

// Client is a minimal JSON-RPC 1.0 HTTP client targeting Bitcoin Core's
// RPC server. Unlike JSON-RPC 2.0, 1.0 requests carry positional params
// and omit the "jsonrpc" version field in some server implementations;
// Bitcoin Core accepts both, so this client sends the field for clarity
// but never depends on its presence in responses.
type Client struct {
	endpoint string
	user     string
	pass     string
	http     *http.Client

	// MaxElapsedTime bounds the total time spent retrying a single call
	// with backoff before giving up and returning the last error.
	MaxElapsedTime time.Duration
}

// New creates a client targeting endpoint (e.g. "http://127.0.0.1:8332"),
// authenticating with RPC user/pass credentials.
func New(endpoint, user, pass string) *Client {
	return &Client{
		endpoint:       endpoint,
		user:           user,
		pass:           pass,
		http:           &http.Client{Timeout: 30 * time.Second},
		MaxElapsedTime: 2 * time.Minute,
	}
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     string          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error is a Bitcoin Core JSON-RPC error response (a negative code with a
// human-readable message, e.g. -5 "No such mempool or blockchain
// transaction"). It is never retried: a node that rejects a well-formed
// request will keep rejecting it.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("btcrpc: %s (code %d)", e.Message, e.Code)
}

// call performs a single RPC round trip with no retry.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(request{JSONRPC: "1.0", ID: "runeindexd", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("btcrpc: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("btcrpc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("btcrpc: %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("btcrpc: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &Error{Code: http.StatusUnauthorized, Message: "unauthorized (check RPC credentials)"}
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("btcrpc: decode response for %s: %w", method, err)
	}

	if rpcResp.Error != nil {
		return &Error{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}

	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("btcrpc: decode result for %s: %w", method, err)
		}
	}
	return nil
}

// Call performs an RPC call with bounded exponential backoff around
// transport-level failures (connection refused, timeout). An *Error,
// whether a response from the node itself or an HTTP 401, is never
// retried.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	op := func() error {
		err := c.call(ctx, method, params, result)
		if err == nil {
			return nil
		}
		var rpcErr *Error
		if isRPCError(err, &rpcErr) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxElapsedTime(backoff.NewExponentialBackOff(), c.MaxElapsedTime), ctx)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		rlog.RPC.Warn().Err(err).Str("method", method).Dur("backoff", wait).Msg("retrying bitcoin rpc call")
	})
}

func isRPCError(err error, target **Error) bool {
	rpcErr, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = rpcErr
	return true
}
