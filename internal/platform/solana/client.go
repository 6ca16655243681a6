// Package solana reads program accounts over the Solana JSON-RPC API.
package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// maxAccountsPerRequest is the getMultipleAccounts limit.
const maxAccountsPerRequest = 100

// Client is a JSON-RPC client scoped to one program. It implements
// domain.AccountSource.
type Client struct {
	rpcURL     string
	programID  domain.Address
	commitment string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	nextID     atomic.Uint64
}

var _ domain.AccountSource = (*Client)(nil)

// Options tunes a Client. Zero values take defaults.
type Options struct {
	Commitment string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// NewClient creates a client for the accounts owned by programID.
func NewClient(rpcURL string, programID domain.Address, opts Options) *Client {
	if opts.Commitment == "" {
		opts.Commitment = "confirmed"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		rpcURL:     rpcURL,
		programID:  programID,
		commitment: opts.Commitment,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     opts.Logger.With(slog.String("component", "solana")),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// accountInfo is the subset of an account the engine reads. Data is
// ["<base64>", "base64"].
type accountInfo struct {
	Data  []string `json:"data"`
	Owner string   `json:"owner"`
}

func (a *accountInfo) decode() ([]byte, error) {
	if len(a.Data) != 2 || a.Data[1] != "base64" {
		return nil, fmt.Errorf("unexpected account data encoding %v", a.Data)
	}
	return base64.StdEncoding.DecodeString(a.Data[0])
}

// ProgramAccounts calls getProgramAccounts with memcmp filters. An entry with
// an unparseable pubkey or data is logged and skipped; it never fails the
// batch.
func (c *Client) ProgramAccounts(ctx context.Context, filters []domain.AccountFilter) ([]domain.RawAccount, error) {
	memcmps := make([]map[string]any, 0, len(filters))
	for _, f := range filters {
		memcmps = append(memcmps, map[string]any{
			"memcmp": map[string]any{
				"offset": f.Offset,
				"bytes":  base58.Encode(f.Bytes),
			},
		})
	}
	cfg := map[string]any{
		"encoding":   "base64",
		"commitment": c.commitment,
	}
	if len(memcmps) > 0 {
		cfg["filters"] = memcmps
	}

	raw, err := c.call(ctx, "getProgramAccounts", []any{c.programID.String(), cfg})
	if err != nil {
		return nil, fmt.Errorf("solana: get program accounts: %w", err)
	}

	var result []struct {
		Pubkey  string      `json:"pubkey"`
		Account accountInfo `json:"account"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("solana: get program accounts: %w: decode result: %w", domain.ErrTransport, err)
	}

	out := make([]domain.RawAccount, 0, len(result))
	for _, r := range result {
		addr, err := domain.ParseAddress(r.Pubkey)
		if err != nil {
			c.logger.WarnContext(ctx, "solana: skipping account with bad pubkey",
				slog.String("pubkey", r.Pubkey),
				slog.String("error", err.Error()),
			)
			continue
		}
		data, err := r.Account.decode()
		if err != nil {
			c.logger.WarnContext(ctx, "solana: skipping account with bad data",
				slog.String("address", r.Pubkey),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, domain.RawAccount{Address: addr, Data: data})
	}
	return out, nil
}

// MultipleAccounts calls getMultipleAccounts in batches. Accounts that do not
// exist, belong to another program or carry undecodable data come back nil.
func (c *Client) MultipleAccounts(ctx context.Context, addrs []domain.Address) ([][]byte, error) {
	out := make([][]byte, 0, len(addrs))
	for start := 0; start < len(addrs); start += maxAccountsPerRequest {
		end := min(start+maxAccountsPerRequest, len(addrs))
		keys := make([]string, 0, end-start)
		for _, a := range addrs[start:end] {
			keys = append(keys, a.String())
		}

		raw, err := c.call(ctx, "getMultipleAccounts", []any{keys, map[string]any{
			"encoding":   "base64",
			"commitment": c.commitment,
		}})
		if err != nil {
			return nil, fmt.Errorf("solana: get multiple accounts: %w", err)
		}

		var result struct {
			Value []*accountInfo `json:"value"`
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("solana: get multiple accounts: %w: decode result: %w", domain.ErrTransport, err)
		}
		if len(result.Value) != len(keys) {
			return nil, fmt.Errorf("solana: get multiple accounts: %w: got %d values for %d keys", domain.ErrTransport, len(result.Value), len(keys))
		}

		program := c.programID.String()
		for i, info := range result.Value {
			if info == nil || info.Owner != program {
				out = append(out, nil)
				continue
			}
			data, err := info.decode()
			if err != nil {
				c.logger.WarnContext(ctx, "solana: treating account with bad data as missing",
					slog.String("address", keys[i]),
					slog.String("error", err.Error()),
				)
				out = append(out, nil)
				continue
			}
			out = append(out, data)
		}
	}
	return out, nil
}

// call posts one JSON-RPC request and returns its result, retrying
// rate-limited and server errors up to maxRetries times. Every failure
// wraps domain.ErrTransport except context cancellation.
func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(c.retryDelay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		result, retry, err := c.do(ctx, method, params)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrTransport, lastErr)
}

func (c *Client) do(ctx context.Context, method string, params []any) (json.RawMessage, bool, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, false, rpcResp.Error
	}
	if len(rpcResp.Result) == 0 {
		return nil, false, errors.New("empty result")
	}
	return rpcResp.Result, false, nil
}

// Health calls getHealth; it returns nil when the node reports "ok".
func (c *Client) Health(ctx context.Context) error {
	raw, err := c.call(ctx, "getHealth", []any{})
	if err != nil {
		return fmt.Errorf("solana: health: %w", err)
	}
	var status string
	if err := json.Unmarshal(raw, &status); err != nil || status != "ok" {
		return fmt.Errorf("solana: health: %w: status %s", domain.ErrTransport, string(raw))
	}
	return nil
}
