package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bitfsorg/libpop-go/wallet"
)

// Error codes a registry node uses for unknown tokens. RPCConfig.NotFoundCodes
// adds to these.
const (
	rpcCodeNotFound        = -5
	rpcCodeNonexistentItem = -32001
)

// Error message fragments that mark an unknown token whatever the code.
var notFoundPhrases = []string{"not found", "nonexistent", "does not exist", "no such"}

// maxErrorBody bounds how much of a failed HTTP response is quoted.
const maxErrorBody = 1024

// HTTPDoer sends registry requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RPCClient reads the primary collection from a JSON-RPC endpoint that
// exposes "ownerof" and "balanceof". With RPCConfig.Batch set, OwnersOf
// sends one JSON-RPC array and drops back to single calls for good once
// the node refuses arrays.
type RPCClient struct {
	cfg     RPCConfig
	http    HTTPDoer
	seq     atomic.Int64
	noBatch atomic.Bool
}

var (
	_ Registry   = (*RPCClient)(nil)
	_ BatchOwner = (*RPCClient)(nil)
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is an error reported by the registry node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("registry: rpc error %d: %s", e.Code, e.Message)
}

func (c *RPCClient) notFound(err error) bool {
	var e *RPCError
	if !errors.As(err, &e) {
		return false
	}
	if e.Code == rpcCodeNotFound || e.Code == rpcCodeNonexistentItem || slices.Contains(c.cfg.NotFoundCodes, e.Code) {
		return true
	}
	msg := strings.ToLower(e.Message)
	for _, p := range notFoundPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

type httpStatusError struct {
	code int
	body []byte
}

func (e *httpStatusError) Error() string { return fmt.Sprintf("HTTP %d: %s", e.code, e.body) }

// refusal reports whether the status rejects the request itself rather
// than the credentials or the path to the node. JSON-RPC 1.0 nodes answer
// malformed calls with 400 or 500.
func (e *httpStatusError) refusal() bool {
	switch e.code {
	case http.StatusUnauthorized, http.StatusForbidden,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return false
	}
	return e.code/100 == 4 || e.code/100 == 5
}

// RPCOption customizes an RPCClient.
type RPCOption func(*RPCClient)

// WithHTTPClient replaces the default pooled client with a 30 second timeout.
func WithHTTPClient(d HTTPDoer) RPCOption {
	return func(c *RPCClient) { c.http = d }
}

// NewRPCClient creates a client for cfg. Basic auth is sent when User is set.
func NewRPCClient(cfg RPCConfig, opts ...RPCOption) *RPCClient {
	c := &RPCClient{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return c
}

func (c *RPCClient) newRequest(method string, params ...interface{}) rpcRequest {
	if params == nil {
		params = []interface{}{}
	}
	return rpcRequest{JSONRPC: "1.0", ID: c.seq.Add(1), Method: method, Params: params}
}

// post sends payload and decodes the body into out.
func (c *RPCClient) post(ctx context.Context, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("registry: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("registry: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.User != "" {
		req.SetBasicAuth(c.cfg.User, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %w", ErrConnectionFailed, &httpStatusError{code: resp.StatusCode, body: snippet})
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrInvalidResponse, err)
	}
	return nil
}

// unpack checks a response against its request and decodes the result.
func unpack(req rpcRequest, resp rpcResponse, result interface{}) error {
	if resp.ID != req.ID {
		return fmt.Errorf("%w: response id %d for request %d", ErrInvalidResponse, resp.ID, req.ID)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil || resp.Result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("%w: %s result: %w", ErrInvalidResponse, req.Method, err)
	}
	return nil
}

// Call invokes method and decodes the result into result when non-nil.
func (c *RPCClient) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	req := c.newRequest(method, params...)
	var resp rpcResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return err
	}
	return unpack(req, resp, result)
}

// OwnerOf calls "ownerof". The node may answer with a hex or base58 address.
func (c *RPCClient) OwnerOf(ctx context.Context, id uint64) (wallet.Address, error) {
	var s string
	if err := c.Call(ctx, "ownerof", []interface{}{id}, &s); err != nil {
		if c.notFound(err) {
			return wallet.ZeroAddress, fmt.Errorf("%w: %d", ErrTokenNotFound, id)
		}
		return wallet.ZeroAddress, err
	}
	return parseOwner(s)
}

// OwnersOf resolves ids, as one batch request when batching is enabled.
// Ids the node does not know come back as the zero address.
func (c *RPCClient) OwnersOf(ctx context.Context, ids []uint64) ([]wallet.Address, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if !c.cfg.Batch || c.noBatch.Load() {
		return c.ownersOneByOne(ctx, ids)
	}
	owners, err := c.ownersBatch(ctx, ids)
	if errors.Is(err, errBatchRefused) {
		c.noBatch.Store(true)
		return c.ownersOneByOne(ctx, ids)
	}
	return owners, err
}

// errBatchRefused marks a node that answered an array with something other
// than an array.
var errBatchRefused = errors.New("registry: batch refused")

func (c *RPCClient) ownersOneByOne(ctx context.Context, ids []uint64) ([]wallet.Address, error) {
	owners := make([]wallet.Address, len(ids))
	for i, id := range ids {
		owner, err := c.OwnerOf(ctx, id)
		if errors.Is(err, ErrTokenNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		owners[i] = owner
	}
	return owners, nil
}

func (c *RPCClient) ownersBatch(ctx context.Context, ids []uint64) ([]wallet.Address, error) {
	reqs := make([]rpcRequest, len(ids))
	index := make(map[int64]int, len(ids))
	for i, id := range ids {
		reqs[i] = c.newRequest("ownerof", id)
		index[reqs[i].ID] = i
	}

	var raw json.RawMessage
	if err := c.post(ctx, reqs, &raw); err != nil {
		var status *httpStatusError
		if errors.As(err, &status) && status.refusal() {
			return nil, fmt.Errorf("%w: %w", errBatchRefused, err)
		}
		return nil, err
	}
	var resps []rpcResponse
	if err := json.Unmarshal(raw, &resps); err != nil {
		return nil, fmt.Errorf("%w: %w", errBatchRefused, err)
	}
	if len(resps) != len(reqs) {
		return nil, fmt.Errorf("%w: %d responses for %d requests", ErrInvalidResponse, len(resps), len(reqs))
	}

	owners := make([]wallet.Address, len(ids))
	seen := make([]bool, len(ids))
	for _, resp := range resps {
		i, ok := index[resp.ID]
		if !ok || seen[i] {
			return nil, fmt.Errorf("%w: unexpected response id %d", ErrInvalidResponse, resp.ID)
		}
		seen[i] = true

		var s string
		if err := unpack(reqs[i], resp, &s); err != nil {
			if c.notFound(err) {
				continue
			}
			return nil, err
		}
		owner, err := parseOwner(s)
		if err != nil {
			return nil, err
		}
		owners[i] = owner
	}
	return owners, nil
}

// BalanceOf calls "balanceof" with the hex form of addr.
func (c *RPCClient) BalanceOf(ctx context.Context, addr wallet.Address) (uint64, error) {
	var n uint64
	if err := c.Call(ctx, "balanceof", []interface{}{addr.Hex()}, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func parseOwner(s string) (wallet.Address, error) {
	addr, err := wallet.ParseAddress(s)
	if err != nil {
		return wallet.ZeroAddress, fmt.Errorf("%w: owner %q: %w", ErrInvalidResponse, s, err)
	}
	return addr, nil
}
