package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libpop-go/wallet"
)

func testAddr(seed byte) wallet.Address {
	var a wallet.Address
	for i := range a {
		a[i] = seed
	}
	return a
}

func TestMemRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewMemRegistry()
	alice, bob := testAddr(1), testAddr(2)

	ids := reg.MintN(alice, 3)
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	owner, err := reg.OwnerOf(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)

	require.NoError(t, reg.Transfer(2, bob))
	owner, err = reg.OwnerOf(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)

	n, err := reg.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	_, err = reg.OwnerOf(ctx, 99)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.ErrorIs(t, reg.Transfer(99, bob), ErrTokenNotFound)
}

// registryServer answers ownerof/balanceof from a fixed table, singly or
// as a JSON-RPC batch. Batch responses come back in reverse order.
func registryServer(t *testing.T, owners map[uint64]wallet.Address) *httptest.Server {
	t.Helper()
	srv, _ := countingRegistryServer(t, owners, true)
	return srv
}

// requestLog counts what a test registry received.
type requestLog struct {
	single, batch atomic.Int32
}

// countingRegistryServer is registryServer with request counts. Without
// arrays it answers a batch the way a JSON-RPC 1.0 node does, with 400
// and a parse error object.
func countingRegistryServer(t *testing.T, owners map[uint64]wallet.Address, arrays bool) (*httptest.Server, *requestLog) {
	t.Helper()
	log := &requestLog{}
	answer := func(req rpcRequest) rpcResponse {
		resp := rpcResponse{ID: req.ID}
		switch req.Method {
		case "ownerof":
			id := uint64(req.Params[0].(float64))
			if owner, ok := owners[id]; ok {
				resp.Result, _ = json.Marshal(owner.String())
			} else {
				resp.Error = &RPCError{Code: rpcCodeNonexistentItem, Message: "nonexistent token"}
			}
		case "balanceof":
			addr := wallet.MustParseAddress(req.Params[0].(string))
			var n uint64
			for _, o := range owners {
				if o == addr {
					n++
				}
			}
			resp.Result, _ = json.Marshal(n)
		default:
			resp.Error = &RPCError{Code: -32601, Message: "method not found"}
		}
		return resp
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if bytes.HasPrefix(bytes.TrimSpace(body), []byte("[")) {
			log.batch.Add(1)
			if !arrays {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(rpcResponse{Error: &RPCError{Code: -32700, Message: "parse error"}})
				return
			}
			var reqs []rpcRequest
			require.NoError(t, json.Unmarshal(body, &reqs))
			resps := make([]rpcResponse, len(reqs))
			for i, req := range reqs {
				resps[len(reqs)-1-i] = answer(req)
			}
			_ = json.NewEncoder(w).Encode(resps)
			return
		}
		log.single.Add(1)
		var req rpcRequest
		require.NoError(t, json.Unmarshal(body, &req))
		_ = json.NewEncoder(w).Encode(answer(req))
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

func TestRPCClient_OwnerOfAndBalance(t *testing.T) {
	ctx := context.Background()
	alice := testAddr(7)
	srv := registryServer(t, map[uint64]wallet.Address{1: alice, 2: alice, 3: testAddr(8)})
	client := NewRPCClient(RPCConfig{URL: srv.URL})

	owner, err := client.OwnerOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)

	n, err := client.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	_, err = client.OwnerOf(ctx, 42)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRPCClient_BasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "pop", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Result: json.RawMessage(`5`)})
	}))
	defer srv.Close()

	client := NewRPCClient(RPCConfig{URL: srv.URL, User: "pop", Password: "secret"})
	n, err := client.BalanceOf(context.Background(), testAddr(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)
}

func TestRPCClient_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}))
		defer srv.Close()
		_, err := NewRPCClient(RPCConfig{URL: srv.URL}).OwnerOf(ctx, 1)
		assert.ErrorIs(t, err, ErrConnectionFailed)
	})

	t.Run("id mismatch", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(rpcResponse{ID: 999, Result: json.RawMessage(`1`)})
		}))
		defer srv.Close()
		_, err := NewRPCClient(RPCConfig{URL: srv.URL}).BalanceOf(ctx, testAddr(1))
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})

	t.Run("bad owner", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req rpcRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Result: json.RawMessage(`"garbage"`)})
		}))
		defer srv.Close()
		_, err := NewRPCClient(RPCConfig{URL: srv.URL}).OwnerOf(ctx, 1)
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})

	t.Run("connection refused", func(t *testing.T) {
		_, err := NewRPCClient(RPCConfig{URL: "http://localhost:1"}).OwnerOf(ctx, 1)
		assert.ErrorIs(t, err, ErrConnectionFailed)
	})
}

func TestResolveConfig(t *testing.T) {
	tests := []struct {
		name      string
		flags     *RPCConfig
		env       map[string]string
		file      *RPCConfig
		network   string
		wantURL   string
		wantBatch bool
		wantErr   bool
	}{
		{name: "preset", network: "regtest", wantURL: "http://localhost:18445"},
		{name: "file over preset", network: "regtest", file: &RPCConfig{URL: "http://file"}, wantURL: "http://file"},
		{
			name: "env over file", network: "regtest",
			file: &RPCConfig{URL: "http://file"}, env: map[string]string{"POP_RPC_URL": "http://env"},
			wantURL: "http://env",
		},
		{
			name: "flags over env", network: "mainnet",
			env: map[string]string{"POP_RPC_URL": "http://env"}, flags: &RPCConfig{URL: "http://flag"},
			wantURL: "http://flag",
		},
		{name: "mainnet unconfigured", network: "mainnet", wantErr: true},
		{
			name: "batch from env", network: "regtest",
			env: map[string]string{"POP_RPC_BATCH": "true"}, wantURL: "http://localhost:18445", wantBatch: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ResolveConfig(tt.flags, tt.env, tt.file, tt.network)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotConfigured)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, cfg.URL)
			assert.Equal(t, tt.network, cfg.Network)
			assert.Equal(t, tt.wantBatch, cfg.Batch)
		})
	}
}

func TestRPCError_Message(t *testing.T) {
	err := &RPCError{Code: -5, Message: "no such token"}
	assert.True(t, strings.Contains(err.Error(), "no such token"))
}

func TestRPCClient_OwnersOf(t *testing.T) {
	ctx := context.Background()
	alice, bob := testAddr(7), testAddr(8)
	table := map[uint64]wallet.Address{1: alice, 3: bob}
	want := []wallet.Address{alice, wallet.ZeroAddress, bob}

	tests := []struct {
		name       string
		batch      bool
		arrays     bool
		wantBatch  int32
		wantSingle int32
	}{
		{name: "single calls by default", batch: false, arrays: true, wantBatch: 0, wantSingle: 6},
		{name: "batch", batch: true, arrays: true, wantBatch: 2, wantSingle: 0},
		{name: "batch refused falls back once", batch: true, arrays: false, wantBatch: 1, wantSingle: 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, log := countingRegistryServer(t, table, tt.arrays)
			client := NewRPCClient(RPCConfig{URL: srv.URL, Batch: tt.batch}, WithHTTPClient(srv.Client()))

			for range 2 {
				owners, err := client.OwnersOf(ctx, []uint64{1, 2, 3})
				require.NoError(t, err)
				assert.Equal(t, want, owners)
			}
			assert.Equal(t, tt.wantBatch, log.batch.Load())
			assert.Equal(t, tt.wantSingle, log.single.Load())

			owners, err := client.OwnersOf(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, owners)
		})
	}
}

func TestRPCClient_OwnersOfShortBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"result":"0707070707070707070707070707070707070707"}]`))
	}))
	defer srv.Close()
	_, err := NewRPCClient(RPCConfig{URL: srv.URL, Batch: true}).OwnersOf(context.Background(), []uint64{1, 2})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestRPCClient_NotFoundCodes(t *testing.T) {
	ctx := context.Background()
	serve := func(code int, msg string) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req rpcRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Error: &RPCError{Code: code, Message: msg}})
		}))
		t.Cleanup(srv.Close)
		return srv
	}

	tests := []struct {
		name     string
		code     int
		msg      string
		extra    []int
		notFound bool
	}{
		{name: "known code", code: rpcCodeNotFound, msg: "x", notFound: true},
		{name: "message", code: -8, msg: "Nonexistent token", notFound: true},
		{name: "configured code", code: -8, msg: "invalid parameter", extra: []int{-8}, notFound: true},
		{name: "other failure", code: -8, msg: "invalid parameter", notFound: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(tt.code, tt.msg)
			client := NewRPCClient(RPCConfig{URL: srv.URL, NotFoundCodes: tt.extra})

			_, err := client.OwnerOf(ctx, 9)
			if !tt.notFound {
				var rpcErr *RPCError
				require.ErrorAs(t, err, &rpcErr)
				assert.NotErrorIs(t, err, ErrTokenNotFound)
				return
			}
			assert.ErrorIs(t, err, ErrTokenNotFound)

			owners, err := client.OwnersOf(ctx, []uint64{9})
			require.NoError(t, err)
			assert.Equal(t, []wallet.Address{wallet.ZeroAddress}, owners)
		})
	}
}

// singleOnly hides MemRegistry's batch method.
type singleOnly struct{ Registry }

func TestOwners(t *testing.T) {
	ctx := context.Background()
	reg := NewMemRegistry()
	alice := testAddr(1)
	reg.MintN(alice, 2)

	want := []wallet.Address{alice, wallet.ZeroAddress, alice}
	for name, r := range map[string]Registry{"batch": reg, "single": singleOnly{reg}} {
		t.Run(name, func(t *testing.T) {
			owners, err := Owners(ctx, r, []uint64{1, 5, 2})
			require.NoError(t, err)
			assert.Equal(t, want, owners)
		})
	}
}

func TestHTTPStatusRefusal(t *testing.T) {
	for code, want := range map[int]bool{
		http.StatusBadRequest:          true,
		http.StatusNotFound:            true,
		http.StatusInternalServerError: true,
		http.StatusUnauthorized:        false,
		http.StatusForbidden:           false,
		http.StatusBadGateway:          false,
		http.StatusServiceUnavailable:  false,
	} {
		assert.Equal(t, want, (&httpStatusError{code: code}).refusal(), "HTTP %d", code)
	}
}
