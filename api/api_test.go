package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libpop-go/journal"
	"github.com/bitfsorg/libpop-go/ledger"
	"github.com/bitfsorg/libpop-go/registry"
	"github.com/bitfsorg/libpop-go/store"
	"github.com/bitfsorg/libpop-go/treasury"
	"github.com/bitfsorg/libpop-go/wallet"
)

const testPrice = 40_000_000_000_000_000

func testAddr(seed byte) wallet.Address {
	var a wallet.Address
	for i := range a {
		a[i] = seed
	}
	return a
}

var (
	payeeA   = testAddr(0xB1)
	payeeB   = testAddr(0xB2)
	poolAddr = testAddr(0xEE)
	fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	t        *testing.T
	server   *httptest.Server
	engine   *ledger.Engine
	registry *registry.MemRegistry
	treasury *treasury.Accounts
	journal  *journal.Journal
	owner    *wallet.Identity
	buyer    *wallet.Identity
	clock    atomic.Int64 // unix seconds, shared with the server
}

func newIdentity(t *testing.T) *wallet.Identity {
	t.Helper()
	id, err := wallet.NewIdentity()
	require.NoError(t, err)
	return id
}

// newFixture deploys an active sale at testPrice split 3:1 between payeeA
// and payeeB, with a treasury, a journal and an HTTP server.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, owner: newIdentity(t), buyer: newIdentity(t)}
	f.clock.Store(fixedNow.Unix())
	f.deploy(f.owner.Address)
	return f
}

func (f *fixture) deploy(owner wallet.Address) {
	t := f.t
	ctx := context.Background()
	dir := t.TempDir()

	s, err := store.OpenBoltStore(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, ledger.Deploy(ctx, s, ledger.Params{
		Owner:   owner,
		Name:    "MOFA Receipts",
		Symbol:  "MOFAR",
		Primary: "mofa",
		Price:   testPrice,
		Active:  true,
		BaseURI: "https://cdn.example/mofa/",
		Payees:  []wallet.Address{payeeA, payeeB},
		Shares:  []uint64{3, 1},
	}))

	f.treasury, err = treasury.Open(filepath.Join(dir, "treasury.db"), poolAddr)
	require.NoError(t, err)
	t.Cleanup(func() { f.treasury.Close() })

	f.journal, err = journal.Open(filepath.Join(dir, "journal.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { f.journal.Close() })

	f.registry = registry.NewMemRegistry()
	f.engine, err = ledger.Open(s, ledger.Deps{
		Registry: f.registry,
		Payout:   f.treasury,
		Events:   f.journal,
	})
	require.NoError(t, err)

	srv, err := NewServer(Options{
		Ledger: f.engine,
		Escrow: f.treasury,
		Events: f.journal,
		Now:    f.now,
	})
	require.NoError(t, err)
	f.server = httptest.NewServer(srv.Handler())
	t.Cleanup(f.server.Close)
}

func (f *fixture) now() time.Time { return time.Unix(f.clock.Load(), 0).UTC() }

// tick advances the shared clock by a second so that no two signed calls
// carry the same timestamp.
func (f *fixture) tick() time.Time { return time.Unix(f.clock.Add(1), 0).UTC() }

// call sends a request, signed by signer when it is non-nil, and decodes
// the JSON response.
func (f *fixture) call(method, path string, body any, signer *wallet.Identity) (int, map[string]any) {
	return f.callAt(method, path, body, signer, f.tick())
}

func (f *fixture) callAt(method, path string, body any, signer *wallet.Identity, at time.Time) (int, map[string]any) {
	t := f.t
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, f.server.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	if signer != nil {
		require.NoError(t, SignRequest(req, signer, raw, at))
	}
	return f.do(req)
}

func (f *fixture) do(req *http.Request) (int, map[string]any) {
	t := f.t
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error object in %v", body)
	assert.NotEmpty(t, body["request_id"])
	return e["code"].(string)
}

func (f *fixture) fund(addr wallet.Address, amount uint64) {
	require.NoError(f.t, f.treasury.Deposit(addr, amount))
}

func (f *fixture) balance(addr wallet.Address) uint64 {
	n, err := f.treasury.Balance(addr)
	require.NoError(f.t, err)
	return n
}

func amount(n uint64) string { return strconv.FormatUint(n, 10) }

// --- reads ---

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusGolden(t *testing.T) {
	f := &fixture{t: t}
	f.deploy(testAddr(0x11))

	buyer := testAddr(0x22)
	ids := f.registry.MintN(buyer, 2)
	_, err := f.engine.Purchase(context.Background(), buyer, 2*testPrice, ids)
	require.NoError(t, err)

	resp, err := http.Get(f.server.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		RequestID string `json:"request_id"`
		Status    Status `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.RequestID, "req_")

	out, err := json.MarshalIndent(body.Status, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "status", out)
}

func TestTokenEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.registry.MintN(f.buyer.Address, 2)
	minted, err := f.engine.Purchase(ctx, f.buyer.Address, 2*testPrice, ids)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, minted)

	status, body := f.call(http.MethodGet, "/v1/tokens/1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	tok := body["token"].(map[string]any)
	assert.Equal(t, f.buyer.Address.Hex(), tok["owner"])
	assert.EqualValues(t, ids[1], tok["primary_id"])
	assert.Equal(t, "https://cdn.example/mofa/1", tok["uri"])

	status, body = f.call(http.MethodGet, "/v1/tokens/1/uri", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://cdn.example/mofa/1", body["uri"])

	status, body = f.call(http.MethodGet, "/v1/tokens/7", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "UNKNOWN_TOKEN", errorCode(t, body))

	status, body = f.call(http.MethodGet, "/v1/tokens/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", errorCode(t, body))
}

func TestAccountEndpoint(t *testing.T) {
	f := newFixture(t)
	ids := f.registry.MintN(f.buyer.Address, 1)
	_, err := f.engine.Purchase(context.Background(), f.buyer.Address, testPrice, ids)
	require.NoError(t, err)

	status, body := f.call(http.MethodGet, "/v1/accounts/"+f.buyer.Address.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, status)
	acct := body["account"].(map[string]any)
	assert.EqualValues(t, 1, acct["balance"])
	assert.EqualValues(t, 0, acct["shares"])

	status, body = f.call(http.MethodGet, "/v1/accounts/"+payeeA.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, status)
	acct = body["account"].(map[string]any)
	assert.EqualValues(t, 3, acct["shares"])
	assert.Equal(t, amount(testPrice*3/4), acct["releasable"])
	assert.Equal(t, "0", acct["released"])

	status, body = f.call(http.MethodGet, "/v1/accounts/nope", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ADDRESS", errorCode(t, body))

	status, body = f.call(http.MethodGet, "/v1/accounts/"+wallet.ZeroAddress.Hex(), nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "ZERO_ADDRESS", errorCode(t, body))
}

func TestPayeesEndpoint(t *testing.T) {
	f := newFixture(t)
	ids := f.registry.MintN(f.buyer.Address, 4)
	_, err := f.engine.Purchase(context.Background(), f.buyer.Address, 4*testPrice, ids)
	require.NoError(t, err)

	status, body := f.call(http.MethodGet, "/v1/payees", nil, nil)
	require.Equal(t, http.StatusOK, status)
	payees := body["payees"].([]any)
	require.Len(t, payees, 2)
	first := payees[0].(map[string]any)
	second := payees[1].(map[string]any)
	assert.Equal(t, payeeA.Hex(), first["address"])
	assert.Equal(t, amount(3*testPrice), first["releasable"])
	assert.Equal(t, payeeB.Hex(), second["address"])
	assert.Equal(t, amount(testPrice), second["releasable"])
}

// --- authentication ---

func TestSignedRoutesRequireSignature(t *testing.T) {
	f := newFixture(t)

	status, body := f.call(http.MethodPost, "/v1/admin/active", map[string]bool{"active": false}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "MISSING_SIGNATURE", errorCode(t, body))

	status, body = f.callAt(http.MethodPost, "/v1/admin/active", map[string]bool{"active": false},
		f.owner, f.now().Add(-10*time.Minute))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "STALE_REQUEST", errorCode(t, body))

	active, err := f.engine.Active(context.Background())
	require.NoError(t, err)
	assert.True(t, active)
}

// signedRequest builds a request for body signed by signer at at. The
// returned function rebuilds it byte for byte.
func (f *fixture) signedRequest(method, path string, body []byte, signer *wallet.Identity, at time.Time) func() *http.Request {
	f.t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(f.t, err)
	require.NoError(f.t, SignRequest(req, signer, body, at))
	return func() *http.Request {
		clone := req.Clone(context.Background())
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.ContentLength = int64(len(body))
		return clone
	}
}

func TestReplayedRequestRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deactivate := f.signedRequest(http.MethodPost, "/v1/admin/active", []byte(`{"active":false}`), f.owner, f.tick())
	status, _ := f.do(deactivate())
	require.Equal(t, http.StatusOK, status)

	status, _ = f.call(http.MethodPost, "/v1/admin/active", map[string]bool{"active": true}, f.owner)
	require.Equal(t, http.StatusOK, status)

	status, body := f.do(deactivate())
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "STALE_REQUEST", errorCode(t, body))

	active, err := f.engine.Active(ctx)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestRequestSignedBeforeStartRejected(t *testing.T) {
	f := newFixture(t)
	signedAt := f.tick()
	f.clock.Add(30)

	// A restarted server has no record of what its predecessor served.
	srv, err := NewServer(Options{Ledger: f.engine, Escrow: f.treasury, Now: f.now})
	require.NoError(t, err)
	restarted := httptest.NewServer(srv.Handler())
	defer restarted.Close()
	f.server = restarted

	req := f.signedRequest(http.MethodPost, "/v1/admin/active", []byte(`{"active":false}`), f.owner, signedAt)
	status, body := f.do(req())
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "STALE_REQUEST", errorCode(t, body))

	status, _ = f.call(http.MethodPost, "/v1/admin/active", map[string]bool{"active": false}, f.owner)
	assert.Equal(t, http.StatusOK, status)
}

func TestReplayGuardExpires(t *testing.T) {
	g := newReplayGuard()
	signer := testAddr(0x01)
	msg := CanonicalRequest("POST", "/v1/release", "1700000000", nil)
	start := time.Unix(1700000000, 0)
	expires := start.Add(DefaultMaxSkew)

	assert.True(t, g.consume(signer, msg, expires, start))
	assert.False(t, g.consume(signer, msg, expires, start.Add(time.Minute)))
	assert.True(t, g.consume(testAddr(0x02), msg, expires, start.Add(time.Minute)))

	later := expires.Add(2 * time.Minute)
	assert.True(t, g.consume(signer, CanonicalRequest("POST", "/v1/release", "1700000400", nil), later.Add(DefaultMaxSkew), later))
	assert.Len(t, g.seen, 1)
}

func TestTamperedBodyRejected(t *testing.T) {
	f := newFixture(t)

	signed := []byte(`{"active":true}`)
	sent := []byte(`{"active":false}`)
	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/v1/admin/active", bytes.NewReader(sent))
	require.NoError(t, err)
	require.NoError(t, SignRequest(req, f.owner, signed, f.tick()))

	status, body := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "BAD_SIGNATURE", errorCode(t, body))
}

func TestCanonicalRequest(t *testing.T) {
	got := CanonicalRequest("POST", "/v1/release", "1700000000", []byte(`{}`))
	assert.Equal(t, "POST\n/v1/release\n1700000000\n{}", string(got))
}

// --- admin ---

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, body := f.call(http.MethodPost, "/v1/admin/price", map[string]string{"price": "5"}, f.buyer)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, body))

	status, _ = f.call(http.MethodPost, "/v1/admin/price", map[string]string{"price": "5"}, f.owner)
	require.Equal(t, http.StatusOK, status)
	price, err := f.engine.Price(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), price)

	status, _ = f.call(http.MethodPost, "/v1/admin/base-uri", map[string]string{"base_uri": "ipfs://cid/"}, f.owner)
	require.Equal(t, http.StatusOK, status)
	uri, err := f.engine.BaseURI(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://cid/", uri)

	status, _ = f.call(http.MethodPost, "/v1/admin/active", map[string]bool{"active": false}, f.owner)
	require.Equal(t, http.StatusOK, status)
	active, err := f.engine.Active(ctx)
	require.NoError(t, err)
	assert.False(t, active)

	status, body = f.call(http.MethodPost, "/v1/admin/price", map[string]any{"price": "5", "extra": 1}, f.owner)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", errorCode(t, body))
}

// --- issuance ---

func TestPurchaseThroughEscrow(t *testing.T) {
	f := newFixture(t)
	ids := f.registry.MintN(f.buyer.Address, 3)
	f.fund(f.buyer.Address, 3*testPrice)

	status, body := f.call(http.MethodPost, "/v1/purchase", IssueRequest{Value: 3 * testPrice, PrimaryIDs: ids}, f.buyer)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, []any{0.0, 1.0, 2.0}, body["receipts"])

	assert.Equal(t, uint64(0), f.balance(f.buyer.Address))
	assert.Equal(t, uint64(3*testPrice), f.balance(poolAddr))

	received, err := f.engine.TotalReceived(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3*testPrice), received)
}

func TestPurchaseFailuresRefund(t *testing.T) {
	f := newFixture(t)
	ids := f.registry.MintN(f.buyer.Address, 2)

	// Not enough funds in the treasury account.
	status, body := f.call(http.MethodPost, "/v1/purchase", IssueRequest{Value: testPrice, PrimaryIDs: ids[:1]}, f.buyer)
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "INSUFFICIENT_FUNDS", errorCode(t, body))

	f.fund(f.buyer.Address, 4*testPrice)

	// Attached value below price.
	status, body = f.call(http.MethodPost, "/v1/purchase", IssueRequest{Value: testPrice, PrimaryIDs: ids}, f.buyer)
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "INSUFFICIENT_PAYMENT", errorCode(t, body))
	assert.Equal(t, uint64(4*testPrice), f.balance(f.buyer.Address))

	status, _ = f.call(http.MethodPost, "/v1/purchase", IssueRequest{Value: testPrice, PrimaryIDs: ids[:1]}, f.buyer)
	require.Equal(t, http.StatusCreated, status)

	// Same primary id again.
	status, body = f.call(http.MethodPost, "/v1/purchase", IssueRequest{Value: testPrice, PrimaryIDs: ids[:1]}, f.buyer)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_REDEEMED", errorCode(t, body))
	assert.Equal(t, uint64(3*testPrice), f.balance(f.buyer.Address))

	// Caller does not hold the primary token.
	other := newIdentity(t)
	f.fund(other.Address, testPrice)
	status, body = f.call(http.MethodPost, "/v1/purchase", IssueRequest{Value: testPrice, PrimaryIDs: ids[1:]}, other)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "INELIGIBLE", errorCode(t, body))
	assert.Equal(t, uint64(testPrice), f.balance(other.Address))
}

func TestPurchaseRefusedWhenPoolOverflows(t *testing.T) {
	f := newFixture(t)
	ids := f.registry.MintN(f.buyer.Address, 1)
	f.fund(poolAddr, ^uint64(0)-testPrice+1)
	f.fund(f.buyer.Address, testPrice)

	status, body := f.call(http.MethodPost, "/v1/purchase", IssueRequest{Value: testPrice, PrimaryIDs: ids}, f.buyer)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "BALANCE_OVERFLOW", errorCode(t, body))

	supply, err := f.engine.TotalSupply(context.Background())
	require.NoError(t, err)
	assert.Zero(t, supply)
	received, err := f.engine.TotalReceived(context.Background())
	require.NoError(t, err)
	assert.Zero(t, received)
	assert.Equal(t, uint64(testPrice), f.balance(f.buyer.Address))

	pending, err := f.treasury.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPurchaseWithoutEscrow(t *testing.T) {
	f := newFixture(t)
	srv, err := NewServer(Options{Ledger: f.engine, Now: f.now})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	f.server = ts

	status, body := f.call(http.MethodPost, "/v1/purchase", IssueRequest{Value: testPrice, PrimaryIDs: []uint64{1}}, f.buyer)
	assert.Equal(t, http.StatusNotImplemented, status)
	assert.Equal(t, "PURCHASE_DISABLED", errorCode(t, body))

	resp, err := http.Get(ts.URL + "/v1/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGenerate(t *testing.T) {
	f := newFixture(t)
	recipient := testAddr(0x42)

	status, body := f.call(http.MethodPost, "/v1/generate", IssueRequest{To: recipient.Hex(), PrimaryIDs: []uint64{10, 11}}, f.buyer)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, body))

	status, body = f.call(http.MethodPost, "/v1/generate", IssueRequest{To: recipient.Hex(), PrimaryIDs: []uint64{10, 11}}, f.owner)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, []any{0.0, 1.0}, body["receipts"])

	status, body = f.call(http.MethodPost, "/v1/generate", IssueRequest{To: recipient.Hex()}, f.owner)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "EMPTY_BATCH", errorCode(t, body))

	n, err := f.engine.BalanceOf(context.Background(), recipient)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

// --- payments ---

func TestReleaseFlow(t *testing.T) {
	f := newFixture(t)
	ids := f.registry.MintN(f.buyer.Address, 4)
	f.fund(f.buyer.Address, 4*testPrice)
	status, _ := f.call(http.MethodPost, "/v1/purchase", IssueRequest{Value: 4 * testPrice, PrimaryIDs: ids}, f.buyer)
	require.Equal(t, http.StatusCreated, status)

	// Anyone may trigger a release.
	status, body := f.call(http.MethodPost, "/v1/release/"+payeeA.Hex(), nil, f.buyer)
	require.Equal(t, http.StatusOK, status, body)
	rel := body["release"].(map[string]any)
	assert.Equal(t, payeeA.Hex(), rel["payee"])
	assert.Equal(t, amount(3*testPrice), rel["amount"])
	assert.Equal(t, uint64(3*testPrice), f.balance(payeeA))

	status, body = f.call(http.MethodPost, "/v1/release/"+payeeA.Hex(), nil, f.buyer)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "NOTHING_DUE", errorCode(t, body))

	status, body = f.call(http.MethodPost, "/v1/release/"+testAddr(0x77).Hex(), nil, f.buyer)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "UNKNOWN_PAYEE", errorCode(t, body))

	status, body = f.call(http.MethodPost, "/v1/release", nil, f.owner)
	require.Equal(t, http.StatusOK, status, body)
	releases := body["releases"].([]any)
	require.Len(t, releases, 1)
	assert.Equal(t, payeeB.Hex(), releases[0].(map[string]any)["payee"])
	assert.Equal(t, uint64(testPrice), f.balance(payeeB))
	assert.Equal(t, uint64(0), f.balance(poolAddr))

	status, body = f.call(http.MethodPost, "/v1/release", nil, f.owner)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "NOTHING_DUE", errorCode(t, body))
}

func TestTransferAlwaysRejected(t *testing.T) {
	f := newFixture(t)
	ids := f.registry.MintN(f.buyer.Address, 1)
	_, err := f.engine.Purchase(context.Background(), f.buyer.Address, testPrice, ids)
	require.NoError(t, err)

	for _, req := range []TransferRequest{
		{From: f.buyer.Address.Hex(), To: payeeA.Hex(), TokenID: 0},
		{From: f.buyer.Address.Hex(), To: payeeA.Hex(), TokenID: 0, Safe: true},
		{From: f.buyer.Address.Hex(), To: payeeA.Hex(), TokenID: 0, Data: "cafe"},
	} {
		status, body := f.call(http.MethodPost, "/v1/transfer", req, f.buyer)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "NONTRANSFERABLE", errorCode(t, body))
	}

	owner, err := f.engine.OwnerOf(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, f.buyer.Address, owner)
}

// --- events ---

func TestEventsEndpoint(t *testing.T) {
	f := newFixture(t)
	ids := f.registry.MintN(f.buyer.Address, 2)
	f.fund(f.buyer.Address, 2*testPrice)
	status, _ := f.call(http.MethodPost, "/v1/purchase", IssueRequest{Value: 2 * testPrice, PrimaryIDs: ids}, f.buyer)
	require.Equal(t, http.StatusCreated, status)

	status, body := f.call(http.MethodGet, "/v1/events?kind=Transfer", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["events"].([]any), 2)

	status, body = f.call(http.MethodGet, "/v1/events?kind=PaymentReceived&address="+f.buyer.Address.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, status)
	events := body["events"].([]any)
	require.Len(t, events, 1)
	ev := events[0].(map[string]any)["event"].(map[string]any)
	assert.EqualValues(t, 2*testPrice, ev["amount"])

	status, body = f.call(http.MethodGet, "/v1/events?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["events"].([]any), 1)

	status, body = f.call(http.MethodGet, "/v1/events?limit=-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", errorCode(t, body))

	status, body = f.call(http.MethodGet, "/v1/events?kind=PriceChanged", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["events"])
}

// --- error mapping ---

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: payee", ledger.ErrNothingDue), http.StatusConflict, "NOTHING_DUE"},
		{errors.Join(errors.New("payout"), ledger.ErrUnknownPayee), http.StatusNotFound, "UNKNOWN_PAYEE"},
		{fmt.Errorf("%w: %w", ErrBadSignature, wallet.ErrInvalidSignature), http.StatusUnauthorized, "BAD_SIGNATURE"},
		{treasury.ErrInsufficientFunds, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS"},
		{registry.ErrConnectionFailed, http.StatusBadGateway, "REGISTRY_UNAVAILABLE"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestNewServerRequiresLedger(t *testing.T) {
	_, err := NewServer(Options{})
	assert.ErrorIs(t, err, ledger.ErrNilDependency)
}
