package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libpop-go/api"
	"github.com/bitfsorg/libpop-go/journal"
	"github.com/bitfsorg/libpop-go/treasury"
	"github.com/bitfsorg/libpop-go/wallet"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pop", cmd.Use)
	assert.Contains(t, cmd.Long, "soulbound")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"key", "deploy", "status", "set-active", "set-price", "set-base-uri",
		"generate", "purchase", "release", "token", "balance", "deposit", "events", "serve",
	}
	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			assert.Equal(t, name, sub.Name())
		})
	}

	for _, name := range []string{"new", "show"} {
		sub, _, err := cmd.Find([]string{"key", name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	for _, name := range []string{"datadir", "password", "rpc-url", "rpc-user", "rpc-pass", "rpc-batch"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	tests := []struct {
		path []string
		flag string
		def  string
	}{
		{[]string{"deploy"}, "manifest", "pop.yaml"},
		{[]string{"generate"}, "to", ""},
		{[]string{"purchase"}, "value", ""},
		{[]string{"events"}, "limit", "50"},
		{[]string{"serve"}, "listen", ""},
		{[]string{"key", "new"}, "words", "12"},
	}
	for _, tt := range tests {
		sub, _, err := cmd.Find(tt.path)
		require.NoError(t, err)
		f := sub.Flags().Lookup(tt.flag)
		require.NotNil(t, f, "%v --%s", tt.path, tt.flag)
		assert.Equal(t, tt.def, f.DefValue)
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--format", "xml", "status"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", WrapExitError(ExitFailure, "x", io.EOF))))
	assert.Equal(t, ExitFailure, GetExitCode(io.EOF))
}

func TestOutputFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}
	require.NoError(t, f.Error("SALE_INACTIVE", "sale is not active"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "SALE_INACTIVE", resp.Error.Code)

	buf.Reset()
	f.Format = "text"
	require.NoError(t, f.Success("done", nil))
	assert.Equal(t, "done\n", buf.String())
}

// --- end to end ---

const testPassword = "correct horse battery staple"

var (
	payeeA = wallet.MustParseAddress("a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1")
	payeeB = wallet.MustParseAddress("b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2")
)

type env struct {
	t       *testing.T
	dataDir string
	rpcURL  string
	flags   []string
	owner   wallet.Address
	batches *atomic.Int32
}

// response mirrors CLIResponse with the data left raw.
type response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// run executes pop with the env's global flags and JSON output.
func (e *env) run(args ...string) (json.RawMessage, error) {
	e.t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	global := []string{
		"--datadir", e.dataDir,
		"--format", "json",
		"--password", testPassword,
		"--rpc-url", e.rpcURL,
	}
	cmd.SetArgs(append(append(global, e.flags...), args...))
	if err := cmd.Execute(); err != nil {
		return nil, err
	}
	var resp response
	require.NoError(e.t, json.Unmarshal(out.Bytes(), &resp), out.String())
	require.Equal(e.t, "ok", resp.Status)
	return resp.Data, nil
}

func (e *env) mustRun(v any, args ...string) {
	e.t.Helper()
	data, err := e.run(args...)
	require.NoError(e.t, err, "pop %v", args)
	if v != nil {
		require.NoError(e.t, json.Unmarshal(data, v))
	}
}

type rpcCall struct {
	ID     uint64        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// registryServer reports owner as the holder of primary ids 1 to 5. It
// answers JSON-RPC batches too and counts them in batches.
func registryServer(t *testing.T, owner func() wallet.Address, batches *atomic.Int32) *httptest.Server {
	t.Helper()
	answer := func(req rpcCall) map[string]any {
		resp := map[string]any{"id": req.ID}
		switch req.Method {
		case "ownerof":
			if id := uint64(req.Params[0].(float64)); id >= 1 && id <= 5 {
				resp["result"] = owner().Hex()
			} else {
				resp["error"] = map[string]any{"code": -8, "message": "nonexistent token"}
			}
		case "balanceof":
			resp["result"] = 5
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		return resp
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if bytes.HasPrefix(bytes.TrimSpace(body), []byte("[")) {
			batches.Add(1)
			var reqs []rpcCall
			require.NoError(t, json.Unmarshal(body, &reqs))
			resps := make([]map[string]any, 0, len(reqs))
			for _, req := range reqs {
				resps = append(resps, answer(req))
			}
			_ = json.NewEncoder(w).Encode(resps)
			return
		}
		var req rpcCall
		require.NoError(t, json.Unmarshal(body, &req))
		_ = json.NewEncoder(w).Encode(answer(req))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newEnv(t *testing.T, flags ...string) *env {
	t.Helper()
	e := &env{t: t, dataDir: t.TempDir(), flags: flags, batches: &atomic.Int32{}}
	e.rpcURL = registryServer(t, func() wallet.Address { return e.owner }, e.batches).URL

	var key KeyInfo
	e.mustRun(&key, "key", "new")
	require.False(t, key.Address.IsZero())
	assert.NotEmpty(t, key.Mnemonic)
	e.owner = key.Address

	manifest := fmt.Sprintf(`name: MOFA Receipts
symbol: MOFAR
primary: mofa
price: 100
active: true
base_uri: https://cdn.example/mofa/
owner: %q
payees:
  - address: %q
    shares: 3
  - address: %q
    shares: 1
`, e.owner.Hex(), payeeA.Hex(), payeeB.Hex())
	path := filepath.Join(e.dataDir, "pop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0600))

	var st api.Status
	e.mustRun(&st, "deploy", "--manifest", path)
	assert.Equal(t, "MOFA Receipts", st.Name)
	assert.Equal(t, e.owner, st.Owner)
	assert.Equal(t, uint64(4), st.TotalShares)
	return e
}

func TestEndToEnd(t *testing.T) {
	e := newEnv(t)

	var key KeyInfo
	e.mustRun(&key, "key", "show")
	assert.Equal(t, e.owner, key.Address)

	var dep Deposit
	e.mustRun(&dep, "deposit", e.owner.Hex(), "1000")
	assert.Equal(t, uint64(1000), dep.Funds)

	var bought IssueResult
	e.mustRun(&bought, "purchase", "1", "2")
	assert.Equal(t, []uint64{0, 1}, bought.Receipts)
	assert.Equal(t, uint64(200), bought.Value)

	var st api.Status
	e.mustRun(&st, "status")
	assert.Equal(t, uint64(2), st.TotalSupply)
	assert.Equal(t, uint64(200), st.TotalReceived)

	var rel ReleaseResult
	e.mustRun(&rel, "release")
	require.Len(t, rel.Releases, 2)
	assert.Equal(t, api.Release{Payee: payeeA, Amount: 150}, rel.Releases[0])
	assert.Equal(t, api.Release{Payee: payeeB, Amount: 50}, rel.Releases[1])
	assert.Nil(t, rel.Error)

	var bal BalanceView
	e.mustRun(&bal, "balance", payeeA.Hex())
	assert.Equal(t, uint64(150), bal.Funds)
	assert.Equal(t, uint64(3), bal.Shares)
	assert.Equal(t, uint64(150), bal.Released)
	assert.Zero(t, bal.Releasable)

	e.mustRun(&bal, "balance", e.owner.Hex())
	assert.Equal(t, uint64(800), bal.Funds)
	assert.Equal(t, uint64(2), bal.Balance)

	var gen IssueResult
	e.mustRun(&gen, "generate", "--to", payeeB.Hex(), "3")
	assert.Equal(t, []uint64{2}, gen.Receipts)
	assert.Equal(t, payeeB, gen.To)

	var tok api.Token
	e.mustRun(&tok, "token", "2")
	assert.Equal(t, payeeB, tok.Owner)
	assert.Equal(t, uint64(3), tok.PrimaryID)
	assert.Equal(t, "https://cdn.example/mofa/2", tok.URI)

	var events []journal.Record
	e.mustRun(&events, "events", "--kind", "Transfer")
	assert.Len(t, events, 3)

	e.mustRun(&events, "events", "--kind", "Deployed")
	require.Len(t, events, 1)
	assert.Equal(t, "MOFA Receipts", events[0].Event.Text)
}

func TestPurchaseRejectedKeepsFunds(t *testing.T) {
	e := newEnv(t)
	e.mustRun(nil, "deposit", e.owner.Hex(), "300")
	e.mustRun(nil, "purchase", "1")

	_, err := e.run("purchase", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "ALREADY_REDEEMED")

	_, err = e.run("purchase", "--value", "50", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INSUFFICIENT_PAYMENT")

	var bal BalanceView
	e.mustRun(&bal, "balance", e.owner.Hex())
	assert.Equal(t, uint64(200), bal.Funds)
	assert.Equal(t, uint64(1), bal.Balance)
}

func TestPurchaseRegistryModes(t *testing.T) {
	tests := []struct {
		name        string
		flags       []string
		wantBatches int32
	}{
		{name: "single lookups", wantBatches: 0},
		{name: "batched lookups", flags: []string{"--rpc-batch"}, wantBatches: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.flags...)
			e.mustRun(nil, "deposit", e.owner.Hex(), "1000")

			var bought IssueResult
			e.mustRun(&bought, "purchase", "1", "2", "3")
			assert.Equal(t, []uint64{0, 1, 2}, bought.Receipts)

			_, err := e.run("purchase", "4", "9")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "INELIGIBLE")

			var bal BalanceView
			e.mustRun(&bal, "balance", e.owner.Hex())
			assert.Equal(t, uint64(700), bal.Funds)
			assert.Equal(t, tt.wantBatches, e.batches.Load())
		})
	}
}

func TestInterruptedPurchaseSettledOnOpen(t *testing.T) {
	e := newEnv(t)
	e.mustRun(nil, "deposit", e.owner.Hex(), "1000")
	e.mustRun(nil, "purchase", "1")

	// Leave two escrows behind as a killed process would: one whose
	// purchase committed (id 1 holds a receipt) and one that never ran.
	accts, err := treasury.Open(filepath.Join(e.dataDir, "treasury.db"), poolAddress)
	require.NoError(t, err)
	for _, ids := range [][]uint64{{1}, {2}} {
		assert.Panics(t, func() {
			_ = accts.Escrow(context.Background(), e.owner, 100, ids, func(context.Context) error { panic("killed") })
		})
	}
	require.NoError(t, accts.Close())

	var bal BalanceView
	e.mustRun(&bal, "balance", e.owner.Hex())
	assert.Equal(t, uint64(800), bal.Funds, "the escrow for id 2 is refunded")

	accts, err = treasury.Open(filepath.Join(e.dataDir, "treasury.db"), poolAddress)
	require.NoError(t, err)
	defer accts.Close()
	pending, err := accts.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
	pool, err := accts.Balance(poolAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), pool)
}

func TestAdminCommands(t *testing.T) {
	e := newEnv(t)

	e.mustRun(nil, "set-price", "250")
	e.mustRun(nil, "set-base-uri", "ipfs://receipts/")
	e.mustRun(nil, "set-active", "false")

	var st api.Status
	e.mustRun(&st, "status")
	assert.Equal(t, uint64(250), st.Price)
	assert.Equal(t, "ipfs://receipts/", st.BaseURI)
	assert.False(t, st.Active)

	_, err := e.run("generate", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SALE_INACTIVE")
}

func TestReleaseNothingDue(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("release")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTHING_DUE")

	_, err = e.run("release", payeeA.Hex())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestDeployTwiceFails(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("deploy", "--manifest", filepath.Join(e.dataDir, "pop.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestKeyShowWrongPassword(t *testing.T) {
	e := newEnv(t)
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--datadir", e.dataDir, "--password", "wrong", "key", "show"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStatusWithoutDeploy(t *testing.T) {
	e := &env{t: t, dataDir: t.TempDir(), rpcURL: "http://127.0.0.1:1"}
	_, err := e.run("status")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
