// Package api serves the receipt ledger over HTTP. Reads are public;
// mutations carry a secp256k1 signature whose signer becomes the caller.
package api

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bitfsorg/libpop-go/journal"
	"github.com/bitfsorg/libpop-go/ledger"
	"github.com/bitfsorg/libpop-go/wallet"
)

// Ledger is the engine surface the server drives.
type Ledger interface {
	ledger.NonFungibleLedger
	ledger.OwnerGated
	ledger.Splittable
	Primary(ctx context.Context) (string, error)
	Policy() ledger.GatePolicy
	Generate(ctx context.Context, caller, to wallet.Address, primaryIDs []uint64) ([]uint64, error)
	Purchase(ctx context.Context, caller wallet.Address, value uint64, primaryIDs []uint64) ([]uint64, error)
}

// Escrow holds a buyer's value while the purchase of primaryIDs runs.
// *treasury.Accounts satisfies it.
type Escrow interface {
	Escrow(ctx context.Context, from wallet.Address, amount uint64, primaryIDs []uint64, fn func(ctx context.Context) error) error
}

// EventLog answers event queries. *journal.Journal satisfies it.
type EventLog interface {
	Query(ctx context.Context, f journal.Filter) ([]journal.Record, error)
}

// AddressResolver turns an address or alias@domain handle into an address.
// *paymail.Resolver satisfies it.
type AddressResolver interface {
	ResolveAddressOrHandle(ctx context.Context, s string) (wallet.Address, error)
}

// Options configure a Server. Ledger is required.
type Options struct {
	Ledger   Ledger
	Escrow   Escrow          // purchases are refused without it
	Events   EventLog        // /v1/events is not mounted without it
	Resolver AddressResolver // plain addresses only without it
	Logger   *slog.Logger
	MaxSkew  time.Duration
	Now      func() time.Time
}

// Server is the HTTP front end of one ledger.
type Server struct {
	ledger   Ledger
	escrow   Escrow
	events   EventLog
	resolver AddressResolver
	log      *slog.Logger
	maxSkew  time.Duration
	now      func() time.Time
	started  time.Time
	replays  *replayGuard
}

// NewServer validates opts and fills defaults.
func NewServer(opts Options) (*Server, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("api: %w: ledger", ledger.ErrNilDependency)
	}
	s := &Server{
		ledger:   opts.Ledger,
		escrow:   opts.Escrow,
		events:   opts.Events,
		resolver: opts.Resolver,
		log:      opts.Logger,
		maxSkew:  opts.MaxSkew,
		now:      opts.Now,
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	s.log = s.log.With("component", "api")
	if s.maxSkew <= 0 {
		s.maxSkew = DefaultMaxSkew
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.started = s.now()
	s.replays = newReplayGuard()
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/v1", func(api chi.Router) {
		api.Get("/status", s.handleStatus)
		api.Get("/tokens/{id}", s.handleToken)
		api.Get("/tokens/{id}/uri", s.handleTokenURI)
		api.Get("/accounts/{addr}", s.handleAccount)
		api.Get("/payees", s.handlePayees)
		if s.events != nil {
			api.Get("/events", s.handleEvents)
		}

		api.Group(func(signed chi.Router) {
			signed.Use(s.authenticate)
			signed.Post("/admin/active", s.handleSetActive)
			signed.Post("/admin/price", s.handleSetPrice)
			signed.Post("/admin/base-uri", s.handleSetBaseURI)
			signed.Post("/generate", s.handleGenerate)
			signed.Post("/purchase", s.handlePurchase)
			signed.Post("/release", s.handleReleaseAll)
			signed.Post("/release/{payee}", s.handleRelease)
			signed.Post("/transfer", s.handleTransfer)
		})
	})
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := s.now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", s.now().Sub(start))
	})
}

// fail writes err using its mapped code and status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := Classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	}
	writeError(w, status, code, err.Error())
}

func (s *Server) resolve(ctx context.Context, v string) (wallet.Address, error) {
	if s.resolver != nil {
		return s.resolver.ResolveAddressOrHandle(ctx, v)
	}
	return wallet.ParseAddress(v)
}

func parseID(r *http.Request, name string) (uint64, error) {
	v := chi.URLParam(r, name)
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrBadRequest, name, v)
	}
	return id, nil
}

func decode(r *http.Request, dst any) error {
	if err := readJSON(r, dst); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// --- reads ---

// Status summarizes the collection, sale and payment totals.
type Status struct {
	Name          string         `json:"name"`
	Symbol        string         `json:"symbol"`
	Primary       string         `json:"primary"`
	Owner         wallet.Address `json:"owner"`
	Active        bool           `json:"active"`
	Price         uint64         `json:"price,string"`
	BaseURI       string         `json:"base_uri"`
	GatePolicy    string         `json:"gate_policy"`
	TotalSupply   uint64         `json:"total_supply"`
	TotalShares   uint64         `json:"total_shares"`
	TotalReceived uint64         `json:"total_received,string"`
	TotalReleased uint64         `json:"total_released,string"`
}

// LoadStatus reads a Status from l.
func LoadStatus(ctx context.Context, l Ledger) (*Status, error) {
	st := &Status{GatePolicy: l.Policy().String()}
	var err error
	steps := []func() error{
		func() error { st.Name, err = l.Name(ctx); return err },
		func() error { st.Symbol, err = l.Symbol(ctx); return err },
		func() error { st.Primary, err = l.Primary(ctx); return err },
		func() error { st.Owner, err = l.Owner(ctx); return err },
		func() error { st.Active, err = l.Active(ctx); return err },
		func() error { st.Price, err = l.Price(ctx); return err },
		func() error { st.BaseURI, err = l.BaseURI(ctx); return err },
		func() error { st.TotalSupply, err = l.TotalSupply(ctx); return err },
		func() error { st.TotalShares, err = l.TotalShares(ctx); return err },
		func() error { st.TotalReceived, err = l.TotalReceived(ctx); return err },
		func() error { st.TotalReleased, err = l.TotalReleased(ctx); return err },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := LoadStatus(r.Context(), s.ledger)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "status", st)
}

// Token describes one receipt.
type Token struct {
	ID        uint64         `json:"id"`
	Owner     wallet.Address `json:"owner"`
	PrimaryID uint64         `json:"primary_id"`
	URI       string         `json:"uri"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()
	tok := Token{ID: id}
	if tok.Owner, err = s.ledger.OwnerOf(ctx, id); err != nil {
		s.fail(w, r, err)
		return
	}
	if tok.PrimaryID, err = s.ledger.ReceiptFor(ctx, id); err != nil {
		s.fail(w, r, err)
		return
	}
	if tok.URI, err = s.ledger.TokenURI(ctx, id); err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "token", tok)
}

func (s *Server) handleTokenURI(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	uri, err := s.ledger.TokenURI(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "uri", uri)
}

// Account is an address's receipt balance and payee position.
type Account struct {
	Address    wallet.Address `json:"address"`
	Balance    uint64         `json:"balance"`
	Shares     uint64         `json:"shares"`
	Released   uint64         `json:"released,string"`
	Releasable uint64         `json:"releasable,string"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := s.resolve(ctx, chi.URLParam(r, "addr"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	acct := Account{Address: addr}
	if acct.Balance, err = s.ledger.BalanceOf(ctx, addr); err != nil {
		s.fail(w, r, err)
		return
	}
	if acct.Shares, err = s.ledger.Shares(ctx, addr); err != nil {
		s.fail(w, r, err)
		return
	}
	if acct.Shares > 0 {
		if acct.Released, err = s.ledger.Released(ctx, addr); err != nil {
			s.fail(w, r, err)
			return
		}
		if acct.Releasable, err = s.ledger.Releasable(ctx, addr); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	respond(w, http.StatusOK, "account", acct)
}

// PayeeView is one roster entry with its release position.
type PayeeView struct {
	Address    wallet.Address `json:"address"`
	Shares     uint64         `json:"shares"`
	Released   uint64         `json:"released,string"`
	Releasable uint64         `json:"releasable,string"`
}

func (s *Server) handlePayees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payees, err := s.ledger.Payees(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	dist, err := s.ledger.Preview(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]PayeeView, len(payees))
	for i, p := range payees {
		out[i] = PayeeView{Address: p.Address, Shares: p.Shares, Releasable: dist[i].Amount}
		if out[i].Released, err = s.ledger.Released(ctx, p.Address); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	respond(w, http.StatusOK, "payees", out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := journal.Filter{Kind: ledger.EventKind(q.Get("kind"))}
	if v := q.Get("address"); v != "" {
		addr, err := s.resolve(r.Context(), v)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		f.Address = addr
	}
	for _, p := range []struct {
		name string
		set  func(n int64)
	}{
		{"after", func(n int64) { f.AfterSeq = n }},
		{"limit", func(n int64) { f.Limit = int(n) }},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			s.fail(w, r, fmt.Errorf("%w: %s %q", ErrBadRequest, p.name, v))
			return
		}
		p.set(n)
	}

	recs, err := s.events.Query(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []journal.Record{}
	}
	respond(w, http.StatusOK, "events", recs)
}

// --- signed mutations ---

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ledger.SetActive(r.Context(), callerFrom(r.Context()), req.Active); err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "active", req.Active)
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price uint64 `json:"price,string"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ledger.SetPrice(r.Context(), callerFrom(r.Context()), req.Price); err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "price", strconv.FormatUint(req.Price, 10))
}

func (s *Server) handleSetBaseURI(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BaseURI string `json:"base_uri"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ledger.SetBaseURI(r.Context(), callerFrom(r.Context()), req.BaseURI); err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "base_uri", req.BaseURI)
}

// IssueRequest is the body of /v1/generate and /v1/purchase. To is used by
// generate only, Value by purchase only.
type IssueRequest struct {
	To         string   `json:"to,omitempty"`
	Value      uint64   `json:"value,string,omitempty"`
	PrimaryIDs []uint64 `json:"primary_ids"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()
	to, err := s.resolve(ctx, req.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ids, err := s.ledger.Generate(ctx, callerFrom(ctx), to, req.PrimaryIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "receipts", ids)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	if s.escrow == nil {
		s.fail(w, r, ErrNoTreasury)
		return
	}
	var req IssueRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller := callerFrom(r.Context())

	var ids []uint64
	err := s.escrow.Escrow(r.Context(), caller, req.Value, req.PrimaryIDs, func(ctx context.Context) error {
		var err error
		ids, err = s.ledger.Purchase(ctx, caller, req.Value, req.PrimaryIDs)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "receipts", ids)
}

// Release is one payout.
type Release struct {
	Payee  wallet.Address `json:"payee"`
	Amount uint64         `json:"amount,string"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payee, err := s.resolve(ctx, chi.URLParam(r, "payee"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := s.ledger.Release(ctx, payee)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "release", Release{Payee: payee, Amount: amount})
}

// handleReleaseAll pays every payee. When some payouts fail after others
// went out, the response is 207 with both the releases and the error.
func (s *Server) handleReleaseAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paid, err := s.ledger.ReleaseTotal(ctx)
	if err != nil && len(paid) == 0 {
		s.fail(w, r, err)
		return
	}

	payees, perr := s.ledger.Payees(ctx)
	if perr != nil {
		s.fail(w, r, perr)
		return
	}
	releases := []Release{}
	for _, p := range payees {
		if amount, ok := paid[p.Address]; ok {
			releases = append(releases, Release{Payee: p.Address, Amount: amount})
		}
	}

	if err != nil {
		status, code := Classify(err)
		s.log.Warn("partial release", "paid", len(releases), "code", code, "status", status, "error", err)
		writeJSON(w, http.StatusMultiStatus, map[string]any{
			"request_id": newRequestID(),
			"releases":   releases,
			"error":      ErrorDetail{Code: code, Message: err.Error()},
		})
		return
	}
	respond(w, http.StatusOK, "releases", releases)
}

// TransferRequest is the body of /v1/transfer. Transfers always fail;
// the endpoint reports the reason.
type TransferRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TokenID uint64 `json:"token_id"`
	Safe    bool   `json:"safe,omitempty"`
	Data    string `json:"data,omitempty"` // hex
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()
	from, err := s.resolve(ctx, req.From)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := s.resolve(ctx, req.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	caller := callerFrom(ctx)

	switch {
	case req.Data != "":
		data, derr := hex.DecodeString(req.Data)
		if derr != nil {
			s.fail(w, r, fmt.Errorf("%w: data: %w", ErrBadRequest, derr))
			return
		}
		err = s.ledger.SafeTransferFromWithData(ctx, caller, from, to, req.TokenID, data)
	case req.Safe:
		err = s.ledger.SafeTransferFrom(ctx, caller, from, to, req.TokenID)
	default:
		err = s.ledger.TransferFrom(ctx, caller, from, to, req.TokenID)
	}
	if err == nil {
		err = errors.New("api: transfer unexpectedly succeeded")
	}
	s.fail(w, r, err)
}
