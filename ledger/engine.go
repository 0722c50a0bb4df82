// Package ledger implements the proof-of-purchase receipt engine: a gated,
// non-transferable receipt collection whose sale proceeds are split among
// fixed payees and withdrawn by pull.
//
// Every mutating call runs as one store transaction. Registry lookups run
// before the transaction opens; payouts and events run after it commits.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/bitfsorg/libpop-go/registry"
	"github.com/bitfsorg/libpop-go/splitter"
	"github.com/bitfsorg/libpop-go/store"
	"github.com/bitfsorg/libpop-go/wallet"
)

// Payout moves released funds to a payee. It runs after the release has
// been committed, so a nested Release from inside Transfer sees nothing due.
type Payout interface {
	Transfer(ctx context.Context, to wallet.Address, amount uint64) error
}

// PayoutFunc adapts a function to Payout.
type PayoutFunc func(ctx context.Context, to wallet.Address, amount uint64) error

func (f PayoutFunc) Transfer(ctx context.Context, to wallet.Address, amount uint64) error {
	return f(ctx, to, amount)
}

// Params are the deployment parameters of a ledger.
type Params struct {
	Owner   wallet.Address
	Name    string
	Symbol  string
	Primary string // identifier of the primary collection
	Price   uint64
	Active  bool
	BaseURI string
	Payees  []wallet.Address
	Shares  []uint64
}

// Deploy initializes s with a new ledger. A store can be deployed once.
func Deploy(ctx context.Context, s store.Store, p Params) error {
	if s == nil {
		return fmt.Errorf("%w: store", ErrNilDependency)
	}
	if p.Owner.IsZero() {
		return fmt.Errorf("%w: owner is the zero address", ErrInvalidConstruction)
	}
	roster, err := splitter.NewRoster(p.Payees, p.Shares)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConstruction, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.Update(func(tx store.Tx) error {
		if _, err := tx.Owner(); err == nil {
			return ErrAlreadyDeployed
		} else if !errors.Is(err, store.ErrNotDeployed) {
			return err
		}
		if err := tx.PutOwner(p.Owner); err != nil {
			return err
		}
		if err := tx.PutCollection(&store.Collection{
			Name:    normalizeLabel(p.Name),
			Symbol:  normalizeLabel(p.Symbol),
			Primary: p.Primary,
			BaseURI: p.BaseURI,
		}); err != nil {
			return err
		}
		if err := tx.PutSale(&store.SaleConfig{Active: p.Active, Price: p.Price}); err != nil {
			return err
		}
		if err := tx.PutTotals(&store.Totals{}); err != nil {
			return err
		}
		return tx.PutRoster(roster)
	})
}

// normalizeLabel trims and NFC-normalizes collection labels so that
// visually identical names compare equal.
func normalizeLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Registry registry.Registry // required
	Payout   Payout            // required
	Events   EventSink         // optional
	Policy   GatePolicy
	Logger   *slog.Logger // optional
}

// Engine is the receipt ledger. It composes three capabilities, each
// owning its own slice of the stored state.
type Engine struct {
	store    store.Store
	registry registry.Registry
	payout   Payout
	events   EventSink
	policy   GatePolicy
	log      *slog.Logger

	receipts receiptBook
	desk     saleDesk
	payments paymentBook
}

var (
	_ NonFungibleLedger = (*Engine)(nil)
	_ OwnerGated        = (*Engine)(nil)
	_ Splittable        = (*Engine)(nil)
)

// Open attaches an Engine to a deployed store.
func Open(s store.Store, deps Deps) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: store", ErrNilDependency)
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("%w: registry", ErrNilDependency)
	}
	if deps.Payout == nil {
		return nil, fmt.Errorf("%w: payout", ErrNilDependency)
	}
	if !deps.Policy.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPolicy, deps.Policy)
	}

	err := s.View(func(tx store.Tx) error {
		_, err := tx.Owner()
		return err
	})
	if errors.Is(err, store.ErrNotDeployed) {
		return nil, ErrNotDeployed
	}
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:    s,
		registry: deps.Registry,
		payout:   deps.Payout,
		events:   deps.Events,
		policy:   deps.Policy,
		log:      deps.Logger,
	}
	if e.events == nil {
		e.events = nopSink{}
	}
	if e.log == nil {
		e.log = slog.New(slog.DiscardHandler)
	}
	e.log = e.log.With("component", "ledger")
	return e, nil
}

// Policy returns the gate policy applied to Generate.
func (e *Engine) Policy() GatePolicy { return e.policy }

// emit hands committed events to the sink. Sink failures are logged only.
func (e *Engine) emit(ctx context.Context, events ...Event) {
	if len(events) == 0 {
		return
	}
	if err := e.events.Emit(ctx, events); err != nil {
		e.log.Warn("event sink failed", "events", len(events), "error", err)
	}
}

// view runs fn in a read-only transaction.
func (e *Engine) view(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.store.View(fn)
}

// update runs fn in a write transaction.
func (e *Engine) update(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.store.Update(fn)
}
