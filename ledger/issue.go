package ledger

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/bitfsorg/libpop-go/store"
	"github.com/bitfsorg/libpop-go/wallet"
)

// Generate mints one receipt to `to` per primary id, free of charge.
// Only the owner may call it. Under GateHolder the recipient must hold
// every id in the registry.
//
// The batch is all-or-nothing: ids are checked in order sale active,
// eligibility, uniqueness before anything is written.
func (e *Engine) Generate(ctx context.Context, caller, to wallet.Address, primaryIDs []uint64) ([]uint64, error) {
	if err := e.preflight(ctx, func(tx store.Tx) error {
		return e.desk.requireOwner(tx, caller)
	}); err != nil {
		return nil, err
	}
	if to.IsZero() {
		return nil, fmt.Errorf("%w: generate recipient", ErrZeroAddress)
	}
	if len(primaryIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	if e.policy == GateHolder {
		if err := checkHolder(ctx, e.registry, to, primaryIDs); err != nil {
			e.log.Debug("generate rejected", "to", to, "error", err)
			return nil, err
		}
	}

	var minted []uint64
	err := e.update(ctx, func(tx store.Tx) error {
		minted = minted[:0]
		if _, err := e.desk.requireActive(tx); err != nil {
			return err
		}
		if err := e.desk.requireOwner(tx, caller); err != nil {
			return err
		}
		if err := checkUnredeemed(tx, primaryIDs); err != nil {
			return err
		}
		for _, pid := range primaryIDs {
			id, err := e.receipts.mint(tx, to, pid)
			if err != nil {
				return err
			}
			minted = append(minted, id)
		}
		return nil
	})
	if err != nil {
		e.log.Debug("generate rejected", "to", to, "error", err)
		return nil, err
	}

	e.log.Info("receipts generated", "to", to, "count", len(minted))
	e.emit(ctx, mintEvents(to, primaryIDs, minted)...)
	return minted, nil
}

// Purchase mints one receipt to the caller per primary id in exchange for
// value, which must cover price times the number of ids. The whole value
// is credited to the payment book, including any excess.
func (e *Engine) Purchase(ctx context.Context, caller wallet.Address, value uint64, primaryIDs []uint64) ([]uint64, error) {
	if err := e.preflight(ctx, func(tx store.Tx) error {
		sale, err := tx.Sale()
		if err != nil {
			return err
		}
		return checkPayment(sale.Price, len(primaryIDs), value)
	}); err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: purchaser", ErrZeroAddress)
	}
	if len(primaryIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := checkHolder(ctx, e.registry, caller, primaryIDs); err != nil {
		e.log.Debug("purchase rejected", "caller", caller, "error", err)
		return nil, err
	}

	var minted []uint64
	err := e.update(ctx, func(tx store.Tx) error {
		minted = minted[:0]
		sale, err := e.desk.requireActive(tx)
		if err != nil {
			return err
		}
		if err := checkPayment(sale.Price, len(primaryIDs), value); err != nil {
			return err
		}
		if err := checkUnredeemed(tx, primaryIDs); err != nil {
			return err
		}
		for _, pid := range primaryIDs {
			id, err := e.receipts.mint(tx, caller, pid)
			if err != nil {
				return err
			}
			minted = append(minted, id)
		}
		return e.payments.credit(tx, value)
	})
	if err != nil {
		e.log.Debug("purchase rejected", "caller", caller, "error", err)
		return nil, err
	}

	e.log.Info("receipts purchased", "buyer", caller, "count", len(minted), "value", value)
	events := mintEvents(caller, primaryIDs, minted)
	if value > 0 {
		events = append(events, Event{Kind: EventPaymentReceived, From: caller, Amount: value})
	}
	e.emit(ctx, events...)
	return minted, nil
}

// preflight fails fast on an inactive sale, then runs check, all before
// any registry I/O. The write transaction repeats both checks.
func (e *Engine) preflight(ctx context.Context, check func(tx store.Tx) error) error {
	return e.view(ctx, func(tx store.Tx) error {
		if _, err := e.desk.requireActive(tx); err != nil {
			return err
		}
		return check(tx)
	})
}

// checkPayment requires value >= price*count. A product that overflows
// cannot be paid.
func checkPayment(price uint64, count int, value uint64) error {
	hi, due := bits.Mul64(price, uint64(count))
	if hi != 0 {
		return fmt.Errorf("%w: price %d times %d overflows", ErrInsufficientPayment, price, count)
	}
	if value < due {
		return fmt.Errorf("%w: sent %d, need %d", ErrInsufficientPayment, value, due)
	}
	return nil
}

func mintEvents(to wallet.Address, primaryIDs, minted []uint64) []Event {
	events := make([]Event, len(minted))
	for i, id := range minted {
		events[i] = Event{Kind: EventTransfer, To: to, TokenID: id, PrimaryID: primaryIDs[i]}
	}
	return events
}
