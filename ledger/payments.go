package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/bitfsorg/libpop-go/splitter"
	"github.com/bitfsorg/libpop-go/store"
	"github.com/bitfsorg/libpop-go/wallet"
)

// paymentBook owns the roster, the received total and the release ledger.
type paymentBook struct{}

// credit adds incoming value to the received total.
func (paymentBook) credit(tx store.Tx, value uint64) error {
	if value == 0 {
		return nil
	}
	tot, err := tx.Totals()
	if err != nil {
		return err
	}
	sum, carry := bits.Add64(tot.Received, value, 0)
	if carry != 0 {
		return fmt.Errorf("%w: %d + %d", ErrValueOverflow, tot.Received, value)
	}
	tot.Received = sum
	return tx.PutTotals(tot)
}

// releasable computes what payee may pull now.
func (paymentBook) releasable(tx store.Tx, payee wallet.Address) (uint64, error) {
	roster, err := tx.Roster()
	if err != nil {
		return 0, err
	}
	tot, err := tx.Totals()
	if err != nil {
		return 0, err
	}
	released, err := tx.Released(payee)
	if err != nil {
		return 0, err
	}
	amount, err := roster.Releasable(payee, tot.Received, released)
	if errors.Is(err, splitter.ErrUnknownPayee) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPayee, payee)
	}
	return amount, err
}

// debit records a release of everything payee is owed and returns the amount.
func (b paymentBook) debit(tx store.Tx, payee wallet.Address) (uint64, error) {
	amount, err := b.releasable(tx, payee)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNothingDue, payee)
	}
	released, err := tx.Released(payee)
	if err != nil {
		return 0, err
	}
	tot, err := tx.Totals()
	if err != nil {
		return 0, err
	}
	tot.Released += amount
	if err := tx.PutReleased(payee, released+amount); err != nil {
		return 0, err
	}
	return amount, tx.PutTotals(tot)
}

// restore reverses a debit whose payout failed.
func (paymentBook) restore(tx store.Tx, payee wallet.Address, amount uint64) error {
	released, err := tx.Released(payee)
	if err != nil {
		return err
	}
	tot, err := tx.Totals()
	if err != nil {
		return err
	}
	if released < amount || tot.Released < amount {
		return fmt.Errorf("%w: cannot restore %d to %s", splitter.ErrAccountingOverflow, amount, payee)
	}
	tot.Released -= amount
	if err := tx.PutReleased(payee, released-amount); err != nil {
		return err
	}
	return tx.PutTotals(tot)
}

// Release pays payee everything it is owed. Anyone may call it.
//
// The release is committed before Payout.Transfer runs. If the transfer
// fails the release is reverted in a second transaction and the transfer
// error is returned.
func (e *Engine) Release(ctx context.Context, payee wallet.Address) (uint64, error) {
	var amount uint64
	err := e.update(ctx, func(tx store.Tx) error {
		var err error
		amount, err = e.payments.debit(tx, payee)
		return err
	})
	if err != nil {
		return 0, err
	}

	if err := e.payout.Transfer(ctx, payee, amount); err != nil {
		e.log.Warn("payout failed, reverting release", "payee", payee, "amount", amount, "error", err)
		revertErr := e.store.Update(func(tx store.Tx) error {
			return e.payments.restore(tx, payee, amount)
		})
		if revertErr != nil {
			e.log.Error("release revert failed", "payee", payee, "amount", amount, "error", revertErr)
			return 0, errors.Join(fmt.Errorf("ledger: payout to %s: %w", payee, err), revertErr)
		}
		return 0, fmt.Errorf("ledger: payout to %s: %w", payee, err)
	}

	e.log.Info("payment released", "payee", payee, "amount", amount)
	e.emit(ctx, Event{Kind: EventPaymentReleased, To: payee, Amount: amount})
	return amount, nil
}

// ReleaseTotal releases every payee in roster order. Each payee is its own
// unit: payees with nothing due are skipped, and a failed payout does not
// undo earlier ones. Failures are joined into the returned error alongside
// the amounts that did go out. ErrNothingDue is returned only when no payee
// was owed anything.
func (e *Engine) ReleaseTotal(ctx context.Context) (map[wallet.Address]uint64, error) {
	payees, err := e.Payees(ctx)
	if err != nil {
		return nil, err
	}

	paid := make(map[wallet.Address]uint64, len(payees))
	var errs []error
	for _, p := range payees {
		amount, err := e.Release(ctx, p.Address)
		switch {
		case errors.Is(err, ErrNothingDue):
			continue
		case err != nil:
			errs = append(errs, err)
		default:
			paid[p.Address] = amount
		}
	}
	if len(paid) == 0 && len(errs) == 0 {
		return paid, ErrNothingDue
	}
	return paid, errors.Join(errs...)
}

// Releasable reports what payee could pull now.
func (e *Engine) Releasable(ctx context.Context, payee wallet.Address) (amount uint64, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		amount, err = e.payments.releasable(tx, payee)
		return err
	})
	return amount, err
}

// Shares returns the share weight of payee, zero for non-payees.
func (e *Engine) Shares(ctx context.Context, payee wallet.Address) (shares uint64, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		roster, err := tx.Roster()
		if err != nil {
			return err
		}
		shares = roster.SharesOf(payee)
		return nil
	})
	return shares, err
}

func (e *Engine) Released(ctx context.Context, payee wallet.Address) (amount uint64, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		amount, err = tx.Released(payee)
		return err
	})
	return amount, err
}

func (e *Engine) TotalShares(ctx context.Context) (total uint64, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		roster, err := tx.Roster()
		if err != nil {
			return err
		}
		total = roster.TotalShares
		return nil
	})
	return total, err
}

func (e *Engine) TotalReleased(ctx context.Context) (uint64, error) {
	tot, err := e.totals(ctx)
	if err != nil {
		return 0, err
	}
	return tot.Released, nil
}

func (e *Engine) TotalReceived(ctx context.Context) (uint64, error) {
	tot, err := e.totals(ctx)
	if err != nil {
		return 0, err
	}
	return tot.Received, nil
}

func (e *Engine) totals(ctx context.Context) (tot *store.Totals, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		tot, err = tx.Totals()
		return err
	})
	return tot, err
}

// Payee returns the payee at index in roster order.
func (e *Engine) Payee(ctx context.Context, index int) (wallet.Address, error) {
	payees, err := e.Payees(ctx)
	if err != nil {
		return wallet.ZeroAddress, err
	}
	if index < 0 || index >= len(payees) {
		return wallet.ZeroAddress, fmt.Errorf("%w: index %d of %d", ErrUnknownPayee, index, len(payees))
	}
	return payees[index].Address, nil
}

// Payees returns the roster in deployment order.
func (e *Engine) Payees(ctx context.Context) (payees []splitter.Payee, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		roster, err := tx.Roster()
		if err != nil {
			return err
		}
		payees = roster.Payees
		return nil
	})
	return payees, err
}

// Preview lists what every payee could pull now, in roster order.
func (e *Engine) Preview(ctx context.Context) (dist []splitter.Distribution, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		roster, err := tx.Roster()
		if err != nil {
			return err
		}
		tot, err := tx.Totals()
		if err != nil {
			return err
		}
		released := make(map[wallet.Address]uint64, len(roster.Payees))
		for _, p := range roster.Payees {
			if released[p.Address], err = tx.Released(p.Address); err != nil {
				return err
			}
		}
		dist, err = roster.Preview(tot.Received, released)
		return err
	})
	return dist, err
}
