// Package treasury holds spendable value per address. Buyers fund their
// accounts with deposits. Purchases are escrowed into the pool account and
// released payments move from the pool to payees.
package treasury

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/bitfsorg/libpop-go/ledger"
	"github.com/bitfsorg/libpop-go/wallet"
)

var (
	bucketAccounts = []byte("accounts")
	bucketEscrow   = []byte("escrow")
)

// Accounts is a bbolt-backed balance sheet.
type Accounts struct {
	db   *bbolt.DB
	pool wallet.Address
}

// Accounts pays released funds out of the pool.
var _ ledger.Payout = (*Accounts)(nil)

// Open opens or creates the account database at dbPath. pool is the
// account that holds sale proceeds until they are released.
func Open(dbPath string, pool wallet.Address) (*Accounts, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("treasury: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("treasury: open bolt db: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAccounts, bucketEscrow} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("treasury: create bucket: %w", err)
	}
	return &Accounts{db: db, pool: pool}, nil
}

// Close closes the database.
func (a *Accounts) Close() error { return a.db.Close() }

// Pool returns the proceeds account.
func (a *Accounts) Pool() wallet.Address { return a.pool }

// Balance returns the spendable balance of addr.
func (a *Accounts) Balance(addr wallet.Address) (n uint64, err error) {
	err = a.db.View(func(tx *bbolt.Tx) error {
		n = get(tx.Bucket(bucketAccounts), addr)
		return nil
	})
	return n, err
}

// Deposit credits addr with amount.
func (a *Accounts) Deposit(addr wallet.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		return credit(tx.Bucket(bucketAccounts), addr, amount)
	})
}

// Pending is an escrow whose purchase outcome has not been recorded.
type Pending struct {
	ID         uint64
	From       wallet.Address
	Amount     uint64
	PrimaryIDs []uint64
}

// Escrow moves amount from `from` into the pool and runs fn, the purchase
// of primaryIDs. If fn fails the value goes back to `from`. Nothing after a
// successful fn can fail, so a committed purchase is always paid for.
//
// The move is recorded as Pending in the same transaction. The record is
// dropped once the outcome is known; one left behind by a crash is settled
// by Reconcile.
func (a *Accounts) Escrow(ctx context.Context, from wallet.Address, amount uint64, primaryIDs []uint64, fn func(ctx context.Context) error) error {
	if amount == 0 {
		return fn(ctx)
	}
	p := Pending{From: from, Amount: amount, PrimaryIDs: primaryIDs}
	if err := a.db.Update(func(tx *bbolt.Tx) error {
		if err := move(tx.Bucket(bucketAccounts), from, a.pool, amount); err != nil {
			return err
		}
		b := tx.Bucket(bucketEscrow)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		p.ID = id
		return putPending(b, p)
	}); err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		if refundErr := a.refund(p); refundErr != nil {
			return fmt.Errorf("%w (refund of escrow %d deferred: %v)", err, p.ID, refundErr)
		}
		return err
	}
	// A record that fails to clear here is settled by the next Reconcile.
	_ = a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEscrow).Delete(u64Key(p.ID))
	})
	return nil
}

// refund returns an escrow's value and drops its record.
func (a *Accounts) refund(p Pending) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		if err := move(tx.Bucket(bucketAccounts), a.pool, p.From, p.Amount); err != nil {
			return err
		}
		return tx.Bucket(bucketEscrow).Delete(u64Key(p.ID))
	})
}

// Pending lists escrows with no recorded outcome, oldest first.
func (a *Accounts) Pending() ([]Pending, error) {
	var out []Pending
	err := a.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEscrow).ForEach(func(_, v []byte) error {
			var p Pending
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&p); err != nil {
				return fmt.Errorf("%w: %w", ErrCorruptEscrow, err)
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

// Settled reports whether the purchase behind p committed.
type Settled func(ctx context.Context, p Pending) (bool, error)

// Reconcile settles escrows left by an interrupted process. Those whose
// purchase committed stay in the pool; the rest are refunded.
func (a *Accounts) Reconcile(ctx context.Context, settled Settled) (kept, refunded int, err error) {
	pending, err := a.Pending()
	if err != nil {
		return 0, 0, err
	}
	for _, p := range pending {
		ok, err := settled(ctx, p)
		if err != nil {
			return kept, refunded, fmt.Errorf("treasury: escrow %d: %w", p.ID, err)
		}
		if ok {
			if err := a.db.Update(func(tx *bbolt.Tx) error {
				return tx.Bucket(bucketEscrow).Delete(u64Key(p.ID))
			}); err != nil {
				return kept, refunded, err
			}
			kept++
			continue
		}
		if err := a.refund(p); err != nil {
			return kept, refunded, fmt.Errorf("treasury: refund escrow %d: %w", p.ID, err)
		}
		refunded++
	}
	return kept, refunded, nil
}

// Receipts is the ledger view Reconcile needs.
type Receipts interface {
	RedeemedBy(ctx context.Context, primaryID uint64) (receiptID uint64, ok bool, err error)
	OwnerOf(ctx context.Context, id uint64) (wallet.Address, error)
}

// PurchaseSettled reports an escrow as settled when every primary id it
// paid for carries a receipt held by the buyer. Purchases mint all of
// their receipts or none.
func PurchaseSettled(l Receipts) Settled {
	return func(ctx context.Context, p Pending) (bool, error) {
		if len(p.PrimaryIDs) == 0 {
			return false, nil
		}
		for _, id := range p.PrimaryIDs {
			receipt, ok, err := l.RedeemedBy(ctx, id)
			if err != nil || !ok {
				return false, err
			}
			owner, err := l.OwnerOf(ctx, receipt)
			if err != nil {
				return false, err
			}
			if owner != p.From {
				return false, nil
			}
		}
		return true, nil
	}
}

// Transfer pays amount from the pool to `to`.
func (a *Accounts) Transfer(ctx context.Context, to wallet.Address, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		return move(tx.Bucket(bucketAccounts), a.pool, to, amount)
	})
}

// move debits from and credits to within one transaction.
func move(b *bbolt.Bucket, from, to wallet.Address, amount uint64) error {
	have := get(b, from)
	if have < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, have, amount)
	}
	if err := put(b, from, have-amount); err != nil {
		return err
	}
	return credit(b, to, amount)
}

func credit(b *bbolt.Bucket, addr wallet.Address, amount uint64) error {
	sum, carry := bits.Add64(get(b, addr), amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, addr)
	}
	return put(b, addr, sum)
}

func get(b *bbolt.Bucket, addr wallet.Address) uint64 {
	v := b.Get(addr[:])
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func put(b *bbolt.Bucket, addr wallet.Address, n uint64) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, n)
	return b.Put(addr[:], v)
}

func u64Key(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}

func putPending(b *bbolt.Bucket, p Pending) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return fmt.Errorf("treasury: encode escrow: %w", err)
	}
	return b.Put(u64Key(p.ID), buf.Bytes())
}
