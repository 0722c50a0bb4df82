package store

import (
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/bitfsorg/libpop-go/splitter"
	"github.com/bitfsorg/libpop-go/wallet"
)

var (
	bucketMeta        = []byte("meta")
	bucketReceipts    = []byte("receipts")
	bucketBalances    = []byte("balances")
	bucketRedemptions = []byte("redemptions")
	bucketReleased    = []byte("released")
	bucketApprovals   = []byte("approvals")
	bucketOperators   = []byte("operators")

	keyOwner      = []byte("owner")
	keyCollection = []byte("collection")
	keySale       = []byte("sale")
	keyTotals     = []byte("totals")
	keyRoster     = []byte("roster")
)

var allBuckets = [][]byte{
	bucketMeta, bucketReceipts, bucketBalances, bucketRedemptions,
	bucketReleased, bucketApprovals, bucketOperators,
}

// BoltStore keeps ledger state in a bbolt database. Each Update is one
// bbolt read-write transaction.
type BoltStore struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// View runs fn in a read-only transaction.
func (s *BoltStore) View(fn func(tx Tx) error) error {
	return s.db.View(func(btx *bbolt.Tx) error {
		return fn(&boltTx{tx: btx})
	})
}

// Update runs fn in a read-write transaction. If fn returns an error
// every write it made is discarded.
func (s *BoltStore) Update(fn func(tx Tx) error) error {
	return s.db.Update(func(btx *bbolt.Tx) error {
		return fn(&boltTx{tx: btx})
	})
}

// boltTx implements Tx over a live bbolt transaction.
type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) meta() *bbolt.Bucket { return t.tx.Bucket(bucketMeta) }

func (t *boltTx) getGob(key []byte, v interface{}) error {
	data := t.meta().Get(key)
	if data == nil {
		return ErrNotDeployed
	}
	return decodeGob(data, v)
}

func (t *boltTx) putGob(key []byte, v interface{}) error {
	data, err := encodeGob(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	if err := t.meta().Put(key, data); err != nil {
		return fmt.Errorf("store: put %s: %w", key, err)
	}
	return nil
}

func (t *boltTx) Owner() (wallet.Address, error) {
	data := t.meta().Get(keyOwner)
	if data == nil {
		return wallet.ZeroAddress, ErrNotDeployed
	}
	a, err := wallet.AddressFromBytes(data)
	if err != nil {
		return wallet.ZeroAddress, fmt.Errorf("%w: owner: %w", ErrCorrupt, err)
	}
	return a, nil
}

func (t *boltTx) PutOwner(owner wallet.Address) error {
	return t.meta().Put(keyOwner, owner[:])
}

func (t *boltTx) Collection() (*Collection, error) {
	var c Collection
	if err := t.getGob(keyCollection, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *boltTx) PutCollection(c *Collection) error {
	if c == nil {
		return fmt.Errorf("%w: collection", ErrNilParam)
	}
	return t.putGob(keyCollection, c)
}

func (t *boltTx) Sale() (*SaleConfig, error) {
	var s SaleConfig
	if err := t.getGob(keySale, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *boltTx) PutSale(s *SaleConfig) error {
	if s == nil {
		return fmt.Errorf("%w: sale config", ErrNilParam)
	}
	return t.putGob(keySale, s)
}

func (t *boltTx) Totals() (*Totals, error) {
	var tot Totals
	if err := t.getGob(keyTotals, &tot); err != nil {
		return nil, err
	}
	return &tot, nil
}

func (t *boltTx) PutTotals(tot *Totals) error {
	if tot == nil {
		return fmt.Errorf("%w: totals", ErrNilParam)
	}
	return t.putGob(keyTotals, tot)
}

func (t *boltTx) Roster() (*splitter.Roster, error) {
	data := t.meta().Get(keyRoster)
	if data == nil {
		return nil, ErrNotDeployed
	}
	r, err := splitter.DeserializeRoster(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return r, nil
}

func (t *boltTx) PutRoster(r *splitter.Roster) error {
	if r == nil {
		return fmt.Errorf("%w: roster", ErrNilParam)
	}
	data, err := splitter.SerializeRoster(r)
	if err != nil {
		return err
	}
	return t.meta().Put(keyRoster, data)
}

func (t *boltTx) Released(payee wallet.Address) (uint64, error) {
	data := t.tx.Bucket(bucketReleased).Get(payee[:])
	if data == nil {
		return 0, nil
	}
	return decodeU64(data)
}

func (t *boltTx) PutReleased(payee wallet.Address, amount uint64) error {
	return t.tx.Bucket(bucketReleased).Put(payee[:], u64Key(amount))
}

func (t *boltTx) Receipt(id uint64) (*Receipt, error) {
	data := t.tx.Bucket(bucketReceipts).Get(u64Key(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %d", ErrReceiptNotFound, id)
	}
	var r Receipt
	if err := decodeGob(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *boltTx) PutReceipt(r *Receipt) error {
	if r == nil {
		return fmt.Errorf("%w: receipt", ErrNilParam)
	}
	data, err := encodeGob(r)
	if err != nil {
		return fmt.Errorf("store: encode receipt: %w", err)
	}
	if err := t.tx.Bucket(bucketReceipts).Put(u64Key(r.ID), data); err != nil {
		return fmt.Errorf("store: put receipt: %w", err)
	}
	return nil
}

func (t *boltTx) Balance(holder wallet.Address) (uint64, error) {
	data := t.tx.Bucket(bucketBalances).Get(holder[:])
	if data == nil {
		return 0, nil
	}
	return decodeU64(data)
}

func (t *boltTx) PutBalance(holder wallet.Address, n uint64) error {
	return t.tx.Bucket(bucketBalances).Put(holder[:], u64Key(n))
}

func (t *boltTx) Redemption(primaryID uint64) (uint64, bool, error) {
	data := t.tx.Bucket(bucketRedemptions).Get(u64Key(primaryID))
	if data == nil {
		return 0, false, nil
	}
	id, err := decodeU64(data)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *boltTx) PutRedemption(primaryID, receiptID uint64) error {
	return t.tx.Bucket(bucketRedemptions).Put(u64Key(primaryID), u64Key(receiptID))
}

func (t *boltTx) Approval(id uint64) (wallet.Address, error) {
	data := t.tx.Bucket(bucketApprovals).Get(u64Key(id))
	if data == nil {
		return wallet.ZeroAddress, nil
	}
	return wallet.AddressFromBytes(data)
}

func (t *boltTx) PutApproval(id uint64, approved wallet.Address) error {
	b := t.tx.Bucket(bucketApprovals)
	if approved.IsZero() {
		return b.Delete(u64Key(id))
	}
	return b.Put(u64Key(id), approved[:])
}

func (t *boltTx) Operator(holder, operator wallet.Address) (bool, error) {
	return t.tx.Bucket(bucketOperators).Get(pairKey(holder, operator)) != nil, nil
}

func (t *boltTx) PutOperator(holder, operator wallet.Address, approved bool) error {
	b := t.tx.Bucket(bucketOperators)
	if !approved {
		return b.Delete(pairKey(holder, operator))
	}
	return b.Put(pairKey(holder, operator), []byte{1})
}
