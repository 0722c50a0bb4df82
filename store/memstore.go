package store

import (
	"fmt"
	"maps"
	"sync"

	"github.com/bitfsorg/libpop-go/splitter"
	"github.com/bitfsorg/libpop-go/wallet"
)

type operatorKey struct {
	holder, operator wallet.Address
}

// memState is one immutable snapshot of ledger state.
type memState struct {
	deployed   bool
	owner      wallet.Address
	collection Collection
	sale       SaleConfig
	totals     Totals
	roster     []byte // serialized roster

	released    map[wallet.Address]uint64
	receipts    map[uint64]Receipt
	balances    map[wallet.Address]uint64
	redemptions map[uint64]uint64
	approvals   map[uint64]wallet.Address
	operators   map[operatorKey]bool
}

func newMemState() *memState {
	return &memState{
		released:    make(map[wallet.Address]uint64),
		receipts:    make(map[uint64]Receipt),
		balances:    make(map[wallet.Address]uint64),
		redemptions: make(map[uint64]uint64),
		approvals:   make(map[uint64]wallet.Address),
		operators:   make(map[operatorKey]bool),
	}
}

func (s *memState) clone() *memState {
	c := *s
	c.roster = append([]byte(nil), s.roster...)
	c.released = maps.Clone(s.released)
	c.receipts = maps.Clone(s.receipts)
	c.balances = maps.Clone(s.balances)
	c.redemptions = maps.Clone(s.redemptions)
	c.approvals = maps.Clone(s.approvals)
	c.operators = maps.Clone(s.operators)
	return &c
}

// MemStore is an in-memory Store. Update works on a private copy of
// the state and publishes it only when fn succeeds.
type MemStore struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   *memState
	closed  bool
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{state: newMemState()}
}

func (m *MemStore) View(fn func(tx Tx) error) error {
	m.mu.RLock()
	st, closed := m.state, m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return fn(&memTx{s: st, readOnly: true})
}

func (m *MemStore) Update(fn func(tx Tx) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	base, closed := m.state, m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	work := base.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = work
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// memTx implements Tx over a snapshot. Read-only transactions share the
// published snapshot and must not write.
type memTx struct {
	s        *memState
	readOnly bool
}

func (t *memTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *memTx) Owner() (wallet.Address, error) {
	if !t.s.deployed {
		return wallet.ZeroAddress, ErrNotDeployed
	}
	return t.s.owner, nil
}

func (t *memTx) PutOwner(owner wallet.Address) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.s.owner = owner
	t.s.deployed = true
	return nil
}

func (t *memTx) Collection() (*Collection, error) {
	if !t.s.deployed {
		return nil, ErrNotDeployed
	}
	c := t.s.collection
	return &c, nil
}

func (t *memTx) PutCollection(c *Collection) error {
	if err := t.writable(); err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: collection", ErrNilParam)
	}
	t.s.collection = *c
	return nil
}

func (t *memTx) Sale() (*SaleConfig, error) {
	if !t.s.deployed {
		return nil, ErrNotDeployed
	}
	s := t.s.sale
	return &s, nil
}

func (t *memTx) PutSale(s *SaleConfig) error {
	if err := t.writable(); err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("%w: sale config", ErrNilParam)
	}
	t.s.sale = *s
	return nil
}

func (t *memTx) Totals() (*Totals, error) {
	if !t.s.deployed {
		return nil, ErrNotDeployed
	}
	tot := t.s.totals
	return &tot, nil
}

func (t *memTx) PutTotals(tot *Totals) error {
	if err := t.writable(); err != nil {
		return err
	}
	if tot == nil {
		return fmt.Errorf("%w: totals", ErrNilParam)
	}
	t.s.totals = *tot
	return nil
}

func (t *memTx) Roster() (*splitter.Roster, error) {
	if t.s.roster == nil {
		return nil, ErrNotDeployed
	}
	r, err := splitter.DeserializeRoster(t.s.roster)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return r, nil
}

func (t *memTx) PutRoster(r *splitter.Roster) error {
	if err := t.writable(); err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("%w: roster", ErrNilParam)
	}
	data, err := splitter.SerializeRoster(r)
	if err != nil {
		return err
	}
	t.s.roster = data
	return nil
}

func (t *memTx) Released(payee wallet.Address) (uint64, error) {
	return t.s.released[payee], nil
}

func (t *memTx) PutReleased(payee wallet.Address, amount uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.s.released[payee] = amount
	return nil
}

func (t *memTx) Receipt(id uint64) (*Receipt, error) {
	r, ok := t.s.receipts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrReceiptNotFound, id)
	}
	return &r, nil
}

func (t *memTx) PutReceipt(r *Receipt) error {
	if err := t.writable(); err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("%w: receipt", ErrNilParam)
	}
	t.s.receipts[r.ID] = *r
	return nil
}

func (t *memTx) Balance(holder wallet.Address) (uint64, error) {
	return t.s.balances[holder], nil
}

func (t *memTx) PutBalance(holder wallet.Address, n uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.s.balances[holder] = n
	return nil
}

func (t *memTx) Redemption(primaryID uint64) (uint64, bool, error) {
	id, ok := t.s.redemptions[primaryID]
	return id, ok, nil
}

func (t *memTx) PutRedemption(primaryID, receiptID uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.s.redemptions[primaryID] = receiptID
	return nil
}

func (t *memTx) Approval(id uint64) (wallet.Address, error) {
	return t.s.approvals[id], nil
}

func (t *memTx) PutApproval(id uint64, approved wallet.Address) error {
	if err := t.writable(); err != nil {
		return err
	}
	if approved.IsZero() {
		delete(t.s.approvals, id)
		return nil
	}
	t.s.approvals[id] = approved
	return nil
}

func (t *memTx) Operator(holder, operator wallet.Address) (bool, error) {
	return t.s.operators[operatorKey{holder, operator}], nil
}

func (t *memTx) PutOperator(holder, operator wallet.Address, approved bool) error {
	if err := t.writable(); err != nil {
		return err
	}
	k := operatorKey{holder, operator}
	if !approved {
		delete(t.s.operators, k)
		return nil
	}
	t.s.operators[k] = true
	return nil
}
