package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/bitfsorg/libpop-go/wallet"
)

// MemRegistry is an in-memory primary collection. Tokens are minted with
// sequential ids starting at 1.
type MemRegistry struct {
	mu      sync.RWMutex
	owners  map[uint64]wallet.Address
	balance map[wallet.Address]uint64
	nextID  uint64
}

var (
	_ Registry   = (*MemRegistry)(nil)
	_ BatchOwner = (*MemRegistry)(nil)
)

// NewMemRegistry creates an empty collection.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{
		owners:  make(map[uint64]wallet.Address),
		balance: make(map[wallet.Address]uint64),
		nextID:  1,
	}
}

// Mint issues the next token id to `to` and returns it.
func (m *MemRegistry) Mint(to wallet.Address) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.owners[id] = to
	m.balance[to]++
	return id
}

// MintN issues n tokens to `to` and returns their ids in order.
func (m *MemRegistry) MintN(to wallet.Address, n int) []uint64 {
	ids := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, m.Mint(to))
	}
	return ids
}

// Transfer moves a primary token to a new holder. Primary tokens are
// ordinary transferable tokens; only receipts are soulbound.
func (m *MemRegistry) Transfer(id uint64, to wallet.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, ok := m.owners[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	m.owners[id] = to
	m.balance[from]--
	m.balance[to]++
	return nil
}

func (m *MemRegistry) OwnerOf(_ context.Context, id uint64) (wallet.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owner, ok := m.owners[id]
	if !ok {
		return wallet.ZeroAddress, fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	return owner, nil
}

func (m *MemRegistry) BalanceOf(_ context.Context, addr wallet.Address) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance[addr], nil
}

func (m *MemRegistry) OwnersOf(_ context.Context, ids []uint64) ([]wallet.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owners := make([]wallet.Address, len(ids))
	for i, id := range ids {
		owners[i] = m.owners[id]
	}
	return owners, nil
}
