// Package registry reads ownership from the primary token collection that
// receipts are redeemed against.
package registry

import (
	"context"
	"errors"

	"github.com/bitfsorg/libpop-go/wallet"
)

// Registry is a read-only view of the primary collection.
type Registry interface {
	// OwnerOf returns the holder of a primary token id, or ErrTokenNotFound.
	OwnerOf(ctx context.Context, id uint64) (wallet.Address, error)

	// BalanceOf returns how many primary tokens addr holds.
	BalanceOf(ctx context.Context, addr wallet.Address) (uint64, error)
}

// BatchOwner is implemented by registries that resolve many ids at once.
// Ids that do not exist come back as the zero address.
type BatchOwner interface {
	OwnersOf(ctx context.Context, ids []uint64) ([]wallet.Address, error)
}

// Owners resolves ids through reg, in one call when reg supports it.
// Missing ids map to the zero address.
func Owners(ctx context.Context, reg Registry, ids []uint64) ([]wallet.Address, error) {
	if b, ok := reg.(BatchOwner); ok {
		return b.OwnersOf(ctx, ids)
	}
	owners := make([]wallet.Address, len(ids))
	for i, id := range ids {
		owner, err := reg.OwnerOf(ctx, id)
		if errors.Is(err, ErrTokenNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		owners[i] = owner
	}
	return owners, nil
}
