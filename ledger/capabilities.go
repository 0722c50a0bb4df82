package ledger

import (
	"context"

	"github.com/bitfsorg/libpop-go/splitter"
	"github.com/bitfsorg/libpop-go/wallet"
)

// NonFungibleLedger is the receipt collection surface. Receipts are
// soulbound: every transfer of a minted receipt fails.
type NonFungibleLedger interface {
	Name(ctx context.Context) (string, error)
	Symbol(ctx context.Context) (string, error)
	TotalSupply(ctx context.Context) (uint64, error)
	OwnerOf(ctx context.Context, id uint64) (wallet.Address, error)
	BalanceOf(ctx context.Context, holder wallet.Address) (uint64, error)
	TokenURI(ctx context.Context, id uint64) (string, error)
	ReceiptFor(ctx context.Context, id uint64) (uint64, error)

	TransferFrom(ctx context.Context, caller, from, to wallet.Address, id uint64) error
	SafeTransferFrom(ctx context.Context, caller, from, to wallet.Address, id uint64) error
	SafeTransferFromWithData(ctx context.Context, caller, from, to wallet.Address, id uint64, data []byte) error

	Approve(ctx context.Context, caller, approved wallet.Address, id uint64) error
	GetApproved(ctx context.Context, id uint64) (wallet.Address, error)
	SetApprovalForAll(ctx context.Context, caller, operator wallet.Address, approved bool) error
	IsApprovedForAll(ctx context.Context, holder, operator wallet.Address) (bool, error)
}

// OwnerGated is the administrative surface guarded by the single owner.
type OwnerGated interface {
	Owner(ctx context.Context) (wallet.Address, error)
	SetActive(ctx context.Context, caller wallet.Address, active bool) error
	SetPrice(ctx context.Context, caller wallet.Address, price uint64) error
	SetBaseURI(ctx context.Context, caller wallet.Address, uri string) error
	Active(ctx context.Context) (bool, error)
	Price(ctx context.Context) (uint64, error)
	BaseURI(ctx context.Context) (string, error)
}

// Splittable is the pull-payment surface.
type Splittable interface {
	Release(ctx context.Context, payee wallet.Address) (uint64, error)
	ReleaseTotal(ctx context.Context) (map[wallet.Address]uint64, error)
	Releasable(ctx context.Context, payee wallet.Address) (uint64, error)
	Shares(ctx context.Context, payee wallet.Address) (uint64, error)
	Released(ctx context.Context, payee wallet.Address) (uint64, error)
	TotalShares(ctx context.Context) (uint64, error)
	TotalReleased(ctx context.Context) (uint64, error)
	TotalReceived(ctx context.Context) (uint64, error)
	Payee(ctx context.Context, index int) (wallet.Address, error)
	Payees(ctx context.Context) ([]splitter.Payee, error)
	Preview(ctx context.Context) ([]splitter.Distribution, error)
}
