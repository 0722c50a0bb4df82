// Package store persists receipt ledger state. Every mutation happens
// inside Update, which commits all writes made by fn or none of them.
package store

import (
	"github.com/bitfsorg/libpop-go/splitter"
	"github.com/bitfsorg/libpop-go/wallet"
)

// Collection is the descriptive and counter state of the receipt collection.
type Collection struct {
	Name    string
	Symbol  string
	Primary string // identifier of the primary registry
	BaseURI string
	NextID  uint64 // next receipt id to assign
}

// SaleConfig gates issuance.
type SaleConfig struct {
	Active bool
	Price  uint64 // per receipt, smallest currency unit
}

// Totals is the contract-wide payment ledger.
type Totals struct {
	Received uint64
	Released uint64
}

// Receipt is one issued, non-transferable token.
type Receipt struct {
	ID        uint64
	Owner     wallet.Address
	PrimaryID uint64
}

// Tx is the read/write view of the ledger inside one transaction.
type Tx interface {
	Owner() (wallet.Address, error)
	PutOwner(owner wallet.Address) error

	Collection() (*Collection, error)
	PutCollection(c *Collection) error

	Sale() (*SaleConfig, error)
	PutSale(s *SaleConfig) error

	Totals() (*Totals, error)
	PutTotals(t *Totals) error

	Roster() (*splitter.Roster, error)
	PutRoster(r *splitter.Roster) error

	// Released returns the cumulative payout of a payee (zero if none).
	Released(payee wallet.Address) (uint64, error)
	PutReleased(payee wallet.Address, amount uint64) error

	// Receipt returns ErrReceiptNotFound for unissued ids.
	Receipt(id uint64) (*Receipt, error)
	PutReceipt(r *Receipt) error

	Balance(holder wallet.Address) (uint64, error)
	PutBalance(holder wallet.Address, n uint64) error

	// Redemption reports the receipt issued for a primary token id.
	Redemption(primaryID uint64) (receiptID uint64, ok bool, err error)
	PutRedemption(primaryID, receiptID uint64) error

	Approval(id uint64) (wallet.Address, error)
	PutApproval(id uint64, approved wallet.Address) error

	Operator(holder, operator wallet.Address) (bool, error)
	PutOperator(holder, operator wallet.Address, approved bool) error
}

// Store runs transactions against ledger state.
//
// Update serializes writers. Calling Update or View from inside fn
// deadlocks; do external work after the transaction returns.
type Store interface {
	View(fn func(tx Tx) error) error
	Update(fn func(tx Tx) error) error
	Close() error
}
