package splitter

import (
	"fmt"
	"math"

	"github.com/bitfsorg/libpop-go/wallet"
)

// NewRoster validates a payee list against its share weights.
// Payee order is preserved; it is the order releases iterate in.
func NewRoster(payees []wallet.Address, shares []uint64) (*Roster, error) {
	if len(payees) == 0 {
		return nil, fmt.Errorf("%w: no payees", ErrInvalidConstruction)
	}
	if len(payees) != len(shares) {
		return nil, fmt.Errorf("%w: %d payees but %d share weights", ErrInvalidConstruction, len(payees), len(shares))
	}

	r := &Roster{Payees: make([]Payee, 0, len(payees))}
	for i, addr := range payees {
		if addr.IsZero() {
			return nil, fmt.Errorf("%w: payee %d is the zero address", ErrInvalidConstruction, i)
		}
		if shares[i] == 0 {
			return nil, fmt.Errorf("%w: payee %d has zero shares", ErrInvalidConstruction, i)
		}
		if idx, _ := r.Find(addr); idx >= 0 {
			return nil, fmt.Errorf("%w: payee %s listed twice", ErrInvalidConstruction, addr)
		}
		if r.TotalShares > math.MaxUint64-shares[i] {
			return nil, fmt.Errorf("%w: total shares overflow", ErrInvalidConstruction)
		}
		r.TotalShares += shares[i]
		r.Payees = append(r.Payees, Payee{Address: addr, Shares: shares[i]})
	}
	return r, nil
}

// Validate re-checks invariants on a roster loaded from storage.
func (r *Roster) Validate() error {
	addrs := make([]wallet.Address, len(r.Payees))
	shares := make([]uint64, len(r.Payees))
	for i, p := range r.Payees {
		addrs[i], shares[i] = p.Address, p.Shares
	}
	fresh, err := NewRoster(addrs, shares)
	if err != nil {
		return err
	}
	if fresh.TotalShares != r.TotalShares {
		return fmt.Errorf("%w: total shares %d != sum %d", ErrInvalidRosterData, r.TotalShares, fresh.TotalShares)
	}
	return nil
}
