package splitter

import "github.com/bitfsorg/libpop-go/wallet"

// Payee is a stakeholder and its integer share weight.
type Payee struct {
	Address wallet.Address
	Shares  uint64
}

// Roster is the fixed payee set of a deployment.
type Roster struct {
	Payees      []Payee
	TotalShares uint64
}

// Find returns the index and payee for addr, or -1 if addr holds no shares.
func (r *Roster) Find(addr wallet.Address) (int, *Payee) {
	for i := range r.Payees {
		if r.Payees[i].Address == addr {
			return i, &r.Payees[i]
		}
	}
	return -1, nil
}

// SharesOf returns the share weight of addr, zero for non-payees.
func (r *Roster) SharesOf(addr wallet.Address) uint64 {
	if _, p := r.Find(addr); p != nil {
		return p.Shares
	}
	return 0
}

// Distribution is one line of a payout preview.
type Distribution struct {
	Address wallet.Address
	Amount  uint64
}
