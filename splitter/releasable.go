package splitter

import (
	"fmt"
	"math/bits"

	"github.com/bitfsorg/libpop-go/wallet"
)

// Entitlement returns floor(totalReceived * shares / totalShares) using a
// 128-bit intermediate product. shares must not exceed totalShares.
func Entitlement(totalReceived, shares, totalShares uint64) uint64 {
	if totalShares == 0 || shares == 0 {
		return 0
	}
	hi, lo := bits.Mul64(totalReceived, shares)
	q, _ := bits.Div64(hi, lo, totalShares)
	return q
}

// Releasable returns what addr can pull now: its entitlement on
// totalReceived minus what it has already been paid.
func (r *Roster) Releasable(addr wallet.Address, totalReceived, released uint64) (uint64, error) {
	_, p := r.Find(addr)
	if p == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPayee, addr)
	}
	owed := Entitlement(totalReceived, p.Shares, r.TotalShares)
	if released > owed {
		return 0, fmt.Errorf("%w: %s released %d, entitled to %d", ErrAccountingOverflow, addr, released, owed)
	}
	return owed - released, nil
}

// Preview lists the releasable amount of every payee in roster order.
// released maps payees to their cumulative payouts; missing entries are zero.
func (r *Roster) Preview(totalReceived uint64, released map[wallet.Address]uint64) ([]Distribution, error) {
	out := make([]Distribution, len(r.Payees))
	for i, p := range r.Payees {
		amount, err := r.Releasable(p.Address, totalReceived, released[p.Address])
		if err != nil {
			return nil, err
		}
		out[i] = Distribution{Address: p.Address, Amount: amount}
	}
	return out, nil
}
