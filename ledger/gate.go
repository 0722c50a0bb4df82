package ledger

import (
	"context"
	"fmt"

	"github.com/bitfsorg/libpop-go/registry"
	"github.com/bitfsorg/libpop-go/store"
	"github.com/bitfsorg/libpop-go/wallet"
)

// GatePolicy selects the eligibility check applied to owner issuance.
// Purchase always requires the caller to hold each primary token.
type GatePolicy int

const (
	// GateRedeemOnly checks only that each primary id is unredeemed.
	GateRedeemOnly GatePolicy = iota
	// GateHolder also requires the recipient to hold each primary id.
	GateHolder
)

var policyNames = map[GatePolicy]string{
	GateRedeemOnly: "redeem-only",
	GateHolder:     "holder",
}

func (p GatePolicy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("GatePolicy(%d)", int(p))
}

func (p GatePolicy) valid() bool {
	_, ok := policyNames[p]
	return ok
}

// ParseGatePolicy parses "redeem-only" or "holder". Empty selects the default.
func ParseGatePolicy(s string) (GatePolicy, error) {
	if s == "" {
		return GateRedeemOnly, nil
	}
	for p, name := range policyNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// checkHolder verifies holder owns every primary id in the registry.
// It runs before any write transaction opens.
func checkHolder(ctx context.Context, reg registry.Registry, holder wallet.Address, ids []uint64) error {
	owners, err := registry.Owners(ctx, reg, ids)
	if err != nil {
		return fmt.Errorf("ledger: registry lookup: %w", err)
	}
	for i, id := range ids {
		switch owners[i] {
		case wallet.ZeroAddress:
			return fmt.Errorf("%w: primary token %d does not exist", ErrIneligible, id)
		case holder:
		default:
			return fmt.Errorf("%w: %s does not hold primary token %d", ErrIneligible, holder, id)
		}
	}
	return nil
}

// checkUnredeemed rejects ids that already back a receipt, including
// ids repeated inside the same batch.
func checkUnredeemed(tx store.Tx, ids []uint64) error {
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: primary token %d repeated in batch", ErrAlreadyRedeemed, id)
		}
		seen[id] = struct{}{}

		receiptID, ok, err := tx.Redemption(id)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("%w: primary token %d backs receipt %d", ErrAlreadyRedeemed, id, receiptID)
		}
	}
	return nil
}
