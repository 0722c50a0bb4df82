package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bitfsorg/libpop-go/store"
	"github.com/bitfsorg/libpop-go/wallet"
)

// receiptBook owns receipts, balances, the redemption index and approvals.
type receiptBook struct{}

// mint issues the next receipt id to `to` and records the redemption.
func (receiptBook) mint(tx store.Tx, to wallet.Address, primaryID uint64) (uint64, error) {
	if to.IsZero() {
		return 0, fmt.Errorf("%w: mint recipient", ErrZeroAddress)
	}
	c, err := tx.Collection()
	if err != nil {
		return 0, err
	}
	id := c.NextID
	c.NextID++

	bal, err := tx.Balance(to)
	if err != nil {
		return 0, err
	}
	if err := tx.PutReceipt(&store.Receipt{ID: id, Owner: to, PrimaryID: primaryID}); err != nil {
		return 0, err
	}
	if err := tx.PutRedemption(primaryID, id); err != nil {
		return 0, err
	}
	if err := tx.PutBalance(to, bal+1); err != nil {
		return 0, err
	}
	if err := tx.PutCollection(c); err != nil {
		return 0, err
	}
	return id, nil
}

func (receiptBook) get(tx store.Tx, id uint64) (*store.Receipt, error) {
	r, err := tx.Receipt(id)
	if errors.Is(err, store.ErrReceiptNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownToken, id)
	}
	return r, err
}

func (e *Engine) Name(ctx context.Context) (name string, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		c, err := tx.Collection()
		if err != nil {
			return err
		}
		name = c.Name
		return nil
	})
	return name, err
}

func (e *Engine) Symbol(ctx context.Context) (symbol string, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		c, err := tx.Collection()
		if err != nil {
			return err
		}
		symbol = c.Symbol
		return nil
	})
	return symbol, err
}

// Primary returns the identifier of the primary collection.
func (e *Engine) Primary(ctx context.Context) (primary string, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		c, err := tx.Collection()
		if err != nil {
			return err
		}
		primary = c.Primary
		return nil
	})
	return primary, err
}

// TotalSupply returns the number of receipts minted. Ids run from 0 to
// TotalSupply-1 since receipts are never burned.
func (e *Engine) TotalSupply(ctx context.Context) (n uint64, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		c, err := tx.Collection()
		if err != nil {
			return err
		}
		n = c.NextID
		return nil
	})
	return n, err
}

func (e *Engine) OwnerOf(ctx context.Context, id uint64) (owner wallet.Address, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		r, err := e.receipts.get(tx, id)
		if err != nil {
			return err
		}
		owner = r.Owner
		return nil
	})
	return owner, err
}

func (e *Engine) BalanceOf(ctx context.Context, holder wallet.Address) (n uint64, err error) {
	if holder.IsZero() {
		return 0, fmt.Errorf("%w: balance query", ErrZeroAddress)
	}
	err = e.view(ctx, func(tx store.Tx) error {
		n, err = tx.Balance(holder)
		return err
	})
	return n, err
}

// TokenURI returns the base URI followed by the decimal id.
func (e *Engine) TokenURI(ctx context.Context, id uint64) (uri string, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		if _, err := e.receipts.get(tx, id); err != nil {
			return err
		}
		c, err := tx.Collection()
		if err != nil {
			return err
		}
		uri = c.BaseURI + strconv.FormatUint(id, 10)
		return nil
	})
	return uri, err
}

// ReceiptFor returns the primary token id a receipt was issued against.
func (e *Engine) ReceiptFor(ctx context.Context, id uint64) (primaryID uint64, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		r, err := e.receipts.get(tx, id)
		if err != nil {
			return err
		}
		primaryID = r.PrimaryID
		return nil
	})
	return primaryID, err
}

// RedeemedBy reports the receipt issued against a primary token id.
func (e *Engine) RedeemedBy(ctx context.Context, primaryID uint64) (receiptID uint64, ok bool, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		receiptID, ok, err = tx.Redemption(primaryID)
		return err
	})
	return receiptID, ok, err
}

// TransferFrom always fails. Receipts leave the zero address once, at
// mint, and never move again.
func (e *Engine) TransferFrom(ctx context.Context, caller, from, to wallet.Address, id uint64) error {
	return e.rejectTransfer(ctx, caller, from, to, id)
}

// SafeTransferFrom always fails; see TransferFrom.
func (e *Engine) SafeTransferFrom(ctx context.Context, caller, from, to wallet.Address, id uint64) error {
	return e.rejectTransfer(ctx, caller, from, to, id)
}

// SafeTransferFromWithData always fails; data is ignored.
func (e *Engine) SafeTransferFromWithData(ctx context.Context, caller, from, to wallet.Address, id uint64, _ []byte) error {
	return e.rejectTransfer(ctx, caller, from, to, id)
}

func (e *Engine) rejectTransfer(ctx context.Context, caller, from, to wallet.Address, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.log.Debug("transfer rejected", "caller", caller, "from", from, "to", to, "id", id)
	if from.IsZero() {
		return fmt.Errorf("%w: transfer source", ErrZeroAddress)
	}
	return fmt.Errorf("%w: receipt %d", ErrNontransferable, id)
}

// Approve records an approval for id. Approvals never enable a transfer.
func (e *Engine) Approve(ctx context.Context, caller, approved wallet.Address, id uint64) error {
	err := e.update(ctx, func(tx store.Tx) error {
		r, err := e.receipts.get(tx, id)
		if err != nil {
			return err
		}
		if r.Owner != caller {
			allowed, err := tx.Operator(r.Owner, caller)
			if err != nil {
				return err
			}
			if !allowed {
				return fmt.Errorf("%w: %s cannot approve receipt %d", ErrUnauthorized, caller, id)
			}
		}
		return tx.PutApproval(id, approved)
	})
	if err != nil {
		return err
	}
	e.emit(ctx, Event{Kind: EventApproval, From: caller, To: approved, TokenID: id})
	return nil
}

func (e *Engine) GetApproved(ctx context.Context, id uint64) (approved wallet.Address, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		if _, err := e.receipts.get(tx, id); err != nil {
			return err
		}
		approved, err = tx.Approval(id)
		return err
	})
	return approved, err
}

// SetApprovalForAll records an operator grant. It never enables a transfer.
func (e *Engine) SetApprovalForAll(ctx context.Context, caller, operator wallet.Address, approved bool) error {
	if operator.IsZero() {
		return fmt.Errorf("%w: operator", ErrZeroAddress)
	}
	err := e.update(ctx, func(tx store.Tx) error {
		return tx.PutOperator(caller, operator, approved)
	})
	if err != nil {
		return err
	}
	e.emit(ctx, Event{Kind: EventApprovalForAll, From: caller, To: operator, Flag: approved})
	return nil
}

func (e *Engine) IsApprovedForAll(ctx context.Context, holder, operator wallet.Address) (ok bool, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		ok, err = tx.Operator(holder, operator)
		return err
	})
	return ok, err
}
