package ledger

import (
	"context"
	"fmt"

	"github.com/bitfsorg/libpop-go/store"
	"github.com/bitfsorg/libpop-go/wallet"
)

// saleDesk owns the owner, sale config and metadata base.
type saleDesk struct{}

func (saleDesk) requireOwner(tx store.Tx, caller wallet.Address) error {
	owner, err := tx.Owner()
	if err != nil {
		return err
	}
	if caller != owner {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	return nil
}

// requireActive returns the sale config, or ErrSaleInactive.
func (saleDesk) requireActive(tx store.Tx) (*store.SaleConfig, error) {
	sale, err := tx.Sale()
	if err != nil {
		return nil, err
	}
	if !sale.Active {
		return nil, ErrSaleInactive
	}
	return sale, nil
}

func (d saleDesk) setSale(tx store.Tx, caller wallet.Address, mutate func(s *store.SaleConfig)) error {
	if err := d.requireOwner(tx, caller); err != nil {
		return err
	}
	sale, err := tx.Sale()
	if err != nil {
		return err
	}
	mutate(sale)
	return tx.PutSale(sale)
}

// Owner returns the fixed owner address.
func (e *Engine) Owner(ctx context.Context) (owner wallet.Address, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		owner, err = tx.Owner()
		return err
	})
	return owner, err
}

// SetActive turns issuance on or off.
func (e *Engine) SetActive(ctx context.Context, caller wallet.Address, active bool) error {
	err := e.update(ctx, func(tx store.Tx) error {
		return e.desk.setSale(tx, caller, func(s *store.SaleConfig) { s.Active = active })
	})
	if err != nil {
		return err
	}
	e.log.Info("sale active changed", "active", active)
	e.emit(ctx, Event{Kind: EventSaleActiveChanged, From: caller, Flag: active})
	return nil
}

// SetPrice replaces the per-receipt price.
func (e *Engine) SetPrice(ctx context.Context, caller wallet.Address, price uint64) error {
	err := e.update(ctx, func(tx store.Tx) error {
		return e.desk.setSale(tx, caller, func(s *store.SaleConfig) { s.Price = price })
	})
	if err != nil {
		return err
	}
	e.log.Info("price changed", "price", price)
	e.emit(ctx, Event{Kind: EventPriceChanged, From: caller, Amount: price})
	return nil
}

// SetBaseURI replaces the metadata base that TokenURI prefixes to ids.
func (e *Engine) SetBaseURI(ctx context.Context, caller wallet.Address, uri string) error {
	err := e.update(ctx, func(tx store.Tx) error {
		if err := e.desk.requireOwner(tx, caller); err != nil {
			return err
		}
		c, err := tx.Collection()
		if err != nil {
			return err
		}
		c.BaseURI = uri
		return tx.PutCollection(c)
	})
	if err != nil {
		return err
	}
	e.log.Info("base uri changed", "uri", uri)
	e.emit(ctx, Event{Kind: EventBaseURIChanged, From: caller, Text: uri})
	return nil
}

func (e *Engine) Active(ctx context.Context) (active bool, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		sale, err := tx.Sale()
		if err != nil {
			return err
		}
		active = sale.Active
		return nil
	})
	return active, err
}

func (e *Engine) Price(ctx context.Context) (price uint64, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		sale, err := tx.Sale()
		if err != nil {
			return err
		}
		price = sale.Price
		return nil
	})
	return price, err
}

func (e *Engine) BaseURI(ctx context.Context) (uri string, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		c, err := tx.Collection()
		if err != nil {
			return err
		}
		uri = c.BaseURI
		return nil
	})
	return uri, err
}
