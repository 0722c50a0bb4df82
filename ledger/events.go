package ledger

import (
	"context"

	"github.com/bitfsorg/libpop-go/wallet"
)

// EventKind names a ledger event.
type EventKind string

const (
	EventDeployed          EventKind = "Deployed" // recorded by the deploying tool
	EventTransfer          EventKind = "Transfer" // mint only
	EventPaymentReceived   EventKind = "PaymentReceived"
	EventPaymentReleased   EventKind = "PaymentReleased"
	EventSaleActiveChanged EventKind = "SaleActiveChanged"
	EventPriceChanged      EventKind = "PriceChanged"
	EventBaseURIChanged    EventKind = "BaseURIChanged"
	EventApproval          EventKind = "Approval"
	EventApprovalForAll    EventKind = "ApprovalForAll"
)

// Event is one committed state change. Unused fields are zero.
type Event struct {
	Kind      EventKind      `json:"kind"`
	From      wallet.Address `json:"from"`
	To        wallet.Address `json:"to"`
	TokenID   uint64         `json:"token_id"`
	PrimaryID uint64         `json:"primary_id"`
	Amount    uint64         `json:"amount"`
	Flag      bool           `json:"flag"`
	Text      string         `json:"text,omitempty"`
}

// EventSink receives events after the transaction that produced them
// commits. Emit errors are logged and never undo the commit.
type EventSink interface {
	Emit(ctx context.Context, events []Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, events []Event) error

func (f EventSinkFunc) Emit(ctx context.Context, events []Event) error { return f(ctx, events) }

type nopSink struct{}

func (nopSink) Emit(context.Context, []Event) error { return nil }
