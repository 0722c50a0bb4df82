package ledger

import "errors"

var (
	// ErrUnauthorized indicates a non-owner called an owner-only operation.
	ErrUnauthorized = errors.New("ledger: caller is not the owner")

	// ErrSaleInactive indicates issuance was attempted while the sale is off.
	ErrSaleInactive = errors.New("ledger: sale is not active")

	// ErrAlreadyRedeemed indicates a primary token id already backs a receipt.
	ErrAlreadyRedeemed = errors.New("ledger: primary token already redeemed")

	// ErrIneligible indicates the caller or recipient does not hold the primary token.
	ErrIneligible = errors.New("ledger: not eligible for primary token")

	// ErrInsufficientPayment indicates the attached value is below price times count.
	ErrInsufficientPayment = errors.New("ledger: insufficient payment")

	// ErrNontransferable indicates a transfer of a minted receipt.
	ErrNontransferable = errors.New("ledger: token is soulbound")

	// ErrUnknownToken indicates a lookup on a receipt id that was never minted.
	ErrUnknownToken = errors.New("ledger: unknown token")

	// ErrNothingDue indicates a release with zero releasable balance.
	ErrNothingDue = errors.New("ledger: account is not due payment")

	// ErrInvalidConstruction indicates malformed deployment parameters.
	ErrInvalidConstruction = errors.New("ledger: invalid construction parameters")

	// ErrUnknownPayee indicates a release for an address with no shares.
	ErrUnknownPayee = errors.New("ledger: account has no shares")

	// ErrZeroAddress indicates the zero address was used as a recipient or source.
	ErrZeroAddress = errors.New("ledger: zero address")

	// ErrEmptyBatch indicates an issuance call with no primary token ids.
	ErrEmptyBatch = errors.New("ledger: no primary token ids")

	// ErrAlreadyDeployed indicates Deploy on a store that already holds a ledger.
	ErrAlreadyDeployed = errors.New("ledger: already deployed")

	// ErrNotDeployed indicates Open on an empty store.
	ErrNotDeployed = errors.New("ledger: not deployed")

	// ErrNilDependency indicates a required dependency was not supplied.
	ErrNilDependency = errors.New("ledger: required dependency is nil")

	// ErrUnknownPolicy indicates an unrecognized gate policy.
	ErrUnknownPolicy = errors.New("ledger: unknown gate policy")

	// ErrValueOverflow indicates the received total would exceed the counter range.
	ErrValueOverflow = errors.New("ledger: received value overflows")
)
