package treasury

import "errors"

var (
	// ErrInsufficientFunds indicates an account cannot cover a debit.
	ErrInsufficientFunds = errors.New("treasury: insufficient funds")

	// ErrZeroAmount indicates a deposit or transfer of nothing.
	ErrZeroAmount = errors.New("treasury: amount must be positive")

	// ErrBalanceOverflow indicates a credit would overflow an account.
	ErrBalanceOverflow = errors.New("treasury: balance overflow")

	// ErrCorruptEscrow indicates an unreadable pending escrow record.
	ErrCorruptEscrow = errors.New("treasury: corrupt escrow record")
)
