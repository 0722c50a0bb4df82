package store

import "errors"

var (
	// ErrNotDeployed indicates the store holds no ledger yet.
	ErrNotDeployed = errors.New("store: ledger not deployed")

	// ErrReceiptNotFound indicates no receipt exists under the id.
	ErrReceiptNotFound = errors.New("store: receipt not found")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("store: required parameter is nil")

	// ErrCorrupt indicates a stored record failed to decode.
	ErrCorrupt = errors.New("store: corrupt record")

	// ErrClosed indicates the store was used after Close.
	ErrClosed = errors.New("store: closed")

	// ErrReadOnly indicates a write inside a View transaction.
	ErrReadOnly = errors.New("store: write in read-only transaction")
)
