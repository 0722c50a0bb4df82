package splitter

import "errors"

var (
	// ErrInvalidConstruction indicates the payee list or share weights are unusable.
	ErrInvalidConstruction = errors.New("splitter: invalid construction")

	// ErrUnknownPayee indicates the address holds no shares.
	ErrUnknownPayee = errors.New("splitter: account has no shares")

	// ErrInvalidRosterData indicates serialized roster bytes are malformed.
	ErrInvalidRosterData = errors.New("splitter: invalid roster data")

	// ErrAccountingOverflow indicates a release would exceed what the payee is owed.
	ErrAccountingOverflow = errors.New("splitter: released exceeds entitlement")
)
