package journal

import "errors"

var (
	// ErrClosed indicates the journal was used after Close.
	ErrClosed = errors.New("journal: closed")

	// ErrCorruptRow indicates a stored event failed to decode.
	ErrCorruptRow = errors.New("journal: corrupt event row")
)
