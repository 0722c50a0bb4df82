package registry

import "errors"

var (
	// ErrTokenNotFound indicates the primary collection has no token under the id.
	ErrTokenNotFound = errors.New("registry: token not found")

	// ErrConnectionFailed indicates the registry endpoint could not be reached.
	ErrConnectionFailed = errors.New("registry: connection failed")

	// ErrInvalidResponse indicates the registry returned a malformed response.
	ErrInvalidResponse = errors.New("registry: invalid response")

	// ErrNotConfigured indicates no registry endpoint is configured.
	ErrNotConfigured = errors.New("registry: endpoint not configured")
)
