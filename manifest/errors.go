package manifest

import "errors"

var (
	// ErrInvalidManifest indicates a manifest that cannot describe a deployment.
	ErrInvalidManifest = errors.New("manifest: invalid manifest")

	// ErrPayeeResolution indicates a payee handle or address could not be resolved.
	ErrPayeeResolution = errors.New("manifest: payee resolution failed")
)
