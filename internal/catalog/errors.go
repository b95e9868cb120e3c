package catalog

import "errors"

// Errors returned by the loader and by concrete catalogs.
var (
	// ErrAlreadyLoaded is returned by Load when the catalog is loaded.
	ErrAlreadyLoaded = errors.New("catalog is already loaded")

	// ErrDuplicateKey is returned by Register when a catalog rejects a
	// second event under the same key.
	ErrDuplicateKey = errors.New("duplicate event key")

	// ErrNilCatalog is returned when a loader is built without a catalog.
	ErrNilCatalog = errors.New("catalog is nil")
)
