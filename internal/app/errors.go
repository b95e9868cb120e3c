package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrNotStarted is returned when using the application before Start.
	ErrNotStarted = errors.New("application not started")

	// ErrCatalogNotConfigured is returned when a catalog is not enabled.
	ErrCatalogNotConfigured = errors.New("catalog not configured")
)

// InitError represents a failure to initialize a component.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initializing %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
