package script

import "errors"

// Errors for Scripting Interface operations.
var (
	// ErrEventNotFound is returned by GetEvent when the entry point is not
	// defined as a function.
	ErrEventNotFound = errors.New("script event not found")

	// ErrInvalidHandle is returned by Call for a handle that was never issued.
	ErrInvalidHandle = errors.New("invalid script handle")

	// ErrInterfaceClosed is returned when operating on a closed interface.
	ErrInterfaceClosed = errors.New("script interface is closed")

	// ErrUnknownEngine is returned when an engine name is not registered.
	ErrUnknownEngine = errors.New("unknown script engine")
)
