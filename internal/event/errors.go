package event

import "errors"

// Errors for event binding operations.
var (
	// ErrAlreadyBound is returned when binding an event that already has a
	// script id or native function.
	ErrAlreadyBound = errors.New("event is already bound")

	// ErrNoInterface is returned when no script interface is available.
	ErrNoInterface = errors.New("script interface is nil")

	// ErrScriptLoad is returned when a script file fails to load.
	ErrScriptLoad = errors.New("can not load script")

	// ErrEntryPointMissing is returned when a loaded script does not define
	// the expected entry point.
	ErrEntryPointMissing = errors.New("entry point not found")

	// ErrUnknownFunction is returned when a native function name is not
	// registered.
	ErrUnknownFunction = errors.New("unknown native function")

	// ErrInvalidConfig is returned by Configure for malformed declarations.
	ErrInvalidConfig = errors.New("invalid event declaration")

	// ErrNotScripted is returned when invoking the script of an event that
	// is not bound to one.
	ErrNotScripted = errors.New("event is not scripted")

	// ErrCallBackNotLoaded is returned when calling an unloaded CallBack.
	ErrCallBackNotLoaded = errors.New("callback is not loaded")
)

// Kind classifies binding errors.
type Kind int

// Error kinds.
const (
	// KindNone - no error.
	KindNone Kind = iota

	// KindUsage - programming or configuration mistake: already bound,
	// missing interface.
	KindUsage

	// KindResource - a file is missing, malformed or fails to compile.
	KindResource

	// KindSemantic - the script loaded but does not provide what the event
	// needs.
	KindSemantic
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUsage:
		return "usage"
	case KindResource:
		return "resource"
	case KindSemantic:
		return "semantic"
	default:
		return "unknown"
	}
}

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAlreadyBound), errors.Is(err, ErrNoInterface), errors.Is(err, ErrCallBackNotLoaded):
		return KindUsage
	case errors.Is(err, ErrEntryPointMissing), errors.Is(err, ErrUnknownFunction), errors.Is(err, ErrNotScripted):
		return KindSemantic
	default:
		return KindResource
	}
}
