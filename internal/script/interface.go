package script

// NoEvent is the handle value meaning "not bound". Valid handles are > 0.
const NoEvent = 0

// HostFunc is a Go function exposed to scripts.
// Arguments and results are plain Go values: nil, bool, int64, float64,
// string, []any and map[string]any.
type HostFunc func(args []any) ([]any, error)

// Interface is a stateful script execution context.
type Interface interface {
	// Name identifies the interface in diagnostics.
	Name() string

	// LoadFile compiles and runs the top level of a script file.
	// On failure the error detail is also available from LastError.
	LoadFile(path string) error

	// GetEvent moves the global function name into the handle table and
	// returns its handle. The global is cleared, so a later script that
	// does not define name cannot resolve the previous one.
	// Returns ErrEventNotFound if name is not a function.
	GetEvent(name string) (int, error)

	// Call invokes the routine bound to handle and returns its results.
	Call(handle int, args ...any) ([]any, error)

	// Register exposes fn to scripts as the global name.
	// Registrations survive Reset.
	Register(name string, fn HostFunc)

	// LastError returns the detail of the most recent load or call error.
	LastError() string

	// Reset discards every loaded script and issued handle.
	Reset() error

	// Close releases the interface. Further calls fail with
	// ErrInterfaceClosed.
	Close() error
}

// Factory creates a new Interface with the given name.
type Factory func(name string) (Interface, error)
