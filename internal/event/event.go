package event

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dshills/eventscript/internal/logging"
	"github.com/dshills/eventscript/internal/script"
	"github.com/dshills/eventscript/internal/xmldoc"
)

// Event is a configured, optionally script-bound unit of behavior.
// Implementations embed Base.
type Event interface {
	// Configure reads the event-specific attributes of its declaration.
	Configure(node *xmldoc.Node) error

	// ScriptEventName is the entry point a script for this event must
	// define.
	ScriptEventName() string

	// LoadFunction binds the event to the named native function.
	LoadFunction(name string) error

	base() *Base
}

// Base holds the binding state of an event.
//
// The script interface is borrowed: it outlives every event referencing it
// and is never closed by one.
type Base struct {
	iface    script.Interface
	scripted bool
	scriptID int
	function string
}

// NewBase creates an unbound Base that binds scripts in iface.
// iface may be nil for events that only bind native functions.
func NewBase(iface script.Interface) Base {
	return Base{iface: iface}
}

func (b *Base) base() *Base {
	return b
}

// Scripted reports whether the event is bound to a script entry point.
func (b *Base) Scripted() bool {
	return b.scripted
}

// ScriptID returns the handle of the bound entry point, or script.NoEvent.
func (b *Base) ScriptID() int {
	return b.scriptID
}

// Interface returns the interface ScriptID is meaningful in.
func (b *Base) Interface() script.Interface {
	return b.iface
}

// Function returns the name of the bound native function, if any.
func (b *Base) Function() string {
	return b.function
}

// State returns the binding state.
func (b *Base) State() State {
	switch {
	case b.scripted:
		return StateScript
	case b.function != "":
		return StateFunction
	default:
		return StateUnbound
	}
}

// BindFunction records that the event is bound to the named native
// function. Concrete LoadFunction implementations call it after resolving
// the function.
func (b *Base) BindFunction(name string) error {
	if b.scriptID != script.NoEvent || b.function != "" {
		return fmt.Errorf("%w: function %q", ErrAlreadyBound, name)
	}
	b.function = name
	return nil
}

// CloneBound returns a copy of the binding state for a new handler object.
//
// The copy aliases the same compiled routine: both share ScriptID inside
// the same interface, and nothing is recompiled.
func (b *Base) CloneBound() Base {
	return Base{
		iface:    b.iface,
		scripted: b.scripted,
		scriptID: b.scriptID,
		function: b.function,
	}
}

// CallScript invokes the bound entry point with args.
func (b *Base) CallScript(args ...any) ([]any, error) {
	if !b.scripted {
		return nil, ErrNotScripted
	}
	return b.iface.Call(b.scriptID, args...)
}

// LibraryPath returns the shared library script of a catalog.
func LibraryPath(basePath, catalogName string) string {
	return filepath.Join(basePath, "lib", catalogName+".lua")
}

// CheckScript validates scriptFile (relative to basePath) in the Test
// Interface. The test interface is reset first and the catalog library is
// loaded into it; a missing library is only a warning.
//
// CheckScript never changes ev nor any production interface.
func CheckScript(ctx context.Context, ev Event, test script.Interface, basePath, catalogName, scriptFile string) error {
	const op = "checkScript"

	if test == nil {
		logging.Report(ctx, logging.SeverityFailure, "Event", op, "test interface is nil")
		return ErrNoInterface
	}

	if err := test.Reset(); err != nil {
		logging.Report(ctx, logging.SeverityError, "Event", op, "can not reset test interface", "error", err)
		return fmt.Errorf("resetting %s: %w", test.Name(), err)
	}

	lib := LibraryPath(basePath, catalogName)
	if err := test.LoadFile(lib); err != nil {
		logging.Report(ctx, logging.SeverityWarning, "Event", op, "can not load library",
			"catalog", catalogName, "lib", lib)
	}

	b := ev.base()
	if b.scriptID != script.NoEvent {
		logging.Report(ctx, logging.SeverityFailure, "Event", op, "event already bound", "script_id", b.scriptID)
		return fmt.Errorf("%w: script id %d", ErrAlreadyBound, b.scriptID)
	}

	path := filepath.Join(basePath, scriptFile)
	if err := test.LoadFile(path); err != nil {
		logging.Report(ctx, logging.SeverityWarning, "Event", op, "can not load script",
			"script", scriptFile, "detail", test.LastError())
		return fmt.Errorf("%w %s: %s", ErrScriptLoad, scriptFile, test.LastError())
	}

	entry := ev.ScriptEventName()
	if _, err := test.GetEvent(entry); err != nil {
		logging.Report(ctx, logging.SeverityWarning, "Event", op, "event not found",
			"event", entry, "script", scriptFile)
		return fmt.Errorf("%w: %s in %s", ErrEntryPointMissing, entry, scriptFile)
	}
	return nil
}

// LoadScript loads scriptFile into the event's own interface and binds the
// event to its entry point. On any failure the event is left unchanged.
func LoadScript(ctx context.Context, ev Event, scriptFile string) error {
	const op = "loadScript"

	b := ev.base()
	if b.iface == nil {
		logging.Report(ctx, logging.SeverityFailure, "Event", op, "script interface is nil", "script", scriptFile)
		return ErrNoInterface
	}
	if b.scriptID != script.NoEvent || b.function != "" {
		logging.Report(ctx, logging.SeverityFailure, "Event", op, "event already bound",
			"script_id", b.scriptID, "function", b.function)
		return fmt.Errorf("%w: script id %d", ErrAlreadyBound, b.scriptID)
	}

	if err := b.iface.LoadFile(scriptFile); err != nil {
		logging.Report(ctx, logging.SeverityWarning, "Event", op, "can not load script",
			"script", scriptFile, "detail", b.iface.LastError())
		return fmt.Errorf("%w %s: %s", ErrScriptLoad, scriptFile, b.iface.LastError())
	}

	entry := ev.ScriptEventName()
	id, err := b.iface.GetEvent(entry)
	if err != nil {
		logging.Report(ctx, logging.SeverityWarning, "Event", op, "event not found",
			"event", entry, "script", scriptFile)
		return fmt.Errorf("%w: %s in %s", ErrEntryPointMissing, entry, scriptFile)
	}

	b.scripted = true
	b.scriptID = id
	return nil
}

// Truthy interprets the first result of a script call the way Lua does:
// nil, false and no result are false, anything else is true.
func Truthy(results []any) bool {
	if len(results) == 0 {
		return false
	}
	switch v := results[0].(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		return true
	}
}
