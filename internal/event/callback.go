package event

import (
	"context"
	"fmt"

	"github.com/dshills/eventscript/internal/logging"
	"github.com/dshills/eventscript/internal/script"
)

// CallBack is a named entry point inside a shared interface.
// It never loads files: the interface must already contain the function.
type CallBack struct {
	name     string
	iface    script.Interface
	scriptID int
	loaded   bool
}

// Load resolves name inside iface. On failure nothing is changed.
func (c *CallBack) Load(ctx context.Context, iface script.Interface, name string) error {
	const op = "loadCallBack"

	if iface == nil {
		logging.Report(ctx, logging.SeverityFailure, "CallBack", op, "script interface is nil", "callback", name)
		return ErrNoInterface
	}

	id, err := iface.GetEvent(name)
	if err != nil {
		logging.Report(ctx, logging.SeverityWarning, "CallBack", op, "event not found", "callback", name)
		return fmt.Errorf("%w: %s", ErrEntryPointMissing, name)
	}

	c.iface = iface
	c.name = name
	c.scriptID = id
	c.loaded = true
	return nil
}

// Loaded reports whether the callback is bound.
func (c *CallBack) Loaded() bool {
	return c.loaded
}

// Name returns the callback name.
func (c *CallBack) Name() string {
	return c.name
}

// ScriptID returns the handle of the bound function.
func (c *CallBack) ScriptID() int {
	return c.scriptID
}

// Interface returns the interface the callback is bound in.
func (c *CallBack) Interface() script.Interface {
	return c.iface
}

// Call invokes the callback.
func (c *CallBack) Call(args ...any) ([]any, error) {
	if !c.loaded {
		return nil, ErrCallBackNotLoaded
	}
	return c.iface.Call(c.scriptID, args...)
}
