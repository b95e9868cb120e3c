package catalog

import (
	"context"

	"github.com/dshills/eventscript/internal/event"
	"github.com/dshills/eventscript/internal/script"
	"github.com/dshills/eventscript/internal/xmldoc"
)

// Catalog is the registry side of an event family.
type Catalog interface {
	// Name is the catalog name. It selects data/<name>/ and the document
	// root element.
	Name() string

	// Interface is the production interface events of this catalog are
	// bound in. The library script is loaded into it.
	Interface() script.Interface

	// NewEvent returns an unbound event for tag, or nil when the tag does
	// not belong to this catalog.
	NewEvent(tag string) event.Event

	// Register inserts a configured and bound event. The duplicate key
	// policy belongs to the implementation and must be documented there.
	Register(ctx context.Context, ev event.Event, node *xmldoc.Node) error

	// Clear empties the registry and resets the production interface.
	Clear() error

	// Len returns the number of registered events.
	Len() int
}

// Outcome is what happened to one declaration during a load.
type Outcome int

// Node outcomes.
const (
	// OutcomeRegistered - the event was bound and registered.
	OutcomeRegistered Outcome = iota

	// OutcomeSkipped - the tag is not part of the catalog.
	OutcomeSkipped

	// OutcomeConfigureFailed - the declaration attributes were rejected.
	OutcomeConfigureFailed

	// OutcomeBindFailed - validation or binding of the script or function
	// failed.
	OutcomeBindFailed

	// OutcomeRegisterFailed - the catalog refused the event.
	OutcomeRegisterFailed
)

// Outcomes lists every outcome in declaration order.
var Outcomes = []Outcome{
	OutcomeRegistered,
	OutcomeSkipped,
	OutcomeConfigureFailed,
	OutcomeBindFailed,
	OutcomeRegisterFailed,
}

// String returns a string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeRegistered:
		return "registered"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeConfigureFailed:
		return "configure_failed"
	case OutcomeBindFailed:
		return "bind_failed"
	case OutcomeRegisterFailed:
		return "register_failed"
	default:
		return "unknown"
	}
}

// Failed reports whether the outcome discarded an event of the catalog.
func (o Outcome) Failed() bool {
	return o == OutcomeConfigureFailed || o == OutcomeBindFailed || o == OutcomeRegisterFailed
}
