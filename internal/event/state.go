package event

// State is the binding state of an event.
type State int

// Binding states.
const (
	// StateUnbound - neither a script nor a function is bound.
	StateUnbound State = iota

	// StateFunction - bound to a native Go function.
	StateFunction

	// StateScript - bound to a compiled script entry point.
	StateScript
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateFunction:
		return "function"
	case StateScript:
		return "script"
	default:
		return "unknown"
	}
}
