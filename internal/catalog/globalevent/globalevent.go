// Package globalevent implements the globalevents catalog: scripts run at
// server startup and shutdown, on a new player record, at a fixed
// interval or at a time of day.
//
// Event names are unique; a second declaration with a known name is
// rejected.
package globalevent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/eventscript/internal/catalog"
	"github.com/dshills/eventscript/internal/event"
	"github.com/dshills/eventscript/internal/logging"
	"github.com/dshills/eventscript/internal/script"
	"github.com/dshills/eventscript/internal/xmldoc"
)

// Name is the catalog name.
const Name = "globalevents"

// Tag is the element declaring a global event.
const Tag = "globalevent"

// Type is the trigger of a global event.
type Type int

// Global event types.
const (
	TypeThink Type = iota
	TypeTimer
	TypeStartup
	TypeShutdown
	TypeRecord
)

// String returns a string representation of the type.
func (t Type) String() string {
	switch t {
	case TypeThink:
		return "think"
	case TypeTimer:
		return "timer"
	case TypeStartup:
		return "startup"
	case TypeShutdown:
		return "shutdown"
	case TypeRecord:
		return "record"
	default:
		return "unknown"
	}
}

// EntryPoint returns the script function for the type.
func (t Type) EntryPoint() string {
	switch t {
	case TypeTimer:
		return "onTime"
	case TypeStartup:
		return "onStartup"
	case TypeShutdown:
		return "onShutdown"
	case TypeRecord:
		return "onRecord"
	default:
		return "onThink"
	}
}

// Func is a native global event.
type Func func(ctx context.Context, ev *GlobalEvent, args ...any) bool

// Funcs maps native function names to implementations.
type Funcs map[string]Func

// GlobalEvent is one declared global event.
type GlobalEvent struct {
	event.Base

	name     string
	typ      Type
	interval time.Duration
	offset   time.Duration // time of day, timer events

	lastRun time.Time
	nextRun time.Time

	funcs  Funcs
	native Func
}

// Configure reads name and one of type, time or interval.
func (g *GlobalEvent) Configure(node *xmldoc.Node) error {
	name, ok := node.Attr("name")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: missing name", event.ErrInvalidConfig)
	}
	g.name = name

	if typ, ok := node.Attr("type"); ok {
		switch strings.ToLower(typ) {
		case "startup":
			g.typ = TypeStartup
		case "shutdown":
			g.typ = TypeShutdown
		case "record":
			g.typ = TypeRecord
		default:
			return fmt.Errorf("%w: %s: unknown type %q", event.ErrInvalidConfig, name, typ)
		}
		return nil
	}

	if at, ok := node.Attr("time"); ok {
		offset, err := ParseTimeOfDay(at)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", event.ErrInvalidConfig, name, err)
		}
		g.typ = TypeTimer
		g.offset = offset
		g.interval = 24 * time.Hour
		return nil
	}

	ms, ok, err := node.IntAttr("interval")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", event.ErrInvalidConfig, name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s: missing interval", event.ErrInvalidConfig, name)
	}
	if ms <= 0 {
		return fmt.Errorf("%w: %s: interval must be positive", event.ErrInvalidConfig, name)
	}
	g.typ = TypeThink
	g.interval = time.Duration(ms) * time.Millisecond
	return nil
}

// ParseTimeOfDay parses HH:MM or HH:MM:SS into an offset from midnight.
func ParseTimeOfDay(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q (want HH:MM[:SS])", s)
	}

	limits := []int{24, 60, 60}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var offset time.Duration
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v >= limits[i] {
			return 0, fmt.Errorf("invalid time %q (want HH:MM[:SS])", s)
		}
		offset += time.Duration(v) * units[i]
	}
	return offset, nil
}

// ScriptEventName implements event.Event.
func (g *GlobalEvent) ScriptEventName() string {
	return g.typ.EntryPoint()
}

// LoadFunction binds a native function.
func (g *GlobalEvent) LoadFunction(name string) error {
	fn, ok := g.funcs[name]
	if !ok || name == "" {
		return fmt.Errorf("%w: %q", event.ErrUnknownFunction, name)
	}
	if err := g.BindFunction(name); err != nil {
		return err
	}
	g.native = fn
	return nil
}

// Name returns the event name.
func (g *GlobalEvent) Name() string { return g.name }

// Type returns the trigger type.
func (g *GlobalEvent) Type() Type { return g.typ }

// Interval returns the think interval, or a day for timer events.
func (g *GlobalEvent) Interval() time.Duration { return g.interval }

// NextRun returns when a think or timer event runs next.
func (g *GlobalEvent) NextRun() time.Time { return g.nextRun }

// Execute runs the event with args.
func (g *GlobalEvent) Execute(ctx context.Context, args ...any) (bool, error) {
	if g.Scripted() {
		res, err := g.CallScript(args...)
		if err != nil {
			return false, err
		}
		return event.Truthy(res), nil
	}
	if g.native != nil {
		return g.native(ctx, g, args...), nil
	}
	return false, event.ErrNotScripted
}

// schedule sets the first run relative to now.
func (g *GlobalEvent) schedule(now time.Time) {
	switch g.typ {
	case TypeThink:
		g.lastRun = now
		g.nextRun = now.Add(g.interval)
	case TypeTimer:
		y, m, d := now.Date()
		next := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Add(g.offset)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		g.nextRun = next
	}
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithClock sets the clock used to schedule newly registered events.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		c.now = now
	}
}

// Catalog is the globalevents registry, keyed by event name.
type Catalog struct {
	iface  script.Interface
	funcs  Funcs
	now    func() time.Time
	events map[string]*GlobalEvent
}

// New creates an empty catalog binding scripts in iface.
func New(iface script.Interface, funcs Funcs, opts ...Option) *Catalog {
	c := &Catalog{
		iface:  iface,
		funcs:  funcs,
		now:    time.Now,
		events: make(map[string]*GlobalEvent),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements catalog.Catalog.
func (c *Catalog) Name() string { return Name }

// Interface implements catalog.Catalog.
func (c *Catalog) Interface() script.Interface { return c.iface }

// Len implements catalog.Catalog.
func (c *Catalog) Len() int { return len(c.events) }

// NewEvent implements catalog.Catalog.
func (c *Catalog) NewEvent(tag string) event.Event {
	if tag != Tag {
		return nil
	}
	return &GlobalEvent{Base: event.NewBase(c.iface), funcs: c.funcs}
}

// Register adds ev under its name. Duplicate names are rejected.
func (c *Catalog) Register(_ context.Context, ev event.Event, _ *xmldoc.Node) error {
	g, ok := ev.(*GlobalEvent)
	if !ok {
		return fmt.Errorf("globalevents: unexpected event type %T", ev)
	}
	if _, exists := c.events[g.name]; exists {
		return fmt.Errorf("%w: globalevent %q", catalog.ErrDuplicateKey, g.name)
	}
	g.schedule(c.now())
	c.events[g.name] = g
	return nil
}

// Clear removes every event and resets the interface.
func (c *Catalog) Clear() error {
	c.events = make(map[string]*GlobalEvent)
	if c.iface == nil {
		return nil
	}
	return c.iface.Reset()
}

// Lookup returns the event named name.
func (c *Catalog) Lookup(name string) (*GlobalEvent, bool) {
	g, ok := c.events[name]
	return g, ok
}

// Events returns the events of type t ordered by name.
func (c *Catalog) Events(t Type) []*GlobalEvent {
	var out []*GlobalEvent
	for _, g := range c.events {
		if g.typ == t {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Startup runs every startup event.
func (c *Catalog) Startup(ctx context.Context) error {
	return c.run(ctx, TypeStartup)
}

// Shutdown runs every shutdown event.
func (c *Catalog) Shutdown(ctx context.Context) error {
	return c.run(ctx, TypeShutdown)
}

// Record runs every record event with the new and previous player record.
func (c *Catalog) Record(ctx context.Context, current, old int) error {
	return c.run(ctx, TypeRecord, current, old)
}

func (c *Catalog) run(ctx context.Context, t Type, args ...any) error {
	var errs []error
	for _, g := range c.Events(t) {
		if err := c.execute(ctx, g, args...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Think runs the think and timer events due at now and returns how many
// ran.
func (c *Catalog) Think(ctx context.Context, now time.Time) (int, error) {
	var errs []error
	ran := 0

	for _, g := range c.Events(TypeThink) {
		if now.Before(g.nextRun) {
			continue
		}
		ran++
		if err := c.execute(ctx, g, g.interval.Milliseconds()); err != nil {
			errs = append(errs, err)
		}
		g.lastRun = now
		g.nextRun = now.Add(g.interval)
	}

	for _, g := range c.Events(TypeTimer) {
		if now.Before(g.nextRun) {
			continue
		}
		ran++
		if err := c.execute(ctx, g, now.Unix()); err != nil {
			errs = append(errs, err)
		}
		for !g.nextRun.After(now) {
			g.nextRun = g.nextRun.AddDate(0, 0, 1)
		}
	}

	return ran, errors.Join(errs...)
}

// NextThink returns the earliest scheduled run, or false when no think or
// timer event is registered.
func (c *Catalog) NextThink() (time.Time, bool) {
	var next time.Time
	found := false
	for _, g := range c.events {
		if g.typ != TypeThink && g.typ != TypeTimer {
			continue
		}
		if !found || g.nextRun.Before(next) {
			next = g.nextRun
			found = true
		}
	}
	return next, found
}

func (c *Catalog) execute(ctx context.Context, g *GlobalEvent, args ...any) error {
	ok, err := g.Execute(ctx, args...)
	if err != nil {
		logging.Report(ctx, logging.SeverityError, "GlobalEvent", "execute", "globalevent failed",
			"name", g.name, "type", g.typ.String(), "error", err)
		return fmt.Errorf("globalevent %s: %w", g.name, err)
	}
	if !ok {
		logging.From(ctx).Debug("globalevent returned false", "name", g.name, "type", g.typ.String())
	}
	return nil
}
