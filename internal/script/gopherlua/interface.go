package gopherlua

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/eventscript/internal/script"
)

// EngineName is the name this engine is registered under.
const EngineName = "gopher-lua"

// DefaultCallTimeout bounds a single Call. Loading is never interrupted.
const DefaultCallTimeout = 5 * time.Second

// Interface is a script.Interface backed by a gopher-lua LState.
//
// The mutex protects against concurrent access from Go code, but the
// catalogs still serialize every operation through the runner.
type Interface struct {
	name        string
	callTimeout time.Duration

	mu      sync.Mutex
	L       *lua.LState
	bridge  *Bridge
	events  *lua.LTable
	nextID  int
	lastErr string
	closed  bool

	host      map[string]script.HostFunc
	hostOrder []string
}

// Option configures an Interface.
type Option func(*Interface)

// WithCallTimeout sets the timeout for Call. Zero disables it.
func WithCallTimeout(d time.Duration) Option {
	return func(i *Interface) {
		if d >= 0 {
			i.callTimeout = d
		}
	}
}

// New creates a new sandboxed interface.
func New(name string, opts ...Option) (*Interface, error) {
	i := &Interface{
		name:        name,
		callTimeout: DefaultCallTimeout,
		host:        make(map[string]script.HostFunc),
	}

	for _, opt := range opts {
		opt(i)
	}

	i.initState()
	return i, nil
}

// Factory returns a script.Factory creating gopher-lua interfaces.
func Factory(opts ...Option) script.Factory {
	return func(name string) (script.Interface, error) {
		return New(name, opts...)
	}
}

// initState creates a fresh LState and reinstalls host functions.
func (i *Interface) initState() {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	openSafeLibraries(L)

	i.L = L
	i.bridge = NewBridge(L)
	i.events = L.NewTable()
	i.nextID = 0
	i.lastErr = ""

	for _, name := range i.hostOrder {
		i.installHost(name, i.host[name])
	}
}

// Name implements script.Interface.
func (i *Interface) Name() string {
	return i.name
}

// LoadFile implements script.Interface.
func (i *Interface) LoadFile(path string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return script.ErrInterfaceClosed
	}

	top := i.L.GetTop()
	err := i.doWithRecovery(func() error {
		return i.L.DoFile(path)
	})
	i.L.SetTop(top)

	if err != nil {
		i.lastErr = err.Error()
		return err
	}
	return nil
}

// GetEvent implements script.Interface.
func (i *Interface) GetEvent(name string) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return script.NoEvent, script.ErrInterfaceClosed
	}

	fn := i.L.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return script.NoEvent, fmt.Errorf("%w: %s", script.ErrEventNotFound, name)
	}

	i.nextID++
	i.events.RawSetInt(i.nextID, fn)

	// The next script must define its own entry point.
	i.L.SetGlobal(name, lua.LNil)
	return i.nextID, nil
}

// Call implements script.Interface.
// Returns an empty slice (not nil) if the routine returns no values.
func (i *Interface) Call(handle int, args ...any) ([]any, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil, script.ErrInterfaceClosed
	}

	fn := i.events.RawGetInt(handle)
	if handle <= 0 || fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: %d", script.ErrInvalidHandle, handle)
	}

	if i.callTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), i.callTimeout)
		defer cancel()
		i.L.SetContext(ctx)
		defer i.L.RemoveContext()
	}

	// Record stack top before pushing anything
	top := i.L.GetTop()

	i.L.Push(fn)
	for _, arg := range args {
		i.L.Push(i.bridge.ToLuaValue(arg))
	}

	err := i.doWithRecovery(func() error {
		return i.L.PCall(len(args), lua.MultRet, nil)
	})
	if err != nil {
		i.L.SetTop(top)
		i.lastErr = err.Error()
		return nil, err
	}

	nRet := i.L.GetTop() - top
	results := make([]any, 0, nRet)
	for n := 1; n <= nRet; n++ {
		results = append(results, i.bridge.ToGoValue(i.L.Get(top+n)))
	}
	i.L.SetTop(top)

	return results, nil
}

// Register implements script.Interface.
func (i *Interface) Register(name string, fn script.HostFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, exists := i.host[name]; !exists {
		i.hostOrder = append(i.hostOrder, name)
	}
	i.host[name] = fn

	if !i.closed {
		i.installHost(name, fn)
	}
}

// installHost exposes fn as a global function.
func (i *Interface) installHost(name string, fn script.HostFunc) {
	bridge := i.bridge
	i.L.SetGlobal(name, i.L.NewFunction(func(L *lua.LState) int {
		args := make([]any, 0, L.GetTop())
		for n := 1; n <= L.GetTop(); n++ {
			args = append(args, bridge.ToGoValue(L.Get(n)))
		}

		results, err := fn(args)
		if err != nil {
			L.RaiseError("%s: %s", name, err.Error())
			return 0
		}

		for _, r := range results {
			L.Push(bridge.ToLuaValue(r))
		}
		return len(results)
	}))
}

// LastError implements script.Interface.
func (i *Interface) LastError() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastErr
}

// Reset implements script.Interface.
// The LState is replaced, so no global, metatable or registry entry of a
// previous script survives.
func (i *Interface) Reset() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return script.ErrInterfaceClosed
	}

	i.L.Close()
	i.initState()
	return nil
}

// Close implements script.Interface.
func (i *Interface) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}

	i.L.Close()
	i.closed = true
	return nil
}

// Handles returns the number of handles issued since the last Reset.
func (i *Interface) Handles() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.nextID
}

// doWithRecovery executes a function with panic recovery.
func (i *Interface) doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}
