// Package golua implements script.Interface on top of Shopify's go-lua,
// a Lua 5.2 virtual machine written in Go.
//
// It is the alternate engine; behavior matches the gopher-lua engine:
// entry points are moved from the globals into a handle table kept in the
// Lua registry, and Reset replaces the whole state.
package golua

import (
	"fmt"
	"sort"
	"sync"

	lua "github.com/Shopify/go-lua"

	"github.com/dshills/eventscript/internal/script"
)

// EngineName is the name this engine is registered under.
const EngineName = "go-lua"

// eventsKey is the registry field holding the handle table.
const eventsKey = "eventscript.events"

// unsafeGlobals are removed after the standard libraries are opened.
var unsafeGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "io", "debug", "package"}

// unsafeOSFuncs are removed from the os library.
var unsafeOSFuncs = []string{"execute", "exit", "remove", "rename", "getenv", "tmpname", "setlocale"}

// Interface is a script.Interface backed by a go-lua State.
type Interface struct {
	name string

	mu      sync.Mutex
	l       *lua.State
	nextID  int
	lastErr string
	closed  bool

	host      map[string]script.HostFunc
	hostOrder []string
}

// New creates a new sandboxed interface.
func New(name string) (*Interface, error) {
	i := &Interface{
		name: name,
		host: make(map[string]script.HostFunc),
	}
	i.initState()
	return i, nil
}

// Factory returns a script.Factory creating go-lua interfaces.
func Factory() script.Factory {
	return func(name string) (script.Interface, error) {
		return New(name)
	}
}

// initState creates a fresh state with the handle table and host functions.
func (i *Interface) initState() {
	l := lua.NewState()
	lua.OpenLibraries(l)

	for _, name := range unsafeGlobals {
		l.PushNil()
		l.SetGlobal(name)
	}

	l.Global("os")
	if l.IsTable(-1) {
		for _, name := range unsafeOSFuncs {
			l.PushNil()
			l.SetField(-2, name)
		}
	}
	l.Pop(1)

	l.NewTable()
	l.SetField(lua.RegistryIndex, eventsKey)

	i.l = l
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

	top := i.l.Top()
	defer i.l.SetTop(top)

	err := i.protect(func() error {
		if err := lua.LoadFile(i.l, path, ""); err != nil {
			return err
		}
		return i.l.ProtectedCall(0, 0, 0)
	})
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

	top := i.l.Top()
	defer i.l.SetTop(top)

	i.l.Global(name)
	if !i.l.IsFunction(-1) {
		return script.NoEvent, fmt.Errorf("%w: %s", script.ErrEventNotFound, name)
	}

	// stack: fn, events
	i.nextID++
	i.l.Field(lua.RegistryIndex, eventsKey)
	i.l.PushValue(-2)
	i.l.RawSetInt(-2, i.nextID)

	i.l.PushNil()
	i.l.SetGlobal(name)
	return i.nextID, nil
}

// Call implements script.Interface.
func (i *Interface) Call(handle int, args ...any) ([]any, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil, script.ErrInterfaceClosed
	}

	top := i.l.Top()
	defer i.l.SetTop(top)

	i.l.Field(lua.RegistryIndex, eventsKey)
	i.l.RawGetInt(-1, handle)
	if handle <= 0 || !i.l.IsFunction(-1) {
		return nil, fmt.Errorf("%w: %d", script.ErrInvalidHandle, handle)
	}

	base := i.l.Top() - 1
	for _, arg := range args {
		pushValue(i.l, arg)
	}

	err := i.protect(func() error {
		return i.l.ProtectedCall(len(args), lua.MultipleReturns, 0)
	})
	if err != nil {
		i.lastErr = err.Error()
		return nil, err
	}

	results := make([]any, 0, i.l.Top()-base)
	for n := base + 1; n <= i.l.Top(); n++ {
		results = append(results, toValue(i.l, n))
	}
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

func (i *Interface) installHost(name string, fn script.HostFunc) {
	i.l.Register(name, func(l *lua.State) int {
		n := l.Top()
		args := make([]any, 0, n)
		for idx := 1; idx <= n; idx++ {
			args = append(args, toValue(l, idx))
		}

		results, err := fn(args)
		if err != nil {
			lua.Errorf(l, "%s: %s", name, err.Error())
			return 0
		}

		for _, r := range results {
			pushValue(l, r)
		}
		return len(results)
	})
}

// LastError implements script.Interface.
func (i *Interface) LastError() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastErr
}

// Reset implements script.Interface.
func (i *Interface) Reset() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return script.ErrInterfaceClosed
	}
	i.initState()
	return nil
}

// Close implements script.Interface.
// go-lua states are garbage collected; Close only disables the interface.
func (i *Interface) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.closed = true
	i.l = nil
	return nil
}

// protect converts panics raised by the VM into errors.
func (i *Interface) protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// pushValue pushes a Go value onto the stack.
func pushValue(l *lua.State, v any) {
	switch val := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(val)
	case int:
		l.PushInteger(val)
	case int32:
		l.PushInteger(int(val))
	case int64:
		l.PushInteger(int(val))
	case float32:
		l.PushNumber(float64(val))
	case float64:
		l.PushNumber(val)
	case string:
		l.PushString(val)
	case []any:
		l.NewTable()
		for n, item := range val {
			pushValue(l, item)
			l.RawSetInt(-2, n+1)
		}
	case []string:
		l.NewTable()
		for n, item := range val {
			l.PushString(item)
			l.RawSetInt(-2, n+1)
		}
	case map[string]any:
		l.NewTable()
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pushValue(l, val[k])
			l.SetField(-2, k)
		}
	default:
		l.PushString(fmt.Sprint(val))
	}
}

// toValue converts the value at index to a Go value.
func toValue(l *lua.State, index int) any {
	return convert(l, index, make(map[any]bool))
}

func convert(l *lua.State, index int, visited map[any]bool) any {
	switch l.TypeOf(index) {
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeNumber:
		f, _ := l.ToNumber(index)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeTable:
		// Break circular references
		id := l.ToValue(index)
		if visited[id] {
			return nil
		}
		visited[id] = true
		return tableValue(l, l.AbsIndex(index), visited)
	default:
		return nil
	}
}

// tableValue converts a table to []any when it is a sequence and to
// map[string]any otherwise.
func tableValue(l *lua.State, index int, visited map[any]bool) any {
	if !l.CheckStack(3) {
		return nil
	}

	n := l.RawLength(index)
	m := make(map[string]any)
	count := 0

	l.PushNil()
	for l.Next(index) {
		count++
		// Copy the key so ToString does not confuse Next.
		l.PushValue(-2)
		key, _ := l.ToString(-1)
		l.Pop(1)
		m[key] = convert(l, -1, visited)
		l.Pop(1)
	}

	if n > 0 && n == count {
		arr := make([]any, n)
		for k := 1; k <= n; k++ {
			arr[k-1] = m[fmt.Sprint(k)]
		}
		return arr
	}
	return m
}
