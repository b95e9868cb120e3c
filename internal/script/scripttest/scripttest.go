// Package scripttest provides an in-memory Scripting Interface for tests.
//
// Scripts are declared as the set of global functions they define instead
// of Lua source, so catalog and event logic can be tested without an
// engine:
//
//	files := scripttest.Files{
//	    "data/talkactions/scripts/hello.lua": scripttest.Defines("onSay"),
//	    "data/talkactions/scripts/broken.lua": scripttest.Broken("syntax error near 'end'"),
//	}
//	iface := scripttest.New("TalkAction Interface", files)
package scripttest

import (
	"fmt"
	"path/filepath"

	"github.com/dshills/eventscript/internal/script"
)

// Script describes what loading a file does.
type Script struct {
	// Funcs are the global functions the script defines.
	Funcs map[string]script.HostFunc

	// Err, when non-empty, makes LoadFile fail with this detail.
	Err string
}

// Files maps cleaned file paths to scripts.
type Files map[string]Script

// Defines returns a script defining each name as a function returning true.
func Defines(names ...string) Script {
	funcs := make(map[string]script.HostFunc, len(names))
	for _, name := range names {
		funcs[name] = func([]any) ([]any, error) {
			return []any{true}, nil
		}
	}
	return Script{Funcs: funcs}
}

// Broken returns a script that fails to load with detail.
func Broken(detail string) Script {
	return Script{Err: detail}
}

// Interface is a fake script.Interface. It is not goroutine-safe.
type Interface struct {
	name  string
	files Files

	globals map[string]script.HostFunc
	host    map[string]script.HostFunc
	handles []script.HostFunc
	lastErr string
	closed  bool

	// Loaded records every path passed to LoadFile, in order.
	Loaded []string
	// Resets counts calls to Reset.
	Resets int
	// Calls counts successful calls to Call.
	Calls int
}

// New creates a fake interface reading scripts from files.
func New(name string, files Files) *Interface {
	if files == nil {
		files = Files{}
	}
	return &Interface{
		name:    name,
		files:   files,
		globals: make(map[string]script.HostFunc),
		host:    make(map[string]script.HostFunc),
	}
}

// Factory returns a script.Factory whose interfaces share files.
// Created interfaces are appended to created when it is non-nil.
func Factory(files Files, created *[]*Interface) script.Factory {
	return func(name string) (script.Interface, error) {
		iface := New(name, files)
		if created != nil {
			*created = append(*created, iface)
		}
		return iface, nil
	}
}

// Name implements script.Interface.
func (f *Interface) Name() string {
	return f.name
}

// LoadFile implements script.Interface.
func (f *Interface) LoadFile(path string) error {
	if f.closed {
		return script.ErrInterfaceClosed
	}
	f.Loaded = append(f.Loaded, path)

	s, ok := f.files[filepath.Clean(path)]
	if !ok {
		f.lastErr = fmt.Sprintf("cannot open %s: no such file or directory", path)
		return fmt.Errorf("%s", f.lastErr)
	}
	if s.Err != "" {
		f.lastErr = fmt.Sprintf("%s: %s", path, s.Err)
		return fmt.Errorf("%s", f.lastErr)
	}

	for name, fn := range s.Funcs {
		f.globals[name] = fn
	}
	return nil
}

// GetEvent implements script.Interface.
func (f *Interface) GetEvent(name string) (int, error) {
	if f.closed {
		return script.NoEvent, script.ErrInterfaceClosed
	}

	fn, ok := f.globals[name]
	if !ok {
		return script.NoEvent, fmt.Errorf("%w: %s", script.ErrEventNotFound, name)
	}
	delete(f.globals, name)

	f.handles = append(f.handles, fn)
	return len(f.handles), nil
}

// Call implements script.Interface.
func (f *Interface) Call(handle int, args ...any) ([]any, error) {
	if f.closed {
		return nil, script.ErrInterfaceClosed
	}
	if handle <= 0 || handle > len(f.handles) {
		return nil, fmt.Errorf("%w: %d", script.ErrInvalidHandle, handle)
	}

	results, err := f.handles[handle-1](args)
	if err != nil {
		f.lastErr = err.Error()
		return nil, err
	}
	f.Calls++
	return results, nil
}

// Register implements script.Interface.
func (f *Interface) Register(name string, fn script.HostFunc) {
	f.host[name] = fn
}

// Host returns the host function registered under name.
func (f *Interface) Host(name string) (script.HostFunc, bool) {
	fn, ok := f.host[name]
	return fn, ok
}

// LastError implements script.Interface.
func (f *Interface) LastError() string {
	return f.lastErr
}

// Reset implements script.Interface.
func (f *Interface) Reset() error {
	if f.closed {
		return script.ErrInterfaceClosed
	}
	f.globals = make(map[string]script.HostFunc)
	f.handles = nil
	f.lastErr = ""
	f.Resets++
	return nil
}

// Close implements script.Interface.
func (f *Interface) Close() error {
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *Interface) Closed() bool {
	return f.closed
}

// Defined reports whether name is currently a global function.
func (f *Interface) Defined(name string) bool {
	_, ok := f.globals[name]
	return ok
}
