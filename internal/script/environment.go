package script

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// TestInterfaceName is the name of the shared validation interface.
const TestInterfaceName = "Test Interface"

// Environment is the process-wide scripting environment. It creates
// production interfaces and owns the single Test Interface.
type Environment struct {
	mu      sync.Mutex
	factory Factory
	test    Interface
	created []Interface
	closed  bool
}

// NewEnvironment creates an environment whose interfaces come from factory.
func NewEnvironment(factory Factory) (*Environment, error) {
	if factory == nil {
		return nil, errors.New("script: nil factory")
	}

	test, err := factory(TestInterfaceName)
	if err != nil {
		return nil, fmt.Errorf("creating test interface: %w", err)
	}

	return &Environment{
		factory: factory,
		test:    test,
	}, nil
}

// TestInterface returns the shared validation interface.
//
// Callers must reset it before use and must not interleave validations
// from several goroutines.
func (e *Environment) TestInterface() Interface {
	return e.test
}

// NewInterface creates a production interface owned by the environment.
// It is closed together with the environment.
func (e *Environment) NewInterface(name string) (Interface, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrInterfaceClosed
	}

	iface, err := e.factory(name)
	if err != nil {
		return nil, fmt.Errorf("creating interface %q: %w", name, err)
	}
	e.created = append(e.created, iface)
	return iface, nil
}

// Close closes the test interface and every interface created by
// NewInterface.
func (e *Environment) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	errs := []error{e.test.Close()}
	for _, iface := range e.created {
		errs = append(errs, iface.Close())
	}
	e.created = nil
	return errors.Join(errs...)
}

// Engines maps engine names to factories.
type Engines map[string]Factory

// Lookup returns the factory registered under name.
func (m Engines) Lookup(name string) (Factory, error) {
	f, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownEngine, name, m.Names())
	}
	return f, nil
}

// Names returns the registered engine names, sorted.
func (m Engines) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
