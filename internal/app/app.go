// Package app wires configuration, scripting engines, catalogs and the
// runner into the eventsd server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dshills/eventscript/internal/catalog"
	"github.com/dshills/eventscript/internal/catalog/globalevent"
	"github.com/dshills/eventscript/internal/catalog/talkaction"
	"github.com/dshills/eventscript/internal/config"
	"github.com/dshills/eventscript/internal/logging"
	"github.com/dshills/eventscript/internal/metrics"
	"github.com/dshills/eventscript/internal/runner"
	"github.com/dshills/eventscript/internal/script"
	"github.com/dshills/eventscript/internal/script/golua"
	"github.com/dshills/eventscript/internal/script/gopherlua"
)

// Engines are the scripting engines selectable by configuration.
var Engines = script.Engines{
	gopherlua.EngineName: gopherlua.Factory(),
	golua.EngineName:     golua.Factory(),
}

// interfaceNames name the production interface of each catalog.
var interfaceNames = map[string]string{
	talkaction.Name:  "TalkAction Interface",
	globalevent.Name: "GlobalEvent Interface",
}

// Application owns every catalog and serializes access to them.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	env     *script.Environment
	metrics *metrics.Metrics
	runner  *runner.Runner

	loaders []*catalog.Loader
	byName  map[string]*catalog.Loader

	talk   *talkaction.Catalog
	global *globalevent.Catalog

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	stopped chan struct{}
}

// Options configures the application.
type Options struct {
	// Engines overrides the engine table, for tests.
	Engines script.Engines

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New creates the application described by cfg. Nothing is loaded until
// LoadAll.
func New(cfg config.Config, opts Options) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}
	if opts.Engines == nil {
		opts.Engines = Engines
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	factory, err := opts.Engines.Lookup(cfg.Engine)
	if err != nil {
		return nil, &InitError{Component: "engine", Err: err}
	}
	env, err := script.NewEnvironment(factory)
	if err != nil {
		return nil, &InitError{Component: "script environment", Err: err}
	}

	app := &Application{
		cfg:    cfg,
		logger: opts.Logger,
		env:    env,
		runner: runner.New(64),
		byName: make(map[string]*catalog.Loader),
		metrics: metrics.New(
			metrics.WithTextfile(cfg.Metrics.Textfile),
			metrics.WithErrorHandler(func(err error) {
				opts.Logger.Warn("writing metrics textfile", "error", err)
			}),
		),
	}

	if err := app.bootstrap(); err != nil {
		_ = env.Close()
		return nil, err
	}
	return app, nil
}

// bootstrap creates one interface, catalog and loader per configured
// catalog, in configuration order.
func (app *Application) bootstrap() error {
	// Validation must see the same host API as production. Registrations
	// survive the reset that precedes every check.
	app.registerHost(app.env.TestInterface())

	for _, name := range app.cfg.Catalogs {
		iface, err := app.env.NewInterface(interfaceNames[name])
		if err != nil {
			return &InitError{Component: name, Err: err}
		}
		app.registerHost(iface)

		var c catalog.Catalog
		switch name {
		case talkaction.Name:
			app.talk = talkaction.New(iface, app.talkFuncs())
			c = app.talk
		case globalevent.Name:
			app.global = globalevent.New(iface, app.globalFuncs())
			c = app.global
		default:
			return &InitError{Component: name, Err: fmt.Errorf("unknown catalog %q", name)}
		}

		l, err := catalog.NewLoader(c, app.env,
			catalog.WithDataDir(app.cfg.DataDir),
			catalog.WithRecorder(app.metrics))
		if err != nil {
			return &InitError{Component: name, Err: err}
		}
		app.loaders = append(app.loaders, l)
		app.byName[name] = l
	}
	return nil
}

// Start runs the runner goroutine. ctx supplies the logger; cancelling it
// does not stop the runner, Close does.
func (app *Application) Start(ctx context.Context) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.started {
		return
	}
	app.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(logging.With(ctx, app.logger)))
	app.cancel = cancel
	app.stopped = make(chan struct{})
	go func() {
		defer close(app.stopped)
		app.runner.Run(runCtx)
	}()
}

// Close stops the runner and closes every script interface.
func (app *Application) Close() error {
	app.mu.Lock()
	started := app.started
	app.started = false
	app.mu.Unlock()

	app.runner.Close()
	if started {
		app.cancel()
		<-app.stopped
	}
	return app.env.Close()
}

// do runs fn on the runner.
func (app *Application) do(ctx context.Context, fn runner.Task) error {
	app.mu.Lock()
	started := app.started
	app.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	return app.runner.Do(ctx, fn)
}

// Metrics returns the metrics of the application.
func (app *Application) Metrics() *metrics.Metrics {
	return app.metrics
}

// Loader returns the loader of the named catalog.
func (app *Application) Loader(name string) (*catalog.Loader, bool) {
	l, ok := app.byName[name]
	return l, ok
}

// LoadAll loads every catalog. A catalog that fails does not stop the
// others; the returned reports cover the catalogs that loaded.
func (app *Application) LoadAll(ctx context.Context) ([]*catalog.Report, error) {
	var reports []*catalog.Report
	err := app.do(ctx, func(ctx context.Context) error {
		var errs []error
		for _, l := range app.loaders {
			rep, err := l.Load(ctx)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			reports = append(reports, rep)
		}
		return errors.Join(errs...)
	})
	return reports, err
}

// Reload reloads the named catalog.
func (app *Application) Reload(ctx context.Context, name string) (*catalog.Report, error) {
	l, ok := app.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCatalogNotConfigured, name)
	}

	var rep *catalog.Report
	err := app.do(ctx, func(ctx context.Context) error {
		var err error
		rep, err = l.Reload(ctx)
		return err
	})
	return rep, err
}

// ReloadAll reloads every catalog.
func (app *Application) ReloadAll(ctx context.Context) error {
	var errs []error
	for _, l := range app.loaders {
		if _, err := app.Reload(ctx, l.Catalog().Name()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Say executes the talkaction matching text.
func (app *Application) Say(ctx context.Context, speaker, text string) (bool, error) {
	if app.talk == nil {
		return false, fmt.Errorf("%w: %s", ErrCatalogNotConfigured, talkaction.Name)
	}

	var handled bool
	err := app.do(ctx, func(ctx context.Context) error {
		var err error
		handled, err = app.talk.Say(ctx, speaker, text)
		return err
	})
	return handled, err
}
