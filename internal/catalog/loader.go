package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dshills/eventscript/internal/event"
	"github.com/dshills/eventscript/internal/logging"
	"github.com/dshills/eventscript/internal/script"
	"github.com/dshills/eventscript/internal/xmldoc"
)

// DefaultDataDir is the directory catalogs are read from.
const DefaultDataDir = "data"

// HookName is the library function called after every load with the
// number of registered events.
const HookName = "onCatalogLoaded"

// Recorder observes finished loads. err is non-nil when the load failed;
// rep may then be nil.
type Recorder interface {
	LoadFinished(catalog string, rep *Report, err error)
}

// Loader drives a Catalog through load and reload.
type Loader struct {
	catalog Catalog
	env     *script.Environment
	dataDir string
	rec     Recorder

	loaded bool
	hook   event.CallBack
	last   *Report
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithDataDir sets the directory containing catalog directories.
func WithDataDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.dataDir = dir
	}
}

// WithRecorder sets the recorder notified after every load.
func WithRecorder(r Recorder) LoaderOption {
	return func(l *Loader) {
		l.rec = r
	}
}

// NewLoader creates a loader for c. Scripts are validated in the Test
// Interface of env.
func NewLoader(c Catalog, env *script.Environment, opts ...LoaderOption) (*Loader, error) {
	if c == nil {
		return nil, ErrNilCatalog
	}
	if env == nil {
		return nil, event.ErrNoInterface
	}

	l := &Loader{
		catalog: c,
		env:     env,
		dataDir: DefaultDataDir,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Catalog returns the loaded catalog.
func (l *Loader) Catalog() Catalog {
	return l.catalog
}

// Loaded reports whether the catalog is loaded.
func (l *Loader) Loaded() bool {
	return l.loaded
}

// LastReport returns the report of the most recent successful load.
func (l *Loader) LastReport() *Report {
	return l.last
}

// Hook returns the load hook bound by the most recent load.
func (l *Loader) Hook() *event.CallBack {
	return &l.hook
}

// BasePath returns data/<name>.
func (l *Loader) BasePath() string {
	return filepath.Join(l.dataDir, l.catalog.Name())
}

// DocumentPath returns data/<name>/<name>.xml.
func (l *Loader) DocumentPath() string {
	return filepath.Join(l.BasePath(), l.catalog.Name()+".xml")
}

// Load reads the catalog document and registers every event that
// configures and binds. It fails without side effects when the catalog is
// already loaded, and leaves the catalog unloaded when the document cannot
// be parsed. Failures of single declarations are only recorded.
func (l *Loader) Load(ctx context.Context) (*Report, error) {
	const op = "load"
	name := l.catalog.Name()

	if l.loaded {
		logging.Report(ctx, logging.SeverityFailure, "Loader", op, "catalog is already loaded", "catalog", name)
		return nil, fmt.Errorf("%s: %w", name, ErrAlreadyLoaded)
	}

	basePath := l.BasePath()
	iface := l.catalog.Interface()
	if iface != nil {
		lib := event.LibraryPath(basePath, name)
		if err := iface.LoadFile(lib); err != nil {
			logging.Report(ctx, logging.SeverityWarning, "Loader", op, "can not load library",
				"catalog", name, "lib", lib, "detail", iface.LastError())
		}
	}

	rep := newReport(name, l.DocumentPath())
	doc, err := xmldoc.ParseFile(rep.Document)
	if err != nil {
		args := []any{"catalog", name, "document", rep.Document, "error", err}
		var pe *xmldoc.ParseError
		if errors.As(err, &pe) {
			args = append(args, "detail", pe.Message, "line", pe.Line, "column", pe.Column)
		}
		logging.Report(ctx, logging.SeverityError, "Loader", op, "failed to load catalog document", args...)
		err = fmt.Errorf("loading %s: %w", name, err)
		l.record(nil, err)
		return nil, err
	}

	l.loaded = true

	root := doc.Child(name)
	if root == nil {
		logging.Report(ctx, logging.SeverityWarning, "Loader", op, "document root does not match catalog",
			"catalog", name, "root", doc.Root.Name)
	} else {
		for _, node := range root.Children {
			rep.Nodes = append(rep.Nodes, l.loadNode(ctx, basePath, node))
		}
	}

	rep.HookCalled = l.runHook(ctx, iface, rep.Registered())
	rep.Duration = time.Since(rep.Started)
	l.last = rep
	l.record(rep, nil)

	logging.From(ctx).Info("catalog loaded",
		"catalog", name,
		"generation", rep.Generation,
		"registered", rep.Registered(),
		"failed", rep.Failed(),
		"skipped", rep.Count(OutcomeSkipped),
		"duration", rep.Duration)
	return rep, nil
}

// loadNode runs one declaration through configure, bind and register.
func (l *Loader) loadNode(ctx context.Context, basePath string, node *xmldoc.Node) NodeResult {
	const op = "load"
	name := l.catalog.Name()
	res := NodeResult{Tag: node.Name, Line: node.Line}

	ev := l.catalog.NewEvent(node.Name)
	if ev == nil {
		res.Outcome = OutcomeSkipped
		return res
	}

	if err := ev.Configure(node); err != nil {
		logging.Report(ctx, logging.SeverityWarning, "Loader", op, "failed to configure event",
			"catalog", name, "line", node.Line, "error", err)
		res.Outcome = OutcomeConfigureFailed
		res.Err = err
		return res
	}

	if scriptAttr, ok := node.Attr("script"); ok {
		res.Script = scriptAttr
		scriptFile := filepath.Join("scripts", scriptAttr)
		err := event.CheckScript(ctx, ev, l.env.TestInterface(), basePath, name, scriptFile)
		if err == nil {
			err = event.LoadScript(ctx, ev, filepath.Join(basePath, scriptFile))
		}
		if err != nil {
			res.Outcome = OutcomeBindFailed
			res.Err = err
			return res
		}
	} else {
		res.Function = node.AttrOr("function", "")
		if err := ev.LoadFunction(res.Function); err != nil {
			logging.Report(ctx, logging.SeverityWarning, "Loader", op, "failed to load function",
				"catalog", name, "function", res.Function, "line", node.Line, "error", err)
			res.Outcome = OutcomeBindFailed
			res.Err = err
			return res
		}
	}

	if err := l.catalog.Register(ctx, ev, node); err != nil {
		logging.Report(ctx, logging.SeverityWarning, "Loader", op, "failed to register event",
			"catalog", name, "line", node.Line, "error", err)
		res.Outcome = OutcomeRegisterFailed
		res.Err = err
		return res
	}

	res.Outcome = OutcomeRegistered
	return res
}

// runHook binds and calls the load hook when the library defines it.
func (l *Loader) runHook(ctx context.Context, iface script.Interface, registered int) bool {
	l.hook = event.CallBack{}
	if iface == nil {
		return false
	}

	// The hook is optional; a missing definition is not worth a warning.
	if err := l.hook.Load(logging.With(ctx, logging.Discard()), iface, HookName); err != nil {
		return false
	}

	if _, err := l.hook.Call(registered); err != nil {
		logging.Report(ctx, logging.SeverityError, "Loader", "load", "load hook failed",
			"catalog", l.catalog.Name(), "error", err)
		return false
	}
	return true
}

// Reload clears the catalog and loads it again. Readers of the catalog
// observe an empty registry between the two steps.
func (l *Loader) Reload(ctx context.Context) (*Report, error) {
	l.loaded = false
	if err := l.catalog.Clear(); err != nil {
		logging.Report(ctx, logging.SeverityError, "Loader", "reload", "failed to clear catalog",
			"catalog", l.catalog.Name(), "error", err)
		return nil, fmt.Errorf("clearing %s: %w", l.catalog.Name(), err)
	}
	return l.Load(ctx)
}

func (l *Loader) record(rep *Report, err error) {
	if l.rec != nil {
		l.rec.LoadFinished(l.catalog.Name(), rep, err)
	}
}
