package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dshills/eventscript/internal/catalog"
	"github.com/dshills/eventscript/internal/logging"
)

// thinkTick is how often think and timer events are checked.
const thinkTick = time.Second

// Serve loads every catalog, runs startup events and then reloads catalogs
// on file changes and SIGHUP until ctx is done. Shutdown events run before
// it returns. Catalogs that fail to load are logged; the server keeps
// running with the rest.
func (app *Application) Serve(ctx context.Context) error {
	app.Start(ctx)
	ctx = logging.With(ctx, app.logger)

	// Startup completes even when ctx is already done.
	startCtx := context.WithoutCancel(ctx)
	if _, err := app.LoadAll(startCtx); err != nil {
		app.logger.Error("some catalogs failed to load", "error", err)
	}
	if err := app.Startup(startCtx); err != nil {
		app.logger.Error("startup events failed", "error", err)
	}

	var changes <-chan string
	var watchErrs <-chan error
	if app.cfg.Watch.Enabled {
		w, err := app.watch()
		if err != nil {
			app.logger.Warn("file watching disabled", "error", err)
		} else {
			defer w.Close()
			changes = w.Changes()
			watchErrs = w.Errors()
		}
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	ticker := time.NewTicker(thinkTick)
	defer ticker.Stop()

	app.logger.Info("serving", "catalogs", app.cfg.Catalogs, "engine", app.cfg.Engine)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case <-hup:
			app.logger.Info("SIGHUP received, reloading all catalogs")
			if err := app.ReloadAll(ctx); err != nil {
				app.logger.Error("reload failed", "error", err)
			}

		case name := <-changes:
			app.logger.Info("catalog changed on disk", "catalog", name)
			if _, err := app.Reload(ctx, name); err != nil {
				app.logger.Error("reload failed", "catalog", name, "error", err)
			}

		case err := <-watchErrs:
			app.logger.Warn("watch error", "error", err)

		case now := <-ticker.C:
			if err := app.Think(ctx, now); err != nil {
				app.logger.Error("think failed", "error", err)
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("shutdown events failed", "error", err)
	}
	return nil
}

// watch starts a watcher over the directory of every catalog.
func (app *Application) watch() (*catalog.Watcher, error) {
	w, err := catalog.NewWatcher(time.Duration(app.cfg.Watch.Debounce))
	if err != nil {
		return nil, err
	}
	for _, l := range app.loaders {
		if err := w.Add(l.Catalog().Name(), l.BasePath()); err != nil {
			app.logger.Warn("not watching catalog", "catalog", l.Catalog().Name(), "path", l.BasePath(), "error", err)
		}
	}
	return w, nil
}

// Think runs the think and timer events due at now.
func (app *Application) Think(ctx context.Context, now time.Time) error {
	if app.global == nil {
		return nil
	}
	return app.do(ctx, func(ctx context.Context) error {
		_, err := app.global.Think(ctx, now)
		return err
	})
}

// Record runs the record events.
func (app *Application) Record(ctx context.Context, current, old int) error {
	if app.global == nil {
		return nil
	}
	return app.do(ctx, func(ctx context.Context) error {
		return app.global.Record(ctx, current, old)
	})
}

// Startup runs the startup events.
func (app *Application) Startup(ctx context.Context) error {
	if app.global == nil {
		return nil
	}
	return app.do(ctx, app.global.Startup)
}

// Shutdown runs the shutdown events.
func (app *Application) Shutdown(ctx context.Context) error {
	if app.global == nil {
		return nil
	}
	return app.do(ctx, app.global.Shutdown)
}
