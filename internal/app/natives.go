package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/eventscript/internal/catalog/globalevent"
	"github.com/dshills/eventscript/internal/catalog/talkaction"
	"github.com/dshills/eventscript/internal/logging"
	"github.com/dshills/eventscript/internal/script"
)

// registerHost exposes server functions to the scripts of iface:
//
//	log(level, message)     writes to the server log
//	catalogSize(name)       number of events registered in a catalog
func (app *Application) registerHost(iface script.Interface) {
	logger := app.logger.With("interface", iface.Name())

	iface.Register("log", func(args []any) ([]any, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("log: want level and message, got %d arguments", len(args))
		}
		level, err := logging.ParseLevel(fmt.Sprint(args[0]))
		if err != nil {
			return nil, err
		}
		logger.Log(context.Background(), level, fmt.Sprint(args[1]), "source", "script")
		return nil, nil
	})

	iface.Register("catalogSize", func(args []any) ([]any, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("catalogSize: missing catalog name")
		}
		l, ok := app.byName[fmt.Sprint(args[0])]
		if !ok {
			return []any{nil}, nil
		}
		return []any{int64(l.Catalog().Len())}, nil
	})
}

// talkFuncs are the native talkactions.
func (app *Application) talkFuncs() talkaction.Funcs {
	return talkaction.Funcs{
		// reload queues a reload of the named catalog, or of every catalog.
		// It cannot reload synchronously: it runs inside a talkactions call.
		"reload": func(ctx context.Context, speaker, _, param string) bool {
			name := strings.TrimSpace(param)
			if name != "" {
				if _, ok := app.byName[name]; !ok {
					logging.From(ctx).Warn("reload requested for unknown catalog", "speaker", speaker, "catalog", name)
					return false
				}
			}

			err := app.runner.Go(func(ctx context.Context) error {
				for _, l := range app.loaders {
					if name != "" && l.Catalog().Name() != name {
						continue
					}
					if _, err := l.Reload(ctx); err != nil {
						return err
					}
				}
				return nil
			}, func(err error) {
				if err != nil {
					app.logger.Error("reload failed", "speaker", speaker, "catalog", name, "error", err)
				}
			})
			if err != nil {
				logging.From(ctx).Warn("reload not queued", "error", err)
				return false
			}
			logging.From(ctx).Info("reload queued", "speaker", speaker, "catalog", name)
			return true
		},
	}
}

// globalFuncs are the native global events.
func (app *Application) globalFuncs() globalevent.Funcs {
	return globalevent.Funcs{
		// status logs the size of every catalog.
		"status": func(ctx context.Context, ev *globalevent.GlobalEvent, _ ...any) bool {
			args := []any{"event", ev.Name()}
			for _, l := range app.loaders {
				args = append(args, l.Catalog().Name(), l.Catalog().Len())
			}
			logging.From(ctx).Info("catalog status", args...)
			return true
		},
	}
}
