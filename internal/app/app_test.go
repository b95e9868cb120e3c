package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/eventscript/internal/catalog"
	"github.com/dshills/eventscript/internal/config"
	"github.com/dshills/eventscript/internal/logging"
)

var testData = map[string]string{
	"talkactions/talkactions.xml": `<?xml version="1.0" encoding="UTF-8"?>
<talkactions>
	<talkaction words="!hello;!hi" script="hello.lua" />
	<talkaction words="!reload" function="reload" />
	<talkaction words="!broken" script="broken.lua" />
	<talkaction words="!quiet" script="quiet.lua" />
</talkactions>`,
	"talkactions/lib/talkactions.lua": `
greetings = 0

function onCatalogLoaded(count)
	log("debug", "talkactions loaded: " .. count)
	return true
end
`,
	"talkactions/scripts/hello.lua": `
function onSay(speaker, words, param)
	greetings = greetings + 1
	return param ~= "no"
end
`,
	"talkactions/scripts/broken.lua": `function onSay(`,
	"talkactions/scripts/quiet.lua":  `function onLogin(player) return true end`,
	"globalevents/globalevents.xml": `<globalevents>
	<globalevent name="init" type="startup" script="startup.lua" />
	<globalevent name="status" interval="60000" function="status" />
	<globalevent name="record" type="record" script="record.lua" />
</globalevents>`,
	"globalevents/scripts/startup.lua": `
function onStartup()
	log("info", "talkactions: " .. catalogSize("talkactions"))
	return true
end
`,
	"globalevents/scripts/record.lua": `
function onRecord(current, old)
	if current <= old then
		error("record did not grow")
	end
	return true
end
`,
}

func writeData(t *testing.T) string {
	t.Helper()
	return writeFiles(t, testData)
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestApp(t *testing.T, engine string) *Application {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = writeData(t)
	cfg.Engine = engine
	cfg.Watch.Enabled = false

	app, err := New(cfg, Options{Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	app.Start(context.Background())
	t.Cleanup(func() {
		if err := app.Close(); err != nil {
			t.Errorf("Close error = %v", err)
		}
	})
	return app
}

func TestApplicationEndToEnd(t *testing.T) {
	for _, engine := range []string{config.EngineGopherLua, config.EngineGoLua} {
		t.Run(engine, func(t *testing.T) {
			app := newTestApp(t, engine)
			ctx := context.Background()

			reports, err := app.LoadAll(ctx)
			if err != nil {
				t.Fatalf("LoadAll error = %v", err)
			}
			if len(reports) != 2 {
				t.Fatalf("len(reports) = %d, want 2", len(reports))
			}

			talk := reports[0]
			if talk.Catalog != "talkactions" {
				t.Fatalf("first report = %s, want talkactions", talk.Catalog)
			}
			if talk.Registered() != 2 || talk.Failed() != 2 {
				t.Errorf("talkactions: %s", talk.Summary())
			}
			if !talk.HookCalled {
				t.Error("talkactions load hook was not called")
			}
			if got := reports[1].Registered(); got != 3 {
				t.Errorf("globalevents registered = %d, want 3", got)
			}

			for _, tt := range []struct {
				text string
				want bool
			}{
				{"!hello world", true},
				{"!HI", true},
				{"!hello no", false},
				{"!broken", false},
				{"!quiet", false},
			} {
				got, err := app.Say(ctx, "alice", tt.text)
				if err != nil {
					t.Errorf("Say(%q) error = %v", tt.text, err)
				}
				if got != tt.want {
					t.Errorf("Say(%q) = %v, want %v", tt.text, got, tt.want)
				}
			}

			if err := app.Startup(ctx); err != nil {
				t.Errorf("Startup error = %v", err)
			}
			if err := app.Record(ctx, 10, 5); err != nil {
				t.Errorf("Record(10, 5) error = %v", err)
			}
			if err := app.Record(ctx, 5, 10); err == nil {
				t.Error("Record(5, 10) error = nil, want script error")
			}
		})
	}
}

func TestApplicationReload(t *testing.T) {
	app := newTestApp(t, config.EngineGopherLua)
	ctx := context.Background()

	if _, err := app.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll error = %v", err)
	}
	l, _ := app.Loader("talkactions")
	first := l.LastReport().Generation

	rep, err := app.Reload(ctx, "talkactions")
	if err != nil {
		t.Fatalf("Reload error = %v", err)
	}
	if rep.Generation == first || rep.Registered() != 2 {
		t.Errorf("reload report = %s (%s)", rep.Summary(), rep.Generation)
	}

	// Scripts still run after the interface was reset and reloaded.
	if ok, err := app.Say(ctx, "bob", "!hello"); err != nil || !ok {
		t.Errorf("Say after reload = %v, %v", ok, err)
	}

	if _, err := app.Reload(ctx, "movements"); !errors.Is(err, ErrCatalogNotConfigured) {
		t.Errorf("Reload(movements) error = %v, want ErrCatalogNotConfigured", err)
	}
	if err := app.ReloadAll(ctx); err != nil {
		t.Errorf("ReloadAll error = %v", err)
	}
}

func TestApplicationReloadTalkAction(t *testing.T) {
	app := newTestApp(t, config.EngineGopherLua)
	ctx := context.Background()

	if _, err := app.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll error = %v", err)
	}
	l, _ := app.Loader("globalevents")
	first := l.LastReport().Generation

	if ok, err := app.Say(ctx, "gm", "!reload globalevents"); err != nil || !ok {
		t.Fatalf("Say(!reload) = %v, %v", ok, err)
	}
	if ok, _ := app.Say(ctx, "gm", "!reload movements"); ok {
		t.Error("reload of an unknown catalog was accepted")
	}

	// The reload was queued behind the talkaction; any later task sees it.
	if err := app.Think(ctx, time.Now()); err != nil {
		t.Fatalf("Think error = %v", err)
	}
	if l.LastReport().Generation == first {
		t.Error("globalevents were not reloaded")
	}
}

func TestApplicationLoadTwice(t *testing.T) {
	app := newTestApp(t, config.EngineGopherLua)
	ctx := context.Background()

	if _, err := app.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll error = %v", err)
	}
	if _, err := app.LoadAll(ctx); !errors.Is(err, catalog.ErrAlreadyLoaded) {
		t.Errorf("second LoadAll error = %v, want ErrAlreadyLoaded", err)
	}
}

func TestApplicationNotStarted(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = writeData(t)
	app, err := New(cfg, Options{Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer app.Close()

	if _, err := app.LoadAll(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("LoadAll error = %v, want ErrNotStarted", err)
	}
}

func TestApplicationCatalogSubset(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = writeData(t)
	cfg.Catalogs = []string{"globalevents"}

	app, err := New(cfg, Options{Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer app.Close()
	app.Start(context.Background())

	if _, err := app.Say(context.Background(), "alice", "!hello"); !errors.Is(err, ErrCatalogNotConfigured) {
		t.Errorf("Say error = %v, want ErrCatalogNotConfigured", err)
	}
	if _, ok := app.Loader("talkactions"); ok {
		t.Error("talkactions loader exists")
	}
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Engine = "luajit"

	_, err := New(cfg, Options{Logger: logging.Discard()})
	var ie *InitError
	if !errors.As(err, &ie) || ie.Component != "config" {
		t.Errorf("New error = %v, want config InitError", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = writeData(t)

	app, err := New(cfg, Options{Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := app.Serve(ctx); err != nil {
		t.Fatalf("Serve error = %v", err)
	}
	for _, name := range []string{"talkactions", "globalevents"} {
		if l, _ := app.Loader(name); !l.Loaded() {
			t.Errorf("%s not loaded by Serve", name)
		}
	}
}

func TestHostFunctionsAvailableDuringValidation(t *testing.T) {
	files := map[string]string{
		"talkactions/talkactions.xml": `<talkactions>
	<talkaction words="!loud" script="loud.lua" />
</talkactions>`,
		"talkactions/lib/talkactions.lua": `log("debug", "library loaded")`,
		"talkactions/scripts/loud.lua": `
log("info", "loud.lua loaded")
local before = catalogSize("talkactions")

function onSay(speaker, words, param)
	log("info", speaker .. " was loud")
	return true
end
`,
	}

	for _, engine := range []string{config.EngineGopherLua, config.EngineGoLua} {
		t.Run(engine, func(t *testing.T) {
			cfg := config.Default()
			cfg.DataDir = writeFiles(t, files)
			cfg.Engine = engine
			cfg.Catalogs = []string{"talkactions"}

			app, err := New(cfg, Options{Logger: logging.Discard()})
			if err != nil {
				t.Fatalf("New error = %v", err)
			}
			defer app.Close()
			app.Start(context.Background())
			ctx := context.Background()

			reports, err := app.LoadAll(ctx)
			if err != nil {
				t.Fatalf("LoadAll error = %v", err)
			}
			rep := reports[0]
			if rep.Registered() != 1 || rep.Failed() != 0 {
				for _, n := range rep.Nodes {
					t.Logf("line %d: %s: %v", n.Line, n.Outcome, n.Err)
				}
				t.Fatalf("talkactions: %s", rep.Summary())
			}

			ok, err := app.Say(ctx, "alice", "!loud")
			if err != nil || !ok {
				t.Errorf("Say(!loud) = %v, %v, want true", ok, err)
			}
		})
	}
}
