package event

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/eventscript/internal/logging"
	"github.com/dshills/eventscript/internal/script"
	"github.com/dshills/eventscript/internal/script/scripttest"
	"github.com/dshills/eventscript/internal/xmldoc"
)

// sayEvent is a minimal concrete event.
type sayEvent struct {
	Base
	natives map[string]func() bool
	native  func() bool
}

func newSayEvent(iface script.Interface) *sayEvent {
	return &sayEvent{
		Base:    NewBase(iface),
		natives: map[string]func() bool{"ping": func() bool { return true }},
	}
}

func (e *sayEvent) Configure(*xmldoc.Node) error { return nil }
func (e *sayEvent) ScriptEventName() string      { return "onSay" }

func (e *sayEvent) LoadFunction(name string) error {
	fn, ok := e.natives[name]
	if !ok {
		return ErrUnknownFunction
	}
	if err := e.BindFunction(name); err != nil {
		return err
	}
	e.native = fn
	return nil
}

const basePath = "data/talkactions"

func scriptPath(name string) string {
	return filepath.Join(basePath, "scripts", name)
}

func testFiles() scripttest.Files {
	return scripttest.Files{
		LibraryPath(basePath, "talkactions"): scripttest.Defines("helper"),
		scriptPath("good.lua"):               scripttest.Defines("onSay"),
		scriptPath("other.lua"):              scripttest.Defines("onThink"),
		scriptPath("broken.lua"):             scripttest.Broken("unexpected symbol near 'end'"),
	}
}

func testContext(buf *bytes.Buffer) context.Context {
	logger, _ := logging.New(logging.Config{Level: "debug"}, buf)
	return logging.With(context.Background(), logger)
}

func TestCheckScript(t *testing.T) {
	files := testFiles()
	prod := scripttest.New("TalkAction Interface", files)
	test := scripttest.New(script.TestInterfaceName, files)

	tests := []struct {
		name     string
		script   string
		wantErr  error
		wantKind Kind
	}{
		{"valid", "scripts/good.lua", nil, KindNone},
		{"missing entry point", "scripts/other.lua", ErrEntryPointMissing, KindSemantic},
		{"broken", "scripts/broken.lua", ErrScriptLoad, KindResource},
		{"missing file", "scripts/none.lua", ErrScriptLoad, KindResource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			ev := newSayEvent(prod)

			err := CheckScript(testContext(&buf), ev, test, basePath, "talkactions", tt.script)
			if !errors.Is(err, tt.wantErr) && !(err == nil && tt.wantErr == nil) {
				t.Fatalf("CheckScript() error = %v, want %v", err, tt.wantErr)
			}
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf() = %v, want %v", got, tt.wantKind)
			}

			// Validation never touches the event or the production interface.
			if ev.Scripted() || ev.ScriptID() != script.NoEvent {
				t.Errorf("event changed: scripted=%v id=%d", ev.Scripted(), ev.ScriptID())
			}
			if len(prod.Loaded) != 0 {
				t.Errorf("production interface loaded %v", prod.Loaded)
			}
		})
	}
}

func TestCheckScriptResetsTestInterface(t *testing.T) {
	files := testFiles()
	files[scriptPath("second.lua")] = scripttest.Defines("onLogin")
	test := scripttest.New(script.TestInterfaceName, files)
	ctx := context.Background()

	// Leave an unconsumed entry point behind in the test interface.
	files[scriptPath("leak.lua")] = scripttest.Defines("onSay", "onLogout")
	if err := CheckScript(ctx, newSayEvent(nil), test, basePath, "talkactions", "scripts/leak.lua"); err != nil {
		t.Fatalf("CheckScript(leak) error = %v", err)
	}
	if !test.Defined("onLogout") {
		t.Fatal("setup: onLogout should remain defined")
	}

	if err := CheckScript(ctx, newSayEvent(nil), test, basePath, "talkactions", "scripts/second.lua"); !errors.Is(err, ErrEntryPointMissing) {
		t.Errorf("CheckScript(second) error = %v, want ErrEntryPointMissing", err)
	}
	if test.Defined("onLogout") {
		t.Error("previous validation state survived")
	}
	if test.Resets != 2 {
		t.Errorf("Resets = %d, want 2", test.Resets)
	}
}

func TestCheckScriptMissingLibraryIsWarning(t *testing.T) {
	files := testFiles()
	delete(files, LibraryPath(basePath, "talkactions"))
	test := scripttest.New(script.TestInterfaceName, files)

	var buf bytes.Buffer
	err := CheckScript(testContext(&buf), newSayEvent(nil), test, basePath, "talkactions", "scripts/good.lua")
	if err != nil {
		t.Fatalf("CheckScript() error = %v", err)
	}
	if !strings.Contains(buf.String(), "can not load library") || !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("log = %q, want library warning", buf.String())
	}
}

func TestCheckScriptAlreadyBound(t *testing.T) {
	files := testFiles()
	prod := scripttest.New("TalkAction Interface", files)
	test := scripttest.New(script.TestInterfaceName, files)
	ctx := context.Background()

	ev := newSayEvent(prod)
	if err := LoadScript(ctx, ev, scriptPath("good.lua")); err != nil {
		t.Fatalf("LoadScript() error = %v", err)
	}

	var buf bytes.Buffer
	err := CheckScript(testContext(&buf), ev, test, basePath, "talkactions", "scripts/good.lua")
	if !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("CheckScript() error = %v, want ErrAlreadyBound", err)
	}
	if KindOf(err) != KindUsage {
		t.Errorf("KindOf() = %v, want usage", KindOf(err))
	}
	if !strings.Contains(buf.String(), "severity=failure") {
		t.Errorf("log = %q, want failure severity", buf.String())
	}
}

func TestCheckScriptNilTestInterface(t *testing.T) {
	err := CheckScript(context.Background(), newSayEvent(nil), nil, basePath, "talkactions", "scripts/good.lua")
	if !errors.Is(err, ErrNoInterface) {
		t.Errorf("CheckScript() error = %v, want ErrNoInterface", err)
	}
}

func TestLoadScript(t *testing.T) {
	prod := scripttest.New("TalkAction Interface", testFiles())
	ev := newSayEvent(prod)

	if err := LoadScript(context.Background(), ev, scriptPath("good.lua")); err != nil {
		t.Fatalf("LoadScript() error = %v", err)
	}
	if !ev.Scripted() {
		t.Error("Scripted() = false")
	}
	if ev.ScriptID() == script.NoEvent {
		t.Error("ScriptID() = 0")
	}
	if ev.State() != StateScript {
		t.Errorf("State() = %v, want script", ev.State())
	}
	if ev.Interface() != prod {
		t.Error("Interface() is not the production interface")
	}
}

func TestLoadScriptOnlyOnce(t *testing.T) {
	files := testFiles()
	files[scriptPath("again.lua")] = scripttest.Defines("onSay")
	prod := scripttest.New("TalkAction Interface", files)
	ctx := context.Background()

	ev := newSayEvent(prod)
	if err := LoadScript(ctx, ev, scriptPath("good.lua")); err != nil {
		t.Fatalf("LoadScript() error = %v", err)
	}
	id := ev.ScriptID()

	if err := LoadScript(ctx, ev, scriptPath("again.lua")); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("second LoadScript() error = %v, want ErrAlreadyBound", err)
	}
	if ev.ScriptID() != id {
		t.Errorf("ScriptID() changed from %d to %d", id, ev.ScriptID())
	}
	if err := ev.LoadFunction("ping"); !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("LoadFunction() after LoadScript error = %v, want ErrAlreadyBound", err)
	}
}

func TestLoadScriptFailuresLeaveEventUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		iface   script.Interface
		path    string
		wantErr error
	}{
		{"nil interface", nil, scriptPath("good.lua"), ErrNoInterface},
		{"broken", scripttest.New("p", testFiles()), scriptPath("broken.lua"), ErrScriptLoad},
		{"missing entry point", scripttest.New("p", testFiles()), scriptPath("other.lua"), ErrEntryPointMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := newSayEvent(tt.iface)
			err := LoadScript(context.Background(), ev, tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("LoadScript() error = %v, want %v", err, tt.wantErr)
			}
			if ev.Scripted() || ev.ScriptID() != script.NoEvent || ev.State() != StateUnbound {
				t.Errorf("event changed: state=%v id=%d", ev.State(), ev.ScriptID())
			}
		})
	}
}

func TestLoadScriptAfterFunction(t *testing.T) {
	prod := scripttest.New("p", testFiles())
	ev := newSayEvent(prod)

	if err := ev.LoadFunction("ping"); err != nil {
		t.Fatalf("LoadFunction() error = %v", err)
	}
	if ev.State() != StateFunction || ev.Function() != "ping" {
		t.Errorf("State() = %v, Function() = %q", ev.State(), ev.Function())
	}
	if err := LoadScript(context.Background(), ev, scriptPath("good.lua")); !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("LoadScript() after LoadFunction error = %v, want ErrAlreadyBound", err)
	}
	if err := ev.LoadFunction("ping"); !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("second LoadFunction() error = %v, want ErrAlreadyBound", err)
	}
}

func TestCloneBound(t *testing.T) {
	prod := scripttest.New("p", testFiles())
	ev := newSayEvent(prod)
	if err := LoadScript(context.Background(), ev, scriptPath("good.lua")); err != nil {
		t.Fatalf("LoadScript() error = %v", err)
	}

	clone := &sayEvent{Base: ev.CloneBound()}
	if clone.ScriptID() != ev.ScriptID() || !clone.Scripted() || clone.Interface() != prod {
		t.Errorf("clone = {scripted=%v id=%d}, want aliasing id %d", clone.Scripted(), clone.ScriptID(), ev.ScriptID())
	}
	if len(prod.Loaded) != 1 {
		t.Errorf("clone recompiled script: loaded %v", prod.Loaded)
	}

	got, err := clone.CallScript("alice")
	if err != nil || !Truthy(got) {
		t.Errorf("clone.CallScript() = %v, %v", got, err)
	}
	if err := LoadScript(context.Background(), clone, scriptPath("good.lua")); !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("LoadScript(clone) error = %v, want ErrAlreadyBound", err)
	}
}

func TestCallScriptNotScripted(t *testing.T) {
	ev := newSayEvent(nil)
	if _, err := ev.CallScript(); !errors.Is(err, ErrNotScripted) {
		t.Errorf("CallScript() error = %v, want ErrNotScripted", err)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		in   []any
		want bool
	}{
		{"empty", nil, false},
		{"nil", []any{nil}, false},
		{"false", []any{false}, false},
		{"true", []any{true}, true},
		{"zero", []any{int64(0)}, true},
		{"string", []any{""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truthy(tt.in); got != tt.want {
				t.Errorf("Truthy(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	for kind, want := range map[Kind]string{
		KindNone:     "none",
		KindUsage:    "usage",
		KindResource: "resource",
		KindSemantic: "semantic",
		Kind(42):     "unknown",
	} {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
