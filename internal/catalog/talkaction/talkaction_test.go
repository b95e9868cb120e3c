package talkaction

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/eventscript/internal/catalog"
	"github.com/dshills/eventscript/internal/event"
	"github.com/dshills/eventscript/internal/script"
	"github.com/dshills/eventscript/internal/script/scripttest"
	"github.com/dshills/eventscript/internal/xmldoc"
)

func parseNode(t *testing.T, xml string) *xmldoc.Node {
	t.Helper()
	doc, err := xmldoc.Parse(strings.NewReader(xml), "test.xml")
	if err != nil {
		t.Fatalf("Parse error = %v", err)
	}
	return doc.Root
}

func TestConfigure(t *testing.T) {
	tests := []struct {
		name      string
		xml       string
		wantWords []string
		wantSep   string
		wantErr   bool
	}{
		{"single", `<talkaction words="!online"/>`, []string{"!online"}, " ", false},
		{"several", `<talkaction words="/t; /town ;"/>`, []string{"/t", "/town"}, " ", false},
		{"separator", `<talkaction words="/a" separator=","/>`, []string{"/a"}, ",", false},
		{"empty separator", `<talkaction words="/a" separator=""/>`, []string{"/a"}, " ", false},
		{"missing words", `<talkaction script="x.lua"/>`, nil, "", true},
		{"blank words", `<talkaction words=" ; "/>`, nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := &TalkAction{}
			err := ta.Configure(parseNode(t, tt.xml))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Configure error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, event.ErrInvalidConfig) {
					t.Errorf("error = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if len(ta.Words()) != len(tt.wantWords) {
				t.Fatalf("Words() = %v, want %v", ta.Words(), tt.wantWords)
			}
			for i := range tt.wantWords {
				if ta.Words()[i] != tt.wantWords[i] {
					t.Errorf("Words()[%d] = %q, want %q", i, ta.Words()[i], tt.wantWords[i])
				}
			}
			if ta.Separator() != tt.wantSep {
				t.Errorf("Separator() = %q, want %q", ta.Separator(), tt.wantSep)
			}
		})
	}
}

type said struct {
	speaker, words, param string
}

type fixture struct {
	catalog *Catalog
	loader  *catalog.Loader
	calls   []said
}

func newFixture(t *testing.T, document string) *fixture {
	t.Helper()

	dataDir := t.TempDir()
	base := filepath.Join(dataDir, Name)
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, Name+".xml"), []byte(document), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &fixture{}
	onSay := func(args []any) ([]any, error) {
		s := said{}
		s.speaker, _ = args[0].(string)
		s.words, _ = args[1].(string)
		s.param, _ = args[2].(string)
		f.calls = append(f.calls, s)
		return []any{true}, nil
	}
	files := scripttest.Files{
		filepath.Join(base, "scripts", "online.lua"): {Funcs: map[string]script.HostFunc{EntryPoint: onSay}},
		filepath.Join(base, "scripts", "town.lua"):   {Funcs: map[string]script.HostFunc{EntryPoint: onSay}},
		filepath.Join(base, "scripts", "nosay.lua"):  scripttest.Defines("onLogin"),
	}

	env, err := script.NewEnvironment(scripttest.Factory(files, nil))
	if err != nil {
		t.Fatal(err)
	}

	funcs := Funcs{
		"ping": func(_ context.Context, speaker, words, param string) bool {
			f.calls = append(f.calls, said{speaker, words, "native:" + param})
			return param != "decline"
		},
	}
	f.catalog = New(scripttest.New("TalkAction Interface", files), funcs)
	f.loader, err = catalog.NewLoader(f.catalog, env, catalog.WithDataDir(dataDir))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.loader.Load(context.Background()); err != nil {
		t.Fatalf("Load error = %v", err)
	}
	return f
}

const document = `<talkactions>
	<talkaction words="!online" script="online.lua" />
	<talkaction words="/t;/town" script="town.lua" />
	<talkaction words="!ping" separator="," function="ping" />
	<talkaction words="!bad" script="nosay.lua" />
	<talkaction words="!unknown" function="nothing" />
</talkactions>`

func TestLoadRegistersEveryWord(t *testing.T) {
	f := newFixture(t, document)

	if got := f.catalog.Len(); got != 4 {
		t.Errorf("Len() = %d, want 4", got)
	}
	for _, w := range []string{"!online", "/t", "/town", "!PING"} {
		if _, ok := f.catalog.Lookup(w); !ok {
			t.Errorf("Lookup(%q) not found", w)
		}
	}
	for _, w := range []string{"!bad", "!unknown"} {
		if _, ok := f.catalog.Lookup(w); ok {
			t.Errorf("Lookup(%q) found a discarded action", w)
		}
	}

	short, _ := f.catalog.Lookup("/t")
	long, _ := f.catalog.Lookup("/town")
	if short == long {
		t.Error("extra word shares the handler object")
	}
	if short.ScriptID() != long.ScriptID() || short.ScriptID() == script.NoEvent {
		t.Errorf("script ids = %d and %d, want the same bound id", short.ScriptID(), long.ScriptID())
	}
}

func TestSay(t *testing.T) {
	f := newFixture(t, document)
	ctx := context.Background()

	tests := []struct {
		text        string
		wantHandled bool
		want        *said
	}{
		{"!online", true, &said{"alice", "!online", ""}},
		{"  !ONLINE  ", true, &said{"alice", "!ONLINE", ""}},
		{"/town thais", true, &said{"alice", "/town", "thais"}},
		{"/t  venore ", true, &said{"alice", "/t", "venore"}},
		{"!ping,hello", true, &said{"alice", "!ping", "native:hello"}},
		{"!ping,decline", false, &said{"alice", "!ping", "native:decline"}},
		{"!ping hello", false, nil},
		{"/tx", false, nil},
		{"hello there", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			f.calls = nil
			handled, err := f.catalog.Say(ctx, "alice", tt.text)
			if err != nil {
				t.Fatalf("Say error = %v", err)
			}
			if handled != tt.wantHandled {
				t.Errorf("Say(%q) = %v, want %v", tt.text, handled, tt.wantHandled)
			}
			if tt.want == nil {
				if len(f.calls) != 0 {
					t.Errorf("unexpected call %+v", f.calls)
				}
				return
			}
			if len(f.calls) != 1 || f.calls[0] != *tt.want {
				t.Errorf("calls = %+v, want %+v", f.calls, *tt.want)
			}
		})
	}
}

func TestRegisterLaterWins(t *testing.T) {
	f := newFixture(t, `<talkactions>
	<talkaction words="!online" function="ping" />
	<talkaction words="!online" script="online.lua" />
</talkactions>`)

	ta, ok := f.catalog.Lookup("!online")
	if !ok {
		t.Fatal("Lookup not found")
	}
	if !ta.Scripted() {
		t.Error("later scripted declaration did not replace the native one")
	}
	if f.catalog.Len() != 1 {
		t.Errorf("Len() = %d, want 1", f.catalog.Len())
	}
}

func TestMatchMultibyteWords(t *testing.T) {
	c := New(scripttest.New("p", nil), nil)
	ta := c.NewEvent(Tag).(*TalkAction)
	ta.words = []string{"!İzmir", "!Öl"}
	ta.separator = DefaultSeparator
	if err := c.Register(context.Background(), ta, nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		text      string
		wantOK    bool
		wantWords string
		wantParam string
	}{
		{"!İzmir ankara", true, "!İzmir", "ankara"},
		{"!İzmir", true, "!İzmir", ""},
		{"!öl bier", true, "!öl", "bier"},
		{"!ÖL", true, "!ÖL", ""},
		{"!İzmirx", false, "", ""},
		{"!İz", false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, words, param, ok := c.Match(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got == nil {
				t.Fatal("Match returned a nil action")
			}
			if words != tt.wantWords || param != tt.wantParam {
				t.Errorf("Match(%q) = %q, %q, want %q, %q", tt.text, words, param, tt.wantWords, tt.wantParam)
			}
		})
	}

	if w := c.Words(); len(w) != 2 || w[0] != "!İzmir" {
		t.Errorf("Words() = %q, want declared words longest first", w)
	}
}

func TestClear(t *testing.T) {
	iface := scripttest.New("p", nil)
	c := New(iface, nil)
	ta := c.NewEvent(Tag).(*TalkAction)
	ta.words = []string{"!x"}
	if err := c.Register(context.Background(), ta, nil); err != nil {
		t.Fatal(err)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear error = %v", err)
	}
	if c.Len() != 0 || iface.Resets != 1 {
		t.Errorf("Len() = %d, Resets = %d, want 0 and 1", c.Len(), iface.Resets)
	}
}

func TestNewEventUnknownTag(t *testing.T) {
	c := New(nil, nil)
	if ev := c.NewEvent("globalevent"); ev != nil {
		t.Errorf("NewEvent(globalevent) = %T, want nil", ev)
	}
}

func TestLoadFunctionUnknown(t *testing.T) {
	c := New(nil, Funcs{})
	ev := c.NewEvent(Tag)
	for _, name := range []string{"", "missing"} {
		if err := ev.LoadFunction(name); !errors.Is(err, event.ErrUnknownFunction) {
			t.Errorf("LoadFunction(%q) error = %v, want ErrUnknownFunction", name, err)
		}
	}
}
