// Package talkaction implements the talkactions catalog: scripts bound to
// words a speaker says.
//
//	<talkactions>
//	    <talkaction words="!online" script="online.lua" />
//	    <talkaction words="/t;/town" separator=" " function="teleportTown" />
//	</talkactions>
//
// Every word of a declaration maps to the same compiled onSay routine.
// When two declarations use the same word, the later one wins.
package talkaction

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dshills/eventscript/internal/event"
	"github.com/dshills/eventscript/internal/logging"
	"github.com/dshills/eventscript/internal/script"
	"github.com/dshills/eventscript/internal/xmldoc"
)

// Name is the catalog name.
const Name = "talkactions"

// Tag is the element declaring a talkaction.
const Tag = "talkaction"

// EntryPoint is the function a talkaction script must define.
const EntryPoint = "onSay"

// DefaultSeparator separates the words from the parameter.
const DefaultSeparator = " "

// Func is a native talkaction. It reports whether the words were handled.
type Func func(ctx context.Context, speaker, words, param string) bool

// Funcs maps native function names to implementations.
type Funcs map[string]Func

// TalkAction is one registered word.
type TalkAction struct {
	event.Base

	words     []string
	separator string
	funcs     Funcs
	native    Func
}

// Configure reads the words and separator attributes.
func (t *TalkAction) Configure(node *xmldoc.Node) error {
	attr, ok := node.Attr("words")
	if !ok {
		return fmt.Errorf("%w: missing words", event.ErrInvalidConfig)
	}

	t.words = t.words[:0]
	for _, w := range strings.Split(attr, ";") {
		if w = strings.TrimSpace(w); w != "" {
			t.words = append(t.words, w)
		}
	}
	if len(t.words) == 0 {
		return fmt.Errorf("%w: empty words", event.ErrInvalidConfig)
	}

	t.separator = node.AttrOr("separator", DefaultSeparator)
	if t.separator == "" {
		t.separator = DefaultSeparator
	}
	return nil
}

// ScriptEventName implements event.Event.
func (t *TalkAction) ScriptEventName() string {
	return EntryPoint
}

// LoadFunction binds a native function.
func (t *TalkAction) LoadFunction(name string) error {
	fn, ok := t.funcs[name]
	if !ok || name == "" {
		return fmt.Errorf("%w: %q", event.ErrUnknownFunction, name)
	}
	if err := t.BindFunction(name); err != nil {
		return err
	}
	t.native = fn
	return nil
}

// Words returns the declared words.
func (t *TalkAction) Words() []string {
	return t.words
}

// Separator returns the separator between words and parameter.
func (t *TalkAction) Separator() string {
	return t.separator
}

// Execute runs the action.
func (t *TalkAction) Execute(ctx context.Context, speaker, words, param string) (bool, error) {
	if t.Scripted() {
		res, err := t.CallScript(speaker, words, param)
		if err != nil {
			return false, err
		}
		return event.Truthy(res), nil
	}
	if t.native != nil {
		return t.native(ctx, speaker, words, param), nil
	}
	return false, event.ErrNotScripted
}

// cloneFor returns a handler for word sharing t's binding.
func (t *TalkAction) cloneFor(word string) *TalkAction {
	return &TalkAction{
		Base:      t.CloneBound(),
		words:     []string{word},
		separator: t.separator,
		funcs:     t.funcs,
		native:    t.native,
	}
}

// Catalog is the talkactions registry, keyed by lower-cased word.
type Catalog struct {
	iface    script.Interface
	funcs    Funcs
	actions  map[string]*TalkAction
	declared map[string]string // key -> word as written in the document
	sorted   []string
}

// New creates an empty catalog binding scripts in iface.
func New(iface script.Interface, funcs Funcs) *Catalog {
	return &Catalog{
		iface:   iface,
		funcs:    funcs,
		actions:  make(map[string]*TalkAction),
		declared: make(map[string]string),
	}
}

// Name implements catalog.Catalog.
func (c *Catalog) Name() string {
	return Name
}

// Interface implements catalog.Catalog.
func (c *Catalog) Interface() script.Interface {
	return c.iface
}

// NewEvent implements catalog.Catalog.
func (c *Catalog) NewEvent(tag string) event.Event {
	if tag != Tag {
		return nil
	}
	return &TalkAction{Base: event.NewBase(c.iface), funcs: c.funcs}
}

// Register adds an action under each of its words. Extra words get clones
// of the bound action. An existing action for a word is replaced.
func (c *Catalog) Register(ctx context.Context, ev event.Event, _ *xmldoc.Node) error {
	ta, ok := ev.(*TalkAction)
	if !ok {
		return fmt.Errorf("talkactions: unexpected event type %T", ev)
	}

	for i, word := range ta.words {
		h := ta
		if i > 0 {
			h = ta.cloneFor(word)
		}
		key := strings.ToLower(word)
		if _, exists := c.actions[key]; exists {
			logging.From(ctx).Debug("talkaction replaced", "words", word)
		}
		c.actions[key] = h
		c.declared[key] = word
	}
	c.sorted = nil
	return nil
}

// Clear removes every action and resets the interface.
func (c *Catalog) Clear() error {
	c.actions = make(map[string]*TalkAction)
	c.declared = make(map[string]string)
	c.sorted = nil
	if c.iface == nil {
		return nil
	}
	return c.iface.Reset()
}

// Len returns the number of registered words.
func (c *Catalog) Len() int {
	return len(c.actions)
}

// Lookup returns the action for word, ignoring case.
func (c *Catalog) Lookup(word string) (*TalkAction, bool) {
	ta, ok := c.actions[strings.ToLower(word)]
	return ta, ok
}

// Words returns the registered words as declared, longest first.
func (c *Catalog) Words() []string {
	if c.sorted == nil {
		c.sorted = make([]string, 0, len(c.declared))
		for _, w := range c.declared {
			c.sorted = append(c.sorted, w)
		}
		sort.Slice(c.sorted, func(i, j int) bool {
			ni, nj := utf8.RuneCountInString(c.sorted[i]), utf8.RuneCountInString(c.sorted[j])
			if ni != nj {
				return ni > nj
			}
			return c.sorted[i] < c.sorted[j]
		})
	}
	return c.sorted
}

// foldPrefix reports whether text starts with word under simple case
// folding, and the byte length of the matching part of text.
func foldPrefix(text, word string) (int, bool) {
	n := 0
	for _, wr := range word {
		if n >= len(text) {
			return 0, false
		}
		tr, size := utf8.DecodeRuneInString(text[n:])
		if !foldEqual(tr, wr) {
			return 0, false
		}
		n += size
	}
	return n, true
}

func foldEqual(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}

// Match finds the action text starts with. The word must be followed by
// the end of text or by the action's separator; the rest is the parameter.
func (c *Catalog) Match(text string) (ta *TalkAction, words, param string, ok bool) {
	text = strings.TrimSpace(text)

	for _, w := range c.Words() {
		n, ok := foldPrefix(text, w)
		if !ok {
			continue
		}
		ta = c.actions[strings.ToLower(w)]
		rest := text[n:]
		if rest == "" {
			return ta, text, "", true
		}
		if strings.HasPrefix(rest, ta.separator) {
			return ta, text[:n], strings.TrimSpace(rest[len(ta.separator):]), true
		}
	}
	return nil, "", "", false
}

// Say executes the action matching text. It reports false when nothing
// matched or the action declined the words.
func (c *Catalog) Say(ctx context.Context, speaker, text string) (bool, error) {
	ta, words, param, ok := c.Match(text)
	if !ok {
		return false, nil
	}

	handled, err := ta.Execute(ctx, speaker, words, param)
	if err != nil {
		logging.Report(ctx, logging.SeverityError, "TalkAction", "say", "talkaction failed",
			"speaker", speaker, "words", words, "error", err)
		return false, err
	}
	return handled, nil
}
