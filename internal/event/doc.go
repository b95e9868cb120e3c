// Package event provides the lifecycle shared by every catalog entry:
// configuration, dry-run validation of its script, and one-time binding
// to a compiled entry point or to a native Go function.
//
// Concrete events embed Base and implement Event:
//
//	type TalkAction struct {
//	    event.Base
//	    words string
//	}
//
//	func (t *TalkAction) ScriptEventName() string { return "onSay" }
//
// A scripted event is validated against the shared Test Interface with
// CheckScript before LoadScript binds it in its production interface:
//
//	if err := event.CheckScript(ctx, ev, env.TestInterface(), basePath, "talkactions", "scripts/hello.lua"); err != nil {
//	    return err
//	}
//	if err := event.LoadScript(ctx, ev, filepath.Join(basePath, "scripts/hello.lua")); err != nil {
//	    return err
//	}
//
// Binding is irreversible: once an event has a script id or a native
// function, every further bind attempt fails with ErrAlreadyBound.
//
// # CallBack
//
// CallBack resolves a named function inside an interface that somebody
// else already loaded, without owning a script file.
package event
