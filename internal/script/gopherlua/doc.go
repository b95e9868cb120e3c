// Package gopherlua implements script.Interface on top of gopher-lua.
//
// Each Interface owns one sandboxed LState. Loaded files share its
// globals; GetEvent moves a global function into a private handle table
// so later scripts cannot shadow or reuse it:
//
//	iface, err := gopherlua.New("TalkAction Interface")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer iface.Close()
//
//	if err := iface.LoadFile("data/talkactions/scripts/hello.lua"); err != nil {
//	    log.Fatal(iface.LastError())
//	}
//	id, err := iface.GetEvent("onSay")
//
// # Sandbox
//
// Only the base, table, string, math and coroutine libraries are opened,
// plus the time functions of os. dofile, loadfile, load, loadstring,
// require and module are removed.
//
// # Bridge
//
// Values crossing the boundary are converted by the Bridge: Lua numbers
// become int64 when integral and float64 otherwise, tables become []any
// when they are sequences and map[string]any otherwise.
package gopherlua
