package gopherlua

import (
	lua "github.com/yuin/gopher-lua"
)

// unsafeGlobals are removed after the libraries are opened.
var unsafeGlobals = []string{
	"dofile",     // Load and execute file
	"loadfile",   // Load file as function
	"load",       // Load string as function
	"loadstring", // Deprecated alias of load
	"require",    // No package library; scripts share the catalog lib instead
	"module",
}

// safeOSFuncs are the os functions kept in the sandbox.
var safeOSFuncs = map[string]bool{
	"time":     true,
	"clock":    true,
	"date":     true,
	"difftime": true,
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	lua.OpenCoroutine(L)

	// Intentionally not opened: io, debug, package, channel.
	openSafeOS(L)

	for _, name := range unsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}
}

// openSafeOS opens the os library and strips everything but time functions.
func openSafeOS(L *lua.LState) {
	lua.OpenOs(L)

	osMod, ok := L.GetGlobal(lua.OsLibName).(*lua.LTable)
	if !ok {
		return
	}

	var remove []string
	osMod.ForEach(func(k, _ lua.LValue) {
		if ks, ok := k.(lua.LString); ok && !safeOSFuncs[string(ks)] {
			remove = append(remove, string(ks))
		}
	})
	for _, name := range remove {
		osMod.RawSetString(name, lua.LNil)
	}
}
