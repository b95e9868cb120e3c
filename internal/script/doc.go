// Package script defines the contract between the event catalogs and the
// scripting engines that compile and run event scripts.
//
// An Interface is one isolated execution context: scripts loaded into it
// share globals, and the handles returned by GetEvent are only meaningful
// within it. Interfaces are not goroutine-safe; callers serialize access
// (see the runner package).
//
// # Environment
//
// The Environment owns the single Test Interface used for dry-run
// validation and creates production interfaces for catalogs:
//
//	env, err := script.NewEnvironment(gopherlua.Factory())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close()
//
//	iface, err := env.NewInterface("TalkAction Interface")
//
// The Test Interface is reset by every validation; it never holds state
// that production code may rely on.
package script
