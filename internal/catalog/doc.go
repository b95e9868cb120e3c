// Package catalog loads event catalogs from disk and keeps them current.
//
// A catalog is one XML document under data/<name>/<name>.xml whose root
// element is named after the catalog. Each child element declares one
// event. The Loader asks the Catalog for an event matching the element
// tag, configures it, binds it to a script entry point or a native
// function and hands it to the Catalog for registration:
//
//	c := talkaction.New(iface, nil)
//	l := catalog.NewLoader(c, env, catalog.WithDataDir("data"))
//	rep, err := l.Load(ctx)
//
// Node failures never abort a load; they are recorded in the Report and
// logged. Only an unreadable or malformed document fails Load.
//
// Loaders, catalogs and script interfaces are not goroutine-safe. The
// runner package serializes every operation on them.
package catalog
