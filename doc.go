// Package woodchuck is a client library for the Woodchuck
// prefetch-coordination daemon. It mediates between an application and
// the daemon's DBus surface so the application never deals with raw
// method calls, wire types, or connection churn.
//
// # Entity hierarchy
//
// The daemon manages a tree of entities addressed by opaque UUIDs: a
// top-level registry, managers (one per application or logical
// sub-component), streams (periodically refreshed feeds owned by a
// manager), and objects (individual transferable units owned by a
// stream). Each entity also carries an application-chosen cookie.
//
//	bus, _ := busclient.SessionBus()
//	client, _ := busclient.NewClient(bus)
//	w := woodchuck.New(client)
//
//	m, _ := w.RegisterManager(woodchuck.Properties{
//		"human_readable_name": "Podcasts",
//		"cookie":              "org.example.podcasts",
//	}, true)
//	s, _ := m.RegisterStream(woodchuck.Properties{
//		"human_readable_name": "Library",
//		"cookie":              "library",
//		"freshness":           uint32(3600),
//	}, true)
//
// # Proxy identity and property caching
//
// At most one live proxy exists per remote UUID; two independent
// lookups of the same entity return the same instance. Property reads
// are served from a per-property TTL cache; writes go through to the
// daemon and update the cache. Identity fields are cached forever,
// mutable fields for a short window.
//
// # Upcalls
//
// The daemon calls back into the application to request actions:
// update a stream, transfer an object, free disk space. Implement
// UpcallHandler (embedding NopUpcallHandler for the hooks you do not
// care about), create an UpcallServer, and subscribe per manager with
// FeedbackSubscribe. Upcalls from senders other than the tracked
// daemon are discarded.
//
// # Threading
//
// The shared connection is confined to a single goroutine, pinned by
// whichever goroutine first touches the layer. Calling from any other
// goroutine is a programming error and panics.
package woodchuck
