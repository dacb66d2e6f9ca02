// Package busclient manages the DBus connection to the Woodchuck
// daemon: name-owner tracking, the resilient per-object proxy that
// survives daemon restarts, and the goroutine-affinity guard protecting
// the shared connection.
package busclient

import (
	"github.com/godbus/dbus/v5"
)

// Well-known addressing for the Woodchuck daemon.
const (
	// ServiceName is the well-known bus name owned by the daemon.
	ServiceName = "org.woodchuck"

	// RootPath is the daemon's top-level object.
	RootPath = dbus.ObjectPath("/org/woodchuck")

	// UpcallInterface is the interface the application exports to
	// receive upcalls.
	UpcallInterface = "org.woodchuck.upcall"
)

const (
	busDaemonName      = "org.freedesktop.DBus"
	busDaemonInterface = "org.freedesktop.DBus"
)

// Bus is the surface of a DBus connection the client depends on. It is
// satisfied by *dbus.Conn; tests substitute an in-memory fake.
type Bus interface {
	// Object returns a proxy handle for the object at path on dest.
	Object(dest string, path dbus.ObjectPath) dbus.BusObject

	// BusObject returns the proxy for the message bus daemon itself.
	BusObject() dbus.BusObject

	// Export makes v's methods callable at path under the given
	// interface name.
	Export(v interface{}, path dbus.ObjectPath, iface string) error

	// Signal registers ch to receive matched signals.
	Signal(ch chan<- *dbus.Signal)

	// AddMatchSignal adds a bus-side signal match rule.
	AddMatchSignal(options ...dbus.MatchOption) error
}

// SessionBus connects to the session message bus. The returned Bus is a
// shared *dbus.Conn; callers own its lifetime.
func SessionBus() (Bus, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	return conn, nil
}
