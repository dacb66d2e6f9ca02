// Package testutil provides an in-memory stand-in for the Woodchuck
// daemon and its message bus.
//
// FakeBus satisfies the busclient.Bus interface without a real DBus
// connection. It routes every method call to a FakeDaemon, which keeps
// manager/stream/object tables, enforces cookie uniqueness and
// only-if-empty unregistration, hands out feedback subscription
// handles, and counts calls and property reads for verification.
//
// The daemon can be stopped, restarted under a new unique name, and
// told to fail calls with injected faults, which is enough to exercise
// rebind and availability behavior end to end.
package testutil
