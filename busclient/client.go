package busclient

import (
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/godbus/dbus/v5"

	"github.com/ralic/gnu-woodchuck/errors"
	"github.com/ralic/gnu-woodchuck/metric"
)

// Client wraps a Bus with everything the entity layer needs: the
// affinity guard, the daemon's current unique name, and shared
// logging, clock and metrics plumbing.
type Client struct {
	bus     Bus
	logger  *slog.Logger
	clk     clock.Clock
	metrics *metric.Metrics
	guard   Guard

	// Current unique name owning org.woodchuck. Updated by the
	// NameOwnerChanged pump once WatchOwner has been called. Empty
	// means the daemon is not running.
	ownerMu  sync.RWMutex
	owner    string
	watching bool
}

// NewClient creates a client on top of bus.
func NewClient(bus Bus, opts ...Option) (*Client, error) {
	c := &Client{
		bus:    bus,
		logger: slog.Default().With("component", "busclient"),
		clk:    clock.New(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "Client", "NewClient", "apply option")
		}
	}
	return c, nil
}

// Bus returns the underlying bus connection.
func (c *Client) Bus() Bus { return c.bus }

// Clock returns the clock used for property TTL bookkeeping.
func (c *Client) Clock() clock.Clock { return c.clk }

// Logger returns the client's structured logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Metrics returns the metrics sink, possibly nil.
func (c *Client) Metrics() *metric.Metrics { return c.metrics }

// CheckAffinity asserts the caller runs on the pinned goroutine.
func (c *Client) CheckAffinity() { c.guard.Check() }

// IsAvailable reports whether the Woodchuck daemon currently owns its
// well-known name. It never returns an error: any failure to ask the
// bus is reported as unavailable. This is the one operation that is
// safe to call before anything else.
func (c *Client) IsAvailable() bool {
	c.guard.Check()

	var has bool
	call := c.bus.BusObject().Call(busDaemonInterface+".NameHasOwner", 0, ServiceName)
	if call.Err != nil {
		c.logger.Debug("NameHasOwner failed", "error", call.Err)
		return false
	}
	if err := call.Store(&has); err != nil {
		c.logger.Debug("NameHasOwner returned malformed reply", "error", err)
		return false
	}
	return has
}

// nameOwner resolves the daemon's current unique name.
func (c *Client) nameOwner() (string, error) {
	var owner string
	call := c.bus.BusObject().Call(busDaemonInterface+".GetNameOwner", 0, ServiceName)
	if call.Err != nil {
		return "", errors.FromDBus(call.Err)
	}
	if err := call.Store(&owner); err != nil {
		return "", err
	}
	return owner, nil
}

// WatchOwner starts tracking the daemon's unique name: one synchronous
// lookup, then updates via NameOwnerChanged. Returns ErrUnavailable if
// the daemon has no current owner. Safe to call more than once; the
// pump is only started on the first call.
func (c *Client) WatchOwner() error {
	c.guard.Check()

	c.ownerMu.Lock()
	alreadyWatching := c.watching
	c.watching = true
	c.ownerMu.Unlock()

	if !alreadyWatching {
		if err := c.bus.AddMatchSignal(
			dbus.WithMatchSender(busDaemonName),
			dbus.WithMatchInterface(busDaemonInterface),
			dbus.WithMatchMember("NameOwnerChanged"),
			dbus.WithMatchArg(0, ServiceName),
		); err != nil {
			return errors.Wrap(err, "Client", "WatchOwner", "add match rule")
		}

		ch := make(chan *dbus.Signal, 16)
		c.bus.Signal(ch)
		go c.ownerPump(ch)
	}

	owner, err := c.nameOwner()
	if err != nil {
		return err
	}
	c.setOwner(owner)
	return nil
}

// ownerPump applies NameOwnerChanged notifications. It runs on its own
// goroutine but only touches the owner field, never the connection.
func (c *Client) ownerPump(ch <-chan *dbus.Signal) {
	for sig := range ch {
		if sig.Name != busDaemonInterface+".NameOwnerChanged" || len(sig.Body) != 3 {
			continue
		}
		name, _ := sig.Body[0].(string)
		if name != ServiceName {
			continue
		}
		newOwner, _ := sig.Body[2].(string)
		c.logger.Debug("daemon owner changed", "owner", newOwner)
		c.setOwner(newOwner)
	}
}

func (c *Client) setOwner(owner string) {
	c.ownerMu.Lock()
	c.owner = owner
	c.ownerMu.Unlock()
}

// Owner returns the daemon's current unique name, or "" if the daemon
// is not running or WatchOwner has not been called.
func (c *Client) Owner() string {
	c.ownerMu.RLock()
	defer c.ownerMu.RUnlock()
	return c.owner
}

// IsDaemon reports whether sender is the genuine Woodchuck daemon. Used
// to discard spoofed upcalls from unrelated peers on the same bus.
func (c *Client) IsDaemon(sender string) bool {
	c.ownerMu.RLock()
	defer c.ownerMu.RUnlock()
	return c.owner != "" && sender == c.owner
}

// Export registers v's methods at path under the upcall interface.
func (c *Client) Export(v interface{}, path dbus.ObjectPath) error {
	c.guard.Check()
	return c.bus.Export(v, path, UpcallInterface)
}
