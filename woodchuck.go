package woodchuck

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/ralic/gnu-woodchuck/busclient"
	"github.com/ralic/gnu-woodchuck/errors"
)

// Entity kinds as they appear in object paths and interfaces.
const (
	kindManager = "manager"
	kindStream  = "stream"
	kindObject  = "object"
)

// Woodchuck is the handle for the daemon's top-level object. It owns
// the proxy identity registry shared by every entity reached through
// it.
type Woodchuck struct {
	c      *busclient.Client
	root   *busclient.RemoteObject
	reg    *Registry
	logger *slog.Logger
}

// New creates a Woodchuck handle on top of an established client. It
// performs no bus traffic; the first remote call happens on the first
// operation.
func New(c *busclient.Client) *Woodchuck {
	return &Woodchuck{
		c:      c,
		root:   busclient.RootObject(c),
		reg:    NewRegistry(),
		logger: c.Logger().With("component", "woodchuck"),
	}
}

// IsAvailable reports whether the daemon is reachable. It never
// returns an error and is safe to call before any other operation.
func (w *Woodchuck) IsAvailable() bool {
	return w.c.IsAvailable()
}

// RegisterManager registers a new top-level manager and returns its
// proxy. With onlyIfCookieUnique, registration fails with
// ErrObjectExists if a top-level manager with the same cookie exists.
func (w *Woodchuck) RegisterManager(props Properties, onlyIfCookieUnique bool) (*Manager, error) {
	if _, ok := props["parent_UUID"]; ok {
		return nil, fmt.Errorf("%w: parent_UUID is set by the daemon", errors.ErrInvalidArgs)
	}
	dict, err := wireRegistrationDict(managerPropertyTable, props)
	if err != nil {
		return nil, err
	}

	call, err := w.root.Call("ManagerRegister", dict, onlyIfCookieUnique)
	if err != nil {
		return nil, err
	}
	var uuid string
	if err := call.Store(&uuid); err != nil {
		return nil, errors.Wrap(err, "Woodchuck", "RegisterManager", "decode reply")
	}

	seed := clone(props)
	seed["UUID"] = uuid
	seed["parent_UUID"] = ""
	return w.adoptManager(uuid, seed)
}

// ListManagers lists known managers. With recursive, all managers are
// returned; otherwise only top-level ones.
func (w *Woodchuck) ListManagers(recursive bool) ([]*Manager, error) {
	call, err := w.root.Call("ListManagers", recursive)
	if err != nil {
		return nil, err
	}
	return w.adoptManagerList(call, true)
}

// LookupManagerByCookie returns the managers carrying cookie. With
// recursive, any manager is considered; otherwise only top-level ones.
// An empty result is ErrNoSuchObject. Multiple results are possible
// when the cookie-uniqueness constraint was not requested at
// registration.
func (w *Woodchuck) LookupManagerByCookie(cookie string, recursive bool) ([]*Manager, error) {
	call, err := w.root.Call("LookupManagerByCookie", cookie, recursive)
	if err != nil {
		return nil, err
	}
	managers, err := w.adoptManagerLookup(call, cookie)
	if err != nil {
		return nil, err
	}
	if len(managers) == 0 {
		return nil, fmt.Errorf("%w: no manager with cookie %q", errors.ErrNoSuchObject, cookie)
	}
	return managers, nil
}

// ManagerByCookie returns exactly one manager carrying cookie. More
// than one match is ErrInternal: the caller assumed a uniqueness
// constraint that does not hold.
func (w *Woodchuck) ManagerByCookie(cookie string, recursive bool) (*Manager, error) {
	managers, err := w.LookupManagerByCookie(cookie, recursive)
	if err != nil {
		return nil, err
	}
	if len(managers) > 1 {
		return nil, fmt.Errorf("%w: %d managers with cookie %q", errors.ErrInternal, len(managers), cookie)
	}
	return managers[0], nil
}

// adoptManager returns the registered proxy for uuid, creating it with
// seed if none exists. An existing proxy's cache stays authoritative;
// the seed is ignored.
func (w *Woodchuck) adoptManager(uuid string, seed Properties) (*Manager, error) {
	return w.reg.manager(uuid, func() (*Manager, error) {
		return newManager(w, uuid, seed)
	})
}

func (w *Woodchuck) adoptStream(uuid string, seed Properties) (*Stream, error) {
	return w.reg.stream(uuid, func() (*Stream, error) {
		return newStream(w, uuid, seed)
	})
}

func (w *Woodchuck) adoptObject(uuid string, seed Properties) (*Object, error) {
	return w.reg.object(uuid, func() (*Object, error) {
		return newObject(w, uuid, seed)
	})
}

// adoptManagerList turns a ListManagers/LookupManagerByCookie reply
// into proxies. Rows are (UUID, cookie, name, parentUUID) for list
// calls and (UUID, name, parentUUID) for cookie lookups.
func (w *Woodchuck) adoptManagerList(call *dbus.Call, withCookie bool) ([]*Manager, error) {
	rows, err := storeRows(call)
	if err != nil {
		return nil, err
	}
	managers := make([]*Manager, 0, len(rows))
	for _, row := range rows {
		seed := Properties{"UUID": rowString(row, 0)}
		if withCookie {
			seed["cookie"] = rowString(row, 1)
			seed["human_readable_name"] = rowString(row, 2)
			seed["parent_UUID"] = rowString(row, 3)
		} else {
			seed["human_readable_name"] = rowString(row, 1)
			seed["parent_UUID"] = rowString(row, 2)
		}
		m, err := w.adoptManager(rowString(row, 0), seed)
		if err != nil {
			return nil, err
		}
		managers = append(managers, m)
	}
	return managers, nil
}

func (w *Woodchuck) adoptManagerLookup(call *dbus.Call, cookie string) ([]*Manager, error) {
	rows, err := storeRows(call)
	if err != nil {
		return nil, err
	}
	managers := make([]*Manager, 0, len(rows))
	for _, row := range rows {
		seed := Properties{
			"UUID":                rowString(row, 0),
			"cookie":              cookie,
			"human_readable_name": rowString(row, 1),
			"parent_UUID":         rowString(row, 2),
		}
		m, err := w.adoptManager(rowString(row, 0), seed)
		if err != nil {
			return nil, err
		}
		managers = append(managers, m)
	}
	return managers, nil
}

// storeRows decodes a reply whose single return value is an array of
// structs.
func storeRows(call *dbus.Call) ([][]interface{}, error) {
	var rows [][]interface{}
	if err := call.Store(&rows); err != nil {
		return nil, errors.Wrap(err, "Woodchuck", "storeRows", "decode reply")
	}
	return rows, nil
}

func rowString(row []interface{}, i int) string {
	if i < len(row) {
		if s, ok := row[i].(string); ok {
			return s
		}
	}
	return ""
}

func clone(props Properties) Properties {
	out := make(Properties, len(props)+1)
	for k, v := range props {
		out[k] = v
	}
	return out
}
