package woodchuck

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/ralic/gnu-woodchuck/errors"
)

// Manager is the proxy for one manager in the daemon's entity tree. It
// owns child managers and streams, and is the unit of upcall
// subscription.
type Manager struct {
	entity
	feedback feedbackState
}

func newManager(w *Woodchuck, uuid string, seed Properties) (*Manager, error) {
	e, err := newEntity(w, kindManager, uuid, managerPropertyTable, seed)
	if err != nil {
		return nil, err
	}
	return &Manager{entity: e}, nil
}

// Unregister removes the manager from the daemon. With onlyIfEmpty the
// daemon refuses with ErrObjectExists if the manager still has child
// managers or streams; without it the removal cascades.
func (m *Manager) Unregister(onlyIfEmpty bool) error {
	call, err := m.obj.Call("Unregister", onlyIfEmpty)
	if err != nil {
		return err
	}
	var removed bool
	if err := call.Store(&removed); err != nil {
		return errors.Wrap(err, "Manager", "Unregister", "decode reply")
	}
	if removed {
		m.w.reg.removeManager(m.uuid)
	}
	return nil
}

// RegisterManager registers a child manager.
func (m *Manager) RegisterManager(props Properties, onlyIfCookieUnique bool) (*Manager, error) {
	dict, err := wireRegistrationDict(managerPropertyTable, props)
	if err != nil {
		return nil, err
	}
	call, err := m.obj.Call("ManagerRegister", dict, onlyIfCookieUnique)
	if err != nil {
		return nil, err
	}
	var uuid string
	if err := call.Store(&uuid); err != nil {
		return nil, errors.Wrap(err, "Manager", "RegisterManager", "decode reply")
	}

	seed := clone(props)
	seed["UUID"] = uuid
	seed["parent_UUID"] = m.uuid
	return m.w.adoptManager(uuid, seed)
}

// ListManagers lists descendant managers; immediate children only
// unless recursive.
func (m *Manager) ListManagers(recursive bool) ([]*Manager, error) {
	call, err := m.obj.Call("ListManagers", recursive)
	if err != nil {
		return nil, err
	}
	return m.w.adoptManagerList(call, true)
}

// LookupManagerByCookie returns descendant managers carrying cookie.
// An empty result is ErrNoSuchObject.
func (m *Manager) LookupManagerByCookie(cookie string, recursive bool) ([]*Manager, error) {
	call, err := m.obj.Call("LookupManagerByCookie", cookie, recursive)
	if err != nil {
		return nil, err
	}
	managers, err := m.w.adoptManagerLookup(call, cookie)
	if err != nil {
		return nil, err
	}
	if len(managers) == 0 {
		return nil, fmt.Errorf("%w: no manager with cookie %q", errors.ErrNoSuchObject, cookie)
	}
	return managers, nil
}

// RegisterStream registers a stream under this manager.
func (m *Manager) RegisterStream(props Properties, onlyIfCookieUnique bool) (*Stream, error) {
	dict, err := wireRegistrationDict(streamPropertyTable, props)
	if err != nil {
		return nil, err
	}
	call, err := m.obj.Call("StreamRegister", dict, onlyIfCookieUnique)
	if err != nil {
		return nil, err
	}
	var uuid string
	if err := call.Store(&uuid); err != nil {
		return nil, errors.Wrap(err, "Manager", "RegisterStream", "decode reply")
	}

	seed := clone(props)
	seed["UUID"] = uuid
	seed["parent_UUID"] = m.uuid
	return m.w.adoptStream(uuid, seed)
}

// ListStreams lists this manager's streams.
func (m *Manager) ListStreams() ([]*Stream, error) {
	call, err := m.obj.Call("ListStreams")
	if err != nil {
		return nil, err
	}
	rows, err := storeRows(call)
	if err != nil {
		return nil, err
	}
	streams := make([]*Stream, 0, len(rows))
	for _, row := range rows {
		s, err := m.w.adoptStream(rowString(row, 0), Properties{
			"UUID":                rowString(row, 0),
			"cookie":              rowString(row, 1),
			"human_readable_name": rowString(row, 2),
			"parent_UUID":         m.uuid,
		})
		if err != nil {
			return nil, err
		}
		streams = append(streams, s)
	}
	return streams, nil
}

// LookupStreamByCookie returns this manager's streams carrying cookie.
// An empty result is ErrNoSuchObject.
func (m *Manager) LookupStreamByCookie(cookie string) ([]*Stream, error) {
	call, err := m.obj.Call("LookupStreamByCookie", cookie)
	if err != nil {
		return nil, err
	}
	rows, err := storeRows(call)
	if err != nil {
		return nil, err
	}
	streams := make([]*Stream, 0, len(rows))
	for _, row := range rows {
		s, err := m.w.adoptStream(rowString(row, 0), Properties{
			"UUID":                rowString(row, 0),
			"cookie":              cookie,
			"human_readable_name": rowString(row, 1),
			"parent_UUID":         m.uuid,
		})
		if err != nil {
			return nil, err
		}
		streams = append(streams, s)
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("%w: no stream with cookie %q", errors.ErrNoSuchObject, cookie)
	}
	return streams, nil
}

// StreamByCookie returns exactly one stream carrying cookie. More than
// one match is ErrInternal.
func (m *Manager) StreamByCookie(cookie string) (*Stream, error) {
	streams, err := m.LookupStreamByCookie(cookie)
	if err != nil {
		return nil, err
	}
	if len(streams) > 1 {
		return nil, fmt.Errorf("%w: %d streams with cookie %q", errors.ErrInternal, len(streams), cookie)
	}
	return streams[0], nil
}

// FeedbackAck acknowledges an upcall for an object instance.
func (m *Manager) FeedbackAck(objectUUID string, instance uint32) error {
	_, err := m.obj.Call("FeedbackAck", objectUUID, instance)
	return err
}

// remoteSubscribe and remoteUnsubscribe are the raw subscription
// calls; ref-counting lives in subscription.go.
func (m *Manager) remoteSubscribe(descendantsToo bool) (string, error) {
	call, err := m.obj.Call("FeedbackSubscribe", descendantsToo)
	if err != nil {
		return "", err
	}
	var handle string
	if err := call.Store(&handle); err != nil {
		return "", errors.Wrap(err, "Manager", "FeedbackSubscribe", "decode reply")
	}
	return handle, nil
}

func (m *Manager) remoteUnsubscribe(handle string) error {
	_, err := m.obj.Call("FeedbackUnsubscribe", handle)
	return err
}

// Path returns the manager's remote object path.
func (m *Manager) Path() dbus.ObjectPath { return m.obj.Path() }
