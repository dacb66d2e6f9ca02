package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

const (
	serviceName  = "org.woodchuck"
	rootPath     = dbus.ObjectPath("/org/woodchuck")
	busDaemon    = "org.freedesktop.DBus"
	propsGet     = "org.freedesktop.DBus.Properties.Get"
	propsSet     = "org.freedesktop.DBus.Properties.Set"
	existsFault  = "org.woodchuck.ObjectExists"
	noSuchFault  = "org.freedesktop.DBus.Error.UnknownObject"
	unknownOwner = "org.freedesktop.DBus.Error.NameHasNoOwner"
	serviceGone  = "org.freedesktop.DBus.Error.ServiceUnknown"
)

// FakeEntity is one row in the daemon's tables. Props are keyed by
// wire property names (CamelCase).
type FakeEntity struct {
	Kind   string
	UUID   string
	Parent string
	Props  map[string]interface{}
}

func (e *FakeEntity) str(name string) string {
	s, _ := e.Props[name].(string)
	return s
}

// FakeDaemon is an in-memory Woodchuck daemon.
type FakeDaemon struct {
	mu sync.Mutex

	// Running controls reachability. When false every daemon call
	// fails with ServiceUnknown and the well-known name has no owner.
	Running bool

	// OwnerName is the daemon's unique bus name.
	OwnerName string

	// FailNext, when non-nil, is returned as the fault of the next
	// daemon call and then cleared.
	FailNext *dbus.Error

	// FailServiceUnknownOnce makes the next daemon call fail with
	// ServiceUnknown while leaving the daemon running, imitating a
	// call raced against a daemon restart.
	FailServiceUnknownOnce bool

	entities      map[string]*FakeEntity
	subscriptions map[string]fakeSubscription
	handleSeq     int

	// CallCounts tallies handled calls by bare method name.
	CallCounts map[string]int

	// LastArgs keeps the argument list of the most recent call per
	// bare method name.
	LastArgs map[string][]interface{}

	// propertyGets tallies Properties.Get by "<uuid>/<wire name>".
	propertyGets map[string]int

	// Acks records FeedbackAck invocations as "<object uuid>/<instance>".
	Acks []string
}

type fakeSubscription struct {
	managerUUID    string
	descendantsToo bool
}

// NewFakeDaemon returns a running daemon with no entities.
func NewFakeDaemon() *FakeDaemon {
	return &FakeDaemon{
		Running:       true,
		OwnerName:     ":1.42",
		entities:      make(map[string]*FakeEntity),
		subscriptions: make(map[string]fakeSubscription),
		CallCounts:    make(map[string]int),
		LastArgs:      make(map[string][]interface{}),
		propertyGets:  make(map[string]int),
	}
}

// Stop makes the daemon unreachable without losing its tables.
func (d *FakeDaemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Running = false
}

// Restart brings the daemon back under a new unique name.
func (d *FakeDaemon) Restart(owner string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Running = true
	d.OwnerName = owner
}

// Entity returns the table row for uuid, or nil.
func (d *FakeDaemon) Entity(uuid string) *FakeEntity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entities[uuid]
}

// PropertyGetCount reports how many Properties.Get calls the daemon
// served for the given entity and wire property name.
func (d *FakeDaemon) PropertyGetCount(uuid, wireName string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.propertyGets[uuid+"/"+wireName]
}

// SubscriptionCount reports the daemon-side subscriptions outstanding
// for a manager.
func (d *FakeDaemon) SubscriptionCount(managerUUID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, sub := range d.subscriptions {
		if sub.managerUUID == managerUUID {
			n++
		}
	}
	return n
}

// SubscriptionBreadth reports whether a subscription handle covers
// descendants. The second return is false for unknown handles.
func (d *FakeDaemon) SubscriptionBreadth(handle string) (bool, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sub, ok := d.subscriptions[handle]
	return sub.descendantsToo, ok
}

func fault(name, msg string) *dbus.Error {
	return &dbus.Error{Name: name, Body: []interface{}{msg}}
}

func reply(body ...interface{}) (*dbus.Call, *dbus.Error) {
	return &dbus.Call{Body: body}, nil
}

// handle serves one method call addressed to path. It returns either a
// reply or a fault, never both.
func (d *FakeDaemon) handle(path dbus.ObjectPath, method string, args []interface{}) (*dbus.Call, *dbus.Error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.Running || d.FailServiceUnknownOnce {
		d.FailServiceUnknownOnce = false
		return nil, fault(serviceGone, "The name org.woodchuck was not provided by any .service files")
	}
	if d.FailNext != nil {
		f := d.FailNext
		d.FailNext = nil
		return nil, f
	}

	short := method[strings.LastIndex(method, ".")+1:]
	d.CallCounts[short]++
	d.LastArgs[short] = args

	if method == propsGet || method == propsSet {
		return d.handleProperty(path, method, args)
	}

	if path == rootPath {
		return d.handleRoot(short, args)
	}
	kind, uuid, ok := splitEntityPath(path)
	if !ok {
		return nil, fault(noSuchFault, fmt.Sprintf("no object at %s", path))
	}
	ent := d.entities[uuid]
	if ent == nil || ent.Kind != kind {
		return nil, fault(noSuchFault, fmt.Sprintf("no %s %s", kind, uuid))
	}
	switch kind {
	case "manager":
		return d.handleManager(ent, short, args)
	case "stream":
		return d.handleStream(ent, short, args)
	default:
		return d.handleObject(ent, short, args)
	}
}

func splitEntityPath(path dbus.ObjectPath) (kind, uuid string, ok bool) {
	rest, found := strings.CutPrefix(string(path), string(rootPath)+"/")
	if !found {
		return "", "", false
	}
	kind, uuid, found = strings.Cut(rest, "/")
	return kind, uuid, found
}

func (d *FakeDaemon) handleRoot(method string, args []interface{}) (*dbus.Call, *dbus.Error) {
	switch method {
	case "ManagerRegister":
		return d.register("manager", "", args)
	case "ListManagers":
		recursive, _ := args[0].(bool)
		return reply(d.listManagers("", recursive))
	case "LookupManagerByCookie":
		cookie, _ := args[0].(string)
		recursive, _ := args[1].(bool)
		return reply(d.lookupManagers("", cookie, recursive))
	default:
		return nil, fault("org.freedesktop.DBus.Error.UnknownMethod", method)
	}
}

func (d *FakeDaemon) handleManager(m *FakeEntity, method string, args []interface{}) (*dbus.Call, *dbus.Error) {
	switch method {
	case "ManagerRegister":
		return d.register("manager", m.UUID, args)
	case "StreamRegister":
		return d.register("stream", m.UUID, args)
	case "ListManagers":
		recursive, _ := args[0].(bool)
		return reply(d.listManagers(m.UUID, recursive))
	case "LookupManagerByCookie":
		cookie, _ := args[0].(string)
		recursive, _ := args[1].(bool)
		return reply(d.lookupManagers(m.UUID, cookie, recursive))
	case "ListStreams":
		rows := [][]interface{}{}
		for _, e := range d.children("stream", m.UUID) {
			rows = append(rows, []interface{}{e.UUID, e.str("Cookie"), e.str("HumanReadableName")})
		}
		return reply(rows)
	case "LookupStreamByCookie":
		cookie, _ := args[0].(string)
		rows := [][]interface{}{}
		for _, e := range d.children("stream", m.UUID) {
			if e.str("Cookie") == cookie {
				rows = append(rows, []interface{}{e.UUID, e.str("HumanReadableName")})
			}
		}
		return reply(rows)
	case "Unregister":
		onlyIfEmpty, _ := args[0].(bool)
		if onlyIfEmpty && (len(d.children("manager", m.UUID)) > 0 || len(d.children("stream", m.UUID)) > 0) {
			return nil, fault(existsFault, "manager "+m.UUID+" is not empty")
		}
		d.removeTree(m.UUID)
		return reply(true)
	case "FeedbackSubscribe":
		descendants, _ := args[0].(bool)
		d.handleSeq++
		handle := fmt.Sprintf("sub-%d", d.handleSeq)
		d.subscriptions[handle] = fakeSubscription{managerUUID: m.UUID, descendantsToo: descendants}
		return reply(handle)
	case "FeedbackUnsubscribe":
		handle, _ := args[0].(string)
		if _, ok := d.subscriptions[handle]; !ok {
			return nil, fault("org.woodchuck.InvalidArgs", "unknown subscription "+handle)
		}
		delete(d.subscriptions, handle)
		return reply()
	case "FeedbackAck":
		objectUUID, _ := args[0].(string)
		instance, _ := args[1].(uint32)
		d.Acks = append(d.Acks, fmt.Sprintf("%s/%d", objectUUID, instance))
		return reply()
	default:
		return nil, fault("org.freedesktop.DBus.Error.UnknownMethod", method)
	}
}

func (d *FakeDaemon) handleStream(s *FakeEntity, method string, args []interface{}) (*dbus.Call, *dbus.Error) {
	switch method {
	case "ObjectRegister":
		return d.register("object", s.UUID, args)
	case "ListObjects":
		rows := [][]interface{}{}
		for _, e := range d.children("object", s.UUID) {
			rows = append(rows, []interface{}{e.UUID, e.str("Cookie"), e.str("HumanReadableName")})
		}
		return reply(rows)
	case "LookupObjectByCookie":
		cookie, _ := args[0].(string)
		rows := [][]interface{}{}
		for _, e := range d.children("object", s.UUID) {
			if e.str("Cookie") == cookie {
				rows = append(rows, []interface{}{e.UUID, e.str("HumanReadableName")})
			}
		}
		return reply(rows)
	case "Unregister":
		onlyIfEmpty, _ := args[0].(bool)
		if onlyIfEmpty && len(d.children("object", s.UUID)) > 0 {
			return nil, fault(existsFault, "stream "+s.UUID+" is not empty")
		}
		d.removeTree(s.UUID)
		return reply(true)
	case "UpdateStatus":
		return reply()
	default:
		return nil, fault("org.freedesktop.DBus.Error.UnknownMethod", method)
	}
}

func (d *FakeDaemon) handleObject(o *FakeEntity, method string, args []interface{}) (*dbus.Call, *dbus.Error) {
	switch method {
	case "Unregister":
		delete(d.entities, o.UUID)
		return reply(true)
	case "Transfer", "TransferStatus", "Used", "FilesDeleted":
		return reply()
	default:
		return nil, fault("org.freedesktop.DBus.Error.UnknownMethod", method)
	}
}

func (d *FakeDaemon) handleProperty(path dbus.ObjectPath, method string, args []interface{}) (*dbus.Call, *dbus.Error) {
	_, entUUID, ok := splitEntityPath(path)
	if !ok {
		return nil, fault(noSuchFault, fmt.Sprintf("no object at %s", path))
	}
	ent := d.entities[entUUID]
	if ent == nil {
		return nil, fault(noSuchFault, "no entity "+entUUID)
	}
	name, _ := args[1].(string)
	if method == propsGet {
		value, present := ent.Props[name]
		if !present {
			return nil, fault("org.freedesktop.DBus.Error.InvalidArgs", "no property "+name)
		}
		d.propertyGets[entUUID+"/"+name]++
		return reply(dbus.MakeVariant(value))
	}
	variant, okV := args[2].(dbus.Variant)
	if !okV {
		return nil, fault("org.freedesktop.DBus.Error.InvalidArgs", "value must be a variant")
	}
	ent.Props[name] = variant.Value()
	return reply()
}

// register handles the three *Register calls: args are the property
// dict and the only_if_cookie_unique flag.
func (d *FakeDaemon) register(kind, parent string, args []interface{}) (*dbus.Call, *dbus.Error) {
	dict, _ := args[0].(map[string]dbus.Variant)
	onlyIfUnique, _ := args[1].(bool)

	props := defaultProps(kind)
	for name, v := range dict {
		props[name] = v.Value()
	}
	cookie, _ := props["Cookie"].(string)
	if onlyIfUnique && cookie != "" {
		for _, e := range d.children(kind, parent) {
			if e.str("Cookie") == cookie {
				return nil, fault(existsFault,
					fmt.Sprintf("a %s with cookie %q already exists", kind, cookie))
			}
		}
	}

	id := uuid.NewString()
	props["UUID"] = id
	props["ParentUUID"] = parent
	ent := &FakeEntity{Kind: kind, UUID: id, Parent: parent, Props: props}
	d.entities[id] = ent
	return reply(id)
}

func (d *FakeDaemon) children(kind, parent string) []*FakeEntity {
	var out []*FakeEntity
	for _, e := range d.entities {
		if e.Kind == kind && e.Parent == parent {
			out = append(out, e)
		}
	}
	return out
}

func (d *FakeDaemon) listManagers(parent string, recursive bool) [][]interface{} {
	rows := [][]interface{}{}
	for _, e := range d.children("manager", parent) {
		rows = append(rows, []interface{}{e.UUID, e.str("Cookie"), e.str("HumanReadableName"), e.Parent})
		if recursive {
			rows = append(rows, d.listManagers(e.UUID, true)...)
		}
	}
	return rows
}

func (d *FakeDaemon) lookupManagers(parent, cookie string, recursive bool) [][]interface{} {
	rows := [][]interface{}{}
	for _, e := range d.children("manager", parent) {
		if e.str("Cookie") == cookie {
			rows = append(rows, []interface{}{e.UUID, e.str("HumanReadableName"), e.Parent})
		}
		if recursive {
			rows = append(rows, d.lookupManagers(e.UUID, cookie, true)...)
		}
	}
	return rows
}

// removeTree deletes an entity and everything below it.
func (d *FakeDaemon) removeTree(uuid string) {
	for _, e := range d.entities {
		if e.Parent == uuid {
			d.removeTree(e.UUID)
		}
	}
	delete(d.entities, uuid)
}

func defaultProps(kind string) map[string]interface{} {
	switch kind {
	case "manager":
		return map[string]interface{}{
			"HumanReadableName": "",
			"Cookie":            "",
			"DBusServiceName":   "",
			"DBusObject":        "",
			"Priority":          uint32(0),
			"Enabled":           true,
			"RegistrationTime":  uint64(0),
		}
	case "stream":
		return map[string]interface{}{
			"HumanReadableName":       "",
			"Cookie":                  "",
			"Priority":                uint32(0),
			"Freshness":               uint32(0),
			"ObjectsMostlyInline":     false,
			"RegistrationTime":        uint64(0),
			"LastUpdateTime":          uint64(0),
			"LastUpdateAttemptTime":   uint64(0),
			"LastUpdateAttemptStatus": uint32(0),
		}
	default:
		return map[string]interface{}{
			"Instance":                  uint32(0),
			"HumanReadableName":         "",
			"Cookie":                    "",
			"Versions":                  [][]interface{}{},
			"Filename":                  "",
			"Wakeup":                    true,
			"TriggerTarget":             uint64(0),
			"TriggerEarliest":           uint64(0),
			"TriggerLatest":             uint64(0),
			"TransferFrequency":         uint32(0),
			"DontTransfer":              false,
			"NeedUpdate":                true,
			"Priority":                  uint32(0),
			"DiscoveryTime":             uint64(0),
			"PublicationTime":           uint64(0),
			"RegistrationTime":          uint64(0),
			"LastTransferTime":          uint64(0),
			"LastTransferAttemptTime":   uint64(0),
			"LastTransferAttemptStatus": uint32(0),
		}
	}
}

// FakeBus routes bus traffic to a FakeDaemon. It satisfies the
// busclient Bus interface.
type FakeBus struct {
	Daemon *FakeDaemon

	mu       sync.Mutex
	signals  []chan<- *dbus.Signal
	exported map[dbus.ObjectPath]interface{}
}

// NewFakeBus wires a bus to daemon.
func NewFakeBus(daemon *FakeDaemon) *FakeBus {
	return &FakeBus{
		Daemon:   daemon,
		exported: make(map[dbus.ObjectPath]interface{}),
	}
}

// Object returns a proxy for the object at path.
func (b *FakeBus) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	return &fakeBusObject{bus: b, dest: dest, path: path}
}

// BusObject returns the proxy for the message bus daemon.
func (b *FakeBus) BusObject() dbus.BusObject {
	return &fakeBusObject{bus: b, dest: busDaemon, path: "/org/freedesktop/DBus"}
}

// Export records the exported value so tests can retrieve it.
func (b *FakeBus) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exported[path] = v
	return nil
}

// Exported returns the value exported at path, or nil.
func (b *FakeBus) Exported(path dbus.ObjectPath) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exported[path]
}

// Signal registers a signal channel.
func (b *FakeBus) Signal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = append(b.signals, ch)
}

// AddMatchSignal accepts any match rule.
func (b *FakeBus) AddMatchSignal(options ...dbus.MatchOption) error { return nil }

// EmitNameOwnerChanged delivers a NameOwnerChanged signal for the
// daemon's well-known name to every registered channel.
func (b *FakeBus) EmitNameOwnerChanged(oldOwner, newOwner string) {
	sig := &dbus.Signal{
		Sender: busDaemon,
		Path:   "/org/freedesktop/DBus",
		Name:   busDaemon + ".NameOwnerChanged",
		Body:   []interface{}{serviceName, oldOwner, newOwner},
	}
	b.mu.Lock()
	channels := append([]chan<- *dbus.Signal(nil), b.signals...)
	b.mu.Unlock()
	for _, ch := range channels {
		ch <- sig
	}
}

// fakeBusObject implements dbus.BusObject against the fake daemon.
type fakeBusObject struct {
	bus  *FakeBus
	dest string
	path dbus.ObjectPath
}

func (o *fakeBusObject) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	call := &dbus.Call{Destination: o.dest, Path: o.path, Method: method, Args: args}
	if o.dest == busDaemon {
		o.callBusDaemon(call, method, args)
		return call
	}
	rep, dErr := o.bus.Daemon.handle(o.path, method, args)
	if dErr != nil {
		call.Err = *dErr
		return call
	}
	call.Body = rep.Body
	return call
}

// callBusDaemon serves the two message-bus methods the client uses.
func (o *fakeBusObject) callBusDaemon(call *dbus.Call, method string, args []interface{}) {
	d := o.bus.Daemon
	d.mu.Lock()
	running, owner := d.Running, d.OwnerName
	d.mu.Unlock()

	switch method {
	case busDaemon + ".NameHasOwner":
		call.Body = []interface{}{running}
	case busDaemon + ".GetNameOwner":
		if !running {
			call.Err = *fault(unknownOwner, "name has no owner")
			return
		}
		call.Body = []interface{}{owner}
	default:
		call.Err = *fault("org.freedesktop.DBus.Error.UnknownMethod", method)
	}
}

func (o *fakeBusObject) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	return o.Call(method, flags, args...)
}

func (o *fakeBusObject) Go(method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	call := o.Call(method, flags, args...)
	if ch != nil {
		ch <- call
	}
	return call
}

func (o *fakeBusObject) GoWithContext(ctx context.Context, method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	return o.Go(method, flags, ch, args...)
}

func (o *fakeBusObject) AddMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (o *fakeBusObject) RemoveMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (o *fakeBusObject) GetProperty(p string) (dbus.Variant, error) {
	i := strings.LastIndex(p, ".")
	call := o.Call(propsGet, 0, p[:i], p[i+1:])
	if call.Err != nil {
		return dbus.Variant{}, call.Err
	}
	var v dbus.Variant
	if err := call.Store(&v); err != nil {
		return dbus.Variant{}, err
	}
	return v, nil
}

func (o *fakeBusObject) StoreProperty(p string, value interface{}) error {
	v, err := o.GetProperty(p)
	if err != nil {
		return err
	}
	return dbus.Store([]interface{}{v.Value()}, value)
}

func (o *fakeBusObject) SetProperty(p string, v interface{}) error {
	i := strings.LastIndex(p, ".")
	variant, ok := v.(dbus.Variant)
	if !ok {
		variant = dbus.MakeVariant(v)
	}
	call := o.Call(propsSet, 0, p[:i], p[i+1:], variant)
	if call.Err != nil {
		return call.Err
	}
	return nil
}

func (o *fakeBusObject) Destination() string   { return o.dest }
func (o *fakeBusObject) Path() dbus.ObjectPath { return o.path }
