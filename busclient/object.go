package busclient

import (
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/ralic/gnu-woodchuck/errors"
)

const propertiesInterface = "org.freedesktop.DBus.Properties"

// RemoteObject is a proxy for one object in the daemon's entity tree.
// The bus handle is bound lazily; if a call fails with ServiceUnknown
// because the daemon restarted under a new unique name, the proxy
// rebinds once and retries that call exactly once before surfacing the
// fault.
type RemoteObject struct {
	c     *Client
	path  dbus.ObjectPath
	iface string
	obj   dbus.BusObject
}

// NewRemoteObject creates a proxy for the object at path speaking
// iface, e.g. "org.woodchuck.manager".
func NewRemoteObject(c *Client, path dbus.ObjectPath, iface string) *RemoteObject {
	return &RemoteObject{c: c, path: path, iface: iface}
}

// EntityObject creates a proxy for /org/woodchuck/<kind>/<uuid>.
func EntityObject(c *Client, kind, uuid string) *RemoteObject {
	path := dbus.ObjectPath(string(RootPath) + "/" + kind + "/" + uuid)
	return NewRemoteObject(c, path, ServiceName+"."+kind)
}

// RootObject creates a proxy for the daemon's top-level object.
func RootObject(c *Client) *RemoteObject {
	return NewRemoteObject(c, RootPath, ServiceName)
}

// Path returns the remote object path.
func (o *RemoteObject) Path() dbus.ObjectPath { return o.path }

func (o *RemoteObject) bind() {
	o.obj = o.c.bus.Object(ServiceName, o.path)
}

// Call invokes method on the object's own interface. The returned
// errors are already translated into the taxonomy; non-Woodchuck
// transport faults pass through untouched.
func (o *RemoteObject) Call(method string, args ...interface{}) (*dbus.Call, error) {
	return o.call(o.iface+"."+method, args...)
}

// GetProperty reads a property through the generic properties
// interface. The daemon accepts the empty interface name.
func (o *RemoteObject) GetProperty(name string) (dbus.Variant, error) {
	var v dbus.Variant
	call, err := o.call(propertiesInterface+".Get", "", name)
	if err != nil {
		return v, err
	}
	if err := call.Store(&v); err != nil {
		return v, errors.Wrap(err, "RemoteObject", "GetProperty", "decode reply")
	}
	return v, nil
}

// SetProperty writes a property through the generic properties
// interface.
func (o *RemoteObject) SetProperty(name string, value interface{}) error {
	_, err := o.call(propertiesInterface+".Set", "", name, dbus.MakeVariant(value))
	return err
}

func (o *RemoteObject) call(fullMethod string, args ...interface{}) (*dbus.Call, error) {
	o.c.guard.Check()

	if o.obj == nil {
		o.bind()
	}

	call := o.obj.Call(fullMethod, 0, args...)
	if call.Err != nil && errors.IsServiceUnknown(call.Err) {
		// The daemon's unique name churned. Rebind and retry once; a
		// second failure propagates.
		o.c.logger.Debug("rebinding after ServiceUnknown", "path", o.path, "method", fullMethod)
		o.c.metrics.RecordRebind()
		o.bind()
		call = o.obj.Call(fullMethod, 0, args...)
	}

	if call.Err != nil {
		o.c.metrics.RecordCall(shortMethod(fullMethod), "fault")
		return nil, errors.FromDBus(call.Err)
	}
	o.c.metrics.RecordCall(shortMethod(fullMethod), "ok")
	return call, nil
}

func shortMethod(fullMethod string) string {
	if i := strings.LastIndex(fullMethod, "."); i >= 0 {
		return fullMethod[i+1:]
	}
	return fullMethod
}
