// Package errors provides the error taxonomy for the Woodchuck client
// library. Faults raised by the Woodchuck daemon arrive as DBus errors
// carrying a dotted error name; FromDBus maps these onto a closed set of
// sentinel errors so callers can dispatch with errors.Is instead of
// string matching.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// Sentinel errors for the Woodchuck fault namespace. Every error
// returned by the client library for a service-originated fault wraps
// exactly one of these.
var (
	// ErrGeneric corresponds to org.woodchuck.GenericError.
	ErrGeneric = errors.New("woodchuck: generic service error")

	// ErrObjectExists corresponds to org.woodchuck.ObjectExists. It is
	// returned both for duplicate-cookie registrations and for
	// non-empty entities refused by an only-if-empty unregistration.
	ErrObjectExists = errors.New("woodchuck: object exists")

	// ErrNotImplemented corresponds to org.woodchuck.MethodNotImplemented.
	ErrNotImplemented = errors.New("woodchuck: method not implemented")

	// ErrInternal corresponds to org.woodchuck.InternalError. It is also
	// used locally when the service returns data that violates an API
	// contract, e.g. multiple matches for a cookie assumed unique.
	ErrInternal = errors.New("woodchuck: internal inconsistency")

	// ErrInvalidArgs corresponds to org.woodchuck.InvalidArgs.
	ErrInvalidArgs = errors.New("woodchuck: invalid arguments")

	// ErrUnknown is the catch-all for unrecognized faults under the
	// org.woodchuck namespace.
	ErrUnknown = errors.New("woodchuck: unknown service fault")

	// ErrUnavailable indicates the Woodchuck daemon is not reachable:
	// the well-known name has no owner, or a call got no reply.
	ErrUnavailable = errors.New("woodchuck: service unavailable")

	// ErrNoSuchObject indicates the entity does not exist. It covers the
	// org.freedesktop.DBus.Error.UnknownObject fault as well as local
	// empty results from cookie lookup helpers.
	ErrNoSuchObject = errors.New("woodchuck: no such object")
)

// DBus error names recognized by FromDBus.
const (
	faultPrefix = "org.woodchuck."

	faultGeneric        = "org.woodchuck.GenericError"
	faultObjectExists   = "org.woodchuck.ObjectExists"
	faultNotImplemented = "org.woodchuck.MethodNotImplemented"
	faultInternal       = "org.woodchuck.InternalError"
	faultInvalidArgs    = "org.woodchuck.InvalidArgs"

	faultServiceUnknown = "org.freedesktop.DBus.Error.ServiceUnknown"
	faultNoReply        = "org.freedesktop.DBus.Error.NoReply"
	faultNameHasNoOwner = "org.freedesktop.DBus.Error.NameHasNoOwner"
	faultUnknownObject  = "org.freedesktop.DBus.Error.UnknownObject"
)

// ServiceError is a fault translated from the bus. It preserves the
// original dotted fault name and message while wrapping the matching
// sentinel for errors.Is dispatch.
type ServiceError struct {
	// Name is the dotted DBus error name, e.g. org.woodchuck.ObjectExists.
	Name string

	// Message is the human-readable text carried by the fault.
	Message string

	sentinel error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// Unwrap returns the sentinel this fault was classified as.
func (e *ServiceError) Unwrap() error {
	return e.sentinel
}

// newServiceError builds a ServiceError classified as sentinel.
func newServiceError(sentinel error, name string, body []interface{}) *ServiceError {
	msg := ""
	if len(body) > 0 {
		if s, ok := body[0].(string); ok {
			msg = s
		}
	}
	return &ServiceError{Name: name, Message: msg, sentinel: sentinel}
}

// FromDBus translates a DBus-level error into the Woodchuck taxonomy.
// Faults under org.woodchuck are mapped by exact name, falling back to
// ErrUnknown for unrecognized members of the namespace. ServiceUnknown,
// NoReply and NameHasNoOwner become ErrUnavailable; UnknownObject
// becomes ErrNoSuchObject. Anything else is not a Woodchuck fault and
// propagates unchanged so callers can observe raw transport failures.
func FromDBus(err error) error {
	if err == nil {
		return nil
	}

	var derr dbus.Error
	if !errors.As(err, &derr) {
		return err
	}

	switch derr.Name {
	case faultGeneric:
		return newServiceError(ErrGeneric, derr.Name, derr.Body)
	case faultObjectExists:
		return newServiceError(ErrObjectExists, derr.Name, derr.Body)
	case faultNotImplemented:
		return newServiceError(ErrNotImplemented, derr.Name, derr.Body)
	case faultInternal:
		return newServiceError(ErrInternal, derr.Name, derr.Body)
	case faultInvalidArgs:
		return newServiceError(ErrInvalidArgs, derr.Name, derr.Body)
	case faultServiceUnknown, faultNoReply, faultNameHasNoOwner:
		return newServiceError(ErrUnavailable, derr.Name, derr.Body)
	case faultUnknownObject:
		return newServiceError(ErrNoSuchObject, derr.Name, derr.Body)
	}

	if strings.HasPrefix(derr.Name, faultPrefix) {
		return newServiceError(ErrUnknown, derr.Name, derr.Body)
	}

	return err
}

// IsUnavailable reports whether err indicates the daemon is unreachable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsServiceUnknown reports whether err is the raw ServiceUnknown DBus
// fault, i.e. the well-known name had no owner at call time. The
// resilient proxy uses this to decide whether a rebind-and-retry is
// worthwhile before the fault is translated.
func IsServiceUnknown(err error) bool {
	var derr dbus.Error
	return errors.As(err, &derr) && derr.Name == faultServiceUnknown
}

// Wrap creates a standardized error with context following the pattern
// "component.method: action failed: %w".
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}
