package woodchuck

import (
	"fmt"

	"github.com/ralic/gnu-woodchuck/busclient"
	"github.com/ralic/gnu-woodchuck/errors"
)

// entity is the part common to Manager, Stream and Object: the bound
// proxy and the mediated property cache.
type entity struct {
	w     *Woodchuck
	uuid  string
	obj   *busclient.RemoteObject
	props *propertyCache
}

func newEntity(w *Woodchuck, kind, uuid string, table map[string]propertyDescriptor, seed Properties) (entity, error) {
	e := entity{
		w:     w,
		uuid:  uuid,
		obj:   busclient.EntityObject(w.c, kind, uuid),
		props: newPropertyCache(table, w.c.Clock(), w.c.Metrics()),
	}
	if err := e.props.seed(seed); err != nil {
		return entity{}, err
	}
	return e, nil
}

// UUID returns the entity's service-assigned identifier.
func (e *entity) UUID() string { return e.uuid }

// Get returns the named property, served from the TTL cache when the
// cached value is still valid.
func (e *entity) Get(name string) (interface{}, error) {
	return e.props.get(e.obj, name)
}

// Set writes the named property through to the daemon and updates the
// cache.
func (e *entity) Set(name string, value interface{}) error {
	return e.props.set(e.obj, name, value)
}

func (e *entity) getString(name string) (string, error) {
	v, err := e.Get(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: property %q is not a string", errors.ErrInternal, name)
	}
	return s, nil
}

// Cookie returns the application-chosen identifier.
func (e *entity) Cookie() (string, error) {
	return e.getString("cookie")
}

// HumanReadableName returns the user-visible name.
func (e *entity) HumanReadableName() (string, error) {
	return e.getString("human_readable_name")
}

// ParentUUID returns the owning entity's UUID, or "" for a top-level
// manager.
func (e *entity) ParentUUID() (string, error) {
	return e.getString("parent_UUID")
}
