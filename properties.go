package woodchuck

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/godbus/dbus/v5"

	"github.com/ralic/gnu-woodchuck/busclient"
	"github.com/ralic/gnu-woodchuck/errors"
	"github.com/ralic/gnu-woodchuck/metric"
)

// Properties maps property names (e.g. "human_readable_name") to
// values. It is used both to pass fields at registration and to seed a
// proxy's cache from lookup results.
type Properties map[string]interface{}

// TTL classes. Identity and registration fields never change, so they
// are cached forever once read. Mutable fields are cached for a short
// window. A descriptor with uncachedTTL is always fetched remotely.
const (
	infiniteTTL time.Duration = -1
	uncachedTTL time.Duration = 0
	defaultTTL                = time.Second
)

// coerceFunc normalizes a caller-supplied value to the property's
// canonical Go type, rejecting values the wire type cannot represent.
type coerceFunc func(interface{}) (interface{}, error)

// propertyDescriptor describes one property: its wire name, value
// coercion, default, and cache TTL.
type propertyDescriptor struct {
	wire   string
	coerce coerceFunc
	def    interface{}
	ttl    time.Duration
}

func coerceString(v interface{}) (interface{}, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case dbus.ObjectPath:
		return string(s), nil
	}
	return nil, fmt.Errorf("%w: expected string, got %T", errors.ErrInvalidArgs, v)
}

// coerceStringStrict additionally rejects byte sequences that are not
// valid UTF-8; cookies travel as DBus strings, which must be UTF-8.
func coerceStringStrict(v interface{}) (interface{}, error) {
	cv, err := coerceString(v)
	if err != nil {
		return nil, err
	}
	s := cv.(string)
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("%w: %q is not valid UTF-8", errors.ErrInvalidArgs, s)
	}
	return s, nil
}

func coerceBool(v interface{}) (interface{}, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: expected bool, got %T", errors.ErrInvalidArgs, v)
}

// coerceUint32 rejects negative values and overflow rather than
// silently wrapping.
func coerceUint32(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case uint32:
		return n, nil
	case uint:
		if uint64(n) > uint64(UnknownUint32) {
			return nil, fmt.Errorf("%w: %d overflows uint32", errors.ErrInvalidArgs, n)
		}
		return uint32(n), nil
	case uint64:
		if n > uint64(UnknownUint32) {
			return nil, fmt.Errorf("%w: %d overflows uint32", errors.ErrInvalidArgs, n)
		}
		return uint32(n), nil
	case int:
		return intToUint32(int64(n))
	case int32:
		return intToUint32(int64(n))
	case int64:
		return intToUint32(n)
	}
	return nil, fmt.Errorf("%w: expected unsigned integer, got %T", errors.ErrInvalidArgs, v)
}

func intToUint32(n int64) (interface{}, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d is negative, field is unsigned", errors.ErrInvalidArgs, n)
	}
	if n > int64(UnknownUint32) {
		return nil, fmt.Errorf("%w: %d overflows uint32", errors.ErrInvalidArgs, n)
	}
	return uint32(n), nil
}

func coerceUint64(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	case int:
		return intToUint64(int64(n))
	case int32:
		return intToUint64(int64(n))
	case int64:
		return intToUint64(n)
	}
	return nil, fmt.Errorf("%w: expected unsigned integer, got %T", errors.ErrInvalidArgs, v)
}

func intToUint64(n int64) (interface{}, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d is negative, field is unsigned", errors.ErrInvalidArgs, n)
	}
	return uint64(n), nil
}

// coerceVersions accepts a []Version or the decoded wire form.
func coerceVersions(v interface{}) (interface{}, error) {
	switch vs := v.(type) {
	case []Version:
		return vs, nil
	case [][]interface{}:
		out := make([]Version, 0, len(vs))
		for _, row := range vs {
			if len(row) != 6 {
				return nil, fmt.Errorf("%w: malformed version tuple", errors.ErrInvalidArgs)
			}
			var ver Version
			if err := dbus.Store([]interface{}{row}, &ver); err != nil {
				return nil, fmt.Errorf("%w: malformed version tuple: %v", errors.ErrInvalidArgs, err)
			}
			out = append(out, ver)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: expected []Version, got %T", errors.ErrInvalidArgs, v)
}

// managerPropertyTable maps manager property names to descriptors.
var managerPropertyTable = map[string]propertyDescriptor{
	"UUID":                {"UUID", coerceString, "", infiniteTTL},
	"parent_UUID":         {"ParentUUID", coerceString, "", infiniteTTL},
	"human_readable_name": {"HumanReadableName", coerceString, "", defaultTTL},
	"cookie":              {"Cookie", coerceStringStrict, "", defaultTTL},
	"dbus_service_name":   {"DBusServiceName", coerceString, "", defaultTTL},
	"dbus_object":         {"DBusObject", coerceString, "", defaultTTL},
	"priority":            {"Priority", coerceUint32, uint32(0), defaultTTL},
	"enabled":             {"Enabled", coerceBool, true, defaultTTL},
	"registration_time":   {"RegistrationTime", coerceUint64, uint64(0), infiniteTTL},
}

var streamPropertyTable = map[string]propertyDescriptor{
	"UUID":                       {"UUID", coerceString, "", infiniteTTL},
	"parent_UUID":                {"ParentUUID", coerceString, "", infiniteTTL},
	"human_readable_name":        {"HumanReadableName", coerceString, "", defaultTTL},
	"cookie":                     {"Cookie", coerceStringStrict, "", defaultTTL},
	"priority":                   {"Priority", coerceUint32, uint32(0), defaultTTL},
	"freshness":                  {"Freshness", coerceUint32, uint32(0), defaultTTL},
	"object_mostly_inline":       {"ObjectsMostlyInline", coerceBool, false, defaultTTL},
	"registration_time":          {"RegistrationTime", coerceUint64, uint64(0), infiniteTTL},
	"last_update_time":           {"LastUpdateTime", coerceUint64, uint64(0), defaultTTL},
	"last_update_attempt_time":   {"LastUpdateAttemptTime", coerceUint64, uint64(0), defaultTTL},
	"last_update_attempt_status": {"LastUpdateAttemptStatus", coerceUint32, uint32(0), defaultTTL},
}

var objectPropertyTable = map[string]propertyDescriptor{
	"UUID":                         {"UUID", coerceString, "", infiniteTTL},
	"parent_UUID":                  {"ParentUUID", coerceString, "", infiniteTTL},
	"instance":                     {"Instance", coerceUint32, uint32(0), defaultTTL},
	"human_readable_name":          {"HumanReadableName", coerceString, "", defaultTTL},
	"cookie":                       {"Cookie", coerceStringStrict, "", defaultTTL},
	"versions":                     {"Versions", coerceVersions, []Version(nil), defaultTTL},
	"filename":                     {"Filename", coerceString, "", defaultTTL},
	"wakeup":                       {"Wakeup", coerceBool, true, defaultTTL},
	"trigger_target":               {"TriggerTarget", coerceUint64, uint64(0), defaultTTL},
	"trigger_earliest":             {"TriggerEarliest", coerceUint64, uint64(0), defaultTTL},
	"trigger_latest":               {"TriggerLatest", coerceUint64, uint64(0), defaultTTL},
	"transfer_frequency":           {"TransferFrequency", coerceUint32, uint32(0), defaultTTL},
	"dont_transfer":                {"DontTransfer", coerceBool, false, defaultTTL},
	"need_update":                  {"NeedUpdate", coerceBool, true, defaultTTL},
	"priority":                     {"Priority", coerceUint32, uint32(0), defaultTTL},
	"discovery_time":               {"DiscoveryTime", coerceUint64, uint64(0), defaultTTL},
	"publication_time":             {"PublicationTime", coerceUint64, uint64(0), defaultTTL},
	"registration_time":            {"RegistrationTime", coerceUint64, uint64(0), infiniteTTL},
	"last_transfer_time":           {"LastTransferTime", coerceUint64, uint64(0), defaultTTL},
	"last_transfer_attempt_time":   {"LastTransferAttemptTime", coerceUint64, uint64(0), defaultTTL},
	"last_transfer_attempt_status": {"LastTransferAttemptStatus", coerceUint32, uint32(0), defaultTTL},
}

// cachedProperty is a value plus the time it was last fetched or
// written.
type cachedProperty struct {
	value   interface{}
	fetched time.Time
}

// propertyCache mediates named-property access for one proxy: reads are
// served from cache within the property's TTL, writes go through to the
// daemon and update the cache.
type propertyCache struct {
	table   map[string]propertyDescriptor
	clk     clock.Clock
	metrics *metric.Metrics
	values  map[string]cachedProperty
}

func newPropertyCache(table map[string]propertyDescriptor, clk clock.Clock, m *metric.Metrics) *propertyCache {
	return &propertyCache{
		table:   table,
		clk:     clk,
		metrics: m,
		values:  make(map[string]cachedProperty),
	}
}

func (p *propertyCache) descriptor(name string) (propertyDescriptor, error) {
	desc, ok := p.table[name]
	if !ok {
		return propertyDescriptor{}, fmt.Errorf("%w: unknown property %q", errors.ErrInvalidArgs, name)
	}
	return desc, nil
}

// seed populates the cache with values already known to be current,
// e.g. fields returned by a list or registration call.
func (p *propertyCache) seed(props Properties) error {
	now := p.clk.Now()
	for name, value := range props {
		desc, err := p.descriptor(name)
		if err != nil {
			return err
		}
		coerced, err := desc.coerce(value)
		if err != nil {
			return err
		}
		if desc.ttl != uncachedTTL {
			p.values[name] = cachedProperty{value: coerced, fetched: now}
		}
	}
	return nil
}

// get returns the property's value, consulting the cache first.
func (p *propertyCache) get(obj *busclient.RemoteObject, name string) (interface{}, error) {
	desc, err := p.descriptor(name)
	if err != nil {
		return nil, err
	}

	if cv, ok := p.values[name]; ok {
		if desc.ttl == infiniteTTL || p.clk.Now().Sub(cv.fetched) < desc.ttl {
			p.metrics.RecordCacheHit()
			return cv.value, nil
		}
	}

	p.metrics.RecordCacheMiss()
	variant, err := obj.GetProperty(desc.wire)
	if err != nil {
		return nil, err
	}
	value, err := desc.coerce(variant.Value())
	if err != nil {
		return nil, err
	}
	if desc.ttl != uncachedTTL {
		p.values[name] = cachedProperty{value: value, fetched: p.clk.Now()}
	}
	return value, nil
}

// set writes the property through to the daemon and, on success,
// updates the cache with the new value (write-through, not
// write-invalidate).
func (p *propertyCache) set(obj *busclient.RemoteObject, name string, value interface{}) error {
	desc, err := p.descriptor(name)
	if err != nil {
		return err
	}
	coerced, err := desc.coerce(value)
	if err != nil {
		return err
	}
	if err := obj.SetProperty(desc.wire, coerced); err != nil {
		return err
	}
	if desc.ttl != uncachedTTL {
		p.values[name] = cachedProperty{value: coerced, fetched: p.clk.Now()}
	}
	return nil
}

// wireDict converts registration properties to the daemon's dict
// format, keyed by wire names.
func (p *propertyCache) wireDict(props Properties) (map[string]dbus.Variant, error) {
	out := make(map[string]dbus.Variant, len(props))
	for name, value := range props {
		desc, err := p.descriptor(name)
		if err != nil {
			return nil, err
		}
		if value == nil {
			value = desc.def
		}
		coerced, err := desc.coerce(value)
		if err != nil {
			return nil, err
		}
		out[desc.wire] = dbus.MakeVariant(coerced)
	}
	return out, nil
}

// wireRegistrationDict builds a registration dict without requiring a
// cache instance.
func wireRegistrationDict(table map[string]propertyDescriptor, props Properties) (map[string]dbus.Variant, error) {
	tmp := &propertyCache{table: table}
	return tmp.wireDict(props)
}
