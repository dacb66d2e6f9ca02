package woodchuck_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	woodchuck "github.com/ralic/gnu-woodchuck"
	"github.com/ralic/gnu-woodchuck/errors"
)

func TestPropertyTTL(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "ttl")
	uuid := m.UUID()

	// The registration seed makes the first read free.
	name, err := m.HumanReadableName()
	require.NoError(t, err)
	assert.Equal(t, "manager ttl", name)
	assert.Zero(t, f.daemon.PropertyGetCount(uuid, "HumanReadableName"))

	// Within the TTL the cached value keeps being served.
	f.clk.Add(900 * time.Millisecond)
	_, err = m.HumanReadableName()
	require.NoError(t, err)
	assert.Zero(t, f.daemon.PropertyGetCount(uuid, "HumanReadableName"))

	// Once it expires the next read goes to the daemon, restarting the
	// TTL window.
	f.clk.Add(200 * time.Millisecond)
	_, err = m.HumanReadableName()
	require.NoError(t, err)
	assert.Equal(t, 1, f.daemon.PropertyGetCount(uuid, "HumanReadableName"))

	f.clk.Add(500 * time.Millisecond)
	_, err = m.HumanReadableName()
	require.NoError(t, err)
	assert.Equal(t, 1, f.daemon.PropertyGetCount(uuid, "HumanReadableName"))
}

func TestPropertyImmutableNeverRefetched(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "immut")
	uuid := m.UUID()

	f.clk.Add(time.Hour)
	got, err := m.Get("UUID")
	require.NoError(t, err)
	assert.Equal(t, uuid, got)

	_, err = m.ParentUUID()
	require.NoError(t, err)

	assert.Zero(t, f.daemon.PropertyGetCount(uuid, "UUID"))
	assert.Zero(t, f.daemon.PropertyGetCount(uuid, "ParentUUID"))
}

func TestPropertyWriteThrough(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "write")
	uuid := m.UUID()

	require.NoError(t, m.Set("enabled", false))
	assert.Equal(t, false, f.daemon.Entity(uuid).Props["Enabled"])

	// The write refreshed the cache: reads within the TTL stay local.
	got, err := m.Get("enabled")
	require.NoError(t, err)
	assert.Equal(t, false, got)
	assert.Zero(t, f.daemon.PropertyGetCount(uuid, "Enabled"))

	// A remote change becomes visible after expiry.
	f.daemon.Entity(uuid).Props["Enabled"] = true
	f.clk.Add(2 * time.Second)
	got, err = m.Get("enabled")
	require.NoError(t, err)
	assert.Equal(t, true, got)
	assert.Equal(t, 1, f.daemon.PropertyGetCount(uuid, "Enabled"))
}

func TestPropertyCoercionOnSet(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "coerce")

	// ints are accepted for unsigned properties, negatives are not.
	require.NoError(t, m.Set("priority", 5))
	got, err := m.Get("priority")
	require.NoError(t, err)
	assert.Equal(t, uint32(5), got)

	err = m.Set("priority", -1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidArgs)
}

func TestPropertyUnknownName(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "unknown")

	_, err := m.Get("no_such_property")
	assert.ErrorIs(t, err, errors.ErrInvalidArgs)

	err = m.Set("no_such_property", 1)
	assert.ErrorIs(t, err, errors.ErrInvalidArgs)
}

func TestStreamFreshnessRoundTrip(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "m")
	s, err := m.RegisterStream(woodchuck.Properties{
		"cookie":    "s",
		"freshness": uint32(3600),
	}, true)
	require.NoError(t, err)

	// The registration dict carried the coerced wire value.
	assert.Equal(t, uint32(3600), f.daemon.Entity(s.UUID()).Props["Freshness"])

	got, err := s.Get("freshness")
	require.NoError(t, err)
	assert.Equal(t, uint32(3600), got)
}

func TestObjectVersionsProperty(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "m")
	s, err := m.RegisterStream(woodchuck.Properties{"cookie": "s"}, true)
	require.NoError(t, err)

	versions := []woodchuck.Version{{
		URL:                 "http://example.org/a",
		ExpectedSize:        1024,
		Utility:             3,
		UseSimpleTransferer: true,
	}}
	o, err := s.RegisterObject(woodchuck.Properties{
		"cookie":   "o",
		"versions": versions,
	}, true)
	require.NoError(t, err)

	got, err := o.Get("versions")
	require.NoError(t, err)
	assert.Equal(t, versions, got)
}
