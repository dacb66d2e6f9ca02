package woodchuck_test

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	woodchuck "github.com/ralic/gnu-woodchuck"
	"github.com/ralic/gnu-woodchuck/busclient"
	"github.com/ralic/gnu-woodchuck/errors"
	"github.com/ralic/gnu-woodchuck/testutil"
)

const (
	eventuallyTimeout = time.Second
	eventuallyTick    = 10 * time.Millisecond
)

type fixture struct {
	w      *woodchuck.Woodchuck
	bus    *testutil.FakeBus
	daemon *testutil.FakeDaemon
	clk    *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	daemon := testutil.NewFakeDaemon()
	bus := testutil.NewFakeBus(daemon)
	clk := clock.NewMock()
	c, err := busclient.NewClient(bus, busclient.WithClock(clk))
	require.NoError(t, err)
	return &fixture{
		w:      woodchuck.New(c),
		bus:    bus,
		daemon: daemon,
		clk:    clk,
	}
}

func (f *fixture) manager(t *testing.T, cookie string) *woodchuck.Manager {
	t.Helper()
	m, err := f.w.RegisterManager(woodchuck.Properties{
		"cookie":              cookie,
		"human_readable_name": "manager " + cookie,
	}, true)
	require.NoError(t, err)
	return m
}

func TestRegisterManager(t *testing.T) {
	f := newFixture(t)

	m := f.manager(t, "org.example.app")
	require.NotEmpty(t, m.UUID())
	require.NotNil(t, f.daemon.Entity(m.UUID()))

	// Registration fields are seeded into the cache; no property
	// traffic is needed to read them back.
	cookie, err := m.Cookie()
	require.NoError(t, err)
	assert.Equal(t, "org.example.app", cookie)
	assert.Zero(t, f.daemon.PropertyGetCount(m.UUID(), "Cookie"))

	parent, err := m.ParentUUID()
	require.NoError(t, err)
	assert.Empty(t, parent)
}

func TestRegisterManagerRejectsParentUUID(t *testing.T) {
	f := newFixture(t)

	_, err := f.w.RegisterManager(woodchuck.Properties{"parent_UUID": "x"}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidArgs)
}

func TestRegisterManagerDuplicateCookie(t *testing.T) {
	f := newFixture(t)
	f.manager(t, "dup")

	_, err := f.w.RegisterManager(woodchuck.Properties{"cookie": "dup"}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrObjectExists)
}

func TestProxyIdentity(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "one")

	listed, err := f.w.ListManagers(false)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	byCookie, err := f.w.ManagerByCookie("one", false)
	require.NoError(t, err)

	// Every route to the same remote UUID yields the same proxy, so
	// the property cache is shared.
	assert.Same(t, m, listed[0])
	assert.Same(t, m, byCookie)
}

func TestLookupManagerByCookieNoMatch(t *testing.T) {
	f := newFixture(t)
	f.manager(t, "present")

	_, err := f.w.LookupManagerByCookie("absent", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoSuchObject)
}

func TestLookupManagerByCookieAmbiguous(t *testing.T) {
	f := newFixture(t)

	// Without the uniqueness constraint two managers can share a
	// cookie; the plural lookup returns both, the singular helper
	// refuses.
	_, err := f.w.RegisterManager(woodchuck.Properties{"cookie": "shared"}, false)
	require.NoError(t, err)
	_, err = f.w.RegisterManager(woodchuck.Properties{"cookie": "shared"}, false)
	require.NoError(t, err)

	managers, err := f.w.LookupManagerByCookie("shared", false)
	require.NoError(t, err)
	assert.Len(t, managers, 2)

	_, err = f.w.ManagerByCookie("shared", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInternal)
}

func TestChildManagerHierarchy(t *testing.T) {
	f := newFixture(t)
	parent := f.manager(t, "parent")

	child, err := parent.RegisterManager(woodchuck.Properties{"cookie": "child"}, true)
	require.NoError(t, err)

	gotParent, err := child.ParentUUID()
	require.NoError(t, err)
	assert.Equal(t, parent.UUID(), gotParent)

	// Non-recursive top-level listing excludes the child.
	top, err := f.w.ListManagers(false)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	all, err := f.w.ListManagers(true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	viaParent, err := parent.LookupManagerByCookie("child", false)
	require.NoError(t, err)
	require.Len(t, viaParent, 1)
	assert.Same(t, child, viaParent[0])
}

func TestUnregisterRemovesFromRegistry(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "gone")
	require.NoError(t, m.Unregister(false))
	assert.Nil(t, f.daemon.Entity(m.UUID()))

	// A fresh registration with the same cookie is a new proxy.
	m2 := f.manager(t, "gone")
	assert.NotSame(t, m, m2)
}

func TestUnavailableService(t *testing.T) {
	f := newFixture(t)
	f.daemon.Stop()

	assert.False(t, f.w.IsAvailable())

	_, err := f.w.RegisterManager(woodchuck.Properties{"cookie": "c"}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnavailable)

	_, err = f.w.ListManagers(false)
	assert.ErrorIs(t, err, errors.ErrUnavailable)

	f.daemon.Restart(":1.50")
	assert.True(t, f.w.IsAvailable())
	f.manager(t, "c")
}

func TestEndToEnd(t *testing.T) {
	f := newFixture(t)

	m := f.manager(t, "org.test")

	s, err := m.RegisterStream(woodchuck.Properties{
		"cookie":    "s1",
		"freshness": uint32(3600),
	}, true)
	require.NoError(t, err)

	o, err := s.RegisterObject(woodchuck.Properties{
		"cookie": "o1",
		"versions": []woodchuck.Version{{
			URL:          "http://example.org/o1",
			ExpectedSize: 1024,
			Utility:      1,
		}},
	}, true)
	require.NoError(t, err)

	require.NoError(t, o.TransferStatus(woodchuck.StatusSuccess, nil))

	report := woodchuck.NewUpdateReport()
	report.NewObjects = 1
	require.NoError(t, s.UpdateStatus(woodchuck.StatusSuccess, report))

	objects, err := s.ListObjects()
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Same(t, o, objects[0])
	cookie, err := objects[0].Cookie()
	require.NoError(t, err)
	assert.Equal(t, "o1", cookie)

	// While the object exists, an only-if-empty unregistration of the
	// stream is refused as non-empty.
	err = s.Unregister(true)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrObjectExists)

	require.NoError(t, o.Unregister())
	require.NoError(t, s.Unregister(true))
	require.NoError(t, m.Unregister(true))
}

func TestStreamLookups(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "m")

	s1, err := m.RegisterStream(woodchuck.Properties{"cookie": "feed"}, false)
	require.NoError(t, err)
	_, err = m.RegisterStream(woodchuck.Properties{"cookie": "feed"}, false)
	require.NoError(t, err)

	streams, err := m.ListStreams()
	require.NoError(t, err)
	assert.Len(t, streams, 2)

	matches, err := m.LookupStreamByCookie("feed")
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	_, err = m.StreamByCookie("feed")
	assert.ErrorIs(t, err, errors.ErrInternal)

	_, err = m.LookupStreamByCookie("nope")
	assert.ErrorIs(t, err, errors.ErrNoSuchObject)

	require.NoError(t, s1.Unregister(false))
}

func TestObjectLookups(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "m")
	s, err := m.RegisterStream(woodchuck.Properties{"cookie": "s"}, true)
	require.NoError(t, err)

	o, err := s.RegisterObject(woodchuck.Properties{"cookie": "o"}, true)
	require.NoError(t, err)

	got, err := s.ObjectByCookie("o")
	require.NoError(t, err)
	assert.Same(t, o, got)

	_, err = s.ObjectByCookie("missing")
	assert.ErrorIs(t, err, errors.ErrNoSuchObject)

	_, err = s.RegisterObject(woodchuck.Properties{"cookie": "o"}, true)
	assert.ErrorIs(t, err, errors.ErrObjectExists)
}

func TestObjectReports(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "m")
	s, err := m.RegisterStream(woodchuck.Properties{"cookie": "s"}, true)
	require.NoError(t, err)
	o, err := s.RegisterObject(woodchuck.Properties{"cookie": "o"}, true)
	require.NoError(t, err)

	require.NoError(t, o.Transfer(woodchuck.UserInitiated))
	assert.Equal(t, 1, f.daemon.CallCounts["Transfer"])

	// A zero transfer time is filled with the current clock reading.
	f.clk.Add(1000 * time.Second)
	require.NoError(t, o.TransferStatus(woodchuck.StatusFailureGone, nil))
	args := f.daemon.LastArgs["TransferStatus"]
	require.Len(t, args, 8)
	assert.Equal(t, uint32(woodchuck.StatusFailureGone), args[0])
	assert.Equal(t, uint64(f.clk.Now().Unix()), args[4])

	require.NoError(t, o.Used(0, woodchuck.UnknownUint64, woodchuck.UnknownUint64))
	assert.Equal(t, 1, f.daemon.CallCounts["Used"])

	require.NoError(t, o.FilesDeleted(woodchuck.DeletionRefused, 600))
	args = f.daemon.LastArgs["FilesDeleted"]
	require.Len(t, args, 2)
	assert.Equal(t, uint32(woodchuck.DeletionRefused), args[0])
	assert.Equal(t, uint64(600), args[1])
}

func TestFeedbackAck(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "m")

	require.NoError(t, m.FeedbackAck("some-object-uuid", 3))
	assert.Equal(t, []string{"some-object-uuid/3"}, f.daemon.Acks)
}
