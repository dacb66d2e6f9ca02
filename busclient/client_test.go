package busclient_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ralic/gnu-woodchuck/busclient"
	"github.com/ralic/gnu-woodchuck/errors"
	"github.com/ralic/gnu-woodchuck/testutil"
)

func newTestClient(t *testing.T) (*busclient.Client, *testutil.FakeBus, *testutil.FakeDaemon) {
	t.Helper()
	daemon := testutil.NewFakeDaemon()
	bus := testutil.NewFakeBus(daemon)
	c, err := busclient.NewClient(bus)
	require.NoError(t, err)
	return c, bus, daemon
}

func TestIsAvailable(t *testing.T) {
	c, _, daemon := newTestClient(t)

	assert.True(t, c.IsAvailable())

	daemon.Stop()
	assert.False(t, c.IsAvailable())

	daemon.Restart(":1.50")
	assert.True(t, c.IsAvailable())
}

func TestWatchOwnerResolvesUniqueName(t *testing.T) {
	c, _, _ := newTestClient(t)

	require.NoError(t, c.WatchOwner())
	assert.Equal(t, ":1.42", c.Owner())
	assert.True(t, c.IsDaemon(":1.42"))
	assert.False(t, c.IsDaemon(":1.99"))
}

func TestWatchOwnerDaemonDown(t *testing.T) {
	c, _, daemon := newTestClient(t)
	daemon.Stop()

	err := c.WatchOwner()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnavailable)
}

func TestOwnerFollowsNameOwnerChanged(t *testing.T) {
	c, bus, daemon := newTestClient(t)
	require.NoError(t, c.WatchOwner())

	daemon.Restart(":1.77")
	bus.EmitNameOwnerChanged(":1.42", ":1.77")

	assert.Eventually(t, func() bool {
		return c.Owner() == ":1.77"
	}, time.Second, 10*time.Millisecond)
	assert.False(t, c.IsDaemon(":1.42"))
	assert.True(t, c.IsDaemon(":1.77"))
}

func TestIsDaemonBeforeWatch(t *testing.T) {
	c, _, _ := newTestClient(t)
	// Without WatchOwner no sender can authenticate.
	assert.False(t, c.IsDaemon(":1.42"))
	assert.False(t, c.IsDaemon(""))
}
