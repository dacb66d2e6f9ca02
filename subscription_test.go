package woodchuck_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	woodchuck "github.com/ralic/gnu-woodchuck"
	"github.com/ralic/gnu-woodchuck/errors"
)

func (f *fixture) breadth(t *testing.T, m *woodchuck.Manager) bool {
	t.Helper()
	broad, ok := f.daemon.SubscriptionBreadth(m.SubscriptionHandle())
	require.True(t, ok, "manager should hold a live daemon-side handle")
	return broad
}

func TestSubscribeSharesOneHandle(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "m")

	require.NoError(t, m.FeedbackSubscribe(woodchuck.ScopeSelf))
	first := m.SubscriptionHandle()
	require.NotEmpty(t, first)

	// Additional references of the same breadth reuse the handle.
	require.NoError(t, m.FeedbackSubscribe(woodchuck.ScopeSelf))
	require.NoError(t, m.FeedbackSubscribe(woodchuck.ScopeSelf))
	assert.Equal(t, first, m.SubscriptionHandle())
	assert.Equal(t, 1, f.daemon.SubscriptionCount(m.UUID()))
	assert.False(t, f.breadth(t, m))

	require.NoError(t, m.FeedbackUnsubscribe(woodchuck.ScopeSelf))
	require.NoError(t, m.FeedbackUnsubscribe(woodchuck.ScopeSelf))
	assert.Equal(t, 1, f.daemon.SubscriptionCount(m.UUID()))

	// The last reference tears the handle down.
	require.NoError(t, m.FeedbackUnsubscribe(woodchuck.ScopeSelf))
	assert.Empty(t, m.SubscriptionHandle())
	assert.Equal(t, 0, f.daemon.SubscriptionCount(m.UUID()))
}

func TestSubscribeUpgradesToDescendants(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "m")

	require.NoError(t, m.FeedbackSubscribe(woodchuck.ScopeSelf))
	narrow := m.SubscriptionHandle()
	assert.False(t, f.breadth(t, m))

	// A broader request replaces the narrow subscription; the old
	// handle is released only after the broad one exists.
	require.NoError(t, m.FeedbackSubscribe(woodchuck.ScopeSelfAndDescendants))
	broad := m.SubscriptionHandle()
	assert.NotEqual(t, narrow, broad)
	assert.True(t, f.breadth(t, m))
	assert.Equal(t, 1, f.daemon.SubscriptionCount(m.UUID()))

	// Another broad reference changes nothing, and a narrow one is
	// already covered by the broad subscription.
	require.NoError(t, m.FeedbackSubscribe(woodchuck.ScopeSelfAndDescendants))
	require.NoError(t, m.FeedbackSubscribe(woodchuck.ScopeSelf))
	assert.Equal(t, broad, m.SubscriptionHandle())
	assert.True(t, f.breadth(t, m))
	assert.Equal(t, 1, f.daemon.SubscriptionCount(m.UUID()))
	assert.Equal(t, 2, f.daemon.CallCounts["FeedbackSubscribe"])
}

func TestUnsubscribeDowngradesToSelf(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "m")

	require.NoError(t, m.FeedbackSubscribe(woodchuck.ScopeSelf))
	require.NoError(t, m.FeedbackSubscribe(woodchuck.ScopeSelfAndDescendants))
	broad := m.SubscriptionHandle()
	assert.True(t, f.breadth(t, m))

	// Dropping the last descendant reference narrows the subscription
	// while self references remain.
	require.NoError(t, m.FeedbackUnsubscribe(woodchuck.ScopeSelfAndDescendants))
	assert.NotEqual(t, broad, m.SubscriptionHandle())
	assert.False(t, f.breadth(t, m))
	assert.Equal(t, 1, f.daemon.SubscriptionCount(m.UUID()))

	require.NoError(t, m.FeedbackUnsubscribe(woodchuck.ScopeSelf))
	assert.Equal(t, 0, f.daemon.SubscriptionCount(m.UUID()))
}

func TestUnsubscribeBroadKeepsBroadWhileDescendantsRemain(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "m")

	require.NoError(t, m.FeedbackSubscribe(woodchuck.ScopeSelfAndDescendants))
	require.NoError(t, m.FeedbackSubscribe(woodchuck.ScopeSelfAndDescendants))
	broad := m.SubscriptionHandle()

	require.NoError(t, m.FeedbackUnsubscribe(woodchuck.ScopeSelfAndDescendants))
	assert.Equal(t, broad, m.SubscriptionHandle())
	assert.True(t, f.breadth(t, m))
}

func TestUnsubscribeWithoutReference(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "m")

	err := m.FeedbackUnsubscribe(woodchuck.ScopeSelf)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidArgs)

	// Scope mismatches are caught per scope, not globally.
	require.NoError(t, m.FeedbackSubscribe(woodchuck.ScopeSelf))
	err = m.FeedbackUnsubscribe(woodchuck.ScopeSelfAndDescendants)
	assert.ErrorIs(t, err, errors.ErrInvalidArgs)

	require.NoError(t, m.FeedbackUnsubscribe(woodchuck.ScopeSelf))
}

func TestSubscribeFailurePreservesCounts(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, "m")

	f.daemon.Stop()
	err := m.FeedbackSubscribe(woodchuck.ScopeSelf)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnavailable)
	assert.Empty(t, m.SubscriptionHandle())

	// After a failed subscribe no reference was taken.
	err = m.FeedbackUnsubscribe(woodchuck.ScopeSelf)
	assert.ErrorIs(t, err, errors.ErrInvalidArgs)

	f.daemon.Restart(":1.60")
	require.NoError(t, m.FeedbackSubscribe(woodchuck.ScopeSelf))
	assert.Equal(t, 1, f.daemon.SubscriptionCount(m.UUID()))
}

func TestSubscriptionScopeString(t *testing.T) {
	assert.Equal(t, "self", woodchuck.ScopeSelf.String())
	assert.Equal(t, "self+descendants", woodchuck.ScopeSelfAndDescendants.String())
}
