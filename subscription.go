package woodchuck

import (
	"fmt"

	"github.com/ralic/gnu-woodchuck/errors"
)

// SubscriptionScope selects which entities a feedback subscription
// covers.
type SubscriptionScope int

const (
	// ScopeSelf covers upcalls for the manager itself.
	ScopeSelf SubscriptionScope = iota
	// ScopeSelfAndDescendants also covers upcalls for descendant
	// managers.
	ScopeSelfAndDescendants
)

func (s SubscriptionScope) String() string {
	switch s {
	case ScopeSelf:
		return "self"
	case ScopeSelfAndDescendants:
		return "self+descendants"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// feedbackState tracks the manager's single daemon-side subscription
// handle and the reference counts sharing it. The daemon is asked for
// at most one subscription per manager; its breadth follows the widest
// outstanding request.
type feedbackState struct {
	selfCount       int
	descendantCount int
	handle          string
}

func (f *feedbackState) active() bool { return f.handle != "" }

func (f *feedbackState) broad() bool { return f.descendantCount > 0 }

// FeedbackSubscribe takes a reference on the manager's feedback
// subscription, creating or widening the daemon-side subscription as
// needed. Every successful call must be paired with a
// FeedbackUnsubscribe of the same scope.
func (m *Manager) FeedbackSubscribe(scope SubscriptionScope) error {
	m.w.c.CheckAffinity()

	f := &m.feedback
	switch {
	case !f.active():
		handle, err := m.remoteSubscribe(scope == ScopeSelfAndDescendants)
		if err != nil {
			return err
		}
		f.handle = handle
	case scope == ScopeSelfAndDescendants && !f.broad():
		// Widen before narrowing: subscribe broadly first so no
		// upcall is lost, then drop the old narrow handle.
		handle, err := m.remoteSubscribe(true)
		if err != nil {
			return err
		}
		old := f.handle
		f.handle = handle
		if err := m.remoteUnsubscribe(old); err != nil {
			m.w.logger.Warn("stale feedback subscription not released",
				"manager", m.uuid, "handle", old, "error", err)
		}
	}

	if scope == ScopeSelfAndDescendants {
		f.descendantCount++
	} else {
		f.selfCount++
	}
	return nil
}

// FeedbackUnsubscribe drops one reference of the given scope. When the
// last descendant-scoped reference goes while self-scoped references
// remain, the daemon-side subscription is narrowed; when the last
// reference of all goes, it is cancelled.
func (m *Manager) FeedbackUnsubscribe(scope SubscriptionScope) error {
	m.w.c.CheckAffinity()

	f := &m.feedback
	if scope == ScopeSelfAndDescendants {
		if f.descendantCount <= 0 {
			return fmt.Errorf("%w: no descendant-scoped subscription outstanding", errors.ErrInvalidArgs)
		}
		f.descendantCount--
	} else {
		if f.selfCount <= 0 {
			return fmt.Errorf("%w: no self-scoped subscription outstanding", errors.ErrInvalidArgs)
		}
		f.selfCount--
	}

	switch {
	case f.selfCount == 0 && f.descendantCount == 0:
		handle := f.handle
		f.handle = ""
		return m.remoteUnsubscribe(handle)
	case f.descendantCount == 0 && scope == ScopeSelfAndDescendants:
		// Narrow: take the self-only subscription before dropping
		// the broad one.
		handle, err := m.remoteSubscribe(false)
		if err != nil {
			// Keep the broad handle; it still covers the
			// remaining self-scoped references.
			f.descendantCount++
			return err
		}
		old := f.handle
		f.handle = handle
		if err := m.remoteUnsubscribe(old); err != nil {
			m.w.logger.Warn("stale feedback subscription not released",
				"manager", m.uuid, "handle", old, "error", err)
		}
	}
	return nil
}

// SubscriptionHandle exposes the current daemon-side handle, empty when
// no subscription is outstanding. Intended for diagnostics.
func (m *Manager) SubscriptionHandle() string { return m.feedback.handle }
