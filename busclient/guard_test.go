package busclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardAllowsPinnedGoroutine(t *testing.T) {
	var g Guard
	assert.NotPanics(t, func() {
		g.Check()
		g.Check()
		g.Check()
	})
}

func TestGuardPanicsOnForeignGoroutine(t *testing.T) {
	var g Guard
	g.Check()

	panicked := make(chan interface{}, 1)
	go func() {
		defer func() { panicked <- recover() }()
		g.Check()
	}()

	p := <-panicked
	require.NotNil(t, p, "expected a panic from the foreign goroutine")
	assert.Contains(t, p.(string), "not safe for concurrent use")
}

func TestGuardIndependentInstances(t *testing.T) {
	// Two guards pinned on different goroutines do not interfere.
	var a, b Guard
	a.Check()

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NotPanics(t, func() { b.Check() })
	}()
	<-done

	assert.NotPanics(t, func() { a.Check() })
}

func TestGoroutineID(t *testing.T) {
	id := goroutineID()
	require.NotZero(t, id)
	assert.Equal(t, id, goroutineID())

	other := make(chan uint64, 1)
	go func() { other <- goroutineID() }()
	assert.NotEqual(t, id, <-other)
}
