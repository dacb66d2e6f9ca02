package busclient

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
)

// Guard enforces that every guarded operation runs on the goroutine
// that first touched the client. The underlying connection is treated
// as single-threaded state; a violation is a caller bug, so Check
// panics instead of returning an error.
type Guard struct {
	mu     sync.Mutex
	pinned uint64
	set    bool
}

// Check pins the calling goroutine on first use and panics if a later
// guarded call arrives from a different goroutine.
func (g *Guard) Check() {
	id := goroutineID()

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.set {
		g.pinned = id
		g.set = true
		return
	}
	if g.pinned != id {
		panic(fmt.Sprintf(
			"woodchuck: client used from goroutine %d but pinned to goroutine %d; "+
				"the connection is not safe for concurrent use", id, g.pinned))
	}
}

// goroutineID extracts the current goroutine's id from the stack
// header. The header format ("goroutine N [...]") is stable across Go
// releases.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
