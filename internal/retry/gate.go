package retry

import (
	"sync/atomic"
	"time"
)

// BusyRetryAfter is the suggested delay handed to callers rejected by a gate.
const BusyRetryAfter = 2 * time.Second

// Gate is a per-service single-flight admission lock. While one retry
// sequence holds it, every other caller is rejected immediately instead of
// queuing. Each upstream service gets its own Gate.
type Gate struct {
	busy atomic.Bool
}

func NewGate() *Gate {
	return &Gate{}
}

func (g *Gate) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *Gate) Release() {
	g.busy.Store(false)
}
