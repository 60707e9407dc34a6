package scheduler

import (
	"sync"
	"time"
)

// Skip reasons returned by RunGuard.TryAcquire.
const (
	SkipAlreadyRunning = "already_running"
	SkipCooldown       = "cooldown"
)

// RunGuard throttles passive trigger invocations within one process. It is
// a best-effort local guard, not a distributed lock: two separate processes
// can still run the scan at the same instant, and rely on the store's
// conditional update for correctness.
type RunGuard struct {
	mu        sync.Mutex
	running   bool
	lastRunAt time.Time
	cooldown  time.Duration
}

func NewRunGuard(cooldown time.Duration) *RunGuard {
	return &RunGuard{cooldown: cooldown}
}

// TryAcquire attempts to claim the guard. It fails while a run is in flight
// in this process, or while the last completed run is within the cooldown
// window. On failure the reason is one of the Skip constants.
func (g *RunGuard) TryAcquire(now time.Time) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return false, SkipAlreadyRunning
	}
	if !g.lastRunAt.IsZero() && now.Sub(g.lastRunAt) < g.cooldown {
		return false, SkipCooldown
	}

	g.running = true
	return true, ""
}

// Release marks the run complete and starts the cooldown window from
// completedAt. Must be called exactly once per successful TryAcquire.
func (g *RunGuard) Release(completedAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.running = false
	if completedAt.After(g.lastRunAt) {
		g.lastRunAt = completedAt
	}
}

// LastRunAt returns the completion time of the most recent run, zero if the
// guard has never been released.
func (g *RunGuard) LastRunAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastRunAt
}
