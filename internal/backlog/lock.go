package backlog

import (
	"sync"

	"github.com/gofrs/flock"
)

// lockRegistry is the process-level registry the closure-scoped lock
// table of the original source is redesigned into (spec §9 "Closure-
// scoped lock table -> process-level registry"). It coordinates
// re-entrant acquisition within one process; cross-process exclusion is
// provided by gofrs/flock's LOCK_EX | LOCK_NB flock(2) wrapper.
type lockRegistry struct {
	mu    sync.Mutex
	held  map[string]*heldLock
}

type heldLock struct {
	fl    *flock.Flock
	count int
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{held: make(map[string]*heldLock)}
}

// acquireResult reports whether the lock was newly acquired, already held
// by this process (a no-op re-entrant acquire, spec §4.E "Locking
// discipline"), or unavailable (held by another process, or flock error).
type acquireResult int

const (
	acquireFailed acquireResult = iota
	acquireNew
	acquireAlreadyHeld
)

// acquire takes the exclusive advisory lock on path's ".lock" sidecar.
func (r *lockRegistry) acquire(path string) acquireResult {
	lockPath := path + ".lock"

	r.mu.Lock()
	if hl, ok := r.held[lockPath]; ok {
		hl.count++
		r.mu.Unlock()
		return acquireAlreadyHeld
	}
	r.mu.Unlock()

	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil || !ok {
		return acquireFailed
	}

	r.mu.Lock()
	r.held[lockPath] = &heldLock{fl: fl, count: 1}
	r.mu.Unlock()
	return acquireNew
}

// release unlocks path's sidecar, closing the descriptor and unlinking
// the .lock file once the last re-entrant holder releases it.
func (r *lockRegistry) release(path string) {
	lockPath := path + ".lock"

	r.mu.Lock()
	hl, ok := r.held[lockPath]
	if !ok {
		r.mu.Unlock()
		return
	}
	hl.count--
	if hl.count > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.held, lockPath)
	r.mu.Unlock()

	hl.fl.Unlock()
	removeQuiet(lockPath)
}
