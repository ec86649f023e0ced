// Package monitor watches open positions: one task closes them when price
// breaches the stop or target, another ratchets the protective stop as profit
// accrues. Both serialize per position through a shared lock registry so a
// close and an adjustment can never interleave on the same exposure.
package monitor

import "sync"

// LockRegistry hands out one mutex per position ID.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.Mutex)}
}

// For returns the mutex guarding the given position.
func (r *LockRegistry) For(positionID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[positionID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[positionID] = l
	}
	return l
}
