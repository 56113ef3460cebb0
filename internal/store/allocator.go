package store

import "sync/atomic"

// idAllocator hands out event ids. It is seeded from the highest id ever
// committed, so ids are strictly increasing across restarts.
//
// An id taken by a write that later fails is not returned to the pool;
// gaps are allowed, reuse is not.
type idAllocator struct {
	last atomic.Int64
}

func newIDAllocator(seed int64) *idAllocator {
	a := &idAllocator{}
	a.last.Store(seed)
	return a
}

// Next returns the next id.
func (a *idAllocator) Next() int64 {
	return a.last.Add(1)
}

// Current returns the last id handed out without advancing.
func (a *idAllocator) Current() int64 {
	return a.last.Load()
}
