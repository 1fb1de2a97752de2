package session

import (
	"context"
	"sync"
)

// keyedLock hands out one mutual-exclusion slot per session id. Entries are
// reference counted and dropped once no goroutine holds or waits on them.
type keyedLock struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{slots: make(map[string]*slot)}
}

// acquire blocks until the slot for id is free or ctx is done. The returned
// release func must be called exactly once.
func (k *keyedLock) acquire(ctx context.Context, id string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	s, ok := k.slots[id]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		k.slots[id] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
		return func() {
			<-s.sem
			k.unref(id, s)
		}, nil
	case <-ctx.Done():
		k.unref(id, s)
		return nil, ctx.Err()
	}
}

// unref must run after the slot is released, never while it is held.
func (k *keyedLock) unref(id string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs <= 0 {
		delete(k.slots, id)
	}
}

// size reports the number of live slots.
func (k *keyedLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
