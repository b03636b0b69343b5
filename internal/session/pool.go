package session

import (
	"context"
	"sync"
)

// caseLocks serializes turn handling per case. The store's compare-and-swap
// still protects against external writers; the lock just keeps one process
// from burning version conflicts against itself.
type caseLocks struct {
	mu    sync.Mutex
	locks map[string]*caseLock
}

type caseLock struct {
	mu   sync.Mutex
	refs int
}

func newCaseLocks() *caseLocks {
	return &caseLocks{locks: make(map[string]*caseLock)}
}

// lock acquires the per-case mutex and returns its release func.
func (cl *caseLocks) lock(caseID string) func() {
	cl.mu.Lock()
	l, ok := cl.locks[caseID]
	if !ok {
		l = &caseLock{}
		cl.locks[caseID] = l
	}
	l.refs++
	cl.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		cl.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(cl.locks, caseID)
		}
		cl.mu.Unlock()
	}
}

// turnPool bounds how many turns the service processes at once, independent
// of the collaborator scheduler's model-call cap.
type turnPool struct {
	slots chan struct{}
}

func newTurnPool(size int) *turnPool {
	if size <= 0 {
		size = 16
	}
	return &turnPool{slots: make(chan struct{}, size)}
}

func (p *turnPool) acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *turnPool) release() {
	<-p.slots
}
