package service

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// RunPool bounds concurrent executions per (actor, project) pair. A slot is
// acquired before an execution's first side effect and released on every
// exit path.
type RunPool struct {
	mu    sync.Mutex
	limit int64
	sems  map[string]*semaphore.Weighted
}

// NewRunPool creates a pool allowing at most limit concurrent executions per
// (actor, project) key.
func NewRunPool(limit int) *RunPool {
	if limit < 1 {
		limit = 1
	}
	return &RunPool{
		limit: int64(limit),
		sems:  make(map[string]*semaphore.Weighted),
	}
}

// Acquire blocks until a slot for the pair is free or ctx is cancelled. The
// returned release function is idempotent.
func (p *RunPool) Acquire(ctx context.Context, actorID, projectID string) (release func(), err error) {
	sem := p.semFor(actorID + ":" + projectID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() { sem.Release(1) })
	}, nil
}

func (p *RunPool) semFor(key string) *semaphore.Weighted {
	p.mu.Lock()
	defer p.mu.Unlock()
	sem, ok := p.sems[key]
	if !ok {
		sem = semaphore.NewWeighted(p.limit)
		p.sems[key] = sem
	}
	return sem
}
