package service

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// ConvenePool bounds how many decision sessions are synthesised at once
// using a weighted semaphore. The pool gates whole sessions only; advisors
// inside one session always fan out fully, so a burst of convene calls
// cannot multiply goroutines past the configured ceiling.
type ConvenePool struct {
	sem *semaphore.Weighted
}

// NewConvenePool creates a pool that allows at most limit concurrent
// convene sessions.
func NewConvenePool(limit int) *ConvenePool {
	if limit < 1 {
		limit = 1
	}
	return &ConvenePool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot.
// Blocks if all slots are busy. Returns ctx.Err() if the context is
// cancelled while waiting for a slot. If the pool is nil, fn is executed
// directly without concurrency control.
func (p *ConvenePool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
