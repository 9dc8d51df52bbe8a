// Package workerpool provides the bounded-concurrency queue the deployment
// reconciler uses to apply ensure/remove actions (spec §4.7, §5:
// "concurrency limit 10 ... onIdle barrier at end of each reconciliation").
package workerpool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent execution of submitted work to a fixed
// concurrency. Submit blocks until a slot is free; Wait blocks until every
// submitted task has returned (the onIdle barrier).
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// New returns a Pool bounded to concurrency simultaneous tasks.
func New(concurrency int64) *Pool {
	return &Pool{sem: semaphore.NewWeighted(concurrency)}
}

// Submit runs fn once a slot is available. It does not block the caller
// waiting for fn to complete — callers that need that use Wait. An error
// acquiring the semaphore (context cancellation) is recorded and returned
// from Wait, matching "ensure is fire-and-forget within the cycle."
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.recordErr(err)
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		if err := fn(ctx); err != nil {
			p.recordErr(err)
		}
	}()
}

func (p *Pool) recordErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, err)
}

// Wait blocks until every task submitted via Submit has returned, and
// returns the accumulated errors from fire-and-forget submissions (if any).
func (p *Pool) Wait() []error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs
}
