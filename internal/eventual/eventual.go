// Package eventual implements the push-pull cell that is the spine of the
// indexer agent's reconciliation engine: a small observable type holding
// the latest successfully derived value, a list of downstream subscribers,
// and a per-cell serialized, coalescing executor. An upstream failure is
// quarantined at tryMap and never observed downstream.
package eventual

import (
	"context"
	"sync"
	"time"
)

// Eventual holds the latest successfully computed value of an async
// derivation and notifies subscribers, coalesced, whenever that value
// changes.
type Eventual[T any] struct {
	mu       sync.RWMutex
	latest   T
	hasValue bool

	subMu       sync.Mutex
	subscribers []chan struct{}
}

// New returns an Eventual with no value yet. Use Push to drive it directly
// (the pattern used by root eventuals fed from outside the graph, e.g. in
// tests), or build it from a timer/derivation with the package's
// combinators.
func New[T any]() *Eventual[T] {
	return &Eventual[T]{}
}

// Latest returns the most recently pushed value and whether one has arrived
// yet. The returned value is an immutable snapshot; callers never observe a
// value that is being concurrently mutated by the eventual itself.
func (e *Eventual[T]) Latest() (T, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest, e.hasValue
}

// Push sets the eventual's latest value and notifies subscribers. It is the
// only way an eventual's value changes; derived eventuals call it from
// their own goroutines in response to upstream changes.
func (e *Eventual[T]) Push(v T) {
	e.mu.Lock()
	e.latest = v
	e.hasValue = true
	e.mu.Unlock()
	e.notify()
}

func (e *Eventual[T]) notify() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// a notify is already pending for this subscriber; the pending
			// one will observe the latest value when it runs, so this one
			// is safe to drop (spec §4.1 pipe coalescing).
		}
	}
}

// Subscribe registers fn to run, serialized and coalesced, whenever the
// eventual's value changes. If N changes arrive while fn is still running
// on an earlier change, fn runs at most once more after it returns, against
// the latest value at that time; intermediate changes are dropped. The
// consumer goroutine stops when ctx is done.
func (e *Eventual[T]) Subscribe(ctx context.Context, fn func()) {
	ch := make(chan struct{}, 1)
	e.subMu.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.subMu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				fn()
			}
		}
	}()
}

// Timer returns an Eventual[time.Time] that fires immediately and then on a
// steady cadence of period, until ctx is done.
func Timer(ctx context.Context, period time.Duration) *Eventual[time.Time] {
	out := New[time.Time]()
	go func() {
		out.Push(time.Now())
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				out.Push(t)
			}
		}
	}()
	return out
}

// TryMap derives a new eventual from src: whenever src changes, f is
// applied to the new value. If f returns an error, onError is invoked and
// the derived eventual retains its previous value — the failed attempt is
// never observed downstream. f is never invoked concurrently with itself.
func TryMap[T, R any](ctx context.Context, src *Eventual[T], f func(context.Context, T) (R, error), onError func(error)) *Eventual[R] {
	out := New[R]()
	src.Subscribe(ctx, func() {
		v, ok := src.Latest()
		if !ok {
			return
		}
		r, err := f(ctx, v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		out.Push(r)
	})
	return out
}

// Map derives a new eventual from src by applying an infallible function to
// every new value.
func Map[T, R any](ctx context.Context, src *Eventual[T], f func(T) R) *Eventual[R] {
	return TryMap(ctx, src, func(_ context.Context, v T) (R, error) {
		return f(v), nil
	}, nil)
}

// Poll is sugar for Timer+TryMap: it calls fetch on a steady cadence and
// pushes the result, quarantining errors via onError and retaining the
// previous value (the shape used by nearly every leaf eventual in the
// agent's wiring: indexingRules, activeDeployments, activeAllocations, ...).
func Poll[T any](ctx context.Context, period time.Duration, fetch func(context.Context) (T, error), onError func(error)) *Eventual[T] {
	tick := Timer(ctx, period)
	return TryMap(ctx, tick, func(ctx context.Context, _ time.Time) (T, error) {
		return fetch(ctx)
	}, onError)
}

// Pipe registers f as a terminal consumer of src, with the same
// serialized-and-coalesced semantics as Subscribe: a new value arriving
// while f is running is queued, and only the latest pending value runs
// next.
func Pipe[T any](ctx context.Context, src *Eventual[T], f func(context.Context, T)) {
	src.Subscribe(ctx, func() {
		v, ok := src.Latest()
		if !ok {
			return
		}
		f(ctx, v)
	})
}

// Throttle derives an eventual that forwards src's latest value at most once
// per period, independent of how often src itself fires. This gives a join
// built from faster leaf eventuals its own independent timer cadence (spec
// §4.5 period table; §5 "one background worker per independent timer plus a
// single serialized actor for the top-level reconciliation pipe") instead of
// inheriting the cadence of its fastest transitive leaf.
//
// The first value src produces is forwarded immediately. A value arriving
// while less than period has elapsed since the last forwarded value is
// dropped, not queued; a periodic tick re-checks src's latest value once the
// throttle window has elapsed, so a change that arrived mid-window is not
// lost, only delayed to the next tick.
func Throttle[T any](ctx context.Context, src *Eventual[T], period time.Duration) *Eventual[T] {
	out := New[T]()

	var mu sync.Mutex
	var lastFired time.Time

	check := func() {
		v, ok := src.Latest()
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		if !lastFired.IsZero() && now.Sub(lastFired) < period {
			return
		}
		lastFired = now
		out.Push(v)
	}

	src.Subscribe(ctx, check)

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()

	return out
}
