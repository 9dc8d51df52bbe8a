// Package multinetwork provides the parametric multi-network fan-out
// abstraction (spec §4.2): the same per-network logic run independently,
// in parallel, across every protocol network the agent manages, with
// results aligned by network identity.
package multinetwork

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-set/v3"
	"golang.org/x/sync/errgroup"
)

// MultiNetworks holds one item per protocol network, keyed by an identity
// string extracted from each item. Construction fails if any two items
// share an identity — a configuration error, since NetworkAndOperator pairs
// must agree on their networkIdentifier.
type MultiNetworks[T any] struct {
	items    map[string]T
	identity func(T) string
}

// New builds a MultiNetworks over items, validating that every item's
// identity (as produced by identity) is distinct.
func New[T any](items []T, identity func(T) string) (*MultiNetworks[T], error) {
	m := &MultiNetworks[T]{items: make(map[string]T, len(items)), identity: identity}
	seen := set.New[string](len(items))
	for _, item := range items {
		id := identity(item)
		if !seen.Insert(id) {
			return nil, fmt.Errorf("multinetwork: duplicate network identifier %q", id)
		}
		m.items[id] = item
	}
	return m, nil
}

// IDs returns the set of network identities this MultiNetworks was built
// over.
func (m *MultiNetworks[T]) IDs() *set.Set[string] {
	ids := set.New[string](len(m.items))
	for id := range m.items {
		ids.Insert(id)
	}
	return ids
}

// Items returns the identity-keyed item map. Callers must treat it as
// read-only.
func (m *MultiNetworks[T]) Items() map[string]T {
	return m.items
}

// Map runs f(item) for every item concurrently and collects the results
// keyed by identity. Any single f rejecting aborts the whole call; errors
// from multiple items are aggregated via go-multierror so callers can see
// every network's failure, not just the first one observed.
func Map[T, R any](ctx context.Context, m *MultiNetworks[T], f func(context.Context, T) (R, error)) (map[string]R, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]R, len(m.items))
		errs    *multierror.Error
	)
	g, gctx := errgroup.WithContext(ctx)
	for id, item := range m.items {
		id, item := id, item
		g.Go(func() error {
			r, err := f(gctx, item)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("network %q: %w", id, err))
				return nil
			}
			results[id] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if errs.ErrorOrNil() != nil {
		return nil, errs
	}
	return results, nil
}

// Zip requires both a and b to contain every identity of m; a missing key
// on either side is a fatal alignment error, not a runtime condition to
// recover from. Keys outside m's identity set are not checked and do not
// appear in the result (spec §4.2, §9 design note: "zip is a strict
// inner join; mismatched keys are bugs").
func Zip[T, A, B any](m *MultiNetworks[T], a map[string]A, b map[string]B) (map[string]Pair[A, B], error) {
	out := make(map[string]Pair[A, B], len(m.items))
	for id := range m.items {
		av, ok := a[id]
		if !ok {
			return nil, fmt.Errorf("multinetwork: zip missing network %q in first input", id)
		}
		bv, ok := b[id]
		if !ok {
			return nil, fmt.Errorf("multinetwork: zip missing network %q in second input", id)
		}
		out[id] = Pair[A, B]{A: av, B: bv}
	}
	return out, nil
}

// Pair is the output element of Zip.
type Pair[A, B any] struct {
	A A
	B B
}

// Zip4 is Zip generalized to four inputs, with the same alignment rules.
func Zip4[T, A, B, C, D any](m *MultiNetworks[T], a map[string]A, b map[string]B, c map[string]C, d map[string]D) (map[string]Quad[A, B, C, D], error) {
	out := make(map[string]Quad[A, B, C, D], len(m.items))
	for id := range m.items {
		av, ok := a[id]
		if !ok {
			return nil, fmt.Errorf("multinetwork: zip4 missing network %q in input 1", id)
		}
		bv, ok := b[id]
		if !ok {
			return nil, fmt.Errorf("multinetwork: zip4 missing network %q in input 2", id)
		}
		cv, ok := c[id]
		if !ok {
			return nil, fmt.Errorf("multinetwork: zip4 missing network %q in input 3", id)
		}
		dv, ok := d[id]
		if !ok {
			return nil, fmt.Errorf("multinetwork: zip4 missing network %q in input 4", id)
		}
		out[id] = Quad[A, B, C, D]{A: av, B: bv, C: cv, D: dv}
	}
	return out, nil
}

// Quad is the output element of Zip4.
type Quad[A, B, C, D any] struct {
	A A
	B B
	C C
	D D
}

// MapNetworkMapped joins input with m's items by identity and applies f to
// each pair. An id present in input but absent from m (or vice versa) is a
// fatal alignment error.
func MapNetworkMapped[T, X, R any](m *MultiNetworks[T], input map[string]X, f func(T, X) R) (map[string]R, error) {
	out := make(map[string]R, len(m.items))
	for id, item := range m.items {
		x, ok := input[id]
		if !ok {
			return nil, fmt.Errorf("multinetwork: mapNetworkMapped missing network %q in input", id)
		}
		out[id] = f(item, x)
	}
	for id := range input {
		if _, ok := m.items[id]; !ok {
			return nil, fmt.Errorf("multinetwork: mapNetworkMapped input has unknown network %q", id)
		}
	}
	return out, nil
}
