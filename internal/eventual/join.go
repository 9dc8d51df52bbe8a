package eventual

import "context"

// Pair is the output of Join2.
type Pair[A, B any] struct {
	A A
	B B
}

// Join2 produces an eventual that fires only once both a and b have
// produced at least one value, and thereafter on any change to either,
// delivering the latest snapshot of each (spec §4.1 join).
func Join2[A, B any](ctx context.Context, a *Eventual[A], b *Eventual[B]) *Eventual[Pair[A, B]] {
	out := New[Pair[A, B]]()
	fire := func() {
		av, aok := a.Latest()
		bv, bok := b.Latest()
		if aok && bok {
			out.Push(Pair[A, B]{A: av, B: bv})
		}
	}
	a.Subscribe(ctx, fire)
	b.Subscribe(ctx, fire)
	return out
}

// Nonary9 is the snapshot delivered by Join9, used by the agent's top-level
// reconciliation pipe.
type Nonary9[A, B, C, D, E, F, G, H, I any] struct {
	A A
	B B
	C C
	D D
	E E
	F F
	G G
	H H
	I I
}

// Join9 joins nine eventuals into one, with the same
// fire-once-all-present, thereafter-on-any-change semantics as Join2.
func Join9[A, B, C, D, E, F, G, H, I any](
	ctx context.Context,
	ea *Eventual[A], eb *Eventual[B], ec *Eventual[C], ed *Eventual[D],
	ee *Eventual[E], ef *Eventual[F], eg *Eventual[G], eh *Eventual[H], ei *Eventual[I],
) *Eventual[Nonary9[A, B, C, D, E, F, G, H, I]] {
	out := New[Nonary9[A, B, C, D, E, F, G, H, I]]()
	fire := func() {
		av, aok := ea.Latest()
		bv, bok := eb.Latest()
		cv, cok := ec.Latest()
		dv, dok := ed.Latest()
		ev, eok := ee.Latest()
		fv, fok := ef.Latest()
		gv, gok := eg.Latest()
		hv, hok := eh.Latest()
		iv, iok := ei.Latest()
		if aok && bok && cok && dok && eok && fok && gok && hok && iok {
			out.Push(Nonary9[A, B, C, D, E, F, G, H, I]{
				A: av, B: bv, C: cv, D: dv, E: ev, F: fv, G: gv, H: hv, I: iv,
			})
		}
	}
	ea.Subscribe(ctx, fire)
	eb.Subscribe(ctx, fire)
	ec.Subscribe(ctx, fire)
	ed.Subscribe(ctx, fire)
	ee.Subscribe(ctx, fire)
	ef.Subscribe(ctx, fire)
	eg.Subscribe(ctx, fire)
	eh.Subscribe(ctx, fire)
	ei.Subscribe(ctx, fire)
	return out
}
