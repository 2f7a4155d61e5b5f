package live

import "slices"

// ObservableList is a listener-driven read view over a backing slice owned
// by some parent entity.
//
// Every mutation goes through the list, updates the backing slice in place,
// and, while somebody is subscribed, re-maps the entire slice and delivers
// it to every subscriber. Subscribers always see the full current state
// rather than deltas.
type ObservableList[T comparable, V any] struct {
	backing *[]T
	mapFn   func(T) V
	subs    []*listSub[V]
}

type listSub[V any] struct {
	fn      func([]V)
	removed bool
}

// NewObservableList wraps backing. The list does not copy the slice: later
// mutations through the list are visible to the owner and vice versa.
func NewObservableList[T comparable, V any](backing *[]T, mapFn func(T) V) *ObservableList[T, V] {
	if backing == nil {
		backing = new([]T)
	}
	return &ObservableList[T, V]{backing: backing, mapFn: mapFn}
}

// Len returns the length of the backing slice.
func (l *ObservableList[T, V]) Len() int { return len(*l.backing) }

// Items returns a copy of the backing slice.
func (l *ObservableList[T, V]) Items() []T { return slices.Clone(*l.backing) }

// Contains reports whether item is in the backing slice.
func (l *ObservableList[T, V]) Contains(item T) bool {
	return slices.Contains(*l.backing, item)
}

// HasSubscribers reports whether anybody watches the list.
func (l *ObservableList[T, V]) HasSubscribers() bool { return len(l.subs) > 0 }

// Subscribers returns the subscriber count.
func (l *ObservableList[T, V]) Subscribers() int { return len(l.subs) }

// Push appends item.
func (l *ObservableList[T, V]) Push(item T) {
	*l.backing = append(*l.backing, item)
	l.notify()
}

// PushOrdered inserts item at its sorted position according to cmp, after
// any elements that compare equal. The backing slice must already be sorted
// by cmp.
func (l *ObservableList[T, V]) PushOrdered(item T, cmp func(a, b T) int) {
	s := *l.backing
	i, _ := slices.BinarySearchFunc(s, item, func(e, target T) int {
		if c := cmp(e, target); c != 0 {
			return c
		}
		// Equal elements sort before target so that insertion is stable.
		return -1
	})
	*l.backing = slices.Insert(s, i, item)
	l.notify()
}

// Remove deletes the first occurrence of item. Reports whether it was found.
func (l *ObservableList[T, V]) Remove(item T) bool {
	i := slices.Index(*l.backing, item)
	if i < 0 {
		return false
	}
	*l.backing = slices.Delete(*l.backing, i, i+1)
	l.notify()
	return true
}

// Replace swaps the backing contents for items.
func (l *ObservableList[T, V]) Replace(items []T) {
	*l.backing = append((*l.backing)[:0:0], items...)
	l.notify()
}

// Refresh re-delivers the current view, for owners whose mapped values
// depend on state outside the backing slice.
func (l *ObservableList[T, V]) Refresh() {
	l.notify()
}

// Subscribe registers fn and delivers the current view immediately, even
// when the backing slice is empty. The returned function unsubscribes.
func (l *ObservableList[T, V]) Subscribe(fn func([]V)) (unsubscribe func()) {
	sub := &listSub[V]{fn: fn}
	l.subs = append(l.subs, sub)
	fn(l.view())
	return func() {
		if sub.removed {
			return
		}
		sub.removed = true
		next := make([]*listSub[V], 0, len(l.subs))
		for _, s := range l.subs {
			if s != sub {
				next = append(next, s)
			}
		}
		l.subs = next
	}
}

func (l *ObservableList[T, V]) notify() {
	if !l.HasSubscribers() {
		return
	}
	view := l.view()
	for _, sub := range l.subs {
		if sub.removed {
			continue
		}
		sub.fn(view)
	}
}

func (l *ObservableList[T, V]) view() []V {
	out := make([]V, len(*l.backing))
	for i, item := range *l.backing {
		out[i] = l.mapFn(item)
	}
	return out
}
