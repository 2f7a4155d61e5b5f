package live

// Arena reference-counts values by key. A value is created on the first
// Acquire and disposed eagerly when its last handle is released, so derived
// views exist only while somebody holds them.
type Arena[K comparable, V any] struct {
	entries map[K]*arenaEntry[V]
	dispose func(K, V)
}

type arenaEntry[V any] struct {
	value V
	refs  int
}

// NewArena creates an empty arena. dispose, if non-nil, runs when a value's
// count drops to zero.
func NewArena[K comparable, V any](dispose func(K, V)) *Arena[K, V] {
	return &Arena[K, V]{entries: make(map[K]*arenaEntry[V]), dispose: dispose}
}

// Acquire returns the value for key, creating it with create when absent,
// and a release handle. Release is idempotent.
func (a *Arena[K, V]) Acquire(key K, create func() V) (V, func()) {
	e, ok := a.entries[key]
	if !ok {
		e = &arenaEntry[V]{value: create()}
		a.entries[key] = e
	}
	e.refs++

	released := false
	return e.value, func() {
		if released {
			return
		}
		released = true
		a.release(key, e)
	}
}

// Lookup returns the live value for key.
func (a *Arena[K, V]) Lookup(key K) (V, bool) {
	e, ok := a.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Refs returns the handle count for key.
func (a *Arena[K, V]) Refs(key K) int {
	if e, ok := a.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Len returns the number of live values.
func (a *Arena[K, V]) Len() int { return len(a.entries) }

// Each calls fn for every live value whose key satisfies match.
func (a *Arena[K, V]) Each(match func(K) bool, fn func(K, V)) {
	for k, e := range a.entries {
		if match(k) {
			fn(k, e.value)
		}
	}
}

func (a *Arena[K, V]) release(key K, e *arenaEntry[V]) {
	e.refs--
	if e.refs > 0 {
		return
	}
	// A newer entry may have replaced e after an earlier disposal.
	if cur, ok := a.entries[key]; ok && cur == e {
		delete(a.entries, key)
	}
	if a.dispose != nil {
		a.dispose(key, e.value)
	}
}
