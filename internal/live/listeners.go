package live

// Listener receives cleaned snapshots for one id. A nil snapshot is the
// delete sentinel.
type Listener[S any] func(snapshot *S)

type registration[S any] struct {
	fn      Listener[S]
	removed bool
}

// registry maps item ids to their ordered listener registrations.
type registry[S any] struct {
	byID map[string][]*registration[S]
}

func newRegistry[S any]() *registry[S] {
	return &registry[S]{byID: make(map[string][]*registration[S])}
}

// add appends a registration for id and returns it.
func (r *registry[S]) add(id string, fn Listener[S]) *registration[S] {
	reg := &registration[S]{fn: fn}
	r.byID[id] = append(r.byID[id], reg)
	return reg
}

// remove drops reg from id. The removed flag stops an in-flight fan-out
// from calling it after it unsubscribed.
func (r *registry[S]) remove(id string, reg *registration[S]) {
	if reg.removed {
		return
	}
	reg.removed = true

	regs := r.byID[id]
	for i, candidate := range regs {
		if candidate == reg {
			// Copy instead of shifting in place: a fan-out may be iterating
			// the old backing array.
			next := make([]*registration[S], 0, len(regs)-1)
			next = append(next, regs[:i]...)
			next = append(next, regs[i+1:]...)
			if len(next) == 0 {
				delete(r.byID, id)
			} else {
				r.byID[id] = next
			}
			return
		}
	}
}

// snapshot returns the registrations for id as of now. Registrations added
// later are not part of the returned slice.
func (r *registry[S]) snapshot(id string) []*registration[S] {
	return r.byID[id]
}

// has reports whether anybody listens to id.
func (r *registry[S]) has(id string) bool {
	return len(r.byID[id]) > 0
}

// count returns the number of listeners on id.
func (r *registry[S]) count(id string) int {
	return len(r.byID[id])
}
