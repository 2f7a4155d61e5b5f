package replica

import (
	"log/slog"
	"slices"

	"github.com/drewdru/ponyTown-sub010/internal/live"
)

// children attaches records of one child type (characters, auths) to their
// owning account.
//
// INVARIANT: every mirrored child is either in attached (and in exactly one
// account's backing slice) or in the unassigned queue, never both.
type children[C any, V any] struct {
	name      string
	id        func(*C) string
	parent    func(*C) string
	compare   func(a, b *C) int
	clean     func(*C) V
	hasParent func(accountID string) bool
	logger    *slog.Logger

	// nodes holds the ordered children of each account. An entry exists
	// while the account has children or a live relation list.
	nodes map[string]*[]*C
	lists *live.Arena[string, *live.ObservableList[*C, V]]

	attached map[string]string // child id -> account id

	unassigned []*C
	queued     map[string]struct{}
}

func newChildren[C any, V any](
	name string,
	id, parent func(*C) string,
	compare func(a, b *C) int,
	clean func(*C) V,
	hasParent func(string) bool,
	logger *slog.Logger,
) *children[C, V] {
	c := &children[C, V]{
		name:      name,
		id:        id,
		parent:    parent,
		compare:   compare,
		clean:     clean,
		hasParent: hasParent,
		logger:    logger.With("relation", name),
		nodes:     make(map[string]*[]*C),
		attached:  make(map[string]string),
		queued:    make(map[string]struct{}),
	}
	c.lists = live.NewArena(func(accountID string, _ *live.ObservableList[*C, V]) {
		c.dropEmpty(accountID)
	})
	return c
}

// added places a new child.
func (c *children[C, V]) added(ch *C) {
	c.place(ch)
}

// updated re-places a changed child. A child whose account changed is
// detached from the old account first.
func (c *children[C, V]) updated(_, cur *C) {
	id := c.id(cur)
	next := c.parent(cur)
	if prev, ok := c.attached[id]; ok {
		if prev == next {
			c.reorder(prev, cur)
			return
		}
		c.detach(prev, cur)
	}
	c.place(cur)
}

// deleted forgets a child wherever it is.
func (c *children[C, V]) deleted(ch *C) {
	id := c.id(ch)
	if prev, ok := c.attached[id]; ok {
		c.detach(prev, ch)
		return
	}
	c.dequeue(id)
}

// sweep attaches every queued child whose account has appeared.
func (c *children[C, V]) sweep() {
	if len(c.unassigned) == 0 {
		return
	}
	remaining := c.unassigned[:0]
	attached := 0
	for _, ch := range c.unassigned {
		accountID := c.parent(ch)
		if accountID != "" && c.hasParent(accountID) {
			delete(c.queued, c.id(ch))
			c.attach(accountID, ch)
			attached++
			continue
		}
		remaining = append(remaining, ch)
	}
	clear(c.unassigned[len(remaining):])
	c.unassigned = remaining
	if attached > 0 {
		c.logger.Debug("attached unassigned children", "count", attached, "remaining", len(remaining))
	}
}

// parentDeleted moves every child of accountID to the unassigned queue.
func (c *children[C, V]) parentDeleted(accountID string) {
	b, ok := c.nodes[accountID]
	if !ok {
		return
	}
	orphans := slices.Clone(*b)
	if list, ok := c.lists.Lookup(accountID); ok {
		list.Replace(nil)
	} else {
		*b = nil
	}
	for _, ch := range orphans {
		delete(c.attached, c.id(ch))
		c.enqueue(ch)
	}
	c.dropEmpty(accountID)
}

// subscribe watches the children of accountID. The first subscriber
// creates the list from the current backing slice.
func (c *children[C, V]) subscribe(accountID string, fn func([]V)) (unsubscribe func()) {
	list, release := c.lists.Acquire(accountID, func() *live.ObservableList[*C, V] {
		return live.NewObservableList(c.backing(accountID), c.clean)
	})
	unsub := list.Subscribe(fn)
	return func() {
		unsub()
		release()
	}
}

// of returns the children attached to accountID, in order.
func (c *children[C, V]) of(accountID string) []*C {
	if b, ok := c.nodes[accountID]; ok {
		return slices.Clone(*b)
	}
	return nil
}

// parentOf returns the account a child is attached to.
func (c *children[C, V]) parentOf(childID string) (string, bool) {
	accountID, ok := c.attached[childID]
	return accountID, ok
}

// pending returns the ids of unassigned children, in queue order.
func (c *children[C, V]) pending() []string {
	out := make([]string, len(c.unassigned))
	for i, ch := range c.unassigned {
		out[i] = c.id(ch)
	}
	return out
}

func (c *children[C, V]) place(ch *C) {
	accountID := c.parent(ch)
	if accountID != "" && c.hasParent(accountID) {
		c.dequeue(c.id(ch))
		c.attach(accountID, ch)
		return
	}
	c.enqueue(ch)
}

func (c *children[C, V]) attach(accountID string, ch *C) {
	c.attached[c.id(ch)] = accountID
	c.listFor(accountID).PushOrdered(ch, c.compare)
}

func (c *children[C, V]) detach(accountID string, ch *C) {
	delete(c.attached, c.id(ch))
	c.listFor(accountID).Remove(ch)
	c.dropEmpty(accountID)
}

// reorder moves ch to its sorted position after a change that may affect
// ordering. Subscribers are notified once.
func (c *children[C, V]) reorder(accountID string, ch *C) {
	b := c.backing(accountID)
	if i := slices.Index(*b, ch); i >= 0 {
		*b = slices.Delete(*b, i, i+1)
	}
	c.listFor(accountID).PushOrdered(ch, c.compare)
}

func (c *children[C, V]) enqueue(ch *C) {
	id := c.id(ch)
	if _, ok := c.queued[id]; ok {
		return
	}
	c.queued[id] = struct{}{}
	c.unassigned = append(c.unassigned, ch)
}

func (c *children[C, V]) dequeue(id string) {
	if _, ok := c.queued[id]; !ok {
		return
	}
	delete(c.queued, id)
	c.unassigned = slices.DeleteFunc(c.unassigned, func(ch *C) bool { return c.id(ch) == id })
}

// listFor returns the live relation list of accountID, or a throwaway list
// over the same backing slice when nobody subscribes.
func (c *children[C, V]) listFor(accountID string) *live.ObservableList[*C, V] {
	if list, ok := c.lists.Lookup(accountID); ok {
		return list
	}
	return live.NewObservableList(c.backing(accountID), c.clean)
}

func (c *children[C, V]) backing(accountID string) *[]*C {
	b, ok := c.nodes[accountID]
	if !ok {
		b = new([]*C)
		c.nodes[accountID] = b
	}
	return b
}

func (c *children[C, V]) dropEmpty(accountID string) {
	b, ok := c.nodes[accountID]
	if !ok || len(*b) > 0 || c.lists.Refs(accountID) > 0 {
		return
	}
	delete(c.nodes, accountID)
}
