package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config describes how one record type is mirrored.
//
// ID and Stamp are required. Every other field is optional.
type Config[T any, S any] struct {
	// Name labels logs and metrics.
	Name string

	// ID returns the normalized id of a fixed item.
	ID func(item *T) string

	// Stamp returns the item's updatedAt.
	Stamp func(item *T) time.Time

	// Clean returns the snapshot sent to listeners. It may omit heavy
	// internal-only attributes.
	Clean func(item *T) S

	// Fix normalizes a freshly fetched item in place. A returned error marks
	// the record malformed and skips it for this pass.
	Fix func(item *T) error

	// Ignore suppresses adding an unknown item during incremental sync.
	// Fetch bypasses it.
	Ignore func(item *T) bool

	// Merge folds src into dst for an existing item. Defaults to *dst = *src.
	Merge func(dst, src *T)

	// OnAdd runs after a new item entered the mirror.
	OnAdd func(item *T)

	// OnUpdate runs after an existing item was merged. old is a copy taken
	// before the merge.
	OnUpdate func(old, cur *T)

	// OnDelete runs after an item left the mirror.
	OnDelete func(item *T)

	// OnFinished runs once, after the first successful poll.
	OnFinished func()

	// OnAddedOrUpdated runs once per applied batch that touched at least one
	// document.
	OnAddedOrUpdated func()

	// OnSubscribeToMissing synthesizes a placeholder when a subscriber asks
	// for an id that is not mirrored. Returning nil declines.
	OnSubscribeToMissing func(id string) *T

	// Ephemeral collections have no history worth replaying: the watermark
	// starts at "now" and the collection is never pruned.
	Ephemeral bool

	// PageSize bounds each store query. Zero means unbounded.
	PageSize int
}

// Batch is the result of one Pull, ready to be applied on the owner.
type Batch[T any] struct {
	Docs []*T

	// Skipped are the rows of the window that could not be decoded. They
	// are reported as malformed records when the batch is applied.
	Skipped []Row[T]

	// Watermark is the stamp the collection may advance to once Docs have
	// been applied. Zero for filtered fetches.
	Watermark time.Time

	fetched bool
}

func (b *Batch[T]) add(rows []Row[T]) {
	for _, r := range rows {
		if r.Err != nil || r.Item == nil {
			b.Skipped = append(b.Skipped, r)
			continue
		}
		b.Docs = append(b.Docs, r.Item)
	}
}

// Collection is an in-memory mirror of one remote collection.
// See the package doc for the threading model.
type Collection[T any, S any] struct {
	cfg      Config[T, S]
	src      Source[T]
	clock    Clock
	logger   *slog.Logger
	observer Observer

	items     map[string]*T
	order     []*T
	synthetic map[string]bool
	listeners *registry[S]

	watermark time.Time
	loaded    bool
}

// Option configures a Collection.
type Option func(*options)

type options struct {
	clock    Clock
	logger   *slog.Logger
	observer Observer
}

// WithClock overrides the wall clock (tests).
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the base logger. The collection name is attached.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver attaches instrumentation.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// New creates an empty, not-loaded Collection.
// Panics if cfg.ID or cfg.Stamp is nil.
func New[T any, S any](cfg Config[T, S], src Source[T], opts ...Option) *Collection[T, S] {
	if cfg.ID == nil || cfg.Stamp == nil {
		panic(fmt.Sprintf("live: collection %q needs ID and Stamp", cfg.Name))
	}
	o := options{clock: SystemClock{}, logger: slog.Default(), observer: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Merge == nil {
		cfg.Merge = func(dst, src *T) { *dst = *src }
	}

	return &Collection[T, S]{
		cfg:       cfg,
		src:       src,
		clock:     o.clock,
		logger:    o.logger.With("collection", cfg.Name),
		observer:  o.observer,
		items:     make(map[string]*T),
		synthetic: make(map[string]bool),
		listeners: newRegistry[S](),
	}
}

// Name returns the configured collection name.
func (c *Collection[T, S]) Name() string { return c.cfg.Name }

// Loaded reports whether the first full poll has completed.
func (c *Collection[T, S]) Loaded() bool { return c.loaded }

// Watermark returns the latest fully processed updatedAt stamp.
func (c *Collection[T, S]) Watermark() time.Time { return c.watermark }

// Len returns the number of mirrored items.
func (c *Collection[T, S]) Len() int { return len(c.order) }

// Has reports whether id is mirrored.
func (c *Collection[T, S]) Has(id string) bool {
	_, ok := c.items[id]
	return ok
}

// Get returns the mirrored item for id, or nil. The pointer stays valid
// across updates; callers must not mutate it.
func (c *Collection[T, S]) Get(id string) *T {
	return c.items[id]
}

// Items returns the mirrored items in insertion order.
func (c *Collection[T, S]) Items() []*T {
	out := make([]*T, len(c.order))
	copy(out, c.order)
	return out
}

// Listeners returns the number of listeners registered for id.
func (c *Collection[T, S]) Listeners(id string) int {
	return c.listeners.count(id)
}

// Snapshot returns the cleaned view of id, or nil.
func (c *Collection[T, S]) Snapshot(id string) *S {
	item := c.items[id]
	if item == nil {
		return nil
	}
	return c.clean(item)
}

// ResetWatermark moves the watermark to now. Used by ephemeral collections
// when they start.
func (c *Collection[T, S]) ResetWatermark() {
	c.watermark = c.clock.Now()
}

// Update performs one incremental poll and applies it.
func (c *Collection[T, S]) Update(ctx context.Context) error {
	batch, err := c.Pull(ctx)
	if err != nil {
		return err
	}
	c.Apply(batch)
	return nil
}

// Fetch loads every document matching filter and applies it, adding
// unknown items even when Ignore would reject them.
func (c *Collection[T, S]) Fetch(ctx context.Context, filter Filter) error {
	batch, err := c.PullFilter(ctx, filter)
	if err != nil {
		return err
	}
	c.Apply(batch)
	return nil
}

// Pull queries the source for every document changed after the watermark.
//
// Pages are requested until a short page arrives. Page length counts every
// stored row, decodable or not. When a full page ends in a run of equal
// stamps, that run is dropped from the page and the next query restarts
// from the last stamp before it, so documents sharing a stamp across a page
// boundary are never skipped. A page made entirely of one stamp cannot be
// split; the same window is re-read with a doubled page.
//
// Pull only reads collection state and may run off the owning goroutine, as
// long as it is not concurrent with Apply for the same collection.
func (c *Collection[T, S]) Pull(ctx context.Context) (Batch[T], error) {
	since := c.watermark
	limit := c.cfg.PageSize

	var b Batch[T]
	for {
		page, err := c.src.FindChangedSince(ctx, since, limit)
		if err != nil {
			c.observer.PollFailed(c.cfg.Name)
			return Batch[T]{}, &Error{Code: ErrCodePollFailed, Collection: c.cfg.Name, Err: err}
		}
		if limit <= 0 || len(page) < limit {
			b.add(page)
			if len(page) > 0 {
				since = maxStamp(since, page[len(page)-1].Stamp)
			}
			break
		}

		last := page[len(page)-1].Stamp
		cut := len(page)
		for cut > 0 && page[cut-1].Stamp.Equal(last) {
			cut--
		}
		if cut == 0 {
			// Every document on the page shares one stamp, so there is no
			// boundary to restart from. Re-read the window with a larger page.
			limit *= 2
			c.logger.Warn("page shares a single stamp, growing page",
				"stamp", last,
				"page_size", limit,
			)
			continue
		}
		b.add(page[:cut])
		since = page[cut-1].Stamp
	}

	b.Watermark = since
	return b, nil
}

// PullFilter queries the source for every document matching filter.
func (c *Collection[T, S]) PullFilter(ctx context.Context, filter Filter) (Batch[T], error) {
	docs, err := c.src.Find(ctx, filter)
	if err != nil {
		c.observer.PollFailed(c.cfg.Name)
		return Batch[T]{}, &Error{Code: ErrCodePollFailed, Collection: c.cfg.Name, Err: err}
	}
	return Batch[T]{Docs: docs, fetched: true}, nil
}

// Apply diffs a pulled batch into the mirror. Must run on the owner.
func (c *Collection[T, S]) Apply(b Batch[T]) {
	for _, row := range b.Skipped {
		c.observer.RecordSkipped(c.cfg.Name)
		c.logger.Warn("skipping record", "error",
			&Error{Code: ErrCodeMalformedRecord, Collection: c.cfg.Name, ID: row.ID, Err: row.Err})
	}

	applied := 0
	for _, doc := range b.Docs {
		if doc == nil {
			continue
		}
		if err := c.applyOne(doc, b.fetched); err != nil {
			c.observer.RecordSkipped(c.cfg.Name)
			c.logger.Warn("skipping record", "error", err)
			continue
		}
		applied++
	}

	if !b.fetched && b.Watermark.After(c.watermark) {
		c.watermark = b.Watermark
	}

	if applied > 0 && c.cfg.OnAddedOrUpdated != nil {
		c.runHook("onAddedOrUpdated", "", c.cfg.OnAddedOrUpdated)
	}

	c.observer.PollCompleted(c.cfg.Name, applied)
	c.observer.Mirrored(c.cfg.Name, len(c.order))

	if !b.fetched && !c.loaded {
		c.loaded = true
		c.logger.Info("collection loaded", "items", len(c.order), "watermark", c.watermark)
		if c.cfg.OnFinished != nil {
			c.runHook("onFinished", "", c.cfg.OnFinished)
		}
	}
}

// applyOne merges or inserts one document. Panics in fix or hooks are
// converted to a malformed-record error so the rest of the batch applies.
func (c *Collection[T, S]) applyOne(doc *T, fetched bool) (err error) {
	id := ""
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Code: ErrCodeMalformedRecord, Collection: c.cfg.Name, ID: id, Err: panicError(r)}
		}
	}()

	id = c.cfg.ID(doc)
	if c.cfg.Fix != nil {
		if fixErr := c.cfg.Fix(doc); fixErr != nil {
			return &Error{Code: ErrCodeMalformedRecord, Collection: c.cfg.Name, ID: id, Err: fixErr}
		}
		id = c.cfg.ID(doc)
	}
	if id == "" {
		return &Error{Code: ErrCodeMalformedRecord, Collection: c.cfg.Name, Err: fmt.Errorf("empty id")}
	}

	if existing, ok := c.items[id]; ok {
		delete(c.synthetic, id)
		c.update(id, existing, doc)
		return nil
	}

	if !fetched && c.cfg.Ignore != nil && c.cfg.Ignore(doc) {
		c.logger.Debug("ignoring record", "id", id)
		return nil
	}

	c.insert(id, doc)
	return nil
}

// Add inserts item optimistically, or merges it into the existing item with
// the same id. Visible and notified immediately.
func (c *Collection[T, S]) Add(item *T) error {
	if c.cfg.Fix != nil {
		if err := c.cfg.Fix(item); err != nil {
			return &Error{Code: ErrCodeMalformedRecord, Collection: c.cfg.Name, ID: c.cfg.ID(item), Err: err}
		}
	}
	id := c.cfg.ID(item)
	if id == "" {
		return &Error{Code: ErrCodeMalformedRecord, Collection: c.cfg.Name, Err: fmt.Errorf("empty id")}
	}

	if existing, ok := c.items[id]; ok {
		delete(c.synthetic, id)
		c.update(id, existing, item)
	} else {
		c.insert(id, item)
	}

	if c.cfg.OnAddedOrUpdated != nil {
		c.runHook("onAddedOrUpdated", id, c.cfg.OnAddedOrUpdated)
	}
	return nil
}

// Removed drops id from the mirror and notifies its listeners with the
// delete sentinel. Reports whether the item was present.
func (c *Collection[T, S]) Removed(id string) bool {
	item, ok := c.items[id]
	if !ok {
		return false
	}

	delete(c.items, id)
	delete(c.synthetic, id)
	for i, candidate := range c.order {
		if candidate == item {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}

	if c.cfg.OnDelete != nil {
		c.runHook("onDelete", id, func() { c.cfg.OnDelete(item) })
	}
	c.trigger(id, nil)
	c.observer.Mirrored(c.cfg.Name, len(c.order))
	return true
}

// Remove deletes id from the store, then from the mirror.
func (c *Collection[T, S]) Remove(ctx context.Context, id string) error {
	if err := c.src.Delete(ctx, id); err != nil {
		return &Error{Code: ErrCodeStoreWrite, Collection: c.cfg.Name, ID: id, Err: err}
	}
	c.Removed(id)
	return nil
}

// Subscribe registers fn for id and delivers the current snapshot right
// away. When id is not mirrored and OnSubscribeToMissing is configured, the
// synthesized placeholder is added and delivered instead. If neither
// applies, fn is first called when id appears.
//
// The returned function unsubscribes; calling it more than once is a no-op.
func (c *Collection[T, S]) Subscribe(id string, fn Listener[S]) (unsubscribe func()) {
	reg := c.listeners.add(id, fn)
	unsubscribe = func() { c.listeners.remove(id, reg) }

	if item, ok := c.items[id]; ok {
		c.deliver(id, reg, c.clean(item))
		return unsubscribe
	}

	if c.cfg.OnSubscribeToMissing != nil {
		if placeholder := c.cfg.OnSubscribeToMissing(id); placeholder != nil {
			c.synthetic[id] = true
			// insert fans out to every listener on id, including reg.
			c.insert(id, placeholder)
		}
	}
	return unsubscribe
}

// Trigger delivers the current state of id to its listeners: the cleaned
// snapshot when present, the delete sentinel otherwise.
func (c *Collection[T, S]) Trigger(id string) {
	c.trigger(id, c.items[id])
}

// PruneAsOf captures the stamp below which a following ListIDs result is
// authoritative. Must be read on the same goroutine sequence as Pull.
func (c *Collection[T, S]) PruneAsOf() time.Time { return c.watermark }

// Prune removes mirrored items whose id is not in present. Items stamped
// after asOf arrived after the listing was taken and are kept, as are
// synthesized placeholders. Ephemeral collections are never pruned.
// Returns the number of removed items.
func (c *Collection[T, S]) Prune(present []string, asOf time.Time) int {
	if c.cfg.Ephemeral {
		return 0
	}
	keep := make(map[string]struct{}, len(present))
	for _, id := range present {
		keep[id] = struct{}{}
	}

	var gone []string
	for _, item := range c.order {
		id := c.cfg.ID(item)
		if _, ok := keep[id]; ok || c.synthetic[id] {
			continue
		}
		if c.cfg.Stamp(item).After(asOf) {
			continue
		}
		gone = append(gone, id)
	}
	for _, id := range gone {
		c.logger.Debug("pruning record missing from store", "id", id)
		c.Removed(id)
	}
	return len(gone)
}

func (c *Collection[T, S]) insert(id string, item *T) {
	c.items[id] = item
	c.order = append(c.order, item)
	if c.cfg.OnAdd != nil {
		c.runHook("onAdd", id, func() { c.cfg.OnAdd(item) })
	}
	c.trigger(id, item)
	c.logger.Debug("record added", "id", id)
}

func (c *Collection[T, S]) update(id string, existing, incoming *T) {
	old := *existing
	c.cfg.Merge(existing, incoming)
	if c.cfg.OnUpdate != nil {
		c.runHook("onUpdate", id, func() { c.cfg.OnUpdate(&old, existing) })
	}
	c.trigger(id, existing)
	c.logger.Debug("record updated", "id", id)
}

// trigger fans the cleaned snapshot of item (nil: delete sentinel) out to
// every listener registered for id at the time of the call.
func (c *Collection[T, S]) trigger(id string, item *T) {
	regs := c.listeners.snapshot(id)
	if len(regs) == 0 {
		return
	}
	var snap *S
	if item != nil {
		snap = c.clean(item)
	}
	for _, reg := range regs {
		if reg.removed {
			continue
		}
		c.deliver(id, reg, snap)
	}
}

func (c *Collection[T, S]) deliver(id string, reg *registration[S], snap *S) {
	defer func() {
		if r := recover(); r != nil {
			c.observer.ListenerPanicked(c.cfg.Name)
			c.logger.Warn("listener panicked",
				"id", id,
				"error", &Error{Code: ErrCodeListenerPanic, Collection: c.cfg.Name, ID: id, Err: panicError(r)},
			)
		}
	}()
	reg.fn(snap)
}

// runHook isolates a lifecycle hook so that its failure cannot tear the
// batch that triggered it.
func (c *Collection[T, S]) runHook(name, id string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.observer.ListenerPanicked(c.cfg.Name)
			c.logger.Warn("hook panicked",
				"hook", name,
				"id", id,
				"error", &Error{Code: ErrCodeListenerPanic, Collection: c.cfg.Name, ID: id, Err: panicError(r)},
			)
		}
	}()
	fn()
}

func (c *Collection[T, S]) clean(item *T) *S {
	if c.cfg.Clean == nil {
		var zero S
		return &zero
	}
	snap := c.cfg.Clean(item)
	return &snap
}

func maxStamp(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
