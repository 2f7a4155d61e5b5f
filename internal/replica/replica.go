package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/drewdru/ponyTown-sub010/internal/live"
	"github.com/drewdru/ponyTown-sub010/internal/model"
)

// ErrStopped is returned by Exec once the replica loop has exited.
var ErrStopped = errors.New("replica: loop stopped")

// Options tunes a Replica.
type Options struct {
	// PollInterval is the pause between two polls of one collection.
	PollInterval time.Duration

	// Stagger offsets the first poll of each collection from the previous
	// one.
	Stagger time.Duration

	// PageSize bounds each store query. Zero means unbounded.
	PageSize int

	// PruneEvery runs a deletion pass every n-th poll. Zero disables.
	PruneEvery int

	// LazyChildren skips characters of unknown accounts during incremental
	// sync and fetches them when their account's relation is subscribed.
	LazyChildren bool

	Clock    live.Clock
	Logger   *slog.Logger
	Observer live.Observer
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		PollInterval: time.Second,
		Stagger:      100 * time.Millisecond,
		PruneEvery:   60,
	}
}

// Sources are the store collections a Replica mirrors.
type Sources struct {
	Accounts   live.Source[model.Account]
	Auths      live.Source[model.Auth]
	Characters live.Source[model.Character]
	Origins    live.Source[model.Origin]
	Events     live.Source[model.Event]
}

// Replica is the in-memory mirror of the backend's account data.
// See the package doc for the threading model.
type Replica struct {
	Accounts   *live.Collection[model.Account, model.AccountView]
	Auths      *live.Collection[model.Auth, model.AuthView]
	Characters *live.Collection[model.Character, model.CharacterView]
	Origins    *live.Collection[model.Origin, model.OriginView]
	Events     *live.Collection[model.Event, model.EventView]

	opts   Options
	logger *slog.Logger
	m      *maintainer

	queue   *taskQueue
	stopped chan struct{}
	runOnce sync.Once

	ctx     context.Context
	cancel  context.CancelFunc
	pollers []*live.Poller
}

// New wires the collections of src. Nothing is polled until Start.
func New(src Sources, opts Options) *Replica {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = live.SystemClock{}
	}
	collOpts := []live.Option{live.WithClock(opts.Clock), live.WithLogger(opts.Logger)}
	if opts.Observer != nil {
		collOpts = append(collOpts, live.WithObserver(opts.Observer))
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Replica{
		opts:    opts,
		logger:  opts.Logger.With("component", "replica"),
		queue:   newTaskQueue(),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	m := newMaintainer(r, r.logger)
	r.m = m

	r.Accounts = live.New(live.Config[model.Account, model.AccountView]{
		Name:             model.AccountsCollection,
		ID:               model.AccountID,
		Stamp:            model.AccountStamp,
		Clean:            model.CleanAccount,
		Fix:              model.FixAccount,
		OnAdd:            m.accountAdded,
		OnUpdate:         m.accountUpdated,
		OnDelete:         m.accountDeleted,
		OnAddedOrUpdated: m.sweep,
		PageSize:         opts.PageSize,
	}, src.Accounts, collOpts...)

	r.Origins = live.New(live.Config[model.Origin, model.OriginView]{
		Name:                 model.OriginsCollection,
		ID:                   model.OriginID,
		Stamp:                model.OriginStamp,
		Clean:                model.CleanOrigin,
		Fix:                  model.FixOrigin,
		OnAdd:                m.originChanged,
		OnUpdate:             func(_, cur *model.Origin) { m.originChanged(cur) },
		OnDelete:             m.originChanged,
		OnSubscribeToMissing: model.PlaceholderOrigin,
		PageSize:             opts.PageSize,
	}, src.Origins, collOpts...)

	r.Auths = live.New(live.Config[model.Auth, model.AuthView]{
		Name:     model.AuthsCollection,
		ID:       model.AuthID,
		Stamp:    model.AuthStamp,
		Clean:    model.CleanAuth,
		Fix:      model.FixAuth,
		OnAdd:    m.auths.added,
		OnUpdate: m.auths.updated,
		OnDelete: m.auths.deleted,
		PageSize: opts.PageSize,
	}, src.Auths, collOpts...)

	charCfg := live.Config[model.Character, model.CharacterView]{
		Name:     model.CharactersCollection,
		ID:       model.CharacterID,
		Stamp:    model.CharacterStamp,
		Clean:    model.CleanCharacter,
		Fix:      model.FixCharacter,
		OnAdd:    m.characters.added,
		OnUpdate: m.characters.updated,
		OnDelete: m.characters.deleted,
		PageSize: opts.PageSize,
	}
	if opts.LazyChildren {
		charCfg.Ignore = func(c *model.Character) bool { return !r.Accounts.Has(c.Account) }
	}
	r.Characters = live.New(charCfg, src.Characters, collOpts...)

	r.Events = live.New(live.Config[model.Event, model.EventView]{
		Name:      model.EventsCollection,
		ID:        model.EventID,
		Stamp:     model.EventStamp,
		Clean:     model.CleanEvent,
		Fix:       model.FixEvent,
		Ephemeral: true,
		PageSize:  opts.PageSize,
	}, src.Events, collOpts...)

	return r
}

// Run processes loop tasks until ctx is cancelled. It must be called from
// exactly one goroutine, once.
func (r *Replica) Run(ctx context.Context) error {
	started := false
	r.runOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("replica: Run called twice")
	}
	defer close(r.stopped)

	r.logger.Info("replica loop starting")
	for {
		if task, ok := r.queue.TryDequeue(); ok {
			r.runTask(task)
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Info("replica loop stopping: context cancelled")
			r.queue.Close()
			return ctx.Err()

		case <-r.queue.Wait():
			// Signal received - loop back to TryDequeue.
		}
	}
}

// runTask runs one task, logging a panic instead of tearing the loop down.
func (r *Replica) runTask(task func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("replica task panicked", "panic", p)
		}
	}()
	task()
}

// Exec runs fn on the loop and waits for it. Implements live.Executor.
// Must not be called from the loop itself.
func (r *Replica) Exec(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	if !r.queue.Enqueue(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-r.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches one poller per collection, staggered by Options.Stagger.
// Apply halves run on the loop, so Run must be running.
func (r *Replica) Start(ctx context.Context) {
	targets := []live.Pollable{r.Accounts, r.Origins, r.Auths, r.Characters, r.Events}
	for i, target := range targets {
		p := live.NewPoller(target, r, live.PollerConfig{
			Interval:   r.opts.PollInterval,
			Delay:      time.Duration(i) * r.opts.Stagger,
			PruneEvery: r.opts.PruneEvery,
		}, r.opts.Logger)
		p.Start(ctx)
		r.pollers = append(r.pollers, p)
	}
	r.logger.Info("replica started", "collections", len(targets), "interval", r.opts.PollInterval)
}

// Stop stops every poller, letting in-flight polls apply, and cancels
// background fetches.
func (r *Replica) Stop() {
	for _, p := range r.pollers {
		p.Stop()
	}
	r.pollers = nil
	r.cancel()
}

// Serve runs the loop and the pollers until ctx is cancelled. On the way
// out the pollers are stopped first so that in-flight polls still apply.
func (r *Replica) Serve(ctx context.Context) error {
	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLoop()

	loopErr := make(chan error, 1)
	go func() { loopErr <- r.Run(loopCtx) }()

	r.Start(ctx)
	<-ctx.Done()
	r.Stop()
	stopLoop()

	if err := <-loopErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Load polls every persistent collection once on the caller's goroutine,
// parents before children. It is meant for one-shot tools and must not be
// used while Run is serving.
func (r *Replica) Load(ctx context.Context) error {
	steps := []interface {
		Name() string
		Update(context.Context) error
	}{r.Accounts, r.Origins, r.Auths, r.Characters}
	for _, c := range steps {
		if err := c.Update(ctx); err != nil {
			return fmt.Errorf("load %s: %w", c.Name(), err)
		}
	}
	return nil
}

// WatchAccounts registers fn to be told about every account that was
// added or changed (present) or removed (!present). Loop only.
func (r *Replica) WatchAccounts(fn func(accountID string, present bool)) {
	r.m.watchers = append(r.m.watchers, fn)
}

// Account returns the mirrored account with id, or nil.
func (r *Replica) Account(id string) *model.Account {
	return r.Accounts.Get(model.NormalizeID(id))
}

// AccountsLoaded reports whether the first account poll completed.
func (r *Replica) AccountsLoaded() bool {
	return r.Accounts.Loaded()
}

// AccountsByEmail returns the accounts using email, ordered by id.
func (r *Replica) AccountsByEmail(email string) []*model.Account {
	return r.accounts(r.m.byEmail.Get(model.CanonicalEmail(email)))
}

// AccountsByDevice returns the accounts seen with a device id, ordered by id.
func (r *Replica) AccountsByDevice(device string) []*model.Account {
	return r.accounts(r.m.byDevice.Get(model.CanonicalDevice(device)))
}

// DeviceShare returns how many accounts share a device id.
func (r *Replica) DeviceShare(device string) int {
	return r.m.byDevice.Count(model.CanonicalDevice(device))
}

// AccountsReferencing returns the accounts whose note mentions id.
func (r *Replica) AccountsReferencing(id string) []*model.Account {
	return r.accounts(r.m.byNote.Get(model.NormalizeID(id)))
}

// CharactersOf returns the characters attached to an account, in order.
func (r *Replica) CharactersOf(accountID string) []*model.Character {
	return r.m.characters.of(model.NormalizeID(accountID))
}

// AuthsOf returns the auths attached to an account, in order.
func (r *Replica) AuthsOf(accountID string) []*model.Auth {
	return r.m.auths.of(model.NormalizeID(accountID))
}

// UnassignedCharacters returns the ids of characters waiting for their
// account.
func (r *Replica) UnassignedCharacters() []string { return r.m.characters.pending() }

// UnassignedAuths returns the ids of auths waiting for their account.
func (r *Replica) UnassignedAuths() []string { return r.m.auths.pending() }

// IndexSnapshot returns copies of the account indices, keyed by index name.
func (r *Replica) IndexSnapshot() map[string]map[string][]string {
	return map[string]map[string][]string{
		"email":  r.m.byEmail.Snapshot(),
		"device": r.m.byDevice.Snapshot(),
		"note":   r.m.byNote.Snapshot(),
	}
}

func (r *Replica) accounts(ids []string) []*model.Account {
	out := make([]*model.Account, 0, len(ids))
	for _, id := range ids {
		if a := r.Accounts.Get(id); a != nil {
			out = append(out, a)
		}
	}
	return out
}
