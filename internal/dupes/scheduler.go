package dupes

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/drewdru/ponyTown-sub010/internal/live"
	"github.com/drewdru/ponyTown-sub010/internal/model"
)

// Directory is the read side of the account mirror the scheduler consults.
type Directory interface {
	// Account returns the mirrored account with id, or nil.
	Account(id string) *model.Account

	// AccountsByDevice returns every mirrored account seen with device.
	AccountsByDevice(device string) []*model.Account

	// AccountsLoaded reports whether the first account poll completed.
	AccountsLoaded() bool
}

// Merger is the transport that physically merges two accounts. It is
// expected to eventually delete absorbID from the store.
type Merger interface {
	MergeAccounts(ctx context.Context, keepID, absorbID, reason string, automatic bool) error
}

// Observer receives scheduler instrumentation. Methods must be cheap.
type Observer interface {
	MergeTriggered()
	MergeFailed()
}

type nopObserver struct{}

func (nopObserver) MergeTriggered() {}
func (nopObserver) MergeFailed()    {}

// Config tunes a Scheduler.
type Config struct {
	// QuietPeriod is how old an account must be before it takes part in a
	// merge. Younger accounts are deferred, not dropped.
	QuietPeriod time.Duration

	// MaxSharedDevice skips device ids shared by more accounts than this;
	// such ids are too common to identify one player. Zero disables.
	MaxSharedDevice int

	// MaxMergesPerRun bounds the merges one Run triggers. Values below one
	// mean one.
	MaxMergesPerRun int

	// Keep picks the surviving account. Defaults to PreferRecentVisit.
	Keep KeepPolicy

	// CheckOnLoad queues accounts touched by the initial load too.
	CheckOnLoad bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		QuietPeriod:     time.Hour,
		MaxSharedDevice: 5,
		MaxMergesPerRun: 1,
		Keep:            PreferRecentVisit,
	}
}

// Merge is one pair handed to the transport.
type Merge struct {
	Keep   string `json:"keep"`
	Absorb string `json:"absorb"`
	Reason string `json:"reason"`
}

// Scheduler is the duplicate detection loop.
type Scheduler struct {
	cfg      Config
	dir      Directory
	merger   Merger
	ex       live.Executor
	clock    live.Clock
	logger   *slog.Logger
	observer Observer

	// Loop-owned state.
	queue    []string
	queued   map[string]struct{}
	absorbed map[string]struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the wall clock (tests).
func WithClock(c live.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithObserver attaches instrumentation.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// NewScheduler creates a scheduler reading dir on the goroutine behind ex
// and merging through merger.
func NewScheduler(cfg Config, dir Directory, merger Merger, ex live.Executor, opts ...Option) *Scheduler {
	if cfg.Keep == nil {
		cfg.Keep = PreferRecentVisit
	}
	if cfg.MaxMergesPerRun < 1 {
		cfg.MaxMergesPerRun = 1
	}
	s := &Scheduler{
		cfg:      cfg,
		dir:      dir,
		merger:   merger,
		ex:       ex,
		clock:    live.SystemClock{},
		logger:   slog.Default(),
		observer: nopObserver{},
		queued:   make(map[string]struct{}),
		absorbed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "dupes")
	return s
}

// Touched records an account change. Present accounts are queued once the
// account mirror has loaded (or always, with CheckOnLoad); a removed
// account is forgotten.
func (s *Scheduler) Touched(accountID string, present bool) {
	if !present {
		delete(s.absorbed, accountID)
		s.drop(accountID)
		return
	}
	if !s.cfg.CheckOnLoad && !s.dir.AccountsLoaded() {
		return
	}
	s.Enqueue(accountID)
}

// Enqueue queues an account for checking. An account already queued is not
// queued again.
func (s *Scheduler) Enqueue(accountID string) {
	if _, ok := s.queued[accountID]; ok {
		return
	}
	s.queued[accountID] = struct{}{}
	s.queue = append(s.queue, accountID)
}

// Pending returns the number of queued accounts.
func (s *Scheduler) Pending() int { return len(s.queue) }

// Check pops queued accounts, most recently touched first, until one has a
// duplicate. It performs no I/O.
//
// Accounts younger than the quiet period are put back, below the remaining
// queue, to be checked on a later run.
func (s *Scheduler) Check(now time.Time) (Merge, bool) {
	var deferred []string
	defer func() {
		if len(deferred) == 0 {
			return
		}
		slices.Reverse(deferred)
		s.queue = append(deferred, s.queue...)
		for _, id := range deferred {
			s.queued[id] = struct{}{}
		}
	}()

	for len(s.queue) > 0 {
		id := s.queue[len(s.queue)-1]
		s.queue = s.queue[:len(s.queue)-1]
		delete(s.queued, id)

		acc := s.dir.Account(id)
		if acc == nil || !s.eligible(acc) {
			continue
		}
		if !s.settled(acc, now) {
			deferred = append(deferred, id)
			continue
		}

		var dups []*model.Account
		for _, other := range s.dir.AccountsByDevice(acc.BrowserID) {
			if other.ID == acc.ID || !s.eligible(other) || !s.settled(other, now) {
				continue
			}
			dups = append(dups, other)
		}
		if len(dups) == 0 {
			continue
		}

		slices.SortFunc(dups, func(a, b *model.Account) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		keep, absorb := s.cfg.Keep(acc, dups[0])
		return Merge{
			Keep:   keep.ID,
			Absorb: absorb.ID,
			Reason: fmt.Sprintf("duplicate device %s", acc.BrowserID),
		}, true
	}

	s.queue = s.queue[:0]
	return Merge{}, false
}

// Run checks the queue and merges up to MaxMergesPerRun pairs. Queue
// access runs through the executor; merge calls run on the caller's
// goroutine. A failed merge stops the run and is returned as a MergeError.
func (s *Scheduler) Run(ctx context.Context) ([]Merge, error) {
	var done []Merge
	for len(done) < s.cfg.MaxMergesPerRun {
		var m Merge
		var found bool
		if err := s.ex.Exec(ctx, func() { m, found = s.Check(s.clock.Now()) }); err != nil {
			return done, err
		}
		if !found {
			break
		}

		s.logger.Info("merging duplicate accounts",
			"keep", m.Keep,
			"absorb", m.Absorb,
			"reason", m.Reason,
		)
		if err := s.merger.MergeAccounts(ctx, m.Keep, m.Absorb, m.Reason, true); err != nil {
			s.observer.MergeFailed()
			return done, &MergeError{Keep: m.Keep, Absorb: m.Absorb, Err: err}
		}
		s.observer.MergeTriggered()

		if err := s.ex.Exec(ctx, func() { s.absorbed[m.Absorb] = struct{}{} }); err != nil {
			return append(done, m), err
		}
		done = append(done, m)
	}
	return done, nil
}

// Loop calls Run every interval until ctx is cancelled.
func (s *Scheduler) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("duplicate scheduler started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("duplicate scheduler stopped")
			return
		case <-ticker.C:
		}

		merges, err := s.Run(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("duplicate run failed", "error", err)
		}
		if len(merges) > 0 {
			s.logger.Debug("duplicate run finished", "merges", len(merges))
		}
	}
}

// eligible filters accounts that never take part in automatic merges.
func (s *Scheduler) eligible(a *model.Account) bool {
	if a.BrowserID == "" || a.Flags.Has(model.FlagNoAutoMerge) {
		return false
	}
	if _, ok := s.absorbed[a.ID]; ok {
		return false
	}
	if s.cfg.MaxSharedDevice > 0 && len(s.dir.AccountsByDevice(a.BrowserID)) > s.cfg.MaxSharedDevice {
		return false
	}
	return true
}

func (s *Scheduler) settled(a *model.Account, now time.Time) bool {
	return now.Sub(a.CreatedAt) >= s.cfg.QuietPeriod
}

func (s *Scheduler) drop(accountID string) {
	if _, ok := s.queued[accountID]; !ok {
		return
	}
	delete(s.queued, accountID)
	s.queue = slices.DeleteFunc(s.queue, func(id string) bool { return id == accountID })
}
