package dupes

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewdru/ponyTown-sub010/internal/live"
	"github.com/drewdru/ponyTown-sub010/internal/model"
	"github.com/drewdru/ponyTown-sub010/internal/testutil"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int64) time.Time { return epoch.Add(time.Duration(ms) * time.Millisecond) }

// fakeDirectory is a map-backed Directory.
type fakeDirectory struct {
	accounts map[string]*model.Account
	loaded   bool
}

func newFakeDirectory(accounts ...*model.Account) *fakeDirectory {
	d := &fakeDirectory{accounts: map[string]*model.Account{}, loaded: true}
	for _, a := range accounts {
		d.accounts[a.ID] = a
	}
	return d
}

func (d *fakeDirectory) Account(id string) *model.Account { return d.accounts[id] }
func (d *fakeDirectory) AccountsLoaded() bool             { return d.loaded }

func (d *fakeDirectory) AccountsByDevice(device string) []*model.Account {
	var out []*model.Account
	for _, a := range d.accounts {
		if a.BrowserID == device {
			out = append(out, a)
		}
	}
	return out
}

// fakeMerger records calls and can be told to fail.
type fakeMerger struct {
	calls []Merge
	err   error
}

func (m *fakeMerger) MergeAccounts(_ context.Context, keepID, absorbID, reason string, automatic bool) error {
	if !automatic {
		return errors.New("expected automatic merge")
	}
	m.calls = append(m.calls, Merge{Keep: keepID, Absorb: absorbID, Reason: reason})
	return m.err
}

type countingObserver struct{ triggered, failed int }

func (o *countingObserver) MergeTriggered() { o.triggered++ }
func (o *countingObserver) MergeFailed()    { o.failed++ }

func newAccount(id, device string, createdMs, visitMs int64) *model.Account {
	return &model.Account{
		ID:        id,
		BrowserID: device,
		LastVisit: at(visitMs),
		Stamps:    model.Stamps{CreatedAt: at(createdMs), UpdatedAt: at(createdMs)},
	}
}

func newTestScheduler(cfg Config, dir Directory, merger Merger, clock *testutil.ManualClock) *Scheduler {
	return NewScheduler(cfg, dir, merger, &live.Inline{}, WithClock(clock))
}

// Scenario: two accounts share a device; the second is created ten
// thousand seconds after the first.
func TestScheduler_QuietPeriodThenMerge(t *testing.T) {
	acc1 := newAccount("acc1", "dev-X", 0, 20_000_000)
	acc2 := newAccount("acc2", "dev-X", 10_000_000, 10_000_500)
	dir := newFakeDirectory(acc1, acc2)
	merger := &fakeMerger{}
	clock := testutil.NewManualClock(at(10_000_000 + 60_000))
	cfg := DefaultConfig()
	cfg.QuietPeriod = time.Hour
	s := newTestScheduler(cfg, dir, merger, clock)

	s.Touched("acc1", true)
	s.Touched("acc2", true)

	merges, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, merges, "acc2 is still inside the quiet period")
	assert.Empty(t, merger.calls)
	assert.Equal(t, 1, s.Pending(), "the young account stays queued")

	clock.Advance(2 * time.Hour)
	merges, err = s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, merges, 1)
	assert.Equal(t, "acc1", merges[0].Keep, "acc1 was visited most recently")
	assert.Equal(t, "acc2", merges[0].Absorb)
	assert.Equal(t, merges, merger.calls)
}

func TestScheduler_OlderAccountPolicy(t *testing.T) {
	old := newAccount("old", "dev", 0, 0)
	fresh := newAccount("fresh", "dev", 1000, 50_000)
	dir := newFakeDirectory(old, fresh)
	cfg := DefaultConfig()
	cfg.QuietPeriod = 0
	cfg.Keep = PreferOlderAccount
	s := newTestScheduler(cfg, dir, &fakeMerger{}, testutil.NewManualClock(at(100_000)))

	s.Enqueue("fresh")
	m, ok := s.Check(at(100_000))

	require.True(t, ok)
	assert.Equal(t, Merge{Keep: "old", Absorb: "fresh", Reason: "duplicate device dev"}, m)
}

func TestScheduler_AtMostOneMergePerRun(t *testing.T) {
	dir := newFakeDirectory()
	for i := 0; i < 6; i++ {
		dir.accounts[fmt.Sprintf("a%d", i)] = newAccount(fmt.Sprintf("a%d", i), fmt.Sprintf("dev-%d", i/2), int64(i), int64(i))
	}
	merger := &fakeMerger{}
	cfg := DefaultConfig()
	cfg.QuietPeriod = 0
	s := newTestScheduler(cfg, dir, merger, testutil.NewManualClock(at(1000)))
	for id := range dir.accounts {
		s.Enqueue(id)
	}

	merges, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, merges, 1)
	assert.Len(t, merger.calls, 1)
}

func TestScheduler_MaxMergesPerRunTunable(t *testing.T) {
	dir := newFakeDirectory()
	for i := 0; i < 6; i++ {
		dir.accounts[fmt.Sprintf("a%d", i)] = newAccount(fmt.Sprintf("a%d", i), fmt.Sprintf("dev-%d", i/2), int64(i), int64(i))
	}
	merger := &fakeMerger{}
	cfg := DefaultConfig()
	cfg.QuietPeriod = 0
	cfg.MaxMergesPerRun = 10
	s := newTestScheduler(cfg, dir, merger, testutil.NewManualClock(at(1000)))
	for i := 0; i < 6; i++ {
		s.Enqueue(fmt.Sprintf("a%d", i))
	}

	merges, err := s.Run(context.Background())
	require.NoError(t, err)
	// Three devices, one pair each. The absorbed side of a pair is never
	// merged again in the same run.
	assert.Len(t, merges, 3)
}

func TestScheduler_LIFOAndDeduplicated(t *testing.T) {
	dir := newFakeDirectory(
		newAccount("a", "dev-1", 0, 0), newAccount("b", "dev-1", 1, 1),
		newAccount("c", "dev-2", 0, 0), newAccount("d", "dev-2", 1, 1),
	)
	cfg := DefaultConfig()
	cfg.QuietPeriod = 0
	s := newTestScheduler(cfg, dir, &fakeMerger{}, testutil.NewManualClock(at(10)))

	s.Enqueue("b")
	s.Enqueue("d")
	s.Enqueue("b")
	assert.Equal(t, 2, s.Pending())

	m, ok := s.Check(at(10))
	require.True(t, ok)
	assert.Equal(t, "dev-2", m.Reason[len("duplicate device "):], "most recently queued first")
	assert.Equal(t, 1, s.Pending())
}

func TestScheduler_Filters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *fakeDirectory)
		cfg    func(c *Config)
	}{
		{
			name:   "no auto merge on checked account",
			mutate: func(d *fakeDirectory) { d.accounts["b"].Flags = model.FlagNoAutoMerge },
		},
		{
			name:   "no auto merge on candidate",
			mutate: func(d *fakeDirectory) { d.accounts["a"].Flags = model.FlagNoAutoMerge },
		},
		{
			name: "device shared too widely",
			mutate: func(d *fakeDirectory) {
				d.accounts["c"] = newAccount("c", "dev", 2, 2)
				d.accounts["d"] = newAccount("d", "dev", 3, 3)
			},
			cfg: func(c *Config) { c.MaxSharedDevice = 3 },
		},
		{
			name:   "account gone",
			mutate: func(d *fakeDirectory) { delete(d.accounts, "b") },
		},
		{
			name:   "no device id",
			mutate: func(d *fakeDirectory) { d.accounts["a"].BrowserID = ""; d.accounts["b"].BrowserID = "" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newFakeDirectory(newAccount("a", "dev", 0, 0), newAccount("b", "dev", 1, 1))
			tt.mutate(dir)
			cfg := DefaultConfig()
			cfg.QuietPeriod = 0
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			s := newTestScheduler(cfg, dir, &fakeMerger{}, testutil.NewManualClock(at(10)))

			s.Enqueue("b")
			_, ok := s.Check(at(10))

			assert.False(t, ok)
			assert.Equal(t, 0, s.Pending())
		})
	}
}

func TestScheduler_MergeFailure(t *testing.T) {
	dir := newFakeDirectory(newAccount("a", "dev", 0, 0), newAccount("b", "dev", 1, 1))
	boom := errors.New("rpc down")
	merger := &fakeMerger{err: boom}
	obs := &countingObserver{}
	cfg := DefaultConfig()
	cfg.QuietPeriod = 0
	s := NewScheduler(cfg, dir, merger, &live.Inline{}, WithClock(testutil.NewManualClock(at(10))), WithObserver(obs))
	s.Enqueue("b")

	merges, err := s.Run(context.Background())

	assert.Empty(t, merges)
	var mergeErr *MergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.Equal(t, "b", mergeErr.Keep)
	assert.Equal(t, "a", mergeErr.Absorb)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, obs.failed)
	assert.Equal(t, 0, s.Pending(), "not retried until the account changes again")

	// The absorbed side was not marked: a later change can retry.
	merger.err = nil
	s.Touched("b", true)
	merges, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, merges, 1)
	assert.Equal(t, 1, obs.triggered)
}

func TestScheduler_AbsorbedSkippedUntilRemoved(t *testing.T) {
	dir := newFakeDirectory(newAccount("a", "dev", 0, 5), newAccount("b", "dev", 1, 1))
	cfg := DefaultConfig()
	cfg.QuietPeriod = 0
	s := newTestScheduler(cfg, dir, &fakeMerger{}, testutil.NewManualClock(at(10)))

	s.Enqueue("b")
	merges, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, merges, 1)

	// The mirror still shows b until the next poll observes its deletion.
	s.Touched("a", true)
	merges, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, merges)

	s.Touched("b", false)
	delete(dir.accounts, "b")
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_TouchedBeforeLoad(t *testing.T) {
	dir := newFakeDirectory(newAccount("a", "dev", 0, 0))
	dir.loaded = false
	s := newTestScheduler(DefaultConfig(), dir, &fakeMerger{}, testutil.NewManualClock(at(0)))

	s.Touched("a", true)
	assert.Equal(t, 0, s.Pending())

	cfg := DefaultConfig()
	cfg.CheckOnLoad = true
	s = newTestScheduler(cfg, dir, &fakeMerger{}, testutil.NewManualClock(at(0)))
	s.Touched("a", true)
	assert.Equal(t, 1, s.Pending())
}

func TestScheduler_LoopStopsOnCancel(t *testing.T) {
	s := newTestScheduler(DefaultConfig(), newFakeDirectory(), &fakeMerger{}, testutil.NewManualClock(at(0)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Loop(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestParseKeepPolicy(t *testing.T) {
	a := newAccount("a", "d", 0, 100)
	b := newAccount("b", "d", 50, 10)

	p, err := ParseKeepPolicy("")
	require.NoError(t, err)
	keep, _ := p(a, b)
	assert.Equal(t, "a", keep.ID)

	p, err = ParseKeepPolicy("Older-Account")
	require.NoError(t, err)
	keep, _ = p(b, a)
	assert.Equal(t, "a", keep.ID)

	_, err = ParseKeepPolicy("coin-flip")
	assert.Error(t, err)
}

func TestPreferRecentVisit_TieKeepsOlder(t *testing.T) {
	a := newAccount("a", "d", 10, 100)
	b := newAccount("b", "d", 0, 100)

	keep, absorb := PreferRecentVisit(a, b)
	assert.Equal(t, "b", keep.ID)
	assert.Equal(t, "a", absorb.ID)
}
