package live

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pollable is the part of a Collection the Poller drives. It lets one
// Poller type serve collections of every record type.
type Pollable interface {
	Name() string
	Ephemeral() bool
	ResetWatermark()
	PollOnce(ctx context.Context, ex Executor) error
	PruneOnce(ctx context.Context, ex Executor) (int, error)
}

// PollerConfig tunes a Poller.
type PollerConfig struct {
	// Interval is the pause between the end of one poll and the start of
	// the next.
	Interval time.Duration

	// Delay staggers the first poll.
	Delay time.Duration

	// PruneEvery runs a deletion pass after every n-th poll. Zero disables.
	PruneEvery int
}

// Poller runs the scheduling loop of one collection. At most one poll is in
// flight; the next tick is armed only after the current poll settles.
type Poller struct {
	target Pollable
	ex     Executor
	cfg    PollerConfig
	logger *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewPoller creates a stopped poller for target. Apply halves run through ex.
func NewPoller(target Pollable, ex Executor, cfg PollerConfig, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		target: target,
		ex:     ex,
		cfg:    cfg,
		logger: logger.With("collection", target.Name()),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the loop. It returns immediately.
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop cancels the pending timer and waits for the loop to exit. An
// in-flight poll completes and its results are applied.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

// Done is closed when the loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	if !p.sleep(ctx, p.cfg.Delay) {
		return
	}

	if p.target.Ephemeral() {
		if err := p.ex.Exec(ctx, p.target.ResetWatermark); err != nil {
			return
		}
	}
	p.logger.Info("poller started", "interval", p.cfg.Interval, "delay", p.cfg.Delay)

	ticks := 0
	for {
		// Polls run detached from ctx cancellation once started so that an
		// in-flight poll is applied whole.
		if err := p.target.PollOnce(context.WithoutCancel(ctx), p.ex); err != nil {
			p.logger.Error("poll failed", "error", err)
		}
		ticks++

		if p.cfg.PruneEvery > 0 && ticks%p.cfg.PruneEvery == 0 && !p.target.Ephemeral() {
			n, err := p.target.PruneOnce(context.WithoutCancel(ctx), p.ex)
			if err != nil {
				p.logger.Error("prune failed", "error", err)
			} else if n > 0 {
				p.logger.Info("pruned records missing from store", "removed", n)
			}
		}

		if !p.sleep(ctx, p.cfg.Interval) {
			p.logger.Info("poller stopped")
			return
		}
	}
}

// sleep waits d, returning false if the poller was stopped first.
func (p *Poller) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-p.stop:
		return false
	case <-ctx.Done():
		return false
	default:
	}
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-p.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// Ephemeral reports whether the collection starts its watermark at "now".
func (c *Collection[T, S]) Ephemeral() bool { return c.cfg.Ephemeral }

// PollOnce pulls on the calling goroutine and applies through ex.
func (c *Collection[T, S]) PollOnce(ctx context.Context, ex Executor) error {
	batch, err := c.Pull(ctx)
	if err != nil {
		return err
	}
	return ex.Exec(ctx, func() { c.Apply(batch) })
}

// PruneOnce lists store ids on the calling goroutine and prunes through ex.
func (c *Collection[T, S]) PruneOnce(ctx context.Context, ex Executor) (int, error) {
	asOf := c.PruneAsOf()
	ids, err := c.src.ListIDs(ctx)
	if err != nil {
		return 0, &Error{Code: ErrCodePollFailed, Collection: c.cfg.Name, Err: err}
	}
	removed := 0
	if err := ex.Exec(ctx, func() { removed = c.Prune(ids, asOf) }); err != nil {
		return 0, err
	}
	return removed, nil
}
