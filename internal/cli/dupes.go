package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/drewdru/ponyTown-sub010/internal/config"
	"github.com/drewdru/ponyTown-sub010/internal/dupes"
	"github.com/drewdru/ponyTown-sub010/internal/live"
	"github.com/drewdru/ponyTown-sub010/internal/replica"
)

// DupesOptions holds flags for the dupes command.
type DupesOptions struct {
	*RootOptions
	Backend    BackendOptions
	ConfigPath string
	DryRun     bool

	// Clock allows overriding the wall clock (for testing).
	// If nil, defaults to the system clock.
	Clock live.Clock
}

// DupesResult reports one pass of the duplicate scheduler.
type DupesResult struct {
	DryRun   bool          `json:"dryRun"`
	Merges   []dupes.Merge `json:"merges"`
	Deferred int           `json:"deferred"`
}

// WriteText implements TextWriter.
func (r DupesResult) WriteText(w io.Writer) error {
	verb := "merged"
	if r.DryRun {
		verb = "would merge"
	}
	for _, m := range r.Merges {
		if _, err := fmt.Fprintf(w, "%s %s into %s (%s)\n", verb, m.Absorb, m.Keep, m.Reason); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d merges, %d accounts deferred\n", len(r.Merges), r.Deferred)
	return err
}

// NewDupesCommand creates the dupes command.
func NewDupesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DupesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dupes",
		Short: "Run one duplicate-account pass",
		Long: `Load the account mirror once, check every account for duplicates
sharing its device id, and merge them.

Accounts younger than the configured quiet period are reported as deferred.

Example:
  ponyreplica dupes --db ./pony.db --dry-run
  ponyreplica dupes --db ./pony.db --config replica.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDupes(opts, cmd)
		},
	}

	opts.Backend.addFlags(cmd)
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report merges without performing them")

	return cmd
}

func runDupes(opts *DupesOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(os.Stderr, opts.Verbose)
	out := opts.formatter(cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err, nil)
	}
	schedCfg, err := cfg.SchedulerConfig()
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err, nil)
	}
	schedCfg.CheckOnLoad = true

	be, err := openBackend(ctx, opts.Backend)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeStore, "failed to open store", err, nil)
	}
	defer be.Close()

	merger, err := be.merger(logger, opts.DryRun)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up merges", err)
	}

	ropts := cfg.ReplicaOptions()
	ropts.Logger = logger
	if opts.Clock != nil {
		ropts.Clock = opts.Clock
	}
	rep := replica.New(be.sources, ropts)

	// Nothing else touches the mirror, so the scheduler can run inline.
	schedOpts := []dupes.Option{dupes.WithLogger(logger)}
	if opts.Clock != nil {
		schedOpts = append(schedOpts, dupes.WithClock(opts.Clock))
	}
	sched := dupes.NewScheduler(schedCfg, rep, merger, &live.Inline{}, schedOpts...)
	rep.WatchAccounts(sched.Touched)

	if err := rep.Load(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to load accounts", err)
	}
	out.VerboseLog("loaded %d accounts, %d queued", rep.Accounts.Len(), sched.Pending())

	res := DupesResult{DryRun: opts.DryRun, Merges: []dupes.Merge{}}
	for {
		merges, err := sched.Run(ctx)
		res.Merges = append(res.Merges, merges...)
		if err != nil {
			var mergeErr *dupes.MergeError
			if errors.As(err, &mergeErr) {
				return out.Fail(ExitFailure, ErrCodeMergeFailed, "duplicate pass failed", err, res)
			}
			return WrapExitError(ExitFailure, "duplicate pass failed", err)
		}
		if len(merges) == 0 {
			break
		}
	}
	res.Deferred = sched.Pending()

	return out.Success(res)
}
