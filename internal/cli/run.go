package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/drewdru/ponyTown-sub010/internal/config"
	"github.com/drewdru/ponyTown-sub010/internal/dupes"
	"github.com/drewdru/ponyTown-sub010/internal/live"
	"github.com/drewdru/ponyTown-sub010/internal/metrics"
	"github.com/drewdru/ponyTown-sub010/internal/replica"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Backend     BackendOptions
	ConfigPath  string
	MetricsAddr string
	DryRun      bool

	// Clock allows overriding the wall clock (for testing).
	// If nil, defaults to the system clock.
	Clock live.Clock
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Mirror the store and merge duplicates until stopped",
		Long: `Start the replica: poll every collection into memory, maintain the
e-mail, device and note indices, and run the duplicate merge scheduler.

Example:
  ponyreplica run --db ./pony.db
  ponyreplica run --mongo-uri mongodb://localhost:27017 --config replica.yaml --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplica(opts, cmd)
		},
	}

	opts.Backend.addFlags(cmd)
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "log duplicate merges instead of performing them")

	return cmd
}

func runReplica(opts *RunOptions, cmd *cobra.Command) error {
	logger := newLogger(os.Stderr, opts.Verbose)
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	schedCfg, err := cfg.SchedulerConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("opening store", "backend", describeBackend(opts.Backend))
	be, err := openBackend(ctx, opts.Backend)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := be.Close(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()

	dryRun := opts.DryRun
	if be.store == nil && !dryRun {
		slog.Warn("merge transport unavailable for this backend, duplicate merges will only be logged")
		dryRun = true
	}
	merger, err := be.merger(logger, dryRun)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up merges", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	if opts.MetricsAddr != "" {
		stop, err := serveMetrics(opts.MetricsAddr, m)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to serve metrics", err)
		}
		defer stop()
	}

	ropts := cfg.ReplicaOptions()
	ropts.Logger = logger
	ropts.Observer = m
	if opts.Clock != nil {
		ropts.Clock = opts.Clock
	}
	rep := replica.New(be.sources, ropts)

	schedDone := make(chan struct{})
	if cfg.Duplicates.Interval > 0 {
		schedOpts := []dupes.Option{dupes.WithLogger(logger), dupes.WithObserver(m)}
		if opts.Clock != nil {
			schedOpts = append(schedOpts, dupes.WithClock(opts.Clock))
		}
		sched := dupes.NewScheduler(schedCfg, rep, merger, rep, schedOpts...)
		rep.WatchAccounts(sched.Touched)
		go func() {
			defer close(schedDone)
			sched.Loop(ctx, cfg.Duplicates.Interval)
		}()
	} else {
		close(schedDone)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Replica started. Mirroring collections...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	err = rep.Serve(ctx)
	<-schedDone
	if err != nil {
		return WrapExitError(ExitFailure, "replica error", err)
	}

	slog.Info("replica stopped gracefully")
	return nil
}

// serveMetrics exposes m on addr. The returned function shuts the server
// down.
func serveMetrics(addr string, m *metrics.Metrics) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
