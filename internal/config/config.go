// Package config loads the replica configuration file.
//
// The file is YAML. It is checked against an embedded CUE schema before
// being decoded, so that typos and out-of-range values are reported with
// their path instead of being silently ignored.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/drewdru/ponyTown-sub010/internal/dupes"
	"github.com/drewdru/ponyTown-sub010/internal/replica"
)

//go:embed schema.cue
var schemaSrc string

// Config is the decoded configuration file.
type Config struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PageSize     int           `yaml:"page_size"`
	PruneEvery   int           `yaml:"prune_every"`
	Stagger      time.Duration `yaml:"stagger"`
	LazyChildren bool          `yaml:"lazy_children"`
	Duplicates   Duplicates    `yaml:"duplicates"`
}

// Duplicates configures the duplicate merge scheduler.
type Duplicates struct {
	// Interval between scheduler runs. Zero disables the scheduler.
	Interval        time.Duration `yaml:"interval"`
	QuietPeriod     time.Duration `yaml:"quiet_period"`
	MaxSharedDevice int           `yaml:"max_shared_device"`
	MaxMergesPerRun int           `yaml:"max_merges_per_run"`
	KeepPolicy      string        `yaml:"keep_policy"`
	CheckOnLoad     bool          `yaml:"check_on_load"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	opts := replica.DefaultOptions()
	dup := dupes.DefaultConfig()
	return Config{
		PollInterval: opts.PollInterval,
		PageSize:     opts.PageSize,
		PruneEvery:   opts.PruneEvery,
		Stagger:      opts.Stagger,
		LazyChildren: opts.LazyChildren,
		Duplicates: Duplicates{
			Interval:        10 * time.Second,
			QuietPeriod:     dup.QuietPeriod,
			MaxSharedDevice: dup.MaxSharedDevice,
			MaxMergesPerRun: dup.MaxMergesPerRun,
			KeepPolicy:      dupes.PolicyRecentVisit,
			CheckOnLoad:     dup.CheckOnLoad,
		},
	}
}

// Load reads and validates the file at path. An empty path returns
// Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates data against the schema and decodes it over Default().
func Parse(data []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := validate(raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func validate(raw map[string]any) error {
	if raw == nil {
		raw = map[string]any{}
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := def.Unify(ctx.Encode(raw))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}
	return nil
}

// ReplicaOptions converts the polling settings. Clock, logger and observer
// are left for the caller.
func (c Config) ReplicaOptions() replica.Options {
	return replica.Options{
		PollInterval: c.PollInterval,
		Stagger:      c.Stagger,
		PageSize:     c.PageSize,
		PruneEvery:   c.PruneEvery,
		LazyChildren: c.LazyChildren,
	}
}

// SchedulerConfig converts the duplicate settings.
func (c Config) SchedulerConfig() (dupes.Config, error) {
	keep, err := dupes.ParseKeepPolicy(c.Duplicates.KeepPolicy)
	if err != nil {
		return dupes.Config{}, err
	}
	return dupes.Config{
		QuietPeriod:     c.Duplicates.QuietPeriod,
		MaxSharedDevice: c.Duplicates.MaxSharedDevice,
		MaxMergesPerRun: c.Duplicates.MaxMergesPerRun,
		Keep:            keep,
		CheckOnLoad:     c.Duplicates.CheckOnLoad,
	}, nil
}
