package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/drewdru/ponyTown-sub010/internal/live"
	"github.com/drewdru/ponyTown-sub010/internal/model"
	"github.com/drewdru/ponyTown-sub010/internal/store"
	"github.com/drewdru/ponyTown-sub010/internal/store/mongostore"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Backend BackendOptions

	// Clock stamps records without an updatedAt (for testing).
	// If nil, defaults to the system clock.
	Clock live.Clock
}

// Fixtures is the YAML layout read by seed.
type Fixtures struct {
	Accounts   []*model.Account   `yaml:"accounts"`
	Auths      []*model.Auth      `yaml:"auths"`
	Characters []*model.Character `yaml:"characters"`
	Origins    []*model.Origin    `yaml:"origins"`
	Events     []*model.Event     `yaml:"events"`
}

// SeedResult counts the records written per collection.
type SeedResult struct {
	Accounts   int `json:"accounts"`
	Auths      int `json:"auths"`
	Characters int `json:"characters"`
	Origins    int `json:"origins"`
	Events     int `json:"events"`

	// Stored is the per-collection document count after seeding. SQLite only.
	Stored map[string]int `json:"stored,omitempty"`
}

// WriteText implements TextWriter.
func (r SeedResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Seeded %d accounts, %d auths, %d characters, %d origins, %d events\n",
		r.Accounts, r.Auths, r.Characters, r.Origins, r.Events)
	return err
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <fixtures.yaml>...",
		Short: "Load YAML fixtures into the store",
		Long: `Write the records of one or more YAML fixture files into the store.

Records are normalized the way the replica normalizes them on read. Records
without an updatedAt are stamped with the current time so that a running
replica picks them up on its next poll.

Example:
  ponyreplica seed --db ./pony.db fixtures/accounts.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, args, cmd)
		},
	}
	opts.Backend.addFlags(cmd)
	return cmd
}

func runSeed(opts *SeedOptions, paths []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	clock := opts.Clock
	if clock == nil {
		clock = live.SystemClock{}
	}

	var all Fixtures
	for _, path := range paths {
		fx, err := readFixtures(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read fixtures", err)
		}
		all.Accounts = append(all.Accounts, fx.Accounts...)
		all.Auths = append(all.Auths, fx.Auths...)
		all.Characters = append(all.Characters, fx.Characters...)
		all.Origins = append(all.Origins, fx.Origins...)
		all.Events = append(all.Events, fx.Events...)
	}

	be, err := openBackend(ctx, opts.Backend)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer be.Close()

	now := clock.Now()
	var res SeedResult
	steps := []func() error{
		func() (err error) {
			res.Accounts, err = seedRecords(ctx, be, model.AccountsCollection, all.Accounts, model.FixAccount, now)
			return err
		},
		func() (err error) {
			res.Origins, err = seedRecords(ctx, be, model.OriginsCollection, all.Origins, model.FixOrigin, now)
			return err
		},
		func() (err error) {
			res.Auths, err = seedRecords(ctx, be, model.AuthsCollection, all.Auths, model.FixAuth, now)
			return err
		},
		func() (err error) {
			res.Characters, err = seedRecords(ctx, be, model.CharactersCollection, all.Characters, model.FixCharacter, now)
			return err
		},
		func() (err error) {
			res.Events, err = seedRecords(ctx, be, model.EventsCollection, all.Events, model.FixEvent, now)
			return err
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return WrapExitError(ExitFailure, "failed to seed store", err)
		}
	}

	if be.store != nil {
		if res.Stored, err = be.store.Stats(ctx); err != nil {
			return WrapExitError(ExitFailure, "failed to count documents", err)
		}
	}
	return opts.formatter(cmd).Success(res)
}

func readFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &fx, nil
}

// stamped is a record whose stamps seed can fill in.
type stamped interface {
	store.Record
	Touch(now time.Time)
}

func seedRecords[T any](ctx context.Context, be *backend, collection string, items []*T, fix func(*T) error, now time.Time) (int, error) {
	for i, item := range items {
		if err := fix(item); err != nil {
			return i, fmt.Errorf("%s #%d: %w", collection, i, err)
		}
		rec, ok := any(item).(stamped)
		if !ok {
			return i, fmt.Errorf("%s: %T is not a record", collection, item)
		}
		if _, updated := rec.RecordTimes(); updated.IsZero() {
			rec.Touch(now)
		}

		var err error
		if be.db != nil {
			err = mongostore.NewSource[T](be.db.Collection(collection)).Put(ctx, rec.RecordID(), item)
		} else {
			err = be.store.Put(ctx, collection, rec)
		}
		if err != nil {
			return i, err
		}
	}
	return len(items), nil
}
