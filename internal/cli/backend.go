package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/drewdru/ponyTown-sub010/internal/dupes"
	"github.com/drewdru/ponyTown-sub010/internal/merge"
	"github.com/drewdru/ponyTown-sub010/internal/model"
	"github.com/drewdru/ponyTown-sub010/internal/replica"
	"github.com/drewdru/ponyTown-sub010/internal/store"
	"github.com/drewdru/ponyTown-sub010/internal/store/mongostore"
)

// errNoMergeTransport is returned when merging is requested against a
// backend that cannot merge.
var errNoMergeTransport = errors.New("merging is only supported with --db")

// BackendOptions selects the document store a command reads.
type BackendOptions struct {
	Database string // SQLite path
	MongoURI string
	MongoDB  string // database name on the Mongo server
}

func (o *BackendOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&o.MongoURI, "mongo-uri", "", "MongoDB connection URI")
	cmd.Flags().StringVar(&o.MongoDB, "mongo-db", "pony", "MongoDB database name")
	cmd.MarkFlagsOneRequired("db", "mongo-uri")
	cmd.MarkFlagsMutuallyExclusive("db", "mongo-uri")
}

// backend is an opened document store.
type backend struct {
	sources replica.Sources
	store   *store.Store  // nil for Mongo
	client  *mongo.Client // nil for SQLite
	db      *mongo.Database
}

func openBackend(ctx context.Context, opts BackendOptions) (*backend, error) {
	if opts.MongoURI != "" {
		return openMongo(ctx, opts)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, err
	}
	return &backend{
		store: st,
		sources: replica.Sources{
			Accounts:   store.NewSource[model.Account](st, model.AccountsCollection),
			Auths:      store.NewSource[model.Auth](st, model.AuthsCollection),
			Characters: store.NewSource[model.Character](st, model.CharactersCollection),
			Origins:    store.NewSource[model.Origin](st, model.OriginsCollection),
			Events:     store.NewSource[model.Event](st, model.EventsCollection),
		},
	}, nil
}

func openMongo(ctx context.Context, opts BackendOptions) (*backend, error) {
	client, err := mongostore.Connect(ctx, opts.MongoURI)
	if err != nil {
		return nil, err
	}
	db := client.Database(opts.MongoDB)

	accounts := mongostore.NewSource[model.Account](db.Collection(model.AccountsCollection))
	auths := mongostore.NewSource[model.Auth](db.Collection(model.AuthsCollection))
	characters := mongostore.NewSource[model.Character](db.Collection(model.CharactersCollection))
	origins := mongostore.NewSource[model.Origin](db.Collection(model.OriginsCollection))
	events := mongostore.NewSource[model.Event](db.Collection(model.EventsCollection))

	for _, ix := range []interface{ EnsureIndexes(context.Context) error }{accounts, auths, characters, origins, events} {
		if err := ix.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
	}
	return &backend{
		client: client,
		db:     db,
		sources: replica.Sources{
			Accounts:   accounts,
			Auths:      auths,
			Characters: characters,
			Origins:    origins,
			Events:     events,
		},
	}, nil
}

// merger returns the merge transport of the backend, or a logging stand-in
// when dryRun is set.
func (b *backend) merger(logger *slog.Logger, dryRun bool) (dupes.Merger, error) {
	if dryRun {
		return &dryRunMerger{logger: logger}, nil
	}
	if b.store == nil {
		return nil, errNoMergeTransport
	}
	return merge.New(b.store, merge.WithLogger(logger)), nil
}

func (b *backend) Close() error {
	if b.client != nil {
		return b.client.Disconnect(context.Background())
	}
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

// dryRunMerger logs merges instead of performing them.
type dryRunMerger struct {
	logger *slog.Logger
}

func (m *dryRunMerger) MergeAccounts(_ context.Context, keepID, absorbID, reason string, automatic bool) error {
	m.logger.Info("dry run: would merge accounts",
		"keep", keepID,
		"absorb", absorbID,
		"reason", reason,
		"automatic", automatic,
	)
	return nil
}

func describeBackend(opts BackendOptions) string {
	if opts.MongoURI != "" {
		return fmt.Sprintf("mongo database %s", opts.MongoDB)
	}
	return opts.Database
}
