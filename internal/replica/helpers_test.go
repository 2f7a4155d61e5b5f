package replica

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drewdru/ponyTown-sub010/internal/model"
	"github.com/drewdru/ponyTown-sub010/internal/testutil"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return epoch.Add(time.Duration(ms) * time.Millisecond) }

// fixture bundles a replica with the in-memory stores behind it.
type fixture struct {
	r          *Replica
	accounts   *testutil.MemSource[model.Account]
	auths      *testutil.MemSource[model.Auth]
	characters *testutil.MemSource[model.Character]
	origins    *testutil.MemSource[model.Origin]
	events     *testutil.MemSource[model.Event]
	clock      *testutil.ManualClock
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		accounts:   testutil.NewMemSource(model.AccountID, model.AccountStamp),
		auths:      testutil.NewMemSource(model.AuthID, model.AuthStamp),
		characters: testutil.NewMemSource(model.CharacterID, model.CharacterStamp),
		origins:    testutil.NewMemSource(model.OriginID, model.OriginStamp),
		events:     testutil.NewMemSource(model.EventID, model.EventStamp),
		clock:      testutil.NewManualClock(at(0)),
	}
	opts := DefaultOptions()
	opts.Clock = f.clock
	for _, fn := range mutate {
		fn(&opts)
	}
	f.r = New(Sources{
		Accounts:   f.accounts,
		Auths:      f.auths,
		Characters: f.characters,
		Origins:    f.origins,
		Events:     f.events,
	}, opts)
	return f
}

// poll runs one incremental pass of every collection in dependency order,
// on the test goroutine.
func (f *fixture) poll(t *testing.T) {
	t.Helper()
	require.NoError(t, f.r.Load(context.Background()))
}

func account(id string, ms int, emails ...string) *model.Account {
	return &model.Account{
		ID:     id,
		Name:   "pony " + id,
		Emails: emails,
		Stamps: model.Stamps{CreatedAt: at(ms), UpdatedAt: at(ms)},
	}
}

func character(id, accountID, name string, ms int) *model.Character {
	return &model.Character{
		ID:      id,
		Account: accountID,
		Name:    name,
		Stamps:  model.Stamps{CreatedAt: at(ms), UpdatedAt: at(ms)},
	}
}

func auth(id, accountID, provider string, ms int) *model.Auth {
	return &model.Auth{
		ID:       id,
		Account:  accountID,
		Provider: provider,
		Stamps:   model.Stamps{CreatedAt: at(ms), UpdatedAt: at(ms)},
	}
}

func characterNames(views []model.CharacterView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Name
	}
	return out
}

func characterIDs(chars []*model.Character) []string {
	out := make([]string, len(chars))
	for i, c := range chars {
		out[i] = c.ID
	}
	return out
}

func accountIDs(accounts []*model.Account) []string {
	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = a.ID
	}
	return out
}
