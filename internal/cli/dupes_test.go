package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewdru/ponyTown-sub010/internal/dupes"
	"github.com/drewdru/ponyTown-sub010/internal/live"
	"github.com/drewdru/ponyTown-sub010/internal/model"
	"github.com/drewdru/ponyTown-sub010/internal/store"
)

func TestDupes_DryRunReportsWithoutWriting(t *testing.T) {
	dbPath := seededDB(t)

	out, err := execute(t, NewDupesCommand(&RootOptions{Format: "json"}), "--db", dbPath, "--dry-run")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   DupesResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.DryRun)
	assert.Equal(t, []dupes.Merge{{Keep: applejack, Absorb: appleJack, Reason: "duplicate device dev-1"}}, resp.Data.Merges)
	assert.Zero(t, resp.Data.Deferred)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	_, err = store.NewSource[model.Account](st, model.AccountsCollection).Get(context.Background(), appleJack)
	assert.NoError(t, err, "dry run leaves the store alone")
}

func TestDupes_MergesIntoStore(t *testing.T) {
	dbPath := seededDB(t)

	out, err := execute(t, NewDupesCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "merged "+appleJack+" into "+applejack+" (duplicate device dev-1)\n1 merges, 0 accounts deferred\n", out)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	_, err = store.NewSource[model.Account](st, model.AccountsCollection).Get(ctx, appleJack)
	assert.ErrorIs(t, err, store.ErrNotFound)

	chars, err := store.NewSource[model.Character](st, model.CharactersCollection).
		Find(ctx, live.Filter{"account": applejack})
	require.NoError(t, err)
	assert.Len(t, chars, 3)

	events, err := store.NewSource[model.Event](st, model.EventsCollection).
		Find(ctx, live.Filter{"type": model.EventMerge})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, applejack, events[0].Account)
}

func TestDupes_YoungAccountsDeferred(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "pony.db")
	fixture := filepath.Join(dir, "young.yaml")
	// No stamps: seed stamps both with the current time.
	require.NoError(t, os.WriteFile(fixture, []byte(`accounts:
  - id: a
    browserId: shared
  - id: b
    browserId: shared
`), 0644))
	_, err := execute(t, NewSeedCommand(&RootOptions{Format: "text"}), "--db", dbPath, fixture)
	require.NoError(t, err)

	out, err := execute(t, NewDupesCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "0 merges, 2 accounts deferred\n", out)
}

func TestDupes_InvalidConfig(t *testing.T) {
	dbPath := seededDB(t)
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("duplicates:\n  keep_policy: newest\n"), 0644))

	_, err := execute(t, NewDupesCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDupes_OlderAccountPolicy(t *testing.T) {
	dbPath := seededDB(t)
	cfgPath := filepath.Join(t.TempDir(), "replica.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("duplicates:\n  keep_policy: older-account\n"), 0644))

	out, err := execute(t, NewDupesCommand(&RootOptions{Format: "text"}),
		"--db", dbPath, "--config", cfgPath, "--dry-run")
	require.NoError(t, err)
	// Both policies keep the first account here: it is older and was
	// visited more recently.
	assert.Contains(t, out, "would merge "+appleJack+" into "+applejack)
}
