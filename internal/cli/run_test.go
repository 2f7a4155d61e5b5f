package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ServesUntilCancelled(t *testing.T) {
	dbPath := seededDB(t)
	cfgPath := filepath.Join(t.TempDir(), "replica.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`poll_interval: 20ms
stagger: 1ms
duplicates:
  interval: 20ms
`), 0644))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	out, err := executeContext(t, ctx, NewRunCommand(&RootOptions{Format: "text"}),
		"--db", dbPath, "--config", cfgPath, "--metrics-addr", "127.0.0.1:0", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Replica started")
}

func TestRun_SchedulerDisabled(t *testing.T) {
	dbPath := seededDB(t)
	cfgPath := filepath.Join(t.TempDir(), "replica.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("duplicates:\n  interval: 0s\n"), 0644))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := executeContext(t, ctx, NewRunCommand(&RootOptions{Format: "text"}),
		"--db", dbPath, "--config", cfgPath)
	require.NoError(t, err)
}

func TestRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "replica.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("poll_interval: often\n"), 0644))

	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}),
		"--db", filepath.Join(dir, "pony.db"), "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRun_MissingBackend(t *testing.T) {
	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}

func TestRun_UnreachableStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing-dir", "pony.db")

	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
