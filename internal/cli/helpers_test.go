package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const (
	applejack = "0190a5c4-0000-7000-8000-000000000001"
	appleJack = "0190a5c4-0000-7000-8000-000000000002"
	rarity    = "0190a5c4-0000-7000-8000-000000000003"
)

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), cmd, args...)
}

func executeContext(t *testing.T, ctx context.Context, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

// seededDB returns a fresh database holding testdata/ponies.yaml.
func seededDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "pony.db")
	_, err := execute(t, NewSeedCommand(&RootOptions{Format: "text"}),
		"--db", dbPath, filepath.Join("testdata", "ponies.yaml"))
	require.NoError(t, err)
	return dbPath
}
