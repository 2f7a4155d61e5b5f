package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ponyreplica", cmd.Use)
	assert.Contains(t, cmd.Long, "duplicate accounts")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "seed", "dupes", "inspect", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestBackendFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "seed", "dupes", "inspect"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)

			require.NotNil(t, sub.Flags().Lookup("db"))
			require.NotNil(t, sub.Flags().Lookup("mongo-uri"))
			mongoDB := sub.Flags().Lookup("mongo-db")
			require.NotNil(t, mongoDB)
			assert.Equal(t, "pony", mongoDB.DefValue)
		})
	}
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"config", "metrics-addr", "dry-run"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "inspect", "--db", "x.db", "id"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestBackendFlagsRequired(t *testing.T) {
	_, err := execute(t, NewInspectCommand(&RootOptions{Format: "text"}), "some-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo-uri")
}

func TestBackendFlagsExclusive(t *testing.T) {
	_, err := execute(t, NewInspectCommand(&RootOptions{Format: "text"}),
		"--db", "x.db", "--mongo-uri", "mongodb://localhost", "some-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others")
}
