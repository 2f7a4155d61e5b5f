package cli

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect_TextGolden(t *testing.T) {
	dbPath := seededDB(t)

	out, err := execute(t, NewInspectCommand(&RootOptions{Format: "text"}), "--db", dbPath, applejack)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "inspect_text", []byte(out))
}

func TestInspect_JSON(t *testing.T) {
	dbPath := seededDB(t)

	// Ids are normalized, so the upper-case form finds the account too.
	out, err := execute(t, NewInspectCommand(&RootOptions{Format: "json"}),
		"--db", dbPath, "0190A5C4-0000-7000-8000-000000000002")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   AccountReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, appleJack, resp.Data.Account.ID)
	require.Len(t, resp.Data.Characters, 1)
	assert.Equal(t, "Braeburn", resp.Data.Characters[0].Name)
	assert.Empty(t, resp.Data.Auths)
	assert.Empty(t, resp.Data.Origins)
	assert.Equal(t, []string{applejack}, resp.Data.SameDevice)
	assert.Empty(t, resp.Data.ReferencedBy)
}

func TestInspect_LoneAccount(t *testing.T) {
	dbPath := seededDB(t)

	out, err := execute(t, NewInspectCommand(&RootOptions{Format: "text"}), "--db", dbPath, rarity)
	require.NoError(t, err)
	assert.Contains(t, out, "Same device:   -\n")
	assert.Contains(t, out, "Characters (0):\n")
}

func TestInspect_UnknownAccount(t *testing.T) {
	dbPath := seededDB(t)

	out, err := execute(t, NewInspectCommand(&RootOptions{Format: "json"}), "--db", dbPath, "nobody")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}
