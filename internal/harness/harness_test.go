package harness

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewdru/ponyTown-sub010/internal/model"
)

func TestRun_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/reparent_character.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)

	// LoadScenario again: Run canonicalizes the records it puts.
	scenario, err = LoadScenario("testdata/scenarios/reparent_character.yaml")
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Transcript(), second.Transcript())
}

func TestRun_FailedAssertionsReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_expectations",
		Description: "Assertions that do not hold are reported, not returned",
		Steps: []Step{
			{Put: &Records{Accounts: []*model.Account{{ID: "a", Name: "Applejack"}}}},
			{Poll: true},
		},
		Assertions: []Assertion{
			{Type: AssertMirrored, Collection: model.AccountsCollection, IDs: []string{"a", "b"}},
			{Type: AssertTraceCount, Label: "nobody", Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertion 0 (mirrored)")
	assert.Contains(t, result.Errors[0], "Expected: [a,b]")
	assert.Contains(t, result.Errors[0], "Actual: [a]")
}

func TestRun_StepErrorAborts(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_record",
		Description: "A record without id cannot be written",
		Steps: []Step{
			{Put: &Records{Characters: []*model.Character{{Name: "Nameless"}}}},
		},
		Assertions: []Assertion{{Type: AssertMirrored, Collection: model.CharactersCollection}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1")
	assert.ErrorIs(t, err, model.ErrMissingID)
}

func TestRun_UnsubscribeStopsDeliveries(t *testing.T) {
	scenario := &Scenario{
		Name:        "unsubscribe",
		Description: "Nothing is delivered after unsubscribing",
		Steps: []Step{
			{Put: &Records{Accounts: []*model.Account{{ID: "a", Name: "Applejack"}}}},
			{Poll: true},
			{Subscribe: &Subscription{Label: "acct-a", Account: "a"}},
			{Unsubscribe: "acct-a"},
			{Put: &Records{Accounts: []*model.Account{{ID: "a", Name: "Apple Jack"}}}},
			{Poll: true},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Label: "acct-a", Count: 1},
			{Type: AssertTraceLast, Label: "acct-a", Value: "a Applejack"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_AdvanceMovesStamps(t *testing.T) {
	scenario := &Scenario{
		Name:        "advance",
		Description: "Records put after an advance are stamped later",
		Steps: []Step{
			{Advance: time.Hour},
			{Put: &Records{Auths: []*model.Auth{{ID: "g1", Account: "a", Provider: "google"}}}},
			{Poll: true},
		},
		Assertions: []Assertion{
			{Type: AssertUnassigned, Relation: "auths", IDs: []string{"g1"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	auth := scenario.Steps[1].Put.Auths[0]
	assert.Equal(t, Epoch.Add(time.Hour+stepTick), auth.UpdatedAt)
}

func TestRun_AuthsAndOriginsRelations(t *testing.T) {
	scenario := &Scenario{
		Name:        "relations",
		Description: "Auths order by provider and origins follow the account",
		Steps: []Step{
			{Put: &Records{
				Accounts: []*model.Account{{
					ID:      "a",
					Name:    "Applejack",
					Origins: []model.OriginRef{{IP: "10.0.0.1"}, {IP: "10.0.0.2"}},
				}},
				Origins: []*model.Origin{{IP: "10.0.0.2", Country: "PL"}},
				Auths: []*model.Auth{
					{ID: "t1", Account: "a", Provider: "twitter"},
					{ID: "g1", Account: "a", Provider: "google"},
				},
			}},
			{Poll: true},
			{Subscribe: &Subscription{Label: "origins-a", Account: "a", Relation: "origins"}},
		},
		Assertions: []Assertion{
			{Type: AssertChildren, Account: "a", Relation: "auths", IDs: []string{"g1", "t1"}},
			{Type: AssertChildren, Account: "a", Relation: "origins", IDs: []string{"10.0.0.1", "10.0.0.2"}},
			{Type: AssertTraceLast, Label: "origins-a", Value: "[10.0.0.1=?? 10.0.0.2=PL]"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
