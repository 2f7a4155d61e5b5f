package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewdru/ponyTown-sub010/internal/dupes"
)

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 60, cfg.PruneEvery)
	assert.Equal(t, time.Hour, cfg.Duplicates.QuietPeriod)
}

func TestLoad_FullFile(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "full.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 500, cfg.PageSize)
	assert.Equal(t, 30, cfg.PruneEvery)
	assert.Equal(t, 250*time.Millisecond, cfg.Stagger)
	assert.True(t, cfg.LazyChildren)
	assert.Equal(t, Duplicates{
		Interval:        time.Minute,
		QuietPeriod:     30 * time.Minute,
		MaxSharedDevice: 3,
		MaxMergesPerRun: 4,
		KeepPolicy:      "older-account",
		CheckOnLoad:     true,
	}, cfg.Duplicates)

	opts := cfg.ReplicaOptions()
	assert.Equal(t, 500, opts.PageSize)
	assert.True(t, opts.LazyChildren)

	sched, err := cfg.SchedulerConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, sched.MaxMergesPerRun)
	assert.Equal(t, reflect.ValueOf(dupes.PreferOlderAccount).Pointer(), reflect.ValueOf(sched.Keep).Pointer())
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("page_size: 10\nduplicates:\n  max_shared_device: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, 0, cfg.Duplicates.MaxSharedDevice)
	assert.Equal(t, Default().PollInterval, cfg.PollInterval)
	assert.Equal(t, Default().Duplicates.QuietPeriod, cfg.Duplicates.QuietPeriod)
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "poll_intervall: 1s\n", "poll_intervall"},
		{"bad duration", "poll_interval: soon\n", "poll_interval"},
		{"numeric duration", "stagger: 5\n", "stagger"},
		{"negative page", "page_size: -1\n", "page_size"},
		{"unknown policy", "duplicates:\n  keep_policy: newest\n", "keep_policy"},
		{"nested unknown key", "duplicates:\n  quiet: 1h\n", "quiet"},
		{"not yaml", "poll_interval: [\n", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_ErrorNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prune_every: lots\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}
