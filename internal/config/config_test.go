package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := loadFrom(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "catppuccin-mocha", cfg.Theme)
	assert.Equal(t, int64(1000), cfg.BucketThreshold)
}

func TestPartialFileMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theme": "gruvbox"}`), 0o644))

	cfg, err := loadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "gruvbox", cfg.Theme)
	// Unset keys keep their defaults.
	assert.Equal(t, Default().BucketThreshold, cfg.BucketThreshold)
	assert.Equal(t, Default().IngestBatchSize, cfg.IngestBatchSize)
}

func TestCorruptFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theme": `), 0o644))

	_, err := loadFrom(path)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Theme = "nord"
	cfg.SearchChunkSize = 512
	require.NoError(t, cfg.saveTo(path))

	got, err := loadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "nord", got.Theme)
	assert.Equal(t, int64(512), got.SearchChunkSize)
	assert.Equal(t, cfg.BucketThreshold, got.BucketThreshold)
}

func TestUnknownKeysSurviveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"theme": "nord", "future_knob": {"nested": true}}`), 0o644))

	cfg, err := loadFrom(path)
	require.NoError(t, err)

	cfg.Theme = "gruvbox"
	require.NoError(t, cfg.saveTo(path))

	again, err := loadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "gruvbox", again.Theme)
	require.Contains(t, again.extra, "future_knob")
	assert.JSONEq(t, `{"nested": true}`, string(again.extra["future_knob"]))
}
