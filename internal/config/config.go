// Package config persists user configuration as JSON under the standard
// user configuration directory. Keys it does not know about are preserved
// across load/save so newer and older builds can share a config file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the user-tunable settings. The engine tunables are
// configuration, not constants: start from the defaults and benchmark-tune
// them against real inputs.
type Config struct {
	Theme           string `json:"theme"`
	BucketThreshold int64  `json:"bucket_threshold"`
	IngestBatchSize int    `json:"ingest_batch_size"`
	SearchChunkSize int64  `json:"search_chunk_size"`

	// extra holds unknown keys found in the file, written back on Save.
	extra map[string]json.RawMessage
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Theme:           "catppuccin-mocha",
		BucketThreshold: 1000,
		IngestBatchSize: 10000,
		SearchChunkSize: 256,
	}
}

var knownKeys = map[string]bool{
	"theme":             true,
	"bucket_threshold":  true,
	"ingest_batch_size": true,
	"search_chunk_size": true,
}

// Dir returns the configuration directory, creating it if needed.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	dir := filepath.Join(base, "twig")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// File returns the configuration file path.
func File() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config file, merging it over the defaults. A missing file
// yields the defaults; a corrupt file is an error so the user's settings
// are never silently clobbered.
func Load() (Config, error) {
	cfg := Default()
	path, err := File()
	if err != nil {
		return cfg, err
	}
	return loadFrom(path)
}

func loadFrom(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	for k, v := range raw {
		if !knownKeys[k] {
			if cfg.extra == nil {
				cfg.extra = make(map[string]json.RawMessage)
			}
			cfg.extra[k] = v
		}
	}
	return cfg, nil
}

// Save writes the configuration, including preserved unknown keys.
func (c Config) Save() error {
	path, err := File()
	if err != nil {
		return err
	}
	return c.saveTo(path)
}

func (c Config) saveTo(path string) error {
	out := map[string]any{
		"theme":             c.Theme,
		"bucket_threshold":  c.BucketThreshold,
		"ingest_batch_size": c.IngestBatchSize,
		"search_chunk_size": c.SearchChunkSize,
	}
	for k, v := range c.extra {
		out[k] = v
	}
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
