// Package config loads the non-functional options a Replica is
// constructed with, via TOML.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config holds options that tune behavior without changing protocol
// semantics: whether stability updates auto-trigger compaction, which
// hash algorithm identifier to record (reserved for future agility — the
// wire format is always SHA-256 today), and a cap on how many entries a
// single delta may carry before the sender refuses to build it, so one
// pathologically large catch-up swap can't be forced through in a single
// message. Zero means unbounded.
type Config struct {
	EnableCompaction bool   `toml:"enable_compaction"`
	HashAlgorithm    string `toml:"hash_algorithm"`
	MaxDeltaEntries  int    `toml:"max_delta_entries"`
}

// Default returns the zero-tuning configuration: compaction disabled,
// SHA-256, no delta cap.
func Default() *Config {
	return &Config{
		EnableCompaction: false,
		HashAlgorithm:    "sha256",
		MaxDeltaEntries:  0,
	}
}

// Load reads a Config from a TOML file at path, starting from Default()
// so a partial file only overrides the fields it mentions.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	return cfg, nil
}
