// Package config holds the backend and driver settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
)

// Config controls code generation and output.
type Config struct {
	Target string `json:"target"`
	// SpillReserve is added to every non-empty frame for spill slots.
	SpillReserve int `json:"spill_reserve"`
	// FrameAlign is the alignment of the emitted stack adjustment.
	FrameAlign int `json:"frame_align"`

	ShowIR         bool `json:"show_ir"`
	StripComments  bool `json:"strip_comments"`
	KeepEmptyLines bool `json:"keep_empty_lines"`
	Peephole       bool `json:"peephole"`

	// Jobs bounds how many files the driver compiles at once.
	Jobs      int `json:"jobs"`
	CacheSize int `json:"cache_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Target:       "armv7",
		SpillReserve: 32,
		FrameAlign:   16,
		Jobs:         runtime.NumCPU(),
		CacheSize:    64,
	}
}

// Load reads a JSON configuration file over the defaults. An empty path or
// a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the backend cannot honour.
func (c *Config) Validate() error {
	if c.Target != "armv7" {
		return fmt.Errorf("unsupported target %q", c.Target)
	}
	if c.SpillReserve < 0 || c.SpillReserve%4 != 0 {
		return fmt.Errorf("spill_reserve must be a non-negative multiple of 4, got %d", c.SpillReserve)
	}
	if c.FrameAlign < 8 || c.FrameAlign&(c.FrameAlign-1) != 0 {
		return fmt.Errorf("frame_align must be a power of two of at least 8, got %d", c.FrameAlign)
	}
	if c.Jobs < 1 {
		c.Jobs = 1
	}
	return nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
