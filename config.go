// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package dxinterop

import (
	"bytes"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
)

// Allocator kinds accepted by Config.Allocator.
const (
	AllocatorGo     = "go"
	AllocatorNative = "native"
)

// Config holds the process or subsystem settings consulted by wrappers,
// the object tracker and the shadow bridge.
type Config struct {
	// EnableObjectTracking registers every bound wrapper with the object
	// tracker.
	EnableObjectTracking bool `toml:"enable_object_tracking"`
	// EnableReleaseOnFinalizer makes finalizer-driven disposal call the
	// native Release.
	EnableReleaseOnFinalizer bool `toml:"enable_release_on_finalizer"`
	// EnableTrackingReleaseOnFinalizer emits a leak warning when a wrapper
	// is finalized without being released.
	EnableTrackingReleaseOnFinalizer bool `toml:"enable_tracking_release_on_finalizer"`
	// Allocator selects the memory used for vtables and owned buffers.
	Allocator string `toml:"allocator"`
	// LogLevel is a charmbracelet/log level name.
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns the settings used when no configuration is given.
func DefaultConfig() Config {
	return Config{
		EnableTrackingReleaseOnFinalizer: true,
		Allocator:                        AllocatorGo,
		LogLevel:                         "info",
	}
}

// ParseConfig decodes TOML data on top of DefaultConfig. Unknown keys are
// rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the TOML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}

// Validate checks the enumerated fields of c.
func (c Config) Validate() error {
	switch c.Allocator {
	case "", AllocatorGo, AllocatorNative:
	default:
		return fmt.Errorf("config: unknown allocator %q", c.Allocator)
	}
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// Marshal encodes c as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
