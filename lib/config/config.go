// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Pulse
// collector.
//
// Configuration is loaded from a single yaml file specified by:
//   - PULSE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
// The metric list in the file is the declarative registry: its order
// is the order values appear in every heartbeat record.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulselabs/pulse/metrics"
)

// Config is the collector configuration.
type Config struct {
	// Device identifies this device to the backend.
	Device DeviceConfig `yaml:"device"`

	// Heartbeat configures the collection cycle and storage region.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Metrics is the declarative metric registry, in wire order.
	Metrics []MetricConfig `yaml:"metrics"`

	// Export configures the local upload spool.
	Export ExportConfig `yaml:"export"`
}

// DeviceConfig carries the identity strings stamped into records.
type DeviceConfig struct {
	// Serial uniquely identifies the device. Required.
	Serial string `yaml:"serial"`

	// HardwareVersion names the board revision. Required.
	HardwareVersion string `yaml:"hardware_version"`

	// SoftwareVersion names the firmware build. Empty means the
	// collector stamps its own build version.
	SoftwareVersion string `yaml:"software_version"`
}

// HeartbeatConfig configures the collection cycle.
type HeartbeatConfig struct {
	// IntervalSeconds is the collection period. Default 3600; the
	// practical minimum is 900.
	IntervalSeconds int `yaml:"interval_seconds"`

	// AllowShortInterval accepts intervals below the practical
	// minimum. Meant for bench testing, never for deployment.
	AllowShortInterval bool `yaml:"allow_short_interval"`

	// StorageBytes is the capacity of the record storage region.
	// Must leave room for at least one worst-case record or every
	// heartbeat is dropped.
	StorageBytes int `yaml:"storage_bytes"`

	// FirstSequence seeds the event sequence counter. Useful when a
	// supervisor persists the counter across restarts.
	FirstSequence uint32 `yaml:"first_sequence"`
}

// MetricConfig declares one registry entry.
type MetricConfig struct {
	// Name is the metric name surfaced to the backend.
	Name string `yaml:"name"`

	// Type is "unsigned", "signed", or "timer".
	Type string `yaml:"type"`

	// Preserve keeps the value across committed heartbeats instead
	// of resetting it to zero.
	Preserve bool `yaml:"preserve"`
}

// ExportConfig configures the local upload spool.
type ExportConfig struct {
	// SpoolPath is the file committed records are drained into.
	// Required.
	SpoolPath string `yaml:"spool_path"`
}

// Default returns the default configuration. These defaults are a
// base before loading the config file, not a substitute for it: the
// file supplies the identity, metric list, and spool path.
func Default() *Config {
	return &Config{
		Heartbeat: HeartbeatConfig{
			IntervalSeconds: 3600,
			StorageBytes:    4096,
		},
	}
}

// Load loads configuration from the file named by PULSE_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv("PULSE_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("PULSE_CONFIG environment variable not set; " +
			"set it to the path of your pulse.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override its values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Interval returns the heartbeat period as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Heartbeat.IntervalSeconds) * time.Second
}

// MetricDefinitions translates the declarative metric list into
// registry definitions, in file order.
func (c *Config) MetricDefinitions() ([]metrics.Definition, error) {
	defs := make([]metrics.Definition, 0, len(c.Metrics))
	var errs []error
	for i, m := range c.Metrics {
		typ, err := metrics.ParseType(m.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("metrics[%d] %q: %w", i, m.Name, err))
			continue
		}
		defs = append(defs, metrics.Definition{
			Name:     m.Name,
			Type:     typ,
			Preserve: m.Preserve,
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return defs, nil
}

// Validate checks the configuration for errors, reporting every
// problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Device.Serial == "" {
		errs = append(errs, fmt.Errorf("device.serial is required"))
	}
	if c.Device.HardwareVersion == "" {
		errs = append(errs, fmt.Errorf("device.hardware_version is required"))
	}

	if c.Heartbeat.IntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat.interval_seconds must be positive, got %d",
			c.Heartbeat.IntervalSeconds))
	} else if c.Heartbeat.IntervalSeconds < 900 && !c.Heartbeat.AllowShortInterval {
		errs = append(errs, fmt.Errorf("heartbeat.interval_seconds %d is below the practical minimum 900 "+
			"(set heartbeat.allow_short_interval for bench testing)", c.Heartbeat.IntervalSeconds))
	}
	if c.Heartbeat.StorageBytes <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat.storage_bytes must be positive, got %d",
			c.Heartbeat.StorageBytes))
	}

	if len(c.Metrics) == 0 {
		errs = append(errs, fmt.Errorf("at least one metric must be declared"))
	}
	if _, err := c.MetricDefinitions(); err != nil {
		errs = append(errs, err)
	}

	if c.Export.SpoolPath == "" {
		errs = append(errs, fmt.Errorf("export.spool_path is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
