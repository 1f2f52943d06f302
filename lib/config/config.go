// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/spraypaint/lib/affinity"
	"github.com/bureau-foundation/spraypaint/lib/dump"
)

// ErrInvalid marks a configuration that failed validation.
var ErrInvalid = errors.New("invalid configuration")

// LogFormat selects the log handler.
type LogFormat string

const (
	// LogFormatAuto picks text on a terminal and JSON otherwise.
	LogFormatAuto LogFormat = "auto"
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Config is the run configuration for spraypaint.
type Config struct {
	// Workers is the number of worker processes per round, numbered
	// 1..Workers. Worker k binds to logical CPU k-1.
	// Default: number of online CPUs.
	Workers int `yaml:"workers"`

	// RunTime bounds the whole run. Zero runs until interrupted.
	RunTime time.Duration `yaml:"run_time"`

	// BufferSize is the requested size of the painted buffer in bytes.
	// The buffer is never smaller than three pages.
	// Default: 5
	BufferSize int `yaml:"buffer_size"`

	// IgnoreAffinityFailure silences the error logged when a worker
	// cannot bind to its CPU.
	IgnoreAffinityFailure bool `yaml:"ignore_affinity_failure"`

	// Mappings is the number of anonymous mappings each worker creates
	// per round.
	// Default: 503
	Mappings int `yaml:"mappings"`

	// Dump configures snapshots of corrupted buffers.
	Dump DumpConfig `yaml:"dump"`

	// ReportPath, when set, receives a YAML run report at exit.
	ReportPath string `yaml:"report_path"`

	// LogFormat is one of auto, text, json.
	// Default: auto
	LogFormat LogFormat `yaml:"log_format"`
}

// DumpConfig configures corruption snapshots.
type DumpConfig struct {
	// Dir is where snapshots are written. Empty disables snapshots.
	Dir string `yaml:"dir"`

	// Compression is one of none, lz4, zstd.
	// Default: zstd
	Compression string `yaml:"compression"`
}

// Default returns the default configuration. Workers is one per
// online CPU, since worker k binds to CPU k-1.
func Default() *Config {
	return &Config{
		Workers:    len(affinity.OnlineCPUs()),
		BufferSize: 5,
		Mappings:   503,
		Dump: DumpConfig{
			Compression: dump.CompressionZstd.String(),
		},
		LogFormat: LogFormatAuto,
	}
}

// LoadFile loads configuration from path over the defaults.
//
// Only ${VAR} and ${VAR:-default} patterns in path fields are
// expanded; environment variables never override values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	c.Dump.Dir = expandVars(c.Dump.Dir)
	c.ReportPath = expandVars(c.ReportPath)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors. Every problem is
// reported; the result wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs []error

	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.RunTime < 0 {
		errs = append(errs, fmt.Errorf("run_time must not be negative, got %s", c.RunTime))
	}
	if c.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("buffer_size must not be negative, got %d", c.BufferSize))
	}
	if c.Mappings < 0 {
		errs = append(errs, fmt.Errorf("mappings must not be negative, got %d", c.Mappings))
	}
	if _, err := dump.ParseCompression(c.Dump.Compression); err != nil {
		errs = append(errs, fmt.Errorf("dump.compression: %w", err))
	}
	switch c.LogFormat {
	case LogFormatAuto, LogFormatText, LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log_format must be one of auto, text, json, got %q", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// DumpCompression returns the parsed snapshot compression. It must
// only be called on a validated configuration.
func (c *Config) DumpCompression() dump.Compression {
	compression, _ := dump.ParseCompression(c.Dump.Compression)
	return compression
}
