// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package report writes the run report: a YAML summary of a spraypaint
// run, written once when the run ends.
//
// The report is written atomically (write to temporary file, fsync,
// rename, fsync parent directory) so a monitoring job polling the path
// never sees a partial report.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Report summarizes one run.
type Report struct {
	Version  string    `yaml:"version"`
	Started  time.Time `yaml:"started"`
	Finished time.Time `yaml:"finished"`

	Workers    int `yaml:"workers"`
	BufferSize int `yaml:"buffer_size"`

	// Rounds is the number of completed rounds; WorkerRuns counts
	// every worker process reaped.
	Rounds     int `yaml:"rounds"`
	WorkerRuns int `yaml:"worker_runs"`

	// Failures counts worker runs that did not exit cleanly, broken
	// down by how they ended.
	Failures       int            `yaml:"failures"`
	FailuresByKind map[string]int `yaml:"failures_by_kind,omitempty"`

	// Mismatches and Indiscretions total the results workers sent back.
	Mismatches    int `yaml:"mismatches"`
	Indiscretions int `yaml:"indiscretions"`

	// PapaIntact is false when the parent's buffer changed during the
	// run.
	PapaIntact  bool   `yaml:"papa_intact"`
	Fingerprint string `yaml:"fingerprint"`

	FailedRuns []FailedRun `yaml:"failed_runs,omitempty"`
	Snapshots  []string    `yaml:"snapshots,omitempty"`
}

// FailedRun describes one worker run that failed.
type FailedRun struct {
	Round  int      `yaml:"round"`
	Worker int      `yaml:"worker"`
	Exit   string   `yaml:"exit"`
	Steps  []string `yaml:"steps,omitempty"`
}

// Write atomically writes report to path. The parent directory must
// already exist.
func Write(path string, report Report) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling run report: %w", err)
	}

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating temporary report file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary report file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary report file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary report file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming report file into place: %w", err)
	}

	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}

// Read reads and parses a report file. When the file does not exist,
// the returned error wraps os.ErrNotExist.
func Read(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	var report Report
	if err := yaml.Unmarshal(data, &report); err != nil {
		return Report{}, fmt.Errorf("parsing report file %s: %w", path, err)
	}
	return report, nil
}
