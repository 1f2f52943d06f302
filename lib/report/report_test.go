// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	want := Report{
		Version:        "0.1.0-dev (abc1234, unknown)",
		Started:        time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		Finished:       time.Date(2026, 10, 18, 9, 5, 0, 0, time.UTC),
		Workers:        4,
		BufferSize:     5,
		Rounds:         12,
		WorkerRuns:     48,
		Failures:       2,
		FailuresByKind: map[string]int{"signal": 1, "status": 1},
		Mismatches:     37,
		Indiscretions:  1,
		PapaIntact:     true,
		Fingerprint:    "0123abcd",
		FailedRuns: []FailedRun{
			{Round: 3, Worker: 2, Exit: "exited with status 1", Steps: []string{"MapCheck"}},
			{Round: 9, Worker: 4, Exit: "terminated by signal 11 (segmentation fault)"},
		},
		Snapshots: []string{"/var/tmp/round-3-worker-2-buffer-7-MapCheck.snap"},
	}

	if err := Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got.Rounds != want.Rounds || got.WorkerRuns != want.WorkerRuns {
		t.Errorf("rounds/runs = %d/%d, want %d/%d", got.Rounds, got.WorkerRuns, want.Rounds, want.WorkerRuns)
	}
	if got.Failures != 2 || got.FailuresByKind["signal"] != 1 || got.FailuresByKind["status"] != 1 {
		t.Errorf("failures = %d %v", got.Failures, got.FailuresByKind)
	}
	if !got.Started.Equal(want.Started) || !got.Finished.Equal(want.Finished) {
		t.Errorf("times = %v..%v, want %v..%v", got.Started, got.Finished, want.Started, want.Finished)
	}
	if len(got.FailedRuns) != 2 || got.FailedRuns[0].Steps[0] != "MapCheck" {
		t.Errorf("FailedRuns = %+v", got.FailedRuns)
	}
	if !got.PapaIntact || got.Fingerprint != "0123abcd" {
		t.Errorf("papa = %v %q", got.PapaIntact, got.Fingerprint)
	}
}

func TestWriteOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	if err := Write(path, Report{Rounds: 1}); err != nil {
		t.Fatalf("Write first: %v", err)
	}
	if err := Write(path, Report{Rounds: 2}); err != nil {
		t.Fatalf("Write second: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Rounds != 2 {
		t.Errorf("Rounds = %d, want 2", got.Rounds)
	}
}

func TestWriteNoTemporaryFileLeftBehind(t *testing.T) {
	directory := t.TempDir()
	if err := Write(filepath.Join(directory, "report.yaml"), Report{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "report.yaml" {
		var names []string
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		t.Errorf("directory contains %v, want only report.yaml", names)
	}
}

func TestWriteParentDirectoryMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "report.yaml")
	if err := Write(path, Report{}); err == nil {
		t.Fatal("Write into a missing directory succeeded")
	}
}

func TestReadNonexistent(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read of missing file: got %v, want ErrNotExist", err)
	}
}
