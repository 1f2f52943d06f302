// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memprobe

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/spraypaint/lib/dump"
	"github.com/bureau-foundation/spraypaint/lib/twocolor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noBind(int) error { return nil }

// newTestProbe builds a probe that never touches the test process's
// CPU affinity and creates a small number of mappings.
func newTestProbe(t *testing.T, requested int, options ...Option) *Probe {
	t.Helper()
	options = append([]Option{
		WithLogger(discardLogger()),
		WithBinder(noBind),
		WithMappings(8),
	}, options...)
	probe, err := New(requested, options...)
	if err != nil {
		t.Fatalf("New(%d): %v", requested, err)
	}
	t.Cleanup(func() { probe.Close() })
	return probe
}

func TestNewSizing(t *testing.T) {
	tests := []struct {
		name          string
		requested     int
		wantSize      int
		wantAllocated int
	}{
		{name: "tiny", requested: 5, wantSize: 3 * PageSize, wantAllocated: 3 * PageSize},
		{name: "zero", requested: 0, wantSize: 3 * PageSize, wantAllocated: 3 * PageSize},
		{name: "exact", requested: 3 * PageSize, wantSize: 3 * PageSize, wantAllocated: 3 * PageSize},
		{name: "one over", requested: 3*PageSize + 1, wantSize: 3*PageSize + 1, wantAllocated: 4 * PageSize},
		{name: "large", requested: 10*PageSize - 7, wantSize: 10*PageSize - 7, wantAllocated: 10 * PageSize},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			probe := newTestProbe(t, test.requested)
			if got := probe.Size(); got != test.wantSize {
				t.Errorf("Size() = %d, want %d", got, test.wantSize)
			}
			if got := probe.AllocatedSize(); got != test.wantAllocated {
				t.Errorf("AllocatedSize() = %d, want %d", got, test.wantAllocated)
			}
		})
	}
}

func TestMappedBufferSize(t *testing.T) {
	if MappedBufferSize != 3*os.Getpagesize() {
		t.Errorf("MappedBufferSize = %d, want %d", MappedBufferSize, 3*os.Getpagesize())
	}
}

func TestNewPaintsIdentityZero(t *testing.T) {
	probe := newTestProbe(t, 5*PageSize)
	buffer := probe.papa[:probe.Size()]
	for k := range buffer {
		if want := twocolor.Color(0, 0, k); buffer[k] != want {
			t.Fatalf("buffer[%d] = %#x, want %#x", k, buffer[k], want)
		}
	}
	if !probe.CheckPapa("Dtor") {
		t.Error("CheckPapa on a fresh probe = false")
	}
}

func TestCheckPapaDetectsCorruption(t *testing.T) {
	probe := newTestProbe(t, 3*PageSize)
	original := probe.papa[100]
	probe.papa[100] ^= 0xff
	if probe.CheckPapa("Dtor") {
		t.Error("CheckPapa after corrupting a painted byte = true")
	}
	probe.papa[100] = original
	if !probe.CheckPapa("Dtor") {
		t.Error("CheckPapa after restoring the byte = false")
	}
}

func TestCheckPapaDetectsSlackCorruption(t *testing.T) {
	probe := newTestProbe(t, 3*PageSize+1)
	if probe.AllocatedSize() == probe.Size() {
		t.Fatal("probe has no slack past its painted length")
	}
	probe.papa[probe.Size()] = 0x55
	if !probe.ColorIsRight(WorkerState{}, 0, probe.papa[:probe.Size()], "Dtor") {
		t.Error("slack byte leaked into the painted length")
	}
	if probe.CheckPapa("Dtor") {
		t.Error("CheckPapa after writing into the slack = true")
	}
}

func TestColorIsRight(t *testing.T) {
	probe := newTestProbe(t, 0)
	buffer := make([]byte, 100)
	twocolor.Paint(4, 2, buffer)
	state := WorkerState{Round: 1, Worker: 4, Identity: 4}
	if !probe.ColorIsRight(state, 2, buffer, "test") {
		t.Error("ColorIsRight on a correctly painted buffer = false")
	}
	if probe.ColorIsRight(state, 3, buffer, "test") {
		t.Error("ColorIsRight with the wrong buffer id = true")
	}
	buffer[50] = 0
	if probe.ColorIsRight(state, 2, buffer, "test") {
		t.Error("ColorIsRight with a zeroed byte = true")
	}
}

func TestScanCountsEveryMismatch(t *testing.T) {
	probe := newTestProbe(t, 0)
	buffer := make([]byte, 64)
	twocolor.Paint(3, 0, buffer)
	for k := 10; k < 20; k++ {
		buffer[k] = 0
	}
	buffer[40] = 0
	outcome := probe.scan(WorkerState{Identity: 3}, 0, buffer, "test")
	if outcome.fails != 11 {
		t.Errorf("fails = %d, want 11", outcome.fails)
	}
	if len(outcome.ranges) != 2 {
		t.Fatalf("ranges = %d, want 2", len(outcome.ranges))
	}
	if outcome.ranges[0].Start != 10 || outcome.ranges[0].End != 19 {
		t.Errorf("first range = [%d, %d], want [10, 19]", outcome.ranges[0].Start, outcome.ranges[0].End)
	}
}

func TestScanZero(t *testing.T) {
	probe := newTestProbe(t, 0)
	clean := make([]byte, 3*PageSize)
	if outcome := probe.scanZero(WorkerState{Identity: 2}, 0, clean); !outcome.ok() {
		t.Errorf("scanZero on zeroed memory failed %d times", outcome.fails)
	}

	// A mapping still holding another worker's paint must be flagged
	// and attributed to that worker.
	dirty := make([]byte, 3*PageSize)
	twocolor.Paint(9, 0, dirty[PageSize:2*PageSize])
	outcome := probe.scanZero(WorkerState{Round: 1, Worker: 2, Identity: 2}, 5, dirty)
	if outcome.ok() {
		t.Fatal("scanZero on painted memory passed")
	}
	if outcome.indiscretions != 1 {
		t.Errorf("indiscretions = %d, want 1", outcome.indiscretions)
	}
}

func TestAttach(t *testing.T) {
	probe := newTestProbe(t, 4*PageSize)

	fd, err := unix.Dup(int(probe.File().Fd()))
	if err != nil {
		t.Fatalf("dup: %v", err)
	}
	attached, err := Attach(os.NewFile(uintptr(fd), "inherited"), 4*PageSize,
		WithLogger(discardLogger()),
		WithBinder(noBind),
		WithMappings(4),
	)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer attached.Close()

	if attached.Fingerprint() != probe.Fingerprint() {
		t.Error("attached fingerprint differs from creator's")
	}
	if !attached.CheckPapa("Attach") {
		t.Error("CheckPapa on attached probe = false")
	}
	code, err := attached.RunWorker(1, 1)
	if err != nil {
		t.Fatalf("RunWorker: %v", err)
	}
	if code != 0 {
		t.Errorf("RunWorker exit = %d, want 0", code)
	}
	if !probe.CheckPapa("Dtor") {
		t.Error("worker on attached probe disturbed the papa buffer")
	}
}

func TestAttachRejectsShortBuffer(t *testing.T) {
	probe := newTestProbe(t, 3*PageSize)
	fd, err := unix.Dup(int(probe.File().Fd()))
	if err != nil {
		t.Fatalf("dup: %v", err)
	}
	file := os.NewFile(uintptr(fd), "inherited")
	defer file.Close()

	_, err = Attach(file, 8*PageSize, WithLogger(discardLogger()))
	if !errors.Is(err, ErrSetup) {
		t.Errorf("Attach with oversized request: got %v, want ErrSetup", err)
	}
}

type recordingDumper struct {
	snapshots []dump.Snapshot
}

func (d *recordingDumper) Write(snapshot dump.Snapshot, data []byte) (string, error) {
	d.snapshots = append(d.snapshots, snapshot)
	return "/snapshots/" + snapshot.Label, nil
}

func TestCheckPrimarySnapshotsFailure(t *testing.T) {
	dumper := &recordingDumper{}
	probe := newTestProbe(t, 0, WithDumper(dumper))

	view := make([]byte, 256)
	state := WorkerState{Round: 2, Worker: 3, Identity: 3}
	twocolor.Paint(3, 0, view)

	var result Result
	probe.checkPrimary(&result, state, view, StepRepaint, "failed")
	if len(dumper.snapshots) != 0 {
		t.Fatalf("passing check wrote %d snapshots", len(dumper.snapshots))
	}

	view[17] ^= 0x01
	probe.checkPrimary(&result, state, view, StepFinalCheck, "color faded")
	if len(dumper.snapshots) != 1 {
		t.Fatalf("failing check wrote %d snapshots, want 1", len(dumper.snapshots))
	}
	got := dumper.snapshots[0]
	if got.Label != string(StepFinalCheck) || got.Round != 2 || got.Worker != 3 || got.Identity != 3 {
		t.Errorf("snapshot metadata = %+v", got)
	}
	if len(result.Snapshots) != 1 || result.Snapshots[0] != "/snapshots/FinalCheckMe" {
		t.Errorf("result snapshots = %v", result.Snapshots)
	}
	if failed := result.Failed(); len(failed) != 1 || failed[0] != StepFinalCheck {
		t.Errorf("Failed() = %v, want [%s]", failed, StepFinalCheck)
	}
}

func TestCtorLogsNothingOnSuccess(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelError}))
	probe, err := New(0, WithLogger(logger))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer probe.Close()
	if strings.Contains(logs.String(), "Ctor") {
		t.Errorf("successful construction logged errors:\n%s", logs.String())
	}
}
