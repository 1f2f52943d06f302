// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corruption

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/bureau-foundation/spraypaint/lib/twocolor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func paintedBuffer(identity, size int) []byte {
	buffer := make([]byte, size)
	twocolor.Paint(identity, 0, buffer)
	return buffer
}

func TestOneRange(t *testing.T) {
	reporter := New("test", 0, paintedBuffer(0, 20000), discardLogger())
	for k := 11; k < 50; k++ {
		reporter.Report(k, 13)
	}
	reporter.Finish()

	if got := reporter.TotalFails(); got != 50-11 {
		t.Errorf("TotalFails() = %d, want %d", got, 50-11)
	}
	if got := reporter.RangeCount(); got != 1 {
		t.Errorf("RangeCount() = %d, want 1", got)
	}
	ranges := reporter.Ranges()
	if len(ranges) != 1 {
		t.Fatalf("len(Ranges()) = %d, want 1", len(ranges))
	}
	summary := ranges[0]
	if summary.Start != 11 || summary.End != 49 || summary.Length() != 39 || summary.Fails != 39 {
		t.Errorf("range = %+v, want start 11 end 49 length 39 fails 39", summary)
	}
	if len(summary.Colors) != 1 || summary.Colors[0] != (ColorCount{Color: 13, Count: 39}) {
		t.Errorf("Colors = %+v, want [{13 39}]", summary.Colors)
	}
}

func TestMultiRange(t *testing.T) {
	reporter := New("test", 0, paintedBuffer(0, 20000), discardLogger())
	for r := 0; r < 3; r++ {
		for k := 1; k < 3; k++ {
			reporter.Report(k, 13)
		}
	}
	reporter.Finish()

	if got := reporter.TotalFails(); got != 6 {
		t.Errorf("TotalFails() = %d, want 6", got)
	}
	if got := reporter.RangeCount(); got != 3 {
		t.Errorf("RangeCount() = %d, want 3", got)
	}
	if got := len(reporter.Ranges()); got != 3 {
		t.Errorf("len(Ranges()) = %d, want 3", got)
	}
	for index, summary := range reporter.Ranges() {
		if summary.Index != index+1 {
			t.Errorf("range %d has Index %d", index, summary.Index)
		}
		if summary.Fails != 2 {
			t.Errorf("range %d has Fails %d, want 2", index, summary.Fails)
		}
	}
}

func TestFinishWithoutMismatches(t *testing.T) {
	var output bytes.Buffer
	reporter := New("test", 0, paintedBuffer(0, 64), slog.New(slog.NewTextHandler(&output, nil)))
	reporter.Finish()
	reporter.Finish()

	if reporter.RangeCount() != 0 || len(reporter.Ranges()) != 0 {
		t.Errorf("RangeCount() = %d, Ranges() = %v, want none", reporter.RangeCount(), reporter.Ranges())
	}
	if output.Len() != 0 {
		t.Errorf("unexpected log output: %s", output.String())
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	reporter := New("test", 0, paintedBuffer(0, 64), discardLogger())
	reporter.Report(4, 1)
	reporter.Finish()
	reporter.Finish()
	if got := len(reporter.Ranges()); got != 1 {
		t.Errorf("len(Ranges()) = %d after two Finish calls, want 1", got)
	}
}

func TestSquelch(t *testing.T) {
	var output bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&output, nil))
	reporter := New("test", 0, paintedBuffer(0, 2000), logger)

	// Every other position, so that each mismatch would open a range.
	for n := 0; n < 700; n++ {
		reporter.Report(2*n, 1)
	}
	reporter.Finish()

	if got := reporter.TotalFails(); got != 700 {
		t.Errorf("TotalFails() = %d, want 700", got)
	}
	if !reporter.Squelched() {
		t.Error("Squelched() = false after 700 mismatches")
	}
	if got := reporter.RangeCount(); got != SpewLimit-1 {
		t.Errorf("RangeCount() = %d, want %d", got, SpewLimit-1)
	}
	if got := strings.Count(output.String(), "bad_color="); got != SpewLimit-1 {
		t.Errorf("logged %d mismatch lines, want %d", got, SpewLimit-1)
	}

	ranges := reporter.Ranges()
	last := ranges[len(ranges)-1]
	if !last.Squelched {
		t.Error("last range not marked squelched")
	}
	if want := 700 - (SpewLimit - 2); last.Fails != want {
		t.Errorf("last range Fails = %d, want %d", last.Fails, want)
	}
	if last.End != 2*699 {
		t.Errorf("last range End = %d, want %d", last.End, 2*699)
	}
}

func TestIndiscretion(t *testing.T) {
	var output bytes.Buffer
	observed := paintedBuffer(5, 100)
	reporter := New("Round: 1 Worker: 2 Buffer: 0 FinalCheckMe", 2, observed,
		slog.New(slog.NewTextHandler(&output, nil)))
	for k := 10; k <= 40; k++ {
		reporter.Report(k, observed[k])
	}
	reporter.Finish()

	if got := reporter.Indiscretions(); got != 1 {
		t.Fatalf("Indiscretions() = %d, want 1", got)
	}
	summary := reporter.Ranges()[0]
	if !summary.Decoded || summary.Identity.Identity != 5 || summary.Identity.Length != 31 {
		t.Errorf("decoded %+v, want identity 5 length 31", summary.Identity)
	}
	if !strings.Contains(output.String(), "*** Indiscretion") {
		t.Errorf("log output lacks indiscretion marker:\n%s", output.String())
	}
}

func TestNoIndiscretion(t *testing.T) {
	tests := []struct {
		name     string
		painter  int
		local    int
		from, to int
		decoded  bool
	}{
		{"root owner", 0, 2, 10, 40, true},
		{"local owner", 2, 2, 10, 40, true},
		{"too short to decode", 5, 2, 10, 14, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			observed := paintedBuffer(test.painter, 100)
			reporter := New("test", test.local, observed, discardLogger())
			for k := test.from; k <= test.to; k++ {
				reporter.Report(k, observed[k])
			}
			reporter.Finish()

			if got := reporter.Indiscretions(); got != 0 {
				t.Errorf("Indiscretions() = %d, want 0", got)
			}
			if got := reporter.Ranges()[0].Decoded; got != test.decoded {
				t.Errorf("Decoded = %v, want %v", got, test.decoded)
			}
		})
	}
}
