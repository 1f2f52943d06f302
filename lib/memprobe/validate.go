// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package memprobe

import (
	"fmt"

	"github.com/bureau-foundation/spraypaint/lib/corruption"
	"github.com/bureau-foundation/spraypaint/lib/dump"
	"github.com/bureau-foundation/spraypaint/lib/twocolor"
)

// WorkerState is the per-call context of the worker protocol. The zero
// value is the papa: round 0, worker 0, identity 0.
type WorkerState struct {
	Round  int
	Worker int

	// Identity is the owner whose paint the buffer is expected to
	// carry. It changes from 0 to Worker at the repaint step.
	Identity int
}

// ident names a scan in log lines.
func (s WorkerState) ident(bufferID int, label string) string {
	return fmt.Sprintf("Round: %d Worker: %d Buffer: %d %s", s.Round, s.Worker, bufferID, label)
}

// ColorIsRight scans buffer against the paint of state.Identity with
// the given buffer id. Every mismatch is reported; the scan never stops
// early. It returns true iff no byte mismatched.
func (p *Probe) ColorIsRight(state WorkerState, bufferID int, buffer []byte, label string) bool {
	return p.scan(state, bufferID, buffer, label).ok()
}

func (p *Probe) scan(state WorkerState, bufferID int, buffer []byte, label string) scanOutcome {
	reporter := corruption.New(state.ident(bufferID, label), state.Identity, buffer, p.logger)
	for k, color := range buffer {
		if color != twocolor.Color(state.Identity, bufferID, k) {
			reporter.Report(k, color)
		}
	}
	return finish(reporter)
}

func finish(reporter *corruption.Reporter) scanOutcome {
	reporter.Finish()
	return scanOutcome{
		fails:         reporter.TotalFails(),
		indiscretions: reporter.Indiscretions(),
		ranges:        reporter.Ranges(),
	}
}

// snapshot hands a failed buffer to the dumper, if one is configured.
func (p *Probe) snapshot(state WorkerState, bufferID int, buffer []byte, label string) string {
	if p.dumper == nil {
		return ""
	}
	path, err := p.dumper.Write(dump.Snapshot{
		Label:    label,
		Round:    state.Round,
		Worker:   state.Worker,
		BufferID: bufferID,
		Identity: state.Identity,
	}, buffer)
	if err != nil {
		p.logger.Error("writing corruption snapshot failed",
			"ident", state.ident(bufferID, label),
			"error", err,
		)
		return ""
	}
	p.logger.Info("corruption snapshot written", "ident", state.ident(bufferID, label), "path", path)
	return path
}
