// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memprobe

import "github.com/bureau-foundation/spraypaint/lib/corruption"

// Step names one stage of the worker protocol. The values double as
// the scan labels in log lines.
type Step string

const (
	StepBind       Step = "Bind"
	StepCheckPapa  Step = "CheckPapa"
	StepPromote    Step = "PagePromote"
	StepRepaint    Step = "FirstCheckMe"
	StepRemap      Step = "Mapped"
	StepTransfer   Step = "Pipe"
	StepMapCheck   Step = "MapCheck"
	StepFinalCheck Step = "FinalCheckMe"
)

// maxRecordedRanges bounds the ranges carried in a Result. The log has
// them all.
const maxRecordedRanges = 64

// StepResult is the outcome of one protocol step.
type StepResult struct {
	Step          Step `cbor:"step"`
	Passed        bool `cbor:"passed"`
	Mismatches    int  `cbor:"mismatches,omitempty"`
	Indiscretions int  `cbor:"indiscretions,omitempty"`
}

// Result is the structured outcome of one RunWorker call.
type Result struct {
	Round  int `cbor:"round"`
	Worker int `cbor:"worker"`

	// Bound is false when CPU binding failed and the protocol was
	// skipped.
	Bound bool `cbor:"bound"`

	Steps []StepResult `cbor:"steps"`

	// Mismatches and Indiscretions total the scans of every step.
	Mismatches    int `cbor:"mismatches"`
	Indiscretions int `cbor:"indiscretions"`

	// Ranges holds the first corruption ranges found, in scan order.
	Ranges []corruption.Range `cbor:"ranges,omitempty"`

	// Snapshots lists dump files written for failed buffers.
	Snapshots []string `cbor:"snapshots,omitempty"`
}

// scanOutcome summarizes one validation scan.
type scanOutcome struct {
	fails         int
	indiscretions int
	ranges        []corruption.Range
}

func (o scanOutcome) ok() bool { return o.fails == 0 }

// Passed reports whether every step that ran passed.
func (r Result) Passed() bool {
	for _, step := range r.Steps {
		if !step.Passed {
			return false
		}
	}
	return true
}

// ExitCode maps the result to a process exit status: 0 on success, 1
// on any failed step.
func (r Result) ExitCode() int {
	if r.Passed() {
		return 0
	}
	return 1
}

// Failed returns the steps that did not pass.
func (r Result) Failed() []Step {
	var failed []Step
	for _, step := range r.Steps {
		if !step.Passed {
			failed = append(failed, step.Step)
		}
	}
	return failed
}

// record folds a scan into the step of the same name, adding the step
// if this is its first scan.
func (r *Result) record(step Step, outcome scanOutcome) {
	r.Mismatches += outcome.fails
	r.Indiscretions += outcome.indiscretions
	for _, summary := range outcome.ranges {
		if len(r.Ranges) >= maxRecordedRanges {
			break
		}
		r.Ranges = append(r.Ranges, summary)
	}
	entry := r.step(step)
	entry.Mismatches += outcome.fails
	entry.Indiscretions += outcome.indiscretions
	if !outcome.ok() {
		entry.Passed = false
	}
}

// fail marks step failed without a scan behind it.
func (r *Result) fail(step Step) {
	r.step(step).Passed = false
}

func (r *Result) step(step Step) *StepResult {
	for k := range r.Steps {
		if r.Steps[k].Step == step {
			return &r.Steps[k]
		}
	}
	r.Steps = append(r.Steps, StepResult{Step: step, Passed: true})
	return &r.Steps[len(r.Steps)-1]
}
