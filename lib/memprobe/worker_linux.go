// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memprobe

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/spraypaint/lib/corruption"
	"github.com/bureau-foundation/spraypaint/lib/twocolor"
)

// RunWorker runs the worker protocol for worker (numbered from 1) in
// the given round and returns the process exit code: 0 when every step
// passed, 1 otherwise.
//
// A non-nil error is an unrecoverable fault in the test harness itself
// (the private view could not be mapped, the socket pair could not be
// created, or the transfer hit a transport error). The caller must
// terminate; the exit code is meaningless in that case.
func (p *Probe) RunWorker(round, worker int) (int, error) {
	result, err := p.RunWorkerResult(round, worker)
	if err != nil {
		return 1, err
	}
	return result.ExitCode(), nil
}

// RunWorkerResult is RunWorker with the full per-step outcome.
//
// If binding to CPU worker-1 fails, the remaining steps are skipped and
// the result reports success. The failure is logged unless the probe
// was built WithIgnoreAffinityFailure.
func (p *Probe) RunWorkerResult(round, worker int) (Result, error) {
	result := Result{Round: round, Worker: worker}
	if err := p.binder(worker - 1); err != nil {
		if p.ignoreAffinityFailure {
			p.logger.Debug("affinity failure ignored", "round", round, "worker", worker, "error", err)
		} else {
			p.logger.Error("setaffinity failed", "round", round, "worker", worker, "cpu", worker-1, "error", err)
		}
		return result, nil
	}
	result.Bound = true

	full, err := p.privateView()
	if err != nil {
		return result, err
	}
	defer unix.Munmap(full)
	view := full[:p.size]

	state := WorkerState{Round: round, Worker: worker}

	for k := 0; k < 2; k++ {
		outcome := p.scan(state, 0, view, string(StepCheckPapa))
		result.record(StepCheckPapa, outcome)
		if !outcome.ok() {
			p.logger.Error("papa buffer came colored wrong", "round", round, "worker", worker)
		}
	}

	p.cowPoke(state, view)
	outcome := p.scan(state, 0, view, string(StepPromote))
	result.record(StepPromote, outcome)
	if !outcome.ok() {
		p.logger.Error("promoted buffer colored wrong", "round", round, "worker", worker)
	}

	state.Identity = worker
	twocolor.Paint(state.Identity, 0, view)
	p.checkPrimary(&result, state, view, StepRepaint, "failed to color worker buffer right")

	mappings, ok := p.createMappings(&result, state)
	if !ok {
		return result, nil
	}

	if err := p.transfer(&result, state, view); err != nil {
		releaseMappings(mappings)
		return result, err
	}

	p.checkMappings(&result, state, mappings)

	p.checkPrimary(&result, state, view, StepFinalCheck, "color faded")
	return result, nil
}

// cowPoke writes one byte per page with the value the page already
// expects, forcing a private copy of every page without changing its
// logical content. The poked offset walks through the page so that
// successive pages are touched at different cache lines.
func (p *Probe) cowPoke(state WorkerState, view []byte) {
	for page, start := 0, 0; start < len(view); page, start = page+1, start+PageSize {
		position := start + (page*64)%PageSize
		if position >= len(view) {
			position = start
		}
		view[position] = twocolor.Color(state.Identity, 0, position)
	}
}

// checkPrimary scans the primary view for step, logging failure and
// capturing a snapshot of the view when it does not match.
func (p *Probe) checkPrimary(result *Result, state WorkerState, view []byte, step Step, message string) {
	outcome := p.scan(state, 0, view, string(step))
	result.record(step, outcome)
	if outcome.ok() {
		return
	}
	p.logger.Error(message, "round", state.Round, "worker", state.Worker)
	if path := p.snapshot(state, 0, view, string(step)); path != "" {
		result.Snapshots = append(result.Snapshots, path)
	}
}

// createMappings allocates the round's anonymous mappings. Each must
// arrive zero-filled; it is then painted with the worker's identity and
// its index as buffer id. Any failure releases what was created and
// returns false.
func (p *Probe) createMappings(result *Result, state WorkerState) ([][]byte, bool) {
	mappings := make([][]byte, 0, p.mappings)
	for k := 0; k < p.mappings; k++ {
		mapping, err := p.mapper(MappedBufferSize)
		if err != nil {
			p.logger.Error("map failed",
				"round", state.Round,
				"worker", state.Worker,
				"map", k,
				"length", MappedBufferSize,
				"error", err,
			)
			result.fail(StepRemap)
			releaseMappings(mappings)
			return nil, false
		}

		outcome := p.scanZero(state, k, mapping)
		result.record(StepRemap, outcome)
		if !outcome.ok() {
			p.logger.Error("dirty map", "round", state.Round, "worker", state.Worker, "map", k)
			if path := p.snapshot(state, k, mapping, string(StepRemap)); path != "" {
				result.Snapshots = append(result.Snapshots, path)
			}
			unix.Munmap(mapping)
			releaseMappings(mappings)
			return nil, false
		}
		twocolor.Paint(state.Identity, k, mapping)
		mappings = append(mappings, mapping)
	}
	result.step(StepRemap)
	return mappings, true
}

// scanZero reports every nonzero byte of a fresh mapping. Fresh
// anonymous memory must be zero; anything else is somebody's leftover
// data, and decoding it says whose.
func (p *Probe) scanZero(state WorkerState, bufferID int, mapping []byte) scanOutcome {
	reporter := corruption.New(state.ident(bufferID, string(StepRemap)), state.Identity, mapping, p.logger)
	for k, color := range mapping {
		if color != 0 {
			reporter.Report(k, color)
		}
	}
	return finish(reporter)
}

// checkMappings re-verifies every mapping and releases each one
// whatever the outcome.
func (p *Probe) checkMappings(result *Result, state WorkerState, mappings [][]byte) {
	result.step(StepMapCheck)
	for k, mapping := range mappings {
		outcome := p.scan(state, k, mapping, string(StepMapCheck))
		result.record(StepMapCheck, outcome)
		if !outcome.ok() {
			p.logger.Error("failed to color worker map right", "round", state.Round, "worker", state.Worker, "map", k)
			if path := p.snapshot(state, k, mapping, string(StepMapCheck)); path != "" {
				result.Snapshots = append(result.Snapshots, path)
			}
		}
		if err := unix.Munmap(mapping); err != nil {
			p.logger.Error("munmap failed", "round", state.Round, "worker", state.Worker, "map", k, "error", err)
			result.fail(StepMapCheck)
		}
	}
}

func mapAnonymous(length int) ([]byte, error) {
	mapping, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", length, err)
	}
	return mapping, nil
}

func releaseMappings(mappings [][]byte) {
	for _, mapping := range mappings {
		unix.Munmap(mapping)
	}
}
