// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/spraypaint/lib/clock"
	"github.com/bureau-foundation/spraypaint/lib/config"
	"github.com/bureau-foundation/spraypaint/lib/memprobe"
	"github.com/bureau-foundation/spraypaint/lib/process"
	"github.com/bureau-foundation/spraypaint/lib/ratelog"
	"github.com/bureau-foundation/spraypaint/lib/report"
	"github.com/bureau-foundation/spraypaint/lib/version"
)

// ErrPapaCorrupted is returned when the parent's buffer no longer
// holds its paint at the end of the run. Workers only ever map the
// buffer privately, so any change is a copy-on-write failure.
var ErrPapaCorrupted = errors.New("papa buffer corrupted at exit")

// progressInterval is the minimum spacing of "Completed round" lines.
const progressInterval = 30 * time.Second

// FailedRun records one worker run that did not exit cleanly.
type FailedRun struct {
	Round  int
	Worker int
	Exit   process.Exit
	Steps  []memprobe.Step
}

// Summary is the outcome of a run.
type Summary struct {
	Started  time.Time
	Finished time.Time

	// Rounds counts completed rounds.
	Rounds     int
	WorkerRuns int

	Failures       int
	FailuresByKind map[process.ExitKind]int
	FailedRuns     []FailedRun

	Mismatches    int
	Indiscretions int
	Snapshots     []string

	PapaIntact  bool
	Fingerprint [32]byte
}

// ExitCode is 0 when every worker run exited cleanly, 1 otherwise.
func (s Summary) ExitCode() int {
	if s.Failures > 0 {
		return 1
	}
	return 0
}

// Report converts the summary into the run report written at exit.
func (s Summary) Report(cfg *config.Config) report.Report {
	out := report.Report{
		Version:       version.Info(),
		Started:       s.Started,
		Finished:      s.Finished,
		Workers:       cfg.Workers,
		BufferSize:    cfg.BufferSize,
		Rounds:        s.Rounds,
		WorkerRuns:    s.WorkerRuns,
		Failures:      s.Failures,
		Mismatches:    s.Mismatches,
		Indiscretions: s.Indiscretions,
		PapaIntact:    s.PapaIntact,
		Fingerprint:   fmt.Sprintf("%x", s.Fingerprint),
		Snapshots:     s.Snapshots,
	}
	if len(s.FailuresByKind) > 0 {
		out.FailuresByKind = make(map[string]int, len(s.FailuresByKind))
		for kind, count := range s.FailuresByKind {
			out.FailuresByKind[kind.String()] = count
		}
	}
	for _, failed := range s.FailedRuns {
		run := report.FailedRun{Round: failed.Round, Worker: failed.Worker, Exit: failed.Exit.String()}
		for _, step := range failed.Steps {
			run.Steps = append(run.Steps, string(step))
		}
		out.FailedRuns = append(out.FailedRuns, run)
	}
	return out
}

// maxFailedRuns bounds Summary.FailedRuns. Failures beyond it are
// still counted.
const maxFailedRuns = 256

// failureLogEvery thins "worker failures continue" lines once more than
// maxFailedRuns failures have been logged individually.
const failureLogEvery = 100

// Option configures Run.
type Option func(*runner)

// WithLauncher replaces the default ExecLauncher.
func WithLauncher(launcher Launcher) Option {
	return func(r *runner) { r.launcher = launcher }
}

// WithClock sets the time source for the run deadline and progress
// logging.
func WithClock(c clock.Clock) Option {
	return func(r *runner) { r.clock = c }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *runner) { r.logger = logger }
}

// WithProbeOptions passes options to the papa probe.
func WithProbeOptions(options ...memprobe.Option) Option {
	return func(r *runner) { r.probeOptions = append(r.probeOptions, options...) }
}

type runner struct {
	config       *config.Config
	launcher     Launcher
	clock        clock.Clock
	logger       *slog.Logger
	probeOptions []memprobe.Option

	probe      *memprobe.Probe
	progress   ratelog.Limiter
	failureLog ratelog.Limiter
	summary    Summary
}

// Run builds the papa probe and runs rounds until cfg.RunTime has
// elapsed (forever when zero) or ctx is cancelled. Cancellation is
// checked between rounds; a round in progress always completes.
//
// Worker failures are counted in the summary, not returned. The error
// is non-nil only for faults of the run itself: the probe could not be
// built (memprobe.ErrSetup), a worker could not be started, or the
// papa buffer was corrupted (ErrPapaCorrupted). The summary is valid
// in the last case.
func Run(ctx context.Context, cfg *config.Config, options ...Option) (Summary, error) {
	r := &runner{
		config: cfg,
		clock:  clock.Real(),
		logger: slog.Default(),
	}
	for _, option := range options {
		option(r)
	}
	r.summary.FailuresByKind = make(map[process.ExitKind]int)

	probeOptions := append([]memprobe.Option{memprobe.WithLogger(r.logger)}, r.probeOptions...)
	probe, err := memprobe.New(cfg.BufferSize, probeOptions...)
	if err != nil {
		return Summary{}, err
	}
	defer probe.Close()
	r.probe = probe
	r.summary.Fingerprint = probe.Fingerprint()

	if r.launcher == nil {
		launcher, err := NewExecLauncher(WorkerArgs(cfg))
		if err != nil {
			return Summary{}, err
		}
		r.launcher = launcher
	}
	r.progress = ratelog.Every(r.clock, progressInterval)
	r.failureLog = ratelog.EveryN(failureLogEvery)

	r.logger.Info("starting run",
		"workers", cfg.Workers,
		"buffer_size", probe.Size(),
		"allocated", probe.AllocatedSize(),
		"run_time", cfg.RunTime,
		"mappings", cfg.Mappings,
	)

	r.summary.Started = r.clock.Now()
	if err := r.loop(ctx); err != nil {
		r.summary.Finished = r.clock.Now()
		return r.summary, err
	}
	r.summary.Finished = r.clock.Now()

	r.summary.PapaIntact = probe.CheckPapa("Dtor")
	if !r.summary.PapaIntact {
		return r.summary, ErrPapaCorrupted
	}

	if r.summary.Failures > 0 {
		r.logger.Error("Completed round", "round", r.summary.Rounds, "failures", r.summary.Failures)
	} else {
		r.logger.Info("Completed round", "round", r.summary.Rounds, "failures", r.summary.Failures)
	}
	return r.summary, nil
}

func (r *runner) loop(ctx context.Context) error {
	for round := 0; r.withinRunTime(); round++ {
		if ctx.Err() != nil {
			r.logger.Info("run interrupted", "round", round, "reason", context.Cause(ctx))
			return nil
		}
		if err := r.round(ctx, round); err != nil {
			return err
		}
		r.summary.Rounds++
		ratelog.Log(ctx, r.progress, r.logger, slog.LevelInfo, "Completed round",
			"round", round,
			"failures", r.summary.Failures,
		)
	}
	return nil
}

func (r *runner) withinRunTime() bool {
	if r.config.RunTime == 0 {
		return true
	}
	return r.clock.Now().Sub(r.summary.Started) < r.config.RunTime
}

// round launches every worker, then reaps them in launch order. A
// worker that cannot be launched aborts the run, after the workers
// already launched have been reaped.
func (r *runner) round(ctx context.Context, round int) error {
	workers := make([]Worker, 0, r.config.Workers)
	var launchErr error
	for worker := 1; worker <= r.config.Workers; worker++ {
		handle, err := r.launcher.Launch(ctx, Launch{Round: round, Worker: worker, Buffer: r.probe.File()})
		if err != nil {
			launchErr = fmt.Errorf("launching round %d worker %d: %w", round, worker, err)
			break
		}
		workers = append(workers, handle)
	}

	for index, handle := range workers {
		r.reap(round, index+1, handle)
	}
	return launchErr
}

func (r *runner) reap(round, worker int, handle Worker) {
	r.summary.WorkerRuns++
	outcome, err := handle.Wait()
	if err != nil {
		r.logger.Error("lost track of worker", "round", round, "worker", worker, "error", err)
		outcome.Exit = process.Exit{Kind: process.ExitUnknown}
	}
	switch {
	case outcome.ResultError != nil:
		r.logger.Warn("unreadable worker result", "round", round, "worker", worker, "error", outcome.ResultError)
	case outcome.Result == nil && err == nil:
		r.logger.Warn("worker sent no result", "round", round, "worker", worker, "exit", outcome.Exit.String())
	}

	var failedSteps []memprobe.Step
	if result := outcome.Result; result != nil {
		r.summary.Mismatches += result.Mismatches
		r.summary.Indiscretions += result.Indiscretions
		r.summary.Snapshots = append(r.summary.Snapshots, result.Snapshots...)
		failedSteps = result.Failed()
	}

	if !outcome.Exit.Failed() {
		return
	}
	r.summary.Failures++
	r.summary.FailuresByKind[outcome.Exit.Kind]++
	if len(r.summary.FailedRuns) < maxFailedRuns {
		r.summary.FailedRuns = append(r.summary.FailedRuns, FailedRun{
			Round:  round,
			Worker: worker,
			Exit:   outcome.Exit,
			Steps:  failedSteps,
		})
	}

	attrs := []any{"round", round, "worker", worker, "exit", outcome.Exit.String()}
	if len(failedSteps) > 0 {
		attrs = append(attrs, "failed_steps", failedSteps)
	}
	if r.summary.Failures <= maxFailedRuns {
		r.logger.Error("worker failed", attrs...)
		return
	}
	ratelog.Log(context.Background(), r.failureLog, r.logger, slog.LevelError, "worker failures continue",
		append(attrs, "failures", r.summary.Failures)...)
}
