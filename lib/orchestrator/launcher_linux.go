// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/bureau-foundation/spraypaint/lib/config"
	"github.com/bureau-foundation/spraypaint/lib/memprobe"
	"github.com/bureau-foundation/spraypaint/lib/process"
)

// Launch describes one worker run.
type Launch struct {
	Round  int
	Worker int

	// Buffer is the memfd the worker maps copy-on-write.
	Buffer *os.File
}

// Outcome is how a worker run ended.
type Outcome struct {
	Exit process.Exit

	// Result is what the worker sent back, or nil when it sent nothing
	// readable.
	Result *memprobe.Result

	// ResultError is set when the worker sent a malformed result.
	ResultError error
}

// Worker is a launched worker run.
type Worker interface {
	// Wait blocks until the worker has ended. An error means the
	// worker's fate is unknown.
	Wait() (Outcome, error)
}

// Launcher starts worker runs. Launch must not block on the worker:
// every worker of a round is launched before any is waited for.
type Launcher interface {
	Launch(ctx context.Context, launch Launch) (Worker, error)
}

// ExecLauncher runs each worker as a child process executing Path.
type ExecLauncher struct {
	// Path is the binary to execute, normally the current executable.
	Path string

	// Args precede the per-run --round and --worker flags.
	Args []string

	// Stderr receives the worker's log output. Nil discards it.
	Stderr io.Writer
}

// WorkerArgs returns the command line that puts the spraypaint binary
// into worker mode with the settings of cfg. ExecLauncher appends the
// per-run flags.
func WorkerArgs(cfg *config.Config) []string {
	args := []string{
		"worker",
		"--buf-size", strconv.Itoa(cfg.BufferSize),
		"--mappings", strconv.Itoa(cfg.Mappings),
		"--ignore-affinity-failure=" + strconv.FormatBool(cfg.IgnoreAffinityFailure),
		"--log-format", string(cfg.LogFormat),
	}
	if cfg.Dump.Dir != "" {
		args = append(args, "--dump-dir", cfg.Dump.Dir, "--dump-compression", cfg.Dump.Compression)
	}
	return args
}

// NewExecLauncher returns an ExecLauncher that re-executes the running
// binary with args.
func NewExecLauncher(args []string) (*ExecLauncher, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating own executable: %w", err)
	}
	return &ExecLauncher{Path: path, Args: args, Stderr: os.Stderr}, nil
}

// Launch starts a worker process. The worker is not tied to ctx: once
// started it always runs to completion.
func (l *ExecLauncher) Launch(_ context.Context, launch Launch) (Worker, error) {
	resultRead, resultWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating result pipe: %w", err)
	}

	args := append([]string{}, l.Args...)
	args = append(args,
		"--round", strconv.Itoa(launch.Round),
		"--worker", strconv.Itoa(launch.Worker),
	)
	command := exec.Command(l.Path, args...)
	command.ExtraFiles = []*os.File{launch.Buffer, resultWrite} // fds 3 and 4 in child
	command.Stderr = l.Stderr
	// Own process group, so a terminal interrupt reaches only the
	// parent, which then stops after the current round.
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := command.Start(); err != nil {
		resultRead.Close()
		resultWrite.Close()
		return nil, fmt.Errorf("starting worker %d of round %d: %w", launch.Worker, launch.Round, err)
	}

	// Close the worker's end in the parent so the read sees EOF when
	// the worker exits.
	resultWrite.Close()

	received := make(chan receivedResult, 1)
	go func() {
		defer resultRead.Close()
		result, ok, err := ReadResult(resultRead)
		received <- receivedResult{result: result, ok: ok, err: err}
	}()

	return &execWorker{command: command, received: received}, nil
}

type receivedResult struct {
	result memprobe.Result
	ok     bool
	err    error
}

type execWorker struct {
	command  *exec.Cmd
	received chan receivedResult
}

func (w *execWorker) Wait() (Outcome, error) {
	waitErr := w.command.Wait()
	received := <-w.received

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return Outcome{Exit: process.Exit{Kind: process.ExitUnknown}}, fmt.Errorf("waiting for pid %d: %w", w.command.Process.Pid, waitErr)
	}

	outcome := Outcome{
		Exit:        process.Classify(w.command.ProcessState),
		ResultError: received.err,
	}
	if received.ok {
		outcome.Result = &received.result
	}
	return outcome, nil
}
