// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bureau-foundation/spraypaint/lib/memprobe"
)

// ServeWorker is the worker-process side of a launch: it attaches to
// the inherited buffer, runs the worker protocol for (round, worker),
// and sends the result to results. It returns the exit code the
// process should end with.
//
// An error is fatal: the buffer could not be attached or the protocol
// hit a harness fault. Failing to send the result is logged but does
// not change the exit code, which carries the verdict on its own.
func ServeWorker(logger *slog.Logger, buffer *os.File, results io.WriteCloser, bufferSize, round, worker int, options ...memprobe.Option) (int, error) {
	options = append([]memprobe.Option{memprobe.WithLogger(logger)}, options...)
	probe, err := memprobe.Attach(buffer, bufferSize, options...)
	if err != nil {
		results.Close()
		return 1, err
	}
	defer probe.Close()

	result, err := probe.RunWorkerResult(round, worker)
	if err != nil {
		results.Close()
		return 1, fmt.Errorf("round %d worker %d: %w", round, worker, err)
	}

	if err := WriteResult(results, result); err != nil {
		logger.Warn("worker result not delivered", "round", round, "worker", worker, "error", err)
	}
	if err := results.Close(); err != nil {
		logger.Warn("closing result pipe", "round", round, "worker", worker, "error", err)
	}
	return result.ExitCode(), nil
}
