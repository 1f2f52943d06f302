// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memprobe

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/spraypaint/lib/corruption"
)

// errShortTransfer is returned when the stream ends before the whole
// buffer arrived.
var errShortTransfer = errors.New("stream closed before buffer was transferred")

// writerSource and readerSource seed the chunk-length generators. The
// two sides take the same components in opposite order so that write
// and read boundaries fall at different offsets.
func writerSource(state WorkerState) rand.Source {
	return rand.NewPCG(uint64(state.Worker), uint64(state.Round))
}

func readerSource(state WorkerState) rand.Source {
	return rand.NewPCG(uint64(state.Round), uint64(state.Worker))
}

// chunkLength draws a length uniform in [1, min(remaining, MaxTransfer)].
func chunkLength(rng *rand.Rand, remaining int) int {
	return 1 + rng.IntN(min(remaining, MaxTransfer))
}

// transfer pushes view through a connected stream socket pair and
// checks that every byte read back matches view at its logical offset.
// Mismatches fail StepTransfer; a transport error is returned.
func (p *Probe) transfer(result *Result, state WorkerState, view []byte) error {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("socketpair for worker %d: %w", state.Worker, err)
	}

	var outcome scanOutcome
	var group errgroup.Group
	group.Go(func() error {
		defer unix.Close(fds[0])
		return writeChunks(fds[0], view, rand.New(writerSource(state)))
	})
	group.Go(func() error {
		defer unix.Close(fds[1])
		var err error
		outcome, err = p.readChunks(fds[1], state, view, rand.New(readerSource(state)))
		return err
	})
	if err := group.Wait(); err != nil {
		return fmt.Errorf("worker %d transfer: %w", state.Worker, err)
	}

	result.record(StepTransfer, outcome)
	if !outcome.ok() {
		p.logger.Error("failed loopback",
			"round", state.Round,
			"worker", state.Worker,
			"total_pipe_failures", outcome.fails,
		)
	}
	return nil
}

func writeChunks(fd int, view []byte, rng *rand.Rand) error {
	for position := 0; position < len(view); {
		length := chunkLength(rng, len(view)-position)
		n, err := retryEINTR(func() (int, error) {
			return unix.Write(fd, view[position:position+length])
		})
		if err != nil {
			return fmt.Errorf("write at offset %d: %w", position, err)
		}
		position += n
	}
	return nil
}

// readChunks reads the stream in its own random segmentation and
// compares each chunk against view. Each chunk gets its own reporter,
// with positions relative to the chunk; only the first pipeSpewLimit
// mismatches of the whole transfer are detailed, the rest are counted.
func (p *Probe) readChunks(fd int, state WorkerState, view []byte, rng *rand.Rand) (scanOutcome, error) {
	var outcome scanOutcome
	chunk := make([]byte, MaxTransfer)
	for position := 0; position < len(view); {
		length := chunkLength(rng, len(view)-position)
		n, err := retryEINTR(func() (int, error) {
			return unix.Read(fd, chunk[:length])
		})
		if err != nil {
			return outcome, fmt.Errorf("read at offset %d: %w", position, err)
		}
		if n == 0 {
			return outcome, fmt.Errorf("at offset %d of %d: %w", position, len(view), errShortTransfer)
		}

		label := fmt.Sprintf("%s Offset: %d", StepTransfer, position)
		reporter := corruption.New(state.ident(0, label), state.Identity, chunk[:n], p.logger)
		for k := 0; k < n; k++ {
			if chunk[k] == view[position+k] {
				continue
			}
			outcome.fails++
			if outcome.fails < pipeSpewLimit {
				reporter.Report(k, chunk[k])
			}
		}
		detail := finish(reporter)
		outcome.indiscretions += detail.indiscretions
		outcome.ranges = append(outcome.ranges, detail.ranges...)
		position += n
	}
	return outcome, nil
}

func retryEINTR(call func() (int, error)) (int, error) {
	for {
		n, err := call()
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}
