// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator runs spraypaint rounds.
//
// The parent process builds a [memprobe.Probe], which paints the papa
// buffer into a memfd. Each round it launches one worker process per
// configured worker through a [Launcher], waits for all of them, and
// classifies how each one ended. Rounds repeat until the run time
// elapses or the context is cancelled; the papa buffer is then checked
// one last time, and corruption there is fatal.
//
// [ExecLauncher] re-executes the current binary in worker mode. The
// child inherits the memfd as fd 3 ([BufferFD]) and the write end of a
// result pipe as fd 4 ([ResultFD]). [ServeWorker] is the child side:
// it attaches to the inherited buffer, runs the worker protocol, and
// sends its [memprobe.Result] back as one CBOR record.
package orchestrator
