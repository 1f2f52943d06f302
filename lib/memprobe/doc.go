// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memprobe drives memory through the transitions that kernels
// and hypervisors most often get wrong, and checks that every byte
// survives them.
//
// A [Probe] owns one painted buffer. The buffer lives in a memfd: the
// process that creates the probe maps it shared (the papa view) and
// paints it with identity 0. Worker processes inherit the memfd and
// map it private, which gives each of them a copy-on-write view of the
// papa pages, exactly as fork would. A worker's writes never reach the
// papa view or its siblings.
//
// [Probe.RunWorker] is the per-worker protocol:
//
//  1. Bind the process to logical CPU worker-1.
//  2. Check the shared view still carries identity 0 (twice).
//  3. Poke one byte per page with the value already there, forcing
//     private copies, and check again.
//  4. Repaint the view with the worker's identity and check.
//  5. Create fresh anonymous mappings, check they are zero-filled,
//     and paint them.
//  6. Push the view through a Unix stream socket pair in randomly
//     sized chunks and compare what comes out.
//  7. Check and release every mapping.
//  8. Check the view one final time.
//
// Mismatches never stop a scan: they go to a [corruption.Reporter],
// which coalesces them into ranges and names the identity whose paint
// turned up where it should not.
package memprobe
