// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package memprobe

import (
	"log/slog"

	"github.com/bureau-foundation/spraypaint/lib/affinity"
	"github.com/bureau-foundation/spraypaint/lib/dump"
)

// DefaultMappings is the number of anonymous mappings each worker
// creates per round.
const DefaultMappings = 503

// MaxTransfer bounds the chunk size of the socket transfer. A little
// more than a page keeps chunk boundaries straddling pages.
const MaxTransfer = 4127

// pipeSpewLimit bounds the mismatches detailed per socket transfer.
const pipeSpewLimit = 500

// Dumper captures the contents of a buffer that failed a check.
// *dump.Writer implements it.
type Dumper interface {
	Write(snapshot dump.Snapshot, data []byte) (string, error)
}

// Option configures a Probe.
type Option func(*Probe)

// WithLogger sets the logger for diagnostics. The default is
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Probe) { p.logger = logger }
}

// WithBinder replaces affinity.Bind as the CPU binding strategy.
func WithBinder(binder affinity.Binder) Option {
	return func(p *Probe) { p.binder = binder }
}

// WithIgnoreAffinityFailure silences the error logged when binding to
// a CPU fails.
func WithIgnoreAffinityFailure(ignore bool) Option {
	return func(p *Probe) { p.ignoreAffinityFailure = ignore }
}

// WithMappings sets how many anonymous mappings a worker creates per
// round. Values below zero are treated as zero.
func WithMappings(count int) Option {
	return func(p *Probe) { p.mappings = max(count, 0) }
}

// WithDumper enables snapshots of buffers that fail a check.
func WithDumper(dumper Dumper) Option {
	return func(p *Probe) { p.dumper = dumper }
}
