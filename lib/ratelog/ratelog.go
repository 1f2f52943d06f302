// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelog throttles repetitive log lines.
//
// A [Limiter] decides whether the next occurrence of a recurring event
// should be logged. [EveryN] admits every Nth occurrence; [Every]
// admits at most one occurrence per interval, measured on an
// injectable [clock.Clock]. Both are safe for concurrent use.
package ratelog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/spraypaint/lib/clock"
)

// Limiter admits or drops occurrences of a recurring event.
type Limiter interface {
	// Allow reports whether this occurrence should be logged.
	Allow() bool
}

// EveryN admits the Nth, 2Nth, 3Nth, ... occurrence.
func EveryN(n uint64) Limiter {
	if n == 0 {
		n = 1
	}
	return &everyN{n: n}
}

type everyN struct {
	n     uint64
	count atomic.Uint64
}

func (l *everyN) Allow() bool {
	return l.count.Add(1)%l.n == 0
}

// Every admits the first occurrence and then at most one occurrence
// per interval.
func Every(c clock.Clock, interval time.Duration) Limiter {
	return &every{clock: c, interval: interval}
}

type every struct {
	clock    clock.Clock
	interval time.Duration

	mu      sync.Mutex
	last    time.Time
	started bool
}

func (l *every) Allow() bool {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started && now.Sub(l.last) < l.interval {
		return false
	}
	l.started = true
	l.last = now
	return true
}

// Log emits msg through logger at level when limiter admits it.
func Log(ctx context.Context, limiter Limiter, logger *slog.Logger, level slog.Level, msg string, args ...any) {
	if limiter.Allow() {
		logger.Log(ctx, level, msg, args...)
	}
}
