// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"testing"
	"time"
)

type recordingTB struct {
	failure string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Fatalf(format string, args ...any) {
	r.failure = fmt.Sprintf(format, args...)
	panic(r)
}

func expectFatal(t *testing.T, fn func(tb *recordingTB)) string {
	t.Helper()
	tb := &recordingTB{}
	func() {
		defer func() {
			if recovered := recover(); recovered != nil && recovered != tb {
				panic(recovered)
			}
		}()
		fn(tb)
	}()
	return tb.failure
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 42
	if got := RequireReceive(t, ch, time.Second, "value"); got != 42 {
		t.Errorf("RequireReceive = %d, want 42", got)
	}
}

func TestRequireReceiveTimeout(t *testing.T) {
	failure := expectFatal(t, func(tb *recordingTB) {
		RequireReceive(tb, make(chan int), time.Millisecond, "worker %d", 3)
	})
	if failure != "timed out after 1ms: worker 3" {
		t.Errorf("failure = %q", failure)
	}
}

func TestRequireReceiveClosed(t *testing.T) {
	ch := make(chan int)
	close(ch)
	failure := expectFatal(t, func(tb *recordingTB) {
		RequireReceive(tb, ch, time.Second)
	})
	if failure != "channel closed without a value: (no message)" {
		t.Errorf("failure = %q", failure)
	}
}
