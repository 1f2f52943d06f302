// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
	"syscall"
)

// ExitKind is how a child process ended.
type ExitKind int

const (
	// ExitClean is a normal exit with status 0.
	ExitClean ExitKind = iota

	// ExitStatus is a normal exit with a nonzero status.
	ExitStatus

	// ExitSignal is termination by a signal.
	ExitSignal

	// ExitUnknown covers anything else: a missing state, or a wait
	// status that is neither an exit nor a signal.
	ExitUnknown
)

func (k ExitKind) String() string {
	switch k {
	case ExitClean:
		return "clean"
	case ExitStatus:
		return "status"
	case ExitSignal:
		return "signal"
	case ExitUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("ExitKind(%d)", int(k))
	}
}

// Exit describes how a child process ended.
type Exit struct {
	Kind ExitKind

	// Code is the exit status for ExitClean and ExitStatus.
	Code int

	// Signal is the terminating signal for ExitSignal.
	Signal syscall.Signal
}

// Failed reports whether the exit counts as a failure.
func (e Exit) Failed() bool { return e.Kind != ExitClean }

func (e Exit) String() string {
	switch e.Kind {
	case ExitClean:
		return "exited cleanly"
	case ExitStatus:
		return fmt.Sprintf("exited with status %d", e.Code)
	case ExitSignal:
		return fmt.Sprintf("terminated by signal %d (%s)", int(e.Signal), e.Signal)
	default:
		return "exited for unknown reason"
	}
}

// Classify describes a reaped child from its process state.
func Classify(state *os.ProcessState) Exit {
	if state == nil {
		return Exit{Kind: ExitUnknown}
	}
	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return classifyCode(state.ExitCode())
	}
	return ClassifyWaitStatus(status)
}

// ClassifyWaitStatus describes a raw wait status.
func ClassifyWaitStatus(status syscall.WaitStatus) Exit {
	switch {
	case status.Exited():
		return classifyCode(status.ExitStatus())
	case status.Signaled():
		return Exit{Kind: ExitSignal, Signal: status.Signal()}
	default:
		return Exit{Kind: ExitUnknown}
	}
}

func classifyCode(code int) Exit {
	switch {
	case code == 0:
		return Exit{Kind: ExitClean}
	case code > 0:
		return Exit{Kind: ExitStatus, Code: code}
	default:
		return Exit{Kind: ExitUnknown}
	}
}
