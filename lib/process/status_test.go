// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"os/exec"
	"syscall"
	"testing"
)

// Wait status layout on Linux: exit code in bits 8-15, terminating
// signal in bits 0-6.
func exitedWith(code int) syscall.WaitStatus { return syscall.WaitStatus(code << 8) }
func killedBy(signal syscall.Signal) syscall.WaitStatus {
	return syscall.WaitStatus(signal)
}

func TestClassifyWaitStatus(t *testing.T) {
	tests := []struct {
		name   string
		status syscall.WaitStatus
		want   Exit
	}{
		{name: "clean", status: exitedWith(0), want: Exit{Kind: ExitClean}},
		{name: "status 1", status: exitedWith(1), want: Exit{Kind: ExitStatus, Code: 1}},
		{name: "status 42", status: exitedWith(42), want: Exit{Kind: ExitStatus, Code: 42}},
		{name: "sigsegv", status: killedBy(syscall.SIGSEGV), want: Exit{Kind: ExitSignal, Signal: syscall.SIGSEGV}},
		{name: "sigkill", status: killedBy(syscall.SIGKILL), want: Exit{Kind: ExitSignal, Signal: syscall.SIGKILL}},
		{name: "stopped", status: syscall.WaitStatus(0x7f | int(syscall.SIGSTOP)<<8), want: Exit{Kind: ExitUnknown}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := ClassifyWaitStatus(test.status)
			if got != test.want {
				t.Errorf("ClassifyWaitStatus(%#x) = %+v, want %+v", int(test.status), got, test.want)
			}
			if got.Failed() != (test.want.Kind != ExitClean) {
				t.Errorf("Failed() = %v for %s", got.Failed(), got)
			}
		})
	}
}

func TestClassifyNilState(t *testing.T) {
	if got := Classify(nil); got.Kind != ExitUnknown {
		t.Errorf("Classify(nil) = %+v, want unknown", got)
	}
}

func TestClassifyRealProcess(t *testing.T) {
	shell, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no shell available")
	}

	tests := []struct {
		script string
		want   Exit
	}{
		{script: "exit 0", want: Exit{Kind: ExitClean}},
		{script: "exit 3", want: Exit{Kind: ExitStatus, Code: 3}},
		{script: "kill -TERM $$", want: Exit{Kind: ExitSignal, Signal: syscall.SIGTERM}},
	}
	for _, test := range tests {
		cmd := exec.Command(shell, "-c", test.script)
		cmd.Run()
		if got := Classify(cmd.ProcessState); got != test.want {
			t.Errorf("%q: Classify = %+v, want %+v", test.script, got, test.want)
		}
	}
}

func TestExitString(t *testing.T) {
	tests := []struct {
		exit Exit
		want string
	}{
		{exit: Exit{Kind: ExitClean}, want: "exited cleanly"},
		{exit: Exit{Kind: ExitStatus, Code: 1}, want: "exited with status 1"},
		{exit: Exit{Kind: ExitSignal, Signal: syscall.SIGSEGV}, want: "terminated by signal 11 (segmentation fault)"},
		{exit: Exit{Kind: ExitUnknown}, want: "exited for unknown reason"},
	}
	for _, test := range tests {
		if got := test.exit.String(); got != test.want {
			t.Errorf("String() = %q, want %q", got, test.want)
		}
	}
}
