// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package affinity

import (
	"fmt"
	"os"
	"strconv"
	"unsafe"

	"golang.org/x/sys/unix"
)

// cpuSetSize is the number of CPUs a unix.CPUSet can address (the kernel's
// CPU_SETSIZE); x/sys does not export that constant on Linux.
const cpuSetSize = int(unsafe.Sizeof(unix.CPUSet{})) * 8

// Bind pins every thread of the current process to cpu.
//
// sched_setaffinity(2) applies to a single thread, and the Go runtime
// may already be running several. Bind walks /proc/self/task and pins
// each one; threads created afterwards inherit the mask from whichever
// thread spawns them.
func Bind(cpu int) error {
	if cpu < 0 || cpu >= cpuSetSize {
		return fmt.Errorf("cpu %d out of range [0, %d)", cpu, cpuSetSize)
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)

	entries, err := os.ReadDir("/proc/self/task")
	if err != nil {
		// No procfs: pin the calling thread only.
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			return fmt.Errorf("setaffinity to cpu %d: %w", cpu, err)
		}
		return nil
	}
	for _, entry := range entries {
		tid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		if err := unix.SchedSetaffinity(tid, &set); err != nil {
			// The thread may have exited since ReadDir.
			if err == unix.ESRCH {
				continue
			}
			return fmt.Errorf("setaffinity thread %d to cpu %d: %w", tid, cpu, err)
		}
	}
	return nil
}
