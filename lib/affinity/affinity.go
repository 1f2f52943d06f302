// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package affinity pins a worker process to one logical CPU and
// discovers which logical CPUs are online.
//
// [Bind] is the production [Binder]. Tests substitute their own Binder
// to simulate pinning failures without depending on the host's CPU
// layout or scheduler policy.
package affinity

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Binder pins the calling process to logical unit cpu. A nil return
// means every thread of the process now runs only on that CPU.
type Binder func(cpu int) error

// OnlineCPUs returns the logical CPUs listed in
// /sys/devices/system/cpu/online. When the file is missing or
// unparseable (some containers and non-Linux hosts), it falls back to
// 0..runtime.NumCPU()-1.
func OnlineCPUs() []int {
	return onlineCPUsFrom("/sys")
}

// onlineCPUsFrom is the testable implementation of OnlineCPUs. It
// accepts the sysfs root so tests can point at a synthetic tree.
func onlineCPUsFrom(sysRoot string) []int {
	data, err := os.ReadFile(filepath.Join(sysRoot, "devices/system/cpu/online"))
	if err == nil {
		if cpus, err := ParseCPUList(strings.TrimSpace(string(data))); err == nil && len(cpus) > 0 {
			return cpus
		}
	}
	cpus := make([]int, runtime.NumCPU())
	for k := range cpus {
		cpus[k] = k
	}
	return cpus
}

// ParseCPUList parses the kernel's cpulist format ("0-3,8,10-11") into
// an ascending list of CPU numbers.
func ParseCPUList(list string) ([]int, error) {
	var cpus []int
	if list == "" {
		return cpus, nil
	}
	for _, part := range strings.Split(list, ",") {
		low, high, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(low)
		if err != nil {
			return nil, fmt.Errorf("invalid cpu %q in list %q", low, list)
		}
		last := first
		if isRange {
			last, err = strconv.Atoi(high)
			if err != nil {
				return nil, fmt.Errorf("invalid cpu %q in list %q", high, list)
			}
		}
		if first < 0 || last < first {
			return nil, fmt.Errorf("invalid cpu range %q in list %q", part, list)
		}
		for cpu := first; cpu <= last; cpu++ {
			cpus = append(cpus, cpu)
		}
	}
	return cpus, nil
}
