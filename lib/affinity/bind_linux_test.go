// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package affinity

import "testing"

func TestBindRejectsInvalidCPU(t *testing.T) {
	if err := Bind(-1); err == nil {
		t.Error("Bind(-1) succeeded, want error")
	}
	if err := Bind(1 << 20); err == nil {
		t.Error("Bind(1<<20) succeeded, want error")
	}
}
