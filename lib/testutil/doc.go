// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds shared test helpers.
//
// [RequireReceive] bounds a wait on a channel fed by a goroutine under
// test, so a stuck writer or a half-closed socket fails the test
// instead of hanging it. It is the only place tests wait on the wall
// clock.
package testutil
