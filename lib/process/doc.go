// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers and the
// classification of how a child process ended.
//
// [Fatal] is the one raw write to stderr in the binary: it reports an
// error from run() when the structured logger may not be initialized.
//
// [Classify] turns the *os.ProcessState of a reaped worker into an
// [Exit]: clean, nonzero status, killed by a signal, or unknown.
package process
