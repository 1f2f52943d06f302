// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/spraypaint/lib/codec"
	"github.com/bureau-foundation/spraypaint/lib/memprobe"
)

// File descriptors a worker process inherits.
const (
	// BufferFD is the memfd holding the papa buffer.
	BufferFD = 3

	// ResultFD is the write end of the result pipe.
	ResultFD = 4
)

// WriteResult sends result as one CBOR record.
func WriteResult(w io.Writer, result memprobe.Result) error {
	if err := codec.NewEncoder(w).Encode(result); err != nil {
		return fmt.Errorf("sending worker result: %w", err)
	}
	return nil
}

// ReadResult receives the record written by WriteResult. It returns
// false with a nil error when the stream ended before any record
// started, which is what a worker that died early leaves behind.
func ReadResult(r io.Reader) (memprobe.Result, bool, error) {
	var result memprobe.Result
	err := codec.NewDecoder(r).Decode(&result)
	if errors.Is(err, io.EOF) {
		return memprobe.Result{}, false, nil
	}
	if err != nil {
		return memprobe.Result{}, false, fmt.Errorf("receiving worker result: %w", err)
	}
	return result, true, nil
}
