// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dump writes snapshots of buffers that failed validation, so
// that corruption can be examined after the worker process that saw it
// has exited.
//
// A snapshot file is a single CBOR record holding the scan's metadata,
// the (optionally compressed) buffer contents, and a BLAKE3 digest of
// the uncompressed contents. Files are written atomically: a reader
// never sees a partial snapshot.
package dump

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/spraypaint/lib/codec"
)

// Snapshot describes one captured buffer.
type Snapshot struct {
	Label    string `cbor:"label"`
	Round    int    `cbor:"round"`
	Worker   int    `cbor:"worker"`
	BufferID int    `cbor:"buffer_id"`

	// Identity is the owner the buffer was expected to carry.
	Identity int `cbor:"identity"`

	// Size is the uncompressed length of the buffer.
	Size int `cbor:"size"`

	Compression Compression `cbor:"compression"`

	// Digest is the BLAKE3-256 digest of the uncompressed buffer.
	Digest [32]byte `cbor:"digest"`

	Data []byte `cbor:"data"`
}

// Writer stores snapshots in a directory.
type Writer struct {
	directory   string
	compression Compression
}

// NewWriter returns a Writer that stores snapshots under directory,
// creating it if needed.
func NewWriter(directory string, compression Compression) (*Writer, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating dump directory: %w", err)
	}
	return &Writer{directory: directory, compression: compression}, nil
}

// Write captures data under the metadata in snapshot and returns the
// path of the new file. The Size, Compression, Digest, and Data fields
// of snapshot are filled in by Write.
func (w *Writer) Write(snapshot Snapshot, data []byte) (string, error) {
	snapshot.Size = len(data)
	snapshot.Digest = blake3.Sum256(data)
	snapshot.Compression = w.compression
	compressed, err := compress(data, w.compression)
	if err == errIncompressible {
		snapshot.Compression = CompressionNone
		compressed = data
	} else if err != nil {
		return "", err
	}
	snapshot.Data = compressed

	encoded, err := codec.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	name := fmt.Sprintf("round-%d-worker-%d-buffer-%d-%s.snap",
		snapshot.Round, snapshot.Worker, snapshot.BufferID, snapshot.Label)
	path := filepath.Join(w.directory, name)
	if err := writeAtomic(path, encoded); err != nil {
		return "", err
	}
	return path, nil
}

// Read loads a snapshot and returns it with its decompressed contents.
// The digest is verified.
func Read(path string) (Snapshot, []byte, error) {
	encoded, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, nil, err
	}
	var snapshot Snapshot
	if err := codec.Unmarshal(encoded, &snapshot); err != nil {
		return Snapshot{}, nil, fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	data, err := decompress(snapshot.Data, snapshot.Compression, snapshot.Size)
	if err != nil {
		return Snapshot{}, nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	if blake3.Sum256(data) != snapshot.Digest {
		return Snapshot{}, nil, fmt.Errorf("snapshot %s: digest mismatch", path)
	}
	return snapshot, data, nil
}

// writeAtomic writes data to a temporary file beside path, fsyncs it,
// and renames it into place.
func writeAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing %s: %w", temporaryPath, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing %s: %w", temporaryPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing %s: %w", temporaryPath, err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s: %w", temporaryPath, err)
	}
	return nil
}
