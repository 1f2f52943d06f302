// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memprobe

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/spraypaint/lib/affinity"
	"github.com/bureau-foundation/spraypaint/lib/twocolor"
)

// ErrSetup marks an unrecoverable failure while building a probe: the
// buffer could not be allocated, or it did not hold its paint. Either
// way the allocator itself is broken and nothing downstream can be
// trusted.
var ErrSetup = errors.New("probe setup failed")

// PageSize is the system page size.
var PageSize = os.Getpagesize()

// MappedBufferSize is the size of each anonymous mapping a worker
// creates: three pages.
var MappedBufferSize = 3 * PageSize

// Probe owns the painted buffer and runs the worker protocol over it.
//
// Round, worker, and current identity are not stored on the Probe:
// they travel through the protocol in a [WorkerState], so one Probe is
// correct whether workers run as separate processes or, in tests, as
// successive calls in one process.
type Probe struct {
	file      *os.File
	size      int
	allocated int

	// papa is the shared view. Read-write in the process that created
	// the probe, read-only in an attached worker.
	papa        []byte
	fingerprint [32]byte

	logger                *slog.Logger
	binder                affinity.Binder
	ignoreAffinityFailure bool
	mappings              int
	dumper                Dumper

	// mapper allocates the fresh anonymous mappings of step Mapped.
	// Results must be released with unix.Munmap.
	mapper func(length int) ([]byte, error)
}

func newProbe(requested int, options []Option) *Probe {
	size := max(requested, MappedBufferSize)
	probe := &Probe{
		size:      size,
		allocated: roundUpToPage(size),
		logger:    slog.Default(),
		binder:    affinity.Bind,
		mappings:  DefaultMappings,
		mapper:    mapAnonymous,
	}
	for _, option := range options {
		option(probe)
	}
	return probe
}

// New allocates a buffer of max(requested, 3 pages) bytes in a fresh
// memfd, paints it with identity 0, and verifies the paint three
// times. Any failure wraps ErrSetup.
func New(requested int, options ...Option) (*Probe, error) {
	probe := newProbe(requested, options)

	fd, err := unix.MemfdCreate("spraypaint", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("%w: memfd_create: %v", ErrSetup, err)
	}
	probe.file = os.NewFile(uintptr(fd), "spraypaint-buffer")
	if err := unix.Ftruncate(fd, int64(probe.allocated)); err != nil {
		probe.file.Close()
		return nil, fmt.Errorf("%w: sizing buffer to %d bytes: %v", ErrSetup, probe.allocated, err)
	}
	probe.papa, err = unix.Mmap(fd, 0, probe.allocated, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		probe.file.Close()
		return nil, fmt.Errorf("%w: mapping %d byte buffer: %v", ErrSetup, probe.allocated, err)
	}

	twocolor.Paint(0, 0, probe.papa[:probe.size])
	papa := WorkerState{}
	for k := 0; k < 3; k++ {
		if !probe.ColorIsRight(papa, 0, probe.papa[:probe.size], "Ctor") {
			probe.Close()
			return nil, fmt.Errorf("%w: failed to color papa buffer right", ErrSetup)
		}
	}
	probe.fingerprint = blake3.Sum256(probe.papa)
	return probe, nil
}

// Attach builds a probe over a buffer created by New in another
// process and inherited as file. The requested size must be the one
// the creator used. The shared view is mapped read-only; RunWorker
// maps its own private views.
func Attach(file *os.File, requested int, options ...Option) (*Probe, error) {
	probe := newProbe(requested, options)
	probe.file = file

	var stat unix.Stat_t
	if err := unix.Fstat(int(file.Fd()), &stat); err != nil {
		return nil, fmt.Errorf("%w: fstat inherited buffer: %v", ErrSetup, err)
	}
	if stat.Size < int64(probe.allocated) {
		return nil, fmt.Errorf("%w: inherited buffer has %d bytes, want %d", ErrSetup, stat.Size, probe.allocated)
	}
	papa, err := unix.Mmap(int(file.Fd()), 0, probe.allocated, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mapping inherited buffer: %v", ErrSetup, err)
	}
	probe.papa = papa
	probe.fingerprint = blake3.Sum256(probe.papa)
	return probe, nil
}

// Size returns the painted length of the buffer.
func (p *Probe) Size() int { return p.size }

// AllocatedSize returns the buffer length rounded up to whole pages.
func (p *Probe) AllocatedSize() int { return p.allocated }

// File returns the memfd backing the buffer, for handing to worker
// processes.
func (p *Probe) File() *os.File { return p.file }

// Fingerprint returns the BLAKE3 digest of the whole allocation, taken
// when the probe was built.
func (p *Probe) Fingerprint() [32]byte { return p.fingerprint }

// CheckPapa verifies the shared view still carries identity 0 and that
// the allocation (including the slack past Size) is byte-for-byte what
// it was when the probe was built.
func (p *Probe) CheckPapa(label string) bool {
	ok := p.ColorIsRight(WorkerState{}, 0, p.papa[:p.size], label)
	if digest := blake3.Sum256(p.papa); digest != p.fingerprint {
		p.logger.Error("papa buffer fingerprint changed",
			"label", label,
			"want", fmt.Sprintf("%x", p.fingerprint[:8]),
			"got", fmt.Sprintf("%x", digest[:8]),
		)
		ok = false
	}
	return ok
}

// Close unmaps the shared view and closes the memfd.
func (p *Probe) Close() error {
	var firstErr error
	if p.papa != nil {
		if err := unix.Munmap(p.papa); err != nil {
			firstErr = fmt.Errorf("unmapping buffer: %w", err)
		}
		p.papa = nil
	}
	if p.file != nil {
		if err := p.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.file = nil
	}
	return firstErr
}

// privateView maps a copy-on-write view of the buffer.
func (p *Probe) privateView() ([]byte, error) {
	view, err := unix.Mmap(int(p.file.Fd()), 0, p.allocated, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mapping private view: %w", err)
	}
	return view, nil
}

func roundUpToPage(n int) int {
	return (n + PageSize - 1) / PageSize * PageSize
}
