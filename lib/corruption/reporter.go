// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package corruption turns the byte mismatches found by a validation
// scan into bounded, attributable diagnostics.
//
// A [Reporter] receives mismatches in scan order. Strictly consecutive
// positions are coalesced into one [Range]; when a range closes, its
// summary (bounds, fail count, histogram of observed colors) is logged
// and the observed bytes of the range are decoded with
// [twocolor.Identify]. A decode that names neither the root owner nor
// the local owner, over more than [IndiscretionThreshold] bytes, is an
// indiscretion: memory that was painted by some other process.
//
// Once [SpewLimit] mismatches have been reported, per-mismatch output
// stops and no new ranges are opened; counts keep accruing in the open
// range so that a wholesale-wrong buffer produces a handful of log
// lines rather than millions.
package corruption

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/spraypaint/lib/twocolor"
)

// SpewLimit is the lifetime mismatch count after which per-mismatch
// detail is suppressed.
const SpewLimit = 600

// IndiscretionThreshold is the decoded length a foreign identity must
// exceed before a range is flagged as an indiscretion.
const IndiscretionThreshold = 6

// ColorCount is one histogram bucket of a range.
type ColorCount struct {
	Color byte `cbor:"color" yaml:"color"`
	Count int  `cbor:"count" yaml:"count"`
}

// Range is the summary of one maximal run of consecutive mismatches.
type Range struct {
	// Index is the 1-based range number within its scan.
	Index int `cbor:"index" yaml:"index"`

	// Start and End are the first and last mismatched positions,
	// inclusive.
	Start int `cbor:"start" yaml:"start"`
	End   int `cbor:"end" yaml:"end"`

	// Fails is the number of mismatches attributed to the range.
	Fails int `cbor:"fails" yaml:"fails"`

	// Squelched is set when the range was still open as the spew
	// limit was reached and absorbed later mismatches.
	Squelched bool `cbor:"squelched,omitempty" yaml:"squelched,omitempty"`

	// Colors is the histogram of observed colors, ascending by color.
	Colors []ColorCount `cbor:"colors" yaml:"colors"`

	// Decoded is set when the observed bytes identified an owner.
	Decoded bool `cbor:"decoded" yaml:"decoded"`

	// Identity is the decode result; meaningful only when Decoded.
	Identity twocolor.Identity `cbor:"identity" yaml:"identity"`

	// Indiscretion marks a range painted by a different owner.
	Indiscretion bool `cbor:"indiscretion,omitempty" yaml:"indiscretion,omitempty"`
}

// Length returns the number of positions the range spans.
func (r Range) Length() int { return r.End - r.Start + 1 }

// Reporter coalesces the mismatches of one validation scan. It is not
// safe for concurrent use.
type Reporter struct {
	ident    string
	local    int
	observed []byte
	logger   *slog.Logger

	active     bool
	finished   bool
	rangeCount int
	rangeStart int
	rangeEnd   int
	rangeFails int
	totalFails int
	histogram  [256]int

	ranges []Range
}

// New returns a Reporter for a scan over observed. The ident prefixes
// every log line and names the scan in indiscretion reports;
// localIdentity is the owner the scan expected, used to classify
// colors and to tell foreign decodes from local ones.
func New(ident string, localIdentity int, observed []byte, logger *slog.Logger) *Reporter {
	return &Reporter{
		ident:    ident,
		local:    localIdentity,
		observed: observed,
		logger:   logger,
	}
}

// Report records that position held color instead of its expected
// value. Positions must be reported in ascending scan order.
func (r *Reporter) Report(position int, color byte) {
	r.totalFails++
	if !r.Squelched() {
		if r.active && position != r.rangeEnd+1 {
			r.emit()
			r.rangeCount++
			r.clear()
			r.rangeStart = position
		}
		r.logger.Error(r.ident,
			"bad_color", twocolor.CrackColor(r.local, color),
			"position", position,
		)
	}
	if !r.active {
		r.rangeCount = 1
		r.rangeStart = position
		r.active = true
	}
	r.rangeEnd = position
	r.rangeFails++
	r.histogram[color]++
}

// Finish flushes the summary of the range still open at the end of
// the scan. Calling Finish more than once has no further effect.
func (r *Reporter) Finish() {
	if r.active && !r.finished {
		r.emit()
	}
	r.finished = true
}

// Squelched reports whether the spew limit has been reached.
func (r *Reporter) Squelched() bool { return r.totalFails >= SpewLimit }

// TotalFails returns the number of mismatches reported so far.
func (r *Reporter) TotalFails() int { return r.totalFails }

// RangeCount returns the number of ranges opened so far.
func (r *Reporter) RangeCount() int { return r.rangeCount }

// Ranges returns the summaries emitted so far, in scan order.
func (r *Reporter) Ranges() []Range { return r.ranges }

// Indiscretions returns the number of emitted ranges flagged as
// indiscretions.
func (r *Reporter) Indiscretions() int {
	count := 0
	for _, summary := range r.ranges {
		if summary.Indiscretion {
			count++
		}
	}
	return count
}

func (r *Reporter) clear() {
	r.histogram = [256]int{}
	r.rangeFails = 0
}

// emit summarizes the open range, decodes its observed bytes, and logs
// the result.
func (r *Reporter) emit() {
	summary := Range{
		Index:     r.rangeCount,
		Start:     r.rangeStart,
		End:       r.rangeEnd,
		Fails:     r.rangeFails,
		Squelched: r.Squelched(),
	}
	var colors []string
	for color, count := range r.histogram {
		if count == 0 {
			continue
		}
		summary.Colors = append(summary.Colors, ColorCount{Color: byte(color), Count: count})
		colors = append(colors, fmt.Sprintf("%s: %d", twocolor.CrackColor(r.local, byte(color)), count))
	}

	end := min(r.rangeEnd+1, len(r.observed))
	start := min(r.rangeStart, end)
	identity, ok := twocolor.Identify(r.observed[start:end])
	if ok {
		summary.Decoded = true
		summary.Identity = identity
		summary.Indiscretion = identity.Identity != r.local &&
			identity.Identity != 0 &&
			identity.Length > IndiscretionThreshold
	}
	r.ranges = append(r.ranges, summary)

	attrs := []any{
		"range", summary.Index,
		"range_start", summary.Start,
		"range_end", summary.End,
		"length", summary.Length(),
		"range_fails", summary.Fails,
		"squelched", summary.Squelched,
		"colors", strings.Join(colors, ", "),
	}
	switch {
	case summary.Indiscretion:
		r.logger.Error(r.ident+" *** Indiscretion", append(attrs,
			"from_worker", identity.Identity,
			"decoded_length", identity.Length,
		)...)
	case ok:
		r.logger.Error(r.ident, append(attrs, "decoded", identity.String())...)
	default:
		r.logger.Error(r.ident, append(attrs, "decoded", "Identity indeterminate")...)
	}
}
