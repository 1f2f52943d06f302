// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package twocolor paints buffers with byte patterns that identify
// their owner, and recovers the owner from raw bytes alone.
//
// Every byte ("color") carries a 3-bit tag and a 5-bit residue. Two
// tags are valid: the low space, where the residue is identity mod 29,
// and the high space, where it is identity mod 31. Together the two
// residues distinguish 29*31 = 899 identities. Identity 0 is the root
// owner.
//
// Which space a position uses is selected by a pattern with period
// [Period]: for (bufferID + position) mod 7 in {0, 1, 2} the low space,
// otherwise the high space. The low/high transition lets [Identify]
// locate both the identity and the phase of an arbitrary slice of a
// painted buffer without knowing where the slice started, and the
// periodic structure makes accidental matches against unrelated
// memory unlikely.
//
// This package has no Bureau-internal dependencies.
package twocolor
