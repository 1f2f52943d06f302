// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package twocolor

import "fmt"

// Period is the length of the low/high color pattern.
const Period = 7

// MaxIdentity is the largest identity with a distinct color pair.
const MaxIdentity = LowModulus*HighModulus - 1

// Color byte layout: the high 3 bits are the tag, the low 5 bits the
// residue of the identity modulo the tag's modulus.
const (
	LowModulus  = 29
	HighModulus = 31

	LowTag  byte = 0x80
	HighTag byte = 0x40

	tagMask     byte = 0xe0
	residueMask byte = 0x1f
)

// Provenance classifies a single color relative to a local owner.
type Provenance int

const (
	// Garbage is a byte whose tag or residue is not a valid color.
	Garbage Provenance = iota
	// Root is residue 0, the color of identity 0 (and of every
	// identity that is a multiple of the modulus).
	Root
	// Local equals the local owner's own color in that space.
	Local
	// Foreign is any other valid color.
	Foreign
)

// String returns the name used in diagnostics.
func (p Provenance) String() string {
	switch p {
	case Garbage:
		return "Garbage"
	case Root:
		return "Root"
	case Local:
		return "Local"
	case Foreign:
		return "Foreign"
	default:
		return fmt.Sprintf("Provenance(%d)", int(p))
	}
}

func tag(color byte) byte     { return color & tagMask }
func residue(color byte) byte { return color & residueMask }

func lowColor(identity int) byte  { return LowTag | byte(identity%LowModulus) }
func highColor(identity int) byte { return HighTag | byte(identity%HighModulus) }

func isValidLow(color byte) bool {
	return tag(color) == LowTag && residue(color) < LowModulus
}

func isValidHigh(color byte) bool {
	return tag(color) == HighTag && residue(color) < HighModulus
}

// selectsHigh reports whether (bufferID, position) falls in the high
// half of the period.
func selectsHigh(bufferID, position int) bool {
	return (bufferID+position)%Period >= Period/2
}

// Color returns the expected color of position in a buffer painted by
// identity with the given buffer id.
func Color(identity, bufferID, position int) byte {
	if selectsHigh(bufferID, position) {
		return highColor(identity)
	}
	return lowColor(identity)
}

// Paint writes the color pattern for (identity, bufferID) over buffer.
func Paint(identity, bufferID int, buffer []byte) {
	for k := range buffer {
		buffer[k] = Color(identity, bufferID, k)
	}
}

// ColorMatch returns the length of the longest prefix of buffer that
// matches the pattern of identity at the given phase. The phase is
// interchangeable with a buffer id: a buffer painted with buffer id b
// and sliced at offset o matches at phase (b+o) mod Period.
func ColorMatch(identity, phase int, buffer []byte) int {
	for k, color := range buffer {
		if color != Color(identity, phase, k) {
			return k
		}
	}
	return len(buffer)
}

// Classify returns the provenance of color from the point of view of
// localIdentity.
func Classify(localIdentity int, color byte) Provenance {
	low := isValidLow(color)
	if !low && !isValidHigh(color) {
		return Garbage
	}
	if residue(color) == 0 {
		return Root
	}
	own := highColor(localIdentity)
	if low {
		own = lowColor(localIdentity)
	}
	if color == own {
		return Local
	}
	return Foreign
}

// CrackColor describes color for corruption diagnostics, for example
// "131 Local [3 mod 29]" or "11 Garbage".
func CrackColor(localIdentity int, color byte) string {
	provenance := Classify(localIdentity, color)
	if provenance == Garbage {
		return fmt.Sprintf("%d Garbage", color)
	}
	modulus := HighModulus
	if isValidLow(color) {
		modulus = LowModulus
	}
	return fmt.Sprintf("%d %s [%d mod %d]", color, provenance, residue(color), modulus)
}
