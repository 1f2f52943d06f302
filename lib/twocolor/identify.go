// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package twocolor

import "fmt"

// Identity is the result of a blind decode.
type Identity struct {
	// Identity is the recovered owner.
	Identity int `cbor:"identity" yaml:"identity"`

	// Length is the number of leading bytes consistent with the
	// recovered (Identity, Phase) pattern.
	Length int `cbor:"length" yaml:"length"`

	// Phase is the pattern phase of the first byte, modulo Period.
	Phase int `cbor:"phase" yaml:"phase"`
}

func (id Identity) String() string {
	return fmt.Sprintf("Identity: %d Length: %d Phase: %d", id.Identity, id.Length, id.Phase)
}

// Identify recovers the owner of the longest consistently painted
// prefix of buffer. It returns false when the first Period bytes carry
// no usable low/high transition, or when the recovered pattern holds
// for Period bytes or fewer: short matches happen by accident too
// often to be trusted.
func Identify(buffer []byte) (Identity, bool) {
	identity, phase, ok := candidate(buffer)
	if !ok {
		return Identity{}, false
	}
	length := ColorMatch(identity, phase, buffer)
	if length <= Period {
		return Identity{}, false
	}
	return Identity{Identity: identity, Length: length, Phase: phase}, true
}

// candidate locates the first color transition within one period and
// derives the identity and phase it implies.
func candidate(buffer []byte) (identity, phase int, ok bool) {
	window := min(len(buffer), Period)
	if window < 2 {
		return 0, 0, false
	}
	first := buffer[0]
	k := 1
	for k < window && buffer[k] == first {
		k++
	}
	if k >= window {
		return 0, 0, false
	}
	second := buffer[k]

	switch {
	case isValidLow(first) && isValidHigh(second):
		// Position k is the first high position: (phase+k) mod 7 == 3.
		return crt(first, second), (Period + Period/2 - k) % Period, true
	case isValidHigh(first) && isValidLow(second):
		// Position k wraps back to the low space: (phase+k) mod 7 == 0.
		return crt(second, first), Period - k, true
	default:
		return 0, 0, false
	}
}

// crt returns the identity whose low and high colors are the given
// pair. The search is exhaustive; identity 0 is the fallback when no
// nonzero identity matches, which is exactly the pair (0x80, 0x40).
func crt(low, high byte) int {
	for k := 1; k <= MaxIdentity; k++ {
		if lowColor(k) == low && highColor(k) == high {
			return k
		}
	}
	return 0
}
