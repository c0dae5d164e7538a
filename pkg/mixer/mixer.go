// Package mixer implements the keyed, multi-pass, non-cryptographic mixing
// function used to tag and verify envelopes.
//
// This is deliberately not a MAC. The algorithm is a fixed wire contract: any
// peer that reproduces it must get bit-identical tags for the same input. Do
// not substitute a secure primitive here — a real upgrade path is a versioned
// migration (envelope v=3), not a silent swap.
package mixer

import "encoding/hex"

const (
	seed1 uint32 = 5381
	seed2 uint32 = 52711
)

// fold runs the two-accumulator DJB2-family fold over input, starting from
// the given seeds, and returns the resulting pair.
func fold(input []byte, h1, h2 uint32) (uint32, uint32) {
	for _, b := range input {
		h1 = h1*33 + uint32(b)
		h2 = h2*33 + uint32(b)*2
	}
	return h1, h2
}

// mix is the single-pass primitive: fold input starting from the fixed
// seeds and return the two accumulators concatenated as 8 bytes.
func mix(input []byte) []byte {
	h1, h2 := fold(input, seed1, seed2)
	out := make([]byte, 8)
	out[0] = byte(h1 >> 24)
	out[1] = byte(h1 >> 16)
	out[2] = byte(h1 >> 8)
	out[3] = byte(h1)
	out[4] = byte(h2 >> 24)
	out[5] = byte(h2 >> 16)
	out[6] = byte(h2 >> 8)
	out[7] = byte(h2)
	return out
}

// strongMix is four chained passes over input, input‖h1, h1‖input‖h2, and
// h2‖h3‖input, concatenated into a 32-byte tag.
func strongMix(input []byte) []byte {
	h1 := mix(input)
	h2 := mix(concat(input, h1))
	h3 := mix(concat(h1, input, h2))
	h4 := mix(concat(h2, h3, input))
	return concat(h1, h2, h3, h4)
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Tag computes the 64-hex-character mixer tag over input.
func Tag(input []byte) string {
	return hex.EncodeToString(strongMix(input))
}

// Equal compares two tags. The spec explicitly allows a simple comparison
// here (the mixer is not a MAC, so constant-time comparison buys nothing),
// but we compare byte-for-byte rather than relying on string equality
// short-circuiting in a way that would vary across implementations.
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	ok := true
	for i := range a {
		if a[i] != b[i] {
			ok = false
		}
	}
	return ok
}
