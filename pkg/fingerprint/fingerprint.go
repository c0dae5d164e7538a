// Package fingerprint derives the short, human-readable grouping shown to an
// operator to confirm two nodes share the same swarm secret, without ever
// displaying the secret itself.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// fingerprintInfo is the fixed HKDF info string, analogous to a fabric's
// "CompressedFabric" info string: a fixed label that binds the derivation to
// this one purpose so it can never collide with another derivation over the
// same secret.
var fingerprintInfo = []byte("ShelfOSFingerprint")

// rawSize is the number of derived bytes before hex-grouping; 6 bytes yields
// a 12 hex-character fingerprint in three 4-char groups.
const rawSize = 6

// ErrEmptySecret is returned when Derive is called with no secret material.
var ErrEmptySecret = errors.New("fingerprint: empty secret")

// Derive computes the swarm fingerprint for secret: an HKDF-SHA256 expansion
// of secret with a fixed info string, truncated to 6 bytes, hex-encoded and
// grouped into three dash-separated 4-character lowercase groups (e.g.
// "ab12-cd34-ef56").
//
// This is purely a display aid — it carries no security role. Unlike the
// mixer, which must reproduce a fixed legacy algorithm bit-for-bit, the
// fingerprint has no compatibility requirement beyond being stable for a
// given secret, so it is free to use a real KDF.
func Derive(secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}

	r := hkdf.New(sha256.New, secret, nil, fingerprintInfo)
	raw := make([]byte, rawSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}

	encoded := hex.EncodeToString(raw)
	return encoded[0:4] + "-" + encoded[4:8] + "-" + encoded[8:12], nil
}
