package pairing

import (
	"crypto/rand"
	"crypto/sha256"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// codeAlphabet excludes visually ambiguous characters (0/O, 1/I) so an
// operator reading the code off a small screen doesn't mistype it.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeGroupLen = 4

// stretchSalt is fixed rather than random: the code is a single-use,
// short-lived ephemeral secret already bound to one pairing session by the
// envelope's nonce and freshness window, so a per-session salt buys no
// additional protection and would have to travel out-of-band too.
var stretchSalt = []byte("shelfos-pairing-code-stretch")

const (
	stretchIterations = 10000
	stretchKeyLen     = 32
)

// GenerateCode produces a human-typeable pairing code of the form
// "ABCD-EFGH".
func GenerateCode() (string, error) {
	raw := make([]byte, codeGroupLen*2)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	var b strings.Builder
	for i, by := range raw {
		if i == codeGroupLen {
			b.WriteByte('-')
		}
		b.WriteByte(codeAlphabet[int(by)%len(codeAlphabet)])
	}
	return b.String(), nil
}

// stretchCode derives envelope-grade key material from a short human-typed
// code via PBKDF2-HMAC-SHA256, the way pkg/crypto/kdf.go's PBKDF2SHA256
// stretches a passcode before it is used as session key material.
func stretchCode(code string) []byte {
	return pbkdf2.Key([]byte(code), stretchSalt, stretchIterations, stretchKeyLen, sha256.New)
}
