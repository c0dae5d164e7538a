// Package envelope wraps and unwraps payloads with sender identity, a
// timestamp, a replay-resistant nonce, and a mixer tag. It is the fabric's
// sole authentication path: everything that crosses the radio passes through
// Wrap on the way out and Unwrap on the way in.
package envelope

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/pion/logging"
	"github.com/shelfos/shelfos/pkg/codec"
	"github.com/shelfos/shelfos/pkg/mixer"
)

// Version is the only supported envelope wire version. A secure upgrade
// would be a new version (v=3); this package implements only the
// shared-secret path and has no public-key variant.
const Version = 2

const (
	// MaxFutureSkew is the maximum amount a timestamp may be ahead of the
	// receiver's clock before it is rejected as FromFuture.
	MaxFutureSkew = 5 * time.Second

	// MaxPastAge is the maximum amount a timestamp may be behind the
	// receiver's clock before it is rejected as Expired.
	MaxPastAge = 60 * time.Second
)

// Envelope is the wire form: a versioned, authenticated wrapper around a
// serialized payload.
type Envelope struct {
	V         int    `yaml:"v"`
	Payload   []byte `yaml:"p"`
	SenderID  string `yaml:"f"`
	Timestamp int64  `yaml:"t"`
	Nonce     string `yaml:"n"`
	Tag       string `yaml:"s"`

	// RecipientID, if non-empty, marks this as a recipient-bound envelope:
	// the tag is computed over p‖t‖n‖r‖secret instead of p‖f‖t‖n‖secret.
	RecipientID string `yaml:"r,omitempty"`
}

// SecretLookup resolves a sender ID to its shared secret. It returns
// (nil, false) if the sender is unknown or not currently authorized.
type SecretLookup func(senderID string) (secret []byte, ok bool)

// Store holds the anti-replay nonce cache shared across every Unwrap call
// for a node. It is the "nonce cache" singleton the spec describes — owned
// by the scheduler and passed by reference into this package, never
// recreated as an ambient global.
type Store struct {
	nonces *nonceStore
	log    logging.LeveledLogger
}

// NewStore creates a fresh, empty nonce store. loggerFactory may be nil to
// disable logging.
func NewStore(loggerFactory logging.LoggerFactory) *Store {
	s := &Store{nonces: newNonceStore()}
	if loggerFactory != nil {
		s.log = loggerFactory.NewLogger("envelope")
	}
	return s
}

// NonceCount reports how many nonces are currently tracked (for telemetry
// and tests).
func (s *Store) NonceCount() int {
	return s.nonces.size()
}

// Wrap serializes payload, samples a fresh nonce, stamps the current time,
// and computes the tag over payload‖senderID‖timestampText‖nonce‖secret.
func Wrap(payload map[string]any, senderID string, secret []byte) (*Envelope, error) {
	return wrapAt(payload, senderID, "", secret, time.Now())
}

// WrapTo is the recipient-bound variant: the tag binds the recipient ID
// instead of the sender ID (see computeTag), so a PAIR_DELIVER (say) cannot
// be replayed against a different worker.
func WrapTo(payload map[string]any, senderID, recipientID string, secret []byte) (*Envelope, error) {
	return wrapAt(payload, senderID, recipientID, secret, time.Now())
}

func wrapAt(payload map[string]any, senderID, recipientID string, secret []byte, now time.Time) (*Envelope, error) {
	p, err := codec.Encode(payload)
	if err != nil {
		return nil, err
	}

	nonce, err := sampleNonce(senderID, now)
	if err != nil {
		return nil, err
	}

	ts := now.UnixMilli()
	env := &Envelope{
		V:           Version,
		Payload:     p,
		SenderID:    senderID,
		Timestamp:   ts,
		Nonce:       nonce,
		RecipientID: recipientID,
	}
	env.Tag = computeTag(env, secret)
	return env, nil
}

// sampleNonce produces a nonce of the form nodeID_epochMs_randHex.
func sampleNonce(senderID string, now time.Time) (string, error) {
	var randBytes [8]byte
	if _, err := rand.Read(randBytes[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%d_%s", senderID, now.UnixMilli(), hex.EncodeToString(randBytes[:])), nil
}

// computeTag reproduces the mixer input exactly as the spec requires:
// payload‖senderID‖timestampText‖nonce‖secret, or, for the recipient-bound
// variant, payload‖timestampText‖nonce‖recipientID‖secret (no sender ID).
func computeTag(env *Envelope, secret []byte) string {
	ts := strconv.FormatInt(env.Timestamp, 10)
	var input []byte
	input = append(input, env.Payload...)
	if env.RecipientID != "" {
		input = append(input, []byte(ts)...)
		input = append(input, []byte(env.Nonce)...)
		input = append(input, []byte(env.RecipientID)...)
	} else {
		input = append(input, []byte(env.SenderID)...)
		input = append(input, []byte(ts)...)
		input = append(input, []byte(env.Nonce)...)
	}
	input = append(input, secret...)
	return mixer.Tag(input)
}

// Unwrap validates and decodes env, recording its nonce in store so a later
// replay of the same envelope is rejected.
func (s *Store) Unwrap(env *Envelope, lookup SecretLookup) (payload map[string]any, senderID string, err error) {
	return s.unwrapAt(env, lookup, time.Now())
}

func (s *Store) unwrapAt(env *Envelope, lookup SecretLookup, now time.Time) (map[string]any, string, error) {
	if env == nil || env.V != Version || env.SenderID == "" || env.Nonce == "" || env.Tag == "" {
		s.logReject("malformed envelope")
		return nil, "", ErrMalformed
	}

	secret, ok := lookup(env.SenderID)
	if !ok {
		s.logReject("unknown sender " + env.SenderID)
		return nil, "", ErrUnknownSender
	}

	expected := computeTag(env, secret)
	if !mixer.Equal(expected, env.Tag) {
		s.logReject("bad tag from " + env.SenderID)
		return nil, "", ErrBadTag
	}

	ts := time.UnixMilli(env.Timestamp)
	switch {
	case now.Sub(ts) > MaxPastAge:
		s.logReject("expired envelope from " + env.SenderID)
		return nil, "", ErrExpired
	case ts.Sub(now) > MaxFutureSkew:
		s.logReject("future-dated envelope from " + env.SenderID)
		return nil, "", ErrFromFuture
	}

	if !s.nonces.checkAndRecord(env.SenderID, env.Nonce, now) {
		s.logReject("replay from " + env.SenderID)
		return nil, "", ErrReplay
	}

	decoded, err := codec.Decode(env.Payload)
	if err != nil {
		s.logReject("malformed payload from " + env.SenderID)
		return nil, "", ErrMalformed
	}
	m, ok := decoded.(map[string]any)
	if !ok {
		return nil, "", ErrMalformed
	}

	return m, env.SenderID, nil
}

func (s *Store) logReject(msg string) {
	if s.log != nil {
		s.log.Debugf("envelope: rejected: %s", msg)
	}
}

// Marshal encodes env to the bytes that go out over the radio, using the
// same canonical codec every other wire payload in the fabric uses rather
// than a second ad hoc format.
func Marshal(env *Envelope) ([]byte, error) {
	m := map[string]any{
		"v": int64(env.V),
		"p": string(env.Payload),
		"f": env.SenderID,
		"t": env.Timestamp,
		"n": env.Nonce,
		"s": env.Tag,
	}
	if env.RecipientID != "" {
		m["r"] = env.RecipientID
	}
	return codec.Encode(m)
}

// Unmarshal reverses Marshal. Returns ErrMalformed if data doesn't decode to
// the expected shape.
func Unmarshal(data []byte) (*Envelope, error) {
	decoded, err := codec.Decode(data)
	if err != nil {
		return nil, ErrMalformed
	}
	m, ok := decoded.(map[string]any)
	if !ok {
		return nil, ErrMalformed
	}

	v, _ := m["v"].(int64)
	p, _ := m["p"].(string)
	f, _ := m["f"].(string)
	ts, _ := m["t"].(int64)
	n, _ := m["n"].(string)
	tag, _ := m["s"].(string)
	r, _ := m["r"].(string)

	return &Envelope{
		V:           int(v),
		Payload:     []byte(p),
		SenderID:    f,
		Timestamp:   ts,
		Nonce:       n,
		Tag:         tag,
		RecipientID: r,
	}, nil
}
