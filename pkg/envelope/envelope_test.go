package envelope

import (
	"testing"
	"time"
)

func lookupFor(secrets map[string][]byte) SecretLookup {
	return func(senderID string) ([]byte, bool) {
		s, ok := secrets[senderID]
		return s, ok
	}
}

// S1 — Wrap/unwrap round trip.
func TestWrapUnwrapRoundTrip(t *testing.T) {
	secret := []byte(repeat("s", 32))
	payload := map[string]any{"type": "PING", "x": int64(1)}

	env, err := Wrap(payload, "A", secret)
	if err != nil {
		t.Fatal(err)
	}
	if env.V != 2 {
		t.Fatalf("expected v=2, got %d", env.V)
	}
	if env.SenderID != "A" {
		t.Fatalf("expected sender A, got %q", env.SenderID)
	}
	if len(env.Nonce) == 0 {
		t.Fatal("expected non-empty nonce")
	}
	if len(env.Tag) != 64 {
		t.Fatalf("expected 64-char tag, got %d", len(env.Tag))
	}

	store := NewStore(nil)
	got, sender, err := store.Unwrap(env, lookupFor(map[string][]byte{"A": secret}))
	if err != nil {
		t.Fatalf("unwrap failed: %v", err)
	}
	if sender != "A" {
		t.Fatalf("expected sender A, got %q", sender)
	}
	if got["type"] != "PING" || got["x"] != int64(1) {
		t.Fatalf("payload mismatch: %v", got)
	}
}

// S2 — Replay.
func TestReplayRejected(t *testing.T) {
	secret := []byte(repeat("s", 32))
	env, err := Wrap(map[string]any{"type": "PING"}, "A", secret)
	if err != nil {
		t.Fatal(err)
	}

	store := NewStore(nil)
	lookup := lookupFor(map[string][]byte{"A": secret})

	if _, _, err := store.Unwrap(env, lookup); err != nil {
		t.Fatalf("first unwrap should succeed: %v", err)
	}
	if _, _, err := store.Unwrap(env, lookup); err != ErrReplay {
		t.Fatalf("expected ErrReplay on second unwrap, got %v", err)
	}
}

func TestTamperRejection(t *testing.T) {
	secret := []byte(repeat("s", 32))

	mutate := func() *Envelope {
		env, _ := Wrap(map[string]any{"type": "PING"}, "A", secret)
		return env
	}

	tests := map[string]func(*Envelope){
		"payload":   func(e *Envelope) { e.Payload = append(append([]byte{}, e.Payload...), 0xFF) },
		"sender":    func(e *Envelope) { e.SenderID = e.SenderID + "x" },
		"timestamp": func(e *Envelope) { e.Timestamp++ },
		"nonce":     func(e *Envelope) { e.Nonce = e.Nonce + "x" },
		"tag":       func(e *Envelope) { e.Tag = "0" + e.Tag[1:] },
	}

	for name, mutation := range tests {
		t.Run(name, func(t *testing.T) {
			env := mutate()
			mutation(env)
			store := NewStore(nil)
			_, _, err := store.Unwrap(env, lookupFor(map[string][]byte{"A": secret}))
			if err == nil {
				t.Fatalf("mutation of %s should have been rejected", name)
			}
		})
	}
}

// S... Freshness.
func TestFreshnessWindow(t *testing.T) {
	secret := []byte(repeat("s", 32))
	lookup := lookupFor(map[string][]byte{"A": secret})

	now := time.Now()

	expired, err := wrapAt(map[string]any{"type": "PING"}, "A", "", secret, now.Add(-61*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(nil)
	if _, _, err := store.unwrapAt(expired, lookup, now); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	future, err := wrapAt(map[string]any{"type": "PING"}, "A", "", secret, now.Add(6*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	store2 := NewStore(nil)
	if _, _, err := store2.unwrapAt(future, lookup, now); err != ErrFromFuture {
		t.Fatalf("expected ErrFromFuture, got %v", err)
	}
}

func TestUnknownSender(t *testing.T) {
	secret := []byte(repeat("s", 32))
	env, _ := Wrap(map[string]any{"type": "PING"}, "A", secret)

	store := NewStore(nil)
	_, _, err := store.Unwrap(env, lookupFor(map[string][]byte{}))
	if err != ErrUnknownSender {
		t.Fatalf("expected ErrUnknownSender, got %v", err)
	}
}

func TestRecipientBoundVariant(t *testing.T) {
	secret := []byte(repeat("s", 32))
	env, err := WrapTo(map[string]any{"type": "PAIR_DELIVER"}, "queen", "worker-1", secret)
	if err != nil {
		t.Fatal(err)
	}
	if env.RecipientID != "worker-1" {
		t.Fatalf("expected recipient worker-1, got %q", env.RecipientID)
	}

	store := NewStore(nil)
	if _, _, err := store.Unwrap(env, lookupFor(map[string][]byte{"queen": secret})); err != nil {
		t.Fatalf("unwrap of recipient-bound envelope failed: %v", err)
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	secret := []byte(repeat("s", 32))
	env, err := WrapTo(map[string]any{"type": "PAIR_DELIVER", "n": int64(7)}, "queen", "worker-1", secret)
	if err != nil {
		t.Fatal(err)
	}

	wire, err := Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Unmarshal(wire)
	if err != nil {
		t.Fatal(err)
	}

	if got.V != env.V || got.SenderID != env.SenderID || got.RecipientID != env.RecipientID ||
		got.Timestamp != env.Timestamp || got.Nonce != env.Nonce || got.Tag != env.Tag ||
		string(got.Payload) != string(env.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, env)
	}

	store := NewStore(nil)
	payload, sender, err := store.Unwrap(got, lookupFor(map[string][]byte{"queen": secret}))
	if err != nil {
		t.Fatalf("unwrap of round-tripped envelope failed: %v", err)
	}
	if sender != "queen" || payload["type"] != "PAIR_DELIVER" {
		t.Fatalf("unexpected unwrapped payload: %v %v", sender, payload)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	if _, err := Unmarshal([]byte{0xFF, 0xFF}); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
