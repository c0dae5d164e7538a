package envelope

import (
	"sync"
	"time"
)

// NonceRetention is how long a recorded nonce is kept after receipt before
// it is evicted. Spec: 120 s.
const NonceRetention = 120 * time.Second

// nonceKey scopes a nonce to the sender that presented it: two senders are
// free to reuse the same nonce string without colliding.
type nonceKey struct {
	sender string
	nonce  string
}

// nonceStore is the anti-replay cache. It is only ever touched from the
// Envelope layer, and is internally synchronized because the scheduler
// shares one Store across several subsystem goroutines.
type nonceStore struct {
	mu   sync.Mutex
	seen map[nonceKey]time.Time
}

func newNonceStore() *nonceStore {
	return &nonceStore{seen: make(map[nonceKey]time.Time)}
}

// checkAndRecord returns true (accepted) if the (sender, nonce) pair has not
// been seen within the retention window, records it, and sweeps expired
// entries. Returns false if it is a replay.
func (s *nonceStore) checkAndRecord(sender, nonce string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(now)

	key := nonceKey{sender: sender, nonce: nonce}
	if _, exists := s.seen[key]; exists {
		return false
	}
	s.seen[key] = now
	return true
}

// sweepLocked evicts nonces older than NonceRetention. Caller must hold mu.
func (s *nonceStore) sweepLocked(now time.Time) {
	for k, seenAt := range s.seen {
		if now.Sub(seenAt) > NonceRetention {
			delete(s.seen, k)
		}
	}
}

// size reports how many nonces are currently tracked, for tests and
// telemetry.
func (s *nonceStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
