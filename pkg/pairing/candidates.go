package pairing

import (
	"sync"
	"time"
)

// CandidateTTL is how long a candidate survives without a refreshing
// PAIR_READY before LISTENING evicts it.
const CandidateTTL = 15 * time.Second

// Candidate is a worker the queen has heard PAIR_READY from while LISTENING.
type Candidate struct {
	NodeID   string
	Label    string
	Code     string
	LastSeen time.Time
}

// candidateTable is a mutex-guarded, TTL-swept map of in-flight candidates,
// the same shape as fabric.Table's mutex-map-with-sweep.
type candidateTable struct {
	mu         sync.RWMutex
	candidates map[string]*Candidate
}

func newCandidateTable() *candidateTable {
	return &candidateTable{candidates: make(map[string]*Candidate)}
}

// observe records or refreshes a candidate; a duplicate PAIR_READY from the
// same worker refreshes its entry rather than duplicating it.
func (t *candidateTable) observe(nodeID, label, code string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.candidates[nodeID] = &Candidate{NodeID: nodeID, Label: label, Code: code, LastSeen: now}
}

// get returns a clone of the candidate, or (nil, false) if unknown.
func (t *candidateTable) get(nodeID string) (*Candidate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.candidates[nodeID]
	if !ok {
		return nil, false
	}
	clone := *c
	return &clone, true
}

// list returns a point-in-time snapshot of every candidate in the table. It
// does not sweep; expired candidates are removed only by sweep.
func (t *candidateTable) list() []*Candidate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Candidate, 0, len(t.candidates))
	for _, c := range t.candidates {
		clone := *c
		out = append(out, &clone)
	}
	return out
}

// sweep evicts every candidate older than CandidateTTL as of now.
func (t *candidateTable) sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, c := range t.candidates {
		if now.Sub(c.LastSeen) > CandidateTTL {
			delete(t.candidates, id)
		}
	}
}
