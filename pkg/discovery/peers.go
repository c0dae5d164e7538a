package discovery

import (
	"sort"
	"sync"
	"time"

	"github.com/shelfos/shelfos/pkg/peripheral"
)

// Peer is one entry in the peer table: a node this manager has seen an
// ANNOUNCE from, with the peripherals it last advertised.
type Peer struct {
	NodeID      string
	Label       string
	Peripherals []peripheral.Descriptor
	LastSeen    time.Time
}

// peerTable is the mutex-guarded peer/remote-peripheral cache, structurally
// the same RWMutex-guarded-map-with-clone-on-read shape as
// registry.Registry and pairing's candidateTable, generalized here to also
// maintain a derived name → hosting-node-ID index.
type peerTable struct {
	mu    sync.RWMutex
	peers map[string]*Peer

	// locations maps a remote peripheral name to the node ID currently
	// hosting it. localNames is consulted before an entry is inserted so a
	// name that collides with a locally-attached peripheral is never
	// shadowed (local-first rule).
	locations  map[string]string
	localNames func() map[string]struct{}
}

func newPeerTable(localNames func() map[string]struct{}) *peerTable {
	return &peerTable{
		peers:      make(map[string]*Peer),
		locations:  make(map[string]string),
		localNames: localNames,
	}
}

func (t *peerTable) observe(nodeID, label string, peripherals []peripheral.Descriptor, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.peers[nodeID] = &Peer{
		NodeID:      nodeID,
		Label:       label,
		Peripherals: peripherals,
		LastSeen:    now,
	}

	local := t.localNames()
	for name, owner := range t.locations {
		if owner == nodeID {
			delete(t.locations, name)
		}
	}
	for _, p := range peripherals {
		if _, shadowed := local[p.Name]; shadowed {
			continue
		}
		t.locations[p.Name] = nodeID
	}
}

func (t *peerTable) list() []*Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Peer, 0, len(t.peers))
	for _, p := range t.peers {
		clone := *p
		clone.Peripherals = append([]peripheral.Descriptor(nil), p.Peripherals...)
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

func (t *peerTable) locate(peripheralName string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	nodeID, ok := t.locations[peripheralName]
	return nodeID, ok
}

func (t *peerTable) describe(peripheralName string) (*peripheral.Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	nodeID, ok := t.locations[peripheralName]
	if !ok {
		return nil, false
	}
	peer, ok := t.peers[nodeID]
	if !ok {
		return nil, false
	}
	for _, d := range peer.Peripherals {
		if d.Name == peripheralName {
			out := d
			return &out, true
		}
	}
	return nil, false
}

// sweep evicts every peer (and its remote peripherals) last seen before
// now.Add(-ttl), returning how many were evicted.
func (t *peerTable) sweep(now time.Time, ttl time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for nodeID, p := range t.peers {
		if now.Sub(p.LastSeen) > ttl {
			delete(t.peers, nodeID)
			for name, owner := range t.locations {
				if owner == nodeID {
					delete(t.locations, name)
				}
			}
			evicted++
		}
	}
	return evicted
}
