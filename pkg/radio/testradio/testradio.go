// Package testradio provides a deterministic, in-memory radio.Radio for
// tests: a virtual network of pairwise pion/transport/v3/test Bridges, one
// per pair of joined nodes, with injectable packet loss, delay, and
// duplication so pairing/discovery/RPC retry logic can be exercised without
// real network I/O or flaky timing.
package testradio

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"

	"github.com/shelfos/shelfos/pkg/codec"
	"github.com/shelfos/shelfos/pkg/radio"
)

// Condition configures packet loss simulation applied to every link a
// Network creates. Mirrors the shape the source transport package uses
// for its virtual-bridge tests.
type Condition struct {
	// DropRate is the probability (0.0-1.0) of silently dropping a write.
	DropRate float64

	// DelayMin/DelayMax bound a uniformly distributed artificial delay
	// applied before each write is handed to the bridge.
	DelayMin time.Duration
	DelayMax time.Duration

	// DuplicateRate is the probability (0.0-1.0) of writing a second,
	// identical copy of a frame.
	DuplicateRate float64
}

const bufSize = 65536

// Network is a virtual broadcast domain: radios that Join it can reach
// every other joined radio, connected pairwise under the hood.
type Network struct {
	mu        sync.Mutex
	condition Condition
	radios    map[string]*Radio
}

// NewNetwork creates an empty virtual network applying condition to every
// link it creates.
func NewNetwork(condition Condition) *Network {
	return &Network{
		condition: condition,
		radios:    make(map[string]*Radio),
	}
}

// SetCondition updates the condition applied to links created from this
// point forward. Existing links keep the condition they were created with.
func (n *Network) SetCondition(c Condition) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.condition = c
}

// Join creates a radio endpoint for nodeID, wired pairwise to every radio
// already on the network.
func (n *Network) Join(nodeID string) (*Radio, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	r := &Radio{
		nodeID:  nodeID,
		network: n,
		peers:   make(map[string]*linkEnd),
		inbox:   make(chan radio.Frame, 64),
		closed:  make(chan struct{}),
	}

	for peerID, peer := range n.radios {
		l := newLink(n.condition)

		mine := &linkEnd{link: l, conn: l.bridge.GetConn0()}
		theirs := &linkEnd{link: l, conn: l.bridge.GetConn1()}

		r.peers[peerID] = mine
		peer.addPeer(nodeID, theirs)

		r.wg.Add(1)
		go r.readLoop(mine)
		peer.wg.Add(1)
		go peer.readLoop(theirs)
	}

	n.radios[nodeID] = r
	return r, nil
}

// link is one pairwise virtual connection, backed by a pion test.Bridge
// with an auto-ticking background goroutine delivering queued packets.
type link struct {
	bridge *test.Bridge

	mu        sync.RWMutex
	condition Condition
	rng       *rand.Rand

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newLink(condition Condition) *link {
	l := &link{
		bridge:    test.NewBridge(),
		condition: condition,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh:    make(chan struct{}),
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-l.stopCh:
				return
			case <-ticker.C:
				l.bridge.Tick()
			}
		}
	}()
	return l
}

func (l *link) close() {
	select {
	case <-l.stopCh:
		return
	default:
		close(l.stopCh)
	}
	l.wg.Wait()
	l.bridge.GetConn0().Close()
	l.bridge.GetConn1().Close()
}

// writeWithCondition applies drop/delay/duplicate before handing data to
// conn, the way the source Pipe applies NetworkCondition in WriteTo.
func (l *link) writeWithCondition(conn net.Conn, data []byte) error {
	l.mu.RLock()
	cond := l.condition
	rng := l.rng
	l.mu.RUnlock()

	if cond.DropRate > 0 && rng.Float64() < cond.DropRate {
		return nil
	}

	if cond.DelayMax > 0 {
		delay := cond.DelayMin
		if cond.DelayMax > cond.DelayMin {
			delay += time.Duration(rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	if cond.DuplicateRate > 0 && rng.Float64() < cond.DuplicateRate {
		if _, err := conn.Write(data); err != nil {
			return err
		}
	}

	_, err := conn.Write(data)
	return err
}

// linkEnd is one radio's view of a link: the link itself plus the conn
// endpoint that radio owns.
type linkEnd struct {
	link *link
	conn net.Conn
}

// Radio is a radio.Radio endpoint on a Network.
type Radio struct {
	nodeID  string
	network *Network

	mu    sync.RWMutex
	peers map[string]*linkEnd

	inbox  chan radio.Frame
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func (r *Radio) addPeer(peerID string, end *linkEnd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[peerID] = end
}

func encodeFrame(channel, from, to string, data []byte) ([]byte, error) {
	wf := map[string]any{
		"channel": channel,
		"from":    from,
		"data":    string(data),
	}
	if to != "" {
		wf["to"] = to
	}
	return codec.Encode(wf)
}

// Broadcast writes the frame onto every peer link.
func (r *Radio) Broadcast(channel string, data []byte) error {
	select {
	case <-r.closed:
		return radio.ErrClosed
	default:
	}

	payload, err := encodeFrame(channel, r.nodeID, "", data)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, end := range r.peers {
		if werr := end.link.writeWithCondition(end.conn, payload); werr != nil {
			err = werr
		}
	}
	return err
}

// Unicast writes the frame onto the single link to toNodeID.
func (r *Radio) Unicast(channel, toNodeID string, data []byte) error {
	select {
	case <-r.closed:
		return radio.ErrClosed
	default:
	}

	r.mu.RLock()
	end, ok := r.peers[toNodeID]
	r.mu.RUnlock()
	if !ok {
		return radio.ErrClosed
	}

	payload, err := encodeFrame(channel, r.nodeID, toNodeID, data)
	if err != nil {
		return err
	}
	return end.link.writeWithCondition(end.conn, payload)
}

// Receive blocks until a frame addressed to this node arrives or ctx ends.
func (r *Radio) Receive(ctx context.Context) (radio.Frame, error) {
	select {
	case f, ok := <-r.inbox:
		if !ok {
			return radio.Frame{}, radio.ErrClosed
		}
		return f, nil
	case <-ctx.Done():
		return radio.Frame{}, ctx.Err()
	case <-r.closed:
		return radio.Frame{}, radio.ErrClosed
	}
}

// Close tears down every link this radio participates in.
func (r *Radio) Close() error {
	r.once.Do(func() {
		close(r.closed)
		r.mu.RLock()
		ends := make([]*linkEnd, 0, len(r.peers))
		for _, e := range r.peers {
			ends = append(ends, e)
		}
		r.mu.RUnlock()
		for _, e := range ends {
			e.link.close()
		}
		r.wg.Wait()
		close(r.inbox)
	})
	return nil
}

func (r *Radio) readLoop(end *linkEnd) {
	defer r.wg.Done()

	buf := make([]byte, bufSize)
	for {
		n, err := end.conn.Read(buf)
		if err != nil {
			return
		}

		decoded, err := codec.Decode(buf[:n])
		if err != nil {
			continue
		}
		fields, ok := decoded.(map[string]any)
		if !ok {
			continue
		}

		from, _ := fields["from"].(string)
		channel, _ := fields["channel"].(string)
		data, _ := fields["data"].(string)

		var to *string
		if toVal, has := fields["to"]; has {
			if toStr, ok := toVal.(string); ok {
				if toStr != r.nodeID {
					continue
				}
				to = &toStr
			}
		}

		frame := radio.Frame{
			Channel: channel,
			From:    from,
			To:      to,
			Data:    []byte(data),
		}

		select {
		case r.inbox <- frame:
		case <-r.closed:
			return
		}
	}
}

var _ radio.Radio = (*Radio)(nil)
