// Package discovery implements periodic peripheral announcement and
// on-demand discovery over the swarm radio: a background loop broadcasts
// ANNOUNCE, listens for ANNOUNCE and DISCOVER from peers, and maintains a
// TTL-evicted peer/remote-peripheral cache the RPC client and proxy layer
// resolve names against.
//
// A single Manager type does both the announcing and the resolving; there
// is no separate Announcer or Resolver type. It is grounded on the teacher's
// discovery.Manager (which composes an Advertiser and a Resolver), reworked
// to operate over envelope ANNOUNCE/DISCOVER frames carried on the radio
// primitive instead of mDNS.
package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/shelfos/shelfos/pkg/envelope"
	"github.com/shelfos/shelfos/pkg/peripheral"
	"github.com/shelfos/shelfos/pkg/radio"
)

// Channel is the radio channel ANNOUNCE and DISCOVER travel on. Shared with
// pkg/rpc's Channel — the spec allows every non-pairing kind to multiplex
// one channel, discriminated by the payload's "kind" field.
const Channel = "shelfos"

// DefaultAnnounceInterval is how often the background loop broadcasts
// ANNOUNCE.
const DefaultAnnounceInterval = 5 * time.Second

// DefaultAnnounceTTL is how long a peer record survives without a fresh
// ANNOUNCE before housekeeping evicts it. Must be at least 6x
// AnnounceInterval so a couple of missed broadcasts don't evict a live
// peer.
const DefaultAnnounceTTL = 30 * time.Second

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	NodeID string
	Label  string

	Radio      radio.Radio
	Directory  *peripheral.Directory
	EnvStore   *envelope.Store
	AuthSecret envelope.SecretLookup

	// AnnounceInterval defaults to DefaultAnnounceInterval if zero.
	AnnounceInterval time.Duration
	// AnnounceTTL defaults to DefaultAnnounceTTL if zero.
	AnnounceTTL time.Duration

	// OnAnnounce, if set, is called after every successful ANNOUNCE
	// broadcast (the initial one and every periodic one) — the scheduler's
	// telemetry hook.
	OnAnnounce func()

	// OnSweep, if set, is called after a housekeeping pass that evicted at
	// least one peer, with the number evicted — the scheduler's telemetry
	// hook.
	OnSweep func(evicted int)

	LoggerFactory logging.LoggerFactory
}

// Manager coordinates periodic ANNOUNCE and on-demand DISCOVER, and
// maintains the peer/remote-peripheral cache the rest of the fabric reads.
type Manager struct {
	config ManagerConfig
	peers  *peerTable

	mu        sync.RWMutex
	closed    bool
	started   bool
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	log       logging.LeveledLogger
}

// NewManager creates a Manager. Call Start to begin the background loops.
// Rejects a config where AnnounceTTL is less than 6x AnnounceInterval, the
// way fabric.Table's NewTable validates its TableConfig — too tight a
// ratio would evict a still-live peer after a couple of missed broadcasts.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.AnnounceInterval == 0 {
		config.AnnounceInterval = DefaultAnnounceInterval
	}
	if config.AnnounceTTL == 0 {
		config.AnnounceTTL = DefaultAnnounceTTL
	}
	if config.AnnounceTTL < 6*config.AnnounceInterval {
		return nil, ErrInvalidConfig
	}

	m := &Manager{
		config:  config,
		closeCh: make(chan struct{}),
	}
	m.peers = newPeerTable(m.localNameSet)
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("discovery")
	}
	return m, nil
}

func (m *Manager) localNameSet() map[string]struct{} {
	names := m.config.Directory.ListNames()
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// Start begins the announce, receive, and housekeeping loops.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(3)
	go m.announceLoop(ctx)
	go m.readLoop(ctx)
	go m.housekeepLoop(ctx)
	return nil
}

// Close stops all background loops. A second call returns ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.mu.Unlock()

	m.closeOnce.Do(func() { close(m.closeCh) })
	m.wg.Wait()
	return nil
}

// Peers returns a point-in-time snapshot of every live peer record, sorted
// by node ID.
func (m *Manager) Peers() []*Peer {
	return m.peers.list()
}

// Locate resolves a remote peripheral name to its hosting node ID — the
// rpc.Locator hook.
func (m *Manager) Locate(peripheralName string) (string, bool) {
	return m.peers.locate(peripheralName)
}

// Resolve returns the full descriptor for a remote peripheral — the
// proxy.Resolver hook.
func (m *Manager) Resolve(peripheralName string) (*peripheral.Descriptor, bool) {
	return m.peers.describe(peripheralName)
}

// DiscoverOnce broadcasts DISCOVER and returns the peer snapshot after
// waiting up to timeout for replies (delivered as ordinary ANNOUNCE frames
// the readLoop is already processing).
func (m *Manager) DiscoverOnce(ctx context.Context, timeout time.Duration) ([]*Peer, error) {
	if err := m.announce(); err != nil {
		return nil, err
	}
	payload := encodeDiscover(m.config.NodeID)
	env, err := envelope.Wrap(payload, m.config.NodeID, m.selfSecret())
	if err != nil {
		return nil, err
	}
	wire, err := envelope.Marshal(env)
	if err != nil {
		return nil, err
	}
	if err := m.config.Radio.Broadcast(Channel, wire); err != nil {
		return nil, err
	}

	select {
	case <-time.After(timeout):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return m.Peers(), nil
}

func (m *Manager) selfSecret() []byte {
	secret, _ := m.config.AuthSecret(m.config.NodeID)
	return secret
}

func (m *Manager) announceLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.AnnounceInterval)
	defer ticker.Stop()

	_ = m.announce()
	for {
		select {
		case <-m.closeCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.announce(); err != nil && m.log != nil {
				m.log.Warnf("discovery: announce failed: %v", err)
			}
		}
	}
}

func (m *Manager) announce() error {
	descs := m.config.Directory.DescribeAll()
	list := make([]peripheralTXT, 0, len(descs))
	for _, d := range descs {
		list = append(list, peripheralTXT{Name: d.Name, Type: d.Type, Methods: d.Methods})
	}
	payload := encodeAnnounce(m.config.NodeID, m.config.Label, list)

	secret, ok := m.config.AuthSecret(m.config.NodeID)
	if !ok {
		return ErrClosed
	}
	env, err := envelope.Wrap(payload, m.config.NodeID, secret)
	if err != nil {
		return err
	}
	wire, err := envelope.Marshal(env)
	if err != nil {
		return err
	}
	if err := m.config.Radio.Broadcast(Channel, wire); err != nil {
		return err
	}
	if m.config.OnAnnounce != nil {
		m.config.OnAnnounce()
	}
	return nil
}

func (m *Manager) readLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-m.closeCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		f, err := m.config.Radio.Receive(ctx)
		if err != nil {
			return
		}
		if f.Channel != Channel || f.To != nil {
			continue // ANNOUNCE/DISCOVER are both broadcast, never unicast
		}

		env, err := envelope.Unmarshal(f.Data)
		if err != nil {
			continue
		}
		payload, senderID, err := m.config.EnvStore.Unwrap(env, m.config.AuthSecret)
		if err != nil {
			if m.log != nil {
				m.log.Debugf("discovery: dropped frame: %v", err)
			}
			continue
		}
		if senderID == m.config.NodeID {
			continue
		}

		if ann, ok := decodeAnnounce(payload); ok {
			m.handleAnnounce(ann)
			continue
		}
		if _, ok := decodeDiscover(payload); ok {
			if err := m.announce(); err != nil && m.log != nil {
				m.log.Warnf("discovery: reply-announce failed: %v", err)
			}
		}
	}
}

func (m *Manager) handleAnnounce(ann announcePayload) {
	descs := make([]peripheral.Descriptor, 0, len(ann.Peripherals))
	for _, p := range ann.Peripherals {
		descs = append(descs, peripheral.Descriptor{Name: p.Name, Type: p.Type, Methods: p.Methods})
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	m.peers.observe(ann.NodeID, ann.Label, descs, time.Now())
}

func (m *Manager) housekeepLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.closeCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := m.peers.sweep(time.Now(), m.config.AnnounceTTL)
			if evicted > 0 && m.config.OnSweep != nil {
				m.config.OnSweep(evicted)
			}
		}
	}
}
