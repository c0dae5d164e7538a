// Package scheduler wires every swarm subsystem — envelope authentication,
// the Trust Registry, the Queen Authority, pairing, the peripheral
// directory, discovery, RPC, and the proxy facade — into one running node.
//
// The lifecycle (config validation and defaulting → ordered Start of
// sub-managers → reverse-order Stop → mu-guarded NodeState with an
// OnStateChanged callback) is grounded directly on matter.Node.Start/Stop,
// matter.NodeState, and matter.NodeConfig. The single physical radio is
// drained by exactly one goroutine (pumpRadio) and fanned out to each
// subsystem's already-tested background loop over a private queue — the
// "small set of long-lived tasks converging on a single serialized mutator
// via a message queue" alternative the spec names to a monolithic select
// loop, generalized from exchange.Manager's dispatch-by-protocol-ID
// demultiplexing.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/shelfos/shelfos/pkg/discovery"
	"github.com/shelfos/shelfos/pkg/envelope"
	"github.com/shelfos/shelfos/pkg/pairing"
	"github.com/shelfos/shelfos/pkg/peripheral"
	"github.com/shelfos/shelfos/pkg/proxy"
	"github.com/shelfos/shelfos/pkg/rpc"
)

// Node is one running swarm member: a queen or a worker, already enrolled,
// serving RPC, announcing its peripherals, and discovering everyone else's.
type Node struct {
	config Config

	mu    sync.RWMutex
	state NodeState

	envStore *envelope.Store
	bus      *channelBus
	closeCh  chan struct{}
	closeOnce sync.Once
	busWg    sync.WaitGroup

	host      *rpc.Host
	client    *rpc.Client
	discovery *discovery.Manager
	listener  *pairing.Listener

	proxyMu sync.Mutex
	proxies map[string]*proxy.Proxy

	telemetry *Telemetry
	log       logging.LeveledLogger
}

// NewNode validates and defaults config, then returns a Node in state
// Initialized. Call Start to begin serving.
func NewNode(cfg Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	n := &Node{
		config:    cfg,
		state:     StateInitialized,
		envStore:  envelope.NewStore(cfg.LoggerFactory),
		bus:       newChannelBus(),
		closeCh:   make(chan struct{}),
		proxies:   make(map[string]*proxy.Proxy),
		telemetry: &Telemetry{},
	}
	if cfg.LoggerFactory != nil {
		n.log = cfg.LoggerFactory.NewLogger("scheduler")
	}
	return n, nil
}

// State returns the node's current lifecycle state.
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

func (n *Node) setState(s NodeState) {
	n.mu.Lock()
	old := n.state
	n.state = s
	n.mu.Unlock()
	if n.config.OnStateChanged != nil {
		n.config.OnStateChanged(old, s)
	}
}

// Telemetry returns a point-in-time snapshot of the scheduler's activity
// counters.
func (n *Node) Telemetry() map[EventKind]uint64 {
	return n.telemetry.Snapshot()
}

// Start brings up the radio pump and every sub-manager: RPC host and
// client, discovery, and — on a queen — the pairing listener. The node's
// persisted config must already be enrolled (a fresh, unpaired node is
// bootstrapped through pkg/pairing directly, before a Node is ever
// constructed).
func (n *Node) Start(ctx context.Context) error {
	if !n.State().CanStart() {
		return ErrInvalidState
	}
	cfg := n.config.ConfigStore.Get()
	if !cfg.Enrolled {
		return ErrNotEnrolled
	}
	n.setState(StateStarting)

	directory := peripheral.NewDirectory(n.config.PeripheralHost)

	n.busWg.Add(1)
	go n.pumpRadio(ctx)

	hostRadio := &busRadio{real: n.config.Radio, ch: n.bus.subscribe(rpc.Channel)}
	clientRadio := &busRadio{real: n.config.Radio, ch: n.bus.subscribe(rpc.Channel)}
	discoveryRadio := &busRadio{real: n.config.Radio, ch: n.bus.subscribe(discovery.Channel)}

	n.host = rpc.NewHost(rpc.HostConfig{
		NodeID:        n.config.NodeID,
		Radio:         hostRadio,
		Directory:     n.config.PeripheralHost,
		EnvStore:      n.envStore,
		AuthSecret:    n.authSecret,
		LoggerFactory: n.config.LoggerFactory,
	})

	client, err := rpc.NewClient(rpc.ClientConfig{
		NodeID:        n.config.NodeID,
		Radio:         clientRadio,
		EnvStore:      n.envStore,
		AuthSecret:    n.authSecret,
		Locate:        n.locate,
		Timeout:       n.config.CallTimeout,
		LoggerFactory: n.config.LoggerFactory,
	})
	if err != nil {
		n.setState(StateInitialized)
		return err
	}
	n.client = client

	mgr, err := discovery.NewManager(discovery.ManagerConfig{
		NodeID:           n.config.NodeID,
		Label:            n.config.Label,
		Radio:            discoveryRadio,
		Directory:        directory,
		EnvStore:         n.envStore,
		AuthSecret:       n.authSecret,
		AnnounceInterval: n.config.AnnounceInterval,
		AnnounceTTL:      n.config.AnnounceTTL,
		OnAnnounce:       func() { n.telemetry.bump(EventAnnounce) },
		OnSweep:          func(int) { n.telemetry.bump(EventRescan) },
		LoggerFactory:    n.config.LoggerFactory,
	})
	if err != nil {
		n.setState(StateInitialized)
		return err
	}
	n.discovery = mgr

	n.host.Start(ctx)
	n.client.Start(ctx)
	if err := n.discovery.Start(ctx); err != nil {
		n.setState(StateInitialized)
		return err
	}

	if n.config.Authority != nil {
		pairRadio := &busRadio{real: n.config.Radio, ch: n.bus.subscribe(pairing.ChannelPair)}
		n.listener = pairing.NewListener(pairRadio, n.config.LoggerFactory)
		n.listener.Start(ctx)
	}

	n.setState(StateRunning)
	return nil
}

// Stop tears down every sub-manager in reverse order, then the radio pump.
// Idempotent only via State()'s CanStop guard — calling Stop twice in a row
// returns ErrInvalidState the second time, matching matter.Node's
// CanStop-gated Stop.
func (n *Node) Stop() error {
	if !n.State().CanStop() {
		return ErrInvalidState
	}
	n.setState(StateStopping)

	if n.listener != nil {
		n.listener.Stop()
	}
	if n.discovery != nil {
		n.discovery.Close()
	}
	if n.client != nil {
		n.client.Stop()
	}
	if n.host != nil {
		n.host.Stop()
	}

	n.closeOnce.Do(func() { close(n.closeCh) })
	n.busWg.Wait()

	n.setState(StateStopped)
	return nil
}

func (n *Node) pumpRadio(ctx context.Context) {
	defer n.busWg.Done()
	for {
		select {
		case <-n.closeCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		f, err := n.config.Radio.Receive(ctx)
		if err != nil {
			return
		}
		n.telemetry.bump(EventRX)
		n.bus.publish(f)
	}
}

// authSecret is the envelope.SecretLookup every subsystem authenticates
// general swarm traffic with. It hands back the swarm secret — known to
// every enrolled member, not just queen-and-one-worker — but only once the
// sender has passed whatever local membership check this node can perform:
// a queen additionally requires the sender to be active in its Trust
// Registry (or be the queen itself); a worker has no registry of its own
// and trusts the single swarm secret it was handed at pairing time.
func (n *Node) authSecret(senderID string) ([]byte, bool) {
	cfg := n.config.ConfigStore.Get()
	if !cfg.Enrolled {
		return nil, false
	}
	if n.config.Registry != nil {
		if senderID != cfg.QueenNodeID && !n.config.Registry.IsAuthorized(senderID) {
			return nil, false
		}
	}
	return cfg.SwarmSecret, true
}

func (n *Node) locate(peripheralName string) (string, bool) {
	return n.discovery.Locate(peripheralName)
}

// Peers returns every peer currently known to discovery.
func (n *Node) Peers() []*discovery.Peer {
	if n.discovery == nil {
		return nil
	}
	return n.discovery.Peers()
}

// ListRemotePeripherals flattens every currently-known peer's advertised
// peripherals into one list.
func (n *Node) ListRemotePeripherals() []peripheral.Descriptor {
	var out []peripheral.Descriptor
	for _, p := range n.Peers() {
		out = append(out, p.Peripherals...)
	}
	return out
}

// DiscoverOnce forces an immediate ANNOUNCE/DISCOVER round trip and returns
// the resulting peer snapshot.
func (n *Node) DiscoverOnce(ctx context.Context, timeout time.Duration) ([]*discovery.Peer, error) {
	peers, err := n.discovery.DiscoverOnce(ctx, timeout)
	if err != nil {
		n.telemetry.bump(EventError)
		return nil, err
	}
	n.telemetry.bump(EventDiscover)
	return peers, nil
}

// Call invokes method on a remote peripheral by name, synthesizing (and
// caching) a Proxy the first time it's addressed and transparently
// reconnecting one that previously timed out.
func (n *Node) Call(ctx context.Context, peripheralName, method string, args []any) ([]any, error) {
	p, err := n.proxyFor(peripheralName)
	if err != nil {
		n.telemetry.bump(EventError)
		return nil, err
	}

	values, err := p.Call(ctx, method, args)
	if err != nil {
		n.telemetry.bump(EventError)
		return nil, err
	}
	n.telemetry.bump(EventCall)
	return values, nil
}

func (n *Node) proxyFor(name string) (*proxy.Proxy, error) {
	n.proxyMu.Lock()
	defer n.proxyMu.Unlock()

	if p, ok := n.proxies[name]; ok {
		if !p.IsConnected() {
			if err := p.Reconnect(); err != nil {
				return nil, err
			}
		}
		return p, nil
	}

	desc, ok := n.discovery.Resolve(name)
	if !ok {
		return nil, rpc.ErrNoSuchPeripheral
	}
	p := proxy.New(desc, n.client, n.discovery.Resolve)
	n.proxies[name] = p
	return p, nil
}

// Candidates returns every worker currently advertising PAIR_READY.
// Queen-only.
func (n *Node) Candidates() []*pairing.Candidate {
	if n.listener == nil {
		return nil
	}
	return n.listener.Candidates()
}

// PairWorker drives one "Add Computer" session to completion against a
// candidate the operator picked off Candidates and a code they read off
// its screen. Queen-only; runs its own pairing.Session over a private bus
// subscription so it never competes with the continuously-running
// Listener for PAIR_COMPLETE frames.
func (n *Node) PairWorker(ctx context.Context, candidate *pairing.Candidate, typedCode string, timeout time.Duration) error {
	if n.config.Authority == nil {
		return ErrNotQueen
	}

	pairRadio := &busRadio{real: n.config.Radio, ch: n.bus.subscribe(pairing.ChannelPair)}
	session := pairing.NewSession(pairing.SessionConfig{
		QueenNodeID:   n.config.NodeID,
		Radio:         pairRadio,
		Authority:     n.config.Authority,
		Timeout:       timeout,
		LoggerFactory: n.config.LoggerFactory,
	})
	if err := session.Select(candidate, typedCode); err != nil {
		return err
	}
	return session.Deliver(ctx)
}

// Revoke marks peerID's Trust Registry entry revoked, rejecting its traffic
// from this point on. Queen-only.
func (n *Node) Revoke(peerID string) error {
	if n.config.Registry == nil {
		return ErrNotQueen
	}
	if err := n.config.Registry.Revoke(peerID); err != nil {
		return err
	}
	return n.config.Registry.Save()
}

// Remove deletes peerID's Trust Registry entry outright. Queen-only.
func (n *Node) Remove(peerID string) error {
	if n.config.Registry == nil {
		return ErrNotQueen
	}
	if err := n.config.Registry.Remove(peerID); err != nil {
		return err
	}
	return n.config.Registry.Save()
}
