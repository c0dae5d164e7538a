// Package config persists the per-node config.yaml: node identity, queen
// enrollment, and — for a queen node — the swarm identity it minted. It is
// deliberately a separate file and a separate load/save concern from
// pkg/registry's registry.yaml, the way matter/storage.go's Storage
// interface splits fabrics, ACLs, and counters into distinct operations
// even though they all eventually land on the same disk.
package config

import (
	"os"

	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

// NodeConfig is the full persisted shape of config.yaml.
type NodeConfig struct {
	NodeID   string `yaml:"node_id"`
	Label    string `yaml:"label"`
	IsQueen  bool   `yaml:"is_queen"`
	Enrolled bool   `yaml:"enrolled"`

	// SwarmID/SwarmSecret/SwarmFingerprint are populated on every enrolled
	// node (queen or worker) — a queen's own swarm identity, or the swarm
	// identity a worker received in PAIR_DELIVER.
	SwarmID          string `yaml:"swarm_id,omitempty"`
	SwarmSecret      []byte `yaml:"swarm_secret,omitempty"`
	SwarmFingerprint string `yaml:"swarm_fingerprint,omitempty"`

	// QueenNodeID is this node's queen (itself, if IsQueen).
	QueenNodeID string `yaml:"queen_node_id,omitempty"`

	// PeerSecret is this node's own shared secret with the queen — absent
	// on the queen itself, which keeps per-worker secrets in registry.yaml
	// instead.
	PeerSecret []byte `yaml:"peer_secret,omitempty"`
}

func (c NodeConfig) clone() NodeConfig {
	out := c
	out.SwarmSecret = append([]byte(nil), c.SwarmSecret...)
	out.PeerSecret = append([]byte(nil), c.PeerSecret...)
	return out
}

// onDiskFormat is the serialized shape of config.yaml: a map with a version
// field, tolerant of unknown additions on round-trip — the same shape
// registry.onDiskFormat uses for registry.yaml.
type onDiskFormat struct {
	Version    int `yaml:"version"`
	NodeConfig `yaml:",inline"`
	// Extra preserves any keys this version of the code doesn't know about,
	// so round-tripping through Save/Load doesn't drop forward-compatible
	// additions from a newer writer.
	Extra map[string]any `yaml:",inline"`
}

const configFileVersion = 1

// Store is the atomic accessor for config.yaml. It holds no lock of its own.
type Store struct {
	path    string
	cfg     NodeConfig
	version int
	extra   map[string]any
	log     logging.LeveledLogger
}

// New creates a Store over path. Call Load before Get to populate it from
// disk.
func New(path string, loggerFactory logging.LoggerFactory) *Store {
	s := &Store{path: path}
	if loggerFactory != nil {
		s.log = loggerFactory.NewLogger("config")
	}
	return s
}

// Load reads config.yaml from disk. A missing file is not an error — it
// means this node has never been configured, the same convention
// registry.Load uses for a fresh node.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ErrCannotOpen
	}

	var in onDiskFormat
	if err := yaml.Unmarshal(data, &in); err != nil {
		return ErrInvalidFile
	}
	s.cfg = in.NodeConfig
	s.version = in.Version
	s.extra = in.Extra
	return nil
}

// Save writes config.yaml atomically: write to a temp file in the same
// directory, then rename over the destination.
func (s *Store) Save() error {
	version := s.version
	if version == 0 {
		version = configFileVersion
	}
	out := onDiskFormat{Version: version, NodeConfig: s.cfg, Extra: s.extra}
	data, err := yaml.Marshal(out)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Debugf("config: saved %s", s.path)
	}
	return nil
}

// Get returns a clone of the current in-memory config.
func (s *Store) Get() NodeConfig {
	return s.cfg.clone()
}

// SetIdentity installs a brand-new node identity (node ID, label, and
// whether it's the queen) for a never-before-configured node.
func (s *Store) SetIdentity(nodeID, label string, isQueen bool) {
	s.cfg.NodeID = nodeID
	s.cfg.Label = label
	s.cfg.IsQueen = isQueen
}

// EnrollAsQueen records a freshly-minted swarm identity for this node.
func (s *Store) EnrollAsQueen(swarmID string, swarmSecret []byte, fingerprint string) {
	s.cfg.IsQueen = true
	s.cfg.Enrolled = true
	s.cfg.SwarmID = swarmID
	s.cfg.SwarmSecret = append([]byte(nil), swarmSecret...)
	s.cfg.SwarmFingerprint = fingerprint
	s.cfg.QueenNodeID = s.cfg.NodeID
}

// EnrollAsWorker records the credentials a worker received in PAIR_DELIVER.
func (s *Store) EnrollAsWorker(swarmID string, swarmSecret []byte, fingerprint, queenNodeID string, peerSecret []byte) {
	s.cfg.Enrolled = true
	s.cfg.SwarmID = swarmID
	s.cfg.SwarmSecret = append([]byte(nil), swarmSecret...)
	s.cfg.SwarmFingerprint = fingerprint
	s.cfg.QueenNodeID = queenNodeID
	s.cfg.PeerSecret = append([]byte(nil), peerSecret...)
}
