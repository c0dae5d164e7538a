// Package queenauth implements the Queen Authority: the pairing-session
// facade that owns the swarm identity and the Trust Registry, and issues
// per-peer secrets via a two-phase reserve/commit/cancel pairing session.
//
// The reserve/commit/cancel shape and its mu-guarded pending-state-with-
// snapshot-for-rollback idiom are grounded on commissioning.Commissioner's
// session handling; the upsert-on-commit semantics reuse
// registry.Registry's pending-pairing primitives, themselves grounded on
// fabric.Table.
package queenauth

import (
	"github.com/pion/logging"
	"github.com/shelfos/shelfos/pkg/fingerprint"
	"github.com/shelfos/shelfos/pkg/registry"
)

// Credentials is what Reserve/Commit/Issue hand back: everything a worker
// needs to join the swarm.
type Credentials struct {
	PeerID           string
	PeerSecret       []byte
	SwarmID          string
	SwarmSecret      []byte
	SwarmFingerprint string
}

// Config configures a new Authority.
type Config struct {
	Registry      *registry.Registry
	LoggerFactory logging.LoggerFactory
}

// Authority is the Queen Authority.
type Authority struct {
	registry *registry.Registry
	identity *Identity
	log      logging.LeveledLogger
}

// New creates an Authority with no swarm identity yet; call CreateSwarm or
// SetIdentity before Reserve/Commit/Issue will work.
func New(config Config) *Authority {
	a := &Authority{registry: config.Registry}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("queenauth")
	}
	return a
}

// CreateSwarm creates a brand-new swarm identity with the given display
// name and queen node ID. Returns ErrSwarmExists if one already exists.
func (a *Authority) CreateSwarm(displayName, queenNodeID string) (*Identity, error) {
	if a.identity != nil {
		return nil, ErrSwarmExists
	}

	swarmID, err := generateSwarmID()
	if err != nil {
		return nil, err
	}
	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}
	fp, err := fingerprint.Derive(secret)
	if err != nil {
		return nil, err
	}

	a.identity = &Identity{
		SwarmID:     swarmID,
		DisplayName: displayName,
		SwarmSecret: secret,
		Fingerprint: fp,
		QueenNodeID: queenNodeID,
	}
	return a.identity, nil
}

// SetIdentity installs a previously-persisted swarm identity (loaded from
// config by the caller). Used on restart, where CreateSwarm must not run
// again.
func (a *Authority) SetIdentity(identity *Identity) {
	a.identity = identity
}

// Identity returns the current swarm identity, or nil if none exists yet.
func (a *Authority) Identity() *Identity {
	return a.identity
}

// Reserve begins a pairing session for peerID: if no pairing is already
// pending, it generates a fresh per-peer secret (reusing the existing one
// if the peer already has an active entry, so re-pairing doesn't rotate
// secrets out from under an already-trusted peer), snapshots any prior
// entry, and stashes the pending pairing. Returns the credentials the
// caller should deliver to the peer.
func (a *Authority) Reserve(peerID string, label string) (*Credentials, error) {
	if a.identity == nil {
		return nil, ErrNoSwarm
	}

	var peerSecret []byte
	if existing, ok := a.registry.GetSecret(peerID); ok {
		peerSecret = existing
	} else {
		s, err := generateSecret()
		if err != nil {
			return nil, err
		}
		peerSecret = s
	}

	if err := a.registry.StashPending(peerID, peerSecret, label); err != nil {
		return nil, err
	}

	return &Credentials{
		PeerID:           peerID,
		PeerSecret:       peerSecret,
		SwarmID:          a.identity.SwarmID,
		SwarmSecret:      a.identity.SwarmSecret,
		SwarmFingerprint: a.identity.Fingerprint,
	}, nil
}

// Commit upserts the pending secret into the registry with status active,
// clears the pending slot, and persists. Returns an error if nothing is
// pending for peerID.
func (a *Authority) Commit(peerID string, label string) (*Credentials, error) {
	if a.identity == nil {
		return nil, ErrNoSwarm
	}

	entry, err := a.registry.CommitPending(peerID, label, a.identity.Fingerprint)
	if err != nil {
		return nil, err
	}

	if err := a.registry.Save(); err != nil {
		if a.log != nil {
			a.log.Warnf("queenauth: commit for %s succeeded but save failed: %v", peerID, err)
		}
		return nil, err
	}

	return &Credentials{
		PeerID:           peerID,
		PeerSecret:       entry.Secret,
		SwarmID:          a.identity.SwarmID,
		SwarmSecret:      a.identity.SwarmSecret,
		SwarmFingerprint: a.identity.Fingerprint,
	}, nil
}

// Cancel restores the pre-reserve snapshot (or removes the tentative entry
// if there was none) and persists.
func (a *Authority) Cancel(peerID string) error {
	if err := a.registry.CancelPending(peerID); err != nil {
		return err
	}
	return a.registry.Save()
}

// Issue is the convenience path: reserve then commit in one call, with no
// intervening out-of-band delivery step. Useful for tests and for local
// (non-networked) enrollment.
func (a *Authority) Issue(peerID string, label string) (*Credentials, error) {
	if _, err := a.Reserve(peerID, label); err != nil {
		return nil, err
	}
	return a.Commit(peerID, label)
}
