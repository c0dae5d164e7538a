package queenauth

import (
	"errors"

	"github.com/shelfos/shelfos/pkg/registry"
)

var (
	// ErrNoSwarm is returned by operations that require a swarm identity
	// when none has been created yet.
	ErrNoSwarm = errors.New("queenauth: no swarm identity")

	// ErrSwarmExists is returned by CreateSwarm if a swarm identity already
	// exists.
	ErrSwarmExists = errors.New("queenauth: swarm already exists")

	// ErrPendingExists is returned by Reserve when a pairing is already
	// pending for the peer. It is the registry's sentinel, which Reserve
	// passes through.
	ErrPendingExists = registry.ErrPendingExists

	// ErrNoPending is returned by Commit/Cancel when no pairing is pending
	// for the peer. It is the registry's sentinel, which Commit/Cancel pass
	// through.
	ErrNoPending = registry.ErrNoPending
)
