package scheduler

import "errors"

var (
	// ErrMissingNodeID is returned by Config.Validate when NodeID is empty.
	ErrMissingNodeID = errors.New("scheduler: missing node ID")

	// ErrMissingRadio is returned by Config.Validate when no Radio is set.
	ErrMissingRadio = errors.New("scheduler: missing radio")

	// ErrMissingConfigStore is returned by Config.Validate when no
	// ConfigStore is set.
	ErrMissingConfigStore = errors.New("scheduler: missing config store")

	// ErrMissingPeripheralHost is returned by Config.Validate when no
	// PeripheralHost is set.
	ErrMissingPeripheralHost = errors.New("scheduler: missing peripheral host")

	// ErrNotEnrolled is returned by Start when the node's persisted config
	// has never completed pairing.
	ErrNotEnrolled = errors.New("scheduler: node is not enrolled in a swarm")

	// ErrInvalidState is returned by Start/Stop when the node isn't in a
	// state that permits the transition.
	ErrInvalidState = errors.New("scheduler: invalid state for this operation")

	// ErrNotQueen is returned by queen-only operations (PairWorker, Revoke,
	// Remove) on a worker node. Candidates returns nil there instead.
	ErrNotQueen = errors.New("scheduler: node is not the queen")
)
