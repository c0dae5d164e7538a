package rpc

import "errors"

var (
	// ErrNoSuchPeripheral is the client-side decoded form of a RESULT whose
	// errorText is peripheral.ErrNoSuchPeripheral's text (the host reports a
	// CALL naming a peripheral it doesn't have attached that way).
	ErrNoSuchPeripheral = errors.New("rpc: no such peripheral")

	// ErrNoSuchMethod is the method-not-found counterpart to
	// ErrNoSuchPeripheral.
	ErrNoSuchMethod = errors.New("rpc: no such method")

	// ErrPeripheralUnreachable is returned by Call when the discovery cache
	// has no host for the named peripheral, or no secret for that host —
	// nothing is sent on the wire in either case.
	ErrPeripheralUnreachable = errors.New("rpc: peripheral unreachable")

	// ErrTimeout is returned by Call when no RESULT arrives within
	// ClientConfig.Timeout.
	ErrTimeout = errors.New("rpc: call timed out")

	// ErrClosed is returned by Call once the client has been stopped.
	ErrClosed = errors.New("rpc: client closed")

	// ErrRemote wraps an arbitrary host-side execution error surfaced in a
	// RESULT's errorText that doesn't match one of the named sentinels
	// above.
	ErrRemote = errors.New("rpc: remote error")
)
