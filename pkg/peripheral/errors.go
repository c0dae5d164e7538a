package peripheral

import "errors"

var (
	// ErrNoSuchPeripheral is returned when a peripheral name has no match
	// in the host's attached table.
	ErrNoSuchPeripheral = errors.New("peripheral: no such peripheral")

	// ErrNoSuchMethod is returned when a peripheral exists but does not
	// expose the requested method.
	ErrNoSuchMethod = errors.New("peripheral: no such method")
)
