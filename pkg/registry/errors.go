package registry

import "errors"

var (
	// ErrNotFound is returned when a peer ID has no registry entry.
	ErrNotFound = errors.New("registry: not found")

	// ErrCannotOpen is returned when the registry file exists but cannot be
	// opened (permissions, I/O error).
	ErrCannotOpen = errors.New("registry: cannot open")

	// ErrInvalidFile is returned when the registry file exists but cannot be
	// parsed. On load, a *missing* file is not an error (fresh start); a
	// corrupt one is.
	ErrInvalidFile = errors.New("registry: invalid file")

	// ErrAlreadyExists is returned by Add when an entry for the peer ID
	// already exists.
	ErrAlreadyExists = errors.New("registry: already exists")

	// ErrPendingExists is returned by StashPending when a pending pairing is
	// already stashed for the peer ID.
	ErrPendingExists = errors.New("registry: pending pairing already exists")

	// ErrNoPending is returned by CommitPending/CancelPending when no
	// pending pairing is stashed for the peer ID.
	ErrNoPending = errors.New("registry: no pending pairing")
)
