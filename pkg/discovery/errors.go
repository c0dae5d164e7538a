package discovery

import "errors"

// Package-level sentinel errors for discovery operations.
var (
	// ErrClosed is returned when an operation is attempted on a closed Manager.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyStarted is returned by Start if called more than once.
	ErrAlreadyStarted = errors.New("discovery: already started")

	// ErrInvalidConfig is returned by NewManager when AnnounceTTL is too
	// short relative to AnnounceInterval to tolerate a couple of missed
	// broadcasts without evicting a live peer.
	ErrInvalidConfig = errors.New("discovery: AnnounceTTL must be at least 6x AnnounceInterval")
)
