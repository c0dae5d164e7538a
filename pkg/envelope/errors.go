package envelope

import "errors"

// Failure kinds returned by Unwrap. Each is a distinct sentinel so callers
// can distinguish them with errors.Is, matching the style of the rest of the
// fabric's packages.
var (
	// ErrMalformed is returned when the envelope is missing a required field
	// or has the wrong version.
	ErrMalformed = errors.New("envelope: malformed")

	// ErrUnknownSender is returned when lookupSecret has no secret for the
	// claimed sender.
	ErrUnknownSender = errors.New("envelope: unknown sender")

	// ErrBadTag is returned when the computed tag does not match the
	// envelope's tag.
	ErrBadTag = errors.New("envelope: bad tag")

	// ErrExpired is returned when the envelope's timestamp is older than the
	// freshness window allows.
	ErrExpired = errors.New("envelope: expired")

	// ErrFromFuture is returned when the envelope's timestamp is further in
	// the future than the allowed skew.
	ErrFromFuture = errors.New("envelope: from future")

	// ErrReplay is returned when the envelope's nonce has already been seen
	// from this sender within the replay window.
	ErrReplay = errors.New("envelope: replay")
)
