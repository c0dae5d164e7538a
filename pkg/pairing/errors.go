package pairing

import "errors"

var (
	// ErrCodeMismatch is returned when the code an operator types does not
	// match the candidate's observed PAIR_READY code.
	ErrCodeMismatch = errors.New("pairing: code does not match candidate")

	// ErrNoSuchCandidate is returned when Session.Select is given a nil
	// candidate (Listener.Candidate yields nil for a node ID never seen, or
	// evicted).
	ErrNoSuchCandidate = errors.New("pairing: no such candidate")

	// ErrNotSelected is returned by Select/Deliver/Cancel when the queen
	// session is not in a state that allows the call.
	ErrNotSelected = errors.New("pairing: no candidate selected")

	// ErrSessionTimedOut is returned when the queen's 30s delivery window
	// elapses without a PAIR_COMPLETE.
	ErrSessionTimedOut = errors.New("pairing: session timed out")

	// ErrAlreadyRunning is returned by Run if the state machine has already
	// started (Idle is the only state Run may be called from).
	ErrAlreadyRunning = errors.New("pairing: already running")

	// ErrBadCredentials is returned when a PAIR_DELIVER envelope unwraps
	// correctly but its payload doesn't decode to the expected shape.
	ErrBadCredentials = errors.New("pairing: malformed credentials payload")
)
