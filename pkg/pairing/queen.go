package pairing

import (
	"context"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/shelfos/shelfos/pkg/envelope"
	"github.com/shelfos/shelfos/pkg/queenauth"
	"github.com/shelfos/shelfos/pkg/radio"
)

// DefaultSessionTimeout is the total queen-side pairing session timeout:
// DELIVERING must receive PAIR_COMPLETE within this window or the session
// is CANCELLED.
const DefaultSessionTimeout = 30 * time.Second

// Listener runs the queen-side LISTENING step: it collects PAIR_READY
// broadcasts into a 15s-TTL candidate list that "Add Computer" reads from.
type Listener struct {
	radio       radio.Radio
	candidates  *candidateTable
	log         logging.LeveledLogger
	closed      chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
	sweepTicker time.Duration
}

// NewListener creates a Listener over r. loggerFactory may be nil.
func NewListener(r radio.Radio, loggerFactory logging.LoggerFactory) *Listener {
	l := &Listener{
		radio:       r,
		candidates:  newCandidateTable(),
		closed:      make(chan struct{}),
		sweepTicker: time.Second,
	}
	if loggerFactory != nil {
		l.log = loggerFactory.NewLogger("pairing-queen")
	}
	return l
}

// Start begins collecting PAIR_READY broadcasts in the background.
func (l *Listener) Start(ctx context.Context) {
	l.wg.Add(2)
	go l.readLoop(ctx)
	go l.sweepLoop(ctx)
}

// Candidates returns a point-in-time snapshot of every live candidate.
func (l *Listener) Candidates() []*Candidate {
	return l.candidates.list()
}

// Candidate returns one candidate by node ID, or (nil, false) if unknown or
// evicted.
func (l *Listener) Candidate(nodeID string) (*Candidate, bool) {
	return l.candidates.get(nodeID)
}

// Stop ends the background loops.
func (l *Listener) Stop() {
	l.closeOnce.Do(func() { close(l.closed) })
	l.wg.Wait()
}

func (l *Listener) readLoop(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-l.closed:
			return
		case <-ctx.Done():
			return
		default:
		}

		f, err := l.radio.Receive(ctx)
		if err != nil {
			return
		}
		if f.Channel != ChannelPair || f.To != nil {
			continue
		}

		decoded, err := decodePlain(f.Data)
		if err != nil {
			continue
		}
		nodeID, label, code, ok := decodeReady(decoded)
		if !ok {
			continue
		}
		l.candidates.observe(nodeID, label, code, time.Now())
		if l.log != nil {
			l.log.Debugf("pairing-queen: candidate %s (%s) observed", nodeID, label)
		}
	}
}

func (l *Listener) sweepLoop(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.sweepTicker)
	defer ticker.Stop()
	for {
		select {
		case <-l.closed:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.candidates.sweep(time.Now())
		}
	}
}

// SessionConfig configures a Session.
type SessionConfig struct {
	QueenNodeID string
	Radio       radio.Radio
	Authority   *queenauth.Authority
	Callbacks   QueenCallbacks

	// Timeout bounds DELIVERING; defaults to DefaultSessionTimeout.
	Timeout time.Duration

	LoggerFactory logging.LoggerFactory
}

// Session is one "Add Computer" queen-side pairing attempt: LISTENING is
// shared (via a Listener); a Session starts in LISTENING and Select moves it
// to SELECTED.
type Session struct {
	config SessionConfig

	mu        sync.RWMutex
	state     QueenState
	candidate *Candidate

	envStore *envelope.Store
	log      logging.LeveledLogger
}

// NewSession creates a Session in state LISTENING (conceptually — the
// actual candidate collection is the shared Listener's job; a Session only
// exists from the moment an operator picks a candidate).
func NewSession(cfg SessionConfig) *Session {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultSessionTimeout
	}
	s := &Session{
		config:   cfg,
		state:    QueenListening,
		envStore: envelope.NewStore(cfg.LoggerFactory),
	}
	if cfg.LoggerFactory != nil {
		s.log = cfg.LoggerFactory.NewLogger("pairing-queen")
	}
	return s
}

// State returns the session's current state.
func (s *Session) State() QueenState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state QueenState) {
	s.mu.Lock()
	old := s.state
	s.state = state
	s.mu.Unlock()
	if s.config.Callbacks.OnStateChanged != nil {
		s.config.Callbacks.OnStateChanged(old, state)
	}
}

func (s *Session) progress(percent int, message string) {
	if s.config.Callbacks.OnProgress != nil {
		s.config.Callbacks.OnProgress(percent, message)
	}
}

func (s *Session) fail(err error) {
	if s.log != nil {
		s.log.Warnf("pairing-queen: %v", err)
	}
	if s.config.Callbacks.OnError != nil {
		s.config.Callbacks.OnError(err)
	}
}

func (s *Session) candidateSnapshot() *Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.candidate
}

// Select moves LISTENING → SELECTED: the operator has picked a candidate
// and typed the code they read off its screen. Returns ErrCodeMismatch if
// the typed code doesn't match what the candidate actually broadcast.
func (s *Session) Select(candidate *Candidate, typedCode string) error {
	if s.State() != QueenListening {
		return ErrNotSelected
	}
	if candidate == nil {
		return ErrNoSuchCandidate
	}
	if candidate.Code != typedCode {
		return ErrCodeMismatch
	}

	s.mu.Lock()
	s.candidate = candidate
	s.mu.Unlock()
	s.setState(QueenSelected)
	return nil
}

// Deliver moves SELECTED → DELIVERING → COMMITTED|CANCELLED: reserves
// credentials, unicasts PAIR_DELIVER, and waits up to config.Timeout for a
// matching PAIR_COMPLETE.
func (s *Session) Deliver(ctx context.Context) error {
	if s.State() != QueenSelected {
		return ErrNotSelected
	}
	cand := s.candidateSnapshot()

	s.setState(QueenDelivering)
	s.progress(20, "reserving credentials for "+cand.Label)

	creds, err := s.config.Authority.Reserve(cand.NodeID, cand.Label)
	if err != nil {
		s.fail(err)
		s.setState(QueenCancelled)
		return err
	}

	secret := stretchCode(cand.Code)
	payload := encodeDeliver(creds.SwarmID, creds.SwarmSecret, creds.PeerSecret, creds.SwarmFingerprint)
	env, err := envelope.WrapTo(payload, s.config.QueenNodeID, cand.NodeID, secret)
	if err != nil {
		return s.abort(cand.NodeID, err)
	}
	wire, err := envelope.Marshal(env)
	if err != nil {
		return s.abort(cand.NodeID, err)
	}
	if err := s.config.Radio.Unicast(ChannelPair, cand.NodeID, wire); err != nil {
		return s.abort(cand.NodeID, err)
	}

	s.progress(60, "awaiting confirmation from "+cand.Label)

	waitCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	for {
		f, err := s.config.Radio.Receive(waitCtx)
		if err != nil {
			return s.abort(cand.NodeID, ErrSessionTimedOut)
		}
		if f.Channel != ChannelPair {
			continue
		}
		if f.To == nil || *f.To != s.config.QueenNodeID {
			continue
		}

		completeEnv, err := envelope.Unmarshal(f.Data)
		if err != nil {
			continue
		}
		lookup := func(id string) ([]byte, bool) {
			if id == cand.NodeID {
				return secret, true
			}
			return nil, false
		}
		payload, _, err := s.envStore.Unwrap(completeEnv, lookup)
		if err != nil {
			continue
		}
		nodeID, label, ok := decodeComplete(payload)
		if !ok || nodeID != cand.NodeID {
			continue
		}

		s.progress(90, "committing "+cand.Label)
		if _, err := s.config.Authority.Commit(cand.NodeID, label); err != nil {
			return s.abort(cand.NodeID, err)
		}

		s.setState(QueenCommitted)
		s.progress(100, cand.Label+" joined the swarm")
		return nil
	}
}

func (s *Session) abort(peerID string, cause error) error {
	s.fail(cause)
	if err := s.config.Authority.Cancel(peerID); err != nil && s.log != nil {
		s.log.Warnf("pairing-queen: rollback for %s failed: %v", peerID, err)
	}
	s.setState(QueenCancelled)
	return cause
}

// Cancel aborts a session the operator gave up on locally, rolling back any
// reservation.
func (s *Session) Cancel() error {
	switch s.State() {
	case QueenCommitted, QueenCancelled:
		return ErrNotSelected
	}
	cand := s.candidateSnapshot()
	if cand != nil {
		_ = s.config.Authority.Cancel(cand.NodeID)
	}
	s.setState(QueenCancelled)
	return nil
}
