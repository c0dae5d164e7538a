package pairing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/shelfos/shelfos/pkg/codec"
	"github.com/shelfos/shelfos/pkg/config"
	"github.com/shelfos/shelfos/pkg/envelope"
	"github.com/shelfos/shelfos/pkg/radio"
)

// DefaultAdvertiseInterval is how often a worker re-broadcasts PAIR_READY
// while ADVERTISING.
const DefaultAdvertiseInterval = 2 * time.Second

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	NodeID string
	Label  string

	Radio  radio.Radio
	Config *config.Store

	Callbacks WorkerCallbacks

	// AdvertiseInterval defaults to DefaultAdvertiseInterval if zero.
	AdvertiseInterval time.Duration

	LoggerFactory logging.LoggerFactory
}

// Worker drives a worker node through IDLE → ADVERTISING → VERIFYING →
// STORING → CONFIRMING → JOINED, grounded on commissioning.Commissioner's
// mu-guarded state-plus-callbacks shape.
type Worker struct {
	config WorkerConfig

	mu    sync.RWMutex
	state WorkerState
	code  string

	envStore *envelope.Store
	log      logging.LeveledLogger
}

// NewWorker creates a Worker in state IDLE.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.AdvertiseInterval == 0 {
		cfg.AdvertiseInterval = DefaultAdvertiseInterval
	}
	w := &Worker{
		config:   cfg,
		state:    WorkerIdle,
		envStore: envelope.NewStore(cfg.LoggerFactory),
	}
	if cfg.LoggerFactory != nil {
		w.log = cfg.LoggerFactory.NewLogger("pairing-worker")
	}
	return w
}

// State returns the worker's current pairing state.
func (w *Worker) State() WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Code returns the ephemeral pairing code currently being advertised, or ""
// before Run has generated one.
func (w *Worker) Code() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.code
}

func (w *Worker) setState(s WorkerState) {
	w.mu.Lock()
	old := w.state
	w.state = s
	w.mu.Unlock()

	if w.config.Callbacks.OnStateChanged != nil {
		w.config.Callbacks.OnStateChanged(old, s)
	}
}

func (w *Worker) progress(percent int, message string) {
	if w.config.Callbacks.OnProgress != nil {
		w.config.Callbacks.OnProgress(percent, message)
	}
}

func (w *Worker) fail(err error) {
	if w.log != nil {
		w.log.Warnf("pairing-worker: %v", err)
	}
	if w.config.Callbacks.OnError != nil {
		w.config.Callbacks.OnError(err)
	}
}

// Run drives the worker state machine to completion: generates a code,
// advertises until a valid PAIR_DELIVER arrives, stores the credentials,
// confirms, and returns nil once JOINED. Returns ctx.Err() if ctx is
// cancelled first.
func (w *Worker) Run(ctx context.Context) error {
	if w.State() != WorkerIdle {
		return ErrAlreadyRunning
	}

	code, err := GenerateCode()
	if err != nil {
		w.fail(err)
		return err
	}
	w.mu.Lock()
	w.code = code
	w.mu.Unlock()

	w.setState(WorkerAdvertising)
	w.progress(10, fmt.Sprintf("advertising as %s, code %s", w.config.Label, code))

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	frames := make(chan radio.Frame, 8)
	go w.readLoop(readCtx, frames)

	if err := w.broadcastReady(); err != nil {
		w.fail(err)
		return err
	}

	ticker := time.NewTicker(w.config.AdvertiseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if w.State() == WorkerAdvertising {
				if err := w.broadcastReady(); err != nil {
					w.fail(err)
					return err
				}
			}

		case f := <-frames:
			joined, err := w.handleFrame(f)
			if err != nil {
				w.fail(err)
				w.progress(15, "pairing attempt failed, resuming advertising")
				w.setState(WorkerAdvertising)
				continue
			}
			if joined {
				return nil
			}
		}
	}
}

func (w *Worker) broadcastReady() error {
	payload := encodeReady(w.config.NodeID, w.config.Label, w.Code())
	data, err := codec.Encode(payload)
	if err != nil {
		return err
	}
	return w.config.Radio.Broadcast(ChannelPair, data)
}

func (w *Worker) readLoop(ctx context.Context, out chan<- radio.Frame) {
	for {
		f, err := w.config.Radio.Receive(ctx)
		if err != nil {
			return
		}
		if f.Channel != ChannelPair {
			continue
		}
		select {
		case out <- f:
		case <-ctx.Done():
			return
		}
	}
}

// handleFrame processes one inbound frame against the current state.
// Returns (true, nil) once JOINED; returns a non-nil error for any unwrap
// failure, which Run treats as "bad code, return to ADVERTISING".
func (w *Worker) handleFrame(f radio.Frame) (bool, error) {
	if w.State() != WorkerAdvertising {
		return false, nil
	}
	if f.To == nil || *f.To != w.config.NodeID {
		return false, nil
	}

	env, err := envelope.Unmarshal(f.Data)
	if err != nil {
		return false, nil // not a PAIR_DELIVER at all; ignore, keep advertising
	}

	w.setState(WorkerVerifying)
	w.progress(40, "verifying delivered credentials")

	secret := stretchCode(w.Code())
	payload, senderID, err := w.envStore.Unwrap(env, func(string) ([]byte, bool) { return secret, true })
	if err != nil {
		return false, err
	}

	deliver, ok := decodeDeliver(payload)
	if !ok {
		return false, ErrBadCredentials
	}

	w.setState(WorkerStoring)
	w.progress(70, "storing credentials")
	if w.config.Config != nil {
		w.config.Config.EnrollAsWorker(deliver.SwarmID, deliver.SwarmSecret, deliver.Fingerprint, senderID, deliver.PeerSecret)
		if err := w.config.Config.Save(); err != nil {
			return false, err
		}
	}

	w.setState(WorkerConfirming)
	w.progress(90, "confirming join")

	completeEnv, err := envelope.Wrap(encodeComplete(w.config.NodeID, w.config.Label), w.config.NodeID, secret)
	if err != nil {
		return false, err
	}
	wire, err := envelope.Marshal(completeEnv)
	if err != nil {
		return false, err
	}
	if err := w.config.Radio.Unicast(ChannelPair, senderID, wire); err != nil {
		return false, err
	}

	w.setState(WorkerJoined)
	w.progress(100, "joined swarm")
	return true, nil
}
