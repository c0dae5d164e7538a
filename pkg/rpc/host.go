package rpc

import (
	"context"
	"sync"

	"github.com/pion/logging"

	"github.com/shelfos/shelfos/pkg/envelope"
	"github.com/shelfos/shelfos/pkg/peripheral"
	"github.com/shelfos/shelfos/pkg/radio"
)

// HostConfig configures a Host.
type HostConfig struct {
	NodeID string

	Radio      radio.Radio
	Directory  *peripheral.Host
	EnvStore   *envelope.Store
	AuthSecret envelope.SecretLookup

	LoggerFactory logging.LoggerFactory
}

// Host serves CALL requests against a local peripheral.Host, grounded on
// im.Client's exchange-handler shape but driven directly off the radio
// rather than an exchange manager.
type Host struct {
	config HostConfig

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	log       logging.LeveledLogger
}

// NewHost creates a Host. cfg.EnvStore should be the node's single shared
// nonce-cache Store so RPC replay protection composes with every other
// envelope traffic on the node.
func NewHost(cfg HostConfig) *Host {
	h := &Host{config: cfg, closed: make(chan struct{})}
	if cfg.LoggerFactory != nil {
		h.log = cfg.LoggerFactory.NewLogger("rpc-host")
	}
	return h
}

// Start begins serving CALL requests in the background.
func (h *Host) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.readLoop(ctx)
}

// Stop ends the background loop.
func (h *Host) Stop() {
	h.closeOnce.Do(func() { close(h.closed) })
	h.wg.Wait()
}

func (h *Host) readLoop(ctx context.Context) {
	defer h.wg.Done()
	for {
		select {
		case <-h.closed:
			return
		case <-ctx.Done():
			return
		default:
		}

		f, err := h.config.Radio.Receive(ctx)
		if err != nil {
			return
		}
		if f.Channel != Channel || f.To == nil || *f.To != h.config.NodeID {
			continue
		}

		env, err := envelope.Unmarshal(f.Data)
		if err != nil {
			continue
		}
		payload, senderID, err := h.config.EnvStore.Unwrap(env, h.config.AuthSecret)
		if err != nil {
			if h.log != nil {
				h.log.Debugf("rpc-host: dropped frame: %v", err)
			}
			continue
		}
		call, ok := decodeCall(payload)
		if !ok {
			continue
		}

		h.handleCall(senderID, call)
	}
}

func (h *Host) handleCall(callerID string, call callRequest) {
	values, err := h.config.Directory.Invoke(call.PeripheralName, call.Method, call.Args)

	var wirePayload map[string]any
	if err != nil {
		wirePayload = encodeResult(call.RequestID, false, nil, err.Error())
	} else {
		wirePayload = encodeResult(call.RequestID, true, values, "")
	}

	secret, ok := h.config.AuthSecret(callerID)
	if !ok {
		return
	}
	env, err := envelope.WrapTo(wirePayload, h.config.NodeID, callerID, secret)
	if err != nil {
		if h.log != nil {
			h.log.Warnf("rpc-host: failed to wrap RESULT for %s: %v", callerID, err)
		}
		return
	}
	wire, err := envelope.Marshal(env)
	if err != nil {
		return
	}
	if err := h.config.Radio.Unicast(Channel, callerID, wire); err != nil && h.log != nil {
		h.log.Warnf("rpc-host: failed to send RESULT to %s: %v", callerID, err)
	}
}
