package rpc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	"github.com/shelfos/shelfos/pkg/envelope"
	"github.com/shelfos/shelfos/pkg/peripheral"
	"github.com/shelfos/shelfos/pkg/radio"
)

// DefaultCallTimeout is how long Call waits for a RESULT before returning
// ErrTimeout.
const DefaultCallTimeout = 5 * time.Second

// Locator resolves a peripheral name to the node ID currently hosting it —
// the discovery remote-peripheral cache, wired in by the scheduler.
type Locator func(peripheralName string) (nodeID string, ok bool)

// ClientConfig configures a Client.
type ClientConfig struct {
	NodeID string

	Radio      radio.Radio
	EnvStore   *envelope.Store
	AuthSecret envelope.SecretLookup
	Locate     Locator

	// Timeout bounds Call; defaults to DefaultCallTimeout.
	Timeout time.Duration

	LoggerFactory logging.LoggerFactory
}

// pendingCall is the per-in-flight-request waiter, grounded directly on
// im.Client's invokeResponseHandler: a buffered result channel plus a
// sync.Once so a RESULT and a timeout can race without a double-send panic.
type pendingCall struct {
	resultCh chan callOutcome
	once     sync.Once
}

type callOutcome struct {
	values []any
	err    error
}

func (p *pendingCall) deliver(o callOutcome) {
	p.once.Do(func() { p.resultCh <- o })
}

// Client issues CALL requests to remote peripherals and correlates RESULT
// responses by request ID.
type Client struct {
	config ClientConfig

	seq    uint64
	suffix string

	mu      sync.Mutex
	pending map[string]*pendingCall

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	log       logging.LeveledLogger
}

// NewClient creates a Client. Call Start before issuing any Call.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultCallTimeout
	}
	suffix, err := randomSuffix()
	if err != nil {
		return nil, err
	}
	c := &Client{
		config:  cfg,
		suffix:  suffix,
		pending: make(map[string]*pendingCall),
		closed:  make(chan struct{}),
	}
	if cfg.LoggerFactory != nil {
		c.log = cfg.LoggerFactory.NewLogger("rpc-client")
	}
	return c, nil
}

func randomSuffix() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// Start begins listening for RESULT responses in the background.
func (c *Client) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.readLoop(ctx)
}

// Stop ends the background loop and fails every still-pending call with
// ErrClosed.
func (c *Client) Stop() {
	c.closeOnce.Do(func() { close(c.closed) })
	c.wg.Wait()

	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingCall)
	c.mu.Unlock()
	for _, p := range pending {
		p.deliver(callOutcome{err: ErrClosed})
	}
}

func (c *Client) nextRequestID() string {
	n := atomic.AddUint64(&c.seq, 1)
	return c.suffix + "-" + strconv.FormatUint(n, 10)
}

// Call invokes method on peripheralName with args, blocking until a RESULT
// arrives, ctx is cancelled, or the call times out. Returns
// ErrPeripheralUnreachable immediately, without sending anything, if the
// peripheral can't be resolved to a host or the host has no known secret.
func (c *Client) Call(ctx context.Context, peripheralName, method string, args []any) ([]any, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}
	nodeID, ok := c.config.Locate(peripheralName)
	if !ok {
		return nil, ErrPeripheralUnreachable
	}
	secret, ok := c.config.AuthSecret(nodeID)
	if !ok {
		return nil, ErrPeripheralUnreachable
	}

	requestID := c.nextRequestID()
	waiter := &pendingCall{resultCh: make(chan callOutcome, 1)}

	c.mu.Lock()
	c.pending[requestID] = waiter
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	payload := encodeCall(requestID, peripheralName, method, args)
	env, err := envelope.WrapTo(payload, c.config.NodeID, nodeID, secret)
	if err != nil {
		return nil, err
	}
	wire, err := envelope.Marshal(env)
	if err != nil {
		return nil, err
	}
	if err := c.config.Radio.Unicast(Channel, nodeID, wire); err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	select {
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTimeout
	case out := <-waiter.resultCh:
		return out.values, out.err
	}
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		default:
		}

		f, err := c.config.Radio.Receive(ctx)
		if err != nil {
			return
		}
		if f.Channel != Channel || f.To == nil || *f.To != c.config.NodeID {
			continue
		}

		env, err := envelope.Unmarshal(f.Data)
		if err != nil {
			continue
		}
		payload, _, err := c.config.EnvStore.Unwrap(env, c.config.AuthSecret)
		if err != nil {
			if c.log != nil {
				c.log.Debugf("rpc-client: dropped frame: %v", err)
			}
			continue
		}
		result, ok := decodeResult(payload)
		if !ok {
			continue
		}

		c.mu.Lock()
		waiter, exists := c.pending[result.RequestID]
		c.mu.Unlock()
		if !exists {
			continue // unknown or already-resolved request ID: silently dropped
		}

		if result.OK {
			waiter.deliver(callOutcome{values: result.Values})
		} else {
			waiter.deliver(callOutcome{err: remoteError(result.ErrorText)})
		}
	}
}

// remoteError maps a RESULT's errorText back onto one of the named
// sentinels when it matches a known peripheral-side failure, or wraps it as
// an opaque ErrRemote otherwise.
func remoteError(text string) error {
	switch text {
	case peripheral.ErrNoSuchPeripheral.Error():
		return ErrNoSuchPeripheral
	case peripheral.ErrNoSuchMethod.Error():
		return ErrNoSuchMethod
	default:
		return &remoteErr{text: text}
	}
}

type remoteErr struct{ text string }

func (e *remoteErr) Error() string { return "rpc: remote error: " + e.text }
func (e *remoteErr) Unwrap() error { return ErrRemote }
