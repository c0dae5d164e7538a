package scheduler

import (
	"context"
	"sync"

	"github.com/shelfos/shelfos/pkg/radio"
)

// channelBus fans frames pulled off the one physical radio out to any
// number of per-channel subscribers, so rpc.Host, rpc.Client,
// discovery.Manager, and pairing.Listener/Session can each keep running
// their own already-tested Receive loop without racing each other over a
// single inbox.
//
// This is the "small set of long-lived tasks converging on a single
// serialized mutator via a message queue" shape the spec names as the
// threaded-runtime alternative to one big select loop, generalized from
// exchange.Manager's dispatch-by-protocol-ID demultiplexing to
// dispatch-by-channel-name fan-out: one real reader (pumpRadio), many
// private queues.
type channelBus struct {
	mu   sync.Mutex
	subs map[string][]chan radio.Frame
}

func newChannelBus() *channelBus {
	return &channelBus{subs: make(map[string][]chan radio.Frame)}
}

// subscribe registers a new listener on channel and returns its private,
// buffered queue.
func (b *channelBus) subscribe(channel string) chan radio.Frame {
	ch := make(chan radio.Frame, 64)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	return ch
}

// publish copies f to every subscriber registered on f.Channel. A full
// subscriber queue drops the frame rather than blocking the others — the
// radio primitive is already at-most-once, so this doesn't weaken any
// delivery guarantee the rest of the fabric depends on.
func (b *channelBus) publish(f radio.Frame) {
	b.mu.Lock()
	subs := append([]chan radio.Frame(nil), b.subs[f.Channel]...)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- f:
		default:
		}
	}
}

// busRadio is one subscriber's view of the real radio: writes pass straight
// through to it, reads come from the subscriber's private queue instead of
// the shared physical inbox.
type busRadio struct {
	real radio.Radio
	ch   <-chan radio.Frame
}

func (b *busRadio) Broadcast(channel string, data []byte) error {
	return b.real.Broadcast(channel, data)
}

func (b *busRadio) Unicast(channel, toNodeID string, data []byte) error {
	return b.real.Unicast(channel, toNodeID, data)
}

func (b *busRadio) Receive(ctx context.Context) (radio.Frame, error) {
	select {
	case f := <-b.ch:
		return f, nil
	case <-ctx.Done():
		return radio.Frame{}, ctx.Err()
	}
}

// Close is a no-op: the real radio's lifetime belongs to whoever built the
// Node, not to any one subsystem's view of it.
func (b *busRadio) Close() error { return nil }
