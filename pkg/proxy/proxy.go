// Package proxy synthesizes a locally-callable object over a remote
// peripheral's method set — the facade collaborators use so a remote
// peripheral looks and behaves like a local one, short of true method
// dispatch by reflection.
//
// Grounded on the spec's own "Proxy as a synthesized object" design note and
// on im/dispatch.go's Dispatcher: a small interface (there: ReadAttribute/
// WriteAttribute/InvokeCommand; here: Call) bridging a generic caller to a
// concrete backend, rather than a full RPC stub generator.
package proxy

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shelfos/shelfos/pkg/peripheral"
	"github.com/shelfos/shelfos/pkg/rpc"
)

// Caller is the interface a Proxy dispatches Call through. *rpc.Client
// satisfies it; tests may supply a fake.
type Caller interface {
	Call(ctx context.Context, peripheralName, method string, args []any) ([]any, error)
}

// Resolver re-queries discovery for a peripheral's current descriptor —
// used by Reconnect. Returns (nil, false) if the peripheral can no longer be
// found anywhere in the swarm.
type Resolver func(name string) (*peripheral.Descriptor, bool)

// Proxy is a synthesized callable object for one remote peripheral.
type Proxy struct {
	caller   Caller
	resolve  Resolver
	name     string
	typ      string
	methods  []string
	methodOK map[string]bool

	mu        sync.RWMutex
	connected atomic.Bool
}

// New creates a Proxy for a peripheral discovery has described.
func New(desc *peripheral.Descriptor, caller Caller, resolve Resolver) *Proxy {
	methodOK := make(map[string]bool, len(desc.Methods))
	for _, m := range desc.Methods {
		methodOK[m] = true
	}
	p := &Proxy{
		caller:   caller,
		resolve:  resolve,
		name:     desc.Name,
		typ:      desc.Type,
		methods:  append([]string(nil), desc.Methods...),
		methodOK: methodOK,
	}
	p.connected.Store(true)
	return p
}

// Call invokes method with args against the remote peripheral. Returns
// rpc.ErrNoSuchMethod locally (no network round trip) if method isn't in
// the descriptor's method set.
func (p *Proxy) Call(ctx context.Context, method string, args []any) ([]any, error) {
	p.mu.RLock()
	ok := p.methodOK[method]
	p.mu.RUnlock()
	if !ok {
		return nil, rpc.ErrNoSuchMethod
	}

	values, err := p.caller.Call(ctx, p.name, method, args)
	switch err {
	case rpc.ErrTimeout, rpc.ErrPeripheralUnreachable:
		p.connected.Store(false)
	}
	return values, err
}

// IsConnected reports the proxy's connection flag. It flips to false after
// a Call returns Timeout/PeripheralUnreachable and back to true only after a
// successful Reconnect; other Call errors leave it unchanged.
func (p *Proxy) IsConnected() bool {
	return p.connected.Load()
}

// GetType returns the peripheral's type string.
func (p *Proxy) GetType() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.typ
}

// GetName returns the peripheral's name.
func (p *Proxy) GetName() string {
	return p.name
}

// GetMethods returns the peripheral's method set.
func (p *Proxy) GetMethods() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.methods...)
}

// Reconnect re-queries discovery for this peripheral's descriptor. On
// success, the method set is refreshed and IsConnected flips back to true.
func (p *Proxy) Reconnect() error {
	desc, ok := p.resolve(p.name)
	if !ok {
		return rpc.ErrPeripheralUnreachable
	}

	methodOK := make(map[string]bool, len(desc.Methods))
	for _, m := range desc.Methods {
		methodOK[m] = true
	}

	p.mu.Lock()
	p.typ = desc.Type
	p.methods = append([]string(nil), desc.Methods...)
	p.methodOK = methodOK
	p.mu.Unlock()

	p.connected.Store(true)
	return nil
}
