// Package peripheral provides the concrete peripheral primitive the
// spec assumes the host runtime gives for free: an in-process table of
// attached peripherals, each exposing a name, a type string, and a
// "call method by name with an argument list" dispatch table. It also
// provides the Directory that wraps that primitive with the enumeration
// operations the rest of the fabric depends on.
package peripheral

import "sync"

// Method is a peripheral method: called with positional arguments, returns
// a result tuple or an error. The host must never crash on a bad call; RPC
// host-side code turns a returned error into a RESULT with ok=false.
type Method func(args []any) ([]any, error)

// Attachable is a peripheral ready to be attached to a Host.
type Attachable struct {
	Name    string
	Type    string
	Methods map[string]Method
}

// Host is the in-process peripheral registry a node runs locally.
type Host struct {
	mu          sync.RWMutex
	peripherals map[string]*Attachable
}

// NewHost creates an empty Host.
func NewHost() *Host {
	return &Host{peripherals: make(map[string]*Attachable)}
}

// Attach registers a peripheral, replacing any existing one with the same
// name.
func (h *Host) Attach(p *Attachable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peripherals[p.Name] = p
}

// Detach removes a peripheral by name. No-op if it isn't attached.
func (h *Host) Detach(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peripherals, name)
}

// Snapshot returns a point-in-time copy of the attached peripheral table.
// Enumeration is snapshot-in-time; callers must re-scan to observe
// attach/detach that happens after the snapshot is taken.
func (h *Host) Snapshot() map[string]*Attachable {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]*Attachable, len(h.peripherals))
	for k, v := range h.peripherals {
		out[k] = v
	}
	return out
}

// Invoke calls method on the named peripheral with args. Returns
// ErrNoSuchPeripheral / ErrNoSuchMethod if resolution fails.
func (h *Host) Invoke(name, method string, args []any) ([]any, error) {
	h.mu.RLock()
	p, exists := h.peripherals[name]
	h.mu.RUnlock()

	if !exists {
		return nil, ErrNoSuchPeripheral
	}
	fn, exists := p.Methods[method]
	if !exists {
		return nil, ErrNoSuchMethod
	}
	return fn(args)
}
