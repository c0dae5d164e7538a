// Package registry implements the Trust Registry: a persistent,
// mutex-guarded dictionary mapping peer node ID to per-peer shared secret
// and status.
//
// Structurally this follows fabric.Table from the teacher codebase — a
// RWMutex-guarded map with clone-on-read accessors and a ForEach sweep hook
// — generalized from fabric-index keys to peer-node-ID keys and from
// certificate material to a flat shared secret.
package registry

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

// Registry is the in-memory Trust Registry. All methods are safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	pending map[string]*pendingPairing
	path    string
	log     logging.LeveledLogger
}

// pendingPairing is the Pending Pairing record kept while a reserve/commit/
// cancel sequence is in flight. It lives alongside the registry because
// cancel must be able to restore exactly what was there before reserve.
type pendingPairing struct {
	proposedSecret []byte
	proposedLabel  string
	priorSnapshot  *Entry // nil if there was no prior entry
}

// Config configures a new Registry.
type Config struct {
	// Path is the on-disk file the registry is saved to and loaded from.
	// Required for Save/Load; an empty path is valid for a purely in-memory
	// registry (useful in tests).
	Path string

	// LoggerFactory creates the registry's logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// New creates an empty Registry.
func New(config Config) *Registry {
	r := &Registry{
		entries: make(map[string]*Entry),
		pending: make(map[string]*pendingPairing),
		path:    config.Path,
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("registry")
	}
	return r
}

// Add inserts a brand-new active entry. Returns an error if one already
// exists for peerID — callers that want replace-or-create semantics should
// use Upsert.
func (r *Registry) Add(peerID, label string, secret []byte, fingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[peerID]; exists {
		return ErrAlreadyExists
	}
	r.entries[peerID] = &Entry{
		PeerID:      peerID,
		Label:       label,
		Secret:      append([]byte(nil), secret...),
		Fingerprint: fingerprint,
		AddedAt:     time.Now(),
		Status:      StatusActive,
	}
	return nil
}

// Upsert replaces label and/or secret for peerID, resets status to active,
// and refreshes added-at. Creates the entry if it doesn't exist. This makes
// re-pairing an already-authorized worker idempotent (spec 4.4, 4.6).
func (r *Registry) Upsert(peerID, label string, secret []byte, fingerprint string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[peerID] = &Entry{
		PeerID:      peerID,
		Label:       label,
		Secret:      append([]byte(nil), secret...),
		Fingerprint: fingerprint,
		AddedAt:     time.Now(),
		Status:      StatusActive,
	}
}

// Get returns a clone of the entry for peerID, or (nil, false) if none
// exists.
func (r *Registry) Get(peerID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[peerID]
	if !exists {
		return nil, false
	}
	return e.Clone(), true
}

// GetSecret returns the peer's secret only if its status is active.
func (r *Registry) GetSecret(peerID string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[peerID]
	if !exists || e.Status != StatusActive {
		return nil, false
	}
	return append([]byte(nil), e.Secret...), true
}

// IsAuthorized reports whether peerID has an active entry.
func (r *Registry) IsAuthorized(peerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[peerID]
	return exists && e.Status == StatusActive
}

// Revoke flips peerID's status to revoked and records the revocation time.
// Returns ErrNotFound if no entry exists.
func (r *Registry) Revoke(peerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[peerID]
	if !exists {
		return ErrNotFound
	}
	now := time.Now()
	e.Status = StatusRevoked
	e.RevokedAt = &now
	return nil
}

// Remove deletes the entry for peerID outright.
func (r *Registry) Remove(peerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[peerID]; !exists {
		return ErrNotFound
	}
	delete(r.entries, peerID)
	return nil
}

// ListActive returns clones of every entry with status active.
func (r *Registry) ListActive() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Status == StatusActive {
			result = append(result, e.Clone())
		}
	}
	return result
}

// CountActive returns the number of entries with status active.
func (r *Registry) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.Status == StatusActive {
			n++
		}
	}
	return n
}

// ForEach iterates over every entry in the registry, read-only. If fn
// returns an error, iteration stops and that error is returned.
func (r *Registry) ForEach(fn func(*Entry) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// --- Pending pairing lifecycle (supports Queen Authority) ---

// StashPending records a pending pairing for peerID, snapshotting any prior
// entry for rollback. Returns ErrPendingExists if one is already stashed.
func (r *Registry) StashPending(peerID string, proposedSecret []byte, proposedLabel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pending[peerID]; exists {
		return ErrPendingExists
	}

	var snapshot *Entry
	if prior, exists := r.entries[peerID]; exists {
		snapshot = prior.Clone()
	}

	r.pending[peerID] = &pendingPairing{
		proposedSecret: append([]byte(nil), proposedSecret...),
		proposedLabel:  proposedLabel,
		priorSnapshot:  snapshot,
	}
	return nil
}

// PendingSecret returns the proposed secret for peerID's pending pairing, if
// any — used by Queen Authority's reserve to reuse an existing secret on
// re-pair.
func (r *Registry) PendingSecret(peerID string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.pending[peerID]
	if !exists {
		return nil, false
	}
	return append([]byte(nil), p.proposedSecret...), true
}

// CommitPending upserts the stashed pending secret/label into the registry
// as an active entry, clears the pending slot, and returns the committed
// entry. Returns ErrNoPending if nothing is stashed for peerID.
func (r *Registry) CommitPending(peerID string, finalLabel string, fingerprint string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.pending[peerID]
	if !exists {
		return nil, ErrNoPending
	}

	label := finalLabel
	if label == "" {
		label = p.proposedLabel
	}

	e := &Entry{
		PeerID:      peerID,
		Label:       label,
		Secret:      p.proposedSecret,
		Fingerprint: fingerprint,
		AddedAt:     time.Now(),
		Status:      StatusActive,
	}
	r.entries[peerID] = e
	delete(r.pending, peerID)
	return e.Clone(), nil
}

// CancelPending restores the snapshot taken at StashPending time (or removes
// the entry if there was none) and clears the pending slot. Returns
// ErrNoPending if nothing is stashed for peerID.
func (r *Registry) CancelPending(peerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.pending[peerID]
	if !exists {
		return ErrNoPending
	}

	if p.priorSnapshot != nil {
		r.entries[peerID] = p.priorSnapshot
	} else {
		delete(r.entries, peerID)
	}
	delete(r.pending, peerID)
	return nil
}

// HasPending reports whether peerID currently has a pending pairing.
func (r *Registry) HasPending(peerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.pending[peerID]
	return exists
}

// --- Persistence ---

// onDiskFormat is the serialized shape of the registry file: a map with a
// version field, tolerant of unknown additions on round-trip.
type onDiskFormat struct {
	Version int              `yaml:"version"`
	Entries map[string]Entry `yaml:"entries"`
	// Extra preserves any keys this version of the code doesn't know about,
	// so round-tripping through Save/Load doesn't drop forward-compatible
	// additions from a newer writer.
	Extra map[string]any `yaml:",inline"`
}

const registryFileVersion = 1

// Save persists the registry to r.path using a temp-file-then-rename
// pattern, so the write is atomic from any concurrent reader's point of
// view (rename-over, matching spec 4.4's invariant).
func (r *Registry) Save() error {
	r.mu.RLock()
	snapshot := make(map[string]Entry, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = *v.Clone()
	}
	path := r.path
	r.mu.RUnlock()

	if path == "" {
		return nil
	}

	out := onDiskFormat{Version: registryFileVersion, Entries: snapshot}
	if prev, err := os.ReadFile(path); err == nil {
		var in onDiskFormat
		if yaml.Unmarshal(prev, &in) == nil {
			out.Extra = in.Extra
		}
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".registry-*.tmp")
	if err != nil {
		return ErrCannotOpen
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return ErrCannotOpen
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return ErrCannotOpen
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return ErrCannotOpen
	}

	if r.log != nil {
		r.log.Debugf("registry: saved %d entries to %s", len(snapshot), path)
	}
	return nil
}

// Load reads the registry from r.path. A missing file is not an error (the
// registry starts empty); a file that fails to parse is ErrInvalidFile.
func (r *Registry) Load() error {
	if r.path == "" {
		return nil
	}

	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return ErrCannotOpen
	}

	var in onDiskFormat
	if err := yaml.Unmarshal(data, &in); err != nil {
		return ErrInvalidFile
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*Entry, len(in.Entries))
	for k, v := range in.Entries {
		entry := v
		r.entries[k] = entry.Clone()
	}
	return nil
}

// Delete removes the registry file from disk entirely.
func (r *Registry) Delete() error {
	if r.path == "" {
		return nil
	}
	err := os.Remove(r.path)
	if err != nil && !os.IsNotExist(err) {
		return ErrCannotOpen
	}
	return nil
}
