package registry

import (
	"path/filepath"
	"testing"
)

func TestUpsertIdempotent(t *testing.T) {
	r := New(Config{})

	r.Upsert("peer-1", "light-1", []byte("secretA"), "fpA")
	e, ok := r.Get("peer-1")
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if e.Label != "light-1" || string(e.Secret) != "secretA" || e.Status != StatusActive {
		t.Fatalf("unexpected entry: %+v", e)
	}

	// Upsert again regardless of prior state: still idempotent.
	r.Upsert("peer-1", "light-1-renamed", []byte("secretB"), "fpB")
	e2, _ := r.Get("peer-1")
	if e2.Label != "light-1-renamed" || string(e2.Secret) != "secretB" || e2.Status != StatusActive {
		t.Fatalf("unexpected entry after second upsert: %+v", e2)
	}
}

func TestGetSecretOnlyActive(t *testing.T) {
	r := New(Config{})
	r.Upsert("peer-1", "l", []byte("sec"), "fp")

	if _, ok := r.GetSecret("peer-1"); !ok {
		t.Fatal("expected secret for active entry")
	}

	if err := r.Revoke("peer-1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.GetSecret("peer-1"); ok {
		t.Fatal("expected no secret for revoked entry")
	}
	if r.IsAuthorized("peer-1") {
		t.Fatal("revoked peer should not be authorized")
	}
}

func TestPairingRollbackNoPriorEntry(t *testing.T) {
	r := New(Config{})

	if err := r.StashPending("peer-new", []byte("sec"), "label"); err != nil {
		t.Fatal(err)
	}
	if err := r.CancelPending("peer-new"); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Get("peer-new"); ok {
		t.Fatal("expected no entry after cancelling a pairing with no prior entry")
	}
}

func TestPairingRollbackRestoresPriorEntry(t *testing.T) {
	r := New(Config{})
	r.Upsert("peer-1", "old-label", []byte("old-secret"), "fp-old")

	if err := r.StashPending("peer-1", []byte("new-secret"), "new-label"); err != nil {
		t.Fatal(err)
	}
	if err := r.CancelPending("peer-1"); err != nil {
		t.Fatal(err)
	}

	e, ok := r.Get("peer-1")
	if !ok {
		t.Fatal("expected prior entry restored")
	}
	if e.Label != "old-label" || string(e.Secret) != "old-secret" {
		t.Fatalf("rollback did not restore exactly: %+v", e)
	}
}

func TestPairingCommit(t *testing.T) {
	r := New(Config{})

	if err := r.StashPending("peer-1", []byte("sec"), "label"); err != nil {
		t.Fatal(err)
	}
	entry, err := r.CommitPending("peer-1", "final-label", "fp")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Label != "final-label" || entry.Status != StatusActive {
		t.Fatalf("unexpected committed entry: %+v", entry)
	}
	if r.HasPending("peer-1") {
		t.Fatal("pending slot should be cleared after commit")
	}

	if _, err := r.CommitPending("peer-1", "x", "fp"); err != ErrNoPending {
		t.Fatalf("expected ErrNoPending on double-commit, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")

	r := New(Config{Path: path})
	r.Upsert("peer-1", "label-1", []byte("secret-1"), "fp-1")
	r.Upsert("peer-2", "label-2", []byte("secret-2"), "fp-2")
	if err := r.Revoke("peer-2"); err != nil {
		t.Fatal(err)
	}

	if err := r.Save(); err != nil {
		t.Fatal(err)
	}

	r2 := New(Config{Path: path})
	if err := r2.Load(); err != nil {
		t.Fatal(err)
	}

	e1, ok := r2.Get("peer-1")
	if !ok || e1.Label != "label-1" || string(e1.Secret) != "secret-1" {
		t.Fatalf("peer-1 did not round trip: %+v", e1)
	}
	e2, ok := r2.Get("peer-2")
	if !ok || e2.Status != StatusRevoked {
		t.Fatalf("peer-2 revoked status did not round trip: %+v", e2)
	}
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	r := New(Config{Path: filepath.Join(dir, "does-not-exist.yaml")})
	if err := r.Load(); err != nil {
		t.Fatalf("missing file should not be an error, got %v", err)
	}
}
