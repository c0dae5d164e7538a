package config

import (
	"path/filepath"
	"testing"
)

func TestEnrollAsWorkerSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	s := New(path, nil)
	s.SetIdentity("node-1", "kitchen-pi", false)
	s.EnrollAsWorker("swarm-1", []byte("swarmsecret"), "fp-1234-5678-9abc", "queen-1", []byte("peersecret"))

	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	s2 := New(path, nil)
	if err := s2.Load(); err != nil {
		t.Fatal(err)
	}

	got := s2.Get()
	if got.NodeID != "node-1" || got.Label != "kitchen-pi" || got.IsQueen {
		t.Fatalf("identity did not round trip: %+v", got)
	}
	if !got.Enrolled || got.SwarmID != "swarm-1" || string(got.SwarmSecret) != "swarmsecret" {
		t.Fatalf("enrollment did not round trip: %+v", got)
	}
	if got.QueenNodeID != "queen-1" || string(got.PeerSecret) != "peersecret" {
		t.Fatalf("peer binding did not round trip: %+v", got)
	}
}

func TestEnrollAsQueenSetsIsQueenAndSelfQueenID(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "config.yaml"), nil)
	s.SetIdentity("queen-node", "living-room-hub", true)
	s.EnrollAsQueen("swarm-9", []byte("secret"), "fp-aaaa-bbbb-cccc")

	got := s.Get()
	if !got.IsQueen || got.QueenNodeID != "queen-node" {
		t.Fatalf("expected queen self-reference, got %+v", got)
	}
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "does-not-exist.yaml"), nil)
	if err := s.Load(); err != nil {
		t.Fatalf("missing file should not be an error, got %v", err)
	}
}

func TestUnknownKeysSurviveSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	s := New(path, nil)
	s.SetIdentity("node-1", "kitchen-pi", false)
	s.version = 3
	s.extra = map[string]any{"future_field": "kept"}
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	s2 := New(path, nil)
	if err := s2.Load(); err != nil {
		t.Fatal(err)
	}
	if s2.version != 3 {
		t.Fatalf("expected version to round trip, got %d", s2.version)
	}
	if v, ok := s2.extra["future_field"]; !ok || v != "kept" {
		t.Fatalf("expected unknown key to survive round trip, got %+v", s2.extra)
	}
}

func TestGetReturnsIndependentClone(t *testing.T) {
	s := New("unused.yaml", nil)
	s.SetIdentity("n", "l", false)
	s.EnrollAsWorker("sw", []byte("secret"), "fp", "q", []byte("peer"))

	got := s.Get()
	got.SwarmSecret[0] = 0xFF

	got2 := s.Get()
	if got2.SwarmSecret[0] == 0xFF {
		t.Fatal("mutating a returned clone should not affect the store's internal state")
	}
}
