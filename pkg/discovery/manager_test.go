package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/shelfos/shelfos/pkg/envelope"
	"github.com/shelfos/shelfos/pkg/peripheral"
	"github.com/shelfos/shelfos/pkg/radio/testradio"
)

func sharedLookup(secret []byte, authorized map[string]bool) envelope.SecretLookup {
	return func(senderID string) ([]byte, bool) {
		if !authorized[senderID] {
			return nil, false
		}
		return secret, true
	}
}

func TestAnnounceIsObservedAsPeerWithPeripherals(t *testing.T) {
	net := testradio.NewNetwork(testradio.Condition{})
	radioA, err := net.Join("node-a")
	if err != nil {
		t.Fatal(err)
	}
	radioB, err := net.Join("node-b")
	if err != nil {
		t.Fatal(err)
	}
	defer radioA.Close()
	defer radioB.Close()

	secret := []byte("swarm-secret")
	lookup := sharedLookup(secret, map[string]bool{"node-a": true, "node-b": true})

	hostA := peripheral.NewHost()
	hostA.Attach(&peripheral.Attachable{
		Name: "me_bridge_0",
		Type: "energy_meter",
		Methods: map[string]peripheral.Method{
			"getStoredEnergy": func([]any) ([]any, error) { return []any{int64(1)}, nil },
		},
	})
	dirA := peripheral.NewDirectory(hostA)

	hostB := peripheral.NewHost()
	dirB := peripheral.NewDirectory(hostB)

	mgrA, err := NewManager(ManagerConfig{
		NodeID:           "node-a",
		Label:            "kitchen",
		Radio:            radioA,
		Directory:        dirA,
		EnvStore:         envelope.NewStore(nil),
		AuthSecret:       lookup,
		AnnounceInterval: 30 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	mgrB, err := NewManager(ManagerConfig{
		NodeID:           "node-b",
		Label:            "hub",
		Radio:            radioB,
		Directory:        dirB,
		EnvStore:         envelope.NewStore(nil),
		AuthSecret:       lookup,
		AnnounceInterval: 30 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgrA.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer mgrA.Close()
	if err := mgrB.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer mgrB.Close()

	deadline := time.Now().Add(2 * time.Second)
	var nodeID string
	for time.Now().Before(deadline) {
		if id, ok := mgrB.Locate("me_bridge_0"); ok {
			nodeID = id
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if nodeID != "node-a" {
		t.Fatalf("expected node-b to resolve me_bridge_0 to node-a, got %q", nodeID)
	}

	desc, ok := mgrB.Resolve("me_bridge_0")
	if !ok {
		t.Fatal("expected Resolve to find me_bridge_0")
	}
	if desc.Type != "energy_meter" || len(desc.Methods) != 1 || desc.Methods[0] != "getStoredEnergy" {
		t.Fatalf("unexpected descriptor: %+v", desc)
	}
}

func TestLocalPeripheralNeverShadowedByRemoteAnnounce(t *testing.T) {
	net := testradio.NewNetwork(testradio.Condition{})
	radioA, err := net.Join("a")
	if err != nil {
		t.Fatal(err)
	}
	radioB, err := net.Join("b")
	if err != nil {
		t.Fatal(err)
	}
	defer radioA.Close()
	defer radioB.Close()

	secret := []byte("s")
	lookup := sharedLookup(secret, map[string]bool{"a": true, "b": true})

	hostA := peripheral.NewHost()
	hostA.Attach(&peripheral.Attachable{Name: "shared_name", Type: "remote_type", Methods: map[string]peripheral.Method{}})
	hostB := peripheral.NewHost()
	hostB.Attach(&peripheral.Attachable{Name: "shared_name", Type: "local_type", Methods: map[string]peripheral.Method{}})

	mgrA, _ := NewManager(ManagerConfig{
		NodeID: "a", Radio: radioA, Directory: peripheral.NewDirectory(hostA),
		EnvStore: envelope.NewStore(nil), AuthSecret: lookup, AnnounceInterval: 20 * time.Millisecond,
	})
	mgrB, _ := NewManager(ManagerConfig{
		NodeID: "b", Radio: radioB, Directory: peripheral.NewDirectory(hostB),
		EnvStore: envelope.NewStore(nil), AuthSecret: lookup, AnnounceInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgrA.Start(ctx)
	defer mgrA.Close()
	mgrB.Start(ctx)
	defer mgrB.Close()

	time.Sleep(300 * time.Millisecond)

	if _, ok := mgrB.Locate("shared_name"); ok {
		t.Fatal("expected local-first rule to prevent a remote entry shadowing a local peripheral")
	}
}

func TestNewManagerRejectsTightTTL(t *testing.T) {
	_, err := NewManager(ManagerConfig{
		NodeID:           "a",
		Radio:            testradioMustJoin(t, "a"),
		Directory:        peripheral.NewDirectory(peripheral.NewHost()),
		EnvStore:         envelope.NewStore(nil),
		AuthSecret:       sharedLookup([]byte("s"), map[string]bool{"a": true}),
		AnnounceInterval: time.Second,
		AnnounceTTL:      5 * time.Second,
	})
	if err != ErrInvalidConfig {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func testradioMustJoin(t *testing.T, nodeID string) *testradio.Radio {
	t.Helper()
	net := testradio.NewNetwork(testradio.Condition{})
	r, err := net.Join(nodeID)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestPeerEvictedAfterTTLElapses(t *testing.T) {
	tbl := newPeerTable(func() map[string]struct{} { return nil })
	tbl.observe("stale-node", "l", nil, time.Now().Add(-time.Hour))
	tbl.sweep(time.Now(), time.Second)

	for _, p := range tbl.list() {
		if p.NodeID == "stale-node" {
			t.Fatal("expected stale peer to be evicted")
		}
	}
}
