package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shelfos/shelfos/pkg/config"
	"github.com/shelfos/shelfos/pkg/pairing"
	"github.com/shelfos/shelfos/pkg/peripheral"
	"github.com/shelfos/shelfos/pkg/queenauth"
	"github.com/shelfos/shelfos/pkg/radio/testradio"
	"github.com/shelfos/shelfos/pkg/registry"
)

func newConfigStore(t *testing.T) *config.Store {
	t.Helper()
	dir := t.TempDir()
	return config.New(filepath.Join(dir, "config.yaml"), nil)
}

// TestWorkerEndToEndJoinDiscoverAndCall pairs a worker to a queen, brings up
// a full scheduler.Node on each side, and asserts the worker's peripheral is
// discoverable and callable from the queen.
func TestWorkerEndToEndJoinDiscoverAndCall(t *testing.T) {
	net := testradio.NewNetwork(testradio.Condition{})
	queenRadio, err := net.Join("queen-1")
	if err != nil {
		t.Fatal(err)
	}
	workerRadio, err := net.Join("worker-1")
	if err != nil {
		t.Fatal(err)
	}
	defer queenRadio.Close()
	defer workerRadio.Close()

	reg := registry.New(registry.Config{})
	authority := queenauth.New(queenauth.Config{Registry: reg})
	if _, err := authority.CreateSwarm("test swarm", "queen-1"); err != nil {
		t.Fatal(err)
	}

	queenCfg := newConfigStore(t)
	queenCfg.SetIdentity("queen-1", "queen", true)
	id := authority.Identity()
	queenCfg.EnrollAsQueen(id.SwarmID, id.SwarmSecret, id.Fingerprint)
	if err := queenCfg.Save(); err != nil {
		t.Fatal(err)
	}

	workerCfg := newConfigStore(t)
	workerCfg.SetIdentity("worker-1", "kitchen-pi", false)

	listener := pairing.NewListener(queenRadio, nil)
	listener.Start(context.Background())
	defer listener.Stop()

	worker := pairing.NewWorker(pairing.WorkerConfig{
		NodeID:            "worker-1",
		Label:             "kitchen-pi",
		Radio:             workerRadio,
		Config:            workerCfg,
		AdvertiseInterval: 30 * time.Millisecond,
	})

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Run(workerCtx) }()

	deadline := time.Now().Add(2 * time.Second)
	var candidate *pairing.Candidate
	for time.Now().Before(deadline) {
		if c, ok := listener.Candidate("worker-1"); ok {
			candidate = c
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if candidate == nil {
		t.Fatal("queen never observed worker-1's PAIR_READY")
	}

	session := pairing.NewSession(pairing.SessionConfig{
		QueenNodeID: "queen-1",
		Radio:       queenRadio,
		Authority:   authority,
		Timeout:     2 * time.Second,
	})
	if err := session.Select(candidate, candidate.Code); err != nil {
		t.Fatal(err)
	}
	if err := session.Deliver(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-workerDone:
		if err != nil {
			t.Fatalf("worker.Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker never joined")
	}

	queenHost := peripheral.NewHost()
	workerHost := peripheral.NewHost()
	workerHost.Attach(&peripheral.Attachable{
		Name: "me_bridge_0",
		Type: "energy_meter",
		Methods: map[string]peripheral.Method{
			"getStoredEnergy": func([]any) ([]any, error) { return []any{int64(500000)}, nil },
		},
	})

	queenNode, err := NewNode(Config{
		NodeID:           "queen-1",
		Label:            "queen",
		Radio:            queenRadio,
		ConfigStore:      queenCfg,
		PeripheralHost:   queenHost,
		Registry:         reg,
		Authority:        authority,
		AnnounceInterval: 30 * time.Millisecond,
		AnnounceTTL:      2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	workerNode, err := NewNode(Config{
		NodeID:           "worker-1",
		Label:            "kitchen-pi",
		Radio:            workerRadio,
		ConfigStore:      workerCfg,
		PeripheralHost:   workerHost,
		AnnounceInterval: 30 * time.Millisecond,
		AnnounceTTL:      2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queenNode.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer queenNode.Stop()
	if err := workerNode.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer workerNode.Stop()

	deadline = time.Now().Add(2 * time.Second)
	var found bool
	for time.Now().Before(deadline) {
		if _, ok := queenNode.discovery.Locate("me_bridge_0"); ok {
			found = true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !found {
		t.Fatal("queen never discovered worker-1's me_bridge_0")
	}

	values, err := queenNode.Call(context.Background(), "me_bridge_0", "getStoredEnergy", nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(values) != 1 || values[0].(int64) != 500000 {
		t.Fatalf("unexpected call result: %+v", values)
	}

	snap := queenNode.Telemetry()
	if snap[EventCall] == 0 {
		t.Fatal("expected CALL telemetry to be bumped")
	}
	if snap[EventRX] == 0 {
		t.Fatal("expected RX telemetry to be bumped")
	}
}

// TestStartFailsWhenNotEnrolled asserts a never-paired node's Config (not
// yet Enrolled) can't be started into a running scheduler.
func TestStartFailsWhenNotEnrolled(t *testing.T) {
	net := testradio.NewNetwork(testradio.Condition{})
	r, err := net.Join("fresh-node")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	cfgStore := newConfigStore(t)
	cfgStore.SetIdentity("fresh-node", "new", false)

	node, err := NewNode(Config{
		NodeID:         "fresh-node",
		Radio:          r,
		ConfigStore:    cfgStore,
		PeripheralHost: peripheral.NewHost(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := node.Start(context.Background()); err != ErrNotEnrolled {
		t.Fatalf("expected ErrNotEnrolled, got %v", err)
	}
}

// TestWorkerCannotRevokeOrRemove asserts registry-mutating operations are
// rejected on a worker node (no Registry wired).
func TestWorkerCannotRevokeOrRemove(t *testing.T) {
	net := testradio.NewNetwork(testradio.Condition{})
	r, err := net.Join("worker-only")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	cfgStore := newConfigStore(t)
	cfgStore.SetIdentity("worker-only", "w", false)
	cfgStore.EnrollAsWorker("swarm", []byte("secret"), "fp", "queen-1", []byte("peer-secret"))

	node, err := NewNode(Config{
		NodeID:         "worker-only",
		Radio:          r,
		ConfigStore:    cfgStore,
		PeripheralHost: peripheral.NewHost(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := node.Revoke("someone"); err != ErrNotQueen {
		t.Fatalf("expected ErrNotQueen, got %v", err)
	}
	if err := node.Remove("someone"); err != ErrNotQueen {
		t.Fatalf("expected ErrNotQueen, got %v", err)
	}
	if node.Candidates() != nil {
		t.Fatal("expected no candidates on a worker node")
	}
}
