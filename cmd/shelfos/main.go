package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pion/logging"

	"github.com/shelfos/shelfos/pkg/pairing"
	"github.com/shelfos/shelfos/pkg/peripheral"
	"github.com/shelfos/shelfos/pkg/queenauth"
	"github.com/shelfos/shelfos/pkg/radio/udpradio"
	"github.com/shelfos/shelfos/pkg/registry"
	"github.com/shelfos/shelfos/pkg/scheduler"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "create-swarm":
		cmdCreateSwarm(args)
	case "join":
		cmdJoin(args)
	case "add-computer":
		cmdAddComputer(args)
	case "serve":
		cmdServe(args)
	case "peers":
		cmdPeers(args)
	case "call":
		cmdCall(args)
	case "revoke":
		cmdRevoke(args)
	case "remove":
		cmdRemove(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "shelfos: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: shelfos <command> [flags]

Commands:
  create-swarm   Bootstrap this node as the queen of a brand-new swarm
  join           Bootstrap this node as a worker, pairing into an existing swarm
  add-computer   Queen-side: listen for a worker's pairing code and admit it
  serve          Run this node's scheduler until interrupted
  peers          Discover and list the swarm's peers and their peripherals
  call           Invoke a method on a remote peripheral
  revoke         Queen-side: revoke a peer's trust (keeps its registry entry)
  remove         Queen-side: delete a peer's registry entry outright`)
}

func newUDPRadio(nodeID, group string, lf logging.LoggerFactory) *udpradio.Radio {
	r, err := udpradio.New(udpradio.Config{NodeID: nodeID, Group: group, LoggerFactory: lf})
	if err != nil {
		fatalf("open radio: %v", err)
	}
	return r
}

// cmdCreateSwarm mints a new swarm identity, persists it, and prints the
// fingerprint the operator reads aloud to confirm a worker paired correctly.
func cmdCreateSwarm(args []string) {
	fs := flag.NewFlagSet("create-swarm", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./shelfos-data", "directory to persist node state in")
	nodeID := fs.String("node-id", "", "this node's unique ID (required)")
	label := fs.String("label", "queen", "this node's human-readable label")
	swarmName := fs.String("swarm-name", "My Home", "display name for the new swarm")
	fs.Parse(args)

	if *nodeID == "" {
		fatalf("create-swarm: -node-id is required")
	}

	lf := logging.NewDefaultLoggerFactory()
	store, err := loadConfigStore(*dataDir, lf)
	if err != nil {
		fatalf("%v", err)
	}
	if store.Get().Enrolled {
		fatalf("create-swarm: %s is already enrolled in a swarm", *dataDir)
	}

	reg, err := loadRegistry(*dataDir, lf)
	if err != nil {
		fatalf("%v", err)
	}

	authority := queenauth.New(queenauth.Config{Registry: reg, LoggerFactory: lf})
	identity, err := authority.CreateSwarm(*swarmName, *nodeID)
	if err != nil {
		fatalf("create swarm: %v", err)
	}

	store.SetIdentity(*nodeID, *label, true)
	store.EnrollAsQueen(identity.SwarmID, identity.SwarmSecret, identity.Fingerprint)
	if err := store.Save(); err != nil {
		fatalf("save config: %v", err)
	}
	if err := reg.Save(); err != nil {
		fatalf("save registry: %v", err)
	}

	fmt.Println("Swarm created.")
	fmt.Printf("  Swarm ID:    %s\n", identity.SwarmID)
	fmt.Printf("  Fingerprint: %s\n", identity.Fingerprint)
	fmt.Println("Run `shelfos serve` to start this queen, or `shelfos add-computer` to pair a worker.")
}

// cmdJoin runs the worker-side pairing state machine to completion: it
// advertises a pairing code until the queen delivers credentials, then
// persists them. Blocks until joined or interrupted.
func cmdJoin(args []string) {
	fs := flag.NewFlagSet("join", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./shelfos-data", "directory to persist node state in")
	nodeID := fs.String("node-id", "", "this node's unique ID (required)")
	label := fs.String("label", "", "this node's human-readable label (required)")
	group := fs.String("group", "", "multicast group:port (defaults to udpradio.DefaultGroup)")
	fs.Parse(args)

	if *nodeID == "" || *label == "" {
		fatalf("join: -node-id and -label are required")
	}

	lf := logging.NewDefaultLoggerFactory()
	store, err := loadConfigStore(*dataDir, lf)
	if err != nil {
		fatalf("%v", err)
	}
	if store.Get().Enrolled {
		fatalf("join: %s is already enrolled in a swarm", *dataDir)
	}
	store.SetIdentity(*nodeID, *label, false)

	r := newUDPRadio(*nodeID, *group, lf)
	defer r.Close()

	worker := pairing.NewWorker(pairing.WorkerConfig{
		NodeID: *nodeID,
		Label:  *label,
		Radio:  r,
		Config: store,
		Callbacks: pairing.WorkerCallbacks{
			OnStateChanged: func(old, new pairing.WorkerState) {
				fmt.Printf("  [%s -> %s]\n", old, new)
			},
			OnProgress: func(percent int, message string) {
				fmt.Printf("  (%3d%%) %s\n", percent, message)
			},
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Advertising for pairing. On the queen, run `shelfos add-computer` and type the code below:")
	go func() {
		time.Sleep(50 * time.Millisecond) // let Run generate the code first
		fmt.Printf("  Pairing code: %s\n", worker.Code())
	}()

	if err := worker.Run(ctx); err != nil {
		fatalf("pairing failed: %v", err)
	}
	fmt.Printf("Joined the swarm. Fingerprint: %s (confirm this matches the queen's)\n", store.Get().SwarmFingerprint)
}

// cmdAddComputer listens for PAIR_READY candidates for a window, then pairs
// the one the operator names.
func cmdAddComputer(args []string) {
	fs := flag.NewFlagSet("add-computer", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./shelfos-data", "directory to persist node state in")
	group := fs.String("group", "", "multicast group:port (defaults to udpradio.DefaultGroup)")
	listen := fs.Duration("listen", 10*time.Second, "how long to listen for candidates before pairing")
	candidateID := fs.String("candidate", "", "node ID of the candidate to pair (required)")
	code := fs.String("code", "", "pairing code displayed on the candidate (required)")
	fs.Parse(args)

	lf := logging.NewDefaultLoggerFactory()
	store, err := loadConfigStore(*dataDir, lf)
	if err != nil {
		fatalf("%v", err)
	}
	cfg := store.Get()
	if !cfg.Enrolled || !cfg.IsQueen {
		fatalf("add-computer: %s is not an enrolled queen; run create-swarm first", *dataDir)
	}

	reg, err := loadRegistry(*dataDir, lf)
	if err != nil {
		fatalf("%v", err)
	}
	authority := queenauth.New(queenauth.Config{Registry: reg, LoggerFactory: lf})
	authority.SetIdentity(&queenauth.Identity{
		SwarmID:     cfg.SwarmID,
		SwarmSecret: cfg.SwarmSecret,
		Fingerprint: cfg.SwarmFingerprint,
		QueenNodeID: cfg.QueenNodeID,
	})

	r := newUDPRadio(cfg.NodeID, *group, lf)
	defer r.Close()

	listener := pairing.NewListener(r, lf)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	listener.Start(ctx)
	defer listener.Stop()

	if *candidateID == "" || *code == "" {
		fmt.Printf("Listening for %s...\n", *listen)
		time.Sleep(*listen)
		candidates := listener.Candidates()
		if len(candidates) == 0 {
			fmt.Println("No candidates observed. Re-run with -candidate/-code once you see one advertising.")
			return
		}
		fmt.Println("Candidates:")
		for _, c := range candidates {
			fmt.Printf("  %-20s label=%-15s code=%s\n", c.NodeID, c.Label, c.Code)
		}
		fmt.Println("Re-run with -candidate <node-id> -code <code> to admit one.")
		return
	}

	fmt.Printf("Listening for %s...\n", *listen)
	time.Sleep(*listen)

	candidate, ok := listener.Candidate(*candidateID)
	if !ok {
		fatalf("add-computer: no candidate %q currently advertising", *candidateID)
	}

	session := pairing.NewSession(pairing.SessionConfig{
		QueenNodeID: cfg.NodeID,
		Radio:       r,
		Authority:   authority,
		Callbacks: pairing.QueenCallbacks{
			OnProgress: func(percent int, message string) {
				fmt.Printf("  (%3d%%) %s\n", percent, message)
			},
		},
		LoggerFactory: lf,
	})
	if err := session.Select(candidate, *code); err != nil {
		fatalf("select candidate: %v", err)
	}
	if err := session.Deliver(ctx); err != nil {
		fatalf("deliver credentials: %v", err)
	}
	if err := reg.Save(); err != nil {
		fatalf("save registry: %v", err)
	}
	fmt.Printf("%s (%s) joined the swarm.\n", candidate.Label, candidate.NodeID)
}

// buildNode assembles a scheduler.Node from persisted state: config,
// registry (queen only), a fresh UDP radio, and an empty peripheral host
// the caller may still Attach to before Start.
func buildNode(dataDir, group string, lf logging.LoggerFactory) (*scheduler.Node, *udpradio.Radio, error) {
	store, err := loadConfigStore(dataDir, lf)
	if err != nil {
		return nil, nil, err
	}
	cfg := store.Get()
	if !cfg.Enrolled {
		return nil, nil, fmt.Errorf("%s is not enrolled in a swarm; run create-swarm or join first", dataDir)
	}

	r := newUDPRadio(cfg.NodeID, group, lf)

	nodeCfg := scheduler.Config{
		NodeID:         cfg.NodeID,
		Label:          cfg.Label,
		Radio:          r,
		ConfigStore:    store,
		PeripheralHost: peripheral.NewHost(),
		LoggerFactory:  lf,
		OnStateChanged: func(old, new scheduler.NodeState) {
			fmt.Printf("  [node %s -> %s]\n", old, new)
		},
	}

	if cfg.IsQueen {
		reg, err := loadRegistry(dataDir, lf)
		if err != nil {
			r.Close()
			return nil, nil, err
		}
		authority := queenauth.New(queenauth.Config{Registry: reg, LoggerFactory: lf})
		authority.SetIdentity(&queenauth.Identity{
			SwarmID:     cfg.SwarmID,
			SwarmSecret: cfg.SwarmSecret,
			Fingerprint: cfg.SwarmFingerprint,
			QueenNodeID: cfg.QueenNodeID,
		})
		nodeCfg.Registry = reg
		nodeCfg.Authority = authority
	}

	n, err := scheduler.NewNode(nodeCfg)
	if err != nil {
		r.Close()
		return nil, nil, err
	}
	return n, r, nil
}

// cmdServe runs the node's scheduler until SIGINT/SIGTERM, the long-running
// equivalent of examples/common.RunDevice.
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./shelfos-data", "directory to persist node state in")
	group := fs.String("group", "", "multicast group:port (defaults to udpradio.DefaultGroup)")
	fs.Parse(args)

	lf := logging.NewDefaultLoggerFactory()
	n, r, err := buildNode(*dataDir, *group, lf)
	if err != nil {
		fatalf("%v", err)
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		fatalf("start: %v", err)
	}
	fmt.Println("shelfos node running. Ctrl-C to stop.")

	<-ctx.Done()
	fmt.Println("Shutting down...")
	if err := n.Stop(); err != nil {
		fatalf("stop: %v", err)
	}
}

// cmdPeers briefly starts a node, forces a DISCOVER round trip, and prints
// every peer's advertised peripherals.
func cmdPeers(args []string) {
	fs := flag.NewFlagSet("peers", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./shelfos-data", "directory to persist node state in")
	group := fs.String("group", "", "multicast group:port (defaults to udpradio.DefaultGroup)")
	timeout := fs.Duration("timeout", 3*time.Second, "how long to wait for replies")
	fs.Parse(args)

	lf := logging.NewDefaultLoggerFactory()
	n, r, err := buildNode(*dataDir, *group, lf)
	if err != nil {
		fatalf("%v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+2*time.Second)
	defer cancel()

	if err := n.Start(ctx); err != nil {
		fatalf("start: %v", err)
	}
	defer n.Stop()

	peers, err := n.DiscoverOnce(ctx, *timeout)
	if err != nil {
		fatalf("discover: %v", err)
	}
	if len(peers) == 0 {
		fmt.Println("No peers found.")
		return
	}
	for _, p := range peers {
		fmt.Printf("%s (%s)\n", p.NodeID, p.Label)
		for _, d := range p.Peripherals {
			fmt.Printf("  %-20s type=%-15s methods=%s\n", d.Name, d.Type, strings.Join(d.Methods, ","))
		}
	}
}

// cmdCall invokes one method on a remote peripheral and prints the result.
func cmdCall(args []string) {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./shelfos-data", "directory to persist node state in")
	group := fs.String("group", "", "multicast group:port (defaults to udpradio.DefaultGroup)")
	peripheralName := fs.String("peripheral", "", "remote peripheral name (required)")
	method := fs.String("method", "", "method to invoke (required)")
	timeout := fs.Duration("timeout", 5*time.Second, "call timeout")
	fs.Parse(args)

	if *peripheralName == "" || *method == "" {
		fatalf("call: -peripheral and -method are required")
	}

	lf := logging.NewDefaultLoggerFactory()
	n, r, err := buildNode(*dataDir, *group, lf)
	if err != nil {
		fatalf("%v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+2*time.Second)
	defer cancel()

	if err := n.Start(ctx); err != nil {
		fatalf("start: %v", err)
	}
	defer n.Stop()

	callCtx, cancelCall := context.WithTimeout(ctx, *timeout)
	defer cancelCall()

	values, err := n.Call(callCtx, *peripheralName, *method, nil)
	if err != nil {
		fatalf("call: %v", err)
	}
	fmt.Printf("%v\n", values)
}

// cmdRevoke and cmdRemove mutate the Trust Registry directly — they don't
// need a running scheduler, only the queen's persisted identity.
func cmdRevoke(args []string) {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./shelfos-data", "directory to persist node state in")
	peerID := fs.String("peer-id", "", "peer to revoke (required)")
	fs.Parse(args)
	if *peerID == "" {
		fatalf("revoke: -peer-id is required")
	}
	mutateRegistry(*dataDir, func(reg *registry.Registry) error { return reg.Revoke(*peerID) })
	fmt.Printf("%s revoked.\n", *peerID)
}

func cmdRemove(args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./shelfos-data", "directory to persist node state in")
	peerID := fs.String("peer-id", "", "peer to remove (required)")
	fs.Parse(args)
	if *peerID == "" {
		fatalf("remove: -peer-id is required")
	}
	mutateRegistry(*dataDir, func(reg *registry.Registry) error { return reg.Remove(*peerID) })
	fmt.Printf("%s removed.\n", *peerID)
}

func mutateRegistry(dataDir string, mutate func(*registry.Registry) error) {
	lf := logging.NewDefaultLoggerFactory()
	store, err := loadConfigStore(dataDir, lf)
	if err != nil {
		fatalf("%v", err)
	}
	cfg := store.Get()
	if !cfg.Enrolled || !cfg.IsQueen {
		fatalf("%s is not an enrolled queen", dataDir)
	}
	reg, err := loadRegistry(dataDir, lf)
	if err != nil {
		fatalf("%v", err)
	}
	if err := mutate(reg); err != nil {
		fatalf("%v", err)
	}
	if err := reg.Save(); err != nil {
		fatalf("save registry: %v", err)
	}
}
