package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/shelfos/shelfos/pkg/envelope"
	"github.com/shelfos/shelfos/pkg/peripheral"
	"github.com/shelfos/shelfos/pkg/radio/testradio"
)

func sharedSecretLookup(secret []byte, authorized map[string]bool) envelope.SecretLookup {
	return func(senderID string) ([]byte, bool) {
		if !authorized[senderID] {
			return nil, false
		}
		return secret, true
	}
}

func TestCallRoundTrip(t *testing.T) {
	net := testradio.NewNetwork(testradio.Condition{})
	hostRadio, err := net.Join("host-1")
	if err != nil {
		t.Fatal(err)
	}
	clientRadio, err := net.Join("client-1")
	if err != nil {
		t.Fatal(err)
	}
	defer hostRadio.Close()
	defer clientRadio.Close()

	swarmSecret := []byte("swarm-secret")
	authorized := map[string]bool{"host-1": true, "client-1": true}
	lookup := sharedSecretLookup(swarmSecret, authorized)

	host := peripheral.NewHost()
	host.Attach(&peripheral.Attachable{
		Name: "me_bridge_0",
		Type: "energy_meter",
		Methods: map[string]peripheral.Method{
			"getStoredEnergy": func(args []any) ([]any, error) {
				return []any{int64(500000)}, nil
			},
		},
	})
	rpcHost := NewHost(HostConfig{
		NodeID:     "host-1",
		Radio:      hostRadio,
		Directory:  host,
		EnvStore:   envelope.NewStore(nil),
		AuthSecret: lookup,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rpcHost.Start(ctx)
	defer rpcHost.Stop()

	client, err := NewClient(ClientConfig{
		NodeID:     "client-1",
		Radio:      clientRadio,
		EnvStore:   envelope.NewStore(nil),
		AuthSecret: lookup,
		Locate: func(name string) (string, bool) {
			if name == "me_bridge_0" {
				return "host-1", true
			}
			return "", false
		},
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	client.Start(ctx)
	defer client.Stop()

	values, err := client.Call(ctx, "me_bridge_0", "getStoredEnergy", nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if len(values) != 1 || values[0] != int64(500000) {
		t.Fatalf("unexpected result: %+v", values)
	}
}

func TestCallUnreachableWithoutLocation(t *testing.T) {
	net := testradio.NewNetwork(testradio.Condition{})
	clientRadio, err := net.Join("client-2")
	if err != nil {
		t.Fatal(err)
	}
	defer clientRadio.Close()

	client, err := NewClient(ClientConfig{
		NodeID:     "client-2",
		Radio:      clientRadio,
		EnvStore:   envelope.NewStore(nil),
		AuthSecret: func(string) ([]byte, bool) { return nil, false },
		Locate:     func(string) (string, bool) { return "", false },
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Call(context.Background(), "nonexistent", "m", nil)
	if err != ErrPeripheralUnreachable {
		t.Fatalf("expected ErrPeripheralUnreachable, got %v", err)
	}
}

func TestCallNoSuchMethodSurfacesRemoteError(t *testing.T) {
	net := testradio.NewNetwork(testradio.Condition{})
	hostRadio, err := net.Join("host-3")
	if err != nil {
		t.Fatal(err)
	}
	clientRadio, err := net.Join("client-3")
	if err != nil {
		t.Fatal(err)
	}
	defer hostRadio.Close()
	defer clientRadio.Close()

	swarmSecret := []byte("swarm-secret")
	lookup := sharedSecretLookup(swarmSecret, map[string]bool{"host-3": true, "client-3": true})

	host := peripheral.NewHost()
	host.Attach(&peripheral.Attachable{Name: "p1", Type: "t", Methods: map[string]peripheral.Method{}})

	rpcHost := NewHost(HostConfig{
		NodeID:     "host-3",
		Radio:      hostRadio,
		Directory:  host,
		EnvStore:   envelope.NewStore(nil),
		AuthSecret: lookup,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rpcHost.Start(ctx)
	defer rpcHost.Stop()

	client, err := NewClient(ClientConfig{
		NodeID:     "client-3",
		Radio:      clientRadio,
		EnvStore:   envelope.NewStore(nil),
		AuthSecret: lookup,
		Locate:     func(string) (string, bool) { return "host-3", true },
		Timeout:    2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	client.Start(ctx)
	defer client.Stop()

	_, err = client.Call(ctx, "p1", "missingMethod", nil)
	if err != ErrNoSuchMethod {
		t.Fatalf("expected ErrNoSuchMethod, got %v", err)
	}
}

func TestCallTimesOutWhenHostNeverReplies(t *testing.T) {
	net := testradio.NewNetwork(testradio.Condition{})
	clientRadio, err := net.Join("client-4")
	if err != nil {
		t.Fatal(err)
	}
	// The host joins the network but runs no rpc.Host, so nothing ever
	// answers the CALL.
	_, err = net.Join("ghost-host")
	if err != nil {
		t.Fatal(err)
	}
	defer clientRadio.Close()

	lookup := sharedSecretLookup([]byte("secret"), map[string]bool{"ghost-host": true, "client-4": true})

	client, err := NewClient(ClientConfig{
		NodeID:     "client-4",
		Radio:      clientRadio,
		EnvStore:   envelope.NewStore(nil),
		AuthSecret: lookup,
		Locate:     func(string) (string, bool) { return "ghost-host", true },
		Timeout:    200 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	defer client.Stop()

	_, err = client.Call(context.Background(), "anything", "m", nil)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
