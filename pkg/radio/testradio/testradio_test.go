package testradio

import (
	"context"
	"testing"
	"time"
)

func TestBroadcastDeliveredToAllPeers(t *testing.T) {
	net := NewNetwork(Condition{})

	a, err := net.Join("node-a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := net.Join("node-b")
	if err != nil {
		t.Fatal(err)
	}
	c, err := net.Join("node-c")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	defer b.Close()
	defer c.Close()

	if err := a.Broadcast("shelfos", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	fb, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("b did not receive broadcast: %v", err)
	}
	if fb.From != "node-a" || string(fb.Data) != "hello" || fb.To != nil {
		t.Fatalf("unexpected frame at b: %+v", fb)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	fc, err := c.Receive(ctx2)
	if err != nil {
		t.Fatalf("c did not receive broadcast: %v", err)
	}
	if fc.From != "node-a" {
		t.Fatalf("unexpected sender at c: %+v", fc)
	}
}

func TestUnicastOnlyReachesRecipient(t *testing.T) {
	net := NewNetwork(Condition{})

	a, _ := net.Join("node-a")
	b, _ := net.Join("node-b")
	c, _ := net.Join("node-c")
	defer a.Close()
	defer b.Close()
	defer c.Close()

	if err := a.Unicast("shelfos", "node-b", []byte("private")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("b did not receive unicast: %v", err)
	}
	if f.To == nil || *f.To != "node-b" {
		t.Fatalf("expected frame addressed to node-b, got %+v", f)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	if _, err := c.Receive(ctx2); err == nil {
		t.Fatal("node-c should not have received a unicast addressed to node-b")
	}
}

func TestDropRateCanLoseEveryPacket(t *testing.T) {
	net := NewNetwork(Condition{DropRate: 1.0})

	a, _ := net.Join("node-a")
	b, _ := net.Join("node-b")
	defer a.Close()
	defer b.Close()

	if err := a.Broadcast("shelfos", []byte("x")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := b.Receive(ctx); err == nil {
		t.Fatal("expected no delivery with DropRate 1.0")
	}
}

func TestReceiveUnblocksOnContextCancel(t *testing.T) {
	net := NewNetwork(Condition{})
	a, _ := net.Join("node-a")
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Receive(ctx); err == nil {
		t.Fatal("expected context error")
	}
}
