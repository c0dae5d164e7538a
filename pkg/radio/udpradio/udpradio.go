// Package udpradio implements the radio.Radio primitive over a real UDP
// multicast group: every node on the LAN joins the same multicast group and
// address, so Broadcast is a single multicast send and Unicast is the same
// send carrying a recipient tag that every other node filters on (multicast
// groups have no per-member addressing of their own).
package udpradio

import (
	"context"
	"net"
	"sync"

	"github.com/pion/logging"

	"github.com/shelfos/shelfos/pkg/codec"
	"github.com/shelfos/shelfos/pkg/radio"
)

// DefaultGroup is the ShelfOS multicast group and port.
const DefaultGroup = "239.255.77.77:5540"

// MaxDatagramSize bounds a single UDP read and is the receive buffer size
// New requests for the socket.
const MaxDatagramSize = 8192

// Config configures a Radio.
type Config struct {
	// NodeID is this node's identity, stamped as Frame.From on every sent
	// frame and used to drop self-delivered multicast loopback.
	NodeID string

	// Group is the multicast group:port to join. Defaults to DefaultGroup.
	Group string

	// Iface optionally pins the multicast interface (nil picks the
	// system default).
	Iface *net.Interface

	LoggerFactory logging.LoggerFactory
}

// Radio is a radio.Radio backed by a real UDP multicast socket.
type Radio struct {
	nodeID string
	group  *net.UDPAddr
	sendC  *net.UDPConn
	recvC  *net.UDPConn
	log    logging.LeveledLogger

	inbox  chan radio.Frame
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// New joins the configured multicast group and starts the receive loop.
func New(config Config) (*Radio, error) {
	group := config.Group
	if group == "" {
		group = DefaultGroup
	}

	gaddr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, err
	}

	recvC, err := net.ListenMulticastUDP("udp4", config.Iface, gaddr)
	if err != nil {
		return nil, err
	}
	recvC.SetReadBuffer(MaxDatagramSize)

	sendC, err := net.DialUDP("udp4", nil, gaddr)
	if err != nil {
		recvC.Close()
		return nil, err
	}

	r := &Radio{
		nodeID: config.NodeID,
		group:  gaddr,
		sendC:  sendC,
		recvC:  recvC,
		inbox:  make(chan radio.Frame, 64),
		closed: make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("radio-udp")
	}

	r.wg.Add(1)
	go r.readLoop()

	return r, nil
}

func (r *Radio) send(channel, to string, data []byte) error {
	select {
	case <-r.closed:
		return radio.ErrClosed
	default:
	}

	wf := map[string]any{
		"channel": channel,
		"from":    r.nodeID,
		"data":    string(data),
	}
	if to != "" {
		wf["to"] = to
	}
	payload, err := codec.Encode(wf)
	if err != nil {
		return err
	}

	_, err = r.sendC.Write(payload)
	return err
}

// Broadcast sends data to the whole multicast group on channel.
func (r *Radio) Broadcast(channel string, data []byte) error {
	return r.send(channel, "", data)
}

// Unicast sends data on channel, tagged for toNodeID. Every node on the
// group still receives the datagram; non-recipients filter it out in
// readLoop.
func (r *Radio) Unicast(channel, toNodeID string, data []byte) error {
	return r.send(channel, toNodeID, data)
}

// Receive blocks until a frame addressed to this node arrives or ctx is done.
func (r *Radio) Receive(ctx context.Context) (radio.Frame, error) {
	select {
	case f, ok := <-r.inbox:
		if !ok {
			return radio.Frame{}, radio.ErrClosed
		}
		return f, nil
	case <-ctx.Done():
		return radio.Frame{}, ctx.Err()
	case <-r.closed:
		return radio.Frame{}, radio.ErrClosed
	}
}

// Close leaves the multicast group and stops the receive loop.
func (r *Radio) Close() error {
	var err error
	r.once.Do(func() {
		close(r.closed)
		r.recvC.Close()
		r.sendC.Close()
		r.wg.Wait()
		close(r.inbox)
	})
	return err
}

func (r *Radio) readLoop() {
	defer r.wg.Done()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, _, err := r.recvC.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-r.closed:
				return
			default:
				if r.log != nil {
					r.log.Warnf("udp read error: %v", err)
				}
				continue
			}
		}

		decoded, err := codec.Decode(buf[:n])
		if err != nil {
			if r.log != nil {
				r.log.Debugf("dropping malformed datagram: %v", err)
			}
			continue
		}
		fields, ok := decoded.(map[string]any)
		if !ok {
			continue
		}

		from, _ := fields["from"].(string)
		if from == r.nodeID {
			continue // multicast loopback of our own send
		}
		channel, _ := fields["channel"].(string)
		data, _ := fields["data"].(string)

		var to *string
		if toVal, has := fields["to"]; has {
			if toStr, ok := toVal.(string); ok {
				if toStr != r.nodeID {
					continue // unicast addressed to someone else
				}
				to = &toStr
			}
		}

		frame := radio.Frame{
			Channel: channel,
			From:    from,
			To:      to,
			Data:    []byte(data),
		}

		select {
		case r.inbox <- frame:
		case <-r.closed:
			return
		}
	}
}

var _ radio.Radio = (*Radio)(nil)
