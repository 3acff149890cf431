package transport

import (
	"fmt"
	"sync"
)

// Network is an in-process datagram fabric for tests: every Channel
// joined to it can send to every other by address. Links can be cut to
// model asymmetric partitions; a cut link silently swallows datagrams,
// exactly as a partitioned UDP path would.
type Network struct {
	mu    sync.Mutex
	nodes map[string]*Channel
	cut   map[string]struct{} // "src->dst" links that drop
}

// NewNetwork creates an empty fabric.
func NewNetwork() *Network {
	return &Network{
		nodes: make(map[string]*Channel),
		cut:   make(map[string]struct{}),
	}
}

// Join attaches a new endpoint at addr.
func (n *Network) Join(addr string) *Channel {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := &Channel{
		net:   n,
		addr:  addr,
		inbox: make(chan Packet, 1024),
	}
	n.nodes[addr] = ch
	return ch
}

// Cut drops all datagrams from src to dst until Heal. One direction
// only; call twice for a symmetric partition.
func (n *Network) Cut(src, dst string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cut[src+"->"+dst] = struct{}{}
}

// Heal restores the src to dst link.
func (n *Network) Heal(src, dst string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.cut, src+"->"+dst)
}

// Silence detaches addr entirely: its outgoing and incoming datagrams
// all vanish, modeling a killed process.
func (n *Network) Silence(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.nodes, addr)
}

func (n *Network) deliver(src, dst string, payload []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, present := n.nodes[src]; !present {
		return
	}
	if _, blocked := n.cut[src+"->"+dst]; blocked {
		return
	}
	node, ok := n.nodes[dst]
	if !ok {
		return
	}
	pkt := Packet{From: src, Payload: append([]byte(nil), payload...)}
	select {
	case node.inbox <- pkt:
	default:
		// Full inbox drops, like a full socket buffer.
	}
}

// Channel is one endpoint on a Network.
type Channel struct {
	net    *Network
	addr   string
	inbox  chan Packet
	closed sync.Once
}

// Send delivers the payload to addr unless the link is cut or the
// destination unknown; either way the caller sees success, matching UDP.
func (c *Channel) Send(addr string, payload []byte) error {
	const maxDatagram = 65507 // UDP payload ceiling; Network links impose no tighter one
	if len(payload) > maxDatagram {
		return fmt.Errorf("send to %s: %w", addr, ErrOversized)
	}
	c.net.deliver(c.addr, addr, payload)
	return nil
}

// TryReceive returns at most one pending datagram without blocking.
func (c *Channel) TryReceive() (*Packet, error) {
	select {
	case pkt := <-c.inbox:
		return &pkt, nil
	default:
		return nil, nil
	}
}

// LocalAddr returns the endpoint's address on the fabric.
func (c *Channel) LocalAddr() string {
	return c.addr
}

// Close detaches the endpoint from the fabric.
func (c *Channel) Close() error {
	c.closed.Do(func() { c.net.Silence(c.addr) })
	return nil
}
