package transport

import "errors"

// ErrOversized is returned when a payload exceeds the maximum datagram
// size. The protocol must trim piggyback payloads instead of fragmenting.
var ErrOversized = errors.New("payload exceeds maximum datagram size")

// Packet is one received datagram and the address it came from.
type Packet struct {
	From    string
	Payload []byte
}

// Transport sends and receives datagrams. Implementations give no
// delivery, ordering or duplication guarantees.
type Transport interface {
	// Send transmits one datagram. It fails only on local problems
	// (closed socket, oversized payload); an unreachable peer is
	// silence, not an error.
	Send(addr string, payload []byte) error

	// TryReceive returns at most one pending datagram, or nil if none
	// is waiting. It never blocks.
	TryReceive() (*Packet, error)

	// LocalAddr is the address peers can reach this transport at.
	LocalAddr() string

	// Close releases the underlying socket.
	Close() error
}
