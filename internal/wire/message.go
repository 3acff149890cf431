package wire

import "swim/internal/membership"

// Kind discriminates the five message kinds.
type Kind uint8

const (
	// Ping is a direct liveness probe.
	Ping Kind = iota + 1
	// Ack answers a Ping, directly or through a relay.
	Ack
	// PingReq asks a relay to probe Target on the sender's behalf.
	PingReq
	// Sync carries a full membership snapshot for anti-entropy.
	Sync
	// Gossip carries membership events with no probe attached, used to
	// flush urgent facts such as a voluntary leave.
	Gossip
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case Ping:
		return "ping"
	case Ack:
		return "ack"
	case PingReq:
		return "ping-req"
	case Sync:
		return "sync"
	case Gossip:
		return "gossip"
	default:
		return "unknown"
	}
}

// Event is one membership fact on the wire. Unlike the in-memory queue
// entry it carries the member's address, so a node hearing about an
// unknown member learns how to reach it.
type Event struct {
	ID          string `codec:"i"`
	Addr        string `codec:"a"`
	State       uint8  `codec:"s"`
	Incarnation uint64 `codec:"n"`
}

// EventFromMember converts a table record to its wire form.
func EventFromMember(m membership.Member) Event {
	return Event{
		ID:          string(m.ID),
		Addr:        m.Addr,
		State:       uint8(m.State),
		Incarnation: m.Incarnation,
	}
}

// Member converts a wire event back to a table snapshot.
func (e Event) Member() membership.Member {
	return membership.Member{
		ID:          membership.ID(e.ID),
		Addr:        e.Addr,
		State:       membership.State(e.State),
		Incarnation: e.Incarnation,
	}
}

// Envelope is the single datagram payload. Piggybacked Events ride on
// every kind except Sync, whose Snapshot already carries full state.
type Envelope struct {
	Cluster  string  `codec:"c"`
	From     string  `codec:"f"`
	Kind     Kind    `codec:"k"`
	Seq      uint32  `codec:"q"`
	Target   string  `codec:"t,omitempty"` // PingReq: address to probe
	Reply    bool    `codec:"r,omitempty"` // Sync: terminates the push-pull exchange
	Snapshot []Event `codec:"m,omitempty"` // Sync payload
	Events   []Event `codec:"e,omitempty"` // piggyback / Gossip payload
}
