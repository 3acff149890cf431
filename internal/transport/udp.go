package transport

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

// UDP is the production transport: one bound socket used for both
// sending and receiving, so peers see our datagrams arrive from the
// address we listen on.
type UDP struct {
	conn        *net.UDPConn
	maxDatagram int
	buf         []byte
	logger      *zap.Logger
}

// ListenUDP binds the socket. Bind failure is the one fatal startup
// error the protocol surfaces to its caller.
func ListenUDP(bindAddr string, maxDatagram int, logger *zap.Logger) (*UDP, error) {
	addr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address %s: %w", bindAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", bindAddr, err)
	}
	logger.Info("udp transport listening", zap.String("addr", conn.LocalAddr().String()))
	return &UDP{
		conn:        conn,
		maxDatagram: maxDatagram,
		buf:         make([]byte, maxDatagram),
		logger:      logger,
	}, nil
}

// Send transmits one datagram to addr.
func (u *UDP) Send(addr string, payload []byte) error {
	if len(payload) > u.maxDatagram {
		return fmt.Errorf("send to %s: %w (%d > %d)", addr, ErrOversized, len(payload), u.maxDatagram)
	}
	dst, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", addr, err)
	}
	if _, err := u.conn.WriteToUDP(payload, dst); err != nil {
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	return nil
}

// pollWindow is the read deadline TryReceive polls with. It must be in
// the future: a deadline at or before now makes the runtime fail the
// read before touching the socket, and queued datagrams never come out.
const pollWindow = time.Millisecond

// TryReceive polls the socket with a short read deadline so a quiet
// network returns nil instead of blocking the driver tick.
func (u *UDP) TryReceive() (*Packet, error) {
	if err := u.conn.SetReadDeadline(time.Now().Add(pollWindow)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	n, from, err := u.conn.ReadFromUDP(u.buf)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, nil
		}
		return nil, fmt.Errorf("receive: %w", err)
	}
	payload := make([]byte, n)
	copy(payload, u.buf[:n])
	return &Packet{From: from.String(), Payload: payload}, nil
}

// LocalAddr returns the bound address.
func (u *UDP) LocalAddr() string {
	return u.conn.LocalAddr().String()
}

// Close releases the socket.
func (u *UDP) Close() error {
	return u.conn.Close()
}
