package cluster

import (
	"go.uber.org/zap"

	"swim/internal/membership"
	"swim/internal/telemetry"
	"swim/internal/transport"
	"swim/internal/wire"
)

// handle processes one inbound datagram. Nothing a peer sends can stop
// the driver: undecodable payloads and foreign cluster keys are counted
// and dropped.
func (c *Cluster) handle(pkt *transport.Packet) {
	env, err := wire.Decode(pkt.Payload)
	if err != nil {
		telemetry.MalformedDatagrams.Inc()
		c.log.Debug("dropping malformed datagram",
			zap.String("from", pkt.From),
			zap.Error(err))
		return
	}
	if env.Cluster != c.cfg.ClusterName {
		telemetry.ForeignDatagrams.Inc()
		c.log.Warn("dropping datagram from foreign cluster",
			zap.String("from", pkt.From),
			zap.String("cluster", env.Cluster))
		return
	}
	telemetry.DatagramsReceived.WithLabelValues(env.Kind.String()).Inc()

	c.removeSeed(pkt.From)

	// Any valid message proves its sender is reachable. An unknown
	// sender enters the table Alive at incarnation zero; gossip supplies
	// the real incarnation soon enough.
	from := membership.ID(env.From)
	if from != c.table.Self().ID {
		c.table.EnsureMember(from, pkt.From)
	}

	for _, ev := range env.Events {
		c.table.Apply(ev.Member())
	}

	switch env.Kind {
	case wire.Ping:
		c.send(pkt.From, &wire.Envelope{Kind: wire.Ack, Seq: env.Seq})
	case wire.Ack:
		c.handleAck(env)
	case wire.PingReq:
		c.handlePingReq(env, pkt.From)
	case wire.Sync:
		c.handleSync(env, pkt.From)
	case wire.Gossip:
		// Piggybacked events were already applied; nothing further.
	}
}

// handleAck resolves our own probe if the sequence number matches one,
// and forwards the ack to any probe origins we are relaying for.
func (c *Cluster) handleAck(env *wire.Envelope) {
	if id, indirect, matched := c.det.Ack(env.Seq); matched {
		outcome := "acked"
		if indirect {
			outcome = "acked_indirect"
		}
		telemetry.ProbeOutcomes.WithLabelValues(outcome).Inc()
		c.log.Debug("probe acked",
			zap.String("target", string(id)),
			zap.Bool("indirect", indirect))
	}

	if e, ok := c.waitList[env.Seq]; ok {
		delete(c.waitList, env.Seq)
		c.send(e.origin, &wire.Envelope{Kind: wire.Ack, Seq: e.originSeq})
	}
}

// handlePingReq probes the requested target on the origin's behalf. The
// outgoing ping carries a relay-local sequence number, not the origin's:
// the origin's sequence lives in its own counter and could collide with
// one of our in-flight probes, letting the target's ack resolve the
// wrong one. The ack is translated back to the origin's sequence when
// forwarded.
func (c *Cluster) handlePingReq(env *wire.Envelope, origin string) {
	relaySeq := c.det.NextSeq()
	c.waitList[relaySeq] = waitEntry{
		origin:    origin,
		originSeq: env.Seq,
		deadline:  c.clk.Now().Add(c.cfg.IndirectTimeout),
	}
	c.send(env.Target, &wire.Envelope{Kind: wire.Ping, Seq: relaySeq})
}

// handleSync merges the peer's full snapshot and, if this is the pushing
// half of the exchange, answers with our own so both sides converge.
func (c *Cluster) handleSync(env *wire.Envelope, from string) {
	for _, ev := range env.Snapshot {
		c.table.Apply(ev.Member())
	}
	if !env.Reply {
		c.sendSync(from, true)
		telemetry.AntiEntropyExchanges.Inc()
	}
}

// removeSeed retires a bootstrap address once anything arrives from it.
func (c *Cluster) removeSeed(addr string) {
	if len(c.seeds) == 0 {
		return
	}
	for i, s := range c.seeds {
		if s == addr {
			c.seeds = append(c.seeds[:i], c.seeds[i+1:]...)
			c.log.Debug("seed contacted", zap.String("seed", addr))
			return
		}
	}
}
