package cluster

import (
	"time"

	"go.uber.org/zap"

	"swim/internal/detector"
	"swim/internal/membership"
	"swim/internal/telemetry"
	"swim/internal/wire"
)

// maxInboundPerTick bounds how many datagrams one tick drains so a
// flood cannot starve the probe schedule.
const maxInboundPerTick = 128

// Tick advances the protocol by one step: drain inbound datagrams, fire
// expired timers, then run any probe or anti-entropy round whose
// deadline has passed. Everything is gated on the clock, so tests drive
// the whole protocol by advancing a manual clock and calling Tick.
func (c *Cluster) Tick() {
	c.drainInbound()
	c.handleExpiries()

	now := c.clk.Now()
	if !now.Before(c.nextProbe) {
		c.syncSeeds()
		c.probe()
		c.nextProbe = now.Add(c.cfg.ProbeInterval)
	}
	if !now.Before(c.nextSync) {
		c.antiEntropy()
		c.nextSync = now.Add(c.cfg.AntiEntropyInterval)
	}

	c.pruneWaitList(now)
	c.snapshot.Store(c.table.Snapshot())
	c.updateGauges()
}

func (c *Cluster) drainInbound() {
	for i := 0; i < maxInboundPerTick; i++ {
		pkt, err := c.tr.TryReceive()
		if err != nil {
			telemetry.TransportErrors.Inc()
			c.log.Warn("receive failed", zap.Error(err))
			return
		}
		if pkt == nil {
			return
		}
		c.handle(pkt)
	}
}

// handleExpiries walks the failure-detection ladder for every timer that
// fired: direct timeout fans out indirect probes, indirect timeout marks
// Suspect, suspicion timeout marks Confirmed.
func (c *Cluster) handleExpiries() {
	for _, exp := range c.det.Expire() {
		switch exp.Kind {
		case detector.NeedIndirect:
			c.indirectProbe(exp)
		case detector.BecameSuspect:
			telemetry.ProbeOutcomes.WithLabelValues("suspect").Inc()
			c.table.MarkSuspect(exp.Target, exp.Incarnation)
		case detector.ConfirmFailed:
			c.table.MarkConfirmed(exp.Target, exp.Incarnation)
		}
	}
}

// probe opens a direct probe of one randomly chosen Alive member.
// Members already being probed are excluded rather than double-probed.
func (c *Cluster) probe() {
	target, ok := c.table.RandomAlive(c.det.InFlight())
	if !ok {
		return
	}
	seq, ok := c.det.Start(target)
	if !ok {
		return
	}
	c.send(target.Addr, &wire.Envelope{Kind: wire.Ping, Seq: seq})
}

// indirectProbe asks up to k relays to ping the unresponsive target on
// our behalf. The relayed ack comes back carrying the same sequence
// number, so the original probe resolves no matter which path answered.
func (c *Cluster) indirectProbe(exp detector.Expiry) {
	relays := c.table.RandomAliveN(c.cfg.IndirectRelays, map[membership.ID]struct{}{exp.Target: {}})
	if len(relays) == 0 {
		c.log.Debug("no relays for indirect probe",
			zap.String("target", string(exp.Target)))
		return
	}
	for _, r := range relays {
		c.send(r.Addr, &wire.Envelope{
			Kind:   wire.PingReq,
			Seq:    exp.Seq,
			Target: exp.Addr,
		})
	}
}

// syncSeeds pushes a full-state exchange at every seed we have not heard
// from yet. Seeds that are down at startup keep getting retried until
// first contact, at which point handle drops them from the list.
func (c *Cluster) syncSeeds() {
	for _, addr := range c.seeds {
		c.sendSync(addr, false)
	}
}

// antiEntropy runs one push-pull round with a random peer, repairing
// whatever the event stream missed. Suspect and Confirmed members are
// eligible targets: a sync reaching a falsely accused node is its one
// chance to learn the accusation and answer it.
func (c *Cluster) antiEntropy() {
	peer, ok := c.table.RandomContact()
	if !ok {
		return
	}
	c.sendSync(peer.Addr, false)
	telemetry.AntiEntropyExchanges.Inc()
}

// pruneWaitList drops relay entries whose origin stopped caring: once
// the indirect window has passed, a late ack from the target is useless
// to the origin anyway.
func (c *Cluster) pruneWaitList(now time.Time) {
	for seq, e := range c.waitList {
		if !e.deadline.After(now) {
			delete(c.waitList, seq)
		}
	}
}

// send stamps the envelope with our identity, attaches piggybacked
// events within the datagram budget and transmits. Send failures are
// logged and counted; the failure detector handles the consequences.
func (c *Cluster) send(addr string, env *wire.Envelope) {
	env.Cluster = c.cfg.ClusterName
	env.From = string(c.table.Self().ID)

	payload, err := c.diss.Encode(env)
	if err != nil {
		c.log.Error("encoding message", zap.String("kind", env.Kind.String()), zap.Error(err))
		return
	}
	if err := c.tr.Send(addr, payload); err != nil {
		telemetry.TransportErrors.Inc()
		c.log.Warn("send failed",
			zap.String("to", addr),
			zap.String("kind", env.Kind.String()),
			zap.Error(err))
		return
	}
	telemetry.DatagramsSent.WithLabelValues(env.Kind.String()).Inc()
}

// sendSync transmits a full membership snapshot, trimmed to the
// datagram budget. reply distinguishes the answering half of a
// push-pull exchange so the peer does not answer back forever.
func (c *Cluster) sendSync(addr string, reply bool) {
	env := &wire.Envelope{
		Cluster: c.cfg.ClusterName,
		From:    string(c.table.Self().ID),
		Kind:    wire.Sync,
		Reply:   reply,
	}
	snap := c.table.Snapshot()
	events := make([]wire.Event, len(snap))
	for i, m := range snap {
		events[i] = wire.EventFromMember(m)
	}

	payload, attached, err := wire.EncodeSnapshotBudget(env, events, c.cfg.MaxDatagramSize)
	if err != nil {
		c.log.Error("encoding sync", zap.Error(err))
		return
	}
	if attached < len(events) {
		c.log.Debug("sync snapshot trimmed to datagram budget",
			zap.Int("attached", attached),
			zap.Int("total", len(events)))
	}
	if err := c.tr.Send(addr, payload); err != nil {
		telemetry.TransportErrors.Inc()
		c.log.Warn("send failed",
			zap.String("to", addr),
			zap.String("kind", wire.Sync.String()),
			zap.Error(err))
		return
	}
	telemetry.DatagramsSent.WithLabelValues(wire.Sync.String()).Inc()
}
