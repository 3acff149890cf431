package detector

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"swim/internal/clock"
	"swim/internal/membership"
)

type phase uint8

const (
	phaseDirect phase = iota
	phaseIndirect
)

// ExpiryKind classifies what a deadline expiry asks the driver to do.
type ExpiryKind uint8

const (
	// NeedIndirect: the direct probe timed out; probe through relays.
	NeedIndirect ExpiryKind = iota
	// BecameSuspect: the indirect attempt timed out too; mark the
	// target Suspect.
	BecameSuspect
	// ConfirmFailed: the suspicion timeout passed without refutation;
	// mark the target Confirmed.
	ConfirmFailed
)

// Expiry is one timer that fired, with everything the driver needs to
// act on it.
type Expiry struct {
	Kind        ExpiryKind
	Target      membership.ID
	Addr        string
	Seq         uint32
	Incarnation uint64
}

type probe struct {
	target      membership.ID
	addr        string
	seq         uint32
	phase       phase
	deadline    time.Time
	incarnation uint64
}

type suspicion struct {
	deadline    time.Time
	incarnation uint64
}

// Detector owns the probe table and suspicion timers. Driver-goroutine
// owned, unlocked.
type Detector struct {
	probeTimeout     time.Duration
	indirectTimeout  time.Duration
	suspicionTimeout time.Duration

	probes     map[uint32]*probe
	byTarget   map[membership.ID]uint32
	suspicions map[membership.ID]suspicion

	seq    uint32
	clk    clock.Clock
	logger *zap.Logger
}

// New creates a detector with the three protocol timeouts.
func New(probeTimeout, indirectTimeout, suspicionTimeout time.Duration, clk clock.Clock, logger *zap.Logger) *Detector {
	return &Detector{
		probeTimeout:     probeTimeout,
		indirectTimeout:  indirectTimeout,
		suspicionTimeout: suspicionTimeout,
		probes:           make(map[uint32]*probe),
		byTarget:         make(map[membership.ID]uint32),
		suspicions:       make(map[membership.ID]suspicion),
		clk:              clk,
		logger:           logger,
	}
}

// NextSeq allocates a fresh sequence number. Probes and relayed pings
// draw from the same counter, so an inbound ack can match at most one
// of them.
func (d *Detector) NextSeq() uint32 {
	d.seq++
	return d.seq
}

// Start opens a direct probe of target and returns the sequence number
// to send. A target already being probed is skipped.
func (d *Detector) Start(target membership.Member) (uint32, bool) {
	if _, busy := d.byTarget[target.ID]; busy {
		return 0, false
	}
	p := &probe{
		target:      target.ID,
		addr:        target.Addr,
		seq:         d.NextSeq(),
		phase:       phaseDirect,
		deadline:    d.clk.Now().Add(d.probeTimeout),
		incarnation: target.Incarnation,
	}
	d.probes[p.seq] = p
	d.byTarget[p.target] = p.seq
	return p.seq, true
}

// Ack resolves the probe matching seq. It reports the probed target and
// whether the ack arrived on the indirect path, for metrics; an unknown
// or already-expired seq is not a match.
func (d *Detector) Ack(seq uint32) (membership.ID, bool, bool) {
	p, ok := d.probes[seq]
	if !ok {
		return "", false, false
	}
	delete(d.probes, seq)
	delete(d.byTarget, p.target)
	d.logger.Debug("probe acked",
		zap.String("target", string(p.target)),
		zap.Uint32("seq", seq),
		zap.Bool("indirect", p.phase == phaseIndirect))
	return p.target, p.phase == phaseIndirect, true
}

// InFlight returns the set of targets currently being probed, used to
// exclude them from the next target selection.
func (d *Detector) InFlight() map[membership.ID]struct{} {
	out := make(map[membership.ID]struct{}, len(d.byTarget))
	for id := range d.byTarget {
		out[id] = struct{}{}
	}
	return out
}

// NoteState keeps the suspicion table in step with the membership table.
// Called by the driver for every accepted state change, whether it came
// from our own probing or from gossip.
func (d *Detector) NoteState(id membership.ID, state membership.State, incarnation uint64) {
	switch state {
	case membership.Suspect:
		if _, running := d.suspicions[id]; !running {
			d.suspicions[id] = suspicion{
				deadline:    d.clk.Now().Add(d.suspicionTimeout),
				incarnation: incarnation,
			}
		}
	case membership.Alive:
		// Refutation.
		delete(d.suspicions, id)
	case membership.Confirmed, membership.Left:
		delete(d.suspicions, id)
		if seq, ok := d.byTarget[id]; ok {
			delete(d.probes, seq)
			delete(d.byTarget, id)
		}
	}
}

// Expire fires every deadline at or before now. Direct probes escalate
// to the indirect phase (same sequence number, extended deadline);
// indirect probes escalate to Suspect; suspicions escalate to Confirmed.
func (d *Detector) Expire() []Expiry {
	now := d.clk.Now()
	var out []Expiry

	for seq, p := range d.probes {
		if p.deadline.After(now) {
			continue
		}
		switch p.phase {
		case phaseDirect:
			p.phase = phaseIndirect
			p.deadline = now.Add(d.indirectTimeout)
			out = append(out, Expiry{
				Kind:        NeedIndirect,
				Target:      p.target,
				Addr:        p.addr,
				Seq:         p.seq,
				Incarnation: p.incarnation,
			})
		case phaseIndirect:
			delete(d.probes, seq)
			delete(d.byTarget, p.target)
			out = append(out, Expiry{
				Kind:        BecameSuspect,
				Target:      p.target,
				Addr:        p.addr,
				Seq:         p.seq,
				Incarnation: p.incarnation,
			})
		}
	}

	for id, s := range d.suspicions {
		if s.deadline.After(now) {
			continue
		}
		delete(d.suspicions, id)
		out = append(out, Expiry{
			Kind:        ConfirmFailed,
			Target:      id,
			Incarnation: s.incarnation,
		})
	}

	// Map iteration order is random; keep expiry handling reproducible.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Target < out[j].Target
	})
	return out
}
