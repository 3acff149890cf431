package gossip

import (
	"go.uber.org/zap"

	"swim/internal/telemetry"
	"swim/internal/wire"
)

// Disseminator attaches pending events to outgoing messages within the
// datagram size budget.
type Disseminator struct {
	queue        *Queue
	maxPiggyback int
	maxDatagram  int
	logger       *zap.Logger
}

// New creates a disseminator.
func New(maxSends, maxPiggyback, maxDatagram int, logger *zap.Logger) *Disseminator {
	return &Disseminator{
		queue:        NewQueue(maxSends),
		maxPiggyback: maxPiggyback,
		maxDatagram:  maxDatagram,
		logger:       logger,
	}
}

// Enqueue adds a membership event for dissemination.
func (d *Disseminator) Enqueue(ev wire.Event) {
	d.queue.Put(ev)
	telemetry.PiggybackDepth.Set(float64(d.queue.Len()))
}

// Pending returns the number of events awaiting transmission.
func (d *Disseminator) Pending() int {
	return d.queue.Len()
}

// Encode serializes env with piggybacked events attached, trimming to
// the datagram budget. Sync messages carry a full snapshot already and
// get no piggyback.
func (d *Disseminator) Encode(env *wire.Envelope) ([]byte, error) {
	if env.Kind == wire.Sync {
		return wire.Encode(env)
	}

	staged := d.queue.PopCandidates(d.maxPiggyback)
	events := make([]wire.Event, len(staged))
	for i, it := range staged {
		events[i] = it.Event
	}

	buf, attached, err := wire.EncodeBudget(env, events, d.maxDatagram)
	if err != nil {
		d.queue.Requeue(staged, 0)
		return nil, err
	}
	d.queue.Requeue(staged, attached)
	telemetry.PiggybackDepth.Set(float64(d.queue.Len()))

	if attached < len(staged) {
		d.logger.Debug("piggyback trimmed to datagram budget",
			zap.Int("attached", attached),
			zap.Int("staged", len(staged)))
	}
	return buf, nil
}
