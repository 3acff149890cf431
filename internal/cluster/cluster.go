package cluster

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"swim/internal/clock"
	"swim/internal/config"
	"swim/internal/detector"
	"swim/internal/event"
	"swim/internal/gossip"
	"swim/internal/membership"
	"swim/internal/telemetry"
	"swim/internal/transport"
	"swim/internal/wire"
)

// Cluster is one node's view of the gossip mesh and the driver that
// maintains it.
type Cluster struct {
	cfg config.Config
	log *zap.Logger
	clk clock.Clock
	tr  transport.Transport

	table *membership.Table
	det   *detector.Detector
	diss  *gossip.Disseminator
	bus   *event.Bus

	// seeds still awaiting first contact; re-synced every probe tick.
	seeds []string

	// waitList maps the relay-local sequence of a forwarded ping back to
	// the origin and the sequence the origin is waiting on.
	waitList map[uint32]waitEntry

	nextProbe time.Time
	nextSync  time.Time

	snapshot atomic.Value // []membership.Member

	commands chan func()
	stop     chan struct{}
	done     chan struct{}
	started  bool
	shutdown sync.Once
}

type waitEntry struct {
	origin    string
	originSeq uint32
	deadline  time.Time
}

// Option adjusts construction, mainly for tests.
type Option func(*options)

type options struct {
	clk clock.Clock
	id  membership.ID
}

// WithClock substitutes the time source.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clk = clk }
}

// WithID fixes the node ID instead of generating one.
func WithID(id membership.ID) Option {
	return func(o *options) { o.id = id }
}

// New assembles a node around an already-bound transport. The node ID
// is generated fresh: a restarted process joins as a new member.
func New(cfg config.Config, tr transport.Transport, logger *zap.Logger, opts ...Option) (*Cluster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{clk: clock.System{}, id: membership.ID(uuid.NewString())}
	for _, opt := range opts {
		opt(&o)
	}

	seed := cfg.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	log := logger.With(zap.String("node", string(o.id)))

	c := &Cluster{
		cfg:      cfg,
		log:      log,
		clk:      o.clk,
		tr:       tr,
		waitList: make(map[uint32]waitEntry),
		commands: make(chan func()),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	self := membership.Member{ID: o.id, Addr: tr.LocalAddr()}
	c.table = membership.NewTable(self, o.clk, rng, log)
	c.det = detector.New(cfg.ProbeTimeout, cfg.IndirectTimeout, cfg.SuspicionTimeout, o.clk, log)
	c.diss = gossip.New(cfg.MaxSends, cfg.MaxPiggyback, cfg.MaxDatagramSize, log)
	c.bus = event.NewBus(log)
	c.table.SetOnChange(c.onChange)

	for _, s := range cfg.Seeds {
		if s != tr.LocalAddr() {
			c.seeds = append(c.seeds, s)
		}
	}

	// Announce ourselves: the very first messages we send carry our own
	// Alive fact.
	c.diss.Enqueue(wire.EventFromMember(c.table.Self()))

	now := o.clk.Now()
	c.nextProbe = now
	c.nextSync = now.Add(cfg.AntiEntropyInterval)
	c.snapshot.Store(c.table.Snapshot())

	return c, nil
}

// onChange is the table's hook: every accepted state change feeds the
// gossip buffer, the event bus and the suspicion timers.
func (c *Cluster) onChange(m membership.Member, prev membership.State, joined bool) {
	c.diss.Enqueue(wire.EventFromMember(m))
	c.bus.Publish(event.Change{Member: m, Prev: prev, Joined: joined})
	c.det.NoteState(m.ID, m.State, m.Incarnation)
}

// Start launches the driver goroutine. The loop polls the transport at
// a fraction of the probe interval; all protocol timing is gated on
// clock deadlines inside Tick, not on the poll cadence.
func (c *Cluster) Start() {
	if c.started {
		return
	}
	c.started = true

	poll := c.cfg.ProbeInterval / 10
	if poll < time.Millisecond {
		poll = time.Millisecond
	}

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case fn := <-c.commands:
				fn()
			case <-ticker.C:
				c.Tick()
			}
		}
	}()

	c.log.Info("cluster driver started",
		zap.String("addr", c.tr.LocalAddr()),
		zap.Int("seeds", len(c.seeds)))
}

// do runs fn on the driver goroutine and waits for it. Before Start the
// caller is the only goroutine touching protocol state, so fn runs
// inline; tests rely on that.
func (c *Cluster) do(fn func()) {
	if !c.started {
		fn()
		return
	}
	doneCh := make(chan struct{})
	select {
	case c.commands <- func() { fn(); close(doneCh) }:
		<-doneCh
	case <-c.done:
	}
}

// Leave announces a voluntary departure: self moves to Left at the
// current incarnation and the fact is pushed to a few peers immediately
// rather than waiting for the next probe to carry it.
func (c *Cluster) Leave() {
	c.do(func() {
		c.table.Leave()
		for _, p := range c.table.RandomAliveN(c.cfg.IndirectRelays, nil) {
			c.send(p.Addr, &wire.Envelope{Kind: wire.Gossip})
		}
		c.log.Info("left cluster")
	})
}

// Shutdown stops the driver, releases the socket and closes the event
// bus. In-flight probes are abandoned; UDP tolerates that.
func (c *Cluster) Shutdown() {
	c.shutdown.Do(func() {
		if c.started {
			close(c.stop)
			<-c.done
		}
		if err := c.tr.Close(); err != nil {
			c.log.Warn("closing transport", zap.Error(err))
		}
		c.bus.Close()
		c.log.Info("cluster driver stopped")
	})
}

// Members returns the most recent membership snapshot. Safe from any
// goroutine; the slice is never mutated after publication.
func (c *Cluster) Members() []membership.Member {
	return c.snapshot.Load().([]membership.Member)
}

// Self returns this node's own record from the latest snapshot.
func (c *Cluster) Self() membership.Member {
	for _, m := range c.Members() {
		if m.Addr == c.tr.LocalAddr() {
			return m
		}
	}
	return membership.Member{}
}

// Subscribe registers a membership-change consumer.
func (c *Cluster) Subscribe() <-chan event.Change {
	return c.bus.Subscribe()
}

// SubscribeFunc registers a membership-change callback.
func (c *Cluster) SubscribeFunc(fn func(event.Change)) {
	c.bus.SubscribeFunc(fn)
}

func (c *Cluster) updateGauges() {
	counts := c.table.Counts()
	for _, s := range []membership.State{membership.Alive, membership.Suspect, membership.Confirmed, membership.Left} {
		telemetry.MembersByState.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}
