package event

import (
	"sync"

	"go.uber.org/zap"

	"swim/internal/membership"
)

// Change is one accepted membership state change. Joined marks the first
// sighting of a member, in which case Prev equals the joining state.
type Change struct {
	Member membership.Member
	Prev   membership.State
	Joined bool
}

// Bus delivers changes to all subscribers in the order they were
// published. There is no replay: a late subscriber sees only changes
// published after it subscribed.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscriber
	logger *zap.Logger
	closed bool
}

type subscriber struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []Change
	closed  bool
	out     chan Change
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a new consumer and returns its delivery channel.
// The channel closes after Close once every published change has been
// delivered.
func (b *Bus) Subscribe() <-chan Change {
	s := &subscriber{out: make(chan Change, 16)}
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.out)
		return s.out
	}
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	go s.pump()
	return s.out
}

// SubscribeFunc registers a callback consumer. The callback runs on its
// own goroutine and must not be assumed to run on the driver.
func (b *Bus) SubscribeFunc(fn func(Change)) {
	ch := b.Subscribe()
	go func() {
		for c := range ch {
			fn(c)
		}
	}()
}

// Publish hands a change to every subscriber. It never blocks: changes
// queue unboundedly per subscriber so the protocol driver cannot be
// stalled by a slow consumer.
func (b *Bus) Publish(c Change) {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		if !s.closed {
			s.pending = append(s.pending, c)
			s.cond.Signal()
		}
		s.mu.Unlock()
	}
}

// Close stops the bus. Pending changes are still delivered, then every
// subscriber channel closes.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		s.closed = true
		s.cond.Signal()
		s.mu.Unlock()
	}
}

func (s *subscriber) pump() {
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.closed {
			s.cond.Wait()
		}
		batch := s.pending
		s.pending = nil
		closed := s.closed
		s.mu.Unlock()

		for _, c := range batch {
			s.out <- c
		}
		if closed && len(batch) == 0 {
			close(s.out)
			return
		}
		if closed {
			// Drain anything published before Close flipped the flag.
			continue
		}
	}
}
