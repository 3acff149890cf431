package membership

import (
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"swim/internal/clock"
)

// ChangeFunc is invoked whenever the table accepts a state change.
// joined is true the first time a member is seen. The Member value is a
// copy, safe to hand off to other goroutines.
type ChangeFunc func(m Member, prev State, joined bool)

// Table maps member IDs to their records. It is owned and mutated only
// by the protocol driver goroutine; no internal locking.
type Table struct {
	self     ID
	members  map[ID]*Member
	clk      clock.Clock
	rng      *rand.Rand
	logger   *zap.Logger
	onChange ChangeFunc
}

// NewTable creates a table containing only the local member, Alive at
// incarnation 0. The rand source is injectable so tests can make peer
// selection deterministic.
func NewTable(self Member, clk clock.Clock, rng *rand.Rand, logger *zap.Logger) *Table {
	self.State = Alive
	self.Incarnation = 0
	self.LastChange = clk.Now()

	t := &Table{
		self:    self.ID,
		members: make(map[ID]*Member),
		clk:     clk,
		rng:     rng,
		logger:  logger,
	}
	t.members[self.ID] = &self
	return t
}

// SetOnChange registers the change hook. Must be called before the
// driver starts applying updates.
func (t *Table) SetOnChange(fn ChangeFunc) {
	t.onChange = fn
}

// Apply runs the conflict-resolution rule against the incoming snapshot
// and returns whether local state changed. Losing updates are stale and
// silently ignored; updates about unknown members insert them. A
// Suspect/Confirmed/Left claim about the local member is refuted by
// bumping our own incarnation past the claim.
func (t *Table) Apply(u Member) bool {
	if u.ID == t.self {
		return t.applySelf(u)
	}

	cur, ok := t.members[u.ID]
	if !ok {
		m := u
		m.LastChange = t.clk.Now()
		t.members[u.ID] = &m
		t.logger.Info("member joined",
			zap.String("member", string(m.ID)),
			zap.String("addr", m.Addr),
			zap.String("state", m.State.String()),
			zap.Uint64("incarnation", m.Incarnation))
		t.fire(m, m.State, true)
		return true
	}

	if !u.Supersedes(*cur) {
		return false
	}

	prev := cur.State
	cur.State = u.State
	cur.Incarnation = u.Incarnation
	if u.Addr != "" {
		cur.Addr = u.Addr
	}
	cur.LastChange = t.clk.Now()
	t.logger.Info("member state changed",
		zap.String("member", string(cur.ID)),
		zap.String("from", prev.String()),
		zap.String("to", cur.State.String()),
		zap.Uint64("incarnation", cur.Incarnation))
	t.fire(*cur, prev, false)
	return true
}

// applySelf handles claims about the local member. Only we may move our
// own incarnation, so any failure claim at our incarnation or later is
// answered with a fresh Alive at a higher one.
func (t *Table) applySelf(u Member) bool {
	me := t.members[t.self]
	if me.State == Left {
		// We are leaving; let the claim stand elsewhere.
		return false
	}
	if u.State == Alive || u.Incarnation < me.Incarnation {
		return false
	}

	prev := me.State
	me.Incarnation = u.Incarnation + 1
	me.State = Alive
	me.LastChange = t.clk.Now()
	t.logger.Info("refuting failure claim about self",
		zap.String("claimed", u.State.String()),
		zap.Uint64("incarnation", me.Incarnation))
	t.fire(*me, prev, false)
	return true
}

// MarkSuspect records a failed probe of id at the given incarnation.
func (t *Table) MarkSuspect(id ID, incarnation uint64) bool {
	return t.Apply(Member{ID: id, State: Suspect, Incarnation: incarnation})
}

// MarkConfirmed records an expired suspicion of id.
func (t *Table) MarkConfirmed(id ID, incarnation uint64) bool {
	return t.Apply(Member{ID: id, State: Confirmed, Incarnation: incarnation})
}

// MarkAlive records liveness of id at the given incarnation.
func (t *Table) MarkAlive(id ID, incarnation uint64) bool {
	return t.Apply(Member{ID: id, State: Alive, Incarnation: incarnation})
}

// EnsureMember inserts an Alive record at incarnation 0 on first contact
// with an unknown sender. Known senders are left untouched.
func (t *Table) EnsureMember(id ID, addr string) bool {
	if _, ok := t.members[id]; ok {
		return false
	}
	return t.Apply(Member{ID: id, Addr: addr, State: Alive, Incarnation: 0})
}

// Leave transitions the local member to Left at its current incarnation
// and returns the resulting record.
func (t *Table) Leave() Member {
	me := t.members[t.self]
	if me.State != Left {
		prev := me.State
		me.State = Left
		me.LastChange = t.clk.Now()
		t.fire(*me, prev, false)
	}
	return *me
}

// Self returns a copy of the local member record.
func (t *Table) Self() Member {
	return *t.members[t.self]
}

// Get returns a copy of the record for id.
func (t *Table) Get(id ID) (Member, bool) {
	m, ok := t.members[id]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

// Len returns the number of known members, local member included.
func (t *Table) Len() int {
	return len(t.members)
}

// Snapshot returns copies of every record. Iteration order is not
// deterministic across calls, which anti-entropy does not require.
func (t *Table) Snapshot() []Member {
	out := make([]Member, 0, len(t.members))
	for _, m := range t.members {
		out = append(out, *m)
	}
	return out
}

// Counts returns the number of members in each state, for metrics.
func (t *Table) Counts() map[State]int {
	counts := make(map[State]int, 4)
	for _, m := range t.members {
		counts[m.State]++
	}
	return counts
}

// RandomAlive picks one Alive member uniformly, excluding the local
// member and any ids in exclude.
func (t *Table) RandomAlive(exclude map[ID]struct{}) (Member, bool) {
	picked := t.RandomAliveN(1, exclude)
	if len(picked) == 0 {
		return Member{}, false
	}
	return picked[0], true
}

// RandomAliveN picks up to n distinct Alive members uniformly, excluding
// the local member and any ids in exclude. Used for probe targets and
// indirect-probe relays.
func (t *Table) RandomAliveN(n int, exclude map[ID]struct{}) []Member {
	candidates := make([]*Member, 0, len(t.members))
	for id, m := range t.members {
		if id == t.self || m.State != Alive {
			continue
		}
		if _, skip := exclude[id]; skip {
			continue
		}
		candidates = append(candidates, m)
	}
	// Sorted before sampling so a seeded rand source selects
	// reproducibly regardless of map iteration order.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]Member, 0, n)
	for _, idx := range t.rng.Perm(len(candidates))[:n] {
		out = append(out, *candidates[idx])
	}
	return out
}

// RandomContact picks one member for an anti-entropy exchange, any
// state but Left. Syncing with a member we believe failed is how a
// falsely accused node ever hears the verdict and refutes it.
func (t *Table) RandomContact() (Member, bool) {
	candidates := make([]*Member, 0, len(t.members))
	for id, m := range t.members {
		if id == t.self || m.State == Left {
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return Member{}, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return *candidates[t.rng.Intn(len(candidates))], true
}

func (t *Table) fire(m Member, prev State, joined bool) {
	if t.onChange != nil {
		t.onChange(m, prev, joined)
	}
}
