// Package it runs whole-cluster scenarios on an in-process datagram
// fabric with a shared manual clock. Simulated time advances in fixed
// steps and every node ticks once per step, so a multi-node failure
// scenario that spans tens of protocol seconds runs in milliseconds and
// always the same way.
package it

import (
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"

	"swim/internal/clock"
	"swim/internal/cluster"
	"swim/internal/config"
	"swim/internal/membership"
	"swim/internal/transport"
)

const port = ":7946"

// Harness owns the fabric, the clock and the nodes of one scenario.
type Harness struct {
	t      *testing.T
	fabric *transport.Network
	clk    *clock.Manual
	nodes  map[string]*cluster.Cluster
	order  []string
	seedNo int64
}

// NewHarness creates an empty scenario.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	return &Harness{
		t:      t,
		fabric: transport.NewNetwork(),
		clk:    clock.NewManual(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		nodes:  make(map[string]*cluster.Cluster),
	}
}

// Addr returns the fabric address a node id maps to.
func Addr(id string) string {
	return id + port
}

// StartNode joins a node to the fabric. Node IDs double as member IDs,
// so assertions can look members up by the name the test gave them.
func (h *Harness) StartNode(id string, seeds ...string) *cluster.Cluster {
	h.t.Helper()
	return h.StartNodeAt(id, Addr(id), seeds...)
}

// StartNodeAt joins a node at an explicit address, for scenarios where
// a fresh process reuses a dead member's address.
func (h *Harness) StartNodeAt(id, addr string, seeds ...string) *cluster.Cluster {
	h.t.Helper()

	cfg := config.Default()
	cfg.BindAddr = addr
	for _, s := range seeds {
		cfg.Seeds = append(cfg.Seeds, Addr(s))
	}
	h.seedNo++
	cfg.RandSeed = h.seedNo

	c, err := cluster.New(cfg, h.fabric.Join(addr), zap.NewNop(),
		cluster.WithClock(h.clk), cluster.WithID(membership.ID(id)))
	if err != nil {
		h.t.Fatalf("Failed to start node %s: %v", id, err)
	}
	h.nodes[id] = c
	h.order = append(h.order, id)
	sort.Strings(h.order)
	return c
}

// Node returns a running node by id.
func (h *Harness) Node(id string) *cluster.Cluster {
	c, ok := h.nodes[id]
	if !ok {
		h.t.Fatalf("No node %s", id)
	}
	return c
}

// Kill detaches a node abruptly: its datagrams stop in both directions
// and it never ticks again, like a crashed process.
func (h *Harness) Kill(id string) {
	h.t.Helper()
	if _, ok := h.nodes[id]; !ok {
		h.t.Fatalf("No node %s to kill", id)
	}
	h.fabric.Silence(Addr(id))
	delete(h.nodes, id)
	for i, o := range h.order {
		if o == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Partition cuts both directions between two nodes.
func (h *Harness) Partition(a, b string) {
	h.fabric.Cut(Addr(a), Addr(b))
	h.fabric.Cut(Addr(b), Addr(a))
}

// Heal restores both directions between two nodes.
func (h *Harness) Heal(a, b string) {
	h.fabric.Heal(Addr(a), Addr(b))
	h.fabric.Heal(Addr(b), Addr(a))
}

// Run advances simulated time by total in fixed 100ms steps, ticking
// every live node once per step in id order.
func (h *Harness) Run(total time.Duration) {
	const step = 100 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		h.clk.Advance(step)
		for _, id := range h.order {
			h.nodes[id].Tick()
		}
	}
}

// StateOn reports how observer currently sees subject.
func (h *Harness) StateOn(observer, subject string) (membership.State, bool) {
	for _, m := range h.Node(observer).Members() {
		if m.ID == membership.ID(subject) {
			return m.State, true
		}
	}
	return 0, false
}

// AllSee asserts that every live node sees every listed member in the
// given state.
func (h *Harness) AllSee(state membership.State, ids ...string) {
	h.t.Helper()
	for _, observer := range h.order {
		for _, subject := range ids {
			got, ok := h.StateOn(observer, subject)
			if !ok {
				h.t.Errorf("Node %s does not know %s", observer, subject)
				continue
			}
			if got != state {
				h.t.Errorf("Node %s sees %s as %v, expected %v", observer, subject, got, state)
			}
		}
	}
}
