package it

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swim/internal/membership"
)

func TestPartition_RelayKeepsUnreachablePeerAlive(t *testing.T) {
	h := NewHarness(t)
	h.StartNode("n1")
	h.StartNode("n2", "n1")
	h.StartNode("n3", "n1")
	h.Run(5 * time.Second)
	h.AllSee(membership.Alive, "n1", "n2", "n3")

	// n1 and n2 cannot talk directly, but n3 can relay probes for both.
	h.Partition("n1", "n2")

	for i := 0; i < 30; i++ {
		h.Run(time.Second)
		s, ok := h.StateOn("n1", "n2")
		require.True(t, ok)
		assert.NotEqual(t, membership.Confirmed, s,
			"indirect probing must keep the partitioned peer out of Confirmed")
	}

	h.Run(5 * time.Second)
	s, _ := h.StateOn("n1", "n2")
	assert.Equal(t, membership.Alive, s, "relayed acks keep the peer Alive")
	s, _ = h.StateOn("n2", "n1")
	assert.Equal(t, membership.Alive, s, "the relay works both ways")
}

func TestPartition_IsolatedNodeRefutesAfterHeal(t *testing.T) {
	h := NewHarness(t)
	h.StartNode("n1")
	h.StartNode("n2", "n1")
	h.StartNode("n3", "n1")
	h.Run(5 * time.Second)

	// n2 loses both links; no relay path remains, so the survivors
	// eventually confirm it dead.
	h.Partition("n1", "n2")
	h.Partition("n3", "n2")
	h.Run(30 * time.Second)

	s, _ := h.StateOn("n1", "n2")
	require.Equal(t, membership.Confirmed, s, "fully isolated node gets Confirmed")

	// The partition heals. Anti-entropy tells n2 what the others think
	// of it; n2 answers with a higher incarnation and rejoins.
	h.Heal("n1", "n2")
	h.Heal("n3", "n2")
	h.Run(30 * time.Second)

	s, _ = h.StateOn("n1", "n2")
	assert.Equal(t, membership.Alive, s, "refutation overturns the Confirmed verdict")
	m := memberOn(h, "n1", "n2")
	assert.Greater(t, m.Incarnation, uint64(0), "refutation requires an incarnation bump")
}

func memberOn(h *Harness, observer, subject string) membership.Member {
	for _, m := range h.Node(observer).Members() {
		if m.ID == membership.ID(subject) {
			return m
		}
	}
	return membership.Member{}
}
