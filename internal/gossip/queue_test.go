package gossip

import (
	"testing"

	"swim/internal/wire"
)

func ev(id string, inc uint64) wire.Event {
	return wire.Event{ID: id, Addr: id + ":7946", Incarnation: inc}
}

func TestQueue_PriorityOrder(t *testing.T) {
	q := NewQueue(5)
	q.Put(ev("a", 0))
	q.Put(ev("b", 0))
	q.Put(ev("c", 0))

	// Zero-send events come out newest first.
	staged := q.PopCandidates(3)
	popOrder := []string{"c", "b", "a"}
	for i, it := range staged {
		if it.Event.ID != popOrder[i] {
			t.Fatalf("Position %d: expected %s, got %s", i, popOrder[i], it.Event.ID)
		}
	}

	// Send the top two (c, b) once; a stays at zero sends.
	q.Requeue(staged, 2)

	// Fewest sends first: a. Among the once-sent, newest first: c.
	got := q.PopCandidates(3)
	wantOrder := []string{"a", "c", "b"}
	for i, it := range got {
		if it.Event.ID != wantOrder[i] {
			t.Errorf("Position %d: expected %s, got %s (sends=%d)", i, wantOrder[i], it.Event.ID, it.Sends)
		}
	}
}

func TestQueue_EvictsAfterMaxSends(t *testing.T) {
	q := NewQueue(3)
	q.Put(ev("a", 0))

	for i := 0; i < 3; i++ {
		if q.Len() != 1 {
			t.Fatalf("Send %d: expected event still pending", i)
		}
		staged := q.PopCandidates(1)
		q.Requeue(staged, 1)
	}

	if q.Len() != 0 {
		t.Errorf("Expected eviction after 3 sends, %d events remain", q.Len())
	}
}

func TestQueue_SupersedeResetsSendCount(t *testing.T) {
	q := NewQueue(3)
	q.Put(ev("a", 0))

	staged := q.PopCandidates(1)
	q.Requeue(staged, 1)

	// A newer fact about the same member replaces the old one outright.
	q.Put(ev("a", 1))
	if q.Len() != 1 {
		t.Fatalf("Expected 1 pending event, got %d", q.Len())
	}

	it := q.PopCandidates(1)[0]
	if it.Event.Incarnation != 1 {
		t.Errorf("Expected superseding incarnation 1, got %d", it.Event.Incarnation)
	}
	if it.Sends != 0 {
		t.Errorf("Expected fresh send count, got %d", it.Sends)
	}
}

func TestQueue_SupersedeWhilePopped(t *testing.T) {
	q := NewQueue(5)
	q.Put(ev("a", 0))

	staged := q.PopCandidates(1)
	q.Put(ev("a", 2)) // arrives while the old event is staged for send
	q.Requeue(staged, 1)

	if q.Len() != 1 {
		t.Fatalf("Expected only the superseding event, got %d", q.Len())
	}
	it := q.PopCandidates(1)[0]
	if it.Event.Incarnation != 2 {
		t.Errorf("Expected incarnation 2 to survive, got %d", it.Event.Incarnation)
	}
}

func TestQueue_PopCandidatesBounded(t *testing.T) {
	q := NewQueue(5)
	for _, id := range []string{"a", "b", "c"} {
		q.Put(ev(id, 0))
	}

	staged := q.PopCandidates(10)
	if len(staged) != 3 {
		t.Errorf("Expected 3 candidates, got %d", len(staged))
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue while staged, got %d", q.Len())
	}
}
