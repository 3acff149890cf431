package gossip

import (
	"container/heap"

	"swim/internal/wire"
)

// Item is one pending event with its transmission count.
type Item struct {
	Event wire.Event
	Sends int

	seq   uint64 // enqueue order; larger is newer
	index int
}

// Queue is the retransmission buffer. Pure data structure, no locking:
// it is owned by the driver goroutine like the rest of protocol state.
type Queue struct {
	maxSends int
	items    itemHeap
	byID     map[string]*Item
	nextSeq  uint64
}

// NewQueue creates a buffer whose events retire after maxSends
// transmissions.
func NewQueue(maxSends int) *Queue {
	return &Queue{
		maxSends: maxSends,
		byID:     make(map[string]*Item),
	}
}

// Put enqueues an event, superseding any pending event about the same
// member. The superseding event starts with a fresh send count.
func (q *Queue) Put(ev wire.Event) {
	if old, ok := q.byID[ev.ID]; ok {
		heap.Remove(&q.items, old.index)
		delete(q.byID, ev.ID)
	}
	it := &Item{Event: ev, seq: q.nextSeq}
	q.nextSeq++
	q.byID[ev.ID] = it
	heap.Push(&q.items, it)
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	return len(q.items)
}

// PopCandidates removes and returns up to max items in transmission
// priority order. The caller reports back through Requeue.
func (q *Queue) PopCandidates(max int) []*Item {
	if max > len(q.items) {
		max = len(q.items)
	}
	out := make([]*Item, 0, max)
	for len(out) < max {
		it := heap.Pop(&q.items).(*Item)
		delete(q.byID, it.Event.ID)
		out = append(out, it)
	}
	return out
}

// Requeue returns candidates to the buffer after a send attempt. The
// first sent items get their counts incremented and retire once they
// reach the maximum; the rest go back unchanged.
func (q *Queue) Requeue(items []*Item, sent int) {
	for i, it := range items {
		if i < sent {
			it.Sends++
		}
		if it.Sends >= q.maxSends {
			continue
		}
		if newer, ok := q.byID[it.Event.ID]; ok && newer.seq > it.seq {
			// Superseded while popped.
			continue
		}
		q.byID[it.Event.ID] = it
		heap.Push(&q.items, it)
	}
}

// itemHeap orders by send count ascending, then recency descending.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Sends != h[j].Sends {
		return h[i].Sends < h[j].Sends
	}
	return h[i].seq > h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*Item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
