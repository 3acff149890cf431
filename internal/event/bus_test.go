package event

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"swim/internal/membership"
)

func change(id string, state membership.State) Change {
	return Change{
		Member: membership.Member{ID: membership.ID(id), State: state},
		Prev:   membership.Alive,
	}
}

func TestBus_DeliversInOrder(t *testing.T) {
	b := NewBus(zap.NewNop())
	ch := b.Subscribe()

	b.Publish(change("n1", membership.Suspect))
	b.Publish(change("n1", membership.Confirmed))
	b.Publish(change("n2", membership.Alive))
	b.Close()

	var got []Change
	for c := range ch {
		got = append(got, c)
	}

	if len(got) != 3 {
		t.Fatalf("Expected 3 changes, got %d", len(got))
	}
	if got[0].Member.State != membership.Suspect || got[1].Member.State != membership.Confirmed {
		t.Errorf("Order not preserved: %v then %v", got[0].Member.State, got[1].Member.State)
	}
	if got[2].Member.ID != "n2" {
		t.Errorf("Expected n2 last, got %s", got[2].Member.ID)
	}
}

func TestBus_PublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := NewBus(zap.NewNop())
	ch := b.Subscribe() // never read until the end

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			b.Publish(change("n1", membership.Suspect))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on an unread subscriber")
	}

	b.Close()
	count := 0
	for range ch {
		count++
	}
	if count != 1000 {
		t.Errorf("Expected all 1000 changes delivered, got %d", count)
	}
}

func TestBus_FanOut(t *testing.T) {
	b := NewBus(zap.NewNop())
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()

	b.Publish(change("n1", membership.Suspect))
	b.Close()

	for i, ch := range []<-chan Change{ch1, ch2} {
		select {
		case c, ok := <-ch:
			if !ok {
				t.Fatalf("Subscriber %d: channel closed before delivery", i)
			}
			if c.Member.ID != "n1" {
				t.Errorf("Subscriber %d: got %s", i, c.Member.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("Subscriber %d: no delivery", i)
		}
	}
}

func TestBus_LateSubscriberSeesNoHistory(t *testing.T) {
	b := NewBus(zap.NewNop())
	b.Publish(change("n1", membership.Suspect))

	ch := b.Subscribe()
	b.Publish(change("n2", membership.Alive))
	b.Close()

	var got []Change
	for c := range ch {
		got = append(got, c)
	}
	if len(got) != 1 || got[0].Member.ID != "n2" {
		t.Errorf("Expected only post-subscription change, got %+v", got)
	}
}

func TestBus_SubscribeFunc(t *testing.T) {
	b := NewBus(zap.NewNop())

	got := make(chan Change, 1)
	b.SubscribeFunc(func(c Change) { got <- c })

	b.Publish(change("n1", membership.Left))

	select {
	case c := <-got:
		if c.Member.State != membership.Left {
			t.Errorf("Expected Left, got %v", c.Member.State)
		}
	case <-time.After(time.Second):
		t.Fatal("Callback never invoked")
	}
	b.Close()
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	b := NewBus(zap.NewNop())
	b.Close()

	ch := b.Subscribe()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Expected closed channel to deliver nothing")
		}
	case <-time.After(time.Second):
		t.Fatal("Channel from closed bus should be closed immediately")
	}
}
