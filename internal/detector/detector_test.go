package detector

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"swim/internal/clock"
	"swim/internal/membership"
)

const (
	probeTimeout     = 500 * time.Millisecond
	indirectTimeout  = time.Second
	suspicionTimeout = 5 * time.Second
)

func newTestDetector() (*Detector, *clock.Manual) {
	clk := clock.NewManual(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	return New(probeTimeout, indirectTimeout, suspicionTimeout, clk, zap.NewNop()), clk
}

func target(id string) membership.Member {
	return membership.Member{ID: membership.ID(id), Addr: id + ":7946", State: membership.Alive, Incarnation: 2}
}

func TestDetector_AckBeforeDeadline(t *testing.T) {
	d, clk := newTestDetector()

	seq, ok := d.Start(target("n1"))
	if !ok {
		t.Fatal("Expected probe to start")
	}

	clk.Advance(probeTimeout / 2)
	id, indirect, matched := d.Ack(seq)
	if !matched || id != "n1" || indirect {
		t.Errorf("Expected direct ack for n1, got id=%s indirect=%v matched=%v", id, indirect, matched)
	}

	clk.Advance(time.Hour)
	if exp := d.Expire(); len(exp) != 0 {
		t.Errorf("Acked probe must not expire, got %+v", exp)
	}
}

func TestDetector_DirectTimeoutEscalatesToIndirect(t *testing.T) {
	d, clk := newTestDetector()
	seq, _ := d.Start(target("n1"))

	clk.Advance(probeTimeout)
	exp := d.Expire()
	if len(exp) != 1 || exp[0].Kind != NeedIndirect {
		t.Fatalf("Expected NeedIndirect, got %+v", exp)
	}
	if exp[0].Seq != seq || exp[0].Addr != "n1:7946" || exp[0].Incarnation != 2 {
		t.Errorf("Expiry lost probe details: %+v", exp[0])
	}

	// The indirect window is open; nothing fires before it closes.
	clk.Advance(indirectTimeout / 2)
	if got := d.Expire(); len(got) != 0 {
		t.Errorf("Expected quiet indirect window, got %+v", got)
	}

	// A relayed ack with the same sequence number still resolves it.
	id, indirect, matched := d.Ack(seq)
	if !matched || id != "n1" || !indirect {
		t.Errorf("Expected indirect ack, got id=%s indirect=%v matched=%v", id, indirect, matched)
	}
}

func TestDetector_IndirectTimeoutBecomesSuspect(t *testing.T) {
	d, clk := newTestDetector()
	d.Start(target("n1"))

	clk.Advance(probeTimeout)
	d.Expire() // escalate to indirect

	clk.Advance(indirectTimeout)
	exp := d.Expire()
	if len(exp) != 1 || exp[0].Kind != BecameSuspect {
		t.Fatalf("Expected BecameSuspect, got %+v", exp)
	}
	if exp[0].Incarnation != 2 {
		t.Errorf("Suspect claim must carry last known incarnation, got %d", exp[0].Incarnation)
	}

	// The probe is gone; the same target can be probed again.
	if _, ok := d.Start(target("n1")); !ok {
		t.Error("Expected new probe after suspect transition")
	}
}

func TestDetector_SuspicionRunsFullTimeout(t *testing.T) {
	d, clk := newTestDetector()
	d.NoteState("n1", membership.Suspect, 3)

	// Never sooner than the configured timeout.
	clk.Advance(suspicionTimeout - time.Millisecond)
	if exp := d.Expire(); len(exp) != 0 {
		t.Fatalf("Confirmed too soon: %+v", exp)
	}

	clk.Advance(time.Millisecond)
	exp := d.Expire()
	if len(exp) != 1 || exp[0].Kind != ConfirmFailed {
		t.Fatalf("Expected ConfirmFailed, got %+v", exp)
	}
	if exp[0].Target != "n1" || exp[0].Incarnation != 3 {
		t.Errorf("Expiry lost suspicion details: %+v", exp[0])
	}
}

func TestDetector_RefutationCancelsSuspicion(t *testing.T) {
	d, clk := newTestDetector()
	d.NoteState("n1", membership.Suspect, 3)

	clk.Advance(suspicionTimeout / 2)
	d.NoteState("n1", membership.Alive, 4)

	clk.Advance(suspicionTimeout)
	if exp := d.Expire(); len(exp) != 0 {
		t.Errorf("Refuted suspicion must not confirm, got %+v", exp)
	}
}

func TestDetector_DuplicateSuspectKeepsOriginalDeadline(t *testing.T) {
	d, clk := newTestDetector()
	d.NoteState("n1", membership.Suspect, 3)

	clk.Advance(suspicionTimeout / 2)
	d.NoteState("n1", membership.Suspect, 3) // gossip echo

	clk.Advance(suspicionTimeout / 2)
	exp := d.Expire()
	if len(exp) != 1 || exp[0].Kind != ConfirmFailed {
		t.Errorf("Duplicate suspect claim must not extend the deadline, got %+v", exp)
	}
}

func TestDetector_ConfirmedCancelsProbe(t *testing.T) {
	d, clk := newTestDetector()
	seq, _ := d.Start(target("n1"))

	d.NoteState("n1", membership.Confirmed, 2)

	if _, _, matched := d.Ack(seq); matched {
		t.Error("Probe of a confirmed member should have been cancelled")
	}
	clk.Advance(time.Hour)
	if exp := d.Expire(); len(exp) != 0 {
		t.Errorf("Cancelled probe must not expire, got %+v", exp)
	}
}

func TestDetector_OneProbePerTarget(t *testing.T) {
	d, _ := newTestDetector()
	if _, ok := d.Start(target("n1")); !ok {
		t.Fatal("First probe should start")
	}
	if _, ok := d.Start(target("n1")); ok {
		t.Error("Second concurrent probe of the same target must be refused")
	}
	if _, ok := d.Start(target("n2")); !ok {
		t.Error("Probe of a different target should start")
	}
}

func TestDetector_FullLadderTiming(t *testing.T) {
	// A silent target is confirmed no sooner and no later than
	// probe + indirect + suspicion timeouts after the probe began.
	d, clk := newTestDetector()
	d.Start(target("n1"))

	clk.Advance(probeTimeout)
	if exp := d.Expire(); len(exp) != 1 || exp[0].Kind != NeedIndirect {
		t.Fatalf("Stage 1: %+v", exp)
	}

	clk.Advance(indirectTimeout)
	exp := d.Expire()
	if len(exp) != 1 || exp[0].Kind != BecameSuspect {
		t.Fatalf("Stage 2: %+v", exp)
	}
	// Driver would now apply Suspect and report it back.
	d.NoteState("n1", membership.Suspect, exp[0].Incarnation)

	clk.Advance(suspicionTimeout - time.Millisecond)
	if exp := d.Expire(); len(exp) != 0 {
		t.Fatalf("Confirmed before the bound: %+v", exp)
	}
	clk.Advance(time.Millisecond)
	if exp := d.Expire(); len(exp) != 1 || exp[0].Kind != ConfirmFailed {
		t.Fatalf("Stage 3: %+v", exp)
	}
}
