package membership

import (
	"math/rand"
	"testing"
	"time"

	"go.uber.org/zap"

	"swim/internal/clock"
)

// rankPair orders (incarnation, state) lexicographically, mirroring the
// acceptance rule the table must uphold.
func rankPair(inc uint64, s State) uint64 {
	return inc*4 + uint64(s)
}

// TestTable_InvariantMonotonicPairs feeds random update sequences and
// checks that after every Apply the held (incarnation, state) pair is
// greater than or equal to every pair ever supplied for that member.
func TestTable_InvariantMonotonicPairs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 100; trial++ {
		clk := clock.NewManual(time.Unix(0, 0))
		tbl := NewTable(Member{ID: "local", Addr: "l"}, clk, rand.New(rand.NewSource(int64(trial))), zap.NewNop())

		ids := []ID{"a", "b", "c"}
		maxSupplied := make(map[ID]uint64)

		for step := 0; step < 200; step++ {
			u := Member{
				ID:          ids[rng.Intn(len(ids))],
				Addr:        "x",
				State:       State(rng.Intn(4)),
				Incarnation: uint64(rng.Intn(5)),
			}

			changed := tbl.Apply(u)
			supplied := rankPair(u.Incarnation, u.State)
			if supplied > maxSupplied[u.ID] {
				maxSupplied[u.ID] = supplied
			}

			held, ok := tbl.Get(u.ID)
			if !ok {
				t.Fatalf("trial %d step %d: member %s missing after apply", trial, step, u.ID)
			}
			heldPair := rankPair(held.Incarnation, held.State)

			if heldPair < maxSupplied[u.ID] {
				t.Fatalf("trial %d step %d: held pair (%d,%v) below supplied maximum",
					trial, step, held.Incarnation, held.State)
			}
			if changed && heldPair != supplied {
				t.Fatalf("trial %d step %d: accepted update not reflected", trial, step)
			}
			if !changed && heldPair == supplied && held.State != u.State {
				t.Fatalf("trial %d step %d: rejected update equals held pair but differs in state", trial, step)
			}
		}
	}
}

// TestTable_InvariantNeverRegresses applies every ordered pair of
// updates and verifies the second never downgrades an accepted first.
func TestTable_InvariantNeverRegresses(t *testing.T) {
	states := []State{Alive, Suspect, Confirmed, Left}
	incs := []uint64{0, 1, 2}

	for _, s1 := range states {
		for _, i1 := range incs {
			for _, s2 := range states {
				for _, i2 := range incs {
					clk := clock.NewManual(time.Unix(0, 0))
					tbl := NewTable(Member{ID: "local", Addr: "l"}, clk, rand.New(rand.NewSource(1)), zap.NewNop())

					tbl.Apply(Member{ID: "m", Addr: "x", State: s1, Incarnation: i1})
					tbl.Apply(Member{ID: "m", Addr: "x", State: s2, Incarnation: i2})

					held, _ := tbl.Get("m")
					want := rankPair(i1, s1)
					if p := rankPair(i2, s2); p > want {
						want = p
					}
					if got := rankPair(held.Incarnation, held.State); got != want {
						t.Errorf("(%v,%d) then (%v,%d): held (%v,%d), want pair %d",
							s1, i1, s2, i2, held.State, held.Incarnation, want)
					}
				}
			}
		}
	}
}
