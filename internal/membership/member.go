package membership

import "time"

// ID uniquely identifies a node. IDs are generated fresh on each process
// start, so a restarted node rejoins as a new member.
type ID string

// State is a member's liveness state.
type State uint8

const (
	// Alive means the member is believed reachable.
	Alive State = iota
	// Suspect means a probe of the member failed and it has not yet
	// refuted the suspicion.
	Suspect
	// Confirmed means the suspicion timeout expired without refutation.
	Confirmed
	// Left means the member announced a voluntary departure.
	Left
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case Alive:
		return "ALIVE"
	case Suspect:
		return "SUSPECT"
	case Confirmed:
		return "CONFIRMED"
	case Left:
		return "LEFT"
	default:
		return "UNKNOWN"
	}
}

// Member is one entry in the membership table.
type Member struct {
	ID          ID
	Addr        string
	State       State
	Incarnation uint64
	LastChange  time.Time
}

// Supersedes reports whether u wins conflict resolution against cur:
// higher incarnation always wins, equal incarnation prefers the more
// failed state.
func (u Member) Supersedes(cur Member) bool {
	if u.Incarnation != cur.Incarnation {
		return u.Incarnation > cur.Incarnation
	}
	return u.State > cur.State
}
