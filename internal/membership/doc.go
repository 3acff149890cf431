// Package membership owns the per-member records and the conflict
// resolution rule that keeps every node's view convergent.
//
// An update about a member is accepted only if its (incarnation, state)
// pair is lexicographically greater than the pair already held, where
// states order Alive < Suspect < Confirmed < Left. Incarnation numbers
// are incremented only by the member they belong to, which is what lets
// a suspected node refute stale failure claims about itself.
//
// The Table is exclusively owned by the protocol driver goroutine and is
// deliberately unlocked; concurrent readers get copies via Snapshot.
package membership
