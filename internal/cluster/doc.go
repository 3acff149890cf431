// Package cluster runs the protocol driver: a single goroutine that
// owns the membership table, the probe and suspicion timers, and the
// gossip buffer. Inbound datagrams are polled and handled inside the
// same tick as outbound probing, so protocol state needs no locking;
// everything that leaves the loop (event-bus deliveries, snapshots) is
// a copy.
//
// The driver never stops over a bad peer: malformed datagrams are
// dropped, transport errors degrade into probe timeouts, and a silent
// member walks Suspect then Confirmed instead of raising anything.
package cluster
