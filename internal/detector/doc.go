// Package detector tracks in-flight liveness probes and suspicion
// timers. Each probed target walks the ladder direct probe, indirect
// probe through relays, Suspect, Confirmed; an Ack at any rung before
// the deadline steps off, and a refutation clears a running suspicion.
//
// The detector decides, the driver acts: it hands back expiries and
// never touches the network itself, so the whole ladder is testable
// against a manual clock.
package detector
