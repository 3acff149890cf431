// Package clock abstracts the time source behind the protocol's timers.
// Probe deadlines, suspicion timeouts and anti-entropy scheduling are all
// expressed as deadlines compared against a Clock, so tests can advance
// time manually instead of sleeping.
package clock
