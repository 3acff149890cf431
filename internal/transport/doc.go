// Package transport is the honest UDP contract the protocol is built
// against: send one datagram with no delivery or ordering guarantee, and
// poll for at most one pending datagram without blocking. A channel-based
// implementation provides the same contract in-process so multi-node
// protocol behavior can be simulated deterministically in tests.
package transport
