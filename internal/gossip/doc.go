// Package gossip disseminates membership events by piggybacking them on
// the messages the failure detector already sends. Events wait in a
// bounded priority queue ordered by fewest prior transmissions first,
// then newest first, so fresh facts spread breadth-first across the
// cluster. An event retires after a configured number of transmissions
// or as soon as a newer fact about the same member supersedes it.
package gossip
