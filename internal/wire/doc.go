// Package wire defines the datagram protocol: five message kinds in a
// single msgpack-encoded envelope, each small enough to fit one
// unfragmented UDP datagram. Encoding trims piggybacked events rather
// than exceeding the configured datagram size; decoding never panics and
// reports malformed payloads so the caller can drop them and continue.
package wire
