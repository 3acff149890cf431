// Package discovery resolves the seed addresses a node bootstraps from.
// The protocol driver only ever sees a flat address list; where that
// list comes from (flags, etcd) is decided here.
package discovery

import "context"

// Discovery produces the initial seed list for a starting node.
type Discovery interface {
	// Seeds returns peer addresses to sync with at startup. An empty
	// list is valid: the node starts a cluster of one.
	Seeds(ctx context.Context) ([]string, error)
}

// Static serves a fixed seed list, typically parsed from flags.
type Static []string

// Seeds returns the configured list unchanged.
func (s Static) Seeds(context.Context) ([]string, error) {
	return []string(s), nil
}
