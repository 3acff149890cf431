// Package config holds the protocol's tuning surface and seed parsing.
// The core consumes these knobs; it never reads flags or files itself.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Config holds everything the protocol driver needs to run one node.
type Config struct {
	// ClusterName is an opaque key carried on every message; datagrams
	// from a differently-named cluster are dropped.
	ClusterName string

	// BindAddr is the UDP listen address, host:port.
	BindAddr string

	// Seeds are addresses synced with at startup to bootstrap the
	// membership table.
	Seeds []string

	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	IndirectTimeout  time.Duration
	SuspicionTimeout time.Duration

	// IndirectRelays is how many members relay an indirect probe (k).
	IndirectRelays int

	// MaxPiggyback caps events attached to one outgoing message.
	MaxPiggyback int

	// MaxSends is how many transmissions an event gets before retiring
	// from the retransmission buffer.
	MaxSends int

	AntiEntropyInterval time.Duration

	// MaxDatagramSize bounds every message; piggyback is trimmed to fit
	// rather than fragmenting.
	MaxDatagramSize int

	// RandSeed makes peer selection deterministic when nonzero; tests
	// use it, production leaves it 0 for a time-derived seed.
	RandSeed int64
}

// Default returns the configuration a small LAN cluster runs with.
func Default() Config {
	return Config{
		ClusterName:         "swim",
		BindAddr:            "0.0.0.0:7946",
		ProbeInterval:       1 * time.Second,
		ProbeTimeout:        500 * time.Millisecond,
		IndirectTimeout:     1 * time.Second,
		SuspicionTimeout:    5 * time.Second,
		IndirectRelays:      3,
		MaxPiggyback:        8,
		MaxSends:            10,
		AntiEntropyInterval: 10 * time.Second,
		MaxDatagramSize:     1400,
	}
}

// Validate rejects configurations the protocol cannot run with.
func (c *Config) Validate() error {
	if c.ClusterName == "" {
		return fmt.Errorf("cluster name cannot be empty")
	}
	if c.BindAddr == "" {
		return fmt.Errorf("bind address cannot be empty")
	}
	for name, d := range map[string]time.Duration{
		"probe interval":        c.ProbeInterval,
		"probe timeout":         c.ProbeTimeout,
		"indirect timeout":      c.IndirectTimeout,
		"suspicion timeout":     c.SuspicionTimeout,
		"anti-entropy interval": c.AntiEntropyInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	if c.IndirectRelays < 1 {
		return fmt.Errorf("indirect relay count must be at least 1, got %d", c.IndirectRelays)
	}
	if c.MaxPiggyback < 1 {
		return fmt.Errorf("max piggyback must be at least 1, got %d", c.MaxPiggyback)
	}
	if c.MaxSends < 1 {
		return fmt.Errorf("max sends must be at least 1, got %d", c.MaxSends)
	}
	if c.MaxDatagramSize < 512 {
		return fmt.Errorf("max datagram size must be at least 512, got %d", c.MaxDatagramSize)
	}
	return nil
}

// MergeSeeds concatenates seed lists, dropping duplicates while keeping
// first-seen order. A seed listed twice would be synced twice every
// probe tick until both copies saw first contact.
func MergeSeeds(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// ParseSeeds parses a comma-separated list of seed addresses in the
// format "host1:port1,host2:port2".
func ParseSeeds(seedsStr string) ([]string, error) {
	if seedsStr == "" {
		return []string{}, nil
	}

	parts := strings.Split(seedsStr, ",")
	seeds := make([]string, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		host, port, err := net.SplitHostPort(part)
		if err != nil {
			return nil, fmt.Errorf("invalid seed address %q: %w", part, err)
		}
		if host == "" || port == "" {
			return nil, fmt.Errorf("seed host and port cannot be empty: %q", part)
		}
		seeds = append(seeds, part)
	}

	return seeds, nil
}
