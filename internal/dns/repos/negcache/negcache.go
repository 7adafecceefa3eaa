// Package negcache holds a small, bounded record of names that recently
// failed upstream resolution, so a burst of repeated queries for the same
// bad name doesn't re-hit the upstream tier on every single datagram.
package negcache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize bounds how many distinct failing names are remembered at
// once; it does not need to be large; a storm targets a handful of names.
const DefaultSize = 256

// DefaultTTL is how long a failure is remembered before the name is
// given another chance against the upstream tier.
const DefaultTTL = 10 * time.Second

// NegativeCache is the interface the dispatcher consults before
// escalating to the upstream tier.
type NegativeCache interface {
	// MarkFailed records that name failed upstream resolution at now.
	MarkFailed(name string, now time.Time)
	// IsFailing reports whether name has a still-fresh recorded failure.
	IsFailing(name string, now time.Time) bool
}

type negativeCache struct {
	lru *lru.Cache[string, time.Time]
	ttl time.Duration
}

// New returns a NegativeCache bounded to size entries, each remembered
// for ttl.
func New(size int, ttl time.Duration) (NegativeCache, error) {
	cache, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, err
	}
	return &negativeCache{lru: cache, ttl: ttl}, nil
}

func (c *negativeCache) MarkFailed(name string, now time.Time) {
	c.lru.Add(name, now.Add(c.ttl))
}

func (c *negativeCache) IsFailing(name string, now time.Time) bool {
	expiry, ok := c.lru.Get(name)
	if !ok {
		return false
	}
	if now.After(expiry) {
		c.lru.Remove(name)
		return false
	}
	return true
}

var _ NegativeCache = (*negativeCache)(nil)
