// Package rrcache implements the sharded TTL+LRU resolution cache: the
// component between the precompiled table and the upstream resolver in
// the dispatcher's tier ladder.
package rrcache

import (
	"hash/maphash"
	"time"
)

const (
	// NumShards must be a power of two so shard selection can mask instead
	// of mod.
	NumShards = 16
	// ShardCapacity is the maximum number of entries held per shard,
	// matching the original 8192-entry / 16-shard sizing.
	ShardCapacity = 512
)

// Stats is a point-in-time snapshot of aggregated cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

// Cache is the narrow repository interface the dispatcher depends on,
// rather than the concrete shard type.
type Cache interface {
	Get(name string, now time.Time) ([4]byte, bool)
	Set(name string, ip [4]byte, ttl time.Duration, now time.Time)
	Sweep(now time.Time)
	Stats() Stats
}

// shardedCache is a fixed set of independently-locked shards, selected by
// a stable-within-process hash of the domain name.
type shardedCache struct {
	shards [NumShards]*shard
	seed   maphash.Seed
}

// New constructs a cache with NumShards shards of ShardCapacity entries
// each.
func New() Cache {
	c := &shardedCache{seed: maphash.MakeSeed()}
	for i := range c.shards {
		c.shards[i] = newShard(ShardCapacity)
	}
	return c
}

// Get looks up name in its shard.
func (c *shardedCache) Get(name string, now time.Time) ([4]byte, bool) {
	return c.shardFor(name).get(name, now)
}

// Set inserts or overwrites name's entry in its shard.
func (c *shardedCache) Set(name string, ip [4]byte, ttl time.Duration, now time.Time) {
	c.shardFor(name).set(name, ip, ttl, now)
}

// Sweep reaps expired entries across every shard.
func (c *shardedCache) Sweep(now time.Time) {
	for _, s := range c.shards {
		s.sweep(now)
	}
}

// Stats aggregates every shard's counters under relaxed-ordering loads.
func (c *shardedCache) Stats() Stats {
	var total Stats
	for _, s := range c.shards {
		hits, misses, evictions, size := s.statsSnapshot()
		total.Hits += hits
		total.Misses += misses
		total.Evictions += evictions
		total.Size += size
	}
	return total
}

// shardFor returns the shard owning name, selected by a hash masked by
// NumShards-1. The hash seed is fixed per-process (stable within a run,
// not across runs — exactly what the spec requires).
func (c *shardedCache) shardFor(name string) *shard {
	var h maphash.Hash
	h.SetSeed(c.seed)
	_, _ = h.WriteString(name)
	idx := h.Sum64() & (NumShards - 1)
	return c.shards[idx]
}

var _ Cache = (*shardedCache)(nil)
