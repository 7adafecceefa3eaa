package rrcache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// shard is one exclusive section of the cache: a map from domain to entry,
// an ordered recency list (most-recent at the front), and an index from
// domain to its list element. The three structures share a key set at
// every quiescent observation point.
type shard struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*entry
	order    *list.List // element.Value is a string (domain name)
	index    map[string]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64
}

func newShard(capacity int) *shard {
	return &shard{
		capacity: capacity,
		entries:  make(map[string]*entry),
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// get returns the cached IPv4 for name if present and unexpired, reaping
// expired entries in the shard first (including, opportunistically, name
// itself if it is the one that's stale).
func (s *shard) get(name string, now time.Time) ([4]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reapExpiredLocked(now)

	e, ok := s.entries[name]
	if !ok {
		atomic.AddUint64(&s.misses, 1)
		return [4]byte{}, false
	}
	e.touch()
	atomic.AddUint64(&s.hits, 1)
	s.touchLRULocked(name)
	return e.ip, true
}

// set inserts or overwrites name's entry, evicting the LRU tail first if
// the shard is at capacity, then moves name to the head of the recency
// list.
func (s *shard) set(name string, ip [4]byte, ttl time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reapExpiredLocked(now)

	if _, exists := s.entries[name]; !exists && len(s.entries) >= s.capacity {
		s.evictLRULocked()
	}

	s.entries[name] = &entry{ip: ip, expires: now.Add(ttl)}
	s.touchLRULocked(name)
}

// sweep reaps expired entries without touching recency order.
func (s *shard) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapExpiredLocked(now)
}

// statsSnapshot returns this shard's counters and current size.
func (s *shard) statsSnapshot() (hits, misses, evictions uint64, size int) {
	s.mu.Lock()
	size = len(s.entries)
	s.mu.Unlock()
	return atomic.LoadUint64(&s.hits), atomic.LoadUint64(&s.misses), atomic.LoadUint64(&s.evictions), size
}

// reapExpiredLocked removes every entry whose expiry has passed. Caller
// must hold s.mu.
func (s *shard) reapExpiredLocked(now time.Time) {
	for name, e := range s.entries {
		if !e.valid(now) {
			s.removeLocked(name)
		}
	}
}

// evictLRULocked removes the tail of the recency list — the least
// recently used entry — and bumps the eviction counter. Caller must hold
// s.mu.
func (s *shard) evictLRULocked() {
	tail := s.order.Back()
	if tail == nil {
		return
	}
	name := tail.Value.(string)
	s.removeLocked(name)
	atomic.AddUint64(&s.evictions, 1)
}

// removeLocked deletes name from all three structures. Caller must hold
// s.mu.
func (s *shard) removeLocked(name string) {
	delete(s.entries, name)
	if el, ok := s.index[name]; ok {
		s.order.Remove(el)
		delete(s.index, name)
	}
}

// touchLRULocked moves name to the head of the recency list, inserting it
// if absent. Caller must hold s.mu.
func (s *shard) touchLRULocked(name string) {
	if el, ok := s.index[name]; ok {
		s.order.Remove(el)
	}
	s.index[name] = s.order.PushFront(name)
}
