package rrcache

import (
	"testing"
	"time"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestShard_GetMiss(t *testing.T) {
	s := newShard(4)
	if _, ok := s.get("example.com", baseTime); ok {
		t.Fatalf("expected miss on empty shard")
	}
	hits, misses, _, size := s.statsSnapshot()
	if hits != 0 || misses != 1 || size != 0 {
		t.Fatalf("unexpected stats after miss: hits=%d misses=%d size=%d", hits, misses, size)
	}
}

func TestShard_SetThenGet(t *testing.T) {
	s := newShard(4)
	s.set("example.com", [4]byte{1, 2, 3, 4}, 300*time.Second, baseTime)

	ip, ok := s.get("example.com", baseTime)
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if ip != ([4]byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected ip: %v", ip)
	}
	hits, misses, _, size := s.statsSnapshot()
	if hits != 1 || misses != 0 || size != 1 {
		t.Fatalf("unexpected stats: hits=%d misses=%d size=%d", hits, misses, size)
	}
}

func TestShard_ExpiredEntryMissesAndIsReaped(t *testing.T) {
	s := newShard(4)
	s.set("example.com", [4]byte{1, 1, 1, 1}, time.Second, baseTime)

	later := baseTime.Add(2 * time.Second)
	if _, ok := s.get("example.com", later); ok {
		t.Fatalf("expected expired entry to miss")
	}
	_, _, _, size := s.statsSnapshot()
	if size != 0 {
		t.Fatalf("expected expired entry to be reaped, size=%d", size)
	}
}

func TestShard_SweepReapsWithoutQuery(t *testing.T) {
	s := newShard(4)
	s.set("a.example.com", [4]byte{1, 1, 1, 1}, time.Second, baseTime)
	s.set("b.example.com", [4]byte{2, 2, 2, 2}, 300*time.Second, baseTime)

	s.sweep(baseTime.Add(2 * time.Second))

	_, _, _, size := s.statsSnapshot()
	if size != 1 {
		t.Fatalf("expected one survivor after sweep, size=%d", size)
	}
}

func TestShard_LRUEvictsTailOnCapacity(t *testing.T) {
	s := newShard(2)
	s.set("a", [4]byte{1, 0, 0, 0}, 300*time.Second, baseTime)
	s.set("b", [4]byte{2, 0, 0, 0}, 300*time.Second, baseTime)
	s.set("c", [4]byte{3, 0, 0, 0}, 300*time.Second, baseTime) // evicts "a"

	if _, ok := s.get("a", baseTime); ok {
		t.Fatalf("expected a to be evicted")
	}
	if _, ok := s.get("b", baseTime); !ok {
		t.Fatalf("expected b to survive")
	}
	if _, ok := s.get("c", baseTime); !ok {
		t.Fatalf("expected c to survive")
	}
	_, _, evictions, _ := s.statsSnapshot()
	if evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", evictions)
	}
}

func TestShard_GetTouchesLRU(t *testing.T) {
	s := newShard(2)
	s.set("a", [4]byte{1, 0, 0, 0}, 300*time.Second, baseTime)
	s.set("b", [4]byte{2, 0, 0, 0}, 300*time.Second, baseTime)

	// touch "a" so it becomes most recent; "b" should be evicted next
	if _, ok := s.get("a", baseTime); !ok {
		t.Fatalf("expected hit")
	}
	s.set("c", [4]byte{3, 0, 0, 0}, 300*time.Second, baseTime)

	if _, ok := s.get("b", baseTime); ok {
		t.Fatalf("expected b to be evicted after a was touched")
	}
	if _, ok := s.get("a", baseTime); !ok {
		t.Fatalf("expected a to survive, it was touched")
	}
}

func TestShard_SetOverwriteDoesNotCountAsCapacityGrowth(t *testing.T) {
	s := newShard(1)
	s.set("a", [4]byte{1, 0, 0, 0}, 300*time.Second, baseTime)
	s.set("a", [4]byte{9, 9, 9, 9}, 300*time.Second, baseTime) // overwrite, not insert

	ip, ok := s.get("a", baseTime)
	if !ok || ip != ([4]byte{9, 9, 9, 9}) {
		t.Fatalf("expected overwritten value, got ip=%v ok=%v", ip, ok)
	}
	_, _, evictions, _ := s.statsSnapshot()
	if evictions != 0 {
		t.Fatalf("overwrite should not evict, got %d evictions", evictions)
	}
}
