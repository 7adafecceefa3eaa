package rrcache

import (
	"sync/atomic"
	"time"
)

// entry is a single cache record: a resolved IPv4 address, an absolute
// expiry instant, and an advisory hit counter. It never outlives the shard
// that owns it.
type entry struct {
	ip      [4]byte
	expires time.Time
	hits    uint64
}

// valid reports whether now is strictly before the entry's expiry.
func (e *entry) valid(now time.Time) bool {
	return now.Before(e.expires)
}

// touch increments the hit counter without requiring the shard's section —
// the spec only requires the counter be advisory and atomic, not
// serialized with the rest of the entry's mutation.
func (e *entry) touch() {
	atomic.AddUint64(&e.hits, 1)
}
