package localtable

import (
	"math"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
)

// bloomMembership fronts the table's map lookup with a probabilistic
// membership test once the table is large enough that a definite "not
// present" answer from the filter is cheaper than a map miss. False
// positives fall through to the real map; false negatives are
// impossible, so the filter never hides a real entry.
type bloomMembership struct {
	bf *bitsbloom.BloomFilter
}

// targetFalsePositiveRate matches the teacher's default for membership
// filters fronting small-to-medium in-memory sets.
const targetFalsePositiveRate = 0.01

// newBloomMembership sizes a filter for the given entry set and seeds it
// with every existing key.
func newBloomMembership(names map[string][]byte) *bloomMembership {
	m, k := bloomSize(uint64(len(names)), targetFalsePositiveRate)
	bm := &bloomMembership{bf: bitsbloom.New(uint(m), uint(k))}
	for name := range names {
		bm.bf.AddString(name)
	}
	return bm
}

func (bm *bloomMembership) add(name string) {
	bm.bf.AddString(name)
}

func (bm *bloomMembership) mightContain(name string) bool {
	return bm.bf.TestString(name)
}

// bloomSize computes filter bit count (m) and hash count (k) from the
// standard formulas, matching the teacher's `blocklist/bloom.sizer`.
func bloomSize(n uint64, p float64) (uint64, uint8) {
	if n == 0 {
		n = 1
	}
	if !(p > 0 && p < 1) {
		p = 0.01
	}
	ln2 := math.Ln2
	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2)))
	if m == 0 {
		m = 1
	}
	k := uint8(math.Max(1, math.Round((float64(m)/float64(n))*ln2)))
	return m, k
}
