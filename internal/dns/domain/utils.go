package domain

import (
	"strconv"

	"github.com/relaydns/dnscached/internal/dns/common/utils"
)

// GenerateCacheKey returns a consistent cache key derived from a DNS name,
// type, and class. Unlike a zone-aware resolver, this responder has no
// notion of zone roots or delegation, so the key is simply the canonical
// name plus type and class, joined by a "|" separator. Canonicalization
// does not strip "|" from a name.
func GenerateCacheKey(name string, t RRType, c RRClass) string {
	name = utils.CanonicalDNSName(name)
	return name + "|" + strconv.Itoa(int(t)) + "|" + strconv.Itoa(int(c))
}
