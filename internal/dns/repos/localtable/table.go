// Package localtable holds the precompiled, startup-built set of
// authoritative name -> A-record response blobs: the first tier of the
// dispatcher's resolution ladder.
package localtable

import (
	"fmt"
	"net"

	"github.com/relaydns/dnscached/internal/dns/common/utils"
	"github.com/relaydns/dnscached/internal/dns/domain"
	"github.com/relaydns/dnscached/internal/dns/gateways/wire"
)

// authoritativeTTL is the fixed TTL baked into every precompiled response.
const authoritativeTTL = 300

// bloomThreshold is the entry count past which a membership filter is
// built to front map lookups. Below it, the map alone is cheap enough
// that a filter only adds overhead.
const bloomThreshold = 64

// Table is the precompiled-table repository the dispatcher consults
// first, and the boot-time wiring surface (`AddLocalDomain`) uses to
// populate it.
type Table interface {
	// Add builds and stores the response for name once; a later Add with
	// the same name overwrites it (idempotent overwrite semantics).
	Add(name, ipv4 string) error
	// Lookup clones the stored response for name and patches in queryID.
	Lookup(name string, queryID uint16) ([]byte, bool)
	Len() int
}

type table struct {
	codec      wire.DNSCodec
	entries    map[string][]byte
	membership *bloomMembership
}

// New constructs an empty Table. codec is used to build each response
// blob once, at Add time.
func New(codec wire.DNSCodec) Table {
	return &table{codec: codec, entries: make(map[string][]byte)}
}

// Add builds the fixed response for name -> ipv4 and stores it. The
// table is meant to be populated once at startup and read thereafter; it
// does not synchronize concurrent Add/Lookup calls itself (see spec.md
// §4.2 — that discipline is left to callers: server.New's snapshot load,
// and Server.AddLocalDomain, which is documented as a before-Start call).
func (t *table) Add(name, ipv4 string) error {
	ip := net.ParseIP(ipv4).To4()
	if ip == nil {
		return fmt.Errorf("invalid IPv4 address: %q", ipv4)
	}
	canonical := utils.CanonicalDNSName(name)

	rr, err := domain.NewAuthoritativeResourceRecord(canonical, domain.RRTypeA, domain.RRClassIN, authoritativeTTL, []byte(ip))
	if err != nil {
		return fmt.Errorf("building local record for %q: %w", canonical, err)
	}
	resp, err := domain.NewDNSResponse(0, domain.RCodeNoError, []domain.ResourceRecord{rr})
	if err != nil {
		return fmt.Errorf("building local response for %q: %w", canonical, err)
	}
	data, err := t.codec.EncodeResponse(resp)
	if err != nil {
		return fmt.Errorf("encoding local response for %q: %w", canonical, err)
	}

	t.entries[canonical] = data
	if t.membership == nil && len(t.entries) > bloomThreshold {
		t.membership = newBloomMembership(t.entries)
	} else if t.membership != nil {
		t.membership.add(canonical)
	}
	return nil
}

// Lookup clones the stored response for name, patches in queryID as the
// transaction ID (the first two octets), and returns it.
func (t *table) Lookup(name string, queryID uint16) ([]byte, bool) {
	if t.membership != nil && !t.membership.mightContain(name) {
		return nil, false
	}
	stored, ok := t.entries[name]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(stored))
	copy(out, stored)
	out[0] = byte(queryID >> 8)
	out[1] = byte(queryID)
	return out, true
}

// Len reports the number of distinct local domains registered.
func (t *table) Len() int {
	return len(t.entries)
}

var _ Table = (*table)(nil)
