// Package dispatcher implements the per-datagram tier ladder: precompiled
// table, sharded cache, then upstream resolver, gated by a negative-result
// cache. It is constructed via an Options struct and its collaborators are
// injected as interfaces, mirroring the teacher's services/resolver
// orchestration shape.
package dispatcher

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/relaydns/dnscached/internal/dns/common/clock"
	"github.com/relaydns/dnscached/internal/dns/common/log"
	"github.com/relaydns/dnscached/internal/dns/common/utils"
	"github.com/relaydns/dnscached/internal/dns/domain"
	"github.com/relaydns/dnscached/internal/dns/gateways/upstream"
	"github.com/relaydns/dnscached/internal/dns/gateways/wire"
	"github.com/relaydns/dnscached/internal/dns/repos/localtable"
	"github.com/relaydns/dnscached/internal/dns/repos/negcache"
	"github.com/relaydns/dnscached/internal/dns/repos/rrcache"
	"github.com/relaydns/dnscached/internal/dns/repos/stats"
)

// answerTTL is the fixed TTL baked into every answer this responder
// hands out, independent of whatever TTL an upstream server reported.
const answerTTL = 300

// Dispatcher runs the three-tier resolution ladder for a single decoded
// query and produces the wire bytes to send back, or nothing at all for
// malformed input.
type Dispatcher struct {
	codec    wire.DNSCodec
	local    localtable.Table
	cache    rrcache.Cache
	negative negcache.NegativeCache
	upstream upstream.Resolver
	stats    stats.Stats
	clock    clock.Clock
	logger   log.Logger
}

// Options collects Dispatcher's collaborators.
type Options struct {
	Codec    wire.DNSCodec
	Local    localtable.Table
	Cache    rrcache.Cache
	Negative negcache.NegativeCache
	Upstream upstream.Resolver
	Stats    stats.Stats
	Clock    clock.Clock
	Logger   log.Logger
}

// New constructs a Dispatcher from opts.
func New(opts Options) *Dispatcher {
	return &Dispatcher{
		codec:    opts.Codec,
		local:    opts.Local,
		cache:    opts.Cache,
		negative: opts.Negative,
		upstream: opts.Upstream,
		stats:    opts.Stats,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
}

// HandleQuery runs the tier ladder for one inbound datagram. It returns
// the wire bytes to send back and true, or (nil, false) when the input
// is malformed and must be dropped silently — no response, per the
// dispatcher's "zero sendto on malformed input" contract.
func (d *Dispatcher) HandleQuery(ctx context.Context, data []byte) ([]byte, bool) {
	d.stats.IncTotalQueries()
	start := d.clock.Now()

	query, err := d.codec.DecodeQuery(data)
	if err != nil {
		d.logger.Debug(map[string]any{"error": err.Error()}, "dropping malformed query")
		return nil, false
	}

	if !query.IsA() {
		out, encErr := d.codec.EncodeResponse(domain.NewDNSErrorResponse(query.ID, domain.RCodeNotImp))
		if encErr != nil {
			d.logger.Error(map[string]any{"error": encErr.Error()}, "failed to encode NOTIMP response")
			return nil, false
		}
		d.stats.RecordLatency(d.clock.Now().Sub(start))
		return out, true
	}

	name := utils.CanonicalDNSName(query.Name)

	if resp, ok := d.local.Lookup(name, query.ID); ok {
		d.stats.IncLocalDomainHits()
		d.stats.RecordLatency(d.clock.Now().Sub(start))
		return resp, true
	}

	if ip, ok := d.cache.Get(name, start); ok {
		d.stats.IncCacheHits()
		out := d.buildSuccessResponse(query.ID, name, ip)
		d.stats.RecordLatency(d.clock.Now().Sub(start))
		return out, true
	}

	out := d.resolveUpstream(ctx, query, name, start)
	d.stats.RecordLatency(d.clock.Now().Sub(start))
	return out, true
}

// resolveUpstream implements tier 3: a negative-cache-gated upstream
// resolution attempt, caching success and remembering failure.
func (d *Dispatcher) resolveUpstream(ctx context.Context, query domain.Question, name string, now time.Time) []byte {
	if d.negative.IsFailing(name, now) {
		return d.encodeServFail(query.ID)
	}

	ip, err := d.upstream.Resolve(ctx, name)
	if err != nil {
		d.negative.MarkFailed(name, now)
		d.stats.IncUpstreamFailures()
		d.logger.Warn(map[string]any{"name": name, "error": err.Error()}, "upstream resolution failed")
		return d.encodeServFail(query.ID)
	}

	var ipv4 [4]byte
	copy(ipv4[:], ip.To4())
	d.cache.Set(name, ipv4, answerTTL*time.Second, now)
	return d.buildSuccessResponse(query.ID, name, ipv4)
}

// buildSuccessResponse builds and encodes a single-answer A response.
// Encoding failures here indicate a programming error (record.go rejects
// malformed fields before they reach the codec), so the dispatcher falls
// back to SERVFAIL rather than propagating a wire-format panic to a
// client.
func (d *Dispatcher) buildSuccessResponse(id uint16, name string, ip [4]byte) []byte {
	rr, err := domain.NewAuthoritativeResourceRecord(name, domain.RRTypeA, domain.RRClassIN, answerTTL, ip[:])
	if err != nil {
		d.logger.Error(map[string]any{"name": name, "error": err.Error()}, "failed to build answer record")
		return d.encodeServFail(id)
	}
	resp, err := domain.NewDNSResponse(id, domain.RCodeNoError, []domain.ResourceRecord{rr})
	if err != nil {
		d.logger.Error(map[string]any{"name": name, "error": err.Error()}, "failed to build response")
		return d.encodeServFail(id)
	}
	out, err := d.codec.EncodeResponse(resp)
	if err != nil {
		d.logger.Error(map[string]any{"name": name, "error": err.Error()}, "failed to encode response")
		return d.encodeServFail(id)
	}
	return out
}

// encodeServFail encodes a zero-body SERVFAIL response for id, falling
// back to a minimal inline header if even that fails to encode.
func (d *Dispatcher) encodeServFail(id uint16) []byte {
	out, err := d.codec.EncodeResponse(domain.NewDNSErrorResponse(id, domain.RCodeServFail))
	if err != nil {
		d.logger.Error(map[string]any{"error": err.Error()}, "failed to encode SERVFAIL response")
		hdr := make([]byte, 12)
		binary.BigEndian.PutUint16(hdr[0:2], id)
		binary.BigEndian.PutUint16(hdr[2:4], 0x8180|uint16(domain.RCodeServFail))
		return hdr
	}
	return out
}
