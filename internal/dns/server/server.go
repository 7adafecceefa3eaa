// Package server assembles the dispatcher's collaborators from boot
// configuration and exposes the two boot-time registration calls
// (AddUpstreamResolver, AddLocalDomain) for programmatic callers to
// finish wiring the application before the listener pool starts,
// grounded on the teacher's buildApplication/buildRepositories/
// buildGateways split in cmd/rr-dnsd/main.go. cmd/dnscached calls
// neither: it takes upstream servers from configuration only.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/relaydns/dnscached/internal/dns/common/clock"
	"github.com/relaydns/dnscached/internal/dns/common/log"
	"github.com/relaydns/dnscached/internal/dns/config"
	"github.com/relaydns/dnscached/internal/dns/gateways/transport"
	"github.com/relaydns/dnscached/internal/dns/gateways/upstream"
	"github.com/relaydns/dnscached/internal/dns/gateways/wire"
	"github.com/relaydns/dnscached/internal/dns/repos/localtable"
	"github.com/relaydns/dnscached/internal/dns/repos/negcache"
	"github.com/relaydns/dnscached/internal/dns/repos/rrcache"
	"github.com/relaydns/dnscached/internal/dns/repos/stats"
	"github.com/relaydns/dnscached/internal/dns/services/dispatcher"
)

// statsReportInterval is how often the running totals are logged, per
// the free-form textual statistics block the spec's stats collaborator
// emits periodically.
const statsReportInterval = 30 * time.Second

// Server holds every collaborator the dispatcher needs and the boot-time
// registration surface (AddUpstreamResolver, AddLocalDomain) that must
// run before Start.
type Server struct {
	cfg *config.AppConfig

	codec    wire.DNSCodec
	local    localtable.Table
	cache    rrcache.Cache
	negative negcache.NegativeCache
	stats    stats.Stats
	clock    clock.Clock
	logger   log.Logger

	upstreamServers []string
	transport       transport.ServerTransport
	dispatcher      *dispatcher.Dispatcher
	snapshot        *localtable.SnapshotStore
}

// New constructs a Server from cfg. The upstream resolver isn't built
// yet — AddUpstreamResolver may still add servers before Start resolves
// which Resolver implementation to use. When cfg.SnapshotPath is set,
// the precompiled table is preloaded from it, so domains registered by
// a prior run's AddLocalDomain calls are already served on the first
// query after a restart.
func New(cfg *config.AppConfig, logger log.Logger) *Server {
	codec := wire.NewUDPCodec()
	addr := fmt.Sprintf(":%d", cfg.Port)
	local := localtable.New(codec)

	srv := &Server{
		cfg:             cfg,
		codec:           codec,
		local:           local,
		cache:           rrcache.New(),
		stats:           stats.New(),
		clock:           clock.RealClock{},
		logger:          logger,
		upstreamServers: append([]string{}, cfg.UpstreamServers...),
		transport:       transport.NewUDPTransport(addr, cfg.Workers, logger),
	}

	if cfg.SnapshotPath != "" {
		store, err := localtable.OpenSnapshotStore(cfg.SnapshotPath)
		if err != nil {
			logger.Error(map[string]any{"path": cfg.SnapshotPath, "error": err.Error()}, "failed to open local-domain snapshot store, continuing without persistence")
		} else {
			if err := store.LoadAll(local); err != nil {
				logger.Error(map[string]any{"path": cfg.SnapshotPath, "error": err.Error()}, "failed to load local-domain snapshot")
			} else {
				logger.Info(map[string]any{"path": cfg.SnapshotPath, "domains": local.Len()}, "loaded local-domain snapshot")
			}
			srv.snapshot = store
		}
	}

	return srv
}

// AddUpstreamResolver registers an upstream DNS server ("ip:port") to be
// tried by the iterative resolver. Calling this at least once switches
// the upstream tier from the zero-config host resolver to the iterative
// resolver, which fails over across every registered server in order.
func (s *Server) AddUpstreamResolver(addr string) {
	s.upstreamServers = append(s.upstreamServers, addr)
}

// AddLocalDomain populates the precompiled table with a fixed name ->
// ipv4 answer, served from tier 1 ahead of the cache and upstream tiers.
// When a snapshot store is configured, the mapping is also persisted so
// it survives a restart without being re-issued.
func (s *Server) AddLocalDomain(name, ipv4 string) error {
	if err := s.local.Add(name, ipv4); err != nil {
		return err
	}
	if s.snapshot != nil {
		if err := s.snapshot.Put(name, ipv4); err != nil {
			return fmt.Errorf("persisting local domain %q: %w", name, err)
		}
	}
	return nil
}

// Start resolves the upstream resolver implementation, wires the
// dispatcher, and starts the listener pool's worker goroutines.
func (s *Server) Start(ctx context.Context) error {
	var err error
	negCache, err := negcache.New(negcache.DefaultSize, negcache.DefaultTTL)
	if err != nil {
		return fmt.Errorf("failed to build negative cache: %w", err)
	}
	s.negative = negCache

	var resolver upstream.Resolver
	if len(s.upstreamServers) == 0 {
		resolver = upstream.NewHostResolver()
		s.logger.Info(nil, "using host resolver for upstream tier")
	} else {
		resolver, err = upstream.NewIterativeResolver(upstream.IterativeOptions{
			Servers: s.upstreamServers,
			Timeout: time.Duration(s.cfg.UpstreamTimeoutMS) * time.Millisecond,
			Codec:   s.codec,
			Clock:   s.clock,
		})
		if err != nil {
			return fmt.Errorf("failed to build iterative resolver: %w", err)
		}
		s.logger.Info(map[string]any{"servers": s.upstreamServers}, "using iterative resolver for upstream tier")
	}

	s.dispatcher = dispatcher.New(dispatcher.Options{
		Codec:    s.codec,
		Local:    s.local,
		Cache:    s.cache,
		Negative: s.negative,
		Upstream: resolver,
		Stats:    s.stats,
		Clock:    s.clock,
		Logger:   s.logger,
	})

	if err := s.transport.Start(ctx, s.dispatcher); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}

	go s.reportStatsPeriodically(ctx)

	return nil
}

// Stop gracefully shuts down the listener pool and releases the
// snapshot store's database handle, if one is open.
func (s *Server) Stop() error {
	err := s.transport.Stop()
	if s.snapshot != nil {
		if closeErr := s.snapshot.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// Address returns the listener's bound address.
func (s *Server) Address() string {
	return s.transport.Address()
}

// reportStatsPeriodically logs a free-form statistics block every
// statsReportInterval until ctx is cancelled.
func (s *Server) reportStatsPeriodically(ctx context.Context) {
	ticker := time.NewTicker(statsReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.stats.Snapshot()
			pct := s.stats.PercentileStats()
			cache := s.cache.Stats()
			s.logger.Info(map[string]any{
				"total_queries":      snap.TotalQueries,
				"cache_hits":         snap.CacheHits,
				"local_domain_hits":  snap.LocalDomainHits,
				"upstream_failures":  snap.UpstreamFailures,
				"cache_size":         cache.Size,
				"cache_evictions":    cache.Evictions,
				"latency_samples":    pct.Samples,
				"latency_mean":       pct.Mean.String(),
				"latency_p95":        pct.P95.String(),
				"latency_p99":        pct.P99.String(),
			}, "dns cache statistics")
		}
	}
}
