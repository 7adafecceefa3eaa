package upstream

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/relaydns/dnscached/internal/dns/common/clock"
	"github.com/relaydns/dnscached/internal/dns/domain"
	"github.com/relaydns/dnscached/internal/dns/gateways/wire"
)

// DialFunc establishes a network connection; overridable for testing.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// IterativeOptions configures an iterative Resolver.
type IterativeOptions struct {
	// Servers is the ordered list of upstream servers ("host:port") to
	// try, with failover across the list on a per-query basis.
	Servers []string
	Timeout time.Duration
	Codec   wire.DNSCodec
	Clock   clock.Clock
	Dial    DialFunc
}

// iterativeResolver walks a configured server list, trying each in turn
// until one answers successfully, used once AddUpstreamResolver has
// registered at least one server.
type iterativeResolver struct {
	servers []string
	timeout time.Duration
	codec   wire.DNSCodec
	clock   clock.Clock
	dial    DialFunc
}

// NewIterativeResolver constructs a Resolver that fails over across
// opts.Servers in order.
func NewIterativeResolver(opts IterativeOptions) (Resolver, error) {
	if len(opts.Servers) == 0 {
		return nil, fmt.Errorf("iterative resolver requires at least one server")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("iterative resolver requires a codec")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	return &iterativeResolver{
		servers: opts.Servers,
		timeout: opts.Timeout,
		codec:   opts.Codec,
		clock:   opts.Clock,
		dial:    opts.Dial,
	}, nil
}

// Resolve tries each configured server in order, returning the first
// successful A answer.
func (r *iterativeResolver) Resolve(ctx context.Context, name string) (net.IP, error) {
	ctx, cancel := r.ensureDeadline(ctx)
	if cancel != nil {
		defer cancel()
	}

	query := domain.Question{
		//nolint:gosec // transaction ID only needs to be hard to guess, not cryptographically random
		ID:    uint16(rand.IntN(1 << 16)),
		Name:  name,
		Type:  domain.RRTypeA,
		Class: domain.RRClassIN,
	}

	var lastErr error
	for _, server := range r.servers {
		resp, err := r.queryServer(ctx, server, query)
		if err != nil {
			lastErr = err
			continue
		}
		ip, err := firstIPv4Answer(resp)
		if err != nil {
			lastErr = err
			continue
		}
		return ip, nil
	}
	return nil, fmt.Errorf("all %d upstream servers failed, last error: %w", len(r.servers), lastErr)
}

func (r *iterativeResolver) ensureDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		return context.WithTimeout(ctx, r.timeout)
	}
	return ctx, nil
}

// queryServer sends query to server over UDP and decodes the reply.
func (r *iterativeResolver) queryServer(ctx context.Context, server string, query domain.Question) (domain.DNSResponse, error) {
	conn, err := r.dial(ctx, "udp", server)
	if err != nil {
		return domain.DNSResponse{}, fmt.Errorf("server %s: dial: %w", server, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	queryBytes, err := r.codec.EncodeQuery(query)
	if err != nil {
		return domain.DNSResponse{}, fmt.Errorf("server %s: encode: %w", server, err)
	}

	type result struct {
		response domain.DNSResponse
		err      error
	}
	resultCh := make(chan result, 1)

	go func() {
		if _, err := conn.Write(queryBytes); err != nil {
			resultCh <- result{err: fmt.Errorf("server %s: write: %w", server, err)}
			return
		}
		buf := make([]byte, 512)
		n, err := conn.Read(buf)
		if err != nil {
			resultCh <- result{err: fmt.Errorf("server %s: read: %w", server, err)}
			return
		}
		resp, err := r.codec.DecodeResponse(buf[:n], query.ID, r.clock.Now())
		resultCh <- result{response: resp, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.response, res.err
	case <-ctx.Done():
		return domain.DNSResponse{}, ctx.Err()
	}
}

// firstIPv4Answer extracts the first A-record address from a response.
func firstIPv4Answer(resp domain.DNSResponse) (net.IP, error) {
	if resp.IsError() {
		return nil, fmt.Errorf("upstream returned rcode %s", resp.RCode)
	}
	for _, rr := range resp.Answers {
		if rr.Type == domain.RRTypeA && len(rr.Data) == 4 {
			return net.IP(rr.Data), nil
		}
	}
	return nil, fmt.Errorf("no A record in upstream response")
}

var _ Resolver = (*iterativeResolver)(nil)
