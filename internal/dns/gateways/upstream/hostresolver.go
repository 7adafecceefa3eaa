package upstream

import (
	"context"
	"fmt"
	"net"
)

// hostResolver delegates to the host's own name resolution facility —
// the zero-config default, mirroring the C++ original's getaddrinfo call
// with an AF_INET hint.
type hostResolver struct {
	resolver *net.Resolver
}

// NewHostResolver returns a Resolver backed by net.Resolver.
func NewHostResolver() Resolver {
	return &hostResolver{resolver: net.DefaultResolver}
}

// newHostResolverWithResolver injects a custom *net.Resolver; used in
// tests to point lookups at a fake DNS server instead of the real one.
func newHostResolverWithResolver(r *net.Resolver) Resolver {
	return &hostResolver{resolver: r}
}

// Resolve looks up name and returns its first IPv4 address.
func (r *hostResolver) Resolve(ctx context.Context, name string) (net.IP, error) {
	ips, err := r.resolver.LookupIP(ctx, "ip4", name)
	if err != nil {
		return nil, fmt.Errorf("host resolver lookup for %q: %w", name, err)
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("host resolver returned no IPv4 address for %q", name)
}

var _ Resolver = (*hostResolver)(nil)
