// Package upstream resolves a domain name to an IPv4 address via an
// external facility: either the host's own resolver, or an internal
// iterative client consulting explicitly configured servers.
package upstream

import (
	"context"
	"net"
)

// Resolver is the contract the dispatcher's tier-3 consults: given a
// name, produce an IPv4 address or an opaque failure. Resolution is
// blocking from the caller's perspective — it runs on the calling
// worker's goroutine, same as the C++ original's synchronous
// getaddrinfo call.
type Resolver interface {
	Resolve(ctx context.Context, name string) (net.IP, error)
}
