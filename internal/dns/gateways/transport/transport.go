// Package transport provides network transport abstractions for the DNS
// responder. Transports work entirely in wire bytes; decoding, tier
// resolution, and response encoding are the dispatcher's job, not the
// transport's — this lets the listener pool stay protocol-agnostic about
// everything except framing a datagram.
package transport

import (
	"context"
)

// ServerTransport defines the interface for DNS server transport
// implementations. Different transport types (UDP, DoH, DoT, DoQ) can
// implement this interface while providing the same request-handling
// contract to the dispatcher.
type ServerTransport interface {
	// Start begins listening for requests and handling them via handler.
	Start(ctx context.Context, handler RequestHandler) error

	// Stop gracefully shuts down the transport, closing connections and
	// joining any worker goroutines.
	Stop() error

	// Address returns the network address the transport is bound to.
	Address() string
}

// RequestHandler is how the transport hands a raw inbound datagram to the
// dispatcher and gets back the wire bytes to send, if any. ok is false
// when the datagram was malformed and must be dropped silently.
type RequestHandler interface {
	HandleQuery(ctx context.Context, data []byte) (response []byte, ok bool)
}

// TransportType represents the different types of DNS transport protocols
// supported.
type TransportType string

const (
	// TransportUDP represents standard DNS over UDP (RFC 1035).
	TransportUDP TransportType = "udp"

	// TransportDoH represents DNS over HTTPS (RFC 8484) - future implementation.
	TransportDoH TransportType = "doh"

	// TransportDoT represents DNS over TLS (RFC 7858) - future implementation.
	TransportDoT TransportType = "dot"

	// TransportDoQ represents DNS over QUIC (RFC 9250) - future implementation.
	TransportDoQ TransportType = "doq"
)
