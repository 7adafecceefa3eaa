package wire

import (
	"time"

	"github.com/relaydns/dnscached/internal/dns/domain"
)

// DNSCodec encodes and decodes DNS messages on the wire.
type DNSCodec interface {
	// Upstream functions: build an outgoing query for the upstream tier and
	// parse whatever comes back.
	EncodeQuery(query domain.Question) ([]byte, error)
	DecodeResponse(data []byte, expectedID uint16, now time.Time) (domain.DNSResponse, error)

	// Listener-facing functions: decode an inbound query and encode the
	// response sent back to the client.
	DecodeQuery(data []byte) (domain.Question, error)
	EncodeResponse(resp domain.DNSResponse) ([]byte, error)
}
