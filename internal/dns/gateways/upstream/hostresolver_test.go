package upstream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/relaydns/dnscached/internal/dns/domain"
	"github.com/relaydns/dnscached/internal/dns/gateways/wire"
)

// startFakeDNSServer runs a minimal UDP DNS server on loopback that
// answers every A query with ip, and returns its address.
func startFakeDNSServer(t *testing.T, ip net.IP) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	codec := wire.NewUDPCodec()
	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			q, err := codec.DecodeQuery(buf[:n])
			if err != nil {
				continue
			}
			rr, err := domain.NewCachedResourceRecord(q.Name, domain.RRTypeA, domain.RRClassIN, 300, ip.To4(), time.Now())
			if err != nil {
				continue
			}
			resp, err := domain.NewDNSResponse(q.ID, domain.RCodeNoError, []domain.ResourceRecord{rr})
			if err != nil {
				continue
			}
			out, err := codec.EncodeResponse(resp)
			if err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(out, addr)
		}
	}()
	return conn.LocalAddr().String()
}

func TestHostResolver_ResolvesViaCustomDial(t *testing.T) {
	addr := startFakeDNSServer(t, net.ParseIP("93.184.216.34"))

	r := newHostResolverWithResolver(&net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return net.Dial(network, addr)
		},
	})

	ip, err := r.Resolve(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ip.String() != "93.184.216.34" {
		t.Fatalf("unexpected IP: %s", ip)
	}
}

func TestHostResolver_FailsWhenDialFails(t *testing.T) {
	r := newHostResolverWithResolver(&net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return nil, net.ErrClosed
		},
	})

	if _, err := r.Resolve(context.Background(), "example.com"); err == nil {
		t.Fatalf("expected error when dial fails")
	}
}
