package transport

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/relaydns/dnscached/internal/dns/common/log"
)

// minWorkers is the floor applied to DefaultWorkerCount's hardware
// parallelism reading, so a single-core box still runs a small pool
// instead of serializing every query behind one goroutine.
const minWorkers = 4

// DefaultWorkerCount returns the hardware-parallelism worker count,
// clamped to a minimum of minWorkers.
func DefaultWorkerCount() int {
	n := runtime.NumCPU()
	if n < minWorkers {
		return minWorkers
	}
	return n
}

// UDPTransport implements ServerTransport for standard DNS over UDP
// (RFC 1035). A fixed pool of worker goroutines shares one UDP socket,
// each blocking in ReadFromUDP — concurrency-safe at the kernel level for
// a single datagram socket — instead of spawning a goroutine per packet.
type UDPTransport struct {
	addr    string
	workers int
	logger  log.Logger

	conn    *net.UDPConn
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewUDPTransport creates a new UDP transport instance. workers <= 0
// selects DefaultWorkerCount.
func NewUDPTransport(addr string, workers int, logger log.Logger) *UDPTransport {
	if workers <= 0 {
		workers = DefaultWorkerCount()
	}
	return &UDPTransport{
		addr:    addr,
		workers: workers,
		logger:  logger,
	}
}

// Start binds the UDP socket and spawns the worker pool.
func (t *UDPTransport) Start(ctx context.Context, handler RequestHandler) error {
	if t.running.Load() {
		return fmt.Errorf("UDP transport already running")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", t.addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket on %s: %w", t.addr, err)
	}

	t.conn = conn
	t.running.Store(true)

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.addr,
		"workers":   t.workers,
	}, "DNS transport started")

	t.wg.Add(t.workers)
	for i := 0; i < t.workers; i++ {
		go t.workerLoop(ctx, handler)
	}

	return nil
}

// Stop flips the running flag and closes the socket, which unblocks every
// worker's ReadFromUDP call, then joins them.
func (t *UDPTransport) Stop() error {
	if !t.running.Swap(false) {
		return nil
	}

	var closeErr error
	if t.conn != nil {
		closeErr = t.conn.Close()
	}
	t.wg.Wait()

	if closeErr != nil {
		t.logger.Warn(map[string]any{"error": closeErr.Error()}, "error closing UDP connection")
	}
	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.addr,
	}, "DNS transport stopped")

	return closeErr
}

// Address returns the network address the transport is bound to. Before
// Start has bound the socket, it returns the configured listen address.
func (t *UDPTransport) Address() string {
	if t.conn != nil {
		return t.conn.LocalAddr().String()
	}
	return t.addr
}

// workerLoop is one worker's share of the shared UDP socket: read a
// datagram, dispatch it, write back whatever the handler returns.
func (t *UDPTransport) workerLoop(ctx context.Context, handler RequestHandler) {
	defer t.wg.Done()

	buf := make([]byte, 512) // classical DNS UDP message cap

	for {
		if !t.running.Load() {
			return
		}

		n, clientAddr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if !t.running.Load() {
				return // socket closed by Stop
			}
			t.logger.Warn(map[string]any{"error": err.Error()}, "failed to read UDP packet")
			continue
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])

		response, ok := handler.HandleQuery(ctx, packet)
		if !ok {
			continue // malformed input: drop silently, no sendto
		}

		if _, err := t.conn.WriteToUDP(response, clientAddr); err != nil {
			t.logger.Warn(map[string]any{
				"client": clientAddr.String(),
				"error":  err.Error(),
			}, "failed to send DNS response")
		}
	}
}

var _ ServerTransport = (*UDPTransport)(nil)
