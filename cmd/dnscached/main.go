// Command dnscached runs the caching DNS responder: a single positional
// argument gives the UDP port to listen on (if omitted, DNSCACHE_PORT or
// the default 5353).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/relaydns/dnscached/internal/dns/common/log"
	"github.com/relaydns/dnscached/internal/dns/config"
	"github.com/relaydns/dnscached/internal/dns/server"
)

const (
	version = "0.1.0-dev"

	defaultShutdownTimeout = 10 * time.Second
)

func main() {
	cliPort, err := parseCLIPort(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "argument error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cliPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":       version,
		"env":           cfg.Env,
		"log_level":     cfg.LogLevel,
		"port":          cfg.Port,
		"workers":       cfg.Workers,
		"upstream":      cfg.UpstreamServers,
		"snapshot_path": cfg.SnapshotPath,
	}, "starting dnscached")

	srv := server.New(cfg, log.GetLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info(map[string]any{"signal": sig.String()}, "shutdown signal received")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "failed to start server")
		os.Exit(1)
	}

	<-ctx.Done()

	stopped := make(chan error, 1)
	go func() { stopped <- srv.Stop() }()

	select {
	case err := <-stopped:
		if err != nil {
			log.Error(map[string]any{"error": err}, "error during shutdown")
			os.Exit(1)
		}
	case <-time.After(defaultShutdownTimeout):
		log.Error(nil, "shutdown timed out")
		os.Exit(1)
	}

	log.Info(nil, "dnscached stopped gracefully")
}

// parseCLIPort reads the optional positional port argument. Returns 0
// (no override) when none was given, letting config.Load fall back to
// DNSCACHE_PORT or the built-in default.
func parseCLIPort(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("port must be a number, got %q", args[0])
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}
