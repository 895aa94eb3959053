// Command ripsimd runs the distance-vector router simulator: it reads
// routers.txt from the working directory, starts one router per
// stanza, and runs them concurrently until each router's lifespan
// elapses.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dvproto/ripsim/internal/config"
	"github.com/dvproto/ripsim/internal/router"
)

// configPath, logDir, lifespan, and metricsAddr are fixed: spec.md §6
// "Process surface" rules out a CLI flag surface entirely, so the only
// knob is the RIPSIM_VERBOSE environment variable read by newLogger.
const (
	configPath  = "routers.txt"
	logDir      = "router_logs"
	lifespan    = 60 * time.Second
	metricsAddr = "localhost:9122"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	log := newLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("ripsimd: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	startMetricsServer(log)

	routers := make([]*router.Router, 0, len(cfg.Routers))
	for _, rc := range cfg.Routers {
		r, err := router.New(rc, logDir, lifespan, nil, log)
		if err != nil {
			// A bind failure for any one router compromises the whole
			// simulation (spec.md §7 "Socket bind error"); the process
			// exits non-zero and takes every router's sockets with it.
			return fmt.Errorf("ripsimd: starting router %d: %w", rc.ID, err)
		}
		routers = append(routers, r)
	}

	log.Info("ripsimd: starting routers", "count", len(routers), "lifespan", lifespan)

	var wg sync.WaitGroup
	errCh := make(chan error, len(routers))
	for _, r := range routers {
		wg.Add(1)
		go func(r *router.Router) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				errCh <- err
			}
		}(r)
	}

	wg.Wait()
	close(errCh)

	var firstErr error
	for err := range errCh {
		log.Error("ripsimd: router exited with error", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	log.Info("ripsimd: all routers finished")
	return firstErr
}

// startMetricsServer exposes every counter/gauge registered by
// internal/metrics on metricsAddr. It runs best-effort: a failure to
// bind is logged, not fatal, since the simulation itself doesn't depend
// on scraping succeeding.
func startMetricsServer(log *slog.Logger) {
	listener, err := net.Listen("tcp", metricsAddr)
	if err != nil {
		log.Error("ripsimd: failed to start prometheus metrics listener", "error", err)
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Info("ripsimd: prometheus metrics server started", "address", listener.Addr().String())
		if err := http.Serve(listener, mux); err != nil {
			log.Error("ripsimd: prometheus metrics server exited", "error", err)
		}
	}()
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("RIPSIM_VERBOSE") != "" {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
