package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/eugener/shadowfax/internal/cache"
	"github.com/eugener/shadowfax/internal/config"
	"github.com/eugener/shadowfax/internal/ratelimit"
	"github.com/eugener/shadowfax/internal/server"
	"github.com/eugener/shadowfax/internal/telemetry"
	"github.com/eugener/shadowfax/internal/upstream"
)

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	slog.Info("starting shadowfax",
		"version", version,
		"addr", cfg.Server.Addr(),
		"upstream", cfg.Upstream.Host,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	promReg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(promReg, cfg.Telemetry.MetricKey,
		cfg.Telemetry.TrackInProgress, cfg.Telemetry.MetricTimeout)

	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
	}

	// Wire the shared handles: cache, per-token coordinators, pooled
	// TLS client.
	responseCache := cache.New(cfg.Cache.Duration, metrics)
	registry := ratelimit.NewRegistry(cfg.Token)
	defer registry.Close()

	handler := server.New(server.Deps{
		Registry:     registry,
		Cache:        responseCache,
		Client:       upstream.NewClient(cfg.Upstream.DisableHTTP2),
		UpstreamHost: cfg.Upstream.Host,
		Telemetry:    metrics,
		Metrics:      promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		responseCache.Run(gctx)
		return nil
	})
	g.Go(func() error {
		metrics.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("shadowfax ready", "addr", cfg.Server.Addr())

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("shadowfax stopped")
	return nil
}
