package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sigqueue/internal/bootstrap"
	"sigqueue/internal/config"
	httpinfra "sigqueue/internal/infra/http"
	"sigqueue/internal/infra/metrics"
	"sigqueue/internal/infra/statuscache"
	"sigqueue/internal/logging"
	"sigqueue/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// apiMain is separate from main so deferred cleanup runs before os.Exit.
func apiMain() error {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(level, cfg.LogFile, cfg.LogJSON).Named("sigapi")
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.NewContext(ctx, logger)

	backend, err := bootstrap.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	policy, err := bootstrap.NewStatusPolicy(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load status policy: %w", err)
	}
	limiter, err := bootstrap.NewRateLimiter(cfg, backend)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	admission := &usecase.Admission{
		Accounts: backend,
		Statuses: backend,
		Queue:    backend,
		Policy:   policy,
	}
	if cfg.StatusCacheSize > 0 {
		cache, err := statuscache.New(cfg.StatusCacheSize)
		if err != nil {
			return fmt.Errorf("status cache: %w", err)
		}
		admission.Cache = cache
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.RegisterQueueDepth(registry, backend.Depth)

	server := httpinfra.NewServer(cfg, httpinfra.ServerDeps{
		Admission:   admission,
		Store:       backend,
		RateLimiter: limiter,
		Logger:      logger,
		Registry:    registry,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })

	// The in-memory queue is invisible to other processes, so memory mode
	// runs the worker in process.
	if cfg.StoreMode == config.StoreModeMemory {
		identity, err := bootstrap.WorkerIdentity(cfg, logger)
		if err != nil {
			return err
		}
		observer := metrics.NewWorker(registry, identity.String())
		worker := bootstrap.NewWorker(cfg, identity, backend, nil, observer, logger.Named("worker"))
		g.Go(func() error { return worker.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func main() {
	if err := apiMain(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
