package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sigqueue/internal/bootstrap"
	"sigqueue/internal/config"
	"sigqueue/internal/infra/db"
	httpinfra "sigqueue/internal/infra/http"
	"sigqueue/internal/infra/metrics"
	"sigqueue/internal/logging"
	"sigqueue/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func workerMain() error {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.StoreMode != config.StoreModeRedis {
		return fmt.Errorf("sigworker needs STORE_MODE=%s; memory mode runs the worker inside sigapi", config.StoreModeRedis)
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(level, cfg.LogFile, cfg.LogJSON).Named("sigworker")
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.NewContext(ctx, logger)

	identity, err := bootstrap.WorkerIdentity(cfg, logger)
	if err != nil {
		return err
	}

	backend, err := bootstrap.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	sinks := usecase.PoisonSinks{backend}
	archive, err := db.NewStore(cfg, logger)
	if err != nil {
		return err
	}
	defer archive.Close()
	if archive.Enabled() {
		if err := archive.Migrate(ctx); err != nil {
			return err
		}
		sinks = append(sinks, db.NewPoisonRepository(archive.DB))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.RegisterQueueDepth(registry, backend.Depth)
	observer := metrics.NewWorker(registry, identity.String())

	worker := bootstrap.NewWorker(cfg, identity, backend, sinks, observer, logger)
	probe := httpinfra.NewProbe(cfg.HealthAddr, backend, registry, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return probe.Run(gctx) })
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func main() {
	if err := workerMain(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
