// Background worker entry point for TransitLedger. It runs the overdue
// mission scan on a fixed interval and exposes probes and metrics on a
// separate port.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/TransitLedger/internal/bootstrap"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/TransitLedger/internal/interfaces/http"
	"github.com/turtacn/TransitLedger/internal/interfaces/http/handlers"
)

// Injected via ldflags.
var version = "dev"

const (
	defaultHealthPort     = 8081
	healthShutdownTimeout = 5 * time.Second
	poolSampleInterval    = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port of the probe and metrics endpoint")
	interval := flag.Duration("interval", 0, "overdue scan interval (overrides worker.overdue_scan_interval)")
	flag.Parse()

	if err := run(*configPath, *healthPort, *interval); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, healthPort int, interval time.Duration) error {
	cfg, err := bootstrap.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	logging.SetDefault(logger)
	bootstrap.WatchLogLevel(configPath, logger)

	if interval <= 0 {
		interval = cfg.Worker.OverdueScanInterval
	}
	logger.Info("starting TransitLedger worker",
		logging.String("version", version),
		logging.Duration("interval", interval),
		logging.Int("batch_size", cfg.Worker.OverdueBatchSize))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Open(ctx, cfg, logger, bootstrap.Options{WithMetrics: true})
	if err != nil {
		return err
	}
	defer infra.Close()

	svc, err := infra.Services()
	if err != nil {
		return err
	}
	go infra.SampleDBPool(ctx, poolSampleInterval)

	healthCfg := cfg.Server
	healthCfg.Port = healthPort
	healthSrv := httpserver.NewServer(healthCfg, httpserver.NewRouter(httpserver.RouterConfig{
		HealthHandler:    handlers.NewHealthHandler(version, logger, infra.HealthCheckers()...),
		Logger:           logger,
		Metrics:          infra.Metrics,
		MetricsCollector: infra.Collector,
	}), logger)
	go func() {
		if err := healthSrv.Start(); err != nil {
			logger.Error("health server error", logging.Err(err))
		}
	}()

	err = svc.Scanner.Run(ctx, interval)
	logger.Info("received shutdown signal, stopping worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), healthShutdownTimeout)
	defer cancel()
	if serr := healthSrv.Stop(shutdownCtx); serr != nil {
		logger.Error("health server shutdown error", logging.Err(serr))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("TransitLedger worker stopped")
	return nil
}
