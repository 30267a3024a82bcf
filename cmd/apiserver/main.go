// API server entry point for TransitLedger.
package main

import (
	"context"
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
	"github.com/turtacn/TransitLedger/internal/interfaces/http/middleware"
)

// Injected via ldflags.
var version = "dev"

const (
	limiterSweepInterval = time.Minute
	limiterIdle          = 10 * time.Minute
	poolSampleInterval   = 15 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	migrate := flag.Bool("migrate", false, "apply pending migrations before serving")
	flag.Parse()

	if err := run(*configPath, *migrate); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, migrate bool) error {
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

	logger.Info("starting TransitLedger API server",
		logging.String("version", version),
		logging.String("mode", cfg.Server.Mode))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Open(ctx, cfg, logger, bootstrap.Options{WithStorage: true, WithMetrics: true})
	if err != nil {
		return err
	}
	defer infra.Close()

	if migrate {
		if err := infra.Postgres.RunMigrations(cfg.Database.MigrationPath); err != nil {
			return err
		}
	}

	svc, err := infra.Services()
	if err != nil {
		return err
	}

	limiter := middleware.NewTokenBucketLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	go sweepLimiter(ctx, limiter)
	go infra.SampleDBPool(ctx, poolSampleInterval)

	router := httpserver.NewRouter(httpserver.RouterConfig{
		ContractHandler:  handlers.NewContractHandler(svc.Contracts, svc.Exports, logger),
		MissionHandler:   handlers.NewMissionHandler(svc.Missions, svc.Contracts, logger),
		PaymentHandler:   handlers.NewPaymentHandler(svc.Payments, logger),
		DemurrageHandler: handlers.NewDemurrageHandler(svc.Policy, logger),
		AuthHandler:      handlers.NewAuthHandler(svc.Auth, logger),
		HealthHandler:    handlers.NewHealthHandler(version, logger, infra.HealthCheckers()...),
		AuthMiddleware:   middleware.NewAuthMiddleware(svc.Auth, logger, httpserver.LoginPath),
		RateLimiter:      limiter,
		Logger:           logger,
		Metrics:          infra.Metrics,
		MetricsCollector: infra.Collector,
	})
	srv := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", logging.String("addr", srv.Addr()))
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", logging.Err(err))
		return err
	}
	logger.Info("API server stopped")
	return nil
}

func sweepLimiter(ctx context.Context, l *middleware.TokenBucketLimiter) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(limiterIdle)
		}
	}
}
