// Package bootstrap opens the infrastructure clients shared by the
// apiserver, the worker and transitctl, and assembles the application
// services on top of them.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/TransitLedger/internal/application/auth"
	"github.com/turtacn/TransitLedger/internal/application/reporting"
	"github.com/turtacn/TransitLedger/internal/application/settlement"
	"github.com/turtacn/TransitLedger/internal/config"
	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/database/postgres"
	"github.com/turtacn/TransitLedger/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/TransitLedger/internal/infrastructure/database/redis"
	"github.com/turtacn/TransitLedger/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/TransitLedger/internal/infrastructure/storage/minio"
	"github.com/turtacn/TransitLedger/internal/interfaces/http/handlers"
)

// Options selects the optional clients to open.
type Options struct {
	// WithStorage opens the MinIO client used by exports.
	WithStorage bool
	// WithMetrics registers the Prometheus collectors.
	WithMetrics bool
}

// Infrastructure holds the opened clients. Close releases them in reverse
// order of opening.
type Infrastructure struct {
	Config    *config.Config
	Logger    logging.Logger
	Postgres  *postgres.Connection
	Redis     *redis.Client
	Producer  *kafka.Producer
	Publisher *kafka.SettlementPublisher
	MinIO     *minio.MinIOClient
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	closers []func() error
}

// Open connects to PostgreSQL, Redis and Kafka, and optionally MinIO. On
// error every client opened so far is closed.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger, opts Options) (_ *Infrastructure, err error) {
	infra := &Infrastructure{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			infra.Close()
		}
	}()

	if opts.WithMetrics && cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.FromConfig(cfg.Metrics), logger)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		infra.Collector = collector
		infra.Metrics = prometheus.NewAppMetrics(collector)
	}

	pg, err := postgres.NewConnection(postgres.FromConfig(cfg.Database), logger)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	infra.Postgres = pg
	infra.closers = append(infra.closers, pg.Close)

	rdb, err := redis.NewClient(redis.FromConfig(cfg.Redis), logger)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	infra.Redis = rdb
	infra.closers = append(infra.closers, rdb.Close)

	producerCfg := kafka.FromConfig(cfg.Kafka)
	if cfg.Kafka.AutoCreateTopics {
		if err := ensureTopics(ctx, cfg.Kafka, logger); err != nil {
			return nil, err
		}
	}
	producer, err := kafka.NewProducer(producerCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("kafka: %w", err)
	}
	infra.Producer = producer
	infra.closers = append(infra.closers, producer.Close)
	infra.Publisher = kafka.NewSettlementPublisher(producer, cfg.Kafka.NotificationTopic, cfg.Kafka.AuditTopic, logger).
		WithMetrics(infra.Metrics)

	if opts.WithStorage {
		mc, err := minio.NewMinIOClient(minio.FromConfig(cfg.MinIO), logger)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		infra.MinIO = mc
		infra.closers = append(infra.closers, mc.Close)
		if err := mc.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
	}

	logger.Info("infrastructure initialized",
		logging.Bool("storage", infra.MinIO != nil),
		logging.Bool("metrics", infra.Metrics != nil))
	return infra, nil
}

func ensureTopics(ctx context.Context, cfg config.KafkaConfig, logger logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger)
	if err != nil {
		return fmt.Errorf("kafka topics: %w", err)
	}
	defer tm.Close()
	if err := tm.EnsureTopics(ctx, kafka.SettlementTopics(cfg.NotificationTopic, cfg.AuditTopic, 1)); err != nil {
		return fmt.Errorf("kafka topics: %w", err)
	}
	return nil
}

// Close releases every opened client.
func (i *Infrastructure) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			i.Logger.Warn("close failed", logging.Err(err))
		}
	}
	i.closers = nil
}

// HealthCheckers returns one readiness check per opened client.
func (i *Infrastructure) HealthCheckers() []handlers.HealthChecker {
	checks := []handlers.HealthChecker{
		handlers.CheckFunc("postgres", i.Postgres.HealthCheck),
		handlers.CheckFunc("redis", i.Redis.Ping),
	}
	if i.MinIO != nil {
		checks = append(checks, handlers.CheckFunc("minio", func(ctx context.Context) error {
			_, err := i.MinIO.HealthCheck(ctx)
			return err
		}))
	}
	return checks
}

// Services bundles the application services.
type Services struct {
	Policy    domain.Policy
	Repo      domain.Repository
	Contracts settlement.ContractService
	Missions  settlement.MissionService
	Payments  settlement.PaymentService
	Scanner   *settlement.OverdueScanner
	Exports   reporting.ExportService
	Auth      *auth.Service
}

// Services assembles the application services on the opened clients.
// Exports is nil when storage was not opened.
func (i *Infrastructure) Services() (*Services, error) {
	cfg := i.Config
	policy, err := settlement.PolicyFromConfig(cfg.Settlement)
	if err != nil {
		return nil, err
	}

	var publisher settlement.Publisher
	if i.Publisher != nil {
		publisher = i.Publisher
	}

	repo := repositories.NewPostgresSettlementRepo(i.Postgres, i.Logger)
	deps := settlement.Deps{
		Repo:      repo,
		Locker:    redis.NewLocker(i.Redis, i.Logger),
		Publisher: publisher,
		Policy:    policy,
		LockTTL:   cfg.Settlement.LockTTL,
		Logger:    i.Logger,
		Metrics:   i.Metrics,
	}

	svc := &Services{
		Policy:    policy,
		Repo:      repo,
		Contracts: settlement.NewContractService(deps),
		Missions:  settlement.NewMissionService(deps),
		Payments:  settlement.NewPaymentService(deps),
		Scanner:   settlement.NewOverdueScanner(deps, redis.NewDeduplicator(i.Redis), cfg.Worker.OverdueBatchSize),
		Auth: auth.NewService(auth.Deps{
			Users:     repositories.NewPostgresUserRepo(i.Postgres, i.Logger),
			Sessions:  redis.NewSessionStore(i.Redis, cfg.Auth.SessionTTL),
			Attempts:  redis.NewCounterStore(i.Redis),
			Audit:     repo,
			Publisher: publisher,
			Config: auth.Config{
				MaxAttempts:    cfg.Auth.MaxLoginAttempts,
				Window:         cfg.Auth.LoginWindow,
				BcryptCost:     cfg.Auth.BcryptCost,
				MinPasswordLen: cfg.Auth.MinPasswordLen,
			},
			Logger:  i.Logger,
			Metrics: i.Metrics,
		}),
	}

	if i.MinIO != nil {
		svc.Exports = reporting.NewExportService(reporting.Deps{
			Repo:       repo,
			Store:      minio.NewExportStore(i.MinIO, i.Logger),
			Policy:     policy,
			LinkExpiry: cfg.MinIO.PresignExpiry,
			Logger:     i.Logger,
			Metrics:    i.Metrics,
		})
	}
	return svc, nil
}

// SampleDBPool publishes connection-pool gauges until ctx is done.
func (i *Infrastructure) SampleDBPool(ctx context.Context, every time.Duration) {
	if i.Metrics == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := i.Postgres.Stats()
			prometheus.SetDBPool(i.Metrics, st.OpenConnections, st.InUse)
		}
	}
}
