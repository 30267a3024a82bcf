// Package config provides configuration loading, defaults, and validation for
// TransitLedger.
package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort            = 8080
	DefaultServerMode            = "release"
	DefaultServerReadTimeout     = 15 * time.Second
	DefaultServerWriteTimeout    = 30 * time.Second
	DefaultServerShutdownTimeout = 20 * time.Second
	DefaultServerMaxBodySize     = 1 << 20
	DefaultServerRateLimitRPS    = 20
	DefaultServerRateLimitBurst  = 40

	DefaultDBHost            = "localhost"
	DefaultDBPort            = 5432
	DefaultDBName            = "transitledger"
	DefaultDBMaxOpenConns    = 25
	DefaultDBMaxIdleConns    = 5
	DefaultDBConnMaxLifetime = 30 * time.Minute
	DefaultDBMigrationPath   = "file://migrations"

	DefaultRedisMode      = "standalone"
	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisPoolSize  = 20
	DefaultRedisKeyPrefix = "transitledger"

	DefaultKafkaBroker            = "localhost:9092"
	DefaultKafkaClientID          = "transitledger"
	DefaultKafkaNotificationTopic = "settlement.notification"
	DefaultKafkaAuditTopic        = "settlement.audit"

	DefaultMinIOEndpoint      = "localhost:9000"
	DefaultMinIOExportsBucket = "transitledger-exports"
	DefaultMinIOPresignExpiry = 15 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "transitledger"
	DefaultMetricsPath      = "/metrics"

	DefaultFreeDays        = 3
	DefaultDemurrageRate   = "25000"
	DefaultLatePenaltyRate = "25000"
	DefaultDeadlineDays    = 23
	DefaultTimezone        = "Africa/Bamako"
	DefaultLockTTL         = 10 * time.Second

	DefaultMaxLoginAttempts = 5
	DefaultLoginWindow      = 300 * time.Second
	DefaultBcryptCost       = 12
	DefaultMinPasswordLen   = 8
	DefaultSessionTTL       = 12 * time.Hour

	DefaultOverdueScanInterval = time.Hour
	DefaultOverdueBatchSize    = 200
)

// ApplyDefaults fills every zero-value field in cfg with its default.
// Explicitly set values are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultServerMaxBodySize
	}
	if cfg.Server.RateLimitRPS == 0 {
		cfg.Server.RateLimitRPS = DefaultServerRateLimitRPS
	}
	if cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = DefaultServerRateLimitBurst
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDBMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = DefaultDBConnMaxLifetime
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = DefaultDBMigrationPath
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Mode == "" {
		cfg.Redis.Mode = DefaultRedisMode
	}
	if cfg.Redis.Addr == "" && cfg.Redis.Mode == "standalone" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = DefaultKafkaClientID
	}
	if cfg.Kafka.NotificationTopic == "" {
		cfg.Kafka.NotificationTopic = DefaultKafkaNotificationTopic
	}
	if cfg.Kafka.AuditTopic == "" {
		cfg.Kafka.AuditTopic = DefaultKafkaAuditTopic
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.ExportsBucket == "" {
		cfg.MinIO.ExportsBucket = DefaultMinIOExportsBucket
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = DefaultMinIOPresignExpiry
	}

	// ── Log / Metrics ─────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Settlement ────────────────────────────────────────────────────────────
	if cfg.Settlement.FreeDays == 0 {
		cfg.Settlement.FreeDays = DefaultFreeDays
	}
	if cfg.Settlement.DemurrageRate == "" {
		cfg.Settlement.DemurrageRate = DefaultDemurrageRate
	}
	if cfg.Settlement.LatePenaltyRate == "" {
		cfg.Settlement.LatePenaltyRate = DefaultLatePenaltyRate
	}
	if cfg.Settlement.DeadlineDays == 0 {
		cfg.Settlement.DeadlineDays = DefaultDeadlineDays
	}
	if cfg.Settlement.Timezone == "" {
		cfg.Settlement.Timezone = DefaultTimezone
	}
	if cfg.Settlement.LockTTL == 0 {
		cfg.Settlement.LockTTL = DefaultLockTTL
	}

	// ── Auth ──────────────────────────────────────────────────────────────────
	if cfg.Auth.MaxLoginAttempts == 0 {
		cfg.Auth.MaxLoginAttempts = DefaultMaxLoginAttempts
	}
	if cfg.Auth.LoginWindow == 0 {
		cfg.Auth.LoginWindow = DefaultLoginWindow
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = DefaultBcryptCost
	}
	if cfg.Auth.MinPasswordLen == 0 {
		cfg.Auth.MinPasswordLen = DefaultMinPasswordLen
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = DefaultSessionTTL
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.OverdueScanInterval == 0 {
		cfg.Worker.OverdueScanInterval = DefaultOverdueScanInterval
	}
	if cfg.Worker.OverdueBatchSize == 0 {
		cfg.Worker.OverdueBatchSize = DefaultOverdueBatchSize
	}
}
