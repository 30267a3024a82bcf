// Package config defines the configuration structures for TransitLedger.
// No I/O or parsing logic lives in this file, only plain data types and
// validation.
package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"db_name"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	MigrationPath    string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Mode         string        `mapstructure:"mode"` // "standalone" | "sentinel" | "cluster"
	Addr         string        `mapstructure:"addr"`
	Addrs        []string      `mapstructure:"addrs"`
	MasterName   string        `mapstructure:"master_name"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Apache Kafka producer parameters.
type KafkaConfig struct {
	Brokers           []string      `mapstructure:"brokers"`
	ClientID          string        `mapstructure:"client_id"`
	RequiredAcks      int           `mapstructure:"required_acks"`
	BatchSize         int           `mapstructure:"batch_size"`
	BatchTimeout      time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	Compression       string        `mapstructure:"compression"`
	AutoCreateTopics  bool          `mapstructure:"auto_create_topics"`
	NotificationTopic string        `mapstructure:"notification_topic"`
	AuditTopic        string        `mapstructure:"audit_topic"`
}

// MinIOConfig holds object-storage parameters for settlement exports.
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	Region        string        `mapstructure:"region"`
	ExportsBucket string        `mapstructure:"exports_bucket"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// MetricsConfig holds Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
	Path      string `mapstructure:"path"`
}

// SettlementConfig holds the business constants of the settlement engine.
// Amounts are FCFA and parsed as decimals.
type SettlementConfig struct {
	FreeDays        int           `mapstructure:"free_days"`
	DemurrageRate   string        `mapstructure:"demurrage_rate"`
	LatePenaltyRate string        `mapstructure:"late_penalty_rate"`
	DeadlineDays    int           `mapstructure:"deadline_days"`
	Timezone        string        `mapstructure:"timezone"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

// AuthConfig holds login throttling and password hashing parameters.
type AuthConfig struct {
	MaxLoginAttempts int           `mapstructure:"max_login_attempts"`
	LoginWindow      time.Duration `mapstructure:"login_window"`
	BcryptCost       int           `mapstructure:"bcrypt_cost"`
	MinPasswordLen   int           `mapstructure:"min_password_len"`
	SessionTTL       time.Duration `mapstructure:"session_ttl"`
}

// WorkerConfig holds background-worker parameters.
type WorkerConfig struct {
	OverdueScanInterval time.Duration `mapstructure:"overdue_scan_interval"`
	OverdueBatchSize    int           `mapstructure:"overdue_batch_size"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Worker     WorkerConfig     `mapstructure:"worker"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("config: database.max_open_conns must be >= 1, got %d", c.Database.MaxOpenConns)
	}

	switch c.Redis.Mode {
	case "standalone":
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: redis.addr is required in standalone mode")
		}
	case "sentinel", "cluster":
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("config: redis.addrs is required in %s mode", c.Redis.Mode)
		}
	default:
		return fmt.Errorf("config: redis.mode %q is invalid; expected standalone|sentinel|cluster", c.Redis.Mode)
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}

	if c.MinIO.Endpoint == "" {
		return fmt.Errorf("config: minio.endpoint is required")
	}
	if c.MinIO.ExportsBucket == "" {
		return fmt.Errorf("config: minio.exports_bucket is required")
	}

	if err := c.Settlement.validate(); err != nil {
		return err
	}

	if c.Auth.MaxLoginAttempts < 1 {
		return fmt.Errorf("config: auth.max_login_attempts must be >= 1, got %d", c.Auth.MaxLoginAttempts)
	}
	if c.Auth.LoginWindow <= 0 {
		return fmt.Errorf("config: auth.login_window must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

func (s SettlementConfig) validate() error {
	if s.FreeDays < 0 {
		return fmt.Errorf("config: settlement.free_days must be >= 0, got %d", s.FreeDays)
	}
	if s.DeadlineDays < 1 {
		return fmt.Errorf("config: settlement.deadline_days must be >= 1, got %d", s.DeadlineDays)
	}
	for key, raw := range map[string]string{
		"demurrage_rate":    s.DemurrageRate,
		"late_penalty_rate": s.LatePenaltyRate,
	} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("config: settlement.%s %q is not a decimal: %w", key, raw, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("config: settlement.%s must be >= 0, got %s", key, raw)
		}
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("config: settlement.timezone %q: %w", s.Timezone, err)
	}
	return nil
}
