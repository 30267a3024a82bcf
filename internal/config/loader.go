package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "TRANSITLEDGER"

// bindKeys lists every leaf key so that AutomaticEnv overrides are visible to
// Unmarshal even when the key is absent from the YAML file.
var bindKeys = []string{
	"server.host", "server.port", "server.mode", "server.read_timeout", "server.write_timeout",
	"server.max_body_size", "server.shutdown_timeout", "server.rate_limit_rps", "server.rate_limit_burst",
	"database.host", "database.port", "database.user", "database.password", "database.db_name",
	"database.ssl_mode", "database.max_open_conns", "database.max_idle_conns",
	"database.conn_max_lifetime", "database.conn_max_idle_time", "database.statement_timeout",
	"database.migration_path",
	"redis.mode", "redis.addr", "redis.addrs", "redis.master_name", "redis.password", "redis.db",
	"redis.pool_size", "redis.min_idle_conns", "redis.dial_timeout", "redis.read_timeout",
	"redis.write_timeout", "redis.key_prefix",
	"kafka.brokers", "kafka.client_id", "kafka.required_acks", "kafka.batch_size",
	"kafka.batch_timeout", "kafka.write_timeout", "kafka.max_attempts", "kafka.compression",
	"kafka.auto_create_topics", "kafka.notification_topic", "kafka.audit_topic",
	"minio.endpoint", "minio.access_key", "minio.secret_key", "minio.use_ssl", "minio.region",
	"minio.exports_bucket", "minio.presign_expiry",
	"log.level", "log.format", "log.output_paths",
	"metrics.enabled", "metrics.namespace", "metrics.subsystem", "metrics.path",
	"settlement.free_days", "settlement.demurrage_rate", "settlement.late_penalty_rate",
	"settlement.deadline_days", "settlement.timezone", "settlement.lock_ttl",
	"auth.max_login_attempts", "auth.login_window", "auth.bcrypt_cost", "auth.min_password_len",
	"auth.session_ttl",
	"worker.overdue_scan_interval", "worker.overdue_batch_size",
}

// newViper builds a Viper instance with YAML file type, the TRANSITLEDGER_
// env prefix and a "." -> "_" key replacer, so "database.host" resolves to
// TRANSITLEDGER_DATABASE_HOST.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range bindKeys {
		_ = v.BindEnv(k)
	}
	return v
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env") into
// the process environment without overriding variables already set. A
// missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML file at configPath, merges TRANSITLEDGER_* environment
// overrides, applies defaults and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from TRANSITLEDGER_* environment
// variables, with no config file required.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// LoadAuto loads configPath when it is set, otherwise the environment.
func LoadAuto(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the re-parsed Config
// whenever the file changes. Invalid configurations are reported to onError
// (when non-nil) and never reach onChange. Only hot-reloadable settings such
// as log.level should be applied by the callback.
func Watch(configPath string, onChange func(*Config), onError func(error)) {
	v := newViper()
	v.SetConfigFile(configPath)
	_ = v.ReadInConfig()

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// MustLoad is Load that panics on any error.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
