package bootstrap

import (
	"github.com/turtacn/TransitLedger/internal/config"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
)

// LoadConfig reads .env, then the YAML file at path (environment only when
// path is empty).
func LoadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	return config.LoadAuto(path)
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig) (logging.Logger, error) {
	return logging.NewLogger(logging.LogConfig{
		Level:       cfg.Level,
		Format:      cfg.Format,
		OutputPaths: cfg.OutputPaths,
	})
}

// WatchLogLevel applies log.level changes of the file at path without a
// restart. Other settings need a restart.
func WatchLogLevel(path string, logger logging.Logger) {
	if path == "" {
		return
	}
	config.Watch(path, func(cfg *config.Config) {
		if logging.SetLevel(logger, cfg.Log.Level) {
			logger.Info("log level changed", logging.String("level", cfg.Log.Level))
		}
	}, func(err error) {
		logger.Warn("configuration reload rejected", logging.Err(err))
	})
}
