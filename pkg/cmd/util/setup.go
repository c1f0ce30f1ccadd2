package util

import (
	"context"
	"io"

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/config"
	"github.com/mpapenbr/lapclock/pkg/repository/snapshot"
)

func ParseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger creates the logger from the resolved CLI values and makes it
// the default logger. A log config file takes precedence over the log level.
func SetupLogger(w io.Writer) *log.Logger {
	var logger *log.Logger
	switch config.LogFormat {
	case "json":
		logger = log.New(
			w,
			ParseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	default:
		logger = log.DevLogger(
			w,
			ParseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}
	if config.LogConfig != "" {
		cfg, err := log.LoadConfig(config.LogConfig)
		if err == nil {
			var filtered *log.Logger
			filtered, err = log.NewWithConfig(cfg, config.LogFormat, w,
				log.WithCaller(true),
				log.AddCallerSkip(1))
			if err == nil {
				logger = filtered
			}
		}
		if err != nil {
			logger.Warn("could not apply log config",
				log.String("file", config.LogConfig),
				log.ErrorField(err))
		}
	}
	log.ResetDefault(logger)
	return logger
}

// StoreConfig collects the snapshot store settings resolved from the CLI
func StoreConfig() *snapshot.Config {
	return &snapshot.Config{
		Type:       snapshot.StoreType(config.StoreType),
		Key:        config.SnapshotKey,
		File:       config.StoreFile,
		SQLiteFile: config.SQLiteFile,
		NatsURL:    config.NatsURL,
		NatsBucket: config.NatsBucket,
	}
}

func NewStore(ctx context.Context) (snapshot.Store, error) {
	cfg := StoreConfig()
	log.Debug("Creating snapshot store",
		log.String("type", string(cfg.Type)),
		log.String("key", cfg.Key))
	return snapshot.New(ctx, cfg)
}

// SetupTelemetry enables the metrics exporter if requested.
// The returned function shuts the exporter down.
func SetupTelemetry(ctx context.Context, w io.Writer) func() {
	if !config.EnableTelemetry {
		return func() {}
	}
	log.Info("Enabling telemetry")
	telemetry, err := config.SetupTelemetry(ctx, w)
	if err != nil {
		log.Warn("Could not setup telemetry", log.ErrorField(err))
		return func() {}
	}
	return telemetry.Shutdown
}
