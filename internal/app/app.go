// Package app wires configuration into the collaborators shared by the
// command-line tool and the server.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iwvelando/billing-forecast/internal/clienthistory"
	"github.com/iwvelando/billing-forecast/internal/config"
	"github.com/iwvelando/billing-forecast/internal/forecast"
	"github.com/iwvelando/billing-forecast/pkg/constants"
	"github.com/iwvelando/billing-forecast/pkg/domain"
)

// NewLogger creates a zap logger based on configuration and CLI override
func NewLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	// Determine log level (CLI override takes precedence)
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	format := loggingConfig.Format
	if format == "" {
		format = "json"
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	// Reports go to stdout, so logs default to stderr
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	if loggingConfig.OutputFile != "" {
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}

		file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		}
		_ = file.Close()

		cfg.OutputPaths = []string{loggingConfig.OutputFile}
		cfg.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return cfg.Build()
}

// ConfigureTracing installs a no-op tracer provider unless tracing is enabled,
// in which case spans go to whatever provider the process registered.
func ConfigureTracing(tracing config.TracingConfig) {
	if !tracing.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
	}
}

// OpenClientHistory opens the configured history store, wrapped in the Redis
// cache when an address is set. It returns nil when history is disabled.
func OpenClientHistory(logger *zap.Logger, conf *config.Configuration) (clienthistory.Store, error) {
	ch := conf.ClientHistory
	path := strings.TrimSpace(ch.Path)
	if path == "" {
		path = constants.DefaultClientHistoryPath
	}

	store, err := clienthistory.Open(logger, ch.Backend, path)
	if err != nil || store == nil {
		return nil, err
	}
	if ch.Redis.Address == "" {
		return store, nil
	}

	ttl, err := conf.CacheTTL()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	client := clienthistory.NewRedisClient(ch.Redis.Address, ch.Redis.Password, ch.Redis.DB)
	return clienthistory.NewRedisCache(logger, store, client, ttl), nil
}

// Params builds the run parameters from the configuration.
func Params(conf *config.Configuration) (forecast.Params, error) {
	r, err := conf.BusinessRules()
	if err != nil {
		return forecast.Params{}, err
	}
	mode, err := conf.BillingMode()
	if err != nil {
		return forecast.Params{}, err
	}
	segment, err := conf.Segment()
	if err != nil {
		return forecast.Params{}, err
	}
	today, err := conf.ReferenceDate()
	if err != nil {
		return forecast.Params{}, err
	}
	return forecast.Params{
		Rules:   r,
		Mode:    mode,
		Segment: segment,
		Today:   today,
		Workers: conf.Workers(),
	}, nil
}

// LogStats reports the size of the client history, if any.
func LogStats(ctx context.Context, logger *zap.Logger, store clienthistory.Store) {
	if store == nil {
		return
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		logger.Warn("failed to read client history stats",
			zap.String("op", "app.LogStats"),
			zap.Error(err),
		)
		return
	}
	logger.Info("client history loaded",
		zap.String("op", "app.LogStats"),
		zap.Int("clients", stats.Clients),
		zap.Int("projects", stats.Projects),
	)
}

// RecordHistory stores the confirmed opportunities of opps in the client
// history. It returns the number recorded before any failure.
func RecordHistory(ctx context.Context, logger *zap.Logger, store clienthistory.Store, opps []domain.Opportunity) (int, error) {
	if store == nil {
		logger.Warn("client history is disabled; nothing recorded",
			zap.String("op", "app.RecordHistory"),
		)
		return 0, nil
	}
	n, err := clienthistory.RecordConfirmed(ctx, store, opps)
	if err != nil {
		logger.Error("failed to record client history",
			zap.String("op", "app.RecordHistory"),
			zap.Int("recorded", n),
			zap.Error(err),
		)
		return n, err
	}
	logger.Info("recorded confirmed opportunities",
		zap.String("op", "app.RecordHistory"),
		zap.Int("recorded", n),
	)
	return n, nil
}
