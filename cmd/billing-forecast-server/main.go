package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iwvelando/billing-forecast/internal/app"
	"github.com/iwvelando/billing-forecast/internal/clienthistory"
	"github.com/iwvelando/billing-forecast/internal/config"
	"github.com/iwvelando/billing-forecast/internal/server"
	"github.com/iwvelando/billing-forecast/pkg/constants"
)

var version = "dev"

func main() {
	configLocation := flag.String("config", constants.DefaultServerConfigFile, "path to server configuration file")
	address := flag.String("address", "", "listen address override")
	var maxUpload server.ByteSize
	flag.Var(&maxUpload, "max-upload-size", "maximum request size override, e.g. 512K or 2M")
	maxOpportunities := flag.Int("max-opportunities", 0, "maximum opportunities per request override")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"warn\", \"msg\": \"failed to load .env\", \"error\": \"%v\"}\n", err)
	}

	cfg, err := server.LoadConfig(*configLocation)
	if err != nil {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load server configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Address = *address
	}
	if maxUpload > 0 {
		cfg.Limits.MaxUploadSize = maxUpload
	}
	if *maxOpportunities > 0 {
		cfg.Limits.MaxOpportunities = *maxOpportunities
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"invalid server limits\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.Logging, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defaults, store := loadDefaults(ctx, logger, cfg.ForecastConfig)
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close client history",
					zap.String("op", "main"),
					zap.Error(err),
				)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           server.NewHandler(logger, cfg.Limits, version, defaults),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown failed",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
	}()

	logger.Info("starting billing-forecast server",
		zap.String("op", "main"),
		zap.String("address", cfg.Address),
		zap.Stringer("maxUploadSize", cfg.Limits.MaxUploadSize),
		zap.Int("maxOpportunities", cfg.Limits.MaxOpportunities),
		zap.String("version", version),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server stopped",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
}

// loadDefaults reads the optional forecast configuration. Without one the
// server runs with the built-in rules and no client history.
func loadDefaults(ctx context.Context, logger *zap.Logger, path string) (server.Defaults, clienthistory.Store) {
	if path == "" {
		return server.Defaults{}, nil
	}

	conf, err := config.LoadConfiguration(path)
	if err != nil {
		logger.Fatal("failed to load forecast configuration",
			zap.String("op", "main"),
			zap.String("path", path),
			zap.Error(err),
		)
	}
	app.ConfigureTracing(conf.Tracing)
	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	params, err := app.Params(conf)
	if err != nil {
		logger.Fatal("invalid forecast parameters",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	defaults := server.Defaults{
		Rules:   params.Rules,
		Mode:    params.Mode,
		Segment: params.Segment,
		Workers: params.Workers,
	}

	store, err := app.OpenClientHistory(logger, conf)
	if err != nil {
		logger.Fatal("failed to open client history",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	if store != nil {
		app.LogStats(ctx, logger, store)
		defaults.Lookup = store
	}
	return defaults, store
}
