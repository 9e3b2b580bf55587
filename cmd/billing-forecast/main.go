package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iwvelando/billing-forecast/internal/app"
	"github.com/iwvelando/billing-forecast/internal/config"
	"github.com/iwvelando/billing-forecast/internal/forecast"
	"github.com/iwvelando/billing-forecast/internal/normalize"
	"github.com/iwvelando/billing-forecast/pkg/adapters"
	"github.com/iwvelando/billing-forecast/pkg/constants"
	"github.com/iwvelando/billing-forecast/pkg/output"
	"github.com/iwvelando/billing-forecast/pkg/validation"
)

func main() {
	// Process command line flags first to get config location
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	opportunitiesFlag := flag.String("opportunities", "", "path to the opportunities file (yaml, json or hjson)")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv, json, markdown, html")
	modeFlag := flag.String("mode", "", "billing mode override: Contable, Financiera")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	recordHistory := flag.Bool("record-history", false, "store confirmed opportunities in the client history")
	flag.Parse()

	// BILLING_FORECAST_* values in .env feed the viper environment overrides
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"warn\", \"msg\": \"failed to load .env\", \"error\": \"%v\"}\n", err)
	}

	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(conf.Logging, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	app.ConfigureTracing(conf.Tracing)

	// Determine output format (CLI override takes precedence over config)
	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "main"),
		)
	}

	if *modeFlag != "" {
		conf.Billing.Mode = *modeFlag
	}
	opportunitiesFile := conf.Input.OpportunitiesFile
	if *opportunitiesFlag != "" {
		opportunitiesFile = *opportunitiesFlag
	}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := app.OpenClientHistory(logger, conf)
	if err != nil {
		logger.Fatal("failed to open client history",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	var lookup normalize.ClientLookup
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close client history",
					zap.String("op", "main"),
					zap.Error(err),
				)
			}
		}()
		app.LogStats(ctx, logger, store)
		lookup = store
	}

	records, err := config.LoadOpportunities(opportunitiesFile)
	if err != nil {
		logger.Fatal("failed to load opportunities",
			zap.String("op", "main"),
			zap.String("file", opportunitiesFile),
			zap.Error(err),
		)
	}

	records, report, err := normalize.New(logger, lookup).Backfill(ctx, records)
	if err != nil {
		logger.Fatal("failed to normalize opportunities",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	for _, warning := range report.Warnings {
		logger.Warn(warning, zap.String("op", "main"))
	}

	opps, convErrs := adapters.RecordsToOpportunities(records)
	params.Unreadable = forecast.RejectedInputs(convErrs)

	run, err := forecast.NewEngine(logger).Run(ctx, opps, params)
	if err != nil {
		logger.Fatal("failed to compute forecast",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	if *recordHistory {
		// A failure is logged and the forecast is still written.
		_, _ = app.RecordHistory(ctx, logger, store, opps)
	}

	if err := output.Write(os.Stdout, outputFormat, output.NewReport(run)); err != nil {
		logger.Fatal("failed to write forecast",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
}
