// Package main is the entry point for the trading terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rtpalgo/terminal/internal/alerting"
	"github.com/rtpalgo/terminal/internal/config"
	"github.com/rtpalgo/terminal/internal/engine"
	"github.com/rtpalgo/terminal/internal/feed"
	"github.com/rtpalgo/terminal/internal/gateway"
	"github.com/rtpalgo/terminal/internal/gateway/alice"
	"github.com/rtpalgo/terminal/internal/gateway/paper"
	"github.com/rtpalgo/terminal/internal/instruments"
	"github.com/rtpalgo/terminal/internal/metrics"
	"github.com/rtpalgo/terminal/internal/sheet"
)

// Version information (set by build flags).
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Parse command
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	case "run":
		cmdRun(os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	case "import-contracts":
		cmdImportContracts(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Trading Terminal - Sheet-Driven Order Manager

Usage:
  terminal <command> [options]

Commands:
  run               Start the terminal (paper or live gateway)
  validate          Validate configuration file
  import-contracts  Load a master contract CSV into the instrument store
  version           Show version information
  help              Show this help message

Examples:
  terminal run --config config.yaml
  terminal validate --config config.yaml
  terminal import-contracts --config config.yaml --exchange NSE --file NSE.csv

Use "terminal <command> --help" for more information about a command.`)
}

func cmdVersion() {
	fmt.Printf("terminal version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Git commit: %s\n", GitCommit)
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration is valid!")
	fmt.Printf("  Gateway:             %s\n", cfg.Gateway.Type)
	fmt.Printf("  Max rows:            %d\n", cfg.Engine.MaxRows)
	fmt.Printf("  Trigger poll:        %s\n", cfg.TriggerPollInterval())
	fmt.Printf("  Stoploss/target poll: %s\n", cfg.StopTargetPollInterval())
	fmt.Printf("  Watch file:          %s\n", cfg.Sheet.WatchFile)
	fmt.Printf("  Instrument store:    %s\n", cfg.Instruments.DBPath)
}

func cmdImportContracts(args []string) {
	fs := flag.NewFlagSet("import-contracts", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	exchange := fs.String("exchange", "", "Exchange segment, e.g. NSE (required)")
	filePath := fs.String("file", "", "Path to master contract CSV (required)")
	fs.Parse(args)

	if *exchange == "" || *filePath == "" {
		fmt.Fprintln(os.Stderr, "Error: --exchange and --file are required")
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	store, err := instruments.Open(cfg.Instruments.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Open instrument store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	f, err := os.Open(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Open contract file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	n, err := store.ImportCSV(context.Background(), *exchange, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Imported %d contracts for %s into %s\n", n, *exchange, cfg.Instruments.DBPath)
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	paperMode := fs.Bool("paper", false, "Force the paper gateway regardless of config")
	fs.Parse(args)

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *paperMode {
		cfg.Gateway.Type = "paper"
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("terminal starting",
		"version", Version,
		"gateway", cfg.Gateway.Type,
		"max_rows", cfg.Engine.MaxRows,
		"watch_file", cfg.Sheet.WatchFile,
	)

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("terminal failed", "err", err)
		os.Exit(1)
	}

	slog.Info("terminal shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	metrics.SetBuildInfo(Version, GitCommit, BuildTime)

	// Master contract store
	contracts, err := instruments.Open(cfg.Instruments.DBPath)
	if err != nil {
		return fmt.Errorf("open instrument store: %w", err)
	}
	defer contracts.Close()

	if n, err := contracts.Count(ctx); err == nil && n == 0 {
		slog.Warn("instrument store is empty, run import-contracts first",
			"db", cfg.Instruments.DBPath)
	}

	// Brokerage gateway
	var base gateway.Gateway
	switch cfg.Gateway.Type {
	case "alice":
		client, err := alice.NewClient(
			alice.DefaultConfig(cfg.Gateway.CredentialsFile), contracts, logger)
		if err != nil {
			return fmt.Errorf("create gateway: %w", err)
		}
		if err := client.Login(ctx); err != nil {
			return fmt.Errorf("gateway login: %w", err)
		}
		base = client
	default:
		base = paper.New(paper.DefaultConfig(), logger)
	}

	gw := gateway.NewPlacer(base, gateway.PlacerConfig{
		MaxRetries:        cfg.Gateway.MaxPlacementRetries,
		RetryDelay:        cfg.RetryDelay(),
		RequestsPerSecond: cfg.Gateway.MaxRequestsPerSecond,
	}, logger)

	// Tick feed
	ticks := feed.NewStore()

	var stream *feed.StreamClient
	if cfg.Feed.URL != "" {
		streamCfg := feed.DefaultStreamConfig(cfg.Feed.URL)
		streamCfg.InitialBackoff = cfg.ReconnectBackoff()
		streamCfg.MaxBackoff = cfg.MaxReconnectBackoff()

		stream = feed.NewStreamClient(streamCfg, ticks, logger)
		if err := stream.Start(ctx); err != nil {
			return fmt.Errorf("start tick stream: %w", err)
		}
	} else {
		slog.Warn("feed.url not set, conditional and stoploss/target monitors will see no ticks")
	}

	// Alerting
	var alerter *alerting.MultiAlerter
	var engineAlerter alerting.Alerter
	if cfg.Alerting.Enabled {
		alerter = alerting.NewMultiAlerter(logger, alerting.NewConsoleAlerter(logger))
		engineAlerter = alerter
	}

	// Order lifecycle engine
	eng := engine.New(engine.Config{
		MaxRows:                cfg.Engine.MaxRows,
		TriggerPollInterval:    cfg.TriggerPollInterval(),
		StopTargetPollInterval: cfg.StopTargetPollInterval(),
		HaltOnPlacementFailure: cfg.Engine.HaltOnPlacementFailure,
	}, gw, ticks, contracts, engineAlerter, logger)

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	// Sheet poller
	sht := sheet.NewFileSheet(sheet.FileConfig{
		WatchFile:     cfg.Sheet.WatchFile,
		StateFile:     cfg.Sheet.StateFile,
		OrderBookFile: cfg.Sheet.OrderBookFile,
		TickerFile:    cfg.Sheet.TickerFile,
		ProfileFile:   cfg.Sheet.ProfileFile,
	}, logger)

	var sub sheet.Subscriber
	if stream != nil {
		sub = stream
	}
	poller := sheet.NewPoller(sheet.PollerConfig{
		PollInterval:         cfg.SheetPollInterval(),
		OrderRefreshInterval: cfg.OrderRefreshInterval(),
		MaxTokens:            cfg.Engine.MaxRows,
	}, sht, eng, contracts, sub, ticks, gw, logger)

	if err := poller.Start(ctx); err != nil {
		return fmt.Errorf("start sheet poller: %w", err)
	}

	// Metrics server
	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(metrics.ServerConfig{
			Port:        cfg.Metrics.Port,
			MetricsPath: cfg.Metrics.Path,
			HealthPath:  "/health",
		}, logger)
		metricsSrv.RegisterHealthCheck("instruments", func() metrics.Check {
			if _, err := contracts.Count(context.Background()); err != nil {
				return metrics.Check{Status: "unhealthy", Message: err.Error()}
			}
			return metrics.Check{Status: "healthy"}
		})
		if err := metricsSrv.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	if alerter != nil {
		alerter.AlertEvent(ctx, alerting.EventTerminalStarted,
			"Terminal started", "version", Version, "gateway", cfg.Gateway.Type)
	}

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdown(shutdownCtx, poller, eng, stream, metricsSrv)

	if alerter != nil {
		alerter.AlertEvent(shutdownCtx, alerting.EventTerminalStopped,
			"Terminal stopped")
	}
	return nil
}

func shutdown(
	ctx context.Context,
	poller *sheet.Poller,
	eng *engine.Engine,
	stream *feed.StreamClient,
	metricsSrv *metrics.Server,
) {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"stop sheet poller", func() error { return poller.Stop(ctx) }},
		{"stop engine", func() error { return eng.Stop(ctx) }},
		{"stop tick stream", func() error {
			if stream != nil {
				stream.Stop()
			}
			return nil
		}},
		{"stop metrics server", func() error {
			if metricsSrv != nil {
				return metricsSrv.Shutdown(ctx)
			}
			return nil
		}},
	}

	for _, step := range steps {
		select {
		case <-ctx.Done():
			slog.Error("shutdown timeout", "step", step.name)
			return
		default:
			slog.Debug("shutdown step", "step", step.name)
			if err := step.fn(); err != nil {
				slog.Warn("shutdown step failed", "step", step.name, "err", err)
			}
		}
	}
}
