// Package main is the entry point for the langgate API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/vyrodovalexey/langgate/internal/config"
	"github.com/vyrodovalexey/langgate/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	envFile     string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	if err := config.LoadDotEnv(flags.envFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", flags.envFile, err)
		os.Exit(1)
	}

	bootstrap := initLogger(resolveLogConfig(flags, observability.DefaultLogConfig()))
	cfg := loadAndValidateConfig(flags.configPath, bootstrap)
	_ = bootstrap.Sync()

	logger := initLogger(resolveLogConfig(flags, cfg.Logging))
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", observability.Error(err))
	}

	run(ctx, app, flags, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("LANGGATE_CONFIG_PATH", ""),
		"Path to configuration file (defaults and environment only when empty)")
	envFile := flag.String("env-file", getEnvOrDefault("LANGGATE_ENV_FILE", ".env"),
		"Path to a .env file loaded before configuration")
	logLevel := flag.String("log-level", "",
		"Log level (debug, info, warn, error); overrides logging.level and "+config.EnvLogLevel)
	logFormat := flag.String("log-format", getEnvOrDefault("LANGGATE_LOG_FORMAT", ""),
		"Log format (json, console); overrides logging.format")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		envFile:     *envFile,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("langgate version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// resolveLogConfig layers non-empty log flags over the configured logging
// section.
func resolveLogConfig(flags cliFlags, cfg observability.LogConfig) observability.LogConfig {
	if flags.logLevel != "" {
		cfg.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Format = flags.logFormat
	}
	return cfg
}

// initLogger builds the logger and installs it globally.
func initLogger(cfg observability.LogConfig) observability.Logger {
	logger, err := observability.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting langgate",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("addr", cfg.Server.Addr),
		observability.String("store", cfg.Store.Driver),
		observability.Bool("rate_limit", cfg.RateLimit.Enabled),
		observability.Int("trusted_proxies", len(cfg.ClientIP.TrustedProxies)),
		observability.String("jwt_secret_source", cfg.Auth.JWT.SecretSource),
	)

	return cfg
}

// run starts the listeners and blocks until a shutdown signal.
func run(ctx context.Context, app *application, flags cliFlags, logger observability.Logger) {
	if err := app.start(ctx); err != nil {
		logger.Fatal("failed to start background tasks", observability.Error(err))
	}

	server := createServer(app)
	go func() {
		logger.Info("starting HTTP server", observability.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", observability.Error(err))
		}
	}()

	metricsServer := startMetricsServerIfEnabled(app, logger)
	watcher := startConfigWatcher(ctx, flags, logger)

	waitForShutdown(app, server, metricsServer, watcher, logger)
}

// createServer builds the public HTTP server.
func createServer(app *application) *http.Server {
	srv := app.config.Server
	return &http.Server{
		Addr:              srv.Addr,
		Handler:           app.router,
		ReadTimeout:       srv.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      srv.WriteTimeout,
		IdleTimeout:       srv.IdleTimeout,
	}
}

// startConfigWatcher watches the configuration file and applies the log
// level on change; an explicit -log-level keeps precedence. It returns nil
// when no file is in use.
func startConfigWatcher(ctx context.Context, flags cliFlags, logger observability.Logger) *config.Watcher {
	if flags.configPath == "" {
		return nil
	}

	watcher, err := config.NewWatcher(flags.configPath, func(newCfg *config.Config) {
		level := resolveLogConfig(flags, newCfg.Logging).Level
		if err := logger.SetLevel(level); err != nil {
			logger.Error("failed to apply log level", observability.Error(err))
			return
		}
		logger.Info("log level applied", observability.String("level", level))
	}, config.WithLogger(logger))
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		_ = watcher.Stop()
		return nil
	}

	return watcher
}
