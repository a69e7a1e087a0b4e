package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"screenwise/config"
	"screenwise/internal/api"
	"screenwise/internal/core"
	"screenwise/internal/logging"
	"screenwise/internal/monitor"
	"screenwise/internal/notify"
	"screenwise/internal/storage/sqlite"
)

const (
	shutdownTimeout   = 10 * time.Second
	defaultConfigPath = "config.json"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	useEnv := flag.Bool("env", false, "Load configuration from environment variables")
	flag.Parse()

	// .env is optional; real env vars win
	_ = godotenv.Load()

	// Load configuration
	var cfg *config.Config
	var err error

	if *useEnv {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: cfg.Logging.Format,
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})

	timezone, err := cfg.Location()
	if err != nil {
		return err
	}

	// Initialize database
	logger.Info("Initializing SQLite database", "path", cfg.Database.Path)
	db, err := sqlite.New(cfg.Database.Path, timezone)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	clock := core.RealClock{}

	// Core services
	lifecycle := core.NewSessionLifecycle(db, clock, logging.ForComponent(logger, "lifecycle"))
	aggregator := core.NewUsageAggregator(db, timezone)
	evaluator := core.NewLimitEvaluator(timezone)
	actions := core.NewInstantActions(db, clock, logging.ForComponent(logger, "actions"))

	// Notification pipeline: sink behind the de-duplicator
	var sink notify.Sink = notify.NopSink{}
	if cfg.Telegram.Enabled {
		sink, err = notify.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID,
			logging.ForComponent(logger, "telegram"))
		if err != nil {
			return fmt.Errorf("failed to initialize telegram sink: %w", err)
		}
	}
	deduper := notify.NewDeduper(sink, cfg.Monitor.Cooldown(), clock,
		logging.ForComponent(logger, "notify"))

	// Evaluation loop
	mon := monitor.New(monitor.Config{
		Storage:     db,
		Aggregator:  aggregator,
		Evaluator:   evaluator,
		Actions:     actions,
		Publisher:   deduper,
		Clock:       clock,
		Interval:    cfg.Monitor.Interval(),
		ApplyGrants: cfg.Monitor.GrantsApplied(),
		Logger:      logging.ForComponent(logger, "monitor"),
	})
	go mon.Start()

	// REST API
	router := api.NewRouter(api.RouterConfig{
		Storage:    db,
		Lifecycle:  lifecycle,
		Aggregator: aggregator,
		Actions:    actions,
		Monitor:    mon,
		Clock:      clock,
		APIKey:     cfg.Security.APIKey,
		Logger:     logging.ForComponent(logger, "api"),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Starting graceful shutdown", "signal", sig.String())

		mon.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("Graceful shutdown complete")
	}

	return nil
}
