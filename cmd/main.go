package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ouraring/internal/api"
	"ouraring/internal/config"
	"ouraring/internal/ha"
	"ouraring/internal/metrics"
	"ouraring/internal/oura"
	"ouraring/internal/scheduler"
	"ouraring/internal/sensor"
	"ouraring/internal/sleep"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to $OURA_CONFIG, then ./config.yaml)")
	once := flag.Bool("once", false, "run a single refresh and exit")
	flag.Parse()

	// Bootstrap logger until the configured level is known
	bootLogger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	loader := config.NewLoader(*configPath, bootLogger)
	loader.LoadDotEnv()

	cfg, err := loader.Load()
	if err != nil {
		bootLogger.Fatal("Failed to load configuration", zap.Error(err))
	}
	bootLogger.Sync()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		bootLogger.Fatal("Failed to create logger", zap.Error(err))
	}
	defer logger.Sync()

	policy, err := sleep.ParseFieldPolicy(cfg.Poll.MissingFields)
	if err != nil {
		logger.Fatal("Invalid missing field policy", zap.Error(err))
	}

	logger.Info("Starting Oura Ring sleep sensor",
		zap.String("ha_url", cfg.HomeAssistant.URL),
		zap.String("entity_id", cfg.HomeAssistant.EntityID),
		zap.String("schedule", cfg.Poll.Schedule),
		zap.String("missing_fields", policy.String()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	ouraClient := oura.NewClient(oura.Options{
		BaseURL:      cfg.Oura.BaseURL,
		Timeout:      cfg.Oura.Timeout,
		LookbackDays: cfg.Oura.LookbackDays,
	}, logger)

	haClient, err := ha.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
	if err != nil {
		logger.Fatal("Failed to create Home Assistant client", zap.Error(err))
	}

	publisher := ha.NewSensorPublisher(haClient, cfg.HomeAssistant.EntityID)
	sleepSensor := sensor.NewSensor(ouraClient, publisher, cfg.Oura.APIToken, policy, nil, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched, err := scheduler.New(cfg.Poll.Schedule, sleepSensor, logger)
	if err != nil {
		logger.Fatal("Failed to create scheduler", zap.Error(err))
	}

	if *once {
		outcome, err := sched.RunNow(ctx)
		if err != nil {
			logger.Fatal("Refresh failed", zap.Error(err))
		}
		logger.Info("Refresh finished", zap.String("outcome", outcome.String()))
		return
	}

	// The WebSocket connection is only needed to watch the refresh entity
	if cfg.HomeAssistant.RefreshEntity != "" {
		if _, err := ha.WatchRefreshEntity(haClient, cfg.HomeAssistant.RefreshEntity, func() { sched.Trigger() }, logger); err != nil {
			logger.Fatal("Failed to watch refresh entity", zap.Error(err))
		}

		if err := haClient.Connect(); err != nil {
			logger.Warn("Failed to connect to Home Assistant, retrying in background",
				zap.Error(err))
			haClient.ConnectInBackground()
		}
		defer haClient.Disconnect()

		logger.Info("Watching refresh entity",
			zap.String("entity_id", cfg.HomeAssistant.RefreshEntity))
	}

	if err := sched.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	var apiServer *api.Server
	if cfg.API.Port > 0 {
		apiServer = api.NewServer(sleepSensor, sched, registry, logger, cfg.API.Port)
		if err := apiServer.Start(); err != nil {
			logger.Fatal("Failed to start HTTP API server", zap.Error(err))
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Application running. Press Ctrl+C to exit.")

	<-sigChan

	logger.Info("Shutting down gracefully...")

	if apiServer != nil {
		if err := apiServer.Stop(context.Background()); err != nil {
			logger.Error("Failed to stop HTTP API server", zap.Error(err))
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
