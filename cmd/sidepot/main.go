// Package main provides the entry point for the sidepot wagering service.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sidepot/sidepot/internal/api"
	"github.com/sidepot/sidepot/internal/community"
	"github.com/sidepot/sidepot/internal/config"
	"github.com/sidepot/sidepot/internal/database"
	"github.com/sidepot/sidepot/internal/engine"
	"github.com/sidepot/sidepot/internal/health"
	"github.com/sidepot/sidepot/internal/ledger"
	"github.com/sidepot/sidepot/internal/logger"
	"github.com/sidepot/sidepot/internal/metrics"
	"github.com/sidepot/sidepot/internal/notify"
	"github.com/sidepot/sidepot/internal/repository"
	"github.com/sidepot/sidepot/internal/scheduler"
	"github.com/sidepot/sidepot/internal/service"
	"github.com/sidepot/sidepot/internal/stream"
	"github.com/sidepot/sidepot/internal/tracker"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configPath := os.Getenv("SIDEPOT_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// Load configuration
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Load AWS secrets if enabled
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			log.Fatalf("AWS_REGION and AWS_SECRET_NAME environment variables must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			log.Fatalf("Failed to load secrets: %v", err)
		}
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Set up logging
	appLog := logger.NewLogger(cfg.App.LogLevel)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"log_level":   cfg.App.LogLevel,
		"version":     Version,
	}).Info("Sidepot wagering service starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection
	db, err := database.NewDB(ctx, &cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.InitSchema {
		if err := database.InitSchema(ctx, db); err != nil {
			appLog.WithError(err).Fatal("Failed to initialize database schema")
		}
		appLog.Info("Database schema initialized")
	}

	appLog.Info("Database connection established")

	// Initialize repositories
	repos, err := repository.NewRepositories(db)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize repositories")
	}

	// Initialize metrics registry
	metrics.InitRegistry()

	// Notification sink
	var sink engine.NotificationSink
	var webhookSink *notify.WebhookSink
	if cfg.Notifications.Enabled {
		webhookSink = notify.NewWebhookSink(notify.Config{
			WebhookURL:    cfg.Notifications.WebhookURL,
			Timeout:       10 * time.Second,
			MaxRetries:    2,
			RatePerSecond: cfg.Notifications.RatePerSecond,
			Burst:         cfg.Notifications.Burst,
		}, appLog)
		sink = webhookSink
		appLog.WithField("webhook_url", cfg.Notifications.WebhookURL).Info("Webhook notifications enabled")
	} else {
		sink = notify.NopSink{}
		appLog.Info("Notifications disabled")
	}

	// Wagering and settlement engines over the transactional store
	wagering := engine.NewWageringEngine(repos.Store, engine.WageringConfig{
		MaxStake:     cfg.Wagering.MaxStake,
		MaxAttempts:  cfg.Wagering.MaxRetryAttempts,
		RetryBackoff: cfg.RetryBackoff(),
	}, appLog)
	wagering.SetNotificationSink(sink)

	settlement := engine.NewSettlementEngine(repos.Store, appLog)
	settlement.SetNotificationSink(sink)

	// Odds history tracker observes committed pool changes
	oddsTracker := tracker.NewTracker(repos.OddsHistory, tracker.Config{
		PoolDeltaThreshold: cfg.Tracker.PoolDeltaThreshold,
		ProbDeltaThreshold: cfg.Tracker.ProbDeltaThreshold,
		Retention:          cfg.Retention(),
		PruneBatchSize:     cfg.Tracker.PruneBatchSize,
	}, appLog)
	wagering.AddOddsObserver(oddsTracker)

	// Optional websocket odds stream
	var streamHandler api.StreamHandler
	if cfg.Stream.Enabled {
		hub := stream.NewHub(appLog)
		go hub.Run(ctx)
		wagering.AddOddsObserver(hub)
		streamHandler = hub
		appLog.Info("Odds stream enabled")
	}

	// Market lifecycle service and ledger resolution workflow
	directory := community.NewCachedDirectory(repos.Member, 5*time.Minute, appLog)
	markets := service.NewMarketService(repos.Market, repos.Participation, settlement, sink, directory, appLog)
	ledgerSvc := ledger.NewService(repos.Balance, appLog)

	// JSON API server
	handlers := api.NewHandlers(markets, wagering, settlement, ledgerSvc, repos, cfg.Wallet.StartingBalance, appLog)
	apiServer := api.NewServer(api.Config{Port: cfg.API.Port}, handlers, streamHandler, appLog)
	apiServer.Start(ctx)

	// Background maintenance jobs
	sched := scheduler.NewScheduler(appLog)
	if err := sched.ScheduleHistoryPrune(cfg.Tracker.PruneSchedule, oddsTracker); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule odds history prune")
	}
	if err := sched.ScheduleDeadlineSweep(cfg.Tracker.SweepSchedule, markets); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule deadline sweep")
	}
	if err := sched.Start(); err != nil {
		appLog.WithError(err).Fatal("Failed to start scheduler")
	}

	// Health check server, with metrics on the same listener
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = metrics.Handler()
	}
	healthServer := health.NewServer(health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Commit:      GitCommit,
		Port:        fmt.Sprintf("%d", cfg.Health.Port),
		Logger:      appLog,
		Metrics:     metricsHandler,
	})
	healthServer.AddCheck("database", db.Ping)
	if err := healthServer.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start health server")
	}
	healthServer.SetReady(true)

	appLog.WithFields(logrus.Fields{
		"notifications": cfg.Notifications.Enabled,
		"stream":        cfg.Stream.Enabled,
		"next_job":      sched.GetNextRun(),
	}).Info("Sidepot wagering service running")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	appLog.WithField("signal", sig).Info("Shutdown signal received")

	healthServer.SetReady(false)
	cancel()

	if err := sched.Stop(); err != nil {
		appLog.WithError(err).Error("Error stopping scheduler")
	}
	if err := apiServer.Shutdown(); err != nil {
		appLog.WithError(err).Error("Error stopping API server")
	}
	if webhookSink != nil {
		webhookSink.Close()
	}

	appLog.Info("Sidepot wagering service shut down")
}
