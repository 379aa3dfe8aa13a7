package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lyrebird-dev/chime/internal/api"
	"github.com/lyrebird-dev/chime/internal/config"
	"github.com/lyrebird-dev/chime/internal/metrics"
	"github.com/lyrebird-dev/chime/internal/notify"
	"github.com/lyrebird-dev/chime/internal/repository/postgres"
	"github.com/lyrebird-dev/chime/internal/service"
	"github.com/lyrebird-dev/chime/pkg/logger"
)

func main() {
	// Load .env file if present (development convenience)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log := logger.New(cfg.LogLevel)
	log.Info("Starting chime reminder service")

	db, err := config.NewDatabase(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(cfg.MigrationsPath); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	reminderRepo := postgres.NewReminderRepository(db.DB)
	idempotencyRepo := postgres.NewIdempotencyRepository(db.DB)
	userRepo := postgres.NewUserRepository(db.DB)

	var notifier notify.Notifier
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramToken, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize Telegram notifier")
		}
		notifier = tg
	} else {
		log.Warn("TELEGRAM_TOKEN not set, reminder delivery is disabled")
		notifier = notify.NoopNotifier{}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	reminderService := service.NewReminderService(reminderRepo, notifier, cfg.DefaultTimezone, log)
	processor := service.NewTriggerProcessor(reminderRepo, idempotencyRepo, notifier, m, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(ctx, cfg.TickInterval)

	server := api.NewServer(cfg.Port, reminderService, userRepo, idempotencyRepo, registry, log)
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	log.Info("Shutdown complete")
}
