package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"paper-trading-go/internal/config"
	"paper-trading-go/internal/database"
	"paper-trading-go/internal/logger"
	"paper-trading-go/internal/market"
	"paper-trading-go/internal/notify"
	"paper-trading-go/internal/storage"
	"paper-trading-go/internal/trading"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")
	repo := storage.NewRepository(db)

	// Price resolution chain: cache, primary feed, secondary feed, fallbacks
	primary := market.NewPrimaryClient(cfg.Primary, log)
	sessions := market.NewSessionManager(primary, cfg.Primary.SessionValidity(), log)
	secondary := market.NewSecondaryClient(cfg.Secondary, log)
	cache := market.NewMemoryCache()
	resolver := market.NewResolver(cfg.Market, cfg.Primary, cfg.Secondary,
		primary, sessions, secondary, cache, log)

	// Notifications: always persisted, optionally pushed to Telegram
	notifier := notify.Fanout{
		notify.NewStoreNotifier(repo, log),
		notify.NewTelegramNotifier(cfg.Telegram, log),
	}

	// Trade lifecycle and background monitor
	ledger := trading.NewLedger(repo, log)
	service := trading.NewService(cfg.Trading, log, repo, resolver, ledger, notifier)
	monitor := trading.NewMonitor(cfg.Trading, log, repo, resolver, service)
	service.AttachTracker(monitor)

	if err := monitor.Start(); err != nil {
		log.Fatal("Failed to start trade monitor", zap.Error(err))
	}

	// Metrics endpoint
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		http.Handle("/metrics", promhttp.Handler())
		log.Info("Serving metrics", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	// Block until a shutdown signal arrives
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	monitor.Stop()
	log.Info("Paper trading engine has been shut down.")
}
