package main

import (
	"context"
	"flag"
	"fmt"

	"paper-trading-go/internal/config"
	"paper-trading-go/internal/database"
	"paper-trading-go/internal/logger"
	"paper-trading-go/internal/market"
	"paper-trading-go/internal/notify"
	"paper-trading-go/internal/storage"
	"paper-trading-go/internal/trading"

	"go.uber.org/zap"
)

// Operational escape hatch: force-close every open trade of a user at the
// current market price, without going through the running server.
func main() {
	userID := flag.String("user", "", "client id whose trades should be closed")
	flag.Parse()
	if *userID == "" {
		fmt.Println("usage: closeall -user <client_id>")
		return
	}

	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	repo := storage.NewRepository(db)

	primary := market.NewPrimaryClient(cfg.Primary, log)
	sessions := market.NewSessionManager(primary, cfg.Primary.SessionValidity(), log)
	secondary := market.NewSecondaryClient(cfg.Secondary, log)
	resolver := market.NewResolver(cfg.Market, cfg.Primary, cfg.Secondary,
		primary, sessions, secondary, market.NewMemoryCache(), log)

	ledger := trading.NewLedger(repo, log)
	notifier := notify.NewStoreNotifier(repo, log)
	service := trading.NewService(cfg.Trading, log, repo, resolver, ledger, notifier)

	summary, err := service.CloseAllTrades(context.Background(), *userID)
	if err != nil {
		log.Fatal("Close-all failed", zap.Error(err))
	}

	for _, r := range summary.Results {
		if r.Closed {
			fmt.Printf("closed %s (%s) pnl %.2f\n", r.TradeID, r.Symbol, r.PnL)
		} else {
			fmt.Printf("failed %s (%s): %s\n", r.TradeID, r.Symbol, r.Reason)
		}
	}
	fmt.Printf("total pnl: %.2f (%d closed, %d failed)\n",
		summary.TotalPnL, summary.Succeeded, summary.Failed)
}
