package notify

import (
	"context"
	"fmt"
	"time"

	"paper-trading-go/internal/config"
	"paper-trading-go/internal/models"
	"paper-trading-go/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notification kinds.
const (
	KindTradeOpened  = "TRADE_OPENED"
	KindTradeClosed  = "TRADE_CLOSED"
	KindTradesExited = "TRADES_EXITED"
)

// Notifier delivers human-readable events to a user. Delivery is
// fire-and-forget: a failed notification never blocks or rolls back the
// operation that triggered it.
type Notifier interface {
	Notify(ctx context.Context, userID, kind, message string)
}

// StoreNotifier persists every notification as a record and logs it. This is
// the always-on port; outbound channels layer on top of it via Fanout.
type StoreNotifier struct {
	repo   *storage.Repository
	logger *zap.Logger
}

// NewStoreNotifier creates a notifier backed by the repository.
func NewStoreNotifier(repo *storage.Repository, logger *zap.Logger) *StoreNotifier {
	return &StoreNotifier{repo: repo, logger: logger}
}

func (n *StoreNotifier) Notify(ctx context.Context, userID, kind, message string) {
	record := &models.Notification{
		ID:      uuid.NewString(),
		UserID:  userID,
		Kind:    kind,
		Message: message,
		SentAt:  time.Now().UTC(),
	}

	if err := n.repo.CreateNotification(record); err != nil {
		n.logger.Error("Failed to persist notification",
			zap.String("user_id", userID),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return
	}

	n.logger.Info("Notification recorded",
		zap.String("user_id", userID),
		zap.String("kind", kind),
		zap.String("message", message),
	)
}

// TelegramNotifier pushes notifications to a Telegram chat. Disabled builds
// drop messages silently.
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	enabled bool
	logger  *zap.Logger
}

// NewTelegramNotifier creates a Telegram notifier. A missing or invalid bot
// token degrades to a disabled notifier rather than failing startup.
func NewTelegramNotifier(cfg config.Telegram, logger *zap.Logger) *TelegramNotifier {
	if !cfg.Enabled {
		return &TelegramNotifier{enabled: false, logger: logger}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Error("Failed to create telegram bot, notifications disabled", zap.Error(err))
		return &TelegramNotifier{enabled: false, logger: logger}
	}

	logger.Info("Telegram bot connected", zap.String("username", bot.Self.UserName))
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID, enabled: true, logger: logger}
}

func (n *TelegramNotifier) Notify(ctx context.Context, userID, kind, message string) {
	if !n.enabled {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, fmt.Sprintf("[%s] %s: %s", kind, userID, message))
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("Failed to send telegram notification", zap.Error(err))
	}
}

// Fanout delivers each notification to every underlying notifier.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, userID, kind, message string) {
	for _, n := range f {
		n.Notify(ctx, userID, kind, message)
	}
}
