package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paper-trading-go/internal/config"
	"paper-trading-go/internal/market"
	"paper-trading-go/internal/models"
	"paper-trading-go/internal/notify"
	"paper-trading-go/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PriceResolver is the slice of the market resolver the trading core needs.
type PriceResolver interface {
	Resolve(ctx context.Context, symbol string) (market.Quote, error)
}

// Tracker is the monitor's working set, as seen by the lifecycle operations:
// opens insert, closes remove.
type Tracker interface {
	Track(tradeID string)
	Untrack(tradeID string)
}

// Service implements the trade lifecycle: open, close, close-all and
// performance aggregation. The monitor drives the same settle path for
// automatic exits.
type Service struct {
	cfg      config.Trading
	logger   *zap.Logger
	repo     *storage.Repository
	resolver PriceResolver
	ledger   *Ledger
	notifier notify.Notifier
	tracker  Tracker
}

// NewService creates the trade lifecycle service.
func NewService(
	cfg config.Trading,
	logger *zap.Logger,
	repo *storage.Repository,
	resolver PriceResolver,
	ledger *Ledger,
	notifier notify.Notifier,
) *Service {
	return &Service{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		resolver: resolver,
		ledger:   ledger,
		notifier: notifier,
	}
}

// AttachTracker wires the monitor's working set into the lifecycle
// operations. Called once during bootstrap.
func (s *Service) AttachTracker(t Tracker) {
	s.tracker = t
}

// OpenTrade validates the request, reserves margin and persists a new ACTIVE
// trade. Reserve-then-create is ordered so a failed create releases the
// margin again and leaves no orphaned trade.
func (s *Service) OpenTrade(ctx context.Context, userID, symbol, direction string, quantity int64, stopLoss, targetPrice *float64) (*models.Trade, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if direction != models.DirectionBuy && direction != models.DirectionSell {
		return nil, fmt.Errorf("%w: direction must be BUY or SELL", ErrValidation)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	exists, err := s.repo.UserExists(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	quote, err := s.resolver.Resolve(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve price for %s: %w", symbol, err)
	}
	if quote.Provenance == market.ProvenanceSynthetic {
		s.logger.Warn("Opening trade against a synthetic price",
			zap.String("symbol", symbol),
			zap.String("user_id", userID),
		)
	}

	marginRequired := quote.Price * float64(quantity) * s.cfg.MarginRate
	if err := s.ledger.Reserve(userID, marginRequired); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	trade := &models.Trade{
		ID:           uuid.NewString(),
		UserID:       userID,
		Symbol:       symbol,
		Direction:    direction,
		Quantity:     quantity,
		EntryPrice:   quote.Price,
		CurrentPrice: quote.Price,
		MarginUsed:   marginRequired,
		StopLoss:     stopLoss,
		TargetPrice:  targetPrice,
		Status:       models.StatusActive,
		CreatedAt:    now,
	}

	if err := s.repo.CreateTrade(trade); err != nil {
		// Compensate the reserve so the failed open leaves no trace.
		if relErr := s.ledger.Release(userID, marginRequired, 0); relErr != nil {
			s.logger.Error("Failed to release margin after create failure",
				zap.String("user_id", userID), zap.Error(relErr))
		}
		return nil, fmt.Errorf("failed to persist trade: %w", err)
	}

	if s.tracker != nil {
		s.tracker.Track(trade.ID)
	}
	mtxTradesOpened.Inc()

	s.notifier.Notify(ctx, userID, notify.KindTradeOpened,
		fmt.Sprintf("Trade created: %s %d %s at %.2f", direction, quantity, symbol, quote.Price))

	s.logger.Info("Trade opened",
		zap.String("trade_id", trade.ID),
		zap.String("user_id", userID),
		zap.String("symbol", symbol),
		zap.String("direction", direction),
		zap.Int64("quantity", quantity),
		zap.Float64("entry_price", quote.Price),
		zap.Float64("margin_used", marginRequired),
	)
	return trade, nil
}

// CloseTrade exits an ACTIVE trade at the current market price. Permitted
// only for the owning user. Returns the realized pnl.
func (s *Service) CloseTrade(ctx context.Context, userID, tradeID string) (float64, error) {
	trade, err := s.repo.GetTrade(tradeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: trade %s", ErrNotFound, tradeID)
	} else if err != nil {
		return 0, fmt.Errorf("failed to load trade: %w", err)
	}

	if trade.UserID != userID {
		return 0, fmt.Errorf("%w: trade %s", ErrUnauthorized, tradeID)
	}
	if trade.IsTerminal() {
		return 0, fmt.Errorf("%w: trade %s", ErrTradeNotActive, tradeID)
	}

	quote, err := s.resolver.Resolve(ctx, trade.Symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve exit price for %s: %w", trade.Symbol, err)
	}

	return s.settle(ctx, trade, quote.Price, models.StatusClosed)
}

// CloseResult is the outcome of one trade inside a close-all request.
type CloseResult struct {
	TradeID string
	Symbol  string
	PnL     float64
	Closed  bool
	Reason  string
}

// CloseAllSummary aggregates a close-all request.
type CloseAllSummary struct {
	Results   []CloseResult
	TotalPnL  float64
	Succeeded int
	Failed    int
}

// CloseAllTrades exits every ACTIVE trade of a user. A failure on one trade
// never aborts the rest; each gets its own result entry.
func (s *Service) CloseAllTrades(ctx context.Context, userID string) (*CloseAllSummary, error) {
	exists, err := s.repo.UserExists(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	trades, err := s.repo.ListActiveTradesByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active trades: %w", err)
	}

	summary := &CloseAllSummary{}
	for i := range trades {
		trade := trades[i]

		quote, err := s.resolver.Resolve(ctx, trade.Symbol)
		if err != nil {
			s.logger.Error("Failed to resolve price during close-all",
				zap.String("trade_id", trade.ID),
				zap.String("symbol", trade.Symbol),
				zap.Error(err),
			)
			summary.Results = append(summary.Results, CloseResult{
				TradeID: trade.ID, Symbol: trade.Symbol, Reason: "failed to fetch market price",
			})
			summary.Failed++
			continue
		}

		pnl, err := s.settle(ctx, &trade, quote.Price, models.StatusClosed)
		if err != nil {
			summary.Results = append(summary.Results, CloseResult{
				TradeID: trade.ID, Symbol: trade.Symbol, Reason: err.Error(),
			})
			summary.Failed++
			continue
		}

		summary.Results = append(summary.Results, CloseResult{
			TradeID: trade.ID, Symbol: trade.Symbol, PnL: pnl, Closed: true,
		})
		summary.TotalPnL += pnl
		summary.Succeeded++
	}

	s.notifier.Notify(ctx, userID, notify.KindTradesExited,
		fmt.Sprintf("Exit all trades completed: %d successful, %d failed. Total PnL: %.2f",
			summary.Succeeded, summary.Failed, summary.TotalPnL))

	return summary, nil
}

// Performance aggregates a user's trading statistics.
type Performance struct {
	UserID               string
	TotalTrades          int
	ActiveTrades         int
	ClosedTrades         int
	TotalPnL             float64
	WinningTrades        int
	LosingTrades         int
	WinRate              float64
	AvailableMargin      float64
	UtilizedMargin       float64
	MarginUtilizationPct float64
}

// GetPerformance computes aggregate stats over a user's full trade history.
func (s *Service) GetPerformance(ctx context.Context, userID string) (*Performance, error) {
	exists, err := s.repo.UserExists(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	trades, err := s.repo.ListTradesByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}

	perf := &Performance{UserID: userID, TotalTrades: len(trades)}
	for _, t := range trades {
		if t.Status == models.StatusActive {
			perf.ActiveTrades++
			continue
		}
		perf.ClosedTrades++
		perf.TotalPnL += t.PnL
		if t.PnL > 0 {
			perf.WinningTrades++
		} else if t.PnL < 0 {
			perf.LosingTrades++
		}
	}
	if perf.ClosedTrades > 0 {
		perf.WinRate = float64(perf.WinningTrades) / float64(perf.ClosedTrades) * 100
	}

	portfolio, err := s.ledger.GetPortfolio(userID)
	if err == nil {
		perf.AvailableMargin = portfolio.AvailableMargin
		perf.UtilizedMargin = portfolio.UtilizedMargin
		total := portfolio.AvailableMargin + portfolio.UtilizedMargin
		if total > 0 {
			perf.MarginUtilizationPct = portfolio.UtilizedMargin / total * 100
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return perf, nil
}

// settle performs the terminal transition sequence shared by manual closes
// and the monitor's automatic exits: conditional status persist, margin
// release, notification, working-set removal. The conditional persist makes
// concurrent closers race safely; the loser gets ErrTradeNotActive and must
// not touch the ledger.
func (s *Service) settle(ctx context.Context, trade *models.Trade, exitPrice float64, status string) (float64, error) {
	pnl := trade.UnrealizedPnL(exitPrice)

	won, err := s.repo.CloseTradeIfActive(trade.ID, status, exitPrice, pnl, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if !won {
		return 0, fmt.Errorf("%w: trade %s was closed concurrently", ErrTradeNotActive, trade.ID)
	}

	if err := s.ledger.Release(trade.UserID, trade.MarginUsed, pnl); err != nil {
		// The trade is already terminal; the release must not roll it back.
		s.logger.Error("Failed to release margin on close",
			zap.String("trade_id", trade.ID),
			zap.String("user_id", trade.UserID),
			zap.Error(err),
		)
	}

	mtxTradesClosed.WithLabelValues(closeReason(status)).Inc()

	s.notifier.Notify(ctx, trade.UserID, notify.KindTradeClosed,
		fmt.Sprintf("Trade closed (%s): %s %d %s at %.2f, PnL: %.2f",
			closeReason(status), trade.Direction, trade.Quantity, trade.Symbol, exitPrice, pnl))

	if s.tracker != nil {
		s.tracker.Untrack(trade.ID)
	}

	s.logger.Info("Trade settled",
		zap.String("trade_id", trade.ID),
		zap.String("status", status),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("pnl", pnl),
	)
	return pnl, nil
}

func closeReason(status string) string {
	switch status {
	case models.StatusStopLossHit:
		return "stop_loss"
	case models.StatusTargetHit:
		return "target"
	default:
		return "manual"
	}
}

// evaluateExit applies the exit guard to a trade at the given price. The
// stop-loss is checked before the target, so a price crossing both in one
// tick closes as a stop-loss.
func evaluateExit(trade *models.Trade, price float64) (string, bool) {
	if trade.StopLoss != nil {
		if trade.Direction == models.DirectionBuy && price <= *trade.StopLoss {
			return models.StatusStopLossHit, true
		}
		if trade.Direction == models.DirectionSell && price >= *trade.StopLoss {
			return models.StatusStopLossHit, true
		}
	}
	if trade.TargetPrice != nil {
		if trade.Direction == models.DirectionBuy && price >= *trade.TargetPrice {
			return models.StatusTargetHit, true
		}
		if trade.Direction == models.DirectionSell && price <= *trade.TargetPrice {
			return models.StatusTargetHit, true
		}
	}
	return "", false
}
