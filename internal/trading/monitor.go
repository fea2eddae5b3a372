package trading

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"paper-trading-go/internal/config"
	"paper-trading-go/internal/storage"

	"go.uber.org/zap"
)

// Monitor is the singleton background process that polls every open trade,
// refreshes its market price and drives automatic exits. The loop is
// single-threaded cooperative polling: a slow cycle runs late, never
// concurrently with the next one.
type Monitor struct {
	cfg      config.Trading
	logger   *zap.Logger
	repo     *storage.Repository
	resolver PriceResolver
	svc      *Service

	interval time.Duration
	backoff  time.Duration

	mu      sync.Mutex
	working map[string]struct{}

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// ensure Monitor satisfies the tracker contract used by the service
var _ Tracker = (*Monitor)(nil)

// NewMonitor creates the trade monitor. Wire it back into the service with
// Service.AttachTracker so opens and closes keep the working set current.
func NewMonitor(cfg config.Trading, logger *zap.Logger, repo *storage.Repository, resolver PriceResolver, svc *Service) *Monitor {
	return &Monitor{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		resolver: resolver,
		svc:      svc,
		interval: time.Duration(cfg.MonitorInterval) * time.Second,
		backoff:  time.Duration(cfg.MonitorErrorBackoff) * time.Second,
		working:  make(map[string]struct{}),
	}
}

// Track adds a trade to the working set.
func (m *Monitor) Track(tradeID string) {
	m.mu.Lock()
	m.working[tradeID] = struct{}{}
	mtxActiveTrades.Set(float64(len(m.working)))
	m.mu.Unlock()
}

// Untrack removes a trade from the working set.
func (m *Monitor) Untrack(tradeID string) {
	m.mu.Lock()
	delete(m.working, tradeID)
	mtxActiveTrades.Set(float64(len(m.working)))
	m.mu.Unlock()
}

func (m *Monitor) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.working))
	for id := range m.working {
		ids = append(ids, id)
	}
	return ids
}

// Start launches the monitor loop. Idempotent: a second call while running is
// a no-op. The working set is rehydrated from persisted ACTIVE trades, so a
// restart resumes evaluating every open position.
func (m *Monitor) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		m.logger.Debug("Trade monitor already running")
		return nil
	}

	trades, err := m.repo.ListAllActiveTrades()
	if err != nil {
		m.running.Store(false)
		return fmt.Errorf("failed to rehydrate working set: %w", err)
	}
	for _, t := range trades {
		m.Track(t.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	m.logger.Info("Trade monitor started",
		zap.Int("tracked_trades", len(trades)),
		zap.Int("interval_seconds", m.cfg.MonitorInterval),
	)
	go m.loop(ctx)
	return nil
}

// Stop signals the loop to finish and waits for the in-flight cycle.
func (m *Monitor) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.cancel()
	<-m.done
	m.logger.Info("Trade monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	for {
		delay := m.interval
		if err := m.runCycle(ctx); err != nil {
			m.logger.Error("Monitor cycle failed, backing off", zap.Error(err))
			mtxMonitorCycles.WithLabelValues("error").Inc()
			delay = m.backoff
		} else {
			mtxMonitorCycles.WithLabelValues("ok").Inc()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// runCycle reconciles the working set against persisted ACTIVE trades, then
// evaluates each tracked trade. Per-trade failures are isolated; only a
// systemic failure enumerating trades surfaces as a cycle error.
func (m *Monitor) runCycle(ctx context.Context) error {
	active, err := m.repo.ListAllActiveTrades()
	if err != nil {
		return fmt.Errorf("failed to enumerate active trades: %w", err)
	}
	for _, t := range active {
		m.mu.Lock()
		_, tracked := m.working[t.ID]
		m.mu.Unlock()
		if !tracked {
			m.logger.Warn("Found untracked active trade, picking it up",
				zap.String("trade_id", t.ID))
			m.Track(t.ID)
		}
	}

	for _, id := range m.snapshot() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		m.evaluateTrade(ctx, id)
	}
	return nil
}

// evaluateTrade processes one tracked trade for this cycle. A panic here is
// contained so the rest of the working set still gets evaluated.
func (m *Monitor) evaluateTrade(ctx context.Context, tradeID string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Panic while evaluating trade",
				zap.String("trade_id", tradeID),
				zap.Any("panic", r),
			)
		}
	}()

	trade, err := m.repo.GetTrade(tradeID)
	if err != nil || trade.IsTerminal() {
		// Closed by a concurrent manual exit, or gone entirely.
		m.Untrack(tradeID)
		return
	}

	quote, err := m.resolver.Resolve(ctx, trade.Symbol)
	if err != nil {
		// No state change; the trade stays tracked for the next cycle.
		m.logger.Warn("Price resolution failed, skipping trade this cycle",
			zap.String("trade_id", tradeID),
			zap.String("symbol", trade.Symbol),
			zap.Error(err),
		)
		return
	}

	if err := m.repo.UpdateTradePrice(tradeID, quote.Price); err != nil {
		m.logger.Error("Failed to persist refreshed price",
			zap.String("trade_id", tradeID), zap.Error(err))
	}

	status, triggered := evaluateExit(trade, quote.Price)
	if !triggered {
		return
	}

	if _, err := m.svc.settle(ctx, trade, quote.Price, status); err != nil {
		// ErrTradeNotActive means a manual close won the race; settle has
		// not touched the ledger and the trade just needs untracking.
		m.Untrack(tradeID)
		m.logger.Warn("Automatic close did not complete",
			zap.String("trade_id", tradeID),
			zap.String("status", status),
			zap.Error(err),
		)
		return
	}

	m.logger.Info("Trade auto-closed",
		zap.String("trade_id", tradeID),
		zap.String("status", status),
		zap.Float64("exit_price", quote.Price),
	)
}
