package trading

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"paper-trading-go/internal/models"
	"paper-trading-go/internal/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Ledger mediates every mutation of a user's margin record. Reserve and
// release are the only legal mutators; each holds a per-user lock for the
// whole read-modify-write so a manual close racing the monitor's automatic
// close cannot lose an update.
type Ledger struct {
	repo   *storage.Repository
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLedger creates a margin ledger over the repository.
func NewLedger(repo *storage.Repository, logger *zap.Logger) *Ledger {
	return &Ledger{
		repo:   repo,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) lockFor(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}
	return lock
}

// CreatePortfolio sets up a fresh ledger record for a user.
func (l *Ledger) CreatePortfolio(userID string, initialMargin float64) (*models.Portfolio, error) {
	lock := l.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := l.repo.GetPortfolio(userID); err == nil {
		return nil, fmt.Errorf("%w: user %s", ErrPortfolioExists, userID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing portfolio: %w", err)
	}

	p := &models.Portfolio{
		UserID:          userID,
		AvailableMargin: initialMargin,
		LastUpdated:     time.Now().UTC(),
	}
	if err := l.repo.CreatePortfolio(p); err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	l.logger.Info("Portfolio created",
		zap.String("user_id", userID),
		zap.Float64("initial_margin", initialMargin),
	)
	return p, nil
}

// GetPortfolio returns a user's ledger record.
func (l *Ledger) GetPortfolio(userID string) (*models.Portfolio, error) {
	p, err := l.repo.GetPortfolio(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: portfolio for user %s", ErrNotFound, userID)
	}
	return p, err
}

// Reserve moves amount from available to utilized margin. Fails with
// ErrInsufficientMargin leaving the record untouched.
func (l *Ledger) Reserve(userID string, amount float64) error {
	lock := l.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	p, err := l.repo.GetPortfolio(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: portfolio for user %s", ErrNotFound, userID)
	} else if err != nil {
		return fmt.Errorf("failed to load portfolio: %w", err)
	}

	if p.AvailableMargin < amount {
		return fmt.Errorf("%w: available %.2f, required %.2f",
			ErrInsufficientMargin, p.AvailableMargin, amount)
	}

	p.AvailableMargin -= amount
	p.UtilizedMargin += amount
	p.LastUpdated = time.Now().UTC()

	if err := l.repo.SavePortfolio(p); err != nil {
		return fmt.Errorf("failed to save portfolio: %w", err)
	}

	l.logger.Info("Margin reserved",
		zap.String("user_id", userID),
		zap.Float64("amount", amount),
		zap.Float64("available", p.AvailableMargin),
		zap.Float64("utilized", p.UtilizedMargin),
	)
	return nil
}

// Release returns amount from utilized to available margin and applies the
// realized pnl delta. Both margin fields are clamped at zero to absorb
// rounding drift.
func (l *Ledger) Release(userID string, amount, pnlDelta float64) error {
	lock := l.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	p, err := l.repo.GetPortfolio(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: portfolio for user %s", ErrNotFound, userID)
	} else if err != nil {
		return fmt.Errorf("failed to load portfolio: %w", err)
	}

	p.AvailableMargin += amount
	p.UtilizedMargin -= amount
	p.TotalPnL += pnlDelta
	if p.AvailableMargin < 0 {
		p.AvailableMargin = 0
	}
	if p.UtilizedMargin < 0 {
		p.UtilizedMargin = 0
	}
	p.LastUpdated = time.Now().UTC()

	if err := l.repo.SavePortfolio(p); err != nil {
		return fmt.Errorf("failed to save portfolio: %w", err)
	}

	l.logger.Info("Margin released",
		zap.String("user_id", userID),
		zap.Float64("amount", amount),
		zap.Float64("pnl_delta", pnlDelta),
		zap.Float64("available", p.AvailableMargin),
		zap.Float64("utilized", p.UtilizedMargin),
	)
	return nil
}
