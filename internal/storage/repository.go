package storage

import (
	"fmt"
	"time"

	"paper-trading-go/internal/models"

	"gorm.io/gorm"
)

// Repository wraps all database access for trades, portfolios, users and
// notifications. Conditional updates on the trade status are the storage-level
// guard against a manual close racing the monitor's automatic close.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a repository on top of an open gorm connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Trades

// CreateTrade persists a new trade record.
func (r *Repository) CreateTrade(trade *models.Trade) error {
	return r.db.Create(trade).Error
}

// GetTrade fetches a trade by id. Returns gorm.ErrRecordNotFound when absent.
func (r *Repository) GetTrade(id string) (*models.Trade, error) {
	var trade models.Trade
	if err := r.db.First(&trade, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &trade, nil
}

// UpdateTradePrice refreshes the tracked market price of a still-active trade.
func (r *Repository) UpdateTradePrice(id string, price float64) error {
	return r.db.Model(&models.Trade{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Update("current_price", price).Error
}

// CloseTradeIfActive moves a trade to a terminal status, but only if it is
// still ACTIVE. Returns true when this caller won the transition; false means
// a concurrent close got there first and the caller must not touch the ledger.
func (r *Repository) CloseTradeIfActive(id, status string, exitPrice, pnl float64, closedAt time.Time) (bool, error) {
	res := r.db.Model(&models.Trade{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Updates(map[string]interface{}{
			"status":        status,
			"current_price": exitPrice,
			"pnl":           pnl,
			"closed_at":     closedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to close trade %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListActiveTradesByUser returns a user's open positions.
func (r *Repository) ListActiveTradesByUser(userID string) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.Where("user_id = ? AND status = ?", userID, models.StatusActive).Find(&trades).Error
	return trades, err
}

// ListAllActiveTrades returns every open position across all users. The
// monitor rehydrates its working set from this after a restart.
func (r *Repository) ListAllActiveTrades() ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.Where("status = ?", models.StatusActive).Find(&trades).Error
	return trades, err
}

// ListTradesByUser returns a user's full trade history, newest first.
func (r *Repository) ListTradesByUser(userID string) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&trades).Error
	return trades, err
}

// Portfolios

// CreatePortfolio persists a fresh ledger record for a user.
func (r *Repository) CreatePortfolio(p *models.Portfolio) error {
	return r.db.Create(p).Error
}

// GetPortfolio fetches a user's ledger record.
func (r *Repository) GetPortfolio(userID string) (*models.Portfolio, error) {
	var p models.Portfolio
	if err := r.db.First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePortfolio writes back a mutated ledger record. Callers must hold the
// per-user ledger lock for the whole read-modify-write.
func (r *Repository) SavePortfolio(p *models.Portfolio) error {
	return r.db.Save(p).Error
}

// Users

// CreateUser persists a new user record.
func (r *Repository) CreateUser(u *models.User) error {
	return r.db.Create(u).Error
}

// UserExists reports whether an active user with the given client id exists.
func (r *Repository) UserExists(clientID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.User{}).
		Where("client_id = ? AND is_active = ?", clientID, true).
		Count(&count).Error
	return count > 0, err
}

// Notifications

// CreateNotification persists a notification record.
func (r *Repository) CreateNotification(n *models.Notification) error {
	return r.db.Create(n).Error
}

// ListNotifications returns a page of a user's notifications, newest first.
func (r *Repository) ListNotifications(userID string, limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.Where("user_id = ?", userID).
		Order("sent_at DESC").Limit(limit).Find(&notifications).Error
	return notifications, err
}

// MarkNotificationRead flags a notification as read. Returns false when the
// notification does not exist or belongs to a different user.
func (r *Repository) MarkNotificationRead(userID, id string) (bool, error) {
	res := r.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	return res.RowsAffected > 0, res.Error
}

// UnreadNotificationCount returns the number of unread notifications.
func (r *Repository) UnreadNotificationCount(userID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}
