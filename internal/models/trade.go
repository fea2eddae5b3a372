package models

import "time"

// Trade directions.
const (
	DirectionBuy  = "BUY"
	DirectionSell = "SELL"
)

// Trade statuses. ACTIVE is the only non-terminal state; a trade is never
// deleted, only transitioned to one of the terminal statuses.
const (
	StatusActive      = "ACTIVE"
	StatusClosed      = "CLOSED"
	StatusStopLossHit = "STOP_LOSS_HIT"
	StatusTargetHit   = "TARGET_HIT"
)

// Trade represents a speculative paper position owned by a single user.
type Trade struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"index;not null"`
	Symbol       string `gorm:"index;not null"`
	Direction    string `gorm:"not null"` // "BUY" or "SELL"
	Quantity     int64  `gorm:"not null"`
	EntryPrice   float64
	CurrentPrice float64
	MarginUsed   float64
	StopLoss     *float64
	TargetPrice  *float64
	Status       string  `gorm:"index;not null;default:'ACTIVE'"`
	PnL          float64 `gorm:"column:pnl"`
	CreatedAt    time.Time
	ClosedAt     *time.Time
}

// IsTerminal reports whether the trade has reached a final status.
func (t *Trade) IsTerminal() bool {
	return t.Status != StatusActive
}

// UnrealizedPnL computes the profit or loss of the position at the given price.
func (t *Trade) UnrealizedPnL(price float64) float64 {
	if t.Direction == DirectionBuy {
		return (price - t.EntryPrice) * float64(t.Quantity)
	}
	return (t.EntryPrice - price) * float64(t.Quantity)
}
