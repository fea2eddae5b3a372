package models

import "time"

// Portfolio is the per-user margin ledger record. It is mutated only through
// the ledger's reserve and release operations.
type Portfolio struct {
	UserID          string `gorm:"primaryKey"`
	AvailableMargin float64
	UtilizedMargin  float64
	TotalPnL        float64 `gorm:"column:total_pnl"`
	LastUpdated     time.Time
}
