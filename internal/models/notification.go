package models

import "time"

// Notification is a persisted record of a message delivered (or attempted)
// to a user. Delivery is best-effort; the record is the source of truth.
type Notification struct {
	ID      string `gorm:"primaryKey"`
	UserID  string `gorm:"index;not null"`
	Kind    string `gorm:"not null"`
	Message string
	IsRead  bool `gorm:"default:false"`
	SentAt  time.Time
}
