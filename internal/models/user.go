package models

import "time"

// User identifies an account holder. Authentication and credential handling
// live outside this service; only the identity check is needed here.
type User struct {
	ClientID  string `gorm:"primaryKey"`
	Name      string
	Email     string `gorm:"uniqueIndex"`
	Phone     string
	IsActive  bool `gorm:"default:true"`
	CreatedAt time.Time
}
