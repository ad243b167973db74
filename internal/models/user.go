package models

import (
	"time"
)

// User represents a user account in the system
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Email         string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash  string    `gorm:"not null" json:"-"`
	Nickname      string    `gorm:"size:50" json:"nickname"`
	EmailVerified bool      `gorm:"default:false" json:"email_verified"`
	WalletAddress *string   `gorm:"uniqueIndex" json:"wallet_address,omitempty"`
	ReferralCode  string    `gorm:"uniqueIndex;size:20;not null" json:"referral_code"`
	ReferrerID    *uint     `gorm:"index" json:"referrer_id,omitempty"`
	Referrer      *User     `gorm:"foreignKey:ReferrerID" json:"referrer,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}
