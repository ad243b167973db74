package models

import (
	"time"
)

// Referral represents a referral relationship between users.
// Each user appears at most once as the referred party, so the edges form a
// forest with parent pointers from referred user to referrer.
type Referral struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ReferrerID     uint      `gorm:"not null;index" json:"referrer_id"`
	Referrer       *User     `gorm:"foreignKey:ReferrerID" json:"referrer,omitempty"`
	ReferredUserID uint      `gorm:"not null;uniqueIndex" json:"referred_user_id"`
	ReferredUser   *User     `gorm:"foreignKey:ReferredUserID" json:"referred_user,omitempty"`
	Status         string    `gorm:"size:20;default:ACTIVE" json:"status"` // ACTIVE, INACTIVE
	ReferredAt     time.Time `gorm:"autoCreateTime" json:"referred_at"`
}

func (Referral) TableName() string {
	return "referrals"
}

// CoreTeamMember marks a user as eligible for the root-tier referral reward
// when they sit at the top of a referral chain.
type CoreTeamMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role      string    `gorm:"size:50" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (CoreTeamMember) TableName() string {
	return "core_team_members"
}
