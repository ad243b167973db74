package models

import (
	"time"
)

// Document statuses
const (
	DocumentStatusSubmitted = "SUBMITTED"
	DocumentStatusApproved  = "APPROVED"
	DocumentStatusRejected  = "REJECTED"
)

// Document records an uploaded file for a user. Only the bookkeeping lives
// here; the file itself is stored externally and referenced by URL.
type Document struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	FileName  string    `gorm:"size:255;not null" json:"file_name"`
	FileURL   string    `gorm:"size:512;not null" json:"file_url"`
	DocType   string    `gorm:"size:50" json:"doc_type"`
	Status    string    `gorm:"size:20;default:SUBMITTED" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}
