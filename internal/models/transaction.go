package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types
const (
	TransactionTypeReward     = "reward"
	TransactionTypeDeposit    = "deposit"
	TransactionTypeWithdrawal = "withdrawal"
)

// Transaction statuses. A pending row is the recorded intent written before
// the on-chain transfer is attempted; it is settled to completed/failed once
// the outcome is known, or to unknown when the caller gave up waiting.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusUnknown   = "unknown"
)

// Reward tiers
const (
	RewardTierDirect = "direct"
	RewardTierRoot   = "root"
)

// Transaction is an append-only record of a token movement for a user.
// Amounts are integers in the token's smallest unit.
type Transaction struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       uint            `gorm:"not null;index" json:"user_id"`
	User         *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Type         string          `gorm:"size:50;not null;index" json:"type"`
	Tier         string          `gorm:"size:20" json:"tier,omitempty"`
	Amount       decimal.Decimal `gorm:"type:decimal(30,0);not null" json:"amount"`
	Status       string          `gorm:"size:20;not null;index" json:"status"`
	TxHash       *string         `gorm:"uniqueIndex" json:"tx_hash,omitempty"`
	ReferenceKey string          `gorm:"uniqueIndex;size:120;not null" json:"reference_key"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Transaction model
func (Transaction) TableName() string {
	return "transactions"
}
