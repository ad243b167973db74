package repository

import (
	"context"
	"time"

	"referral-platform/internal/models"

	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetUserByID retrieves a user by ID
func (r *Repository) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindReferralByReferred retrieves the inbound referral edge for a user, or
// nil when no one referred them
func (r *Repository) FindReferralByReferred(ctx context.Context, userID uint) (*models.Referral, error) {
	var referral models.Referral
	err := r.db.WithContext(ctx).Where("referred_user_id = ?", userID).First(&referral).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &referral, nil
}

// FindCoreTeamMember retrieves the core-team record for a user, or nil
func (r *Repository) FindCoreTeamMember(ctx context.Context, userID uint) (*models.CoreTeamMember, error) {
	var member models.CoreTeamMember
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&member).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// CreateTransaction appends a transaction record
func (r *Repository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// UpdateTransactionStatus settles a transaction to its final status,
// attaching the transfer hash when one exists
func (r *Repository) UpdateTransactionStatus(ctx context.Context, txID uint, status string, txHash *string) error {
	updates := map[string]interface{}{"status": status}
	if txHash != nil {
		updates["tx_hash"] = txHash
	}
	return r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", txID).
		Updates(updates).Error
}

// FindTransactionByReference retrieves a transaction by its idempotency
// reference key, or nil when none exists
func (r *Repository) FindTransactionByReference(ctx context.Context, referenceKey string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("reference_key = ?", referenceKey).First(&tx).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindUnknownRewardTransactions lists reward transactions whose on-chain
// outcome is still unknown
func (r *Repository) FindUnknownRewardTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ?", models.TransactionTypeReward, models.TransactionStatusUnknown).
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// FindStalePendingRewardTransactions lists reward intents that never got
// settled, e.g. because the process died between the transfer and the
// bookkeeping write
func (r *Repository) FindStalePendingRewardTransactions(ctx context.Context, olderThan time.Time, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ? AND created_at < ?", models.TransactionTypeReward, models.TransactionStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// GetUserTransactions lists transactions for a user, newest first
func (r *Repository) GetUserTransactions(ctx context.Context, userID uint) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}
