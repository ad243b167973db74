package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"gorm.io/gorm"

	"referral-platform/internal/models"
)

var (
	ErrInvalidWalletAddress = errors.New("invalid wallet address")
	ErrWalletTaken          = errors.New("wallet is already linked to another account")
)

// UserService handles profile, wallet and document bookkeeping
type UserService struct {
	db *gorm.DB
}

// NewUserService creates a new UserService
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// Profile is the user record plus referral bookkeeping
type Profile struct {
	User          models.User `json:"user"`
	ReferralCount int64       `json:"referral_count"`
	CoreTeam      bool        `json:"core_team"`
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user not found")
		}
		return nil, err
	}
	return &user, nil
}

// GetProfile returns the user's profile with referral counts
func (s *UserService) GetProfile(ctx context.Context, userID uint) (*Profile, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var referralCount int64
	if err := s.db.WithContext(ctx).Model(&models.Referral{}).
		Where("referrer_id = ?", userID).Count(&referralCount).Error; err != nil {
		return nil, err
	}

	var coreCount int64
	if err := s.db.WithContext(ctx).Model(&models.CoreTeamMember{}).
		Where("user_id = ?", userID).Count(&coreCount).Error; err != nil {
		return nil, err
	}

	return &Profile{
		User:          *user,
		ReferralCount: referralCount,
		CoreTeam:      coreCount > 0,
	}, nil
}

// LinkWallet attaches a wallet address to the user's account. The address
// must be a base58-encoded 32-byte public key and not in use elsewhere.
func (s *UserService) LinkWallet(ctx context.Context, userID uint, walletAddress string) error {
	raw, err := base58.Decode(walletAddress)
	if err != nil || len(raw) != 32 {
		return ErrInvalidWalletAddress
	}

	var other models.User
	err = s.db.WithContext(ctx).
		Where("wallet_address = ? AND id != ?", walletAddress, userID).
		First(&other).Error
	if err == nil {
		return ErrWalletTaken
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("wallet_address", walletAddress).Error
}

// AddDocument records an uploaded document for a user
func (s *UserService) AddDocument(ctx context.Context, userID uint, fileName, fileURL, docType string) (*models.Document, error) {
	doc := models.Document{
		UserID:   userID,
		FileName: fileName,
		FileURL:  fileURL,
		DocType:  docType,
		Status:   models.DocumentStatusSubmitted,
	}

	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return nil, fmt.Errorf("failed to record document: %w", err)
	}
	return &doc, nil
}

// GetDocuments lists a user's document records, newest first
func (s *UserService) GetDocuments(ctx context.Context, userID uint) ([]models.Document, error) {
	var docs []models.Document
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}
