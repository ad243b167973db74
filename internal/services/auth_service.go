package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"referral-platform/internal/auth"
	"referral-platform/internal/mailer"
	"referral-platform/internal/models"
	"referral-platform/internal/utils"
)

const otpValidityDuration = 10 * time.Minute

// Errors surfaced by authentication flows
var (
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email address is not verified")
	ErrInvalidOTP         = errors.New("invalid or expired verification code")
)

// OTPStore keeps one-time codes with an expiry
type OTPStore interface {
	Set(ctx context.Context, key, code string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// AuthService handles signup, email verification and credential management
type AuthService struct {
	db        *gorm.DB
	otps      OTPStore
	mail      mailer.Mailer
	referrals *ReferralService
	otpLength int
}

// NewAuthService creates a new AuthService
func NewAuthService(db *gorm.DB, otps OTPStore, mail mailer.Mailer, referrals *ReferralService) *AuthService {
	return &AuthService{
		db:        db,
		otps:      otps,
		mail:      mail,
		referrals: referrals,
		otpLength: 6,
	}
}

// Signup registers a new unverified user, links the referral edge when a
// code is supplied, and emails a verification OTP
func (s *AuthService) Signup(ctx context.Context, email, password, nickname, referralCode string) (*models.User, error) {
	var existing models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if nickname == "" {
		nickname, err = utils.GenerateNickname()
		if err != nil {
			return nil, fmt.Errorf("failed to generate nickname: %w", err)
		}
	}

	code, err := s.referrals.GenerateReferralCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate referral code: %w", err)
	}

	user := models.User{
		Email:        email,
		PasswordHash: string(hash),
		Nickname:     nickname,
		ReferralCode: code,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if referralCode != "" {
		if err := s.referrals.ApplyReferralCode(ctx, user.ID, referralCode); err != nil {
			log.Printf("Warning: failed to apply referral code for user %d: %v", user.ID, err)
		}
	}

	if err := s.issueOTP(ctx, "verify:"+user.Email, user.Email); err != nil {
		log.Printf("Warning: failed to send verification code to %s: %v", user.Email, err)
	}

	log.Printf("User %d signed up (%s)", user.ID, user.Email)
	return &user, nil
}

// VerifyEmail checks the signup OTP and marks the account verified
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) error {
	if err := s.consumeOTP(ctx, "verify:"+email, code); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).
		Update("email_verified", true).Error
}

// ResendOTP issues a fresh verification code for an unverified account
func (s *AuthService) ResendOTP(ctx context.Context, email string) error {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			// Do not reveal whether the address exists.
			return nil
		}
		return err
	}
	if user.EmailVerified {
		return nil
	}
	return s.issueOTP(ctx, "verify:"+email, email)
}

// Login checks credentials and issues a session token
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	if !user.EmailVerified {
		return "", nil, ErrEmailNotVerified
	}

	token, err := auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		return "", nil, err
	}

	return token, &user, nil
}

// ChangePassword replaces the password for an authenticated user
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.db.WithContext(ctx).Model(&user).Update("password_hash", string(hash)).Error
}

// RequestPasswordReset emails a reset OTP for an existing account
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}
	return s.issueOTP(ctx, "reset:"+email, email)
}

// ResetPassword sets a new password after checking the reset OTP
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := s.consumeOTP(ctx, "reset:"+email, code); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).
		Update("password_hash", string(hash)).Error
}

// issueOTP generates a numeric code, stores it under key and mails it
func (s *AuthService) issueOTP(ctx context.Context, key, email string) error {
	code, err := s.generateOTP()
	if err != nil {
		return err
	}

	if err := s.otps.Set(ctx, key, code, otpValidityDuration); err != nil {
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	if err := s.mail.SendOTP(email, code); err != nil {
		return err
	}

	return nil
}

// consumeOTP validates and invalidates a stored code
func (s *AuthService) consumeOTP(ctx context.Context, key, code string) error {
	stored, err := s.otps.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read OTP: %w", err)
	}
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrInvalidOTP
	}
	if err := s.otps.Delete(ctx, key); err != nil {
		log.Printf("Warning: failed to delete consumed OTP %s: %v", key, err)
	}
	return nil
}

// generateOTP generates a random numeric code
func (s *AuthService) generateOTP() (string, error) {
	const digits = "0123456789"
	otp := make([]byte, s.otpLength)
	for i := range otp {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		otp[i] = digits[n.Int64()]
	}
	return string(otp), nil
}
