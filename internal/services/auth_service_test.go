package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"referral-platform/internal/auth"
	"referral-platform/internal/models"
)

// memoryOTPStore is an in-memory OTPStore for tests
type memoryOTPStore struct {
	mu    sync.Mutex
	codes map[string]string
}

func newMemoryOTPStore() *memoryOTPStore {
	return &memoryOTPStore{codes: make(map[string]string)}
}

func (s *memoryOTPStore) Set(ctx context.Context, key, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[key] = code
	return nil
}

func (s *memoryOTPStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[key], nil
}

func (s *memoryOTPStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, key)
	return nil
}

// recordingMailer captures sent codes instead of emailing them
type recordingMailer struct {
	mu   sync.Mutex
	sent map[string]string
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{sent: make(map[string]string)}
}

func (m *recordingMailer) SendOTP(to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[to] = code
	return nil
}

func (m *recordingMailer) lastCode(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[to]
}

func newAuthTestService(t *testing.T) (*AuthService, *memoryOTPStore, *recordingMailer) {
	db := setupTestDB(t)
	store := newMemoryOTPStore()
	mail := newRecordingMailer()
	service := NewAuthService(db, store, mail, NewReferralService(db))
	return service, store, mail
}

func TestSignupAndVerify(t *testing.T) {
	auth.InitJWT("test-secret")
	service, _, mail := newAuthTestService(t)
	ctx := context.Background()

	user, err := service.Signup(ctx, "alice@example.com", "correct-horse", "alice", "")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if user.EmailVerified {
		t.Error("new user should not be verified")
	}
	if user.ReferralCode == "" {
		t.Error("new user should have a referral code")
	}

	code := mail.lastCode("alice@example.com")
	if code == "" {
		t.Fatal("no OTP was sent")
	}

	// Login before verification is rejected.
	if _, _, err := service.Login(ctx, "alice@example.com", "correct-horse"); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}

	if err := service.VerifyEmail(ctx, "alice@example.com", "000000"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP for wrong code, got %v", err)
	}
	if err := service.VerifyEmail(ctx, "alice@example.com", code+"9"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP for wrong-length code, got %v", err)
	}
	if err := service.VerifyEmail(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	token, logged, err := service.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token == "" {
		t.Error("expected a session token")
	}
	if logged.ID != user.ID {
		t.Errorf("logged in as user %d, expected %d", logged.ID, user.ID)
	}

	// A consumed code cannot be replayed.
	if err := service.VerifyEmail(ctx, "alice@example.com", code); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP for consumed code, got %v", err)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	service, _, _ := newAuthTestService(t)
	ctx := context.Background()

	if _, err := service.Signup(ctx, "bob@example.com", "password-one", "bob", ""); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if _, err := service.Signup(ctx, "bob@example.com", "password-two", "bob2", ""); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignupWithReferralCode(t *testing.T) {
	service, _, _ := newAuthTestService(t)
	ctx := context.Background()

	referrer, err := service.Signup(ctx, "carol@example.com", "password-one", "carol", "")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	referred, err := service.Signup(ctx, "dave@example.com", "password-two", "dave", referrer.ReferralCode)
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	var edge models.Referral
	if err := service.db.Where("referred_user_id = ?", referred.ID).First(&edge).Error; err != nil {
		t.Fatalf("referral edge not created: %v", err)
	}
	if edge.ReferrerID != referrer.ID {
		t.Errorf("expected referrer %d, got %d", referrer.ID, edge.ReferrerID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	service, store, _ := newAuthTestService(t)
	ctx := context.Background()

	user, err := service.Signup(ctx, "erin@example.com", "right-password", "erin", "")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	code, _ := store.Get(ctx, "verify:"+user.Email)
	if err := service.VerifyEmail(ctx, user.Email, code); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	if _, _, err := service.Login(ctx, "erin@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := service.Login(ctx, "nobody@example.com", "whatever-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	auth.InitJWT("test-secret")
	service, store, _ := newAuthTestService(t)
	ctx := context.Background()

	user, err := service.Signup(ctx, "frank@example.com", "old-password", "frank", "")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	code, _ := store.Get(ctx, "verify:"+user.Email)
	if err := service.VerifyEmail(ctx, user.Email, code); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	if err := service.ChangePassword(ctx, user.ID, "bad-guess", "new-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := service.ChangePassword(ctx, user.ID, "old-password", "new-password"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, _, err := service.Login(ctx, "frank@example.com", "old-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("old password still accepted")
	}
	if _, _, err := service.Login(ctx, "frank@example.com", "new-password"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestPasswordReset(t *testing.T) {
	auth.InitJWT("test-secret")
	service, store, mail := newAuthTestService(t)
	ctx := context.Background()

	user, err := service.Signup(ctx, "grace@example.com", "old-password", "grace", "")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	code, _ := store.Get(ctx, "verify:"+user.Email)
	if err := service.VerifyEmail(ctx, user.Email, code); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	if err := service.RequestPasswordReset(ctx, "grace@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	resetCode := mail.lastCode("grace@example.com")
	if resetCode == "" {
		t.Fatal("no reset code was sent")
	}

	if err := service.ResetPassword(ctx, "grace@example.com", resetCode, "new-password"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if _, _, err := service.Login(ctx, "grace@example.com", "new-password"); err != nil {
		t.Fatalf("login after reset failed: %v", err)
	}
}
