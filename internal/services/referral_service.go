package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"sync"

	"gorm.io/gorm"

	"referral-platform/internal/models"
)

// RootRewardMinDepth is the minimum referral chain length, counted in edges
// from the referred user upward, for the root tier to apply. At 2, a chain
// whose direct referrer has no referrer of their own pays the direct tier
// only and the direct referrer is never treated as their own root.
const RootRewardMinDepth = 2

type ReferralService struct {
	db *gorm.DB
	mu sync.Mutex
}

func NewReferralService(db *gorm.DB) *ReferralService {
	return &ReferralService{
		db: db,
	}
}

// GenerateReferralCode generates a unique referral code string
func (s *ReferralService) GenerateReferralCode() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b)[:8], nil
}

// FindRootReferrer walks the referrer chain upward from userID and returns
// the root ancestor together with the number of edges walked. It returns a
// nil root when userID has no inbound referral edge at all.
//
// The walk is iterative so arbitrarily deep chains cannot blow the stack,
// and it keeps a visited set: the edge set is supposed to be acyclic (edge
// creation rejects cycles), but a corrupted table must surface as an error
// rather than a hung request.
func (s *ReferralService) FindRootReferrer(ctx context.Context, userID uint) (*models.User, int, error) {
	visited := map[uint]bool{userID: true}
	current := userID
	depth := 0

	for {
		var edge models.Referral
		err := s.db.WithContext(ctx).Where("referred_user_id = ?", current).First(&edge).Error
		if err == gorm.ErrRecordNotFound {
			if depth == 0 {
				// Nobody referred the starting user: no ancestor to reward.
				return nil, 0, nil
			}
			var root models.User
			if err := s.db.WithContext(ctx).First(&root, current).Error; err != nil {
				return nil, 0, fmt.Errorf("failed to load root user %d: %w", current, err)
			}
			return &root, depth, nil
		}
		if err != nil {
			return nil, 0, err
		}

		if visited[edge.ReferrerID] {
			return nil, 0, fmt.Errorf("referral cycle detected at user %d", edge.ReferrerID)
		}
		visited[edge.ReferrerID] = true
		current = edge.ReferrerID
		depth++
	}
}

// ApplyReferralCode links referredUserID to the owner of the given referral
// code by creating the referral edge. Rejects self-referral, users who
// already have a referrer, and edges that would close a cycle.
func (s *ReferralService) ApplyReferralCode(ctx context.Context, referredUserID uint, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var referrer models.User
	if err := s.db.WithContext(ctx).Where("referral_code = ?", code).First(&referrer).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("invalid referral code")
		}
		return err
	}

	if referrer.ID == referredUserID {
		return fmt.Errorf("cannot use your own referral code")
	}

	// Check if already referred
	var existing models.Referral
	if err := s.db.WithContext(ctx).Where("referred_user_id = ?", referredUserID).First(&existing).Error; err == nil {
		return fmt.Errorf("user already has a referrer")
	}

	// The resolver assumes termination, so cycles are rejected here, at
	// edge-creation time: the new referrer must not be a descendant of the
	// referred user.
	cyclic, err := s.wouldCreateCycle(ctx, referrer.ID, referredUserID)
	if err != nil {
		return err
	}
	if cyclic {
		return fmt.Errorf("referral would create a cycle")
	}

	referral := models.Referral{
		ReferrerID:     referrer.ID,
		ReferredUserID: referredUserID,
		Status:         "ACTIVE",
	}

	if err := s.db.WithContext(ctx).Create(&referral).Error; err != nil {
		return fmt.Errorf("failed to create referral: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", referredUserID).
		Update("referrer_id", referrer.ID).Error; err != nil {
		return err
	}

	log.Printf("Applied referral code %s: user %d referred by user %d", code, referredUserID, referrer.ID)
	return nil
}

// wouldCreateCycle reports whether referredUserID is an ancestor of
// referrerID in the existing edge set
func (s *ReferralService) wouldCreateCycle(ctx context.Context, referrerID, referredUserID uint) (bool, error) {
	visited := map[uint]bool{}
	current := referrerID

	for {
		if current == referredUserID {
			return true, nil
		}
		if visited[current] {
			return true, nil
		}
		visited[current] = true

		var edge models.Referral
		err := s.db.WithContext(ctx).Where("referred_user_id = ?", current).First(&edge).Error
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		current = edge.ReferrerID
	}
}

// GetUserReferrals returns all referrals made by a user
func (s *ReferralService) GetUserReferrals(ctx context.Context, userID uint) ([]models.Referral, error) {
	var referrals []models.Referral
	if err := s.db.WithContext(ctx).Where("referrer_id = ?", userID).Preload("ReferredUser").Find(&referrals).Error; err != nil {
		return nil, err
	}
	return referrals, nil
}
