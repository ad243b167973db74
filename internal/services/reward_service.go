package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"referral-platform/internal/models"
	"referral-platform/internal/repository"
)

// Errors surfaced by reward distribution
var (
	ErrNoReferrer      = errors.New("user has no referrer")
	ErrMissingWallet   = errors.New("recipient has no wallet address on file")
	ErrDuplicateReward = errors.New("reward already distributed for this event")
	ErrInvalidAmount   = errors.New("amount must be a non-negative integer")
)

// TokenGateway sends tokens to a wallet address and returns the transfer
// hash. Amounts are integers in the token's smallest unit.
type TokenGateway interface {
	Transfer(ctx context.Context, walletAddress string, amount decimal.Decimal) (string, error)
}

// Tier outcome statuses
const (
	TierCompleted = "completed"
	TierFailed    = "failed"
	TierUnknown   = "unknown"
	TierSkipped   = "skipped"
)

// TierOutcome reports the result of one reward tier
type TierOutcome struct {
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	TxHash        string          `json:"tx_hash,omitempty"`
	TransactionID uint            `json:"transaction_id,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// DistributionResult reports both tiers of one reward distribution. The
// tiers are independent: a root-tier failure never invalidates a completed
// direct transfer.
type DistributionResult struct {
	Direct TierOutcome `json:"direct"`
	Root   TierOutcome `json:"root"`
}

var (
	ten     = decimal.NewFromInt(10)
	rootNum = decimal.NewFromInt(25)
	rootDen = decimal.NewFromInt(1000)
)

// DirectReward is 10% of the gross value, floored to the token's smallest
// unit. All monetary math stays in integer fixed-point.
func DirectReward(gross decimal.Decimal) decimal.Decimal {
	return gross.Div(ten).Floor()
}

// RootReward is 2.5% of the gross value, floored the same way
func RootReward(gross decimal.Decimal) decimal.Decimal {
	return gross.Mul(rootNum).Div(rootDen).Floor()
}

// RewardService orchestrates the two-tier referral payout
type RewardService struct {
	repo      *repository.Repository
	gateway   TokenGateway
	referrals *ReferralService

	mu        sync.Mutex
	userLocks map[uint]*sync.Mutex
}

func NewRewardService(repo *repository.Repository, gateway TokenGateway, referrals *ReferralService) *RewardService {
	return &RewardService{
		repo:      repo,
		gateway:   gateway,
		referrals: referrals,
		userLocks: make(map[uint]*sync.Mutex),
	}
}

// lockFor serializes payouts per referred user so concurrent retries cannot
// double-issue a reward
func (s *RewardService) lockFor(userID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

func rewardReference(referredUserID uint, sourceEventID, tier string) string {
	return fmt.Sprintf("reward:%d:%s:%s", referredUserID, sourceEventID, tier)
}

// DistributeReward pays the direct referrer 10% of gross and, when the chain
// is deep enough and its root is a core-team member, pays the root 2.5%.
//
// Each tier is a two-phase sub-transaction: a pending intent row is written
// before the gateway call, then settled to completed/failed/unknown. The
// direct tier runs strictly first; the root tier is attempted regardless of
// the direct tier's gateway outcome.
func (s *RewardService) DistributeReward(ctx context.Context, referredUserID uint, gross decimal.Decimal, sourceEventID string) (*DistributionResult, error) {
	if gross.IsNegative() || !gross.Equal(gross.Truncate(0)) {
		return nil, ErrInvalidAmount
	}
	if sourceEventID == "" {
		// Caller opted out of cross-request dedup; still need a unique
		// reference per tier row.
		sourceEventID = uuid.New().String()
	}

	lock := s.lockFor(referredUserID)
	lock.Lock()
	defer lock.Unlock()

	edge, err := s.repo.FindReferralByReferred(ctx, referredUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up referral edge: %w", err)
	}
	if edge == nil {
		return nil, ErrNoReferrer
	}

	referrer, err := s.repo.GetUserByID(ctx, edge.ReferrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load referrer %d: %w", edge.ReferrerID, err)
	}
	if referrer.WalletAddress == nil || *referrer.WalletAddress == "" {
		return nil, ErrMissingWallet
	}

	// Replay guard before any gateway call.
	directRef := rewardReference(referredUserID, sourceEventID, models.RewardTierDirect)
	existing, err := s.repo.FindTransactionByReference(ctx, directRef)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing payout: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateReward
	}

	result := &DistributionResult{}
	result.Direct = s.payTier(ctx, referrer, DirectReward(gross), directRef, models.RewardTierDirect)

	result.Root = s.payRootTier(ctx, referredUserID, edge.ReferrerID, gross, sourceEventID)

	log.Printf("Reward distribution for user %d (event %s): direct=%s root=%s",
		referredUserID, sourceEventID, result.Direct.Status, result.Root.Status)
	return result, nil
}

// payRootTier resolves the chain's root ancestor and pays the root tier when
// the eligibility policy allows it
func (s *RewardService) payRootTier(ctx context.Context, referredUserID, directReferrerID uint, gross decimal.Decimal, sourceEventID string) TierOutcome {
	root, depth, err := s.referrals.FindRootReferrer(ctx, directReferrerID)
	if err != nil {
		return TierOutcome{Status: TierFailed, Reason: fmt.Sprintf("root resolution failed: %v", err)}
	}

	// depth counts edges above the direct referrer; the edge to the
	// referred user adds one more.
	chainDepth := depth + 1
	if root == nil || chainDepth < RootRewardMinDepth {
		return TierOutcome{Status: TierSkipped, Reason: "no root ancestor"}
	}

	member, err := s.repo.FindCoreTeamMember(ctx, root.ID)
	if err != nil {
		return TierOutcome{Status: TierFailed, Reason: fmt.Sprintf("core team lookup failed: %v", err)}
	}
	if member == nil {
		return TierOutcome{Status: TierSkipped, Reason: "root is not a core team member"}
	}

	rootRef := rewardReference(referredUserID, sourceEventID, models.RewardTierRoot)
	return s.payTier(ctx, root, RootReward(gross), rootRef, models.RewardTierRoot)
}

// payTier runs one tier end to end: intent row, gateway transfer, settle
func (s *RewardService) payTier(ctx context.Context, recipient *models.User, amount decimal.Decimal, referenceKey, tier string) TierOutcome {
	outcome := TierOutcome{Amount: amount}

	if amount.IsZero() {
		// floor of a small gross value; nothing to transfer
		outcome.Status = TierSkipped
		outcome.Reason = "computed reward is zero"
		return outcome
	}

	intent := &models.Transaction{
		UserID:       recipient.ID,
		Type:         models.TransactionTypeReward,
		Tier:         tier,
		Amount:       amount,
		Status:       models.TransactionStatusPending,
		ReferenceKey: referenceKey,
	}
	if err := s.repo.CreateTransaction(ctx, intent); err != nil {
		if isDuplicateKey(err) {
			outcome.Status = TierFailed
			outcome.Reason = ErrDuplicateReward.Error()
			return outcome
		}
		outcome.Status = TierFailed
		outcome.Reason = fmt.Sprintf("failed to record payout intent: %v", err)
		return outcome
	}
	outcome.TransactionID = intent.ID

	if recipient.WalletAddress == nil || *recipient.WalletAddress == "" {
		s.settle(intent.ID, models.TransactionStatusFailed, nil)
		outcome.Status = TierFailed
		outcome.Reason = ErrMissingWallet.Error()
		return outcome
	}

	hash, err := s.gateway.Transfer(ctx, *recipient.WalletAddress, amount)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// The transfer may still have landed on-chain after we gave up.
			// Mark it unknown; the reconcile job settles it out-of-band, and
			// it must not be retried before that happens.
			s.settle(intent.ID, models.TransactionStatusUnknown, nil)
			outcome.Status = TierUnknown
			outcome.Reason = "gateway call timed out"
			return outcome
		}
		s.settle(intent.ID, models.TransactionStatusFailed, nil)
		outcome.Status = TierFailed
		outcome.Reason = err.Error()
		return outcome
	}

	s.settle(intent.ID, models.TransactionStatusCompleted, &hash)
	outcome.Status = TierCompleted
	outcome.TxHash = hash
	return outcome
}

// settle updates the intent row after the gateway outcome is known. It runs
// on a fresh context: a cancelled request must not lose bookkeeping for a
// transfer that already happened.
func (s *RewardService) settle(txID uint, status string, txHash *string) {
	if err := s.repo.UpdateTransactionStatus(context.Background(), txID, status, txHash); err != nil {
		log.Printf("Warning: failed to settle transaction %d to %s: %v", txID, status, err)
	}
}

// isDuplicateKey reports whether err is a unique-constraint violation.
// Connections opened with TranslateError report gorm.ErrDuplicatedKey; the
// raw pgx error is matched as well since the postgres driver is pgx-based.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}
