package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"referral-platform/internal/models"
	"referral-platform/internal/repository"
)

type transferCall struct {
	wallet string
	amount decimal.Decimal
}

// fakeGateway records transfers and can be told to fail
type fakeGateway struct {
	mu       sync.Mutex
	calls    []transferCall
	failWith error
	failOnce bool
	seq      int
}

func (g *fakeGateway) Transfer(ctx context.Context, wallet string, amount decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, transferCall{wallet: wallet, amount: amount})

	if g.failWith != nil {
		err := g.failWith
		if g.failOnce {
			g.failWith = nil
		}
		return "", err
	}

	g.seq++
	return fmt.Sprintf("sig-%d", g.seq), nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func newRewardTestService(db *gorm.DB, gateway *fakeGateway) *RewardService {
	return NewRewardService(repository.NewRepository(db), gateway, NewReferralService(db))
}

func TestRewardAmounts(t *testing.T) {
	cases := []struct {
		gross  int64
		direct int64
		root   int64
	}{
		{1000, 100, 25},
		{7, 0, 0},
		{79, 7, 1},
		{0, 0, 0},
		{1_000_000_000_000, 100_000_000_000, 25_000_000_000},
	}

	for _, tc := range cases {
		gross := decimal.NewFromInt(tc.gross)
		if got := DirectReward(gross); !got.Equal(decimal.NewFromInt(tc.direct)) {
			t.Errorf("DirectReward(%d) = %s, want %d", tc.gross, got, tc.direct)
		}
		if got := RootReward(gross); !got.Equal(decimal.NewFromInt(tc.root)) {
			t.Errorf("RootReward(%d) = %s, want %d", tc.gross, got, tc.root)
		}
	}
}

func TestDistributeRewardNoReferrer(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{}
	service := newRewardTestService(db, gateway)

	createTestUser(t, db, 1, "wallet-1")

	_, err := service.DistributeReward(context.Background(), 1, decimal.NewFromInt(1000), "evt-1")
	if !errors.Is(err, ErrNoReferrer) {
		t.Fatalf("expected ErrNoReferrer, got %v", err)
	}
	if gateway.callCount() != 0 {
		t.Errorf("expected zero gateway calls, got %d", gateway.callCount())
	}
}

func TestDistributeRewardMissingWallet(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{}
	service := newRewardTestService(db, gateway)

	createTestUser(t, db, 1, "")
	createTestUser(t, db, 2, "wallet-2")
	createEdge(t, db, 1, 2)

	_, err := service.DistributeReward(context.Background(), 2, decimal.NewFromInt(1000), "evt-1")
	if !errors.Is(err, ErrMissingWallet) {
		t.Fatalf("expected ErrMissingWallet, got %v", err)
	}
	if gateway.callCount() != 0 {
		t.Errorf("expected zero gateway calls, got %d", gateway.callCount())
	}

	var count int64
	db.Model(&models.Transaction{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no transaction rows, got %d", count)
	}
}

func TestDistributeRewardInvalidAmount(t *testing.T) {
	db := setupTestDB(t)
	service := newRewardTestService(db, &fakeGateway{})

	for _, value := range []string{"-10", "10.5"} {
		gross, _ := decimal.NewFromString(value)
		if _, err := service.DistributeReward(context.Background(), 1, gross, ""); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("value %s: expected ErrInvalidAmount, got %v", value, err)
		}
	}
}

func TestDistributeRewardSingleLevelChain(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{}
	service := newRewardTestService(db, gateway)

	createTestUser(t, db, 1, "wallet-1")
	createTestUser(t, db, 2, "wallet-2")
	createEdge(t, db, 1, 2)

	result, err := service.DistributeReward(context.Background(), 2, decimal.NewFromInt(1000), "evt-1")
	if err != nil {
		t.Fatalf("DistributeReward failed: %v", err)
	}

	if result.Direct.Status != TierCompleted {
		t.Errorf("direct tier: expected completed, got %s (%s)", result.Direct.Status, result.Direct.Reason)
	}
	if !result.Direct.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("direct amount: expected 100, got %s", result.Direct.Amount)
	}
	// The direct referrer has no referrer of their own: no root tier.
	if result.Root.Status != TierSkipped {
		t.Errorf("root tier: expected skipped, got %s", result.Root.Status)
	}
	if gateway.callCount() != 1 {
		t.Errorf("expected 1 gateway call, got %d", gateway.callCount())
	}
}

func TestDistributeRewardRootTier(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{}
	service := newRewardTestService(db, gateway)

	// 1 (core team) <- 2 <- 3
	root := createTestUser(t, db, 1, "wallet-1")
	createTestUser(t, db, 2, "wallet-2")
	createTestUser(t, db, 3, "wallet-3")
	createEdge(t, db, 1, 2)
	createEdge(t, db, 2, 3)
	db.Create(&models.CoreTeamMember{UserID: root.ID, Role: "founder"})

	result, err := service.DistributeReward(context.Background(), 3, decimal.NewFromInt(1000), "evt-1")
	if err != nil {
		t.Fatalf("DistributeReward failed: %v", err)
	}

	if result.Direct.Status != TierCompleted {
		t.Fatalf("direct tier: expected completed, got %s (%s)", result.Direct.Status, result.Direct.Reason)
	}
	if result.Root.Status != TierCompleted {
		t.Fatalf("root tier: expected completed, got %s (%s)", result.Root.Status, result.Root.Reason)
	}
	if !result.Root.Amount.Equal(decimal.NewFromInt(25)) {
		t.Errorf("root amount: expected 25, got %s", result.Root.Amount)
	}

	// Each completed tier has exactly one row whose amount round-trips.
	var txs []models.Transaction
	if err := db.Order("id ASC").Find(&txs).Error; err != nil {
		t.Fatalf("failed to list transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transaction rows, got %d", len(txs))
	}
	for _, tx := range txs {
		if tx.Status != models.TransactionStatusCompleted {
			t.Errorf("transaction %d: expected completed, got %s", tx.ID, tx.Status)
		}
		if tx.TxHash == nil || *tx.TxHash == "" {
			t.Errorf("transaction %d: missing transfer hash", tx.ID)
		}
		parsed, err := decimal.NewFromString(tx.Amount.String())
		if err != nil || !parsed.Equal(tx.Amount) {
			t.Errorf("transaction %d: amount %s does not round-trip", tx.ID, tx.Amount)
		}
	}
	if txs[0].UserID != 2 || !txs[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("direct row: got user %d amount %s", txs[0].UserID, txs[0].Amount)
	}
	if txs[1].UserID != 1 || !txs[1].Amount.Equal(decimal.NewFromInt(25)) {
		t.Errorf("root row: got user %d amount %s", txs[1].UserID, txs[1].Amount)
	}
}

func TestDistributeRewardRootNotCoreTeam(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{}
	service := newRewardTestService(db, gateway)

	createTestUser(t, db, 1, "wallet-1")
	createTestUser(t, db, 2, "wallet-2")
	createTestUser(t, db, 3, "wallet-3")
	createEdge(t, db, 1, 2)
	createEdge(t, db, 2, 3)

	result, err := service.DistributeReward(context.Background(), 3, decimal.NewFromInt(1000), "evt-1")
	if err != nil {
		t.Fatalf("DistributeReward failed: %v", err)
	}

	if result.Root.Status != TierSkipped {
		t.Errorf("root tier: expected skipped, got %s", result.Root.Status)
	}
	if gateway.callCount() != 1 {
		t.Errorf("expected 1 gateway call (direct only), got %d", gateway.callCount())
	}
}

func TestDistributeRewardDirectFailureRootStillAttempted(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{failWith: errors.New("insufficient funds"), failOnce: true}
	service := newRewardTestService(db, gateway)

	root := createTestUser(t, db, 1, "wallet-1")
	createTestUser(t, db, 2, "wallet-2")
	createTestUser(t, db, 3, "wallet-3")
	createEdge(t, db, 1, 2)
	createEdge(t, db, 2, 3)
	db.Create(&models.CoreTeamMember{UserID: root.ID, Role: "founder"})

	result, err := service.DistributeReward(context.Background(), 3, decimal.NewFromInt(1000), "evt-1")
	if err != nil {
		t.Fatalf("DistributeReward failed: %v", err)
	}

	if result.Direct.Status != TierFailed {
		t.Errorf("direct tier: expected failed, got %s", result.Direct.Status)
	}
	if result.Root.Status != TierCompleted {
		t.Errorf("root tier: expected completed, got %s (%s)", result.Root.Status, result.Root.Reason)
	}

	// No completed row for the direct tier, a settled failed intent instead.
	var direct models.Transaction
	if err := db.Where("user_id = ? AND tier = ?", 2, models.RewardTierDirect).First(&direct).Error; err != nil {
		t.Fatalf("direct intent row missing: %v", err)
	}
	if direct.Status != models.TransactionStatusFailed {
		t.Errorf("direct row: expected failed, got %s", direct.Status)
	}
	if direct.TxHash != nil {
		t.Errorf("direct row: unexpected transfer hash %s", *direct.TxHash)
	}
}

func TestDistributeRewardGatewayTimeout(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{failWith: context.DeadlineExceeded}
	service := newRewardTestService(db, gateway)

	createTestUser(t, db, 1, "wallet-1")
	createTestUser(t, db, 2, "wallet-2")
	createEdge(t, db, 1, 2)

	result, err := service.DistributeReward(context.Background(), 2, decimal.NewFromInt(1000), "evt-1")
	if err != nil {
		t.Fatalf("DistributeReward failed: %v", err)
	}

	if result.Direct.Status != TierUnknown {
		t.Errorf("direct tier: expected unknown, got %s", result.Direct.Status)
	}

	var tx models.Transaction
	if err := db.Where("user_id = ?", 1).First(&tx).Error; err != nil {
		t.Fatalf("intent row missing: %v", err)
	}
	if tx.Status != models.TransactionStatusUnknown {
		t.Errorf("expected unknown status, got %s", tx.Status)
	}
}

func TestDistributeRewardReplaySameEvent(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{}
	service := newRewardTestService(db, gateway)

	createTestUser(t, db, 1, "wallet-1")
	createTestUser(t, db, 2, "wallet-2")
	createEdge(t, db, 1, 2)

	if _, err := service.DistributeReward(context.Background(), 2, decimal.NewFromInt(1000), "evt-1"); err != nil {
		t.Fatalf("first DistributeReward failed: %v", err)
	}

	_, err := service.DistributeReward(context.Background(), 2, decimal.NewFromInt(1000), "evt-1")
	if !errors.Is(err, ErrDuplicateReward) {
		t.Fatalf("expected ErrDuplicateReward, got %v", err)
	}

	if gateway.callCount() != 1 {
		t.Errorf("expected 1 gateway call total, got %d", gateway.callCount())
	}
	var count int64
	db.Model(&models.Transaction{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 transaction row, got %d", count)
	}
}

func TestDistributeRewardConcurrentSameEvent(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{}
	service := newRewardTestService(db, gateway)

	createTestUser(t, db, 1, "wallet-1")
	createTestUser(t, db, 2, "wallet-2")
	createEdge(t, db, 1, 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.DistributeReward(context.Background(), 2, decimal.NewFromInt(1000), "evt-1")
		}(i)
	}
	wg.Wait()

	var succeeded, duplicated int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrDuplicateReward):
			duplicated++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || duplicated != 1 {
		t.Errorf("expected exactly one success and one duplicate, got %d/%d", succeeded, duplicated)
	}

	var count int64
	db.Model(&models.Transaction{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 transaction row, got %d", count)
	}
}

func TestIsDuplicateKeyClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"translated", gorm.ErrDuplicatedKey, true},
		{"pgx unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped pgx unique violation", fmt.Errorf("create intent: %w", &pgconn.PgError{Code: "23505"}), true},
		{"pgx serialization failure", &pgconn.PgError{Code: "40001"}, false},
		{"plain error", errors.New("connection reset"), false},
	}

	for _, tc := range cases {
		if got := isDuplicateKey(tc.err); got != tc.want {
			t.Errorf("%s: isDuplicateKey = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDistributeRewardZeroAmountSkipsTier(t *testing.T) {
	db := setupTestDB(t)
	gateway := &fakeGateway{}
	service := newRewardTestService(db, gateway)

	createTestUser(t, db, 1, "wallet-1")
	createTestUser(t, db, 2, "wallet-2")
	createEdge(t, db, 1, 2)

	result, err := service.DistributeReward(context.Background(), 2, decimal.NewFromInt(7), "evt-1")
	if err != nil {
		t.Fatalf("DistributeReward failed: %v", err)
	}
	if result.Direct.Status != TierSkipped {
		t.Errorf("direct tier: expected skipped for zero reward, got %s", result.Direct.Status)
	}
	if gateway.callCount() != 0 {
		t.Errorf("expected zero gateway calls, got %d", gateway.callCount())
	}
}
