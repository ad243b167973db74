package jobs

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"referral-platform/internal/blockchain"
	"referral-platform/internal/models"
	"referral-platform/internal/repository"
)

type fakeChecker struct {
	statuses map[string]blockchain.SignatureStatus
}

func (c *fakeChecker) GetSignatureStatus(ctx context.Context, txHash string) (blockchain.SignatureStatus, error) {
	return c.statuses[txHash], nil
}

func setupJobDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Transaction{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func rewardTx(t *testing.T, db *gorm.DB, ref, status string, hash *string, createdAt time.Time) uint {
	tx := models.Transaction{
		UserID:       1,
		Type:         models.TransactionTypeReward,
		Tier:         models.RewardTierDirect,
		Amount:       decimal.NewFromInt(100),
		Status:       status,
		TxHash:       hash,
		ReferenceKey: ref,
		CreatedAt:    createdAt,
	}
	if err := db.Create(&tx).Error; err != nil {
		t.Fatalf("failed to create transaction: %v", err)
	}
	return tx.ID
}

func TestReconcileOnce(t *testing.T) {
	db := setupJobDB(t)
	repo := repository.NewRepository(db)

	confirmed := "sig-confirmed"
	dropped := "sig-dropped"
	open := "sig-open"

	old := time.Now().Add(-time.Hour)
	confirmedID := rewardTx(t, db, "ref-1", models.TransactionStatusUnknown, &confirmed, old)
	droppedID := rewardTx(t, db, "ref-2", models.TransactionStatusUnknown, &dropped, old)
	openID := rewardTx(t, db, "ref-3", models.TransactionStatusUnknown, &open, old)
	stalePendingID := rewardTx(t, db, "ref-4", models.TransactionStatusPending, nil, old)
	freshPendingID := rewardTx(t, db, "ref-5", models.TransactionStatusPending, nil, time.Now())

	checker := &fakeChecker{statuses: map[string]blockchain.SignatureStatus{
		confirmed: blockchain.SignatureStatusConfirmed,
		dropped:   blockchain.SignatureStatusNotFound,
		open:      blockchain.SignatureStatusPending,
	}}

	job := NewReconcileJob(repo, checker)
	if err := job.ReconcileOnce(context.Background()); err != nil {
		t.Fatalf("ReconcileOnce failed: %v", err)
	}

	want := map[uint]string{
		confirmedID:    models.TransactionStatusCompleted,
		droppedID:      models.TransactionStatusFailed,
		openID:         models.TransactionStatusUnknown,
		stalePendingID: models.TransactionStatusUnknown,
		freshPendingID: models.TransactionStatusPending,
	}

	for id, status := range want {
		var tx models.Transaction
		if err := db.First(&tx, id).Error; err != nil {
			t.Fatalf("failed to load transaction %d: %v", id, err)
		}
		if tx.Status != status {
			t.Errorf("transaction %d: expected status %s, got %s", id, status, tx.Status)
		}
	}
}
