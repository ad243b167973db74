package jobs

import (
	"context"
	"log"
	"time"

	"referral-platform/internal/blockchain"
	"referral-platform/internal/models"
	"referral-platform/internal/repository"
)

// SignatureChecker looks up the on-chain state of a submitted transfer
type SignatureChecker interface {
	GetSignatureStatus(ctx context.Context, txHash string) (blockchain.SignatureStatus, error)
}

// ReconcileJob settles reward transactions whose outcome was unknown at
// request time (the caller gave up waiting on the gateway). It re-checks
// each recorded signature on-chain; a tier must never be retried until this
// has settled it.
type ReconcileJob struct {
	repo   *repository.Repository
	client SignatureChecker
}

func NewReconcileJob(repo *repository.Repository, client SignatureChecker) *ReconcileJob {
	return &ReconcileJob{
		repo:   repo,
		client: client,
	}
}

// Start begins the periodic reconciliation job
func (j *ReconcileJob) Start(interval time.Duration) {
	go func() {
		ctx := context.Background()
		if err := j.ReconcileOnce(ctx); err != nil {
			log.Printf("Initial reconcile error: %v", err)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			if err := j.ReconcileOnce(ctx); err != nil {
				log.Printf("Reconcile error: %v", err)
			}
		}
	}()
}

// ReconcileOnce settles one batch of unsettled reward transactions
func (j *ReconcileJob) ReconcileOnce(ctx context.Context) error {
	// Intents that never got settled, e.g. the process died between the
	// transfer and the bookkeeping write. Their outcome is unknown.
	stale, err := j.repo.FindStalePendingRewardTransactions(ctx, time.Now().Add(-10*time.Minute), 100)
	if err != nil {
		return err
	}
	for _, tx := range stale {
		if err := j.repo.UpdateTransactionStatus(ctx, tx.ID, models.TransactionStatusUnknown, nil); err != nil {
			log.Printf("Reconcile: failed to mark stale transaction %d unknown: %v", tx.ID, err)
		} else {
			log.Printf("Reconcile: transaction %d was left pending, marked unknown", tx.ID)
		}
	}

	txs, err := j.repo.FindUnknownRewardTransactions(ctx, 100)
	if err != nil {
		return err
	}

	for _, tx := range txs {
		if tx.TxHash == nil {
			// No signature to check against; needs gateway-side dedup or
			// manual review before the payout can be retried.
			log.Printf("Reconcile: transaction %d has no signature, manual reconciliation required", tx.ID)
			continue
		}

		status, err := j.client.GetSignatureStatus(ctx, *tx.TxHash)
		if err != nil {
			log.Printf("Reconcile: could not check signature for transaction %d: %v", tx.ID, err)
			continue
		}

		switch status {
		case blockchain.SignatureStatusConfirmed:
			if err := j.repo.UpdateTransactionStatus(ctx, tx.ID, models.TransactionStatusCompleted, tx.TxHash); err != nil {
				log.Printf("Reconcile: failed to complete transaction %d: %v", tx.ID, err)
			} else {
				log.Printf("Reconcile: transaction %d confirmed on-chain", tx.ID)
			}
		case blockchain.SignatureStatusFailed, blockchain.SignatureStatusNotFound:
			if err := j.repo.UpdateTransactionStatus(ctx, tx.ID, models.TransactionStatusFailed, nil); err != nil {
				log.Printf("Reconcile: failed to mark transaction %d failed: %v", tx.ID, err)
			} else {
				log.Printf("Reconcile: transaction %d did not land on-chain", tx.ID)
			}
		}
		// Still pending on-chain: leave it for the next run.
	}

	return nil
}
