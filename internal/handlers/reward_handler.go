package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"referral-platform/internal/auth"
	"referral-platform/internal/services"
)

type RewardHandler struct {
	rewardService   *services.RewardService
	transferTimeout time.Duration
}

func NewRewardHandler(rewardService *services.RewardService, transferTimeout time.Duration) *RewardHandler {
	return &RewardHandler{
		rewardService:   rewardService,
		transferTimeout: transferTimeout,
	}
}

// DistributeReward triggers the two-tier referral payout for the
// authenticated user. The response reports each tier's outcome separately so
// callers can tell "direct paid, root failed" from total failure.
func (h *RewardHandler) DistributeReward(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		Value         string `json:"value" binding:"required"`
		SourceEventID string `json:"source_event_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gross, err := decimal.NewFromString(req.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value must be an integer string"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.transferTimeout)
	defer cancel()

	result, err := h.rewardService.DistributeReward(ctx, userID, gross, req.SourceEventID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoReferrer):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrMissingWallet), errors.Is(err, services.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrDuplicateReward):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to distribute reward"})
		}
		return
	}

	status := http.StatusOK
	switch result.Direct.Status {
	case services.TierFailed:
		status = http.StatusBadGateway
	case services.TierUnknown:
		status = http.StatusAccepted
	}

	// A skipped direct tier means nothing was owed, not that the payout
	// failed.
	directOK := result.Direct.Status == services.TierCompleted ||
		result.Direct.Status == services.TierSkipped

	c.JSON(status, gin.H{
		"success": directOK,
		"data":    result,
	})
}
