package services

import (
	"context"
	"fmt"
	"time"

	"camly-reward-system/chain"
	"camly-reward-system/config"
	"camly-reward-system/models"
	"camly-reward-system/utils"
	"camly-reward-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockStore is the compare-and-swap guard closing the read-then-insert race
// on "one pending claim per user". Unlike cooldowns it fails closed: no lock,
// no claim.
type LockStore interface {
	AcquireStrict(key string, ttl time.Duration) bool
	Release(key string)
}

// ClaimResult distinguishes success, soft rejects (policy/concurrency, with a
// stable reason code), and hard failures recorded on the request row.
type ClaimResult struct {
	Status  string `json:"status"` // success | rejected | failed
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Amount  int64  `json:"amount,omitempty"`
	TxHash  string `json:"tx_hash,omitempty"`
}

type ClaimService struct {
	DB       *gorm.DB
	Cfg      *config.AppConfig
	Wallet   chain.TreasuryWallet
	Locks    LockStore
	Notifier *workers.Notifier
}

func NewClaimService(db *gorm.DB, cfg *config.AppConfig, wallet chain.TreasuryWallet, locks LockStore, notifier *workers.Notifier) *ClaimService {
	return &ClaimService{DB: db, Cfg: cfg, Wallet: wallet, Locks: locks, Notifier: notifier}
}

// SubmitClaim converts approved-and-unclaimed ledger credit into a single
// on-chain transfer. requested == 0 means "claim the maximum eligible".
//
// The pending row is inserted before the chain call; any failure after that
// point lands the request in a terminal failed state with a captured message.
// No ledger lock is held while the transfer confirms — the ledger is touched
// only before (pending insert) and after (settlement) the chain call.
func (s *ClaimService) SubmitClaim(ctx context.Context, userID, wallet string, requested int64) ClaimResult {
	if !chain.ValidAddress(wallet) {
		return ClaimResult{Status: "rejected", Reason: "invalid_wallet",
			Message: "Destination wallet address is not valid"}
	}

	timeout := time.Duration(s.Cfg.ClaimPendingTimeoutSec) * time.Second
	lockKey := "claim:lock:" + userID
	if !s.Locks.AcquireStrict(lockKey, timeout) {
		return ClaimResult{Status: "rejected", Reason: "claim_in_progress",
			Message: "A claim is already being processed, try again shortly"}
	}
	defer s.Locks.Release(lockKey)

	// Self-heal requests abandoned by a crashed process, then re-check.
	if err := s.sweepStaleForUser(userID, timeout); err != nil {
		return ClaimResult{Status: "failed", Reason: "db_error", Message: "Could not verify claim state"}
	}
	var activePending int64
	if err := s.DB.Model(&models.ClaimRequest{}).
		Where("user_id = ? AND status = ?", userID, models.ClaimStatusPending).
		Count(&activePending).Error; err != nil {
		return ClaimResult{Status: "failed", Reason: "db_error", Message: "Could not verify claim state"}
	}
	if activePending > 0 {
		return ClaimResult{Status: "rejected", Reason: "claim_in_progress",
			Message: "A claim is already being processed, try again shortly"}
	}

	// Approved and unclaimed entries, smallest first: settlement marks a
	// whole-entry prefix of this ordering as claimed.
	var entries []models.RewardLedgerEntry
	if err := s.DB.Where("user_id = ? AND status = ? AND claimed = ?",
		userID, models.LedgerStatusApproved, false).
		Order("amount ASC, created_at ASC").
		Find(&entries).Error; err != nil {
		return ClaimResult{Status: "failed", Reason: "db_error", Message: "Could not load balance"}
	}
	var available int64
	for _, e := range entries {
		available += e.Amount
	}
	if available < s.Cfg.MinClaimAmount {
		return ClaimResult{Status: "rejected", Reason: "below_minimum",
			Message: fmt.Sprintf("You need at least %d CAMLY to claim", s.Cfg.MinClaimAmount)}
	}

	today := models.DayBucket(time.Now())
	var dayRecord models.DailyClaimRecord
	if err := s.DB.Where("user_id = ? AND day = ?", userID, today).First(&dayRecord).Error; err != nil && err != gorm.ErrRecordNotFound {
		return ClaimResult{Status: "failed", Reason: "db_error", Message: "Could not load claim history"}
	}
	remainingDaily := s.Cfg.DailyClaimCap - dayRecord.ClaimedAmount
	if remainingDaily <= 0 {
		return ClaimResult{Status: "rejected", Reason: "daily_limit_reached",
			Message: "Daily claim limit reached — come back tomorrow"}
	}

	var balance models.RewardBalance
	if err := s.DB.Where("user_id = ?", userID).First(&balance).Error; err != nil && err != gorm.ErrRecordNotFound {
		return ClaimResult{Status: "failed", Reason: "db_error", Message: "Could not load balance"}
	}
	remainingLifetime := s.Cfg.LifetimeClaimCap - balance.TotalClaimed
	if remainingLifetime <= 0 {
		return ClaimResult{Status: "rejected", Reason: "lifetime_limit_reached",
			Message: "Lifetime claim limit reached for this account"}
	}

	eligible := minInt64(available, remainingDaily, remainingLifetime)
	target := eligible
	if requested > 0 {
		if requested < s.Cfg.MinClaimAmount {
			return ClaimResult{Status: "rejected", Reason: "below_minimum",
				Message: fmt.Sprintf("Minimum claim is %d CAMLY", s.Cfg.MinClaimAmount)}
		}
		if requested > eligible {
			return ClaimResult{Status: "rejected", Reason: "amount_not_available",
				Message: fmt.Sprintf("Only %d CAMLY is claimable right now", eligible)}
		}
		target = requested
	}

	// Whole entries only: settle the largest ascending prefix that fits the
	// target, so the settled amount always equals the sum of entries marked
	// claimed.
	selected, settleAmount := selectEntries(entries, target)
	if settleAmount < s.Cfg.MinClaimAmount {
		return ClaimResult{Status: "rejected", Reason: "below_minimum",
			Message: "No combination of reward entries meets the minimum claim"}
	}

	request := models.ClaimRequest{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        settleAmount,
		WalletAddress: wallet,
		Status:        models.ClaimStatusPending,
	}
	if err := s.DB.Create(&request).Error; err != nil {
		return ClaimResult{Status: "failed", Reason: "db_error", Message: "Could not record claim request"}
	}

	// All chain work must reach a terminal state strictly before the sweep
	// (and the lock TTL) can declare this request stale. Without this bound a
	// slow confirmation outlives the lock, a second submit sweeps the row and
	// pays the same entries again.
	chainCtx, cancelChain := context.WithTimeout(ctx, timeout-timeout/4)
	defer cancelChain()

	need := chain.ToBaseUnits(settleAmount, s.Cfg.TokenDecimals)
	poolBalance, err := s.Wallet.BalanceOf(chainCtx, s.Wallet.Address())
	if err != nil {
		s.markFailed(&request, "", fmt.Sprintf("treasury balance check failed: %v", err))
		return ClaimResult{Status: "failed", Reason: "transfer_failed",
			Message: "Could not reach the reward pool, please retry later"}
	}
	if poolBalance.Cmp(need) < 0 {
		s.markFailed(&request, "", "insufficient treasury balance")
		return ClaimResult{Status: "failed", Reason: "pool_depleted",
			Message: "The reward pool is being refilled — please try again later"}
	}

	txHash, err := s.Wallet.Transfer(chainCtx, wallet, need)
	if err != nil {
		s.markFailed(&request, "", fmt.Sprintf("transfer failed: %v", err))
		return ClaimResult{Status: "failed", Reason: "transfer_failed",
			Message: "On-chain transfer failed, nothing was deducted"}
	}
	if err := s.Wallet.WaitForConfirmation(chainCtx, txHash); err != nil {
		// The transfer may still land; reconciliation sync will surface it.
		s.markFailed(&request, txHash, fmt.Sprintf("confirmation wait failed for %s: %v", txHash, err))
		return ClaimResult{Status: "failed", Reason: "transfer_failed",
			Message: "Transfer confirmation timed out — support has been notified"}
	}

	if err := s.settle(&request, selected, settleAmount, txHash, today); err != nil {
		// Funds moved but the ledger did not settle. Loud log; the request
		// row carries the tx hash for manual repair and the sync job will
		// show the transfer.
		utils.Sugar.Errorw("settlement bookkeeping failed after confirmed transfer",
			"claim_id", request.ID, "tx_hash", txHash, "error", err)
		s.markFailed(&request, txHash, fmt.Sprintf("settlement failed after confirmed tx %s: %v", txHash, err))
		return ClaimResult{Status: "failed", Reason: "db_error",
			Message: "Settlement bookkeeping failed — support has been notified"}
	}

	s.enqueueSideEffects(userID, settleAmount, txHash)

	utils.Sugar.Infof("✅ Claim settled: user=%s amount=%d tx=%s (%d entries)",
		userID, settleAmount, txHash, len(selected))
	return ClaimResult{Status: "success", Amount: settleAmount, TxHash: txHash,
		Message: "Your CAMLY is on its way"}
}

// selectEntries picks the largest ascending-amount prefix whose sum fits target.
func selectEntries(entries []models.RewardLedgerEntry, target int64) ([]models.RewardLedgerEntry, int64) {
	var selected []models.RewardLedgerEntry
	var sum int64
	for _, e := range entries {
		if sum+e.Amount > target {
			break
		}
		selected = append(selected, e)
		sum += e.Amount
	}
	return selected, sum
}

// settle marks the selected entries claimed, adjusts the running balance and
// the daily claim record, and finalizes the request — all in one transaction.
func (s *ClaimService) settle(request *models.ClaimRequest, selected []models.RewardLedgerEntry, amount int64, txHash, day string) error {
	now := time.Now()
	return s.DB.Transaction(func(tx *gorm.DB) error {
		ids := make([]string, 0, len(selected))
		for _, e := range selected {
			ids = append(ids, e.ID)
		}
		res := tx.Model(&models.RewardLedgerEntry{}).
			Where("id IN ? AND claimed = ?", ids, false).
			UpdateColumns(map[string]interface{}{
				"claimed":       true,
				"claim_tx_hash": txHash,
				"updated_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			return fmt.Errorf("expected to settle %d entries, settled %d", len(ids), res.RowsAffected)
		}

		if err := tx.Model(&models.RewardBalance{}).
			Where("user_id = ?", request.UserID).
			UpdateColumns(map[string]interface{}{
				"approved_amount": gorm.Expr("approved_amount - ?", amount),
				"total_claimed":   gorm.Expr("total_claimed + ?", amount),
				"updated_at":      now,
			}).Error; err != nil {
			return err
		}

		record := models.DailyClaimRecord{
			ID:            uuid.NewString(),
			UserID:        request.UserID,
			Day:           day,
			ClaimedAmount: amount,
			ClaimCount:    1,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"claimed_amount": gorm.Expr("daily_claim_records.claimed_amount + ?", amount),
				"claim_count":    gorm.Expr("daily_claim_records.claim_count + 1"),
				"updated_at":     now,
			}),
		}).Create(&record).Error; err != nil {
			return err
		}

		return tx.Model(&models.ClaimRequest{}).
			Where("id = ?", request.ID).
			UpdateColumns(map[string]interface{}{
				"status":       models.ClaimStatusSuccess,
				"tx_hash":      txHash,
				"completed_at": now,
			}).Error
	})
}

// markFailed terminates the request. txHash, when known, is recorded on its
// own column so forensics can join the request to the on-chain transfer.
func (s *ClaimService) markFailed(request *models.ClaimRequest, txHash, message string) {
	updates := map[string]interface{}{
		"status":        models.ClaimStatusFailed,
		"error_message": message,
		"completed_at":  time.Now(),
	}
	if txHash != "" {
		updates["tx_hash"] = txHash
	}
	if err := s.DB.Model(&models.ClaimRequest{}).
		Where("id = ?", request.ID).
		UpdateColumns(updates).Error; err != nil {
		utils.Sugar.Errorw("failed to mark claim request failed",
			"claim_id", request.ID, "error", err)
	}
}

// sweepStaleForUser fails the user's own pending requests older than timeout.
func (s *ClaimService) sweepStaleForUser(userID string, timeout time.Duration) error {
	cutoff := time.Now().Add(-timeout)
	return s.DB.Model(&models.ClaimRequest{}).
		Where("user_id = ? AND status = ? AND created_at < ?", userID, models.ClaimStatusPending, cutoff).
		UpdateColumns(map[string]interface{}{
			"status":        models.ClaimStatusFailed,
			"error_message": "stale sweep",
			"completed_at":  time.Now(),
		}).Error
}

// SweepStalePending is the global variant run by the scheduler so no claim
// ever sits pending forever, even if its owner never comes back.
func (s *ClaimService) SweepStalePending() (int64, error) {
	cutoff := time.Now().Add(-time.Duration(s.Cfg.ClaimPendingTimeoutSec) * time.Second)
	res := s.DB.Model(&models.ClaimRequest{}).
		Where("status = ? AND created_at < ?", models.ClaimStatusPending, cutoff).
		UpdateColumns(map[string]interface{}{
			"status":        models.ClaimStatusFailed,
			"error_message": "stale sweep",
			"completed_at":  time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (s *ClaimService) enqueueSideEffects(userID string, amount int64, txHash string) {
	if s.Notifier == nil {
		return
	}
	payload := map[string]interface{}{
		"event":   "claim_settled",
		"amount":  amount,
		"tx_hash": txHash,
	}
	s.Notifier.Enqueue(workers.SideEffect{Kind: workers.EffectNotification, UserID: userID, Payload: payload})
	s.Notifier.Enqueue(workers.SideEffect{Kind: workers.EffectChatMessage, UserID: userID, Payload: payload})
	s.Notifier.Enqueue(workers.SideEffect{Kind: workers.EffectFeedPost, UserID: userID, Payload: payload})
}

func minInt64(values ...int64) int64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// --- HTTP handlers ---

// SubmitClaimHandler starts a settlement for the authenticated user.
func (s *ClaimService) SubmitClaimHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		WalletAddress string `json:"wallet_address"`
		Amount        int64  `json:"amount,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Amount < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Amount must be non-negative"})
	}

	result := s.SubmitClaim(c.Context(), userID, req.WalletAddress, req.Amount)
	status := fiber.StatusOK
	switch result.Status {
	case "rejected":
		status = fiber.StatusUnprocessableEntity
	case "failed":
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(result)
}

// ListClaimsHandler returns the authenticated user's claim history.
func (s *ClaimService) ListClaimsHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var claims []models.ClaimRequest
	if err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&claims).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch claims"})
	}
	return c.JSON(fiber.Map{"claims": claims})
}

// AdminListClaimsHandler lists claims across users, filterable by status.
func (s *ClaimService) AdminListClaimsHandler(c *fiber.Ctx) error {
	status := c.Query("status")
	limit := c.QueryInt("limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}

	query := s.DB.Order("created_at DESC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var claims []models.ClaimRequest
	if err := query.Find(&claims).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch claims"})
	}
	return c.JSON(fiber.Map{"claims": claims})
}
