package services

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"camly-reward-system/chain"
	"camly-reward-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testWallet = "0x1111111111111111111111111111111111111111"

func newClaim(t *testing.T, treasury *fakeTreasury) (*ClaimService, *gorm.DB) {
	db := newTestDB(t)
	cfg := testConfig()
	return NewClaimService(db, cfg, treasury, newFakeLocks(), nil), db
}

// seedApprovedEntries inserts approved unclaimed ledger entries and the
// matching balance row.
func seedApprovedEntries(t *testing.T, db *gorm.DB, userID string, amounts ...int64) {
	t.Helper()
	var total int64
	for i, amount := range amounts {
		entry := models.RewardLedgerEntry{
			ID:        uuid.NewString(),
			UserID:    userID,
			ContentID: fmt.Sprintf("content-%d", i),
			Kind:      models.ActionUploadLong,
			Amount:    amount,
			Status:    models.LedgerStatusApproved,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, db.Create(&entry).Error)
		total += amount
	}
	require.NoError(t, db.Create(&models.RewardBalance{
		UserID:         userID,
		ApprovedAmount: total,
	}).Error)
}

func TestClaimInvalidWallet(t *testing.T) {
	svc, _ := newClaim(t, newFakeTreasury(big.NewInt(0)))
	result := svc.SubmitClaim(context.Background(), uuid.NewString(), "not-an-address", 0)
	assert.Equal(t, "rejected", result.Status)
	assert.Equal(t, "invalid_wallet", result.Reason)
}

func TestClaimBelowMinimum(t *testing.T) {
	treasury := newFakeTreasury(chain.ToBaseUnits(10000000, 6))
	svc, db := newClaim(t, treasury)
	userID := uuid.NewString()
	seedApprovedEntries(t, db, userID, 50000, 100000) // 150k < 200k minimum

	result := svc.SubmitClaim(context.Background(), userID, testWallet, 0)
	assert.Equal(t, "rejected", result.Status)
	assert.Equal(t, "below_minimum", result.Reason)
	assert.Empty(t, treasury.transfers)
}

func TestClaimSettlesWholeEntries(t *testing.T) {
	treasury := newFakeTreasury(chain.ToBaseUnits(10000000, 6))
	svc, db := newClaim(t, treasury)
	userID := uuid.NewString()
	seedApprovedEntries(t, db, userID, 100000, 150000)

	result := svc.SubmitClaim(context.Background(), userID, testWallet, 0)
	require.Equal(t, "success", result.Status)
	assert.EqualValues(t, 250000, result.Amount)
	assert.NotEmpty(t, result.TxHash)

	require.Len(t, treasury.transfers, 1)
	assert.Equal(t, testWallet, treasury.transfers[0].To)
	assert.Zero(t, treasury.transfers[0].Amount.Cmp(chain.ToBaseUnits(250000, 6)))

	var claimed int64
	db.Model(&models.RewardLedgerEntry{}).
		Where("user_id = ? AND claimed = ?", userID, true).Count(&claimed)
	assert.EqualValues(t, 2, claimed)

	var balance models.RewardBalance
	require.NoError(t, db.Where("user_id = ?", userID).First(&balance).Error)
	assert.EqualValues(t, 0, balance.ApprovedAmount)
	assert.EqualValues(t, 250000, balance.TotalClaimed)

	var record models.DailyClaimRecord
	require.NoError(t, db.Where("user_id = ?", userID).First(&record).Error)
	assert.EqualValues(t, 250000, record.ClaimedAmount)
	assert.Equal(t, 1, record.ClaimCount)

	var request models.ClaimRequest
	require.NoError(t, db.Where("user_id = ?", userID).First(&request).Error)
	assert.Equal(t, models.ClaimStatusSuccess, request.Status)
	assert.Equal(t, result.TxHash, request.TxHash)
	require.NotNil(t, request.CompletedAt)
}

func TestClaimDailyCapClampsSelection(t *testing.T) {
	treasury := newFakeTreasury(chain.ToBaseUnits(10000000, 6))
	svc, db := newClaim(t, treasury)
	svc.Cfg.DailyClaimCap = 400000
	userID := uuid.NewString()
	seedApprovedEntries(t, db, userID, 100000, 150000, 300000)

	// Eligible clamps to 400k; only 100k+150k fit as whole entries.
	result := svc.SubmitClaim(context.Background(), userID, testWallet, 0)
	require.Equal(t, "success", result.Status)
	assert.EqualValues(t, 250000, result.Amount)

	var unclaimed []models.RewardLedgerEntry
	require.NoError(t, db.Where("user_id = ? AND claimed = ?", userID, false).Find(&unclaimed).Error)
	require.Len(t, unclaimed, 1)
	assert.EqualValues(t, 300000, unclaimed[0].Amount)

	var balance models.RewardBalance
	require.NoError(t, db.Where("user_id = ?", userID).First(&balance).Error)
	assert.EqualValues(t, 300000, balance.ApprovedAmount)
}

func TestClaimRequestedAmount(t *testing.T) {
	treasury := newFakeTreasury(chain.ToBaseUnits(10000000, 6))
	svc, db := newClaim(t, treasury)
	userID := uuid.NewString()
	seedApprovedEntries(t, db, userID, 200000, 300000)

	// Requesting more than is claimable is a reject, not a partial fill.
	result := svc.SubmitClaim(context.Background(), userID, testWallet, 600000)
	assert.Equal(t, "rejected", result.Status)
	assert.Equal(t, "amount_not_available", result.Reason)

	// Requesting below the platform minimum rejects before any selection.
	result = svc.SubmitClaim(context.Background(), userID, testWallet, 100000)
	assert.Equal(t, "below_minimum", result.Reason)

	// A valid partial request settles only the entries that fit.
	result = svc.SubmitClaim(context.Background(), userID, testWallet, 250000)
	require.Equal(t, "success", result.Status)
	assert.EqualValues(t, 200000, result.Amount)
}

func TestClaimDailyLimitReached(t *testing.T) {
	treasury := newFakeTreasury(chain.ToBaseUnits(10000000, 6))
	svc, db := newClaim(t, treasury)
	userID := uuid.NewString()
	seedApprovedEntries(t, db, userID, 300000)
	require.NoError(t, db.Create(&models.DailyClaimRecord{
		ID:            uuid.NewString(),
		UserID:        userID,
		Day:           models.DayBucket(time.Now()),
		ClaimedAmount: svc.Cfg.DailyClaimCap,
		ClaimCount:    3,
	}).Error)

	result := svc.SubmitClaim(context.Background(), userID, testWallet, 0)
	assert.Equal(t, "rejected", result.Status)
	assert.Equal(t, "daily_limit_reached", result.Reason)
	assert.Empty(t, treasury.transfers)
}

func TestClaimLifetimeLimitReached(t *testing.T) {
	treasury := newFakeTreasury(chain.ToBaseUnits(10000000, 6))
	svc, db := newClaim(t, treasury)
	svc.Cfg.LifetimeClaimCap = 500000
	userID := uuid.NewString()
	seedApprovedEntries(t, db, userID, 300000)
	require.NoError(t, db.Model(&models.RewardBalance{}).
		Where("user_id = ?", userID).
		UpdateColumn("total_claimed", 500000).Error)

	result := svc.SubmitClaim(context.Background(), userID, testWallet, 0)
	assert.Equal(t, "rejected", result.Status)
	assert.Equal(t, "lifetime_limit_reached", result.Reason)
}

func TestClaimPoolDepleted(t *testing.T) {
	treasury := newFakeTreasury(chain.ToBaseUnits(1000, 6)) // far below the claim
	svc, db := newClaim(t, treasury)
	userID := uuid.NewString()
	seedApprovedEntries(t, db, userID, 300000)

	result := svc.SubmitClaim(context.Background(), userID, testWallet, 0)
	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, "pool_depleted", result.Reason)
	assert.Empty(t, treasury.transfers)

	// Request row records the failure; ledger stays untouched.
	var request models.ClaimRequest
	require.NoError(t, db.Where("user_id = ?", userID).First(&request).Error)
	assert.Equal(t, models.ClaimStatusFailed, request.Status)

	var claimed int64
	db.Model(&models.RewardLedgerEntry{}).
		Where("user_id = ? AND claimed = ?", userID, true).Count(&claimed)
	assert.Zero(t, claimed)
}

func TestClaimTransferFailure(t *testing.T) {
	treasury := newFakeTreasury(chain.ToBaseUnits(10000000, 6))
	treasury.transferErr = fmt.Errorf("nonce too low")
	svc, db := newClaim(t, treasury)
	userID := uuid.NewString()
	seedApprovedEntries(t, db, userID, 300000)

	result := svc.SubmitClaim(context.Background(), userID, testWallet, 0)
	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, "transfer_failed", result.Reason)

	var balance models.RewardBalance
	require.NoError(t, db.Where("user_id = ?", userID).First(&balance).Error)
	assert.EqualValues(t, 300000, balance.ApprovedAmount)
	assert.EqualValues(t, 0, balance.TotalClaimed)
}

func TestClaimConfirmationBoundedBySweepTimeout(t *testing.T) {
	treasury := newFakeTreasury(chain.ToBaseUnits(10000000, 6))
	treasury.confirmWaits = true
	svc, db := newClaim(t, treasury)
	svc.Cfg.ClaimPendingTimeoutSec = 1
	userID := uuid.NewString()
	seedApprovedEntries(t, db, userID, 300000)

	// The confirmation wait must give up before the request could be swept
	// as stale, otherwise a second submit can pay the same entries again.
	start := time.Now()
	result := svc.SubmitClaim(context.Background(), userID, testWallet, 0)
	elapsed := time.Since(start)

	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, "transfer_failed", result.Reason)
	assert.Less(t, elapsed, time.Duration(svc.Cfg.ClaimPendingTimeoutSec)*time.Second)

	// The broadcast hash is recorded on the failed request so the transfer
	// can be joined from forensics even though settlement never ran.
	var request models.ClaimRequest
	require.NoError(t, db.Where("user_id = ?", userID).First(&request).Error)
	assert.Equal(t, models.ClaimStatusFailed, request.Status)
	assert.NotEmpty(t, request.TxHash)

	var claimed int64
	db.Model(&models.RewardLedgerEntry{}).
		Where("user_id = ? AND claimed = ?", userID, true).Count(&claimed)
	assert.Zero(t, claimed)
}

func TestClaimInProgress(t *testing.T) {
	treasury := newFakeTreasury(chain.ToBaseUnits(10000000, 6))
	svc, db := newClaim(t, treasury)
	userID := uuid.NewString()
	seedApprovedEntries(t, db, userID, 300000)

	// A fresh pending request blocks a second submission.
	require.NoError(t, db.Create(&models.ClaimRequest{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        300000,
		WalletAddress: testWallet,
		Status:        models.ClaimStatusPending,
	}).Error)

	result := svc.SubmitClaim(context.Background(), userID, testWallet, 0)
	assert.Equal(t, "rejected", result.Status)
	assert.Equal(t, "claim_in_progress", result.Reason)
}

func TestClaimLockContention(t *testing.T) {
	treasury := newFakeTreasury(chain.ToBaseUnits(10000000, 6))
	svc, db := newClaim(t, treasury)
	userID := uuid.NewString()
	seedApprovedEntries(t, db, userID, 300000)

	svc.Locks.AcquireStrict("claim:lock:"+userID, time.Minute)

	result := svc.SubmitClaim(context.Background(), userID, testWallet, 0)
	assert.Equal(t, "rejected", result.Status)
	assert.Equal(t, "claim_in_progress", result.Reason)
}

func TestClaimSweepsOwnStalePending(t *testing.T) {
	treasury := newFakeTreasury(chain.ToBaseUnits(10000000, 6))
	svc, db := newClaim(t, treasury)
	userID := uuid.NewString()
	seedApprovedEntries(t, db, userID, 300000)

	stale := models.ClaimRequest{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        300000,
		WalletAddress: testWallet,
		Status:        models.ClaimStatusPending,
	}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Model(&models.ClaimRequest{}).
		Where("id = ?", stale.ID).
		UpdateColumn("created_at", time.Now().Add(-10*time.Minute)).Error)

	// The abandoned request is failed in-line and the new claim proceeds.
	result := svc.SubmitClaim(context.Background(), userID, testWallet, 0)
	require.Equal(t, "success", result.Status)

	var swept models.ClaimRequest
	require.NoError(t, db.Where("id = ?", stale.ID).First(&swept).Error)
	assert.Equal(t, models.ClaimStatusFailed, swept.Status)
	assert.Equal(t, "stale sweep", swept.ErrorMessage)
}

func TestSweepStalePendingGlobal(t *testing.T) {
	treasury := newFakeTreasury(big.NewInt(0))
	svc, db := newClaim(t, treasury)

	fresh := models.ClaimRequest{
		ID: uuid.NewString(), UserID: uuid.NewString(),
		Amount: 1, WalletAddress: testWallet, Status: models.ClaimStatusPending,
	}
	require.NoError(t, db.Create(&fresh).Error)

	old := models.ClaimRequest{
		ID: uuid.NewString(), UserID: uuid.NewString(),
		Amount: 1, WalletAddress: testWallet, Status: models.ClaimStatusPending,
	}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Model(&models.ClaimRequest{}).
		Where("id = ?", old.ID).
		UpdateColumn("created_at", time.Now().Add(-time.Hour)).Error)

	swept, err := svc.SweepStalePending()
	require.NoError(t, err)
	assert.EqualValues(t, 1, swept)

	var check models.ClaimRequest
	require.NoError(t, db.Where("id = ?", fresh.ID).First(&check).Error)
	assert.Equal(t, models.ClaimStatusPending, check.Status)
}

func TestSelectEntriesPrefix(t *testing.T) {
	entries := []models.RewardLedgerEntry{
		{ID: "a", Amount: 100},
		{ID: "b", Amount: 150},
		{ID: "c", Amount: 300},
	}

	selected, sum := selectEntries(entries, 550)
	assert.Len(t, selected, 3)
	assert.EqualValues(t, 550, sum)

	selected, sum = selectEntries(entries, 400)
	assert.Len(t, selected, 2)
	assert.EqualValues(t, 250, sum)

	selected, sum = selectEntries(entries, 50)
	assert.Empty(t, selected)
	assert.Zero(t, sum)
}
