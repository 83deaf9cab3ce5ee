package services

import (
	"testing"
	"time"

	"camly-reward-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newGate(t *testing.T) (*FraudGate, *gorm.DB) {
	db := newTestDB(t)
	return NewFraudGate(db, testConfig()), db
}

func TestFraudGateUnknownUser(t *testing.T) {
	gate, _ := newGate(t)
	userID := uuid.NewString()

	// Engagement stays open so a mirror lag never blocks a fresh signup.
	assert.True(t, gate.CheckAccrual(userID, models.ActionView).Allowed)
	assert.True(t, gate.CheckAccrual(userID, models.ActionLike).Allowed)

	decision := gate.CheckAccrual(userID, models.ActionUploadShort)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "account_too_new", decision.Reason)
}

func TestFraudGateBannedUser(t *testing.T) {
	gate, db := newGate(t)
	userID := uuid.NewString()
	require.NoError(t, db.Create(&models.ProfileMirror{
		ID:               uuid.NewString(),
		ExternalUserID:   userID,
		IsBanned:         true,
		AccountCreatedAt: time.Now().Add(-48 * time.Hour),
	}).Error)

	decision := gate.CheckAccrual(userID, models.ActionView)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "account_banned", decision.Reason)
	assert.Equal(t, 100, gate.SuspicionScore(userID))
	assert.False(t, gate.AutoApprove(userID))
}

func TestFraudGateAccountAge(t *testing.T) {
	gate, db := newGate(t)
	userID := uuid.NewString()
	require.NoError(t, db.Create(&models.ProfileMirror{
		ID:               uuid.NewString(),
		ExternalUserID:   userID,
		AccountCreatedAt: time.Now().Add(-1 * time.Hour),
	}).Error)

	decision := gate.CheckAccrual(userID, models.ActionUploadLong)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "account_too_new", decision.Reason)

	// Engagement kinds are exempt from the age gate.
	assert.True(t, gate.CheckAccrual(userID, models.ActionShare).Allowed)
}

func TestFraudGateIPCluster(t *testing.T) {
	gate, db := newGate(t)
	userID := uuid.NewString()
	ipHash := "aabbcc"
	require.NoError(t, db.Create(&models.ProfileMirror{
		ID:               uuid.NewString(),
		ExternalUserID:   userID,
		SignupIPHash:     ipHash,
		AccountCreatedAt: time.Now().Add(-72 * time.Hour),
	}).Error)
	for i := 0; i < 6; i++ {
		require.NoError(t, db.Create(&models.ProfileMirror{
			ID:               uuid.NewString(),
			ExternalUserID:   uuid.NewString(),
			SignupIPHash:     ipHash,
			AccountCreatedAt: time.Now().Add(-72 * time.Hour),
		}).Error)
	}

	decision := gate.CheckAccrual(userID, models.ActionUploadShort)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "ip_cluster", decision.Reason)

	// Engagement still flows, but the score carries the cluster signal.
	assert.True(t, gate.CheckAccrual(userID, models.ActionView).Allowed)
	assert.Equal(t, 30, gate.SuspicionScore(userID))
}

func TestFraudGateAutoApprove(t *testing.T) {
	gate, db := newGate(t)

	clean := uuid.NewString()
	seedProfile(t, db, clean)
	assert.Equal(t, 0, gate.SuspicionScore(clean))
	assert.True(t, gate.AutoApprove(clean))

	flagged := uuid.NewString()
	require.NoError(t, db.Create(&models.ProfileMirror{
		ID:               uuid.NewString(),
		ExternalUserID:   flagged,
		FraudFlagCount:   3,
		AccountCreatedAt: time.Now().Add(-72 * time.Hour),
	}).Error)
	assert.Equal(t, 75, gate.SuspicionScore(flagged))
	assert.False(t, gate.AutoApprove(flagged))

	// Unknown accounts never auto-approve.
	assert.False(t, gate.AutoApprove(uuid.NewString()))
}
