package models

import (
	"time"
)

// ActionKind identifies the platform action that earned a reward
type ActionKind string

const (
	ActionView        ActionKind = "view"
	ActionLike        ActionKind = "like"
	ActionShare       ActionKind = "share"
	ActionUploadShort ActionKind = "upload_short"
	ActionUploadLong  ActionKind = "upload_long"
	ActionSignin      ActionKind = "signin"
)

// ValidActionKind reports whether the kind is one we credit for.
func ValidActionKind(kind ActionKind) bool {
	switch kind {
	case ActionView, ActionLike, ActionShare, ActionUploadShort, ActionUploadLong, ActionSignin:
		return true
	}
	return false
}

// LedgerStatus indicates the review state of a ledger entry
type LedgerStatus string

const (
	LedgerStatusPending  LedgerStatus = "pending"
	LedgerStatusApproved LedgerStatus = "approved"
)

// RewardLedgerEntry is one immutable credit event. Only Status, Claimed and
// ClaimTxHash change after creation; the claimed flip is owned by the claim
// settlement path alone.
// The (user_id, content_id, kind) unique index is the idempotency key: the same
// action can never credit twice, no matter how often it is re-submitted.
type RewardLedgerEntry struct {
	ID          string       `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string       `gorm:"index;not null;uniqueIndex:idx_reward_once" json:"user_id"`
	ContentID   string       `gorm:"not null;uniqueIndex:idx_reward_once" json:"content_id"`
	Kind        ActionKind   `gorm:"type:varchar(32);not null;uniqueIndex:idx_reward_once" json:"kind"`
	Amount      int64        `gorm:"not null" json:"amount"`
	Status      LedgerStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Claimed     bool         `gorm:"not null;default:false;index" json:"claimed"`
	ClaimTxHash *string      `gorm:"type:varchar(80)" json:"claim_tx_hash,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// RewardBalance is the per-user running aggregate the accrual and claim paths
// mutate with atomic store-side increments (never read-modify-write).
type RewardBalance struct {
	UserID         string    `gorm:"primaryKey;type:uuid" json:"user_id"`
	PendingAmount  int64     `gorm:"not null;default:0" json:"pending_amount"`
	ApprovedAmount int64     `gorm:"not null;default:0" json:"approved_amount"`
	TotalClaimed   int64     `gorm:"not null;default:0" json:"total_claimed"`
	UpdatedAt      time.Time `json:"updated_at"`
}
