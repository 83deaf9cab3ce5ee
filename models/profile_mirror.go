package models

import (
	"time"

	"gorm.io/gorm"
)

// ProfileMirror is a local snapshot of account data the fraud gate needs.
// Owned and managed solely by the reward service; populated via sync worker
// from the account service's profile feed. The gate never calls out — it
// reads this mirror only.
type ProfileMirror struct {
	ID               string    `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID   string    `gorm:"uniqueIndex;not null" json:"external_user_id"`
	Username         string    `gorm:"index" json:"username"`
	IsBanned         bool      `gorm:"not null;default:false" json:"is_banned"`
	SignupIPHash     string    `gorm:"type:varchar(64);index" json:"signup_ip_hash"` // fingerprint, not the raw IP
	FraudFlagCount   int       `gorm:"not null;default:0" json:"fraud_flag_count"`   // manual reviewer strikes
	AccountCreatedAt time.Time `json:"account_created_at"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
