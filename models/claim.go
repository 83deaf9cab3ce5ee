package models

import "time"

// ClaimStatus tracks a settlement attempt through its lifecycle
type ClaimStatus string

const (
	ClaimStatusPending ClaimStatus = "pending"
	ClaimStatusSuccess ClaimStatus = "success"
	ClaimStatusFailed  ClaimStatus = "failed"
)

// ClaimRequest is one attempt to convert approved CAMLY balance into an
// on-chain transfer. The row is inserted before the chain call so a crash
// mid-transfer is auditable; the sweep job fails anything stuck pending.
type ClaimRequest struct {
	ID            string      `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string      `gorm:"index;not null" json:"user_id"`
	Amount        int64       `gorm:"not null" json:"amount"`
	WalletAddress string      `gorm:"type:varchar(64);not null" json:"wallet_address"`
	Status        ClaimStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	TxHash        string      `gorm:"type:varchar(80)" json:"tx_hash,omitempty"`
	ErrorMessage  string      `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
}

// DailyClaimRecord accumulates claimed amounts per (user, day) so the daily
// claim ceiling holds independent of ledger state.
type DailyClaimRecord struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string    `gorm:"not null;uniqueIndex:idx_claim_day" json:"user_id"`
	Day           string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_claim_day" json:"day"`
	ClaimedAmount int64     `gorm:"not null;default:0" json:"claimed_amount"`
	ClaimCount    int       `gorm:"not null;default:0" json:"claim_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
