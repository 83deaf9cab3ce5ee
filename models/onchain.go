package models

import "time"

// OnchainTransfer mirrors one confirmed token transfer pulled from the
// indexing service. The (chain_id, token_contract, tx_hash, log_index) unique
// index is the sole defense against double ingestion: a conflict there means
// "already recorded", never an error.
type OnchainTransfer struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	ChainID       int64  `gorm:"not null;uniqueIndex:idx_transfer_natural" json:"chain_id"`
	TokenContract string `gorm:"type:varchar(64);not null;uniqueIndex:idx_transfer_natural" json:"token_contract"`
	TxHash        string `gorm:"type:varchar(80);not null;uniqueIndex:idx_transfer_natural" json:"tx_hash"`
	LogIndex      uint   `gorm:"not null;uniqueIndex:idx_transfer_natural" json:"log_index"`

	FromAddress string  `gorm:"type:varchar(64);not null;index" json:"from_address"`
	ToAddress   string  `gorm:"type:varchar(64);not null;index" json:"to_address"`
	FromUserID  *string `gorm:"type:uuid;index" json:"from_user_id,omitempty"` // nil until a wallet link matches
	ToUserID    *string `gorm:"type:uuid;index" json:"to_user_id,omitempty"`

	RawValue    string    `gorm:"type:varchar(96);not null" json:"raw_value"` // base-unit integer as string
	Decimals    int       `gorm:"not null" json:"decimals"`
	Amount      int64     `gorm:"not null" json:"amount"` // whole CAMLY units
	BlockNumber uint64    `gorm:"not null;index" json:"block_number"`
	BlockTime   time.Time `json:"block_time"`
	CreatedAt   time.Time `json:"created_at"`
}

// SyncCursor marks reconciliation progress per (wallet, chain, token).
// LastBlockNumber only ever moves forward; a sync pass with zero new
// transfers leaves the row untouched.
type SyncCursor struct {
	ID              string    `gorm:"primaryKey;type:uuid" json:"id"`
	WalletAddress   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_cursor_pair" json:"wallet_address"`
	ChainID         int64     `gorm:"not null;uniqueIndex:idx_cursor_pair" json:"chain_id"`
	TokenContract   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_cursor_pair" json:"token_contract"`
	LastBlockNumber uint64    `gorm:"not null;default:0" json:"last_block_number"`
	LastSyncedAt    time.Time `json:"last_synced_at"`
	SyncedCount     int64     `gorm:"not null;default:0" json:"synced_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
