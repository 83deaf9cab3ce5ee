// models/wallet_link.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// WalletLink associates an on-chain address with a platform user.
// Reconciliation uses it to resolve transfer counterparties to user ids;
// unmatched addresses stay unresolved for later manual association.
// Table name: wallet_links
type WalletLink struct {
	ID        string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Address   string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"address"` // stored lowercase
	ChainID   int64     `gorm:"not null" json:"chain_id"`
	IsPrimary bool      `gorm:"not null;default:false" json:"is_primary"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
