package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the platform identity plus its wallet.
// WalletBalance is held in the smallest currency unit and is only ever
// changed by the ledger, inside a transaction, with an atomic increment.
type User struct {
	ID            string `gorm:"primaryKey" json:"id"`
	Username      string `gorm:"index;not null" json:"username"`
	Email         string `json:"email,omitempty"`
	WalletBalance int64  `gorm:"not null;default:0;check:wallet_balance >= 0" json:"wallet_balance"`
	IsHouse       bool   `gorm:"not null;default:false" json:"-"` // sweep account for split remainders

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
