package services

import (
	"fmt"

	"game-wager-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger applies wallet mutations. Every method takes the caller's
// transaction: a balance change and its audit row always commit together.
type Ledger struct {
	HouseUserID string
}

func NewLedger(houseUserID string) *Ledger {
	return &Ledger{HouseUserID: houseUserID}
}

// Credit adds amount to the user's wallet and records the transaction.
func (l *Ledger) Credit(tx *gorm.DB, userID string, amount int64, kind models.TransactionType, ref, description string) error {
	if amount <= 0 {
		return fmt.Errorf("credit %s: %w", userID, ErrInvalidAmount)
	}
	return l.apply(tx, userID, amount, kind, ref, description)
}

// Debit removes amount from the user's wallet, failing with
// ErrInsufficientFunds rather than letting the balance go negative.
func (l *Ledger) Debit(tx *gorm.DB, userID string, amount int64, kind models.TransactionType, ref, description string) error {
	if amount <= 0 {
		return fmt.Errorf("debit %s: %w", userID, ErrInvalidAmount)
	}
	return l.apply(tx, userID, -amount, kind, ref, description)
}

// SweepToHouse credits an integer-division remainder to the house account.
// A zero remainder is a no-op.
func (l *Ledger) SweepToHouse(tx *gorm.DB, amount int64, ref, description string) error {
	if amount == 0 {
		return nil
	}
	if l.HouseUserID == "" {
		return fmt.Errorf("sweep %d for %s: house account not configured", amount, ref)
	}
	return l.Credit(tx, l.HouseUserID, amount, models.TxHouseSweep, ref, description)
}

func (l *Ledger) apply(tx *gorm.DB, userID string, delta int64, kind models.TransactionType, ref, description string) error {
	q := tx.Model(&models.User{}).Where("id = ?", userID)
	if delta < 0 {
		q = q.Where("wallet_balance >= ?", -delta)
	}
	res := q.Update("wallet_balance", gorm.Expr("wallet_balance + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("update wallet of %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
			return fmt.Errorf("lookup user %s: %w", userID, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return fmt.Errorf("%w: user %s needs %d", ErrInsufficientFunds, userID, -delta)
	}

	var balances []int64
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Pluck("wallet_balance", &balances).Error; err != nil {
		return fmt.Errorf("read wallet of %s: %w", userID, err)
	}
	var after int64
	if len(balances) > 0 {
		after = balances[0]
	}

	rec := models.LedgerTransaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Amount:       delta,
		BalanceAfter: after,
		Type:         kind,
		ReferenceID:  ref,
		Description:  description,
	}
	if err := tx.Create(&rec).Error; err != nil {
		return fmt.Errorf("record %s transaction for %s: %w", kind, userID, err)
	}
	return nil
}

// SplitEvenly divides total across n recipients. The remainder is returned
// separately so it can be swept rather than dropped.
func SplitEvenly(total int64, n int) (share, remainder int64) {
	if n <= 0 {
		return 0, total
	}
	return total / int64(n), total % int64(n)
}

// forUpdate takes a row lock on dialects that have one. SQLite serializes
// writers on the database lock instead and rejects FOR UPDATE.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// EnsureHouseAccount creates the house account if it does not exist yet and
// flags it as the sweep target.
func (l *Ledger) EnsureHouseAccount(db *gorm.DB) error {
	if l.HouseUserID == "" {
		return fmt.Errorf("house account not configured")
	}
	house := models.User{ID: l.HouseUserID, Username: "house", IsHouse: true}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"is_house": true}),
	}).Create(&house).Error
	if err != nil {
		return fmt.Errorf("ensure house account %s: %w", l.HouseUserID, err)
	}
	return nil
}
