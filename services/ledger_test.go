package services

import (
	"testing"

	"game-wager-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestLedgerCreditAndDebitRecordTransactions(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, "alice", 1000)

	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := e.ledger.Debit(tx, "alice", 400, models.TxWagerStake, "lobby-1", "stake"); err != nil {
			return err
		}
		return e.ledger.Credit(tx, "alice", 150, models.TxWagerRefund, "lobby-1", "refund")
	})
	require.NoError(t, err)
	assert.Equal(t, int64(750), e.balance(t, "alice"))

	var txs []models.LedgerTransaction
	require.NoError(t, e.db.Where("user_id = ?", "alice").Order("balance_after DESC").Find(&txs).Error)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(-400), txs[1].Amount)
	assert.Equal(t, int64(600), txs[1].BalanceAfter)
	assert.Equal(t, models.TxWagerStake, txs[1].Type)
	assert.Equal(t, int64(150), txs[0].Amount)
	assert.Equal(t, int64(750), txs[0].BalanceAfter)
	assert.Equal(t, "lobby-1", txs[0].ReferenceID)
}

func TestLedgerDebitNeverOverdraws(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, "bob", 100)

	err := e.db.Transaction(func(tx *gorm.DB) error {
		return e.ledger.Debit(tx, "bob", 101, models.TxWagerStake, "lobby-1", "stake")
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(100), e.balance(t, "bob"))

	var count int64
	require.NoError(t, e.db.Model(&models.LedgerTransaction{}).Where("user_id = ?", "bob").Count(&count).Error)
	assert.Zero(t, count)
}

func TestLedgerRejectsBadInput(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, "carol", 100)

	err := e.db.Transaction(func(tx *gorm.DB) error {
		return e.ledger.Credit(tx, "nobody", 10, models.TxWagerRefund, "x", "")
	})
	assert.ErrorIs(t, err, ErrUserNotFound)

	err = e.db.Transaction(func(tx *gorm.DB) error {
		return e.ledger.Debit(tx, "carol", 0, models.TxWagerStake, "x", "")
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	err = e.db.Transaction(func(tx *gorm.DB) error {
		return e.ledger.Credit(tx, "carol", -5, models.TxWagerRefund, "x", "")
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, int64(100), e.balance(t, "carol"))
}

func TestLedgerRollsBackWithEnclosingTransaction(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, "dave", 500)

	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := e.ledger.Debit(tx, "dave", 200, models.TxWagerStake, "x", ""); err != nil {
			return err
		}
		return e.ledger.Debit(tx, "dave", 400, models.TxWagerStake, "x", "")
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(500), e.balance(t, "dave"))
}

func TestSweepToHouse(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.db.Transaction(func(tx *gorm.DB) error {
		if err := e.ledger.SweepToHouse(tx, 0, "x", "nothing"); err != nil {
			return err
		}
		return e.ledger.SweepToHouse(tx, 7, "x", "remainder")
	}))
	assert.Equal(t, int64(7), e.balance(t, houseID))

	unconfigured := NewLedger("")
	err := e.db.Transaction(func(tx *gorm.DB) error {
		return unconfigured.SweepToHouse(tx, 3, "x", "")
	})
	assert.Error(t, err)
}

func TestSplitEvenly(t *testing.T) {
	tests := []struct {
		total     int64
		n         int
		share     int64
		remainder int64
	}{
		{total: 20000, n: 2, share: 10000, remainder: 0},
		{total: 400, n: 3, share: 133, remainder: 1},
		{total: 5, n: 7, share: 0, remainder: 5},
		{total: 100, n: 0, share: 0, remainder: 100},
	}
	for _, tt := range tests {
		share, remainder := SplitEvenly(tt.total, tt.n)
		assert.Equal(t, tt.share, share, "share of %d/%d", tt.total, tt.n)
		assert.Equal(t, tt.remainder, remainder, "remainder of %d/%d", tt.total, tt.n)
		if tt.n > 0 {
			assert.Equal(t, tt.total, share*int64(tt.n)+remainder)
		}
	}
}
