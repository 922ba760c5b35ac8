package models

import "time"

// TransactionType classifies a ledger row.
type TransactionType string

const (
	TxWagerStake              TransactionType = "wager_stake"
	TxWagerPayout             TransactionType = "wager_payout"
	TxWagerRefund             TransactionType = "wager_refund"
	TxWagerForfeitShare       TransactionType = "wager_forfeit_share"
	TxHouseSweep              TransactionType = "house_sweep"
	TxTournamentGateFee       TransactionType = "tournament_gate_fee"
	TxTournamentPrizeDeposit  TransactionType = "tournament_prize_deposit"
	TxTournamentPrize         TransactionType = "tournament_prize"
	TxTournamentGateFeePayout TransactionType = "tournament_gate_fee_payout"
	TxTournamentRefund        TransactionType = "tournament_refund"
)

// LedgerTransaction is the immutable audit row written next to every wallet
// mutation. Amount is signed: credits are positive, debits negative.
type LedgerTransaction struct {
	ID           string          `json:"id" gorm:"primaryKey"`
	UserID       string          `json:"user_id" gorm:"index;not null"`
	Amount       int64           `json:"amount" gorm:"not null"`
	BalanceAfter int64           `json:"balance_after" gorm:"not null"`
	Type         TransactionType `json:"type" gorm:"type:varchar(32);not null;index"`
	ReferenceID  string          `json:"reference_id" gorm:"index"` // lobby or tournament id
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at" gorm:"autoCreateTime"`
}
