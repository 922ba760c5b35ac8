package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"game-wager-system/models"

	"gorm.io/gorm"
)

// ReceiptArchiver stores a settlement receipt outside the database.
type ReceiptArchiver interface {
	ArchiveReceipt(ctx context.Context, key string, body []byte) error
}

// Standing is one player's record across a tournament's fixtures.
type Standing struct {
	UserID  string    `json:"user_id"`
	Wins    int       `json:"wins"`
	LastWin time.Time `json:"last_win"`
}

type PrizeAward struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Wins   int    `json:"wins"`
	Amount int64  `json:"amount"`
}

// SettlementReceipt records every movement made when a tournament settled.
type SettlementReceipt struct {
	TournamentID   string        `json:"tournament_id"`
	Slug           string        `json:"slug"`
	Started        bool          `json:"started"`
	Awards         []PrizeAward  `json:"awards,omitempty"`
	GateFeeRefunds []RefundShare `json:"gate_fee_refunds,omitempty"`
	CreatorID      string        `json:"creator_id"`
	CreatorPayout  int64         `json:"creator_payout"`
	HouseSweep     int64         `json:"house_sweep"`
	SettledAt      time.Time     `json:"settled_at"`
}

type SettlementService struct {
	DB       *gorm.DB
	Ledger   *Ledger
	Notifier Notifier
	Archiver ReceiptArchiver
	Now      func() time.Time
}

func NewSettlementService(db *gorm.DB, ledger *Ledger, notifier Notifier, archiver ReceiptArchiver) *SettlementService {
	return &SettlementService{
		DB:       db,
		Ledger:   ledger,
		Notifier: notifier,
		Archiver: archiver,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// RankStandings orders players by wins, then by who reached their final win
// first, then by id. Players without a win are left out.
func RankStandings(fixtures []models.TournamentFixture) []Standing {
	byUser := map[string]*Standing{}
	for _, f := range fixtures {
		if f.WinnerID == nil {
			continue
		}
		st, ok := byUser[*f.WinnerID]
		if !ok {
			st = &Standing{UserID: *f.WinnerID}
			byUser[*f.WinnerID] = st
		}
		st.Wins++
		if f.WonAt != nil && f.WonAt.After(st.LastWin) {
			st.LastWin = *f.WonAt
		}
	}

	standings := make([]Standing, 0, len(byUser))
	for _, st := range byUser {
		standings = append(standings, *st)
	}
	sort.Slice(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if !a.LastWin.Equal(b.LastWin) {
			return a.LastWin.Before(b.LastWin)
		}
		return a.UserID < b.UserID
	})
	return standings
}

// Settle pays out a tournament once its end date passes. A tournament that
// never started refunds everyone; a started one pays prizes by standing and
// hands the gate fees to the creator. Settling twice fails with
// ErrAlreadyPaidOut.
func (s *SettlementService) Settle(ctx context.Context, tournamentID string) (*SettlementReceipt, error) {
	var receipt *SettlementReceipt
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTournament(tx, tournamentID)
		if err != nil {
			return err
		}
		if t.Settled {
			return fmt.Errorf("settle %s: %w", tournamentID, ErrAlreadyPaidOut)
		}
		prizeEscrow, err := tournamentEscrow(tx, t.ID, true)
		if err != nil {
			return err
		}
		if prizeEscrow.PaidOut {
			return fmt.Errorf("settle %s: prize pool: %w", tournamentID, ErrAlreadyPaidOut)
		}
		gateEscrow, err := tournamentEscrow(tx, t.ID, false)
		if errors.Is(err, ErrEscrowNotFound) {
			gateEscrow, err = nil, nil
		}
		if err != nil {
			return err
		}
		if gateEscrow != nil && gateEscrow.PaidOut {
			return fmt.Errorf("settle %s: gate fees: %w", tournamentID, ErrAlreadyPaidOut)
		}

		now := s.Now()
		receipt = &SettlementReceipt{
			TournamentID: t.ID,
			Slug:         t.Slug,
			Started:      t.HasStarted,
			CreatorID:    t.CreatorID,
			SettledAt:    now,
		}
		if t.HasStarted {
			err = s.payWinners(tx, t, prizeEscrow, gateEscrow, receipt)
		} else {
			err = s.refundAll(tx, t, prizeEscrow, gateEscrow, receipt)
		}
		if err != nil {
			return err
		}

		if err := markTournamentEscrowPaid(tx, prizeEscrow, now); err != nil {
			return err
		}
		if gateEscrow != nil {
			if err := markTournamentEscrowPaid(tx, gateEscrow, now); err != nil {
				return err
			}
		}
		res := tx.Model(&models.Tournament{}).
			Where("id = ? AND settled = ?", t.ID, false).
			Updates(map[string]interface{}{"settled": true, "settled_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("settle %s: %w", tournamentID, ErrAlreadyPaidOut)
		}
		return nil
	})
	if err != nil {
		log.Printf("[SETTLEMENT] ❌ tournament %s: %v", tournamentID, err)
		return nil, err
	}

	log.Printf("[SETTLEMENT] ✅ tournament %s settled (started=%t, awards=%d, creator=%d)",
		receipt.Slug, receipt.Started, len(receipt.Awards), receipt.CreatorPayout)
	s.announce(ctx, receipt)
	s.archive(ctx, receipt)
	return receipt, nil
}

func (s *SettlementService) payWinners(tx *gorm.DB, t *models.Tournament, prizeEscrow, gateEscrow *models.TournamentEscrow, receipt *SettlementReceipt) error {
	var fixtures []models.TournamentFixture
	if err := tx.Where("tournament_id = ? AND winner_id IS NOT NULL", t.ID).Find(&fixtures).Error; err != nil {
		return fmt.Errorf("load fixtures: %w", err)
	}
	standings := RankStandings(fixtures)

	var awarded int64
	for i, prize := range t.Prizes {
		if i >= len(standings) {
			break
		}
		st := standings[i]
		if err := s.Ledger.Credit(tx, st.UserID, prize, models.TxTournamentPrize, t.ID,
			fmt.Sprintf("#%d in %s", i+1, t.Name)); err != nil {
			return err
		}
		awarded += prize
		receipt.Awards = append(receipt.Awards, PrizeAward{Rank: i + 1, UserID: st.UserID, Wins: st.Wins, Amount: prize})
	}

	if unallocated := prizeEscrow.TotalAmount - awarded; unallocated > 0 {
		if err := s.Ledger.Credit(tx, t.CreatorID, unallocated, models.TxTournamentRefund, t.ID,
			fmt.Sprintf("unawarded prizes of %s", t.Name)); err != nil {
			return err
		}
		receipt.CreatorPayout += unallocated
	}
	if gateEscrow != nil && gateEscrow.TotalAmount > 0 {
		if err := s.Ledger.Credit(tx, t.CreatorID, gateEscrow.TotalAmount, models.TxTournamentGateFeePayout, t.ID,
			fmt.Sprintf("gate fees of %s", t.Name)); err != nil {
			return err
		}
		receipt.CreatorPayout += gateEscrow.TotalAmount
	}
	return nil
}

func (s *SettlementService) refundAll(tx *gorm.DB, t *models.Tournament, prizeEscrow, gateEscrow *models.TournamentEscrow, receipt *SettlementReceipt) error {
	if gateEscrow != nil && len(gateEscrow.PlayersThatHavePaid) > 0 {
		share, remainder := SplitEvenly(gateEscrow.TotalAmount, len(gateEscrow.PlayersThatHavePaid))
		for _, userID := range gateEscrow.PlayersThatHavePaid {
			if share > 0 {
				if err := s.Ledger.Credit(tx, userID, share, models.TxTournamentRefund, t.ID,
					fmt.Sprintf("gate fee refund for %s", t.Name)); err != nil {
					return err
				}
			}
			receipt.GateFeeRefunds = append(receipt.GateFeeRefunds, RefundShare{UserID: userID, Amount: share})
		}
		if err := s.Ledger.SweepToHouse(tx, remainder, t.ID, fmt.Sprintf("gate fee remainder of %s", t.Name)); err != nil {
			return err
		}
		receipt.HouseSweep = remainder
	}
	if prizeEscrow.TotalAmount > 0 {
		if err := s.Ledger.Credit(tx, t.CreatorID, prizeEscrow.TotalAmount, models.TxTournamentRefund, t.ID,
			fmt.Sprintf("prize pool refund for %s", t.Name)); err != nil {
			return err
		}
		receipt.CreatorPayout = prizeEscrow.TotalAmount
	}
	return nil
}

func markTournamentEscrowPaid(tx *gorm.DB, escrow *models.TournamentEscrow, now time.Time) error {
	res := tx.Model(&models.TournamentEscrow{}).
		Where("id = ? AND paid_out = ?", escrow.ID, false).
		Updates(map[string]interface{}{"paid_out": true, "paid_out_at": now})
	if res.Error != nil {
		return fmt.Errorf("mark tournament escrow %s paid: %w", escrow.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("tournament escrow %s: %w", escrow.ID, ErrAlreadyPaidOut)
	}
	escrow.PaidOut = true
	escrow.PaidOutAt = &now
	return nil
}

func (s *SettlementService) announce(ctx context.Context, receipt *SettlementReceipt) {
	for _, a := range receipt.Awards {
		s.Notifier.NotifyUser(ctx, a.UserID,
			fmt.Sprintf("You finished #%d in %s and won %s!", a.Rank, receipt.Slug, FormatAmount(a.Amount)))
	}
	for _, r := range receipt.GateFeeRefunds {
		s.Notifier.NotifyUser(ctx, r.UserID,
			fmt.Sprintf("%s never started. %s has been refunded.", receipt.Slug, FormatAmount(r.Amount)))
	}
	if receipt.CreatorPayout > 0 {
		s.Notifier.NotifyUser(ctx, receipt.CreatorID,
			fmt.Sprintf("%s has settled. %s has been credited to your wallet.", receipt.Slug, FormatAmount(receipt.CreatorPayout)))
	}
}

func (s *SettlementService) archive(ctx context.Context, receipt *SettlementReceipt) {
	if s.Archiver == nil {
		return
	}
	body, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		log.Printf("[SETTLEMENT] ⚠️ encode receipt for %s: %v", receipt.Slug, err)
		return
	}
	key := fmt.Sprintf("settlements/%s.json", receipt.Slug)
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := s.Archiver.ArchiveReceipt(ctx, key, body); err != nil {
			log.Printf("[SETTLEMENT] ⚠️ archive %s: %v", key, err)
		}
	}()
}
