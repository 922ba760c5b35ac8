package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"game-wager-system/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EscrowService holds a lobby's stakes round by round and releases them
// exactly once, either to a winner or back to the payers.
type EscrowService struct {
	DB       *gorm.DB
	Ledger   *Ledger
	Notifier Notifier
	Now      func() time.Time
}

func NewEscrowService(db *gorm.DB, ledger *Ledger, notifier Notifier) *EscrowService {
	return &EscrowService{
		DB:       db,
		Ledger:   ledger,
		Notifier: notifier,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// RefundShare is one recipient's slice of a refunded escrow.
type RefundShare struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

// RefundResult describes where a refunded escrow's money went.
type RefundResult struct {
	EscrowID   string        `json:"escrow_id"`
	Shares     []RefundShare `json:"shares"`
	HouseSweep int64         `json:"house_sweep"`
}

// OpenEscrow starts a new round for the lobby with the payer's stake.
// The stake must already have been debited in the same transaction.
func (s *EscrowService) OpenEscrow(tx *gorm.DB, lobbyID, payerID string, stake int64) (*models.Escrow, error) {
	if stake <= 0 {
		return nil, ErrInvalidAmount
	}
	var rounds int64
	if err := tx.Model(&models.Escrow{}).Where("lobby_id = ?", lobbyID).Count(&rounds).Error; err != nil {
		return nil, fmt.Errorf("count escrows for lobby %s: %w", lobbyID, err)
	}
	escrow := &models.Escrow{
		ID:                  uuid.NewString(),
		LobbyID:             lobbyID,
		Round:               int(rounds) + 1,
		TotalAmount:         stake,
		PlayersThatHavePaid: datatypes.NewJSONSlice([]string{payerID}),
	}
	if err := tx.Create(escrow).Error; err != nil {
		return nil, fmt.Errorf("open escrow round %d for lobby %s: %w", escrow.Round, lobbyID, err)
	}
	log.Printf("[ESCROW] opened round %d for lobby %s (payer=%s, stake=%d)", escrow.Round, lobbyID, payerID, stake)
	return escrow, nil
}

// JoinEscrow adds the payer's stake to the lobby's latest escrow.
func (s *EscrowService) JoinEscrow(tx *gorm.DB, lobbyID, payerID string, stake int64) (*models.Escrow, error) {
	if stake <= 0 {
		return nil, ErrInvalidAmount
	}
	escrow, _, err := latestEscrow(tx, lobbyID)
	if err != nil {
		return nil, err
	}
	if escrow.PaidOut {
		return nil, fmt.Errorf("join escrow %s: %w", escrow.ID, ErrAlreadyPaidOut)
	}
	if escrow.HasPaid(payerID) {
		return nil, fmt.Errorf("join escrow %s: %w", escrow.ID, ErrAlreadyReplayed)
	}
	escrow.TotalAmount += stake
	escrow.PlayersThatHavePaid = append(escrow.PlayersThatHavePaid, payerID)
	if err := tx.Model(escrow).Updates(map[string]interface{}{
		"total_amount":           escrow.TotalAmount,
		"players_that_have_paid": escrow.PlayersThatHavePaid,
	}).Error; err != nil {
		return nil, fmt.Errorf("join escrow %s: %w", escrow.ID, err)
	}
	return escrow, nil
}

// Payout releases the latest round's pool to the winner. Redelivered win
// notifications fail with ErrAlreadyPaidOut and move no money.
func (s *EscrowService) Payout(ctx context.Context, lobbyID, winnerID string) (*models.Escrow, error) {
	var escrow *models.Escrow
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lobby, err := lockLobby(tx, lobbyID)
		if err != nil {
			return err
		}
		var count int64
		escrow, count, err = latestEscrow(tx, lobbyID)
		if err != nil {
			return err
		}
		if escrow.PaidOut {
			return fmt.Errorf("payout lobby %s round %d: %w", lobbyID, escrow.Round, ErrAlreadyPaidOut)
		}
		if int(count) != lobby.NoOfGamesPlayed {
			return fmt.Errorf("payout lobby %s: %d escrows vs %d games started: %w",
				lobbyID, count, lobby.NoOfGamesPlayed, ErrRoundMismatch)
		}
		if !lobby.HasParticipant(winnerID) {
			return fmt.Errorf("payout lobby %s to %s: %w", lobbyID, winnerID, ErrNotParticipant)
		}

		if err := s.Ledger.Credit(tx, winnerID, escrow.TotalAmount, models.TxWagerPayout, lobbyID,
			fmt.Sprintf("won round %d of lobby %s", escrow.Round, lobby.Code)); err != nil {
			return err
		}
		winners := append(lobby.Winners, winnerID)
		if err := tx.Model(lobby).Updates(map[string]interface{}{
			"winners": datatypes.NewJSONSlice(winners),
			"in_game": false,
		}).Error; err != nil {
			return fmt.Errorf("record winner for lobby %s: %w", lobbyID, err)
		}
		return s.markPaid(tx, escrow)
	})
	if err != nil {
		log.Printf("[ESCROW] ❌ payout for lobby %s rejected: %v", lobbyID, err)
		return nil, err
	}

	log.Printf("[ESCROW] ✅ paid %d to %s for lobby %s round %d", escrow.TotalAmount, winnerID, lobbyID, escrow.Round)
	s.Notifier.NotifyUser(ctx, winnerID, fmt.Sprintf("You won %s!", FormatAmount(escrow.TotalAmount)))
	return escrow, nil
}

// RefundLobby returns the latest round's stakes to every payer and marks the
// lobby dead.
func (s *EscrowService) RefundLobby(ctx context.Context, lobbyID string) (*RefundResult, error) {
	var result *RefundResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lobby, err := lockLobby(tx, lobbyID)
		if err != nil {
			return err
		}
		escrow, _, err := latestEscrow(tx, lobbyID)
		if err != nil {
			return err
		}
		result, err = s.Refund(tx, escrow, "", models.TxWagerRefund)
		if err != nil {
			return err
		}
		return s.killLobby(tx, lobby)
	})
	if err != nil {
		return nil, err
	}
	s.notifyRefund(ctx, result)
	return result, nil
}

// Refund splits the escrow evenly among its payers, skipping excludedID when
// set. The integer-division remainder goes to the house account.
func (s *EscrowService) Refund(tx *gorm.DB, escrow *models.Escrow, excludedID string, kind models.TransactionType) (*RefundResult, error) {
	if escrow.PaidOut {
		return nil, fmt.Errorf("refund escrow %s: %w", escrow.ID, ErrAlreadyPaidOut)
	}
	recipients := make([]string, 0, len(escrow.PlayersThatHavePaid))
	for _, p := range escrow.PlayersThatHavePaid {
		if p != excludedID {
			recipients = append(recipients, p)
		}
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("refund escrow %s: %w", escrow.ID, ErrNothingToRefund)
	}

	share, remainder := SplitEvenly(escrow.TotalAmount, len(recipients))
	result := &RefundResult{EscrowID: escrow.ID, HouseSweep: remainder}
	for _, userID := range recipients {
		if share > 0 {
			if err := s.Ledger.Credit(tx, userID, share, kind, escrow.LobbyID,
				fmt.Sprintf("refund of round %d", escrow.Round)); err != nil {
				return nil, err
			}
		}
		result.Shares = append(result.Shares, RefundShare{UserID: userID, Amount: share})
	}
	if err := s.Ledger.SweepToHouse(tx, remainder, escrow.LobbyID,
		fmt.Sprintf("split remainder of round %d", escrow.Round)); err != nil {
		return nil, err
	}
	if err := s.markPaid(tx, escrow); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *EscrowService) markPaid(tx *gorm.DB, escrow *models.Escrow) error {
	now := s.Now()
	res := tx.Model(&models.Escrow{}).
		Where("id = ? AND paid_out = ?", escrow.ID, false).
		Updates(map[string]interface{}{"paid_out": true, "paid_out_at": now})
	if res.Error != nil {
		return fmt.Errorf("mark escrow %s paid: %w", escrow.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark escrow %s paid: %w", escrow.ID, ErrAlreadyPaidOut)
	}
	escrow.PaidOut = true
	escrow.PaidOutAt = &now
	return nil
}

func (s *EscrowService) killLobby(tx *gorm.DB, lobby *models.Lobby) error {
	now := s.Now()
	if err := tx.Model(lobby).Updates(map[string]interface{}{
		"dead":      true,
		"active":    false,
		"in_game":   false,
		"closed_at": now,
	}).Error; err != nil {
		return fmt.Errorf("mark lobby %s dead: %w", lobby.ID, err)
	}
	lobby.Dead, lobby.Active, lobby.InGame, lobby.ClosedAt = true, false, false, &now
	return nil
}

func (s *EscrowService) notifyRefund(ctx context.Context, result *RefundResult) {
	if result == nil {
		return
	}
	for _, share := range result.Shares {
		s.Notifier.NotifyUser(ctx, share.UserID, fmt.Sprintf("%s has been refunded to your wallet.", FormatAmount(share.Amount)))
	}
}

// latestEscrow returns the newest round for the lobby and how many rounds
// exist in total. Round order, not wall-clock order, decides "latest".
func latestEscrow(tx *gorm.DB, lobbyID string) (*models.Escrow, int64, error) {
	var count int64
	if err := tx.Model(&models.Escrow{}).Where("lobby_id = ?", lobbyID).Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("count escrows for lobby %s: %w", lobbyID, err)
	}
	var escrow models.Escrow
	err := forUpdate(tx).
		Where("lobby_id = ?", lobbyID).
		Order("round DESC").Order("created_at DESC").
		First(&escrow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, fmt.Errorf("lobby %s: %w", lobbyID, ErrEscrowNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load escrow for lobby %s: %w", lobbyID, err)
	}
	return &escrow, count, nil
}

func lockLobby(tx *gorm.DB, lobbyID string) (*models.Lobby, error) {
	var lobby models.Lobby
	err := forUpdate(tx).First(&lobby, "id = ?", lobbyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrLobbyNotFound, lobbyID)
	}
	if err != nil {
		return nil, fmt.Errorf("load lobby %s: %w", lobbyID, err)
	}
	return &lobby, nil
}
