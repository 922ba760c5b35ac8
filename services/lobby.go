package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"game-wager-system/models"
	"game-wager-system/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type LobbyService struct {
	DB       *gorm.DB
	Escrow   *EscrowService
	Ledger   *Ledger
	Notifier Notifier

	MinWager     int64
	IdleTimeout  time.Duration
	CodeAttempts int
	CodeBackoff  time.Duration

	NewCode func() string
	Now     func() time.Time
}

func NewLobbyService(db *gorm.DB, escrow *EscrowService) *LobbyService {
	return &LobbyService{
		DB:           db,
		Escrow:       escrow,
		Ledger:       escrow.Ledger,
		Notifier:     escrow.Notifier,
		MinWager:     1,
		IdleTimeout:  10 * time.Minute,
		CodeAttempts: 10,
		CodeBackoff:  50 * time.Millisecond,
		NewCode:      utils.RandomCode,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

type CreateLobbyCommand struct {
	CreatorID   string `json:"creator_id" validate:"required"`
	GameID      string `json:"game_id" validate:"required"`
	WagerAmount int64  `json:"wager_amount" validate:"gt=0"`
}

// CreateLobby stakes the creator's wager, opens the first escrow round and
// schedules the idle check, all in one transaction.
func (s *LobbyService) CreateLobby(ctx context.Context, cmd CreateLobbyCommand) (*models.Lobby, error) {
	if err := utils.ValidateStruct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var game models.Game
	if err := s.DB.WithContext(ctx).First(&game, "id = ?", cmd.GameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrGameNotFound, cmd.GameID)
		}
		return nil, err
	}
	minWager := s.MinWager
	if game.MinWager > minWager {
		minWager = game.MinWager
	}
	if cmd.WagerAmount < minWager {
		return nil, fmt.Errorf("%w: %d < %d", ErrWagerTooLow, cmd.WagerAmount, minWager)
	}

	now := s.Now()
	var lobby *models.Lobby
	code, err := s.insertWithCode(ctx, func(code string) error {
		lobby = &models.Lobby{
			ID:           uuid.NewString(),
			Code:         code,
			CreatorID:    cmd.CreatorID,
			GameID:       game.ID,
			WagerAmount:  cmd.WagerAmount,
			Participants: datatypes.NewJSONSlice([]string{cmd.CreatorID}),
			Winners:      datatypes.NewJSONSlice([]string{}),
			Active:       true,
		}
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(lobby).Error; err != nil {
				return fmt.Errorf("create lobby: %w", err)
			}
			if err := s.Ledger.Debit(tx, cmd.CreatorID, cmd.WagerAmount, models.TxWagerStake, lobby.ID,
				fmt.Sprintf("stake for lobby %s", code)); err != nil {
				return err
			}
			if _, err := s.Escrow.OpenEscrow(tx, lobby.ID, cmd.CreatorID, cmd.WagerAmount); err != nil {
				return err
			}
			return ScheduleJob(tx, models.JobLobbyIdleCheck, lobby.ID, now.Add(s.IdleTimeout))
		})
	})
	if err != nil {
		log.Printf("[LOBBY] ❌ create failed for %s: %v", cmd.CreatorID, err)
		return nil, err
	}

	log.Printf("[LOBBY] ✅ %s created lobby %s (%s, wager=%d)", cmd.CreatorID, code, game.Name, cmd.WagerAmount)
	return lobby, nil
}

func (s *LobbyService) insertWithCode(ctx context.Context, insert func(code string) error) (string, error) {
	return insertWithCode(ctx, s.DB, &models.Lobby{}, "code", s.CodeAttempts, s.CodeBackoff, s.NewCode, insert)
}

// insertWithCode draws codes unused in column and hands each to insert.
// A unique violation from insert means another writer took the code between
// the check and the insert; that costs one attempt. Attempts back off
// linearly.
func insertWithCode(ctx context.Context, db *gorm.DB, model interface{}, column string, attempts int, backoff time.Duration, newCode func() string, insert func(code string) error) (string, error) {
	for attempt := 1; attempt <= attempts; attempt++ {
		code := newCode()
		var count int64
		if err := db.WithContext(ctx).Model(model).Where(column+" = ?", code).Count(&count).Error; err != nil {
			return "", fmt.Errorf("check %s: %w", column, err)
		}
		if count == 0 {
			err := insert(code)
			if err == nil {
				return code, nil
			}
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return "", err
			}
			log.Printf("[CODE] ⚠️ %s %s taken during insert (attempt %d/%d)", column, code, attempt, attempts)
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * backoff):
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrCodeGenerationExhausted, attempts)
}

// JoinLobby adds userID to the lobby's open round.
func (s *LobbyService) JoinLobby(ctx context.Context, code, userID string) (*models.Lobby, error) {
	var lobby models.Lobby
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&lobby, "code = ?", code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: code %s", ErrLobbyNotFound, code)
			}
			return err
		}
		if !lobby.Open() {
			return fmt.Errorf("join lobby %s: %w", code, ErrLobbyNotActive)
		}
		if lobby.HasParticipant(userID) {
			return fmt.Errorf("join lobby %s: %w", code, ErrAlreadyParticipant)
		}

		var game models.Game
		if err := tx.First(&game, "id = ?", lobby.GameID).Error; err != nil {
			return fmt.Errorf("load game %s: %w", lobby.GameID, err)
		}
		if game.MaxPlayers > 0 && len(lobby.Participants) >= game.MaxPlayers {
			return fmt.Errorf("join lobby %s (%d/%d): %w", code, len(lobby.Participants), game.MaxPlayers, ErrLobbyFull)
		}

		_, count, err := latestEscrow(tx, lobby.ID)
		if err != nil {
			return err
		}
		if int(count) != lobby.NoOfGamesPlayed+1 {
			return fmt.Errorf("join lobby %s: round already running: %w", code, ErrRoundMismatch)
		}

		if err := s.Ledger.Debit(tx, userID, lobby.WagerAmount, models.TxWagerStake, lobby.ID,
			fmt.Sprintf("stake for lobby %s", code)); err != nil {
			return err
		}
		if _, err := s.Escrow.JoinEscrow(tx, lobby.ID, userID, lobby.WagerAmount); err != nil {
			return err
		}
		lobby.Participants = append(lobby.Participants, userID)
		return tx.Model(&lobby).Update("participants", lobby.Participants).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[LOBBY] %s joined lobby %s (%d players)", userID, code, len(lobby.Participants))
	return &lobby, nil
}

// StartGame acknowledges that a round has begun. Every participant must have
// staked the open round.
func (s *LobbyService) StartGame(ctx context.Context, lobbyID string) (*models.Lobby, error) {
	var lobby *models.Lobby
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		lobby, err = lockLobby(tx, lobbyID)
		if err != nil {
			return err
		}
		if !lobby.Open() {
			return fmt.Errorf("start lobby %s: %w", lobbyID, ErrLobbyNotActive)
		}
		if len(lobby.Participants) < 2 {
			return fmt.Errorf("start lobby %s: %w", lobbyID, ErrNotEnoughPlayers)
		}
		if lobby.InGame {
			return fmt.Errorf("start lobby %s: round already running: %w", lobbyID, ErrRoundMismatch)
		}
		escrow, count, err := latestEscrow(tx, lobbyID)
		if err != nil {
			return err
		}
		if int(count) != lobby.NoOfGamesPlayed+1 {
			return fmt.Errorf("start lobby %s: %d escrows vs %d games started: %w",
				lobbyID, count, lobby.NoOfGamesPlayed, ErrRoundMismatch)
		}
		for _, p := range lobby.Participants {
			if !escrow.HasPaid(p) {
				return fmt.Errorf("start lobby %s: %s has not staked round %d: %w", lobbyID, p, escrow.Round, ErrRoundMismatch)
			}
		}
		lobby.NoOfGamesPlayed++
		lobby.InGame = true
		return tx.Model(lobby).Updates(map[string]interface{}{
			"no_of_games_played": lobby.NoOfGamesPlayed,
			"in_game":            true,
		}).Error
	})
	if err != nil {
		log.Printf("[LOBBY] ❌ start rejected for %s: %v", lobbyID, err)
		return nil, err
	}
	log.Printf("[LOBBY] ▶️ lobby %s started game %d", lobby.Code, lobby.NoOfGamesPlayed)
	return lobby, nil
}

// Replay stakes userID for the next round. The first replayer after a
// settled round opens it; later replayers join it.
func (s *LobbyService) Replay(ctx context.Context, lobbyID, userID string) (*models.Escrow, error) {
	var escrow *models.Escrow
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lobby, err := lockLobby(tx, lobbyID)
		if err != nil {
			return err
		}
		if !lobby.Open() {
			return fmt.Errorf("replay lobby %s: %w", lobbyID, ErrLobbyNotActive)
		}
		if !lobby.HasParticipant(userID) {
			return fmt.Errorf("replay lobby %s: %w", lobbyID, ErrNotParticipant)
		}
		latest, count, err := latestEscrow(tx, lobbyID)
		if err != nil {
			return err
		}

		desc := fmt.Sprintf("replay stake for lobby %s", lobby.Code)
		switch {
		case int(count) == lobby.NoOfGamesPlayed && latest.PaidOut:
			if err := s.Ledger.Debit(tx, userID, lobby.WagerAmount, models.TxWagerStake, lobbyID, desc); err != nil {
				return err
			}
			escrow, err = s.Escrow.OpenEscrow(tx, lobbyID, userID, lobby.WagerAmount)
			return err
		case int(count) == lobby.NoOfGamesPlayed+1:
			if latest.HasPaid(userID) {
				return fmt.Errorf("replay lobby %s round %d: %w", lobbyID, latest.Round, ErrAlreadyReplayed)
			}
			if err := s.Ledger.Debit(tx, userID, lobby.WagerAmount, models.TxWagerStake, lobbyID, desc); err != nil {
				return err
			}
			escrow, err = s.Escrow.JoinEscrow(tx, lobbyID, userID, lobby.WagerAmount)
			return err
		default:
			return fmt.Errorf("replay lobby %s: round %d not settled: %w", lobbyID, latest.Round, ErrRoundMismatch)
		}
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[LOBBY] %s staked round %d of lobby %s", userID, escrow.Round, lobbyID)
	return escrow, nil
}

// CancelOutcome reports how a cancellation was settled.
type CancelOutcome string

const (
	CancelRefundedUnplayedRound CancelOutcome = "refunded_unplayed_round"
	CancelForfeited             CancelOutcome = "forfeited"
	CancelClosed                CancelOutcome = "closed"
)

type CancelResult struct {
	Outcome CancelOutcome `json:"outcome"`
	Refund  *RefundResult `json:"refund,omitempty"`
}

// CancelLobby closes the lobby on behalf of cancellingUserID. The latest
// escrow decides who is compensated:
//   - an unplayed round is refunded to everyone who staked it
//   - a running round is forfeited by the canceller and split among the rest
//   - a settled round leaves nothing to move
func (s *LobbyService) CancelLobby(ctx context.Context, lobbyID, cancellingUserID string) (*CancelResult, error) {
	result := &CancelResult{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lobby, err := lockLobby(tx, lobbyID)
		if err != nil {
			return err
		}
		if !lobby.Open() {
			return fmt.Errorf("cancel lobby %s: %w", lobbyID, ErrLobbyNotActive)
		}
		if !lobby.HasParticipant(cancellingUserID) {
			return fmt.Errorf("cancel lobby %s: %w", lobbyID, ErrNotParticipant)
		}
		escrow, count, err := latestEscrow(tx, lobbyID)
		if err != nil {
			return err
		}

		switch {
		case int(count) == lobby.NoOfGamesPlayed+1:
			result.Outcome = CancelRefundedUnplayedRound
			result.Refund, err = s.Escrow.Refund(tx, escrow, "", models.TxWagerRefund)
		case int(count) == lobby.NoOfGamesPlayed && !escrow.PaidOut:
			result.Outcome = CancelForfeited
			result.Refund, err = s.Escrow.Refund(tx, escrow, cancellingUserID, models.TxWagerForfeitShare)
		case int(count) == lobby.NoOfGamesPlayed && escrow.PaidOut:
			result.Outcome = CancelClosed
		default:
			err = fmt.Errorf("cancel lobby %s: %d escrows vs %d games started: %w",
				lobbyID, count, lobby.NoOfGamesPlayed, ErrRoundMismatch)
		}
		if err != nil {
			return err
		}

		now := s.Now()
		return tx.Model(lobby).Updates(map[string]interface{}{
			"active":    false,
			"in_game":   false,
			"closed_at": now,
		}).Error
	})
	if err != nil {
		log.Printf("[LOBBY] ❌ cancel rejected for %s: %v", lobbyID, err)
		return nil, err
	}

	log.Printf("[LOBBY] lobby %s cancelled by %s (%s)", lobbyID, cancellingUserID, result.Outcome)
	s.Escrow.notifyRefund(ctx, result.Refund)
	return result, nil
}

func (s *LobbyService) GetLobby(ctx context.Context, lobbyID string) (*models.Lobby, error) {
	var lobby models.Lobby
	if err := s.DB.WithContext(ctx).First(&lobby, "id = ?", lobbyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrLobbyNotFound, lobbyID)
		}
		return nil, err
	}
	return &lobby, nil
}

func (s *LobbyService) GetLobbyByCode(ctx context.Context, code string) (*models.Lobby, error) {
	var lobby models.Lobby
	if err := s.DB.WithContext(ctx).First(&lobby, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: code %s", ErrLobbyNotFound, code)
		}
		return nil, err
	}
	return &lobby, nil
}

// Escrows lists a lobby's rounds, newest first.
func (s *LobbyService) Escrows(ctx context.Context, lobbyID string) ([]models.Escrow, error) {
	var escrows []models.Escrow
	err := s.DB.WithContext(ctx).
		Where("lobby_id = ?", lobbyID).
		Order("round DESC").
		Find(&escrows).Error
	return escrows, err
}
