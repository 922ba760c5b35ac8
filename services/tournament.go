package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"game-wager-system/models"
	"game-wager-system/utils"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TournamentService struct {
	DB       *gorm.DB
	Ledger   *Ledger
	Notifier Notifier

	CodeAttempts int
	CodeBackoff  time.Duration
	NewCode      func() string
	Now          func() time.Time
}

func NewTournamentService(db *gorm.DB, ledger *Ledger, notifier Notifier) *TournamentService {
	return &TournamentService{
		DB:           db,
		Ledger:       ledger,
		Notifier:     notifier,
		CodeAttempts: 10,
		CodeBackoff:  50 * time.Millisecond,
		NewCode:      utils.RandomCode,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

type CreateTournamentCommand struct {
	CreatorID            string    `json:"creator_id" validate:"required"`
	GameID               string    `json:"game_id" validate:"required"`
	Name                 string    `json:"name" validate:"required,max=80"`
	NoOfGamesToPlay      int       `json:"no_of_games_to_play" validate:"min=1"`
	NoOfWinners          int       `json:"no_of_winners" validate:"min=1"`
	HasGateFee           bool      `json:"has_gate_fee"`
	GateFee              int64     `json:"gate_fee" validate:"gte=0"`
	RegistrationDeadline time.Time `json:"registration_deadline" validate:"required"`
	EndDate              time.Time `json:"end_date" validate:"required,gtfield=RegistrationDeadline"`
}

// CreateTournament stores a draft tournament. It accepts players only once
// SetPrizes has funded the prize pool.
func (s *TournamentService) CreateTournament(ctx context.Context, cmd CreateTournamentCommand) (*models.Tournament, error) {
	if err := utils.ValidateStruct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if cmd.HasGateFee && cmd.GateFee <= 0 {
		return nil, fmt.Errorf("gate fee: %w", ErrInvalidAmount)
	}
	if !cmd.HasGateFee {
		cmd.GateFee = 0
	}

	var game models.Game
	if err := s.DB.WithContext(ctx).First(&game, "id = ?", cmd.GameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrGameNotFound, cmd.GameID)
		}
		return nil, err
	}

	var t *models.Tournament
	_, err := insertWithCode(ctx, s.DB, &models.Tournament{}, "joining_code", s.CodeAttempts, s.CodeBackoff, s.NewCode, func(code string) error {
		t = &models.Tournament{
			ID:                   uuid.NewString(),
			Slug:                 slug.Make(cmd.Name) + "-" + strings.ToLower(code),
			Name:                 strings.TrimSpace(cmd.Name),
			CreatorID:            cmd.CreatorID,
			GameID:               game.ID,
			JoiningCode:          code,
			Participants:         datatypes.NewJSONSlice([]string{}),
			NoOfGamesToPlay:      cmd.NoOfGamesToPlay,
			NoOfWinners:          cmd.NoOfWinners,
			Prizes:               datatypes.NewJSONSlice([]int64{}),
			HasGateFee:           cmd.HasGateFee,
			GateFee:              cmd.GateFee,
			RegistrationDeadline: cmd.RegistrationDeadline.UTC(),
			EndDate:              cmd.EndDate.UTC(),
		}
		if err := s.DB.WithContext(ctx).Create(t).Error; err != nil {
			return fmt.Errorf("create tournament: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[TOURNAMENT] 🏆 %s created tournament %q (%s)", cmd.CreatorID, t.Name, t.Slug)
	return t, nil
}

// SetPrizes funds the prize pool from the creator's wallet and schedules
// settlement for the tournament's end date.
func (s *TournamentService) SetPrizes(ctx context.Context, tournamentID, creatorID string, prizes []int64) (*models.Tournament, error) {
	var t *models.Tournament
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		t, err = lockTournament(tx, tournamentID)
		if err != nil {
			return err
		}
		if t.CreatorID != creatorID {
			return fmt.Errorf("set prizes for %s: %w", tournamentID, ErrNotCreator)
		}
		if t.FullyCreated() {
			return fmt.Errorf("set prizes for %s: prizes already set: %w", tournamentID, ErrInvalidPrizes)
		}
		if len(prizes) != t.NoOfWinners {
			return fmt.Errorf("set prizes for %s: %d prizes for %d winners: %w", tournamentID, len(prizes), t.NoOfWinners, ErrInvalidPrizes)
		}
		for _, p := range prizes {
			if p <= 0 {
				return fmt.Errorf("set prizes for %s: %w", tournamentID, ErrInvalidAmount)
			}
		}

		t.Prizes = datatypes.NewJSONSlice(prizes)
		pool := t.PrizePool()
		if err := s.Ledger.Debit(tx, creatorID, pool, models.TxTournamentPrizeDeposit, t.ID,
			fmt.Sprintf("prize pool for %s", t.Name)); err != nil {
			return err
		}
		escrow := &models.TournamentEscrow{
			ID:                  uuid.NewString(),
			TournamentID:        t.ID,
			IsPrize:             true,
			TotalAmount:         pool,
			PlayersThatHavePaid: datatypes.NewJSONSlice([]string{creatorID}),
		}
		if err := tx.Create(escrow).Error; err != nil {
			return fmt.Errorf("create prize escrow: %w", err)
		}
		if err := tx.Model(t).Update("prizes", t.Prizes).Error; err != nil {
			return fmt.Errorf("save prizes: %w", err)
		}
		return ScheduleJob(tx, models.JobTournamentSettlement, t.ID, t.EndDate)
	})
	if err != nil {
		return nil, err
	}
	t.IsFullyCreated = t.FullyCreated()
	log.Printf("[TOURNAMENT] prizes set for %s: %v", t.Slug, []int64(t.Prizes))
	return t, nil
}

// JoinTournament registers userID, collecting the gate fee when there is one.
func (s *TournamentService) JoinTournament(ctx context.Context, tournamentID, userID string) (*models.Tournament, error) {
	var t *models.Tournament
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		t, err = lockTournament(tx, tournamentID)
		if err != nil {
			return err
		}
		if !t.FullyCreated() {
			return fmt.Errorf("join %s: %w", tournamentID, ErrTournamentNotReady)
		}
		if t.HasStarted {
			return fmt.Errorf("join %s: %w", tournamentID, ErrTournamentAlreadyStarted)
		}
		if t.Settled {
			return fmt.Errorf("join %s: %w", tournamentID, ErrTournamentClosed)
		}
		if !s.Now().Before(t.RegistrationDeadline) {
			return fmt.Errorf("join %s: %w", tournamentID, ErrRegistrationClosed)
		}
		if t.HasParticipant(userID) {
			return fmt.Errorf("join %s: %w", tournamentID, ErrAlreadyParticipant)
		}

		if t.HasGateFee {
			if err := s.Ledger.Debit(tx, userID, t.GateFee, models.TxTournamentGateFee, t.ID,
				fmt.Sprintf("gate fee for %s", t.Name)); err != nil {
				return err
			}
			if err := collectGateFee(tx, t.ID, userID, t.GateFee); err != nil {
				return err
			}
		}
		t.Participants = append(t.Participants, userID)
		return tx.Model(t).Update("participants", t.Participants).Error
	})
	if err != nil {
		return nil, err
	}
	t.IsFullyCreated = true
	log.Printf("[TOURNAMENT] %s joined %s (%d players)", userID, t.Slug, len(t.Participants))
	return t, nil
}

func collectGateFee(tx *gorm.DB, tournamentID, userID string, fee int64) error {
	escrow, err := tournamentEscrow(tx, tournamentID, false)
	if errors.Is(err, ErrEscrowNotFound) {
		return tx.Create(&models.TournamentEscrow{
			ID:                  uuid.NewString(),
			TournamentID:        tournamentID,
			TotalAmount:         fee,
			PlayersThatHavePaid: datatypes.NewJSONSlice([]string{userID}),
		}).Error
	}
	if err != nil {
		return err
	}
	escrow.PlayersThatHavePaid = append(escrow.PlayersThatHavePaid, userID)
	return tx.Model(escrow).Updates(map[string]interface{}{
		"total_amount":           gorm.Expr("total_amount + ?", fee),
		"players_that_have_paid": escrow.PlayersThatHavePaid,
	}).Error
}

// StartTournament closes registration and writes every fixture.
func (s *TournamentService) StartTournament(ctx context.Context, tournamentID, requesterID string) ([]models.TournamentFixture, error) {
	var fixtures []models.TournamentFixture
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTournament(tx, tournamentID)
		if err != nil {
			return err
		}
		if t.CreatorID != requesterID {
			return fmt.Errorf("start %s: %w", tournamentID, ErrNotCreator)
		}
		if t.HasStarted {
			return fmt.Errorf("start %s: %w", tournamentID, ErrTournamentAlreadyStarted)
		}
		if t.Settled || !s.Now().Before(t.EndDate) {
			return fmt.Errorf("start %s: %w", tournamentID, ErrTournamentClosed)
		}
		if !t.FullyCreated() {
			return fmt.Errorf("start %s: %w", tournamentID, ErrTournamentNotReady)
		}
		if len(t.Participants) < 2 {
			return fmt.Errorf("start %s: %w", tournamentID, ErrNotEnoughPlayers)
		}

		pairings, err := GenerateFixtures(t.Participants, t.NoOfGamesToPlay)
		if err != nil {
			return err
		}
		seat := 0
		for i, p := range pairings {
			if i > 0 && p.Round != pairings[i-1].Round {
				seat = 0
			}
			seat++
			fixtures = append(fixtures, models.TournamentFixture{
				ID:           uuid.NewString(),
				TournamentID: t.ID,
				Round:        p.Round,
				Seat:         seat,
				JoiningCode:  p.JoiningCode,
				Players:      datatypes.NewJSONSlice(p.Players[:]),
			})
		}
		if err := tx.CreateInBatches(fixtures, 100).Error; err != nil {
			return fmt.Errorf("insert fixtures: %w", err)
		}

		res := tx.Model(&models.Tournament{}).
			Where("id = ? AND has_started = ?", t.ID, false).
			Updates(map[string]interface{}{"has_started": true, "started_at": s.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("start %s: %w", tournamentID, ErrTournamentAlreadyStarted)
		}
		return nil
	})
	if err != nil {
		log.Printf("[TOURNAMENT] ❌ start rejected for %s: %v", tournamentID, err)
		return nil, err
	}
	log.Printf("[TOURNAMENT] ▶️ %s started with %d fixtures", tournamentID, len(fixtures))
	return fixtures, nil
}

// RecordFixtureWinner stores the result of one fixture. A result is final.
func (s *TournamentService) RecordFixtureWinner(ctx context.Context, fixtureID, winnerID string) (*models.TournamentFixture, error) {
	var fixture models.TournamentFixture
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&fixture, "id = ?", fixtureID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrFixtureNotFound, fixtureID)
			}
			return err
		}
		if fixture.WinnerID != nil {
			return fmt.Errorf("fixture %s: %w", fixtureID, ErrFixtureAlreadyDecided)
		}
		if !fixture.HasPlayer(winnerID) {
			return fmt.Errorf("fixture %s: %w", fixtureID, ErrNotParticipant)
		}

		var settled []bool
		if err := tx.Model(&models.Tournament{}).Where("id = ?", fixture.TournamentID).
			Pluck("settled", &settled).Error; err != nil {
			return err
		}
		if len(settled) == 1 && settled[0] {
			return fmt.Errorf("fixture %s: tournament settled: %w", fixtureID, ErrAlreadyPaidOut)
		}

		now := s.Now()
		res := tx.Model(&models.TournamentFixture{}).
			Where("id = ? AND winner_id IS NULL", fixtureID).
			Updates(map[string]interface{}{"winner_id": winnerID, "won_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("fixture %s: %w", fixtureID, ErrFixtureAlreadyDecided)
		}
		fixture.WinnerID = &winnerID
		fixture.WonAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[TOURNAMENT] fixture %s (round %d) won by %s", fixtureID, fixture.Round, winnerID)
	return &fixture, nil
}

func (s *TournamentService) GetTournament(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	var t models.Tournament
	if err := s.DB.WithContext(ctx).First(&t, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTournamentNotFound, tournamentID)
		}
		return nil, err
	}
	t.IsFullyCreated = t.FullyCreated()
	return &t, nil
}

func (s *TournamentService) ListFixtures(ctx context.Context, tournamentID string) ([]models.TournamentFixture, error) {
	var fixtures []models.TournamentFixture
	err := s.DB.WithContext(ctx).
		Where("tournament_id = ?", tournamentID).
		Order("round ASC").Order("seat ASC").
		Find(&fixtures).Error
	return fixtures, err
}

func lockTournament(tx *gorm.DB, tournamentID string) (*models.Tournament, error) {
	var t models.Tournament
	err := forUpdate(tx).First(&t, "id = ?", tournamentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTournamentNotFound, tournamentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load tournament %s: %w", tournamentID, err)
	}
	return &t, nil
}

func tournamentEscrow(tx *gorm.DB, tournamentID string, isPrize bool) (*models.TournamentEscrow, error) {
	var escrow models.TournamentEscrow
	err := forUpdate(tx).
		Where("tournament_id = ? AND is_prize = ?", tournamentID, isPrize).
		First(&escrow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("tournament %s (prize=%t): %w", tournamentID, isPrize, ErrEscrowNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load tournament escrow: %w", err)
	}
	return &escrow, nil
}
