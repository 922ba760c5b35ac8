package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"game-wager-system/models"
	"game-wager-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameService manages the catalog of wagerable game types.
type GameService struct {
	DB *gorm.DB
}

func NewGameService(db *gorm.DB) *GameService {
	return &GameService{DB: db}
}

type UpsertGameCommand struct {
	Name       string `json:"name" validate:"required,max=60"`
	Namespace  string `json:"namespace" validate:"required,max=32"`
	MinPlayers int    `json:"min_players" validate:"min=2"`
	MaxPlayers int    `json:"max_players" validate:"gtefield=MinPlayers"`
	MinWager   int64  `json:"min_wager" validate:"gte=0"`
}

// UpsertGame creates a game or updates the one with the same namespace.
func (s *GameService) UpsertGame(ctx context.Context, cmd UpsertGameCommand) (*models.Game, error) {
	if err := utils.ValidateStruct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	game := &models.Game{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(cmd.Name),
		Namespace:  strings.ToLower(strings.TrimSpace(cmd.Namespace)),
		MinPlayers: cmd.MinPlayers,
		MaxPlayers: cmd.MaxPlayers,
		MinWager:   cmd.MinWager,
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "min_players", "max_players", "min_wager", "updated_at"}),
	}).Create(game).Error
	if err != nil {
		return nil, fmt.Errorf("upsert game %s: %w", cmd.Namespace, err)
	}
	// the conflict path keeps the stored id
	var saved models.Game
	if err := s.DB.WithContext(ctx).First(&saved, "namespace = ?", game.Namespace).Error; err != nil {
		return nil, err
	}
	game = &saved
	log.Printf("🎮 Game %s (%s) saved: %d-%d players, min wager %d",
		game.Name, game.Namespace, game.MinPlayers, game.MaxPlayers, game.MinWager)
	return game, nil
}

func (s *GameService) ListGames(ctx context.Context) ([]models.Game, error) {
	var games []models.Game
	err := s.DB.WithContext(ctx).Order("name ASC").Find(&games).Error
	return games, err
}

func (s *GameService) GetGame(ctx context.Context, id string) (*models.Game, error) {
	var game models.Game
	if err := s.DB.WithContext(ctx).First(&game, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
		}
		return nil, err
	}
	return &game, nil
}
