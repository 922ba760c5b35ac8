package models

import (
	"time"

	"gorm.io/datatypes"
)

// Tournament is a fixture-based knockout-free competition: every participant
// plays NoOfGamesToPlay rounds and the top NoOfWinners by wins take Prizes.
type Tournament struct {
	ID                   string                      `json:"id" gorm:"primaryKey"`
	Slug                 string                      `json:"slug" gorm:"uniqueIndex;not null"`
	Name                 string                      `json:"name" gorm:"not null"`
	CreatorID            string                      `json:"creator_id" gorm:"index;not null"`
	GameID               string                      `json:"game_id" gorm:"index;not null"`
	JoiningCode          string                      `json:"joining_code" gorm:"uniqueIndex;size:16;not null"`
	Participants         datatypes.JSONSlice[string] `json:"participants" gorm:"not null"`
	NoOfGamesToPlay      int                         `json:"no_of_games_to_play" gorm:"not null"`
	NoOfWinners          int                         `json:"no_of_winners" gorm:"not null"`
	Prizes               datatypes.JSONSlice[int64]  `json:"prizes" gorm:"not null"`
	HasGateFee           bool                        `json:"has_gate_fee" gorm:"not null;default:false"`
	GateFee              int64                       `json:"gate_fee" gorm:"not null;default:0"`
	HasStarted           bool                        `json:"has_started" gorm:"not null;default:false"`
	StartedAt            *time.Time                  `json:"started_at,omitempty"`
	Settled              bool                        `json:"settled" gorm:"not null;default:false"`
	SettledAt            *time.Time                  `json:"settled_at,omitempty"`
	RegistrationDeadline time.Time                   `json:"registration_deadline" gorm:"not null"`
	EndDate              time.Time                   `json:"end_date" gorm:"not null;index"`

	Timestamps

	// Calculated fields (not stored in DB)
	IsFullyCreated bool `json:"is_fully_created" gorm:"-"`
}

// FullyCreated is true once both the joining code and the prize table are set.
func (t *Tournament) FullyCreated() bool {
	return t.JoiningCode != "" && len(t.Prizes) > 0
}

func (t *Tournament) HasParticipant(userID string) bool {
	return contains(t.Participants, userID)
}

// PrizePool is the sum of all prizes.
func (t *Tournament) PrizePool() int64 {
	var sum int64
	for _, p := range t.Prizes {
		sum += p
	}
	return sum
}

// TournamentEscrow holds either the prize pool (IsPrize) funded by the creator
// or the gate-fee pool collected from participants.
type TournamentEscrow struct {
	ID                  string                      `json:"id" gorm:"primaryKey"`
	TournamentID        string                      `json:"tournament_id" gorm:"not null;uniqueIndex:idx_tournament_escrow_pool"`
	IsPrize             bool                        `json:"is_prize" gorm:"not null;uniqueIndex:idx_tournament_escrow_pool"`
	TotalAmount         int64                       `json:"total_amount" gorm:"not null;default:0"`
	PlayersThatHavePaid datatypes.JSONSlice[string] `json:"players_that_have_paid" gorm:"not null"`
	PaidOut             bool                        `json:"paid_out" gorm:"not null;default:false"`
	PaidOutAt           *time.Time                  `json:"paid_out_at,omitempty"`
	CreatedAt           time.Time                   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt           time.Time                   `json:"updated_at" gorm:"autoUpdateTime"`
}
