package models

import (
	"time"

	"gorm.io/datatypes"
)

// Lobby is a wagering session for one or more sequential rounds between the
// same participants. It is terminal once Dead (refunded) or !Active (settled
// or cancelled).
type Lobby struct {
	ID              string                      `json:"id" gorm:"primaryKey"`
	Code            string                      `json:"code" gorm:"uniqueIndex;size:16;not null"`
	CreatorID       string                      `json:"creator_id" gorm:"index;not null"`
	GameID          string                      `json:"game_id" gorm:"index;not null"`
	WagerAmount     int64                       `json:"wager_amount" gorm:"not null"`
	Participants    datatypes.JSONSlice[string] `json:"participants" gorm:"not null"`
	Winners         datatypes.JSONSlice[string] `json:"winners" gorm:"not null"`
	NoOfGamesPlayed int                         `json:"no_of_games_played" gorm:"not null;default:0"`
	InGame          bool                        `json:"in_game" gorm:"not null;default:false"`
	Active          bool                        `json:"active" gorm:"not null"`
	Dead            bool                        `json:"dead" gorm:"not null;default:false"`
	ClosedAt        *time.Time                  `json:"closed_at,omitempty"`

	Timestamps
}

func (l *Lobby) HasParticipant(userID string) bool {
	return contains(l.Participants, userID)
}

// Open reports whether the lobby still accepts joins, stakes and results.
func (l *Lobby) Open() bool {
	return l.Active && !l.Dead
}

// Escrow holds the stakes collected for one round of a lobby.
// PaidOut flips false -> true exactly once and is never reset.
type Escrow struct {
	ID                  string                      `json:"id" gorm:"primaryKey"`
	LobbyID             string                      `json:"lobby_id" gorm:"not null;uniqueIndex:idx_escrow_lobby_round"`
	Round               int                         `json:"round" gorm:"not null;uniqueIndex:idx_escrow_lobby_round"`
	TotalAmount         int64                       `json:"total_amount" gorm:"not null;default:0"`
	PlayersThatHavePaid datatypes.JSONSlice[string] `json:"players_that_have_paid" gorm:"not null"`
	PaidOut             bool                        `json:"paid_out" gorm:"not null;default:false"`
	PaidOutAt           *time.Time                  `json:"paid_out_at,omitempty"`
	CreatedAt           time.Time                   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt           time.Time                   `json:"updated_at" gorm:"autoUpdateTime"`
}

func (e *Escrow) HasPaid(userID string) bool {
	return contains(e.PlayersThatHavePaid, userID)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
