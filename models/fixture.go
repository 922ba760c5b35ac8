package models

import (
	"time"

	"gorm.io/datatypes"
)

// TournamentFixture is one head-to-head pairing inside a tournament round.
type TournamentFixture struct {
	ID           string                      `json:"id" gorm:"primaryKey"`
	TournamentID string                      `json:"tournament_id" gorm:"not null;index"`
	Round        int                         `json:"round" gorm:"not null"`
	Seat         int                         `json:"seat" gorm:"not null;default:0"`
	JoiningCode  string                      `json:"joining_code" gorm:"size:16;not null;index"`
	Players      datatypes.JSONSlice[string] `json:"players" gorm:"not null"`
	WinnerID     *string                     `json:"winner_id,omitempty"`
	WonAt        *time.Time                  `json:"won_at,omitempty"`
	CreatedAt    time.Time                   `json:"created_at" gorm:"autoCreateTime"`
}

func (f *TournamentFixture) HasPlayer(userID string) bool {
	return contains(f.Players, userID)
}
