// models/game.go
package models

// Game is a catalog entry for a playable game type (chess, ludo, snooker, ...).
// Lobby caps and per-game wager floors are read from here.
type Game struct {
	ID         string `json:"id" gorm:"primaryKey"`
	Name       string `json:"name" gorm:"not null"`
	Namespace  string `json:"namespace" gorm:"uniqueIndex;not null"` // realtime namespace, e.g. "chess"
	MinPlayers int    `json:"min_players" gorm:"not null;default:2"`
	MaxPlayers int    `json:"max_players" gorm:"not null;default:2"`
	MinWager   int64  `json:"min_wager" gorm:"not null;default:0"` // 0 = use service-wide minimum

	Timestamps
}
