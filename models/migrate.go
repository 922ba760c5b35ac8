package models

import (
	"errors"
	"log"

	"gorm.io/gorm"
)

// Migrate runs GORM auto-migrations for every table the service owns.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("db connection is nil")
	}
	if err := db.AutoMigrate(
		&User{},
		&Game{},
		&LedgerTransaction{},
		&Lobby{},
		&Escrow{},
		&Tournament{},
		&TournamentEscrow{},
		&TournamentFixture{},
		&ScheduledJob{},
	); err != nil {
		return err
	}
	log.Println("database migration complete")
	return nil
}
