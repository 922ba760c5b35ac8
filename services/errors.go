package services

import "errors"

// Monetary-path failures. Any of these returned from inside a transaction
// rolls the whole unit back.
var (
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrEscrowNotFound           = errors.New("escrow not found")
	ErrAlreadyPaidOut           = errors.New("escrow already paid out")
	ErrRoundMismatch            = errors.New("round mismatch")
	ErrAlreadyReplayed          = errors.New("already staked for this round")
	ErrCodeGenerationExhausted  = errors.New("could not generate a unique code")
	ErrOddParticipantCount      = errors.New("participant count must be even")
	ErrLobbyFull                = errors.New("lobby is full")
	ErrLobbyNotActive           = errors.New("lobby is not active")
	ErrTournamentAlreadyStarted = errors.New("tournament already started")
	ErrTournamentClosed         = errors.New("tournament has ended")

	ErrInvalidRequest        = errors.New("invalid request")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrUserNotFound          = errors.New("user not found")
	ErrGameNotFound          = errors.New("game not found")
	ErrLobbyNotFound         = errors.New("lobby not found")
	ErrTournamentNotFound    = errors.New("tournament not found")
	ErrFixtureNotFound       = errors.New("fixture not found")
	ErrNotParticipant        = errors.New("user is not a participant")
	ErrAlreadyParticipant    = errors.New("user is already a participant")
	ErrWagerTooLow           = errors.New("wager below minimum")
	ErrNotEnoughPlayers      = errors.New("not enough players")
	ErrNothingToRefund       = errors.New("no eligible refund recipients")
	ErrRegistrationClosed    = errors.New("tournament registration closed")
	ErrTournamentNotReady    = errors.New("tournament is not fully created")
	ErrInvalidPrizes         = errors.New("prizes must match number of winners")
	ErrFixtureAlreadyDecided = errors.New("fixture already has a winner")
	ErrNotCreator            = errors.New("only the creator can do this")
)
