package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"game-wager-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupLobbyEnv(t *testing.T) *testEnv {
	t.Helper()
	e := newTestEnv(t)
	e.createGame(t, "chess", 2, 0)
	e.createUser(t, "p1", 10000)
	e.createUser(t, "p2", 10000)
	e.createUser(t, "p3", 10000)
	return e
}

func TestCreateLobbyValidation(t *testing.T) {
	e := setupLobbyEnv(t)
	e.createGame(t, "snooker", 2, 500)
	ctx := context.Background()

	_, err := e.lobbies.CreateLobby(ctx, CreateLobbyCommand{CreatorID: "p1", GameID: "chess", WagerAmount: 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.lobbies.CreateLobby(ctx, CreateLobbyCommand{CreatorID: "p1", GameID: "chess", WagerAmount: 99})
	assert.ErrorIs(t, err, ErrWagerTooLow)

	_, err = e.lobbies.CreateLobby(ctx, CreateLobbyCommand{CreatorID: "p1", GameID: "snooker", WagerAmount: 400})
	assert.ErrorIs(t, err, ErrWagerTooLow)

	_, err = e.lobbies.CreateLobby(ctx, CreateLobbyCommand{CreatorID: "p1", GameID: "pool", WagerAmount: 400})
	assert.ErrorIs(t, err, ErrGameNotFound)

	assert.Equal(t, int64(10000), e.balance(t, "p1"))
}

func TestCreateLobbyInsufficientFundsLeavesNothingBehind(t *testing.T) {
	e := setupLobbyEnv(t)

	_, err := e.lobbies.CreateLobby(context.Background(), CreateLobbyCommand{CreatorID: "p1", GameID: "chess", WagerAmount: 20000})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	var lobbies, escrows, jobs int64
	require.NoError(t, e.db.Model(&models.Lobby{}).Count(&lobbies).Error)
	require.NoError(t, e.db.Model(&models.Escrow{}).Count(&escrows).Error)
	require.NoError(t, e.db.Model(&models.ScheduledJob{}).Count(&jobs).Error)
	assert.Zero(t, lobbies)
	assert.Zero(t, escrows)
	assert.Zero(t, jobs)
}

func TestCreateLobbySchedulesIdleCheck(t *testing.T) {
	e := setupLobbyEnv(t)
	e.lobbies.IdleTimeout = 10 * time.Minute

	lobby, err := e.lobbies.CreateLobby(context.Background(), CreateLobbyCommand{CreatorID: "p1", GameID: "chess", WagerAmount: 1000})
	require.NoError(t, err)
	assert.Len(t, lobby.Code, 6)
	assert.True(t, lobby.Active)

	var job models.ScheduledJob
	require.NoError(t, e.db.First(&job, "ref_id = ?", lobby.ID).Error)
	assert.Equal(t, models.JobLobbyIdleCheck, job.Kind)
	assert.Equal(t, models.JobPending, job.Status)
	assert.True(t, job.RunAt.Equal(e.clock().Add(10*time.Minute)), "run at %s", job.RunAt)
}

func TestLobbyCodeRetriesThenGivesUp(t *testing.T) {
	e := setupLobbyEnv(t)
	ctx := context.Background()

	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	calls := 0
	e.lobbies.NewCode = func() string {
		code := codes[calls%len(codes)]
		calls++
		return code
	}

	first, err := e.lobbies.CreateLobby(ctx, CreateLobbyCommand{CreatorID: "p1", GameID: "chess", WagerAmount: 100})
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.Code)

	second, err := e.lobbies.CreateLobby(ctx, CreateLobbyCommand{CreatorID: "p2", GameID: "chess", WagerAmount: 100})
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", second.Code)
	assert.Equal(t, 3, calls)

	e.lobbies.CodeAttempts = 4
	e.lobbies.NewCode = func() string {
		calls++
		return "AAAAAA"
	}
	calls = 0
	_, err = e.lobbies.CreateLobby(ctx, CreateLobbyCommand{CreatorID: "p3", GameID: "chess", WagerAmount: 100})
	require.ErrorIs(t, err, ErrCodeGenerationExhausted)
	assert.Equal(t, 4, calls)
	assert.Equal(t, int64(10000), e.balance(t, "p3"))
}

func TestCreateLobbyRetriesCodeTakenDuringInsert(t *testing.T) {
	e := setupLobbyEnv(t)
	ctx := context.Background()
	codes := []string{"AAAAAA", "BBBBBB"}
	calls := 0
	e.lobbies.NewCode = func() string {
		code := codes[calls%len(codes)]
		calls++
		return code
	}

	// Another writer claims AAAAAA after the availability check has passed.
	claimed := false
	require.NoError(t, e.db.Callback().Create().Before("gorm:create").Register("test:claim_code", func(tx *gorm.DB) {
		if claimed || tx.Statement.Table != "lobbies" {
			return
		}
		claimed = true
		rival := &models.Lobby{
			ID:           "rival",
			Code:         "AAAAAA",
			CreatorID:    "p2",
			GameID:       "chess",
			WagerAmount:  100,
			Participants: datatypes.NewJSONSlice([]string{"p2"}),
			Winners:      datatypes.NewJSONSlice([]string{}),
			Active:       true,
		}
		if err := tx.Session(&gorm.Session{NewDB: true}).Create(rival).Error; err != nil {
			_ = tx.AddError(err)
		}
	}))

	lobby, err := e.lobbies.CreateLobby(ctx, CreateLobbyCommand{CreatorID: "p1", GameID: "chess", WagerAmount: 100})
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, "BBBBBB", lobby.Code)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(9900), e.balance(t, "p1"))

	var stakes int64
	require.NoError(t, e.db.Model(&models.LedgerTransaction{}).Where("user_id = ? AND type = ?", "p1", models.TxWagerStake).Count(&stakes).Error)
	assert.Equal(t, int64(1), stakes)
}

func TestInsertWithCodeStopsOnOtherErrors(t *testing.T) {
	e := setupLobbyEnv(t)
	ctx := context.Background()
	calls := 0
	newCode := func() string { return "CCCCCC" }

	code, err := insertWithCode(ctx, e.db, &models.Lobby{}, "code", 3, 0, newCode, func(string) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "CCCCCC", code)
	assert.Equal(t, 3, calls)

	calls = 0
	boom := errors.New("disk full")
	_, err = insertWithCode(ctx, e.db, &models.Lobby{}, "code", 3, 0, newCode, func(string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)

	_, err = insertWithCode(ctx, e.db, &models.Lobby{}, "code", 2, 0, newCode, func(string) error {
		return gorm.ErrDuplicatedKey
	})
	assert.ErrorIs(t, err, ErrCodeGenerationExhausted)
}

func TestJoinLobbyRules(t *testing.T) {
	e := setupLobbyEnv(t)
	ctx := context.Background()

	lobby, err := e.lobbies.CreateLobby(ctx, CreateLobbyCommand{CreatorID: "p1", GameID: "chess", WagerAmount: 1000})
	require.NoError(t, err)

	_, err = e.lobbies.JoinLobby(ctx, lobby.Code, "p1")
	assert.ErrorIs(t, err, ErrAlreadyParticipant)

	_, err = e.lobbies.JoinLobby(ctx, "ZZZZZZ", "p2")
	assert.ErrorIs(t, err, ErrLobbyNotFound)

	joined, err := e.lobbies.JoinLobby(ctx, lobby.Code, "p2")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, []string(joined.Participants))

	_, err = e.lobbies.JoinLobby(ctx, lobby.Code, "p3")
	assert.ErrorIs(t, err, ErrLobbyFull)
	assert.Equal(t, int64(10000), e.balance(t, "p3"))
}

func TestJoinLobbyWhileGameRunning(t *testing.T) {
	e := newTestEnv(t)
	e.createGame(t, "chess", 4, 0)
	e.createUser(t, "p1", 10000)
	e.createUser(t, "p2", 10000)
	e.createUser(t, "p3", 10000)
	lobby := e.startedLobby(t, 1000)

	_, err := e.lobbies.JoinLobby(context.Background(), lobby.Code, "p3")
	require.ErrorIs(t, err, ErrRoundMismatch)
	assert.Equal(t, int64(10000), e.balance(t, "p3"))
}

func TestJoinClosedLobby(t *testing.T) {
	e := setupLobbyEnv(t)
	ctx := context.Background()
	lobby, err := e.lobbies.CreateLobby(ctx, CreateLobbyCommand{CreatorID: "p1", GameID: "chess", WagerAmount: 1000})
	require.NoError(t, err)
	_, err = e.lobbies.CancelLobby(ctx, lobby.ID, "p1")
	require.NoError(t, err)

	_, err = e.lobbies.JoinLobby(ctx, lobby.Code, "p2")
	assert.ErrorIs(t, err, ErrLobbyNotActive)
}

func TestStartGameRules(t *testing.T) {
	e := setupLobbyEnv(t)
	ctx := context.Background()

	lobby, err := e.lobbies.CreateLobby(ctx, CreateLobbyCommand{CreatorID: "p1", GameID: "chess", WagerAmount: 1000})
	require.NoError(t, err)

	_, err = e.lobbies.StartGame(ctx, lobby.ID)
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)

	_, err = e.lobbies.JoinLobby(ctx, lobby.Code, "p2")
	require.NoError(t, err)

	started, err := e.lobbies.StartGame(ctx, lobby.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, started.NoOfGamesPlayed)
	assert.True(t, started.InGame)

	_, err = e.lobbies.StartGame(ctx, lobby.ID)
	assert.ErrorIs(t, err, ErrRoundMismatch)
	assert.Equal(t, 1, e.lobby(t, lobby.ID).NoOfGamesPlayed)
}

func TestReplayOpensAndFillsNextRound(t *testing.T) {
	e := setupLobbyEnv(t)
	ctx := context.Background()
	lobby := e.startedLobby(t, 1000)

	_, err := e.lobbies.Replay(ctx, lobby.ID, "p1")
	require.ErrorIs(t, err, ErrRoundMismatch, "replay while the game is running")

	_, err = e.escrow.Payout(ctx, lobby.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(11000), e.balance(t, "p1"))

	round2, err := e.lobbies.Replay(ctx, lobby.ID, "p2")
	require.NoError(t, err)
	assert.Equal(t, 2, round2.Round)
	assert.Equal(t, int64(1000), round2.TotalAmount)
	assert.Equal(t, []string{"p2"}, []string(round2.PlayersThatHavePaid))

	_, err = e.lobbies.Replay(ctx, lobby.ID, "p2")
	require.ErrorIs(t, err, ErrAlreadyReplayed)
	assert.Equal(t, int64(8000), e.balance(t, "p2"))

	_, err = e.lobbies.StartGame(ctx, lobby.ID)
	require.ErrorIs(t, err, ErrRoundMismatch, "p1 has not staked round 2")

	_, err = e.lobbies.Replay(ctx, lobby.ID, "p3")
	require.ErrorIs(t, err, ErrNotParticipant)

	round2, err = e.lobbies.Replay(ctx, lobby.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), round2.TotalAmount)

	started, err := e.lobbies.StartGame(ctx, lobby.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, started.NoOfGamesPlayed)

	_, err = e.escrow.Payout(ctx, lobby.ID, "p2")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), e.balance(t, "p1"))
	assert.Equal(t, int64(10000), e.balance(t, "p2"))
	assert.Equal(t, []string{"p1", "p2"}, []string(e.lobby(t, lobby.ID).Winners))

	var rounds int64
	require.NoError(t, e.db.Model(&models.Escrow{}).Where("lobby_id = ?", lobby.ID).Count(&rounds).Error)
	assert.Equal(t, int64(2), rounds)
}

func TestCancelUnplayedRoundRefundsEveryone(t *testing.T) {
	e := setupLobbyEnv(t)
	ctx := context.Background()
	before := e.totalMoney(t)

	lobby, err := e.lobbies.CreateLobby(ctx, CreateLobbyCommand{CreatorID: "p1", GameID: "chess", WagerAmount: 1000})
	require.NoError(t, err)
	_, err = e.lobbies.JoinLobby(ctx, lobby.Code, "p2")
	require.NoError(t, err)

	res, err := e.lobbies.CancelLobby(ctx, lobby.ID, "p2")
	require.NoError(t, err)
	assert.Equal(t, CancelRefundedUnplayedRound, res.Outcome)
	assert.Equal(t, int64(10000), e.balance(t, "p1"))
	assert.Equal(t, int64(10000), e.balance(t, "p2"))

	got := e.lobby(t, lobby.ID)
	assert.False(t, got.Active)
	assert.False(t, got.InGame)
	assert.True(t, e.latest(t, lobby.ID).PaidOut)
	assert.Equal(t, before, e.totalMoney(t))

	_, err = e.lobbies.CancelLobby(ctx, lobby.ID, "p2")
	assert.ErrorIs(t, err, ErrLobbyNotActive)
}

func TestCancelRunningRoundForfeitsStake(t *testing.T) {
	e := setupLobbyEnv(t)
	ctx := context.Background()
	lobby := e.startedLobby(t, 1000)

	res, err := e.lobbies.CancelLobby(ctx, lobby.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, CancelForfeited, res.Outcome)
	assert.Equal(t, int64(9000), e.balance(t, "p1"))
	assert.Equal(t, int64(11000), e.balance(t, "p2"))

	_, err = e.escrow.Payout(ctx, lobby.ID, "p2")
	assert.ErrorIs(t, err, ErrAlreadyPaidOut)
}

func TestCancelAfterSettledRoundMovesNothing(t *testing.T) {
	e := setupLobbyEnv(t)
	ctx := context.Background()
	lobby := e.startedLobby(t, 1000)
	_, err := e.escrow.Payout(ctx, lobby.ID, "p2")
	require.NoError(t, err)

	res, err := e.lobbies.CancelLobby(ctx, lobby.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, CancelClosed, res.Outcome)
	assert.Nil(t, res.Refund)
	assert.Equal(t, int64(9000), e.balance(t, "p1"))
	assert.Equal(t, int64(11000), e.balance(t, "p2"))
	assert.False(t, e.lobby(t, lobby.ID).Active)
}

func TestCancelPartiallyStakedReplayRefundsOnlyPayers(t *testing.T) {
	e := setupLobbyEnv(t)
	ctx := context.Background()
	lobby := e.startedLobby(t, 1000)
	_, err := e.escrow.Payout(ctx, lobby.ID, "p2")
	require.NoError(t, err)
	_, err = e.lobbies.Replay(ctx, lobby.ID, "p2")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), e.balance(t, "p2"))

	res, err := e.lobbies.CancelLobby(ctx, lobby.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, CancelRefundedUnplayedRound, res.Outcome)
	require.Len(t, res.Refund.Shares, 1)
	assert.Equal(t, "p2", res.Refund.Shares[0].UserID)
	assert.Equal(t, int64(9000), e.balance(t, "p1"))
	assert.Equal(t, int64(11000), e.balance(t, "p2"))
}

func TestCancelByOutsider(t *testing.T) {
	e := setupLobbyEnv(t)
	lobby := e.startedLobby(t, 1000)

	_, err := e.lobbies.CancelLobby(context.Background(), lobby.ID, "p3")
	require.ErrorIs(t, err, ErrNotParticipant)
	assert.True(t, e.lobby(t, lobby.ID).Active)
}

func TestGetLobbyByCode(t *testing.T) {
	e := setupLobbyEnv(t)
	ctx := context.Background()
	lobby, err := e.lobbies.CreateLobby(ctx, CreateLobbyCommand{CreatorID: "p1", GameID: "chess", WagerAmount: 1000})
	require.NoError(t, err)

	got, err := e.lobbies.GetLobbyByCode(ctx, lobby.Code)
	require.NoError(t, err)
	assert.Equal(t, lobby.ID, got.ID)

	_, err = e.lobbies.GetLobby(ctx, "missing")
	assert.ErrorIs(t, err, ErrLobbyNotFound)
}
