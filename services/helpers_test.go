package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"game-wager-system/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const houseID = "house"

type sentMessage struct {
	UserID  string
	Message string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *recordingNotifier) NotifyUser(_ context.Context, userID, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{UserID: userID, Message: message})
}

func (n *recordingNotifier) messagesFor(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.sent {
		if m.UserID == userID {
			out = append(out, m.Message)
		}
	}
	return out
}

type testEnv struct {
	db          *gorm.DB
	ledger      *Ledger
	notifier    *recordingNotifier
	escrow      *EscrowService
	lobbies     *LobbyService
	idle        *IdleReconciler
	tournaments *TournamentService
	settlement  *SettlementService

	mu  sync.Mutex
	now time.Time
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "wager.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	e := &testEnv{
		db:       db,
		ledger:   NewLedger(houseID),
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, e.ledger.EnsureHouseAccount(db))

	e.escrow = NewEscrowService(db, e.ledger, e.notifier)
	e.escrow.Now = e.clock
	e.lobbies = NewLobbyService(db, e.escrow)
	e.lobbies.Now = e.clock
	e.lobbies.MinWager = 100
	e.lobbies.CodeBackoff = 0
	e.idle = NewIdleReconciler(db, e.escrow)
	e.tournaments = NewTournamentService(db, e.ledger, e.notifier)
	e.tournaments.Now = e.clock
	e.tournaments.CodeBackoff = 0
	e.settlement = NewSettlementService(db, e.ledger, e.notifier, nil)
	e.settlement.Now = e.clock
	return e
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func (e *testEnv) createUser(t *testing.T, id string, balance int64) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.User{ID: id, Username: id, WalletBalance: balance}).Error)
}

func (e *testEnv) createGame(t *testing.T, id string, maxPlayers int, minWager int64) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.Game{
		ID:         id,
		Name:       id,
		Namespace:  id,
		MinPlayers: 2,
		MaxPlayers: maxPlayers,
		MinWager:   minWager,
	}).Error)
}

func (e *testEnv) balance(t *testing.T, id string) int64 {
	t.Helper()
	var user models.User
	require.NoError(t, e.db.First(&user, "id = ?", id).Error)
	return user.WalletBalance
}

// totalMoney sums every wallet and every unreleased escrow.
func (e *testEnv) totalMoney(t *testing.T) int64 {
	t.Helper()
	var wallets, escrows, tournamentEscrows int64
	require.NoError(t, e.db.Model(&models.User{}).Select("COALESCE(SUM(wallet_balance), 0)").Scan(&wallets).Error)
	require.NoError(t, e.db.Model(&models.Escrow{}).Where("paid_out = ?", false).
		Select("COALESCE(SUM(total_amount), 0)").Scan(&escrows).Error)
	require.NoError(t, e.db.Model(&models.TournamentEscrow{}).Where("paid_out = ?", false).
		Select("COALESCE(SUM(total_amount), 0)").Scan(&tournamentEscrows).Error)
	return wallets + escrows + tournamentEscrows
}

func (e *testEnv) latest(t *testing.T, lobbyID string) *models.Escrow {
	t.Helper()
	escrow, _, err := latestEscrow(e.db, lobbyID)
	require.NoError(t, err)
	return escrow
}

func (e *testEnv) lobby(t *testing.T, lobbyID string) *models.Lobby {
	t.Helper()
	lobby, err := e.lobbies.GetLobby(context.Background(), lobbyID)
	require.NoError(t, err)
	return lobby
}

// startedLobby creates a two-player lobby and starts its first game.
func (e *testEnv) startedLobby(t *testing.T, wager int64) *models.Lobby {
	t.Helper()
	ctx := context.Background()
	lobby, err := e.lobbies.CreateLobby(ctx, CreateLobbyCommand{CreatorID: "p1", GameID: "chess", WagerAmount: wager})
	require.NoError(t, err)
	_, err = e.lobbies.JoinLobby(ctx, lobby.Code, "p2")
	require.NoError(t, err)
	_, err = e.lobbies.StartGame(ctx, lobby.ID)
	require.NoError(t, err)
	return lobby
}
