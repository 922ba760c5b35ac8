package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"game-wager-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (a *memoryArchive) ArchiveReceipt(_ context.Context, key string, body []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.objects == nil {
		a.objects = map[string][]byte{}
	}
	a.objects[key] = body
	return nil
}

func (a *memoryArchive) get(key string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	body, ok := a.objects[key]
	return body, ok
}

// fixtureFor finds the round's fixture that seats userID.
func fixtureFor(t *testing.T, fixtures []models.TournamentFixture, round int, userID string) string {
	t.Helper()
	for _, f := range fixtures {
		if f.Round == round && f.HasPlayer(userID) {
			return f.ID
		}
	}
	t.Fatalf("no round %d fixture for %s", round, userID)
	return ""
}

func (e *testEnv) win(t *testing.T, fixtures []models.TournamentFixture, round int, userID string) {
	t.Helper()
	e.advance(time.Minute)
	_, err := e.tournaments.RecordFixtureWinner(context.Background(), fixtureFor(t, fixtures, round, userID), userID)
	require.NoError(t, err)
}

func TestTournamentSettlementScenario(t *testing.T) {
	e := setupTournamentEnv(t, 4, 5000)
	ctx := context.Background()
	archive := &memoryArchive{}
	e.settlement.Archiver = archive
	before := e.totalMoney(t)

	tour := e.fundedTournament(t, 1000, []int64{5000, 3000}, 3, "p1", "p2", "p3", "p4")
	assert.Equal(t, int64(12000), e.balance(t, "creator"))
	assert.Equal(t, int64(4000), e.balance(t, "p1"))

	fixtures, err := e.tournaments.StartTournament(ctx, tour.ID, "creator")
	require.NoError(t, err)

	e.win(t, fixtures, 1, "p1")
	e.win(t, fixtures, 1, "p2")
	e.win(t, fixtures, 2, "p1")
	e.win(t, fixtures, 2, "p2")
	e.win(t, fixtures, 3, "p1")
	e.win(t, fixtures, 3, "p3")

	receipt, err := e.settlement.Settle(ctx, tour.ID)
	require.NoError(t, err)
	require.Len(t, receipt.Awards, 2)
	assert.Equal(t, PrizeAward{Rank: 1, UserID: "p1", Wins: 3, Amount: 5000}, receipt.Awards[0])
	assert.Equal(t, PrizeAward{Rank: 2, UserID: "p2", Wins: 2, Amount: 3000}, receipt.Awards[1])
	assert.Equal(t, int64(4000), receipt.CreatorPayout)

	assert.Equal(t, int64(9000), e.balance(t, "p1"))
	assert.Equal(t, int64(7000), e.balance(t, "p2"))
	assert.Equal(t, int64(4000), e.balance(t, "p3"))
	assert.Equal(t, int64(4000), e.balance(t, "p4"))
	assert.Equal(t, int64(16000), e.balance(t, "creator"))
	assert.Equal(t, before, e.totalMoney(t))

	got, err := e.tournaments.GetTournament(ctx, tour.ID)
	require.NoError(t, err)
	assert.True(t, got.Settled)

	var open int64
	require.NoError(t, e.db.Model(&models.TournamentEscrow{}).
		Where("tournament_id = ? AND paid_out = ?", tour.ID, false).Count(&open).Error)
	assert.Zero(t, open)

	var body []byte
	require.Eventually(t, func() bool {
		var ok bool
		body, ok = archive.get("settlements/" + tour.Slug + ".json")
		return ok
	}, time.Second, 10*time.Millisecond)
	var archived SettlementReceipt
	require.NoError(t, json.Unmarshal(body, &archived))
	assert.Equal(t, tour.ID, archived.TournamentID)
	assert.Len(t, archived.Awards, 2)

	assert.NotEmpty(t, e.notifier.messagesFor("p1"))
	assert.NotEmpty(t, e.notifier.messagesFor("creator"))
}

func TestSettleTwiceFails(t *testing.T) {
	e := setupTournamentEnv(t, 2, 5000)
	ctx := context.Background()
	tour := e.fundedTournament(t, 0, []int64{1000}, 1, "p1", "p2")

	_, err := e.settlement.Settle(ctx, tour.ID)
	require.NoError(t, err)
	_, err = e.settlement.Settle(ctx, tour.ID)
	require.ErrorIs(t, err, ErrAlreadyPaidOut)
	assert.Equal(t, int64(20000), e.balance(t, "creator"))
}

func TestSettleUnstartedTournamentRefundsEveryone(t *testing.T) {
	e := setupTournamentEnv(t, 3, 5000)
	ctx := context.Background()
	before := e.totalMoney(t)
	tour := e.fundedTournament(t, 700, []int64{3000, 1000}, 2, "p1", "p2", "p3")

	receipt, err := e.settlement.Settle(ctx, tour.ID)
	require.NoError(t, err)
	assert.False(t, receipt.Started)
	assert.Empty(t, receipt.Awards)
	require.Len(t, receipt.GateFeeRefunds, 3)
	assert.Equal(t, int64(4000), receipt.CreatorPayout)
	assert.Zero(t, receipt.HouseSweep)

	for _, p := range []string{"p1", "p2", "p3"} {
		assert.Equal(t, int64(5000), e.balance(t, p))
	}
	assert.Equal(t, int64(20000), e.balance(t, "creator"))
	assert.Equal(t, before, e.totalMoney(t))
}

func TestSettleReturnsUnawardedPrizesToCreator(t *testing.T) {
	e := setupTournamentEnv(t, 2, 5000)
	ctx := context.Background()
	tour := e.fundedTournament(t, 0, []int64{5000, 3000}, 1, "p1", "p2")
	fixtures, err := e.tournaments.StartTournament(ctx, tour.ID, "creator")
	require.NoError(t, err)
	e.win(t, fixtures, 1, "p2")

	receipt, err := e.settlement.Settle(ctx, tour.ID)
	require.NoError(t, err)
	require.Len(t, receipt.Awards, 1)
	assert.Equal(t, "p2", receipt.Awards[0].UserID)
	assert.Equal(t, int64(3000), receipt.CreatorPayout)
	assert.Equal(t, int64(10000), e.balance(t, "p2"))
	assert.Equal(t, int64(15000), e.balance(t, "creator"))

	_, err = e.tournaments.RecordFixtureWinner(ctx, fixtures[0].ID, "p1")
	assert.ErrorIs(t, err, ErrFixtureAlreadyDecided)
}

func TestFixtureResultAfterSettlement(t *testing.T) {
	e := setupTournamentEnv(t, 2, 5000)
	ctx := context.Background()
	tour := e.fundedTournament(t, 0, []int64{1000}, 2, "p1", "p2")
	fixtures, err := e.tournaments.StartTournament(ctx, tour.ID, "creator")
	require.NoError(t, err)
	e.win(t, fixtures, 1, "p1")

	_, err = e.settlement.Settle(ctx, tour.ID)
	require.NoError(t, err)

	_, err = e.tournaments.RecordFixtureWinner(ctx, fixtureFor(t, fixtures, 2, "p2"), "p2")
	require.ErrorIs(t, err, ErrAlreadyPaidOut)
}

func TestSettleUnknownTournament(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.settlement.Settle(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestRankStandings(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	won := func(winner string, minute int) models.TournamentFixture {
		at := base.Add(time.Duration(minute) * time.Minute)
		return models.TournamentFixture{WinnerID: &winner, WonAt: &at}
	}

	standings := RankStandings([]models.TournamentFixture{
		won("carol", 1),
		won("bob", 2),
		won("alice", 3),
		won("bob", 4),
		won("alice", 5),
		won("dave", 3),
		{},
	})
	require.Len(t, standings, 4)
	assert.Equal(t, "bob", standings[0].UserID, "bob reached two wins first")
	assert.Equal(t, 2, standings[0].Wins)
	assert.Equal(t, "alice", standings[1].UserID)
	assert.Equal(t, "carol", standings[2].UserID)
	assert.Equal(t, "dave", standings[3].UserID)

	tied := RankStandings([]models.TournamentFixture{won("zed", 1), won("amy", 1)})
	require.Len(t, tied, 2)
	assert.Equal(t, "amy", tied[0].UserID)
	assert.Equal(t, "zed", tied[1].UserID)
}
