package handlers

import (
	"time"

	"game-wager-system/middleware"
	"game-wager-system/services"

	"github.com/gofiber/fiber/v2"
)

type TournamentHandler struct {
	Tournaments *services.TournamentService
}

type createTournamentRequest struct {
	GameID               string    `json:"game_id" validate:"required"`
	Name                 string    `json:"name" validate:"required,max=80"`
	NoOfGamesToPlay      int       `json:"no_of_games_to_play" validate:"min=1"`
	NoOfWinners          int       `json:"no_of_winners" validate:"min=1"`
	HasGateFee           bool      `json:"has_gate_fee"`
	GateFee              int64     `json:"gate_fee" validate:"gte=0"`
	RegistrationDeadline time.Time `json:"registration_deadline" validate:"required"`
	EndDate              time.Time `json:"end_date" validate:"required,gtfield=RegistrationDeadline"`
}

type setPrizesRequest struct {
	Prizes []int64 `json:"prizes" validate:"required,min=1,dive,gt=0"`
}

type fixtureWonRequest struct {
	WinnerID string `json:"winner_id" validate:"required"`
}

func SetupTournamentRoutes(app *fiber.App, tournaments *services.TournamentService) {
	h := &TournamentHandler{Tournaments: tournaments}

	// 🔐 Player routes
	secured := app.Group("/s/tournaments")
	secured.Post("/", h.CreateTournament)
	secured.Get("/:id", h.GetTournament)
	secured.Put("/:id/prizes", h.SetPrizes)
	secured.Post("/:id/join", h.JoinTournament)
	secured.Post("/:id/start", h.StartTournament)
	secured.Get("/:id/fixtures", h.ListFixtures)

	// Game service notifications
	app.Post("/internal/fixtures/:id/won", h.FixtureWon)
}

func (h *TournamentHandler) CreateTournament(c *fiber.Ctx) error {
	var req createTournamentRequest
	if !parseBody(c, &req) {
		return nil
	}
	t, err := h.Tournaments.CreateTournament(c.UserContext(), services.CreateTournamentCommand{
		CreatorID:            middleware.UserID(c),
		GameID:               req.GameID,
		Name:                 req.Name,
		NoOfGamesToPlay:      req.NoOfGamesToPlay,
		NoOfWinners:          req.NoOfWinners,
		HasGateFee:           req.HasGateFee,
		GateFee:              req.GateFee,
		RegistrationDeadline: req.RegistrationDeadline,
		EndDate:              req.EndDate,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (h *TournamentHandler) GetTournament(c *fiber.Ctx) error {
	t, err := h.Tournaments.GetTournament(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(t)
}

func (h *TournamentHandler) SetPrizes(c *fiber.Ctx) error {
	var req setPrizesRequest
	if !parseBody(c, &req) {
		return nil
	}
	t, err := h.Tournaments.SetPrizes(c.UserContext(), c.Params("id"), middleware.UserID(c), req.Prizes)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(t)
}

func (h *TournamentHandler) JoinTournament(c *fiber.Ctx) error {
	t, err := h.Tournaments.JoinTournament(c.UserContext(), c.Params("id"), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(t)
}

func (h *TournamentHandler) StartTournament(c *fiber.Ctx) error {
	fixtures, err := h.Tournaments.StartTournament(c.UserContext(), c.Params("id"), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"fixtures": fixtures, "total": len(fixtures)})
}

func (h *TournamentHandler) ListFixtures(c *fiber.Ctx) error {
	fixtures, err := h.Tournaments.ListFixtures(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"fixtures": fixtures, "total": len(fixtures)})
}

func (h *TournamentHandler) FixtureWon(c *fiber.Ctx) error {
	var req fixtureWonRequest
	if !parseBody(c, &req) {
		return nil
	}
	fixture, err := h.Tournaments.RecordFixtureWinner(c.UserContext(), c.Params("id"), req.WinnerID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fixture)
}
