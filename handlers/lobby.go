package handlers

import (
	"game-wager-system/middleware"
	"game-wager-system/services"

	"github.com/gofiber/fiber/v2"
)

type LobbyHandler struct {
	Lobbies *services.LobbyService
	Escrow  *services.EscrowService
}

type createLobbyRequest struct {
	GameID      string `json:"game_id" validate:"required"`
	WagerAmount int64  `json:"wager_amount" validate:"gt=0"`
}

type joinLobbyParams struct {
	Code string `validate:"required,joincode"`
}

type gameWonRequest struct {
	WinnerID string `json:"winner_id" validate:"required"`
}

type gameCancelledRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func SetupLobbyRoutes(app *fiber.App, lobbies *services.LobbyService, escrow *services.EscrowService) {
	h := &LobbyHandler{Lobbies: lobbies, Escrow: escrow}

	// 🔐 Player routes (X-User-ID from Gateway)
	secured := app.Group("/s/lobbies")
	secured.Post("/", h.CreateLobby)
	secured.Post("/:code/join", h.JoinLobby)
	secured.Post("/:id/replay", h.Replay)
	secured.Get("/:id", h.GetLobby)

	// Game service notifications
	internal := app.Group("/internal/games")
	internal.Post("/:lobby_id/started", h.GameStarted)
	internal.Post("/:lobby_id/won", h.GameWon)
	internal.Post("/:lobby_id/cancelled", h.GameCancelled)
}

func (h *LobbyHandler) CreateLobby(c *fiber.Ctx) error {
	var req createLobbyRequest
	if !parseBody(c, &req) {
		return nil
	}
	lobby, err := h.Lobbies.CreateLobby(c.UserContext(), services.CreateLobbyCommand{
		CreatorID:   middleware.UserID(c),
		GameID:      req.GameID,
		WagerAmount: req.WagerAmount,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(lobby)
}

func (h *LobbyHandler) JoinLobby(c *fiber.Ctx) error {
	params := joinLobbyParams{Code: c.Params("code")}
	if !validParams(c, &params) {
		return nil
	}
	lobby, err := h.Lobbies.JoinLobby(c.UserContext(), params.Code, middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(lobby)
}

func (h *LobbyHandler) Replay(c *fiber.Ctx) error {
	escrow, err := h.Lobbies.Replay(c.UserContext(), c.Params("id"), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(escrow)
}

func (h *LobbyHandler) GetLobby(c *fiber.Ctx) error {
	lobby, err := h.Lobbies.GetLobby(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	escrows, err := h.Lobbies.Escrows(c.UserContext(), lobby.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"lobby": lobby, "escrows": escrows})
}

func (h *LobbyHandler) GameStarted(c *fiber.Ctx) error {
	lobby, err := h.Lobbies.StartGame(c.UserContext(), c.Params("lobby_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(lobby)
}

func (h *LobbyHandler) GameWon(c *fiber.Ctx) error {
	var req gameWonRequest
	if !parseBody(c, &req) {
		return nil
	}
	escrow, err := h.Escrow.Payout(c.UserContext(), c.Params("lobby_id"), req.WinnerID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(escrow)
}

func (h *LobbyHandler) GameCancelled(c *fiber.Ctx) error {
	var req gameCancelledRequest
	if !parseBody(c, &req) {
		return nil
	}
	result, err := h.Lobbies.CancelLobby(c.UserContext(), c.Params("lobby_id"), req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}
