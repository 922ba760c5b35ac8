// handlers/game.go
package handlers

import (
	"game-wager-system/middleware"
	"game-wager-system/services"

	"github.com/gofiber/fiber/v2"
)

type GameHandler struct {
	Games *services.GameService
}

func SetupGameRoutes(app *fiber.App, games *services.GameService) {
	h := &GameHandler{Games: games}

	// 🔓 Public routes, still behind Gateway auth
	app.Get("/games", h.ListGames)
	app.Get("/games/:id", h.GetGame)

	// 🔐 Admin only
	admin := app.Group("/s/admin", middleware.RequireRole("admin"))
	admin.Post("/games", h.UpsertGame)
}

func (h *GameHandler) ListGames(c *fiber.Ctx) error {
	games, err := h.Games.ListGames(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(games)
}

func (h *GameHandler) GetGame(c *fiber.Ctx) error {
	game, err := h.Games.GetGame(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(game)
}

func (h *GameHandler) UpsertGame(c *fiber.Ctx) error {
	var req services.UpsertGameCommand
	if !parseBody(c, &req) {
		return nil
	}
	game, err := h.Games.UpsertGame(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(game)
}
