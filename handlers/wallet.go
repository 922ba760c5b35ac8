package handlers

import (
	"game-wager-system/middleware"
	"game-wager-system/services"

	"github.com/gofiber/fiber/v2"
)

type WalletHandler struct {
	Wallets *services.WalletService
}

func SetupWalletRoutes(app *fiber.App, wallets *services.WalletService) {
	h := &WalletHandler{Wallets: wallets}

	app.Get("/users/search", h.SearchUsers)

	secured := app.Group("/s/wallet")
	secured.Get("/", h.GetWallet)
	secured.Get("/transactions", h.ListTransactions)
}

func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	wallet, err := h.Wallets.GetWallet(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(wallet)
}

func (h *WalletHandler) ListTransactions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	txs, total, err := h.Wallets.Transactions(c.UserContext(), middleware.UserID(c), limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"transactions": txs, "total": total})
}

func (h *WalletHandler) SearchUsers(c *fiber.Ctx) error {
	users, err := h.Wallets.SearchUsers(c.UserContext(), c.Query("q"), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}
