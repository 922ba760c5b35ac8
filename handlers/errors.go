package handlers

import (
	"errors"
	"log"

	"game-wager-system/services"
	"game-wager-system/utils"

	"github.com/gofiber/fiber/v2"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{services.ErrInvalidRequest, fiber.StatusBadRequest},
	{services.ErrInvalidAmount, fiber.StatusBadRequest},
	{services.ErrInvalidPrizes, fiber.StatusBadRequest},
	{services.ErrWagerTooLow, fiber.StatusBadRequest},
	{services.ErrOddParticipantCount, fiber.StatusBadRequest},
	{services.ErrNotEnoughPlayers, fiber.StatusBadRequest},
	{services.ErrNotCreator, fiber.StatusForbidden},
	{services.ErrNotParticipant, fiber.StatusForbidden},
	{services.ErrUserNotFound, fiber.StatusNotFound},
	{services.ErrGameNotFound, fiber.StatusNotFound},
	{services.ErrLobbyNotFound, fiber.StatusNotFound},
	{services.ErrTournamentNotFound, fiber.StatusNotFound},
	{services.ErrFixtureNotFound, fiber.StatusNotFound},
	{services.ErrEscrowNotFound, fiber.StatusNotFound},
	{services.ErrInsufficientFunds, fiber.StatusPaymentRequired},
	{services.ErrAlreadyPaidOut, fiber.StatusConflict},
	{services.ErrRoundMismatch, fiber.StatusConflict},
	{services.ErrAlreadyReplayed, fiber.StatusConflict},
	{services.ErrAlreadyParticipant, fiber.StatusConflict},
	{services.ErrLobbyFull, fiber.StatusConflict},
	{services.ErrLobbyNotActive, fiber.StatusConflict},
	{services.ErrTournamentAlreadyStarted, fiber.StatusConflict},
	{services.ErrTournamentClosed, fiber.StatusConflict},
	{services.ErrTournamentNotReady, fiber.StatusConflict},
	{services.ErrRegistrationClosed, fiber.StatusConflict},
	{services.ErrFixtureAlreadyDecided, fiber.StatusConflict},
	{services.ErrNothingToRefund, fiber.StatusConflict},
	{services.ErrCodeGenerationExhausted, fiber.StatusServiceUnavailable},
}

// statusFor maps a service error to an HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("❌ %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// parseBody decodes and validates a JSON body, writing a 400 on failure.
func parseBody(c *fiber.Ctx, req any) bool {
	if err := c.BodyParser(req); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		return false
	}
	if err := utils.ValidateStruct(req); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.ValidationMessage(err)})
		return false
	}
	return true
}

// validParams validates path parameters copied into a tagged struct.
func validParams(c *fiber.Ctx, params any) bool {
	if err := utils.ValidateStruct(params); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.ValidationMessage(err)})
		return false
	}
	return true
}
