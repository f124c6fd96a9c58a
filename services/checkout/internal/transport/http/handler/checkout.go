package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/ferreteria-checkout/pkg/mylogger"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/service"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/transport/http/middleware"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	service service.CheckoutService
	logger  *zap.Logger
}

func NewCheckoutHandler(svc service.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: svc,
		logger:  logger,
	}
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "userId parsing error"})
}

func (h *CheckoutHandler) PlaceOrder(c *fiber.Ctx) error {
	ctx := c.UserContext()

	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}

	result, err := h.service.PlaceOrder(ctx, userID)
	if err != nil {
		mylogger.Error(
			ctx,
			h.logger,
			"Failed to place order",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)

		h.service.RecordFailure(ctx, userID, err)

		status := mapErrorStatus(err)
		if status == fiber.StatusBadRequest {
			return c.Status(status).JSON(fiber.Map{"error": publicMessage(err, err.Error())})
		}
		return c.Status(status).JSON(fiber.Map{"error": "internal error while placing the purchase"})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *CheckoutHandler) ListPurchases(c *fiber.Ctx) error {
	ctx := c.UserContext()

	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}

	purchases, err := h.service.ListPurchases(ctx, userID)
	if err != nil {
		mylogger.Error(
			ctx,
			h.logger,
			"Failed to list purchases",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch the user's purchases"})
	}

	return c.Status(fiber.StatusOK).JSON(purchases)
}
