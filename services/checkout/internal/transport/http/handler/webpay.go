package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/ferreteria-checkout/pkg/metrics"
	"github.com/sakashimaa/ferreteria-checkout/pkg/mylogger"
	"github.com/sakashimaa/ferreteria-checkout/pkg/utils"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/service"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/transport/http/middleware"
	"go.uber.org/zap"
)

type ConfirmRequest struct {
	TokenWS string `json:"token_ws" form:"token_ws" validate:"required"`
}

type WebpayHandler struct {
	service   service.CheckoutService
	logger    *zap.Logger
	validator *validator.Validate
	metrics   *metrics.ServerMetrics
}

func NewWebpayHandler(svc service.CheckoutService, logger *zap.Logger, m *metrics.ServerMetrics) *WebpayHandler {
	return &WebpayHandler{
		service:   svc,
		logger:    logger,
		validator: utils.NewValidator(),
		metrics:   m,
	}
}

func (h *WebpayHandler) Initiate(c *fiber.Ctx) error {
	ctx := c.UserContext()

	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}

	start, err := h.service.InitiatePayment(ctx, userID)
	if err != nil {
		mylogger.Error(
			ctx,
			h.logger,
			"Failed to initiate webpay payment",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)

		return c.Status(mapErrorStatus(err)).JSON(fiber.Map{
			"error": publicMessage(err, "failed to start the Webpay payment"),
		})
	}

	return c.Status(fiber.StatusOK).JSON(start)
}

func (h *WebpayHandler) Confirm(c *fiber.Ctx) error {
	ctx := c.UserContext()

	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req ConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		mylogger.Warn(ctx, h.logger, "failed to parse confirm body", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "token_ws is required"})
	}

	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "token_ws is required",
			"details": utils.FormatValidationError(err),
		})
	}

	result, err := h.service.ConfirmPayment(ctx, userID, req.TokenWS)
	if err != nil {
		mylogger.Error(
			ctx,
			h.logger,
			"Failed to confirm webpay payment",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)

		h.metrics.ObservePayment(confirmOutcome(err))
		h.service.RecordFailure(ctx, userID, err)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal error while confirming the payment",
			"message": publicMessage(err, "unexpected error"),
		})
	}

	if !result.Authorized {
		h.metrics.ObservePayment("rejected")

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "transaction not authorized",
			"detail": result.Gateway,
		})
	}

	h.metrics.ObservePayment("authorized")

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":     "purchase completed successfully",
		"purchase_id": result.PurchaseID,
		"transaction": result.Gateway,
	})
}

func confirmOutcome(err error) string {
	switch {
	case errors.Is(err, service.ErrGatewayConfirm):
		return "gateway_error"
	case errors.Is(err, service.ErrPurchaseFailed):
		return "purchase_error"
	default:
		return "error"
	}
}
