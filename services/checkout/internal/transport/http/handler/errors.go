package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/service"
)

func mapErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInsufficientStock):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// publicMessage hides internal causes behind the sentinel the caller can act on.
func publicMessage(err error, fallback string) string {
	for _, known := range []error{
		service.ErrEmptyCart,
		service.ErrInsufficientStock,
		service.ErrGatewayInit,
		service.ErrGatewayConfirm,
		service.ErrTransactionNotFound,
		service.ErrPurchaseFailed,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return fallback
}
