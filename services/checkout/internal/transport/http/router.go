package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/transport/http/handler"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/transport/http/middleware"
)

type Handlers struct {
	Checkout *handler.CheckoutHandler
	Webpay   *handler.WebpayHandler
}

func RegisterRoutes(app *fiber.App, h *Handlers, authSecret string) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	compras := app.Group("/api/compras", middleware.NewAuthMiddleware(authSecret))

	compras.Post("/realizar", h.Checkout.PlaceOrder)
	compras.Get("/mis-compras", h.Checkout.ListPurchases)

	webpay := compras.Group("/webpay")
	webpay.Post("/iniciar", h.Webpay.Initiate)
	webpay.Post("/confirmar", h.Webpay.Confirm)
}
