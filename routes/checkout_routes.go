package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/branlog/split-payment/controller"
)

func RegisterCheckoutRoutes(app *fiber.App, cc *controller.CheckoutController, gate fiber.Handler) {
	ck := app.Group("/checkout")
	ck.Post("/create", gate, cc.Create)
	ck.Post("/confirm", gate, cc.Confirm)
	ck.Post("/cod", gate, cc.CreateCOD)

	app.Post("/stripe/webhook", cc.Webhook)

	app.Get("/", cc.Health)
	app.Get("/health", cc.Health)
}
