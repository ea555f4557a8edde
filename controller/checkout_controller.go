package controller

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/branlog/split-payment/apperr"
	"github.com/branlog/split-payment/checkout"
	"github.com/branlog/split-payment/stripe"
)

// WebhookVerifier checks a raw webhook payload against its signature header
// before anything parses it.
type WebhookVerifier interface {
	VerifySignature(payload []byte, header string) (*stripe.Event, error)
}

type CheckoutController struct {
	Service  *checkout.Service
	Verifier WebhookVerifier
}

func NewCheckoutController(svc *checkout.Service, verifier WebhookVerifier) *CheckoutController {
	return &CheckoutController{Service: svc, Verifier: verifier}
}

func (cc *CheckoutController) Create(c *fiber.Ctx) error {
	var body checkout.CreateRequest
	if err := c.BodyParser(&body); err != nil {
		return respondErr(c, apperr.New(apperr.CodeInvalidBody, fiber.StatusBadRequest, "invalid request body"))
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := cc.Service.Create(ctx, body)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(resp)
}

func (cc *CheckoutController) Confirm(c *fiber.Ctx) error {
	var body checkout.ConfirmRequest
	if err := c.BodyParser(&body); err != nil {
		return respondErr(c, apperr.New(apperr.CodeInvalidBody, fiber.StatusBadRequest, "invalid request body"))
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := cc.Service.Confirm(ctx, body)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(resp)
}

func (cc *CheckoutController) CreateCOD(c *fiber.Ctx) error {
	var body checkout.CreateRequest
	if err := c.BodyParser(&body); err != nil {
		return respondErr(c, apperr.New(apperr.CodeInvalidBody, fiber.StatusBadRequest, "invalid request body"))
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := cc.Service.CreateCOD(ctx, body)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(resp)
}

// Webhook verifies the signature over the raw body before any parsing or
// side effect. Side-effect failures are logged and acknowledged anyway; the
// processor's redelivery would not make them more retryable.
func (cc *CheckoutController) Webhook(c *fiber.Ctx) error {
	event, err := cc.Verifier.VerifySignature(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		return respondErr(c, apperr.New(apperr.CodeBadSignature, fiber.StatusBadRequest, "signature verification failed"))
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := cc.Service.HandleEvent(ctx, event); err != nil {
		log.Printf("webhook %s (%s): %v", event.ID, event.Type, err)
	}
	return c.JSON(fiber.Map{"received": true})
}

func (cc *CheckoutController) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context(), 30*time.Second)
}

func respondErr(c *fiber.Ctx, err error) error {
	e := apperr.From(err)
	if e.Status >= 500 {
		log.Printf("checkout: %v", e)
	}
	return c.Status(e.Status).JSON(e)
}
