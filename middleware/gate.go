package middleware

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/branlog/split-payment/apperr"
	"github.com/branlog/split-payment/config"
	"github.com/branlog/split-payment/shopify"
)

type CustomerSearcher interface {
	SearchCustomers(ctx context.Context, email string) ([]shopify.Customer, error)
}

type GateCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, val string, ttl time.Duration) error
}

// CustomerGate rejects checkout requests unless the body carries a customer
// email known to the commerce platform and, when configured, tagged with the
// required marker. Fails closed: a lookup error is a rejection, not a pass.
// Positive results are cached briefly; cache errors count as misses.
func CustomerGate(cfg *config.Config, commerce CustomerSearcher, cache GateCache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.RequireCustomer {
			return c.Next()
		}

		var body struct {
			Customer struct {
				Email string `json:"email"`
			} `json:"customer"`
		}
		if err := json.Unmarshal(c.Body(), &body); err != nil || body.Customer.Email == "" {
			e := apperr.New(apperr.CodeCustomerRequired, fiber.StatusForbidden, "customer email is required")
			return c.Status(e.Status).JSON(e)
		}
		email := strings.ToLower(strings.TrimSpace(body.Customer.Email))

		key := "gate:" + email
		if v, err := cache.Get(c.Context(), key); err == nil && v == "1" {
			return c.Next()
		}

		ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
		defer cancel()

		customers, err := commerce.SearchCustomers(ctx, email)
		if err != nil {
			log.Printf("customer gate: lookup for %s failed: %v", email, err)
			e := apperr.New(apperr.CodeNotAllowed, fiber.StatusForbidden, "customer not allowed")
			return c.Status(e.Status).JSON(e)
		}
		if !allowed(customers, email, cfg.RequiredCustomerTag) {
			e := apperr.New(apperr.CodeNotAllowed, fiber.StatusForbidden, "customer not allowed")
			return c.Status(e.Status).JSON(e)
		}

		if err := cache.Set(c.Context(), key, "1", cfg.GateCacheTTL); err != nil {
			log.Printf("customer gate: cache set for %s failed: %v", email, err)
		}
		return c.Next()
	}
}

func allowed(customers []shopify.Customer, email, requiredTag string) bool {
	for _, cust := range customers {
		if !strings.EqualFold(cust.Email, email) {
			continue
		}
		if requiredTag == "" {
			return true
		}
		for _, tag := range strings.Split(cust.Tags, ",") {
			if strings.EqualFold(strings.TrimSpace(tag), requiredTag) {
				return true
			}
		}
	}
	return false
}
