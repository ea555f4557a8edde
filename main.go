package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/branlog/split-payment/cache"
	"github.com/branlog/split-payment/checkout"
	"github.com/branlog/split-payment/config"
	"github.com/branlog/split-payment/controller"
	"github.com/branlog/split-payment/kafka"
	"github.com/branlog/split-payment/middleware"
	"github.com/branlog/split-payment/model"
	"github.com/branlog/split-payment/routes"
	"github.com/branlog/split-payment/shopify"
	"github.com/branlog/split-payment/store"
	"github.com/branlog/split-payment/stripe"
)

func main() {
	cfg := config.Load()

	// Postgres, Redis and Kafka are optional: the checkout path itself only
	// needs the two external APIs.
	var st checkout.CheckoutStore = store.Nop{}
	if cfg.DatabaseDSN != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
		if err != nil {
			log.Fatal("failed to connect checkout db:", err)
		}
		if err := db.AutoMigrate(&model.Checkout{}); err != nil {
			log.Fatal(err)
		}
		st = store.NewGorm(db)
	}

	var gateCache middleware.GateCache = cache.Nop{}
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(cfg.RedisAddr)
		if err != nil {
			log.Fatal("failed to connect redis:", err)
		}
		gateCache = rdb
		log.Println("Redis connected")
	}

	var events checkout.EventPublisher = kafka.Nop{}
	if cfg.KafkaBroker != "" {
		producer, err := kafka.NewProducer(cfg.KafkaBroker)
		if err != nil {
			log.Fatal("failed to start kafka producer:", err)
		}
		events = producer
	}

	stripeClient := stripe.NewClient(cfg.StripeBaseURL, cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	shopifyClient := shopify.NewClient(cfg.ShopifyBaseURL, cfg.ShopifyToken)

	svc := checkout.NewService(cfg, stripeClient, shopifyClient, st, events)
	cc := controller.NewCheckoutController(svc, stripeClient)

	app := fiber.New()
	app.Use(logger.New())
	app.Use(cors.New())
	app.Static("/public", "./public")

	routes.RegisterCheckoutRoutes(app, cc, middleware.CustomerGate(cfg, shopifyClient, gateCache))

	log.Println("HTTP server running on port " + cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("fiber error:", err)
	}
}
