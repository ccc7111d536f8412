package main // Entry point package

import (
	"log" // Logging library

	"github.com/joho/godotenv"    // Loads .env files into the environment
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/event-registration/internal/config"     // Internal config loaders
	"github.com/iliyamo/event-registration/internal/database"   // MySQL connection helper
	"github.com/iliyamo/event-registration/internal/handler"    // HTTP handlers
	"github.com/iliyamo/event-registration/internal/lock"       // In-process lock service
	"github.com/iliyamo/event-registration/internal/middleware" // Rate limiting middleware
	"github.com/iliyamo/event-registration/internal/payment"    // Payment provider client
	"github.com/iliyamo/event-registration/internal/queue"      // RabbitMQ publisher and consumer
	"github.com/iliyamo/event-registration/internal/repository" // DB repositories
	"github.com/iliyamo/event-registration/internal/router"     // Route registration
	"github.com/iliyamo/event-registration/internal/service"    // Purchase and webhook services
)

func main() {
	// Load a .env file when present; real deployments set the environment
	// directly and the file is simply absent.
	_ = godotenv.Load()

	cfg := config.Load()
	lockCfg := config.LoadLockConfig()
	rateCfg := config.LoadRateLimitConfig()
	runtimeCfg := config.LoadRuntimeConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis backs the rate limiter and the runtime settings snapshot.  A
	// nil client degrades both to their defaults instead of failing boot.
	rdb := config.NewRedisClient()

	// One lock service instance for the whole process; the purchase
	// workflow and the webhook processor must share it so their keys
	// contend in the same table.
	locks := lock.New()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := repository.NewEventRepo(db)
	purchases := repository.NewPurchaseRepo(db)

	provider := payment.NewHTTPProvider(cfg.PaymentBaseURL, cfg.PaymentAPIKey)
	publisher := queue.NewPublisher("")
	settings := config.NewRuntimeSource(rdb, runtimeCfg)

	purchaseSvc := service.NewPurchaseService(locks, lockCfg.AcquireTimeout, events, purchases, provider, settings)
	webhookSvc := service.NewWebhookService(locks, lockCfg.AcquireTimeout, events, purchases, publisher)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterEvents(e, handler.NewEventHandler(events), cfg.JWTSecret)
	router.RegisterPurchases(e, handler.NewPurchaseHandler(purchaseSvc), cfg.JWTSecret, middleware.NewTokenBucket(rateCfg, rdb))
	router.RegisterWebhook(e, handler.NewWebhookHandler(webhookSvc))
	router.RegisterSystem(e, handler.NewLockStatsHandler(locks, lockCfg), cfg.JWTSecret)

	// The consumer logs completed purchases for downstream processing; a
	// broker outage must not keep the API from serving.
	go func() {
		if err := queue.StartPurchaseConsumer(); err != nil {
			log.Printf("queue consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
