package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"fashionhub/internal/app"
	"fashionhub/internal/config"
	"fashionhub/internal/events"
	"fashionhub/internal/handler"
	"fashionhub/internal/khalti"
	internalRedis "fashionhub/internal/redis"
	"fashionhub/internal/repository/postgres"
	"fashionhub/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()
	for _, w := range cfg.Warnings() {
		log.Printf("[CONFIG] WARNING: %s", w)
	}

	if err := khalti.CheckSecretKey(cfg.Khalti.SecretKey); err != nil {
		// Checkout still works for cash on delivery; Khalti initiation will
		// refuse until the key is fixed.
		log.Printf("[CONFIG] WARNING: %v, online payments are disabled", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
			nrApp = nil
		} else {
			log.Printf("New Relic enabled: app=%s", cfg.NewRelic.AppName)
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	publisher, closePublisher := newPublisher(cfg.Kafka)
	defer closePublisher()

	server := wireServer(db, redisClient, publisher, nrApp, cfg)

	// Start server in goroutine.
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Long enough for an in-flight gateway verification to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), khalti.MaxTimeout+5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}

	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	log.Println("Server exited")
}

// newPublisher returns the Kafka publisher when enabled, falling back to the
// log publisher if Kafka is disabled or unreachable.
func newPublisher(cfg config.KafkaConfig) (events.Publisher, func() error) {
	if cfg.Enabled {
		kp, err := events.NewKafkaPublisher(cfg.Brokers, cfg.ClientID)
		if err == nil {
			log.Printf("Publishing order events to Kafka brokers=%v", cfg.Brokers)
			return kp, kp.Close
		}
		log.Printf("failed to connect to kafka, logging events instead: %v", err)
	}
	return events.NewLogPublisher(), func() error { return nil }
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(db *sql.DB, redisClient *redis.Client, publisher events.Publisher, nrApp *newrelic.Application, cfg *config.Config) *http.Server {
	// Initialize Redis stores.
	attemptStore := internalRedis.NewAttemptStore(redisClient, cfg.Session.AttemptTTL)
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	// Initialize repositories.
	orderRepo := postgres.NewOrderRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	gateway := khalti.NewClient(khalti.Config{
		BaseURL:   cfg.Khalti.BaseURL,
		SecretKey: cfg.Khalti.SecretKey,
		Timeout:   cfg.Khalti.Timeout,
	})

	// Initialize services.
	auditor := service.NewAuditor(auditRepo)
	orderService := service.NewOrderService(orderRepo, lockStore, cacheStore, gateway, auditor, publisher)
	paymentService := service.NewPaymentService(
		orderRepo,
		attemptStore,
		lockStore,
		cacheStore,
		gateway,
		auditor,
		publisher,
		service.PaymentConfig{
			SecretKey:        cfg.Khalti.SecretKey,
			CallbackPath:     cfg.Khalti.CallbackPath,
			MerchantUsername: cfg.Khalti.MerchantUsername,
		},
	)

	// Initialize handlers.
	orderHandler := handler.NewOrderHandler(orderService)
	paymentHandler := handler.NewPaymentHandler(paymentService, cfg.Server.PublicURL)

	router := app.NewRouter(app.RouterDeps{
		OrderHandler:        orderHandler,
		PaymentHandler:      paymentHandler,
		RedisClient:         redisClient,
		NewRelicApp:         nrApp,
		SessionCookieName:   cfg.Session.CookieName,
		SessionCookieSecure: cfg.Session.CookieSecure,
		CallbackPath:        cfg.Khalti.CallbackPath,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
