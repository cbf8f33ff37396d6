package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"fashionhub/internal/handler"
	"fashionhub/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	OrderHandler        *handler.OrderHandler
	PaymentHandler      *handler.PaymentHandler
	RedisClient         *redis.Client
	NewRelicApp         *newrelic.Application
	SessionCookieName   string
	SessionCookieSecure bool
	CallbackPath        string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Session must run before idempotency, which scopes keys by session.
	router.Use(middleware.SessionMiddleware(deps.SessionCookieName, deps.SessionCookieSecure))
	if deps.RedisClient != nil {
		router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Browser return from the payment gateway.
	callbackPath := deps.CallbackPath
	if callbackPath == "" {
		callbackPath = "/payments/khalti/callback"
	}
	router.GET(callbackPath, deps.PaymentHandler.KhaltiCallback)

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Order routes.
		orders := v1.Group("/orders")
		{
			orders.POST("", deps.OrderHandler.CreateOrder)
			orders.GET("/:id", deps.OrderHandler.GetOrder)
			orders.POST("/:id/cancel", deps.OrderHandler.CancelOrder)
			orders.POST("/:id/pay/khalti", deps.PaymentHandler.InitiateKhalti)
		}

		// Operator routes.
		admin := v1.Group("/admin")
		{
			admin.POST("/orders/:id/verify", deps.PaymentHandler.RetryVerification)
		}
	}

	return router
}
