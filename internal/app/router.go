package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"paygate/internal/handler"
	"paygate/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	CallbackHandler       *handler.CallbackHandler
	ReconciliationHandler *handler.ReconciliationHandler
	RedisClient           *redis.Client
	NewRelicApp           *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider callback routes. No idempotency middleware here: the
	// ledger's receipt-id dedup is the replay guard, and the provider
	// sends no idempotency header anyway.
	callbacks := router.Group("/callbacks/mpesa")
	{
		callbacks.POST("/stk", deps.CallbackHandler.STKResult)
		callbacks.POST("/c2b/confirmation", deps.CallbackHandler.C2BConfirmation)
	}

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
	{
		// Manual reconciliation routes.
		reconciliation := v1.Group("/reconciliation")
		{
			reconciliation.GET("/unlinked", deps.ReconciliationHandler.ListUnlinked)
			reconciliation.POST("/link", deps.ReconciliationHandler.Link)
		}
	}

	return router
}
