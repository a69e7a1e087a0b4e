package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"screenwise/internal/api/handlers"
	"screenwise/internal/api/middleware"
	"screenwise/internal/core"
	"screenwise/internal/monitor"
	"screenwise/internal/storage"
)

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Storage    storage.Storage
	Lifecycle  *core.SessionLifecycle
	Aggregator *core.UsageAggregator
	Actions    *core.InstantActions
	Monitor    *monitor.Monitor
	Clock      core.Clock
	APIKey     string
	Logger     *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))
	router.Use(middleware.ContentType())

	// Health check (no auth)
	healthHandler := handlers.NewHealthHandler()
	router.GET("/health", healthHandler.GetHealth)

	// API v1 routes (with authentication)
	v1 := router.Group("/v1")
	v1.Use(authMiddleware(config.APIKey))
	{
		// Children endpoints
		childrenHandler := handlers.NewChildrenHandler(config.Storage, config.Logger)
		v1.GET("/children", childrenHandler.ListChildren)
		v1.POST("/children", childrenHandler.CreateChild)
		v1.GET("/children/:id", childrenHandler.GetChild)
		v1.PATCH("/children/:id", childrenHandler.UpdateChild)
		v1.DELETE("/children/:id", childrenHandler.DeleteChild)

		// Devices endpoints
		devicesHandler := handlers.NewDevicesHandler(config.Storage, config.Logger)
		v1.GET("/devices", devicesHandler.ListDevices)
		v1.POST("/devices", devicesHandler.CreateDevice)
		v1.GET("/devices/:id", devicesHandler.GetDevice)
		v1.DELETE("/devices/:id", devicesHandler.DeleteDevice)

		// Sessions endpoints
		sessionsHandler := handlers.NewSessionsHandler(config.Storage, config.Lifecycle, config.Logger)
		v1.GET("/sessions", sessionsHandler.ListSessions)
		v1.POST("/sessions", sessionsHandler.CreateSession)
		v1.GET("/sessions/:id", sessionsHandler.GetSession)
		v1.POST("/sessions/:id/stop", sessionsHandler.StopSession)
		v1.POST("/sessions/:id/pause", sessionsHandler.PauseSession)
		v1.POST("/sessions/:id/resume", sessionsHandler.ResumeSession)

		// Control policy endpoints
		policiesHandler := handlers.NewPoliciesHandler(config.Storage, config.Logger)
		v1.GET("/children/:id/policy", policiesHandler.GetPolicy)
		v1.PUT("/children/:id/policy", policiesHandler.PutPolicy)
		v1.DELETE("/children/:id/policy", policiesHandler.DeletePolicy)

		// Instant action endpoints
		actionsHandler := handlers.NewActionsHandler(config.Storage, config.Actions, config.Clock, config.Logger)
		v1.GET("/children/:id/actions", actionsHandler.ListActions)
		v1.POST("/children/:id/actions/pause", actionsHandler.PauseAll)
		v1.POST("/children/:id/actions/unlock", actionsHandler.UnlockAll)
		v1.POST("/children/:id/actions/grant", actionsHandler.GrantTime)

		// Usage and warnings endpoints
		statsHandler := handlers.NewStatsHandler(config.Storage, config.Aggregator, config.Monitor,
			config.Actions, config.Clock, config.Logger)
		v1.GET("/children/:id/usage/today", statsHandler.GetChildUsage)
		v1.GET("/children/:id/warnings", statsHandler.GetChildWarnings)
		v1.GET("/stats/today", statsHandler.GetTodayStats)
	}

	return router
}

// authMiddleware verifies API key authentication
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-Screenwise-Key")
		if providedKey != apiKey {
			c.JSON(401, gin.H{
				"error": "Unauthorized",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
