// Package api wires the HTTP routes of the session API.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/irfndi/optionscope/internal/api/handlers"
	"github.com/irfndi/optionscope/internal/middleware"
	"github.com/irfndi/optionscope/internal/services"
	"github.com/irfndi/optionscope/pkg/interfaces"
	"github.com/sirupsen/logrus"
)

// Dependencies are the collaborators the routes need. Database, Redis and
// Store may be nil when those backends are disabled.
type Dependencies struct {
	Sessions *services.SessionManager
	Pricing  interfaces.PricingHealthChecker
	Breaker  *services.CircuitBreaker
	Database handlers.HealthChecker
	Redis    handlers.HealthChecker
	Store    handlers.StoreStatsProvider
	Auth     *middleware.AuthMiddleware
	Admin    *middleware.AdminMiddleware
	Logger   *logrus.Logger
	Version  string
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.Pricing, deps.Breaker, deps.Database, deps.Redis, deps.Version)
	sessionHandler := handlers.NewSessionHandler(deps.Sessions, deps.Auth, deps.Logger)
	historyHandler := handlers.NewHistoryHandler(deps.Sessions, deps.Logger)
	adminHandler := handlers.NewAdminHandler(deps.Sessions, deps.Breaker, deps.Store)

	// Health check endpoints
	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/models", historyHandler.GetModels)
		v1.GET("/tickers/recent", historyHandler.GetRecentTickers)
		v1.GET("/lookups", historyHandler.GetLookups)

		v1.POST("/sessions", sessionHandler.CreateSession)

		// Every per-session route needs that session's token.
		session := v1.Group("/sessions/:id")
		session.Use(deps.Auth.RequireSession("id"))
		{
			session.GET("", sessionHandler.GetSession)
			session.DELETE("", sessionHandler.DeleteSession)
			session.PUT("/ticker", sessionHandler.SetTicker)
			session.POST("/contracts", sessionHandler.LoadContracts)
			session.GET("/contracts/groups", sessionHandler.GetGroups)
			session.PUT("/selection", sessionHandler.SelectContract)
			session.PUT("/model", sessionHandler.SetModel)
			session.POST("/heatmap", sessionHandler.LoadHeatmap)
			session.POST("/reset", sessionHandler.Reset)
			session.GET("/events", sessionHandler.Events)
		}

		admin := v1.Group("/admin")
		admin.Use(deps.Admin.RequireAdminAuth())
		{
			admin.GET("/stats", adminHandler.GetStats)
			admin.POST("/sessions/sweep", adminHandler.SweepSessions)
			admin.POST("/breaker/reset", adminHandler.ResetBreaker)
		}
	}
}
