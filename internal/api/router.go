// Package api wires the HTTP routes of the rasterscope session server.
//
// The session API lives under /api/v1/session and acts on the one
// coordinator owned by the process. /healthz sits at the root and is left
// out of request logs.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rasterscope/rasterscope/internal/api/session"
	"github.com/rasterscope/rasterscope/internal/config"
	"github.com/rasterscope/rasterscope/internal/coordinator"
	"github.com/rasterscope/rasterscope/internal/middleware"
)

// SessionPrefix is the route group of the session API
const SessionPrefix = "/api/v1/session"

const healthPath = "/healthz"

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, coord *coordinator.Coordinator) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware(healthPath))
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET(healthPath, healthCheckHandler())

	session.NewHandlers(coord).Register(router.Group(SessionPrefix))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return router
}

// healthCheckHandler reports liveness. The coordinator has no external
// dependency worth probing: catalog failures surface in the cascade state.
func healthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
