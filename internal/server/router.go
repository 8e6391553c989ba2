// Package server exposes the rename engine over HTTP: a small JSON API
// for job control and a websocket stream for live progress.
package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/renameflux/renameflux/internal/engine"
)

// NewRouter configures the Gin router with all routes.
func NewRouter(sup *engine.Supervisor, logger *slog.Logger, mode string) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	h := newHandler(sup, logger)

	r.GET("/health", h.health)

	api := r.Group("/api")
	{
		api.POST("/start", h.start)
		api.POST("/otp", h.submitOTP)
		api.POST("/stop", h.stop)
		api.GET("/job/:id", h.jobStatus)
	}

	r.GET("/ws/:job_id", h.stream)

	return r
}
