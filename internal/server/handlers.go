package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/renameflux/renameflux/internal/engine"
	"github.com/renameflux/renameflux/internal/telegramapi"
)

type handler struct {
	sup    *engine.Supervisor
	logger *slog.Logger
}

func newHandler(sup *engine.Supervisor, logger *slog.Logger) *handler {
	return &handler{sup: sup, logger: logger}
}

// requestLogger logs one line per completed request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type startRequest struct {
	APIID         string                  `json:"api_id"`
	APIHash       string                  `json:"api_hash"`
	Phone         string                  `json:"phone"`
	SessionString string                  `json:"session_string"`
	SourceChannel string                  `json:"source_channel"`
	DestChannel   string                  `json:"dest_channel"`
	DeleteAfter   bool                    `json:"delete_after"`
	Mappings      []engine.MappingRequest `json:"mappings"`
}

// start handles POST /api/start.
func (h *handler) start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	jobID, err := h.sup.Start(engine.JobConfig{
		Credentials: telegramapi.Credentials{
			APIID:   req.APIID,
			APIHash: req.APIHash,
			Phone:   req.Phone,
		},
		SessionToken:  req.SessionString,
		SourceChannel: req.SourceChannel,
		DestChannel:   req.DestChannel,
		DeleteAfter:   req.DeleteAfter,
		Mappings:      req.Mappings,
	})
	switch {
	case errors.Is(err, engine.ErrConfig):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, engine.ErrJobRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

type otpRequest struct {
	JobID string `json:"job_id"`
	Code  string `json:"code"`
}

// submitOTP handles POST /api/otp.
func (h *handler) submitOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	if err := h.sup.SubmitOTP(req.JobID, req.Code); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

type stopRequest struct {
	JobID string `json:"job_id"`
}

// stop handles POST /api/stop.
func (h *handler) stop(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := h.sup.Stop(req.JobID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopping"})
}

// jobStatus handles GET /api/job/:id.
func (h *handler) jobStatus(c *gin.Context) {
	snap, err := h.sup.Snapshot(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}
