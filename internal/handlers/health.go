package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kavia-common/data-insight-assistant/internal/store"
	apperrors "github.com/kavia-common/data-insight-assistant/pkg/errors"
	"github.com/kavia-common/data-insight-assistant/pkg/logger"
)

// HealthHandler handles service and database health endpoints
type HealthHandler struct {
	store store.Store
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(st store.Store) *HealthHandler {
	return &HealthHandler{store: st}
}

// Health is a simple liveness check
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DBHealth verifies connectivity to the active storage backend
func (h *HealthHandler) DBHealth(c *gin.Context) {
	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		logger.Error("db health check failed", "error", err)
		e := apperrors.Unavailable("database unavailable", err)
		c.JSON(e.Code, gin.H{"error": e.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
