package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/http/response"
	"github.com/yungbote/trackchat-backend/internal/realtime"
)

type HealthHandler struct {
	db  *gorm.DB
	hub *realtime.Hub
}

func NewHealthHandler(db *gorm.DB, hub *realtime.Hub) *HealthHandler {
	return &HealthHandler{db: db, hub: hub}
}

// GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.hub != nil {
		conns, rooms := h.hub.Stats()
		body["connections"] = conns
		body["rooms"] = rooms
	}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			response.RespondError(c, http.StatusServiceUnavailable, "storage_unavailable", err)
			return
		}
	}
	response.RespondOK(c, body)
}
