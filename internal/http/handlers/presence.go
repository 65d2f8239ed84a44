package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/trackchat-backend/internal/http/response"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/services"
)

type PresenceHandler struct {
	presence services.PresenceService
}

func NewPresenceHandler(presence services.PresenceService) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// GET /api/admin/presence/online?website_id=
func (h *PresenceHandler) ListOnline(c *gin.Context) {
	websiteID, err := uintQuery(c, "website_id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	online, err := h.presence.ListOnline(dbc, websiteID, time.Now().UTC())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, gin.H{"visitors": online, "count": len(online)})
}

// GET /api/admin/presence/:visitor_id
func (h *PresenceHandler) VisitorStatus(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	st, err := h.presence.IsOnline(dbc, c.Param("visitor_id"), time.Now().UTC())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, st)
}
