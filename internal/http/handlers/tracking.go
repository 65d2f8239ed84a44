package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/trackchat-backend/internal/http/response"
	"github.com/yungbote/trackchat-backend/internal/platform/apierr"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/services"
)

type TrackingHandler struct {
	ingest services.IngestService
}

func NewTrackingHandler(ingest services.IngestService) *TrackingHandler {
	return &TrackingHandler{ingest: ingest}
}

// POST /api/track
func (h *TrackingHandler) Track(c *gin.Context) {
	var ev services.TrackEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		response.Fail(c, apierr.Validation("invalid_request", "%v", err))
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	res, err := h.ingest.Track(dbc, ev)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/admin/visitors/:visitor_id/activities?limit=100
func (h *TrackingHandler) VisitorActivities(c *gin.Context) {
	visitorID := c.Param("visitor_id")
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	activities, err := h.ingest.ListTimeline(dbc, visitorID, intQuery(c, "limit", 100))
	if err != nil {
		response.Fail(c, err)
		return
	}
	visits, err := h.ingest.CountVisits(dbc, visitorID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, gin.H{"activities": activities, "total_visits": visits})
}
