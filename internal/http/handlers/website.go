package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/trackchat-backend/internal/http/response"
	"github.com/yungbote/trackchat-backend/internal/platform/apierr"
	"github.com/yungbote/trackchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/services"
)

type WebsiteHandler struct {
	websites services.WebsiteService
}

func NewWebsiteHandler(websites services.WebsiteService) *WebsiteHandler {
	return &WebsiteHandler{websites: websites}
}

type createWebsiteReq struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

func operatorID(c *gin.Context) string {
	if od := ctxutil.GetOperatorData(c.Request.Context()); od != nil {
		return od.OperatorID
	}
	return ""
}

// GET /api/admin/websites
func (h *WebsiteHandler) List(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	sites, err := h.websites.List(dbc, operatorID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, gin.H{"websites": sites})
}

// POST /api/admin/websites
func (h *WebsiteHandler) Create(c *gin.Context) {
	var req createWebsiteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apierr.Validation("invalid_request", "%v", err))
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	site, err := h.websites.Create(dbc, operatorID(c), req.Name, req.Domain)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"website": site})
}

// DELETE /api/admin/websites/:id
func (h *WebsiteHandler) Delete(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if err := h.websites.Delete(dbc, operatorID(c), id); err != nil {
		response.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
