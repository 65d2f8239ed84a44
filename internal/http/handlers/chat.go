package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/trackchat-backend/internal/data/repos"
	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/http/response"
	"github.com/yungbote/trackchat-backend/internal/platform/apierr"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/services"
)

type ChatHandler struct {
	chat     services.ChatService
	websites services.WebsiteService
}

func NewChatHandler(chat services.ChatService, websites services.WebsiteService) *ChatHandler {
	return &ChatHandler{chat: chat, websites: websites}
}

type startChatReq struct {
	SiteID    string `json:"site_id"`
	VisitorID string `json:"visitor_id"`
	Message   string `json:"message"`
}

type operatorStartChatReq struct {
	WebsiteID uint64 `json:"website_id"`
	VisitorID string `json:"visitor_id"`
	Message   string `json:"message"`
}

type postMessageReq struct {
	Message string `json:"message"`
}

// GET /api/chat/:site_id/:visitor_id?limit=
func (h *ChatHandler) VisitorChat(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	site, err := h.websites.Resolve(dbc, c.Param("site_id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	chat, err := h.chat.ActiveChatForVisitor(dbc, site.ID, c.Param("visitor_id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	if chat == nil {
		response.RespondOK(c, gin.H{"chat": nil, "messages": []any{}})
		return
	}
	msgs, err := h.chat.RecentMessages(dbc, chat.ID, intQuery(c, "limit", 50))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, gin.H{"chat": chat, "messages": msgs})
}

// POST /api/chat
func (h *ChatHandler) VisitorStart(c *gin.Context) {
	var req startChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apierr.Validation("invalid_request", "%v", err))
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	site, err := h.websites.Resolve(dbc, req.SiteID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	res, err := h.chat.FindOrCreateActiveChat(dbc, site.ID, req.VisitorID, services.FindOrCreateOptions{
		InitialMessage: req.Message,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/admin/chats?website_id=&visitor_id=&status=&limit=
func (h *ChatHandler) List(c *gin.Context) {
	websiteID, err := uintQuery(c, "website_id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	chats, err := h.chat.ListChats(dbc, repos.ChatListFilter{
		WebsiteID: websiteID,
		VisitorID: c.Query("visitor_id"),
		Status:    c.Query("status"),
		Limit:     intQuery(c, "limit", 100),
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, gin.H{"chats": chats})
}

// POST /api/admin/chats
func (h *ChatHandler) Start(c *gin.Context) {
	var req operatorStartChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apierr.Validation("invalid_request", "%v", err))
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	res, err := h.chat.FindOrCreateActiveChat(dbc, req.WebsiteID, req.VisitorID, services.FindOrCreateOptions{
		InitialMessage: req.Message,
		InitialIsAdmin: true,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/admin/chats/:id?after_seq=
func (h *ChatHandler) Get(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	chat, err := h.chat.GetChat(dbc, id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	msgs, err := h.chat.ListMessages(dbc, id, int64(intQuery(c, "after_seq", 0)), intQuery(c, "limit", 500))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, gin.H{"chat": chat, "messages": msgs})
}

// POST /api/admin/chats/:id/messages
func (h *ChatHandler) PostMessage(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req postMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apierr.Validation("invalid_request", "%v", err))
		return
	}
	msg, err := h.chat.PostMessage(dbctx.Context{Ctx: c.Request.Context()}, id, true, req.Message)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"message": msg})
}

// POST /api/admin/chats/:id/close
func (h *ChatHandler) Close(c *gin.Context) {
	h.mutate(c, h.chat.CloseChat)
}

// POST /api/admin/chats/:id/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	h.mutate(c, h.chat.MarkRead)
}

// DELETE /api/admin/chats/:id
func (h *ChatHandler) Delete(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	if err := h.chat.DeleteChat(dbctx.Context{Ctx: c.Request.Context()}, id); err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": id})
}

func (h *ChatHandler) mutate(c *gin.Context, fn func(dbctx.Context, uint64) (*types.Chat, error)) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	chat, err := fn(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, gin.H{"chat": chat})
}
