package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/http/response"
	"github.com/yungbote/trackchat-backend/internal/platform/apierr"
	"github.com/yungbote/trackchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
	"github.com/yungbote/trackchat-backend/internal/realtime"
	"github.com/yungbote/trackchat-backend/internal/services"
)

type SocketConfig struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadLimit    int64
}

func (c SocketConfig) withDefaults() SocketConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 16 << 10
	}
	return c
}

// inboundFrame is what either side of a chat sends over its socket.
type inboundFrame struct {
	Message string `json:"message"`
	ChatID  uint64 `json:"chat_id,omitempty"`
}

type SocketHandler struct {
	log      *logger.Logger
	hub      *realtime.Hub
	chat     services.ChatService
	websites services.WebsiteService
	cfg      SocketConfig
	upgrader websocket.Upgrader
}

func NewSocketHandler(log *logger.Logger, hub *realtime.Hub, chat services.ChatService, websites services.WebsiteService, cfg SocketConfig) *SocketHandler {
	return &SocketHandler{
		log:      log.With("handler", "SocketHandler"),
		hub:      hub,
		chat:     chat,
		websites: websites,
		cfg:      cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The widget is embedded on customer sites; the operator route is token-gated.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// GET /ws/chat/:visitor_id?site_id=
func (h *SocketHandler) Visitor(c *gin.Context) {
	visitorID := c.Param("visitor_id")
	if visitorID == "" {
		response.Fail(c, apierr.Validation("missing_visitor_id", "visitor_id is required"))
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	site, err := h.websites.Resolve(dbc, c.Query("site_id"))
	if err != nil {
		response.Fail(c, err)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("visitor upgrade failed", "visitor_id", visitorID, "error", err)
		return
	}
	conn := h.hub.NewConn(realtime.KindVisitor, visitorID)
	if err := h.hub.Join(types.VisitorRoom(visitorID), conn); err != nil {
		h.hub.Close(conn)
		ws.Close()
		return
	}

	ctx := c.Request.Context()
	go h.writePump(ws, conn)
	h.readPump(ws, conn, func(f inboundFrame) error {
		return h.visitorMessage(dbctx.Context{Ctx: ctx}, site.ID, visitorID, f)
	})
}

func (h *SocketHandler) visitorMessage(dbc dbctx.Context, websiteID uint64, visitorID string, f inboundFrame) error {
	if strings.TrimSpace(f.Message) == "" {
		return apierr.Validation("empty_message", "message is required")
	}
	if f.ChatID == 0 {
		_, err := h.chat.FindOrCreateActiveChat(dbc, websiteID, visitorID, services.FindOrCreateOptions{
			InitialMessage: f.Message,
		})
		return err
	}
	chat, err := h.chat.GetChat(dbc, f.ChatID)
	if err != nil {
		return err
	}
	if chat.WebsiteID != websiteID || chat.VisitorID != visitorID {
		return apierr.NotFound("chat_not_found", "chat %d not found", f.ChatID)
	}
	_, err = h.chat.PostMessage(dbc, chat.ID, false, f.Message)
	return err
}

// GET /ws/admin/chat/:chat_id
func (h *SocketHandler) Operator(c *gin.Context) {
	chatID, err := uintParam(c, "chat_id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	chat, err := h.chat.GetChat(dbctx.Context{Ctx: c.Request.Context()}, chatID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	operator := "anonymous"
	if od := ctxutil.GetOperatorData(c.Request.Context()); od != nil {
		operator = od.OperatorID
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("operator upgrade failed", "chat_id", chatID, "error", err)
		return
	}
	conn := h.hub.NewConn(realtime.KindOperator, operator)
	if err := h.hub.Subscribe(conn, chat.Rooms()...); err != nil {
		h.hub.Close(conn)
		ws.Close()
		return
	}

	ctx := c.Request.Context()
	go h.writePump(ws, conn)
	h.readPump(ws, conn, func(f inboundFrame) error {
		_, err := h.chat.PostMessage(dbctx.Context{Ctx: ctx}, chat.ID, true, f.Message)
		return err
	})
}

// readPump owns the read side of ws until the peer goes away or sends a frame
// that is not JSON. It always unregisters conn on the way out.
func (h *SocketHandler) readPump(ws *websocket.Conn, conn *realtime.Conn, handle func(inboundFrame) error) {
	defer func() {
		h.hub.Close(conn)
		ws.Close()
	}()

	pongWait := h.cfg.PingInterval * 2
	ws.SetReadLimit(h.cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("socket read ended", "conn_id", conn.ID, "error", err)
			}
			return
		}
		var f inboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			h.log.Warn("malformed socket frame", "conn_id", conn.ID, "kind", conn.Kind)
			msg := websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "malformed frame")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.cfg.WriteTimeout))
			return
		}
		if err := handle(f); err != nil {
			h.replyError(conn, err)
		}
	}
}

func (h *SocketHandler) replyError(conn *realtime.Conn, err error) {
	msg := "internal error"
	if status, _ := apierr.StatusOf(err); status < http.StatusInternalServerError {
		msg = err.Error()
	} else {
		h.log.Error("socket message failed", "conn_id", conn.ID, "error", err)
	}
	h.hub.Send(conn, realtime.ErrorEnvelope(msg))
}

// writePump is the only writer of ws data frames. It exits when the registry
// closes conn.Outbound or a write fails.
func (h *SocketHandler) writePump(ws *websocket.Conn, conn *realtime.Conn) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		h.hub.Close(conn)
		ws.Close()
	}()

	for {
		select {
		case env, ok := <-conn.Outbound:
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteJSON(env); err != nil {
				h.log.Debug("socket write failed", "conn_id", conn.ID, "error", err)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
