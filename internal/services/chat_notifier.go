package services

import (
	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
	"github.com/yungbote/trackchat-backend/internal/realtime"
)

// ChatNotifier fans committed chat events out to live connections.
type ChatNotifier interface {
	MessageCreated(c *types.Chat, m *types.ChatMessage)
	ChatClosed(c *types.Chat)
}

type hubChatNotifier struct {
	hub *realtime.Hub
	log *logger.Logger
}

func NewChatNotifier(hub *realtime.Hub, baseLog *logger.Logger) ChatNotifier {
	return &hubChatNotifier{hub: hub, log: baseLog.With("component", "ChatNotifier")}
}

func (n *hubChatNotifier) MessageCreated(c *types.Chat, m *types.ChatMessage) {
	if n == nil || n.hub == nil || c == nil || m == nil {
		return
	}
	delivered := n.hub.Publish(realtime.Envelope{Type: realtime.EnvelopeChatMessage, Message: m}, c.Rooms()...)
	n.log.Debug("chat message fanned out", "chat_id", c.ID, "seq", m.Seq, "delivered", delivered)
}

func (n *hubChatNotifier) ChatClosed(c *types.Chat) {
	if n == nil || n.hub == nil || c == nil {
		return
	}
	n.hub.Publish(realtime.Envelope{Type: realtime.EnvelopeChatClosed, ChatID: c.ID}, c.Rooms()...)
}
