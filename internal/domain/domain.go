package domain

import (
	"github.com/yungbote/trackchat-backend/internal/domain/chat"
	"github.com/yungbote/trackchat-backend/internal/domain/tracking"
)

const (
	ActivityViewedPage     = tracking.ActivityViewedPage
	ActivityFormSubmission = tracking.ActivityFormSubmission
	ActivityHeartbeat      = tracking.ActivityHeartbeat
	ActivityInquiry        = tracking.ActivityInquiry

	ChatStatusActive = chat.StatusActive
	ChatStatusClosed = chat.StatusClosed
)

type Website = tracking.Website
type Person = tracking.Person
type Activity = tracking.Activity
type HeartbeatMark = tracking.HeartbeatMark
type OnlineVisitor = tracking.OnlineVisitor
type PageRef = tracking.PageRef

type Chat = chat.Chat
type ChatMessage = chat.ChatMessage

func VisitorRoom(visitorID string) string { return chat.VisitorRoom(visitorID) }

func AdminRoom(chatID uint64) string { return chat.AdminRoom(chatID) }

// Models lists every persisted type, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Website{},
		&Person{},
		&Activity{},
		&Chat{},
		&ChatMessage{},
	}
}
