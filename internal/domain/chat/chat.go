package chat

import (
	"strconv"
	"time"
)

const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Chat is one conversation between a website's operators and one visitor.
// WebsiteID and VisitorID never change after creation; at most one chat per
// (WebsiteID, VisitorID) is active at a time.
type Chat struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	WebsiteID uint64  `gorm:"column:website_id;not null;index" json:"website_id"`
	VisitorID string  `gorm:"column:visitor_id;not null;index" json:"visitor_id"`
	PersonID  *uint64 `gorm:"column:person_id;index" json:"person_id,omitempty"`
	Status    string  `gorm:"column:status;not null;default:'active';index" json:"status"`

	// Per-chat sequencing, advanced under the chat row lock.
	NextSeq int64 `gorm:"column:next_seq;not null;default:0" json:"-"`

	UnreadCount   int        `gorm:"column:unread_count;not null;default:0" json:"unread_count"`
	LastMessage   string     `gorm:"column:last_message;type:text;not null;default:''" json:"last_message"`
	LastMessageAt *time.Time `gorm:"column:last_message_at" json:"last_message_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (Chat) TableName() string { return "chat" }

func (c *Chat) IsActive() bool { return c != nil && c.Status == StatusActive }

func VisitorRoom(visitorID string) string { return "visitor:" + visitorID }

func AdminRoom(chatID uint64) string { return "admin-chat:" + strconv.FormatUint(chatID, 10) }

// Rooms lists every registry room that must see this chat's traffic.
func (c *Chat) Rooms() []string {
	return []string{VisitorRoom(c.VisitorID), AdminRoom(c.ID)}
}
