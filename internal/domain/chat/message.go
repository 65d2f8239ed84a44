package chat

import (
	"time"
)

// ChatMessage is immutable once written. Seq orders messages within a chat;
// CreatedAt is assigned under the same lock and never decreases along Seq.
type ChatMessage struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID  uint64 `gorm:"column:chat_id;not null;uniqueIndex:idx_chat_message_chat_seq,priority:1" json:"chat"`
	Seq     int64  `gorm:"column:seq;not null;uniqueIndex:idx_chat_message_chat_seq,priority:2" json:"-"`
	IsAdmin bool   `gorm:"column:is_admin;not null;default:false" json:"is_admin"`
	Message string `gorm:"column:message;type:text;not null" json:"message"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_message" }
