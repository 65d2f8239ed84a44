package chat

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

type ChatMessageRepo interface {
	Create(dbc dbctx.Context, m *types.ChatMessage) (*types.ChatMessage, error)
	ListByChat(dbc dbctx.Context, chatID uint64, afterSeq int64, limit int) ([]*types.ChatMessage, error)
	ListRecent(dbc dbctx.Context, chatID uint64, limit int) ([]*types.ChatMessage, error)
	CountByChat(dbc dbctx.Context, chatID uint64) (int64, error)
}

type chatMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, log *logger.Logger) ChatMessageRepo {
	return &chatMessageRepo{db: db, log: log.With("repo", "ChatMessageRepo")}
}

// Create persists m. Callers assign Seq under the chat row lock.
func (r *chatMessageRepo) Create(dbc dbctx.Context, m *types.ChatMessage) (*types.ChatMessage, error) {
	if m == nil {
		return nil, fmt.Errorf("missing message")
	}
	if m.ChatID == 0 {
		return nil, fmt.Errorf("missing chat_id")
	}
	if m.Seq <= 0 {
		return nil, fmt.Errorf("missing seq")
	}
	if err := dbc.DB(r.db).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListByChat returns messages after afterSeq in ascending order.
func (r *chatMessageRepo) ListByChat(dbc dbctx.Context, chatID uint64, afterSeq int64, limit int) ([]*types.ChatMessage, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("missing chat_id")
	}
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	var out []*types.ChatMessage
	if err := dbc.DB(r.db).
		Model(&types.ChatMessage{}).
		Where("chat_id = ? AND seq > ?", chatID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListRecent returns the newest limit messages, normalized to ascending order.
func (r *chatMessageRepo) ListRecent(dbc dbctx.Context, chatID uint64, limit int) ([]*types.ChatMessage, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("missing chat_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []*types.ChatMessage
	if err := dbc.DB(r.db).
		Model(&types.ChatMessage{}).
		Where("chat_id = ?", chatID).
		Order("seq DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *chatMessageRepo) CountByChat(dbc dbctx.Context, chatID uint64) (int64, error) {
	var n int64
	if err := dbc.DB(r.db).
		Model(&types.ChatMessage{}).
		Where("chat_id = ?", chatID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
