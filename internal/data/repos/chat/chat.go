package chat

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

type ChatListFilter struct {
	WebsiteID uint64
	VisitorID string
	Status    string
	Limit     int
}

type ChatRepo interface {
	CreateActive(dbc dbctx.Context, websiteID uint64, visitorID string, personID *uint64) (*types.Chat, error)
	GetByID(dbc dbctx.Context, id uint64) (*types.Chat, error)
	GetActive(dbc dbctx.Context, websiteID uint64, visitorID string) (*types.Chat, error)
	LockByID(dbc dbctx.Context, id uint64) (*types.Chat, error)
	List(dbc dbctx.Context, f ChatListFilter) ([]*types.Chat, error)
	UpdateFields(dbc dbctx.Context, id uint64, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uint64) error
}

type chatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatRepo(db *gorm.DB, log *logger.Logger) ChatRepo {
	return &chatRepo{db: db, log: log.With("repo", "ChatRepo")}
}

// CreateActive inserts a new active chat. A concurrent winner surfaces as a
// unique violation on idx_chat_one_active.
func (r *chatRepo) CreateActive(dbc dbctx.Context, websiteID uint64, visitorID string, personID *uint64) (*types.Chat, error) {
	if websiteID == 0 {
		return nil, fmt.Errorf("missing website_id")
	}
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, fmt.Errorf("missing visitor_id")
	}
	row := &types.Chat{
		WebsiteID: websiteID,
		VisitorID: visitorID,
		PersonID:  personID,
		Status:    types.ChatStatusActive,
	}
	if err := dbc.DB(r.db).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// GetByID returns (nil, nil) when the chat does not exist.
func (r *chatRepo) GetByID(dbc dbctx.Context, id uint64) (*types.Chat, error) {
	if id == 0 {
		return nil, nil
	}
	var out types.Chat
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

func (r *chatRepo) GetActive(dbc dbctx.Context, websiteID uint64, visitorID string) (*types.Chat, error) {
	if websiteID == 0 || strings.TrimSpace(visitorID) == "" {
		return nil, nil
	}
	var out types.Chat
	if err := dbc.DB(r.db).
		Where("website_id = ? AND visitor_id = ? AND status = ?", websiteID, visitorID, types.ChatStatusActive).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

func (r *chatRepo) LockByID(dbc dbctx.Context, id uint64) (*types.Chat, error) {
	if id == 0 {
		return nil, fmt.Errorf("missing id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	var out types.Chat
	if err := dbc.DB(r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *chatRepo) List(dbc dbctx.Context, f ChatListFilter) ([]*types.Chat, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q := dbc.DB(r.db).Model(&types.Chat{})
	if f.WebsiteID != 0 {
		q = q.Where("website_id = ?", f.WebsiteID)
	}
	if v := strings.TrimSpace(f.VisitorID); v != "" {
		q = q.Where("visitor_id = ?", v)
	}
	if s := strings.TrimSpace(f.Status); s != "" {
		q = q.Where("status = ?", s)
	}
	var out []*types.Chat
	if err := q.Order("updated_at DESC, id DESC").Limit(f.Limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatRepo) UpdateFields(dbc dbctx.Context, id uint64, updates map[string]interface{}) error {
	if id == 0 {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).
		Model(&types.Chat{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Delete removes a chat and its messages.
func (r *chatRepo) Delete(dbc dbctx.Context, id uint64) error {
	if id == 0 {
		return fmt.Errorf("missing id")
	}
	txx := dbc.DB(r.db)
	if err := txx.Where("chat_id = ?", id).Delete(&types.ChatMessage{}).Error; err != nil {
		return err
	}
	return txx.Where("id = ?", id).Delete(&types.Chat{}).Error
}
