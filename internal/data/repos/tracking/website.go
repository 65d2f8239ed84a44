package tracking

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

type WebsiteRepo interface {
	Create(dbc dbctx.Context, w *types.Website) (*types.Website, error)
	GetByID(dbc dbctx.Context, id uint64) (*types.Website, error)
	GetBySiteID(dbc dbctx.Context, siteID string) (*types.Website, error)
	ListByOwner(dbc dbctx.Context, ownerID string) ([]*types.Website, error)
	Delete(dbc dbctx.Context, id uint64) error
}

type websiteRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWebsiteRepo(db *gorm.DB, baseLog *logger.Logger) WebsiteRepo {
	return &websiteRepo{db: db, log: baseLog.With("repo", "WebsiteRepo")}
}

func (r *websiteRepo) Create(dbc dbctx.Context, w *types.Website) (*types.Website, error) {
	if w == nil {
		return nil, fmt.Errorf("missing website")
	}
	if strings.TrimSpace(w.SiteID) == "" {
		return nil, fmt.Errorf("missing site_id")
	}
	if err := dbc.DB(r.db).Create(w).Error; err != nil {
		return nil, err
	}
	return w, nil
}

func (r *websiteRepo) GetByID(dbc dbctx.Context, id uint64) (*types.Website, error) {
	if id == 0 {
		return nil, nil
	}
	var out types.Website
	err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

// GetBySiteID returns (nil, nil) for unknown site ids.
func (r *websiteRepo) GetBySiteID(dbc dbctx.Context, siteID string) (*types.Website, error) {
	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return nil, nil
	}
	var out types.Website
	err := dbc.DB(r.db).Where("site_id = ?", siteID).Limit(1).Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

// ListByOwner lists an owner's websites, newest first. An empty owner lists all.
func (r *websiteRepo) ListByOwner(dbc dbctx.Context, ownerID string) ([]*types.Website, error) {
	q := dbc.DB(r.db).Model(&types.Website{})
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	var out []*types.Website
	if err := q.Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the website with its chats, messages and activities.
// Callers wanting atomicity pass a transaction.
func (r *websiteRepo) Delete(dbc dbctx.Context, id uint64) error {
	if id == 0 {
		return fmt.Errorf("missing id")
	}
	txx := dbc.DB(r.db)
	if err := txx.Exec(
		"DELETE FROM chat_message WHERE chat_id IN (SELECT id FROM chat WHERE website_id = ?)", id,
	).Error; err != nil {
		return err
	}
	if err := txx.Where("website_id = ?", id).Delete(&types.Chat{}).Error; err != nil {
		return err
	}
	if err := txx.Where("website_id = ?", id).Delete(&types.Activity{}).Error; err != nil {
		return err
	}
	return txx.Where("id = ?", id).Delete(&types.Website{}).Error
}
