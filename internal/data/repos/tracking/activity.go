package tracking

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/data/db"
	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

type ActivityRepo interface {
	Create(dbc dbctx.Context, a *types.Activity) (*types.Activity, error)
	AttachPerson(dbc dbctx.Context, visitorID string, personID uint64) (int64, error)

	UpsertHeartbeat(dbc dbctx.Context, websiteID uint64, visitorID string, personID *uint64, at time.Time) (*types.Activity, error)
	LastHeartbeat(dbc dbctx.Context, visitorID string) (*types.HeartbeatMark, error)
	ListHeartbeatsSince(dbc dbctx.Context, websiteID uint64, since time.Time) ([]types.HeartbeatMark, error)

	LatestPageViews(dbc dbctx.Context, visitorIDs []string) (map[string]*types.PageRef, error)
	ListTimeline(dbc dbctx.Context, visitorID string, limit int) ([]*types.Activity, error)
	ListByPerson(dbc dbctx.Context, personID uint64, limit int) ([]*types.Activity, error)
	CountVisits(dbc dbctx.Context, visitorID string) (int64, error)
}

type activityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActivityRepo(db *gorm.DB, baseLog *logger.Logger) ActivityRepo {
	return &activityRepo{db: db, log: baseLog.With("repo", "ActivityRepo")}
}

func (r *activityRepo) Create(dbc dbctx.Context, a *types.Activity) (*types.Activity, error) {
	if a == nil {
		return nil, fmt.Errorf("missing activity")
	}
	if a.WebsiteID == 0 {
		return nil, fmt.Errorf("missing website_id")
	}
	if a.ActivityType == types.ActivityHeartbeat {
		return nil, fmt.Errorf("heartbeats are written through UpsertHeartbeat")
	}
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now().UTC()
	}
	if err := dbc.DB(r.db).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// AttachPerson links a visitor's anonymous activities to personID.
func (r *activityRepo) AttachPerson(dbc dbctx.Context, visitorID string, personID uint64) (int64, error) {
	if strings.TrimSpace(visitorID) == "" || personID == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Model(&types.Activity{}).
		Where("visitor_id = ? AND person_id IS NULL", visitorID).
		Update("person_id", personID)
	return res.RowsAffected, res.Error
}

// UpsertHeartbeat keeps exactly one Heartbeat row per website/visitor and only
// ever moves its last_heartbeat forward, so replays and out-of-order
// deliveries are harmless.
func (r *activityRepo) UpsertHeartbeat(dbc dbctx.Context, websiteID uint64, visitorID string, personID *uint64, at time.Time) (*types.Activity, error) {
	if websiteID == 0 {
		return nil, fmt.Errorf("missing website_id")
	}
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, fmt.Errorf("missing visitor_id")
	}
	at = at.UTC()
	txx := dbc.DB(r.db)

	existing, err := r.heartbeatRow(txx, websiteID, visitorID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		row := &types.Activity{
			WebsiteID:     websiteID,
			PersonID:      personID,
			ActivityType:  types.ActivityHeartbeat,
			VisitorID:     visitorID,
			OccurredAt:    at,
			LastHeartbeat: &at,
		}
		// Savepoint so a lost insert race does not poison an outer postgres tx.
		err := txx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(row).Error
		})
		if err == nil {
			return row, nil
		}
		if !db.IsUniqueViolation(err) {
			return nil, err
		}
		existing, err = r.heartbeatRow(txx, websiteID, visitorID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("heartbeat row vanished after conflict")
		}
	}

	updates := map[string]interface{}{
		"last_heartbeat": at,
		"occurred_at":    at,
	}
	if personID != nil && existing.PersonID == nil {
		updates["person_id"] = *personID
	}
	if err := txx.Model(&types.Activity{}).
		Where("id = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)", existing.ID, at).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	return r.heartbeatRow(txx, websiteID, visitorID)
}

func (r *activityRepo) heartbeatRow(txx *gorm.DB, websiteID uint64, visitorID string) (*types.Activity, error) {
	var out types.Activity
	err := txx.
		Where("website_id = ? AND visitor_id = ? AND activity_type = ?", websiteID, visitorID, types.ActivityHeartbeat).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

// LastHeartbeat returns the newest heartbeat for visitorID across websites,
// or nil when none was ever recorded.
func (r *activityRepo) LastHeartbeat(dbc dbctx.Context, visitorID string) (*types.HeartbeatMark, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, nil
	}
	var row types.Activity
	err := dbc.DB(r.db).
		Where("visitor_id = ? AND activity_type = ? AND last_heartbeat IS NOT NULL", visitorID, types.ActivityHeartbeat).
		Order("last_heartbeat DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 || row.LastHeartbeat == nil {
		return nil, nil
	}
	return &types.HeartbeatMark{VisitorID: row.VisitorID, WebsiteID: row.WebsiteID, At: row.LastHeartbeat.UTC()}, nil
}

// ListHeartbeatsSince lists heartbeat marks at or after since. websiteID 0 spans all websites.
func (r *activityRepo) ListHeartbeatsSince(dbc dbctx.Context, websiteID uint64, since time.Time) ([]types.HeartbeatMark, error) {
	q := dbc.DB(r.db).
		Model(&types.Activity{}).
		Where("activity_type = ? AND last_heartbeat >= ?", types.ActivityHeartbeat, since.UTC())
	if websiteID != 0 {
		q = q.Where("website_id = ?", websiteID)
	}
	var rows []*types.Activity
	if err := q.Order("last_heartbeat DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.HeartbeatMark, 0, len(rows))
	for _, a := range rows {
		if a.LastHeartbeat == nil {
			continue
		}
		out = append(out, types.HeartbeatMark{VisitorID: a.VisitorID, WebsiteID: a.WebsiteID, At: a.LastHeartbeat.UTC()})
	}
	return out, nil
}

func (r *activityRepo) LatestPageViews(dbc dbctx.Context, visitorIDs []string) (map[string]*types.PageRef, error) {
	out := map[string]*types.PageRef{}
	if len(visitorIDs) == 0 {
		return out, nil
	}
	var rows []*types.Activity
	if err := dbc.DB(r.db).
		Select("id", "visitor_id", "page_url", "page_title", "occurred_at").
		Where("visitor_id IN ? AND activity_type = ?", visitorIDs, types.ActivityViewedPage).
		Order("occurred_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, a := range rows {
		if _, ok := out[a.VisitorID]; ok {
			continue
		}
		out[a.VisitorID] = &types.PageRef{URL: a.PageURL, Title: a.PageTitle, At: a.OccurredAt.UTC()}
	}
	return out, nil
}

// ListTimeline returns a visitor's activities newest first, heartbeats excluded.
func (r *activityRepo) ListTimeline(dbc dbctx.Context, visitorID string, limit int) ([]*types.Activity, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, fmt.Errorf("missing visitor_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*types.Activity
	if err := dbc.DB(r.db).
		Where("visitor_id = ? AND activity_type <> ?", visitorID, types.ActivityHeartbeat).
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListByPerson returns a person's activities newest first, heartbeats excluded.
func (r *activityRepo) ListByPerson(dbc dbctx.Context, personID uint64, limit int) ([]*types.Activity, error) {
	if personID == 0 {
		return nil, fmt.Errorf("missing person_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*types.Activity
	if err := dbc.DB(r.db).
		Where("person_id = ? AND activity_type <> ?", personID, types.ActivityHeartbeat).
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *activityRepo) CountVisits(dbc dbctx.Context, visitorID string) (int64, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return 0, nil
	}
	var n int64
	if err := dbc.DB(r.db).
		Model(&types.Activity{}).
		Where("visitor_id = ? AND activity_type = ?", visitorID, types.ActivityViewedPage).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
