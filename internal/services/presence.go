package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/data/repos"
	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/domain/tracking"
	"github.com/yungbote/trackchat-backend/internal/observability"
	"github.com/yungbote/trackchat-backend/internal/platform/apierr"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

const DefaultPresenceThreshold = 60 * time.Second

type PresenceStatus struct {
	VisitorID     string     `json:"visitor_id"`
	Online        bool       `json:"online"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

type PresenceService interface {
	RecordHeartbeat(dbc dbctx.Context, websiteID uint64, visitorID string, personID *uint64, at time.Time) error
	IsOnline(dbc dbctx.Context, visitorID string, now time.Time) (*PresenceStatus, error)
	ListOnline(dbc dbctx.Context, websiteID uint64, now time.Time) ([]*types.OnlineVisitor, error)
	// Warm loads recent heartbeats from storage into the cache.
	Warm(ctx context.Context) error
	Threshold() time.Duration
}

type presenceService struct {
	db         *gorm.DB
	log        *logger.Logger
	activities repos.ActivityRepo
	persons    repos.PersonRepo
	cache      HeartbeatCache
	threshold  time.Duration
	metrics    *observability.Metrics
}

func NewPresenceService(
	db *gorm.DB,
	baseLog *logger.Logger,
	activities repos.ActivityRepo,
	persons repos.PersonRepo,
	cache HeartbeatCache,
	threshold time.Duration,
) PresenceService {
	if threshold <= 0 {
		threshold = DefaultPresenceThreshold
	}
	if cache == nil {
		cache = NewMemoryHeartbeatCache()
	}
	return &presenceService{
		db:         db,
		log:        baseLog.With("service", "PresenceService"),
		activities: activities,
		persons:    persons,
		cache:      cache,
		threshold:  threshold,
		metrics:    observability.Current(),
	}
}

func (s *presenceService) Threshold() time.Duration { return s.threshold }

func (s *presenceService) RecordHeartbeat(dbc dbctx.Context, websiteID uint64, visitorID string, personID *uint64, at time.Time) error {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return apierr.Validation("missing_visitor_id", "heartbeat requires visitor_id")
	}
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	ctx, span := observability.Tracer().Start(ctxOf(dbc), "presence.RecordHeartbeat")
	defer span.End()
	span.SetAttributes(attribute.Int64("website.id", int64(websiteID)))

	row, err := s.activities.UpsertHeartbeat(dbctx.Context{Ctx: ctx, Tx: dbc.Tx}, websiteID, visitorID, personID, at)
	if err != nil {
		span.RecordError(err)
		return apierr.Transient("record heartbeat", err)
	}
	mark := types.HeartbeatMark{VisitorID: visitorID, WebsiteID: websiteID, At: at}
	if row != nil && row.LastHeartbeat != nil {
		mark.At = row.LastHeartbeat.UTC()
	}
	if err := s.cache.Touch(ctx, mark); err != nil {
		// Storage already holds the heartbeat; reads fall back to it.
		s.log.Warn("heartbeat cache touch failed", "error", err, "visitor_id", visitorID)
	}
	s.metrics.IncHeartbeat()
	return nil
}

func (s *presenceService) IsOnline(dbc dbctx.Context, visitorID string, now time.Time) (*PresenceStatus, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, apierr.Validation("missing_visitor_id", "visitor_id is required")
	}
	last, err := s.lastHeartbeat(dbc, visitorID)
	if err != nil {
		return nil, err
	}
	st := &PresenceStatus{VisitorID: visitorID}
	if last != nil {
		at := last.At
		st.LastHeartbeat = &at
		st.Online = tracking.Online(at, now, s.threshold)
	}
	return st, nil
}

func (s *presenceService) lastHeartbeat(dbc dbctx.Context, visitorID string) (*types.HeartbeatMark, error) {
	ctx := ctxOf(dbc)
	if m, ok, err := s.cache.Last(ctx, visitorID); err == nil && ok {
		s.metrics.IncPresenceCache(true)
		return &m, nil
	} else if err != nil {
		s.log.Warn("heartbeat cache read failed", "error", err, "visitor_id", visitorID)
	}
	s.metrics.IncPresenceCache(false)

	m, err := s.activities.LastHeartbeat(dbc, visitorID)
	if err != nil {
		return nil, apierr.Transient("read heartbeat", err)
	}
	if m != nil {
		_ = s.cache.Touch(ctx, *m)
	}
	return m, nil
}

func (s *presenceService) ListOnline(dbc dbctx.Context, websiteID uint64, now time.Time) ([]*types.OnlineVisitor, error) {
	ctx, span := observability.Tracer().Start(ctxOf(dbc), "presence.ListOnline")
	defer span.End()

	marks, err := s.cache.Since(ctx, websiteID, now.Add(-s.threshold))
	if err != nil {
		s.log.Warn("heartbeat cache scan failed; using storage", "error", err)
		marks, err = s.activities.ListHeartbeatsSince(dbctx.Context{Ctx: ctx, Tx: dbc.Tx}, websiteID, now.Add(-s.threshold))
		if err != nil {
			span.RecordError(err)
			return nil, apierr.Transient("list heartbeats", err)
		}
	}

	online := make([]*types.OnlineVisitor, 0, len(marks))
	ids := make([]string, 0, len(marks))
	for _, m := range marks {
		if !tracking.Online(m.At, now, s.threshold) {
			continue
		}
		online = append(online, &types.OnlineVisitor{
			VisitorID:     m.VisitorID,
			WebsiteID:     m.WebsiteID,
			LastHeartbeat: m.At,
		})
		ids = append(ids, m.VisitorID)
	}
	if len(online) == 0 {
		s.metrics.SetOnline(0)
		return online, nil
	}

	rc := dbctx.Context{Ctx: ctx, Tx: dbc.Tx}
	people, err := s.persons.ListByVisitorIDs(rc, ids)
	if err != nil {
		return nil, apierr.Transient("load visitors", err)
	}
	pages, err := s.activities.LatestPageViews(rc, ids)
	if err != nil {
		return nil, apierr.Transient("load page views", err)
	}
	for _, v := range online {
		if p := people[v.VisitorID]; p != nil {
			id := p.ID
			v.PersonID = &id
			v.Name = p.Name
			v.Email = p.Email
		}
		v.CurrentPage = pages[v.VisitorID]
	}
	sort.Slice(online, func(i, j int) bool {
		if online[i].LastHeartbeat.Equal(online[j].LastHeartbeat) {
			return online[i].VisitorID < online[j].VisitorID
		}
		return online[i].LastHeartbeat.After(online[j].LastHeartbeat)
	})
	s.metrics.SetOnline(len(online))
	return online, nil
}

func (s *presenceService) Warm(ctx context.Context) error {
	marks, err := s.activities.ListHeartbeatsSince(dbctx.Context{Ctx: ctx}, 0, time.Now().UTC().Add(-s.threshold))
	if err != nil {
		return err
	}
	for _, m := range marks {
		if err := s.cache.Touch(ctx, m); err != nil {
			return err
		}
	}
	s.log.Info("presence cache warmed", "visitors", len(marks))
	return nil
}
