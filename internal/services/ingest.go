package services

import (
	"encoding/base64"
	"encoding/json"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/data/repos"
	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/domain/tracking"
	"github.com/yungbote/trackchat-backend/internal/observability"
	"github.com/yungbote/trackchat-backend/internal/platform/apierr"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

// TrackEvent is the payload posted by the tracking script.
type TrackEvent struct {
	SiteID           string          `json:"site_id"`
	EventType        string          `json:"event_type"`
	VisitorID        string          `json:"visitor_id,omitempty"`
	VisitorEmail     string          `json:"visitor_email,omitempty"`
	PageURL          string          `json:"page_url,omitempty"`
	PageTitle        string          `json:"page_title,omitempty"`
	PageReferrer     string          `json:"page_referrer,omitempty"`
	FormData         json.RawMessage `json:"form_data,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	Message          string          `json:"message,omitempty"`
	UserAgent        string          `json:"user_agent,omitempty"`
	Language         string          `json:"language,omitempty"`
	ScreenResolution string          `json:"screen_resolution,omitempty"`
	Timezone         string          `json:"timezone,omitempty"`
}

type TrackResult struct {
	VisitorID  string          `json:"visitor_id"`
	WebsiteID  uint64          `json:"website_id"`
	PersonID   *uint64         `json:"person_id,omitempty"`
	Activity   *types.Activity `json:"activity,omitempty"`
	Heartbeat  bool            `json:"heartbeat,omitempty"`
	Identified bool            `json:"identified,omitempty"`
}

type IngestService interface {
	Track(dbc dbctx.Context, ev TrackEvent) (*TrackResult, error)
	ListTimeline(dbc dbctx.Context, visitorID string, limit int) ([]*types.Activity, error)
	CountVisits(dbc dbctx.Context, visitorID string) (int64, error)
}

type ingestService struct {
	db         *gorm.DB
	log        *logger.Logger
	websites   WebsiteService
	presence   PresenceService
	persons    repos.PersonRepo
	activities repos.ActivityRepo
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewIngestService(
	db *gorm.DB,
	baseLog *logger.Logger,
	websites WebsiteService,
	presence PresenceService,
	persons repos.PersonRepo,
	activities repos.ActivityRepo,
) IngestService {
	return &ingestService{
		db:         db,
		log:        baseLog.With("service", "IngestService"),
		websites:   websites,
		presence:   presence,
		persons:    persons,
		activities: activities,
		metrics:    observability.Current(),
		now:        time.Now,
	}
}

// VisitorIDForEmail derives the visitor token the tracking script assigns to
// visitors identified by email.
func VisitorIDForEmail(email string) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.TrimSpace(email)))
}

func (s *ingestService) Track(dbc dbctx.Context, ev TrackEvent) (*TrackResult, error) {
	res, err := s.track(dbc, ev)
	outcome := "stored"
	switch {
	case err != nil:
		outcome = "rejected"
	case res.Heartbeat:
		outcome = "heartbeat"
	}
	s.metrics.IncIngest(ev.EventType, outcome)
	return res, err
}

func (s *ingestService) track(dbc dbctx.Context, ev TrackEvent) (*TrackResult, error) {
	ev.EventType = strings.TrimSpace(ev.EventType)
	if !tracking.IsActivityType(ev.EventType) {
		return nil, apierr.Validation("invalid_event_type", "unknown event_type %q", ev.EventType)
	}
	form, err := parseObject("form_data", ev.FormData)
	if err != nil {
		return nil, err
	}
	if _, err := parseObject("metadata", ev.Metadata); err != nil {
		return nil, err
	}

	email, err := eventEmail(ev, form)
	if err != nil {
		return nil, err
	}
	visitorID := strings.TrimSpace(ev.VisitorID)
	if visitorID == "" && email != "" {
		visitorID = VisitorIDForEmail(email)
	}
	if visitorID == "" {
		return nil, apierr.Validation("missing_visitor_id", "visitor_id or visitor_email is required")
	}

	ctx, span := observability.Tracer().Start(ctxOf(dbc), "ingest.Track")
	defer span.End()
	span.SetAttributes(attribute.String("event.type", ev.EventType))
	dbc = dbctx.Context{Ctx: ctx, Tx: dbc.Tx}

	website, err := s.websites.Resolve(dbc, ev.SiteID)
	if err != nil {
		return nil, err
	}
	at := s.now().UTC()
	res := &TrackResult{VisitorID: visitorID, WebsiteID: website.ID}

	if ev.EventType == types.ActivityHeartbeat {
		p, err := s.persons.GetByVisitorID(dbc, visitorID)
		if err != nil {
			return nil, apierr.Transient("lookup visitor", err)
		}
		if p != nil {
			id := p.ID
			res.PersonID = &id
		}
		if err := s.presence.RecordHeartbeat(dbc, website.ID, visitorID, res.PersonID, at); err != nil {
			return nil, err
		}
		res.Heartbeat = true
		return res, nil
	}

	err = inTx(dbc, s.db, func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}

		person, err := s.persons.GetByVisitorID(txc, visitorID)
		if err != nil {
			return err
		}
		if ev.EventType == types.ActivityFormSubmission && email != "" {
			person, err = s.upsertByEmail(txc, email, visitorID, ev, form)
			if err != nil {
				return err
			}
			res.Identified = true
		}

		a := &types.Activity{
			WebsiteID:        website.ID,
			ActivityType:     ev.EventType,
			Message:          strings.TrimSpace(ev.Message),
			PageTitle:        strings.TrimSpace(ev.PageTitle),
			PageURL:          strings.TrimSpace(ev.PageURL),
			PageReferrer:     strings.TrimSpace(ev.PageReferrer),
			FormData:         jsonColumn(ev.FormData),
			Metadata:         jsonColumn(ev.Metadata),
			OccurredAt:       at,
			VisitorID:        visitorID,
			UserAgent:        ev.UserAgent,
			Language:         ev.Language,
			ScreenResolution: ev.ScreenResolution,
			Timezone:         ev.Timezone,
		}
		if person != nil {
			id := person.ID
			a.PersonID = &id
			res.PersonID = &id
		}
		if _, err := s.activities.Create(txc, a); err != nil {
			return err
		}
		res.Activity = a

		if person == nil {
			return nil
		}
		if res.Identified {
			n, err := s.activities.AttachPerson(txc, visitorID, person.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				s.log.Debug("linked anonymous activity", "visitor_id", visitorID, "person_id", person.ID, "rows", n)
			}
		}
		return s.persons.TouchLastActivity(txc, person.ID, at)
	})
	if err != nil {
		span.RecordError(err)
		return nil, apierr.Transient("record activity", err)
	}
	return res, nil
}

// upsertByEmail links visitorID to the person owning email, creating the
// person when the address is new. Blank form fields never overwrite data.
func (s *ingestService) upsertByEmail(dbc dbctx.Context, email, visitorID string, ev TrackEvent, form map[string]interface{}) (*types.Person, error) {
	name := formString(form, "name")
	phone := formString(form, "phone")

	p, created, err := s.persons.CreateByEmail(dbc, &types.Person{
		Name:             name,
		Email:            email,
		Phone:            phone,
		Stage:            tracking.StageLead,
		Source:           "website",
		SourceURL:        strings.TrimSpace(ev.PageURL),
		VisitorID:        visitorID,
		UserAgent:        ev.UserAgent,
		Language:         ev.Language,
		ScreenResolution: ev.ScreenResolution,
		Timezone:         ev.Timezone,
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.log.Info("person created from form", "person_id", p.ID, "visitor_id", visitorID)
		return p, nil
	}

	updates := map[string]interface{}{"visitor_id": visitorID}
	setIf := func(col, v string) {
		if v = strings.TrimSpace(v); v != "" {
			updates[col] = v
		}
	}
	setIf("name", name)
	setIf("phone", phone)
	setIf("user_agent", ev.UserAgent)
	setIf("language", ev.Language)
	setIf("screen_resolution", ev.ScreenResolution)
	setIf("timezone", ev.Timezone)
	if err := s.persons.UpdateFields(dbc, p.ID, updates); err != nil {
		return nil, err
	}
	return s.persons.GetByID(dbc, p.ID)
}

// ListTimeline returns a visitor's content activity, newest first.
func (s *ingestService) ListTimeline(dbc dbctx.Context, visitorID string, limit int) ([]*types.Activity, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, apierr.Validation("missing_visitor_id", "visitor_id is required")
	}
	out, err := s.activities.ListTimeline(dbc, visitorID, limit)
	if err != nil {
		return nil, apierr.Transient("list timeline", err)
	}
	return out, nil
}

func (s *ingestService) CountVisits(dbc dbctx.Context, visitorID string) (int64, error) {
	n, err := s.activities.CountVisits(dbc, visitorID)
	if err != nil {
		return 0, apierr.Transient("count visits", err)
	}
	return n, nil
}

func parseObject(field string, raw json.RawMessage) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apierr.Validation("invalid_"+field, "%s must be a JSON object", field)
	}
	return out, nil
}

func eventEmail(ev TrackEvent, form map[string]interface{}) (string, error) {
	email := formString(form, "email")
	if email == "" {
		email = strings.TrimSpace(ev.VisitorEmail)
	}
	if email == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", apierr.Validation("invalid_email", "invalid email %q", email)
	}
	return strings.ToLower(addr.Address), nil
}

func formString(form map[string]interface{}, key string) string {
	if form == nil {
		return ""
	}
	v, ok := form[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func jsonColumn(raw json.RawMessage) datatypes.JSON {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return datatypes.JSON(trimmed)
}
