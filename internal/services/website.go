package services

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/data/repos"
	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/platform/apierr"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

type WebsiteService interface {
	Create(dbc dbctx.Context, ownerID, name, domain string) (*types.Website, error)
	List(dbc dbctx.Context, ownerID string) ([]*types.Website, error)
	Get(dbc dbctx.Context, id uint64) (*types.Website, error)
	// Resolve maps a public site id to its website, or NotFound.
	Resolve(dbc dbctx.Context, siteID string) (*types.Website, error)
	// Delete is scoped to ownerID; another owner's website reads as NotFound.
	Delete(dbc dbctx.Context, ownerID string, id uint64) error
}

type websiteService struct {
	db       *gorm.DB
	log      *logger.Logger
	websites repos.WebsiteRepo
}

func NewWebsiteService(db *gorm.DB, baseLog *logger.Logger, websites repos.WebsiteRepo) WebsiteService {
	return &websiteService{
		db:       db,
		log:      baseLog.With("service", "WebsiteService"),
		websites: websites,
	}
}

func (s *websiteService) Create(dbc dbctx.Context, ownerID, name, domain string) (*types.Website, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, apierr.Validation("invalid_domain", "domain is required")
	}
	w := &types.Website{
		OwnerID: strings.TrimSpace(ownerID),
		Name:    strings.TrimSpace(name),
		SiteID:  uuid.New().String(),
		Domain:  domain,
	}
	if _, err := s.websites.Create(dbc, w); err != nil {
		return nil, apierr.Transient("create website", err)
	}
	s.log.Info("website created", "website_id", w.ID, "domain", w.Domain)
	return w, nil
}

func (s *websiteService) List(dbc dbctx.Context, ownerID string) ([]*types.Website, error) {
	rows, err := s.websites.ListByOwner(dbc, strings.TrimSpace(ownerID))
	if err != nil {
		return nil, apierr.Transient("list websites", err)
	}
	return rows, nil
}

func (s *websiteService) Get(dbc dbctx.Context, id uint64) (*types.Website, error) {
	w, err := s.websites.GetByID(dbc, id)
	if err != nil {
		return nil, apierr.Transient("get website", err)
	}
	if w == nil {
		return nil, apierr.NotFound("website_not_found", "website %d", id)
	}
	return w, nil
}

func (s *websiteService) Resolve(dbc dbctx.Context, siteID string) (*types.Website, error) {
	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return nil, apierr.Validation("missing_site_id", "site_id is required")
	}
	w, err := s.websites.GetBySiteID(dbc, siteID)
	if err != nil {
		return nil, apierr.Transient("resolve site", err)
	}
	if w == nil {
		return nil, apierr.NotFound("site_not_found", "unknown site_id %q", siteID)
	}
	return w, nil
}

// Delete removes the website and everything recorded under it.
func (s *websiteService) Delete(dbc dbctx.Context, ownerID string, id uint64) error {
	w, err := s.Get(dbc, id)
	if err != nil {
		return err
	}
	if ownerID = strings.TrimSpace(ownerID); ownerID != "" && w.OwnerID != ownerID {
		return apierr.NotFound("website_not_found", "website %d", id)
	}
	err = inTx(dbc, s.db, func(tx *gorm.DB) error {
		return s.websites.Delete(dbctx.Context{Ctx: dbc.Ctx, Tx: tx}, id)
	})
	if err != nil {
		return apierr.Transient("delete website", err)
	}
	s.log.Info("website deleted", "website_id", id)
	return nil
}
