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

type PersonListFilter struct {
	Search string
	Stage  string
	Limit  int
}

type PersonRepo interface {
	Create(dbc dbctx.Context, p *types.Person) (*types.Person, error)
	// CreateByEmail inserts p unless a person already owns p.Email, in which
	// case that person is returned with created=false.
	CreateByEmail(dbc dbctx.Context, p *types.Person) (out *types.Person, created bool, err error)
	GetByID(dbc dbctx.Context, id uint64) (*types.Person, error)
	GetByEmail(dbc dbctx.Context, email string) (*types.Person, error)
	GetByVisitorID(dbc dbctx.Context, visitorID string) (*types.Person, error)
	ListByVisitorIDs(dbc dbctx.Context, visitorIDs []string) (map[string]*types.Person, error)
	List(dbc dbctx.Context, f PersonListFilter) ([]*types.Person, error)
	UpdateFields(dbc dbctx.Context, id uint64, updates map[string]interface{}) error
	TouchLastActivity(dbc dbctx.Context, id uint64, at time.Time) error
}

type personRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPersonRepo(db *gorm.DB, baseLog *logger.Logger) PersonRepo {
	return &personRepo{db: db, log: baseLog.With("repo", "PersonRepo")}
}

func (r *personRepo) Create(dbc dbctx.Context, p *types.Person) (*types.Person, error) {
	if p == nil {
		return nil, fmt.Errorf("missing person")
	}
	p.Email = normalizeEmail(p.Email)
	if err := dbc.DB(r.db).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (r *personRepo) CreateByEmail(dbc dbctx.Context, p *types.Person) (*types.Person, bool, error) {
	if p == nil {
		return nil, false, fmt.Errorf("missing person")
	}
	p.Email = normalizeEmail(p.Email)
	if p.Email == "" {
		return nil, false, fmt.Errorf("missing email")
	}
	txx := dbc.DB(r.db)
	if existing, err := r.GetByEmail(dbc, p.Email); err != nil || existing != nil {
		return existing, false, err
	}
	// Savepoint so a lost insert race does not poison an outer postgres tx.
	err := txx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(p).Error
	})
	if err == nil {
		return p, true, nil
	}
	if !db.IsUniqueViolation(err) {
		return nil, false, err
	}
	existing, err := r.GetByEmail(dbc, p.Email)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("person vanished after email conflict")
	}
	return existing, false, nil
}

func (r *personRepo) GetByID(dbc dbctx.Context, id uint64) (*types.Person, error) {
	if id == 0 {
		return nil, nil
	}
	return r.first(dbc, "id = ?", id)
}

// GetByEmail matches case-insensitively; the oldest record wins when
// several share an address.
func (r *personRepo) GetByEmail(dbc dbctx.Context, email string) (*types.Person, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	return r.first(dbc, "LOWER(email) = ?", email)
}

func (r *personRepo) GetByVisitorID(dbc dbctx.Context, visitorID string) (*types.Person, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, nil
	}
	return r.first(dbc, "visitor_id = ?", visitorID)
}

func (r *personRepo) ListByVisitorIDs(dbc dbctx.Context, visitorIDs []string) (map[string]*types.Person, error) {
	out := map[string]*types.Person{}
	if len(visitorIDs) == 0 {
		return out, nil
	}
	var rows []*types.Person
	if err := dbc.DB(r.db).
		Where("visitor_id IN ?", visitorIDs).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		if _, ok := out[p.VisitorID]; !ok {
			out[p.VisitorID] = p
		}
	}
	return out, nil
}

// List returns people by most recent activity. Search matches name, email
// or phone case-insensitively.
func (r *personRepo) List(dbc dbctx.Context, f PersonListFilter) ([]*types.Person, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 10
	}
	q := dbc.DB(r.db).Model(&types.Person{})
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		like := "%" + s + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(phone) LIKE ?", like, like, like)
	}
	if st := strings.TrimSpace(f.Stage); st != "" {
		q = q.Where("stage = ?", st)
	}
	var out []*types.Person
	if err := q.
		Order("CASE WHEN last_activity IS NULL THEN 1 ELSE 0 END").
		Order("last_activity DESC").
		Order("id DESC").
		Limit(f.Limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *personRepo) UpdateFields(dbc dbctx.Context, id uint64, updates map[string]interface{}) error {
	if id == 0 {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	return dbc.DB(r.db).
		Model(&types.Person{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// TouchLastActivity only moves last_activity forward.
func (r *personRepo) TouchLastActivity(dbc dbctx.Context, id uint64, at time.Time) error {
	if id == 0 {
		return fmt.Errorf("missing id")
	}
	at = at.UTC()
	return dbc.DB(r.db).
		Model(&types.Person{}).
		Where("id = ? AND (last_activity IS NULL OR last_activity < ?)", id, at).
		Updates(map[string]interface{}{
			"last_activity": at,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *personRepo) first(dbc dbctx.Context, query string, args ...interface{}) (*types.Person, error) {
	var out types.Person
	err := dbc.DB(r.db).Where(query, args...).Order("id ASC").Limit(1).Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
