package services

import (
	"strings"

	"github.com/yungbote/trackchat-backend/internal/data/repos"
	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/domain/tracking"
	"github.com/yungbote/trackchat-backend/internal/platform/apierr"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

type PeopleService interface {
	List(dbc dbctx.Context, f repos.PersonListFilter) ([]*types.Person, error)
	Get(dbc dbctx.Context, id uint64) (*types.Person, error)
	Activities(dbc dbctx.Context, id uint64, limit int) ([]*types.Activity, error)
}

type peopleService struct {
	log        *logger.Logger
	persons    repos.PersonRepo
	activities repos.ActivityRepo
}

func NewPeopleService(baseLog *logger.Logger, persons repos.PersonRepo, activities repos.ActivityRepo) PeopleService {
	return &peopleService{
		log:        baseLog.With("service", "PeopleService"),
		persons:    persons,
		activities: activities,
	}
}

func (s *peopleService) List(dbc dbctx.Context, f repos.PersonListFilter) ([]*types.Person, error) {
	f.Stage = strings.TrimSpace(f.Stage)
	if f.Stage != "" && !tracking.IsStage(f.Stage) {
		return nil, apierr.Validation("invalid_stage", "unknown stage %q", f.Stage)
	}
	out, err := s.persons.List(dbc, f)
	if err != nil {
		return nil, apierr.Transient("list people", err)
	}
	return out, nil
}

func (s *peopleService) Get(dbc dbctx.Context, id uint64) (*types.Person, error) {
	p, err := s.persons.GetByID(dbc, id)
	if err != nil {
		return nil, apierr.Transient("get person", err)
	}
	if p == nil {
		return nil, apierr.NotFound("person_not_found", "person %d", id)
	}
	return p, nil
}

func (s *peopleService) Activities(dbc dbctx.Context, id uint64, limit int) ([]*types.Activity, error) {
	if _, err := s.Get(dbc, id); err != nil {
		return nil, err
	}
	out, err := s.activities.ListByPerson(dbc, id, limit)
	if err != nil {
		return nil, apierr.Transient("list person activities", err)
	}
	return out, nil
}
