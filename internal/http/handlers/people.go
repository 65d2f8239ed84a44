package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/trackchat-backend/internal/data/repos"
	"github.com/yungbote/trackchat-backend/internal/http/response"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
	"github.com/yungbote/trackchat-backend/internal/services"
)

type PeopleHandler struct {
	people services.PeopleService
}

func NewPeopleHandler(people services.PeopleService) *PeopleHandler {
	return &PeopleHandler{people: people}
}

// GET /api/admin/people?search=&stage=&limit=10
func (h *PeopleHandler) List(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	people, err := h.people.List(dbc, repos.PersonListFilter{
		Search: c.Query("search"),
		Stage:  c.Query("stage"),
		Limit:  intQuery(c, "limit", 10),
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, gin.H{"people": people})
}

// GET /api/admin/people/:id
func (h *PeopleHandler) Get(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	p, err := h.people.Get(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, gin.H{"person": p})
}

// GET /api/admin/people/:id/activities
func (h *PeopleHandler) Activities(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	acts, err := h.people.Activities(dbctx.Context{Ctx: c.Request.Context()}, id, intQuery(c, "limit", 100))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.RespondOK(c, gin.H{"activities": acts})
}
