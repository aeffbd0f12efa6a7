// Package agenda serves the confirmed-bookings view to logged-in staff.
package agenda

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"glazestudio/internal/middleware"
	"glazestudio/internal/pkg/response"
	"glazestudio/internal/snapshot"
	"glazestudio/internal/views"
)

const LoadFailed = "Failed to load bookings. Is backend running?"

type AgendaView interface {
	Agenda() (views.Agenda, uint64)
}

type Refresher interface {
	Refresh(ctx context.Context) (snapshot.Result, error)
}

type Handler struct {
	view    AgendaView
	refresh Refresher
}

func NewHandler(view AgendaView, refresh Refresher) *Handler {
	return &Handler{view: view, refresh: refresh}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("", h.Page)
}

func (h *Handler) RegisterAPIRoutes(r gin.IRouter) {
	r.GET("/agenda", h.JSON)
}

func (h *Handler) Page(c *gin.Context) {
	page := views.AgendaPage{Username: c.GetString(middleware.CtxUsername)}
	status := http.StatusOK
	a, err := h.agenda(c.Request.Context())
	if err != nil {
		status = http.StatusBadGateway
		page.LoadError = LoadFailed
	}
	page.Agenda = a
	c.HTML(status, views.PageAgenda, page)
}

func (h *Handler) JSON(c *gin.Context) {
	a, err := h.agenda(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusBadGateway, response.CodeUpstream, LoadFailed)
		return
	}
	response.Success(c, http.StatusOK, a)
}

// agenda returns the live agenda, loading the cache if nothing has been
// fetched yet. An agenda that never loaded is an error, not an empty one.
func (h *Handler) agenda(ctx context.Context) (views.Agenda, error) {
	a, seq := h.view.Agenda()
	if seq == 0 && h.refresh != nil {
		_, err := h.refresh.Refresh(ctx)
		a, seq = h.view.Agenda()
		if err != nil && seq == 0 {
			return views.Agenda{}, err
		}
	}
	if a.Entries == nil {
		a.Entries = []views.AgendaEntry{}
	}
	return a, nil
}
