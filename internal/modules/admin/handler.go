package admin

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"glazestudio/internal/domain"
	"glazestudio/internal/middleware"
	"glazestudio/internal/pkg/response"
	"glazestudio/internal/slotapi"
	"glazestudio/internal/views"
)

const (
	invalidInputs = "Invalid inputs."
	// LoadFailed is shown instead of the list when slots were never loaded.
	LoadFailed = "Failed to load slots. Is backend running?"
)

type Handler struct {
	service *Service
	view    AdminView
	refresh Refresher
	now     func() time.Time
}

func NewHandler(service *Service, view AdminView, refresh Refresher) *Handler {
	return &Handler{service: service, view: view, refresh: refresh, now: time.Now}
}

// RegisterRoutes mounts the admin pages and their JSON twins on a
// session-guarded group.
func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("", h.Page)
	admin.POST("/slots", h.CreateRange)
	admin.POST("/slots/:id/delete", h.DeleteSlot)
	admin.POST("/slots/delete-all", h.DeleteAll)
}

func (h *Handler) RegisterAPIRoutes(api *gin.RouterGroup) {
	api.GET("/slots", h.List)
	api.POST("/slots", h.CreateRange)
	api.DELETE("/slots/:id", h.DeleteSlot)
	api.DELETE("/slots", h.DeleteAll)
}

func (h *Handler) Page(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = h.now().Format(domain.DateLayout)
	}
	page := views.AdminPage{
		Username: c.GetString(middleware.CtxUsername),
		Date:     date,
		BatchKey: uuid.NewString(),
		Status: views.Status{
			Text: c.Query("status"),
			OK:   c.Query("ok") == "1",
		},
	}

	status := http.StatusOK
	rows, err := h.rows(c)
	if err != nil {
		status = http.StatusBadGateway
		page.LoadError = LoadFailed
	}
	page.Rows = rows
	c.HTML(status, views.PageAdmin, page)
}

func (h *Handler) List(c *gin.Context) {
	rows, err := h.rows(c)
	if err != nil {
		response.Error(c, http.StatusBadGateway, response.CodeUpstream, LoadFailed)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"slots": rows})
}

func (h *Handler) CreateRange(c *gin.Context) {
	req, ok := bindRange(c)
	if !ok {
		h.fail(c, http.StatusBadRequest, response.CodeValidation, invalidInputs, req.Date)
		return
	}

	res, err := h.service.CreateRange(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidRange) {
			h.fail(c, http.StatusBadRequest, response.CodeValidation, invalidInputs, req.Date)
			return
		}
		h.fail(c, http.StatusInternalServerError, response.CodeInternal, "Failed to create slots.", req.Date)
		return
	}

	if response.WantsJSON(c) {
		response.Success(c, http.StatusOK, res)
		return
	}
	h.back(c, res.Message, res.Failed == 0, req.Date)
}

func (h *Handler) DeleteSlot(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, http.StatusBadRequest, response.CodeValidation, "Invalid slot id.", "")
		return
	}

	if err := h.service.DeleteSlot(c.Request.Context(), id, confirmed(c)); err != nil {
		h.failAction(c, err)
		return
	}
	if response.WantsJSON(c) {
		response.Success(c, http.StatusOK, gin.H{"deleted": id})
		return
	}
	h.back(c, "Slot deleted.", true, "")
}

func (h *Handler) DeleteAll(c *gin.Context) {
	res, err := h.service.DeleteAll(c.Request.Context(), confirmed(c))
	if err != nil {
		h.failAction(c, err)
		return
	}
	if response.WantsJSON(c) {
		response.Success(c, http.StatusOK, res)
		return
	}
	h.back(c, res.Message, true, "")
}

// rows returns the live admin list, loading the cache on first use. It fails
// only when nothing was ever loaded; a later failed fetch keeps the last list.
func (h *Handler) rows(c *gin.Context) ([]views.AdminRow, error) {
	rows, seq := h.view.Admin()
	if seq == 0 && h.refresh != nil {
		if _, err := h.refresh.Refresh(c.Request.Context()); err != nil {
			rows, seq = h.view.Admin()
			if seq == 0 {
				return nil, err
			}
		} else {
			rows, _ = h.view.Admin()
		}
	}
	if rows == nil {
		rows = []views.AdminRow{}
	}
	return rows, nil
}

func (h *Handler) failAction(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrConfirmationRequired):
		h.fail(c, http.StatusBadRequest, response.CodeValidation, "Please confirm this action.", "")
	case errors.Is(err, ErrInvalidID):
		h.fail(c, http.StatusBadRequest, response.CodeValidation, "Invalid slot id.", "")
	case errors.Is(err, slotapi.ErrConflict):
		h.fail(c, http.StatusConflict, response.CodeConflict, slotapi.UserMessage(err), "")
	case errors.Is(err, slotapi.ErrUnauthorized):
		h.fail(c, http.StatusUnauthorized, response.CodeUnauthorized, "Session expired, please log in again.", "")
	default:
		h.fail(c, http.StatusBadGateway, response.CodeUpstream, slotapi.UserMessage(err), "")
	}
}

func (h *Handler) fail(c *gin.Context, status int, code, message, date string) {
	if response.WantsJSON(c) {
		response.Error(c, status, code, message)
		return
	}
	h.back(c, message, false, date)
}

// back redirects to the admin page with an inline status line.
func (h *Handler) back(c *gin.Context, message string, ok bool, date string) {
	q := url.Values{}
	q.Set("status", message)
	if ok {
		q.Set("ok", "1")
	}
	if date != "" {
		q.Set("date", date)
	}
	c.Redirect(http.StatusSeeOther, "/admin?"+q.Encode())
}

func confirmed(c *gin.Context) bool {
	v := c.PostForm("confirm")
	if v == "" {
		v = c.Query("confirm")
	}
	return v == "yes" || v == "true" || v == "1"
}

func bindRange(c *gin.Context) (CreateRangeRequest, bool) {
	if c.ContentType() == gin.MIMEJSON {
		var req CreateRangeRequest
		err := c.ShouldBindJSON(&req)
		return req, err == nil
	}

	var form rangeForm
	if err := c.ShouldBind(&form); err != nil {
		return CreateRangeRequest{}, false
	}
	req := CreateRangeRequest{Date: strings.TrimSpace(form.Date), BatchKey: form.BatchKey}
	start, okStart := parseHour(form.StartHour)
	end, okEnd := parseHour(form.EndHour)
	req.StartHour, req.EndHour = start, end
	return req, okStart && okEnd
}

// parseHour accepts "10" or "10:00".
func parseHour(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if i := strings.IndexByte(v, ':'); i >= 0 {
		v = v[:i]
	}
	h, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return h, true
}
