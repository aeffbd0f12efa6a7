package booking

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"glazestudio/internal/domain"
	"glazestudio/internal/pkg/calendar"
	"glazestudio/internal/pkg/logger"
	"glazestudio/internal/pkg/response"
	"glazestudio/internal/pkg/validator"
	"glazestudio/internal/slotapi"
	"glazestudio/internal/views"
)

const (
	VisitorCookie   = "glaze_visitor"
	gridLoadFailed  = "Error loading slots."
	slotUnavailable = "That time is no longer available."
)

type Handler struct {
	flows *Registry
	days  DayLister
	loc   *time.Location
	now   func() time.Time
	log   *zap.Logger
}

func NewHandler(flows *Registry, days DayLister, loc *time.Location, l *zap.Logger) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		flows: flows,
		days:  days,
		loc:   loc,
		now:   time.Now,
		log:   logger.OrNop(l),
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/book") })
	r.GET("/book", h.Page)
	r.POST("/book/select", h.Select)
	r.POST("/book/submit", h.Submit)
	r.POST("/book/cancel", h.Cancel)
	r.GET("/book/calendar.png", h.CalendarQR)
	r.GET("/api/days/:date", h.DayJSON)
}

// Page renders the week carousel, the selected day's grid and the modal.
func (h *Handler) Page(c *gin.Context) {
	var q PageQuery
	_ = c.ShouldBindQuery(&q)

	today := h.now().In(h.loc)
	todayStr := today.Format(domain.DateLayout)
	date := q.Date
	if date != "" && !validator.Var(date, "datetime=2006-01-02") {
		date = ""
	}

	page := views.BookPage{
		Week: views.BuildWeek(h.weekStart(q.Week, date, today), date, todayStr),
	}
	if date != "" {
		grid, err := h.loadGrid(c.Request.Context(), date)
		if err != nil {
			page.GridError = gridLoadFailed
		} else {
			page.Grid = &grid
		}
	}

	if flow := h.existingFlow(c); flow != nil {
		if v := flow.View(); v.State != StateIdle && v.Pending != nil {
			page.Modal = modalFor(v)
		}
	}
	c.HTML(http.StatusOK, views.PageBook, page)
}

// DayJSON is the day grid as JSON.
func (h *Handler) DayJSON(c *gin.Context) {
	date := c.Param("date")
	if !validator.Var(date, "datetime=2006-01-02") {
		response.Error(c, http.StatusBadRequest, response.CodeValidation, "date must be YYYY-MM-DD")
		return
	}
	grid, err := h.loadGrid(c.Request.Context(), date)
	if err != nil {
		response.Error(c, http.StatusBadGateway, response.CodeUpstream, gridLoadFailed)
		return
	}
	response.Success(c, http.StatusOK, grid)
}

func (h *Handler) Select(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBind(&req); err != nil || validator.Validate(req) != nil {
		h.fail(c, http.StatusBadRequest, response.CodeValidation, "Invalid request body", "")
		return
	}

	slot, err := h.findSlot(c.Request.Context(), req.Date, req.SlotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			h.fail(c, http.StatusConflict, response.CodeConflict, slotUnavailable, req.Date)
			return
		}
		h.fail(c, http.StatusBadGateway, response.CodeUpstream, gridLoadFailed, req.Date)
		return
	}

	flow := h.flow(c)
	if err := flow.Select(req.Date, slot); err != nil {
		switch {
		case errors.Is(err, ErrSlotBooked):
			h.fail(c, http.StatusConflict, response.CodeConflict, slotUnavailable, req.Date)
		case errors.Is(err, ErrSubmitting):
			h.fail(c, http.StatusConflict, response.CodeConflict, "A booking is already in progress.", req.Date)
		default:
			h.fail(c, http.StatusBadRequest, response.CodeValidation, "Invalid request body", req.Date)
		}
		return
	}
	h.done(c, http.StatusOK, flow.View())
}

func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	_ = c.ShouldBind(&req)

	flow := h.existingFlow(c)
	if flow == nil {
		h.fail(c, http.StatusBadRequest, response.CodeValidation, "No slot selected.", "")
		return
	}
	err := flow.Submit(c.Request.Context(), req.ClientName, req.ClientEmail)
	v := flow.View()
	if err == nil {
		h.done(c, http.StatusOK, v)
		return
	}

	date := ""
	if v.Pending != nil {
		date = v.Pending.Date
	}
	switch {
	case errors.Is(err, ErrNoSelection):
		h.fail(c, http.StatusBadRequest, response.CodeValidation, "No slot selected.", date)
	case errors.Is(err, ErrSubmitting), errors.Is(err, ErrCancelled):
		h.fail(c, http.StatusConflict, response.CodeConflict, err.Error(), date)
	case errors.Is(err, ErrValidation):
		h.failView(c, http.StatusBadRequest, response.CodeValidation, v)
	case errors.Is(err, slotapi.ErrConflict):
		h.failView(c, http.StatusConflict, response.CodeConflict, v)
	case errors.Is(err, slotapi.ErrValidation):
		h.failView(c, http.StatusUnprocessableEntity, response.CodeValidation, v)
	default:
		h.failView(c, http.StatusBadGateway, response.CodeUpstream, v)
	}
}

func (h *Handler) Cancel(c *gin.Context) {
	v := View{StateName: StateIdle.String()}
	date := ""
	if flow := h.existingFlow(c); flow != nil {
		if p := flow.View().Pending; p != nil {
			date = p.Date
		}
		flow.Cancel()
		v = flow.View()
	}
	if response.WantsJSON(c) {
		response.Success(c, http.StatusOK, v)
		return
	}
	c.Redirect(http.StatusSeeOther, bookURL(date))
}

// CalendarQR serves the confirmed booking's calendar link as a QR code.
func (h *Handler) CalendarQR(c *gin.Context) {
	var v View
	if flow := h.existingFlow(c); flow != nil {
		v = flow.View()
	}
	if v.CalendarURL == "" {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "No confirmed booking")
		return
	}
	png, err := calendar.QRCode(v.CalendarURL, calendar.DefaultQRSize)
	if err != nil {
		h.log.Error("calendar qr failed", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, "Failed to render QR code")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) loadGrid(ctx context.Context, date string) (views.DayGrid, error) {
	slots, err := h.days.ListByDate(ctx, date)
	if err != nil {
		h.log.Warn("day grid fetch failed", zap.String("date", date), zap.Error(err))
		return views.DayGrid{}, err
	}
	return views.BuildDayGrid(date, slots), nil
}

func (h *Handler) findSlot(ctx context.Context, date string, id int64) (domain.Slot, error) {
	slots, err := h.days.ListByDate(ctx, date)
	if err != nil {
		return domain.Slot{}, err
	}
	for _, s := range slots {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Slot{}, ErrSlotNotFound
}

// weekStart keeps the carousel on the current week unless the picked date
// falls outside it.
func (h *Handler) weekStart(week, date string, today time.Time) time.Time {
	todayUTC := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if week != "" {
		return views.ParseWeekStart(week, todayUTC)
	}
	if date == "" {
		return todayUTC
	}
	d := views.ParseWeekStart(date, todayUTC)
	if d.Before(todayUTC) || !d.Before(todayUTC.AddDate(0, 0, 7)) {
		return d
	}
	return todayUTC
}

// existingFlow is the visitor's flow if they already picked a slot. Page views
// never create one.
func (h *Handler) existingFlow(c *gin.Context) *Flow {
	id, err := c.Cookie(VisitorCookie)
	if err != nil || uuid.Validate(id) != nil {
		return nil
	}
	flow, _ := h.flows.Lookup(id)
	return flow
}

// flow returns the visitor's flow, issuing a visitor cookie on first use.
func (h *Handler) flow(c *gin.Context) *Flow {
	id, err := c.Cookie(VisitorCookie)
	if err != nil || uuid.Validate(id) != nil {
		id = uuid.NewString()
		c.SetSameSite(http.SameSiteLaxMode)
		// MaxAge 0: gone when the browser session ends
		c.SetCookie(VisitorCookie, id, 0, "/", "", false, true)
	}
	return h.flows.Get(id)
}

func (h *Handler) done(c *gin.Context, status int, v View) {
	if response.WantsJSON(c) {
		response.Success(c, status, v)
		return
	}
	date := ""
	if v.Pending != nil {
		date = v.Pending.Date
	}
	c.Redirect(http.StatusSeeOther, bookURL(date))
}

func (h *Handler) fail(c *gin.Context, status int, code, message, date string) {
	if response.WantsJSON(c) {
		response.Error(c, status, code, message)
		return
	}
	c.Redirect(http.StatusSeeOther, bookURL(date))
}

// failView reports a failed submission; the status text is already on the flow.
func (h *Handler) failView(c *gin.Context, status int, code string, v View) {
	if response.WantsJSON(c) {
		response.ErrorWithDetails(c, status, code, v.Status, v)
		return
	}
	date := ""
	if v.Pending != nil {
		date = v.Pending.Date
	}
	c.Redirect(http.StatusSeeOther, bookURL(date))
}

func modalFor(v View) *views.BookingModal {
	m := &views.BookingModal{
		SlotID:      v.Pending.Slot.ID,
		Date:        v.Pending.Date,
		Label:       views.DayLabel(v.Pending.Date),
		Time:        v.Pending.Slot.Time,
		Name:        v.Name,
		Email:       v.Email,
		State:       v.StateName,
		Status:      views.Status{Text: v.Status, OK: v.StatusOK},
		Confirmed:   v.State == StateConfirmed,
		CalendarURL: v.CalendarURL,
	}
	return m
}

func bookURL(date string) string {
	if date == "" {
		return "/book"
	}
	return "/book?date=" + url.QueryEscape(date)
}
