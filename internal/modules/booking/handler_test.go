package booking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"glazestudio/internal/domain"
	"glazestudio/internal/views"
)

type dayStub struct {
	slots []domain.Slot
	calls int
}

func (d *dayStub) ListByDate(_ context.Context, date string) ([]domain.Slot, error) {
	d.calls++
	out := []domain.Slot{}
	for _, s := range d.slots {
		if s.Date == date {
			out = append(out, s)
		}
	}
	return out, nil
}

type visitor struct {
	t      *testing.T
	r      *gin.Engine
	cookie *http.Cookie
}

func (v *visitor) do(method, path string, form url.Values, wantJSON bool) *httptest.ResponseRecorder {
	v.t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if wantJSON {
		req.Header.Set("Accept", "application/json")
	} else {
		req.Header.Set("Accept", "text/html")
	}
	if v.cookie != nil {
		req.AddCookie(v.cookie)
	}
	w := httptest.NewRecorder()
	v.r.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == VisitorCookie {
			v.cookie = c
		}
	}
	return w
}

func setupHandler(t *testing.T, booker Booker, days DayLister) *gin.Engine {
	t.Helper()
	r, _ := setupHandlerWithRegistry(t, booker, days)
	return r
}

func setupHandlerWithRegistry(t *testing.T, booker Booker, days DayLister) (*gin.Engine, *Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := NewRegistry(func() *Flow {
		return NewFlow(booker, testLinks(), WithDismissAfter(time.Hour))
	}, time.Hour)
	h := NewHandler(reg, days, time.UTC, nil)
	h.now = func() time.Time { return time.Date(2024, 5, 30, 9, 0, 0, 0, time.UTC) }

	r := gin.New()
	r.SetHTMLTemplate(views.MustTemplates())
	h.RegisterRoutes(r)
	return r, reg
}

func TestHandler_PageListsOnlyOpenSlots(t *testing.T) {
	days := &dayStub{slots: []domain.Slot{
		slot42,
		{ID: 43, Date: "2024-06-01", Time: "11:00", IsBooked: true},
	}}
	v := &visitor{t: t, r: setupHandler(t, new(MockBooker), days)}

	w := v.do(http.MethodGet, "/book?date=2024-06-01", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `name="slot_id" value="42"`)
	assert.NotContains(t, body, `name="slot_id" value="43"`)
	assert.Contains(t, body, "May 2024")
}

func TestHandler_BrowsingDoesNotCreateFlows(t *testing.T) {
	days := &dayStub{slots: []domain.Slot{slot42}}
	r, reg := setupHandlerWithRegistry(t, new(MockBooker), days)

	for i := 0; i < 3; i++ {
		v := &visitor{t: t, r: r}
		w := v.do(http.MethodGet, "/book?date=2024-06-01", nil, false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, v.cookie)
	}
	assert.Zero(t, reg.Len())

	v := &visitor{t: t, r: r}
	w := v.do(http.MethodPost, "/book/submit", url.Values{"client_name": {"Ana"}, "client_email": {"ana@example.com"}}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No slot selected.")
	assert.Zero(t, reg.Len())

	w = v.do(http.MethodPost, "/book/select", url.Values{"date": {"2024-06-01"}, "slot_id": {"42"}}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, v.cookie)
	assert.Equal(t, 0, v.cookie.MaxAge)
	assert.Equal(t, 1, reg.Len())

	w = v.do(http.MethodGet, "/book?date=2024-06-01", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, reg.Len())
}

func TestHandler_NoAvailability(t *testing.T) {
	v := &visitor{t: t, r: setupHandler(t, new(MockBooker), &dayStub{})}
	w := v.do(http.MethodGet, "/book?date=2024-06-03", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "No availability for this day.")
}

func TestHandler_BookingConflictJSON(t *testing.T) {
	booker := new(MockBooker)
	booker.On("Book", mock.Anything, int64(42), "Ana", "ana@example.com").Return(conflict("Already booked")).Once()
	days := &dayStub{slots: []domain.Slot{slot42}}
	v := &visitor{t: t, r: setupHandler(t, booker, days)}

	w := v.do(http.MethodPost, "/book/select", url.Values{"date": {"2024-06-01"}, "slot_id": {"42"}}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var sel struct {
		Data View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sel))
	assert.Equal(t, "slot_selected", sel.Data.StateName)

	w = v.do(http.MethodPost, "/book/submit", url.Values{"client_name": {"Ana"}, "client_email": {"ana@example.com"}}, true)
	assert.Equal(t, http.StatusConflict, w.Code)

	var failed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failed))
	assert.Equal(t, "Error: Already booked", failed.Error.Message)
	booker.AssertExpectations(t)
}

func TestHandler_ConfirmRedirectsAndServesQR(t *testing.T) {
	booker := new(MockBooker)
	booker.On("Book", mock.Anything, int64(42), "Ana", "ana@example.com").Return(nil).Once()
	days := &dayStub{slots: []domain.Slot{slot42}}
	v := &visitor{t: t, r: setupHandler(t, booker, days)}

	w := v.do(http.MethodGet, "/book/calendar.png", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = v.do(http.MethodPost, "/book/select", url.Values{"date": {"2024-06-01"}, "slot_id": {"42"}}, false)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/book?date=2024-06-01", w.Header().Get("Location"))

	w = v.do(http.MethodPost, "/book/submit", url.Values{"client_name": {"Ana"}, "client_email": {"ana@example.com"}}, false)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/book?date=2024-06-01", w.Header().Get("Location"))

	w = v.do(http.MethodGet, "/book?date=2024-06-01", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Add to Google Calendar")

	w = v.do(http.MethodGet, "/book/calendar.png", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestHandler_SelectUnknownSlot(t *testing.T) {
	v := &visitor{t: t, r: setupHandler(t, new(MockBooker), &dayStub{})}
	w := v.do(http.MethodPost, "/book/select", url.Values{"date": {"2024-06-01"}, "slot_id": {"99"}}, true)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = v.do(http.MethodPost, "/book/select", url.Values{"date": {"junk"}, "slot_id": {"1"}}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Cancel(t *testing.T) {
	days := &dayStub{slots: []domain.Slot{slot42}}
	v := &visitor{t: t, r: setupHandler(t, new(MockBooker), days)}

	v.do(http.MethodPost, "/book/select", url.Values{"date": {"2024-06-01"}, "slot_id": {"42"}}, false)
	w := v.do(http.MethodPost, "/book/cancel", url.Values{}, false)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/book?date=2024-06-01", w.Header().Get("Location"))

	w = v.do(http.MethodGet, "/book?date=2024-06-01", nil, false)
	assert.NotContains(t, w.Body.String(), "booking-modal")
}

func TestHandler_DayJSON(t *testing.T) {
	days := &dayStub{slots: []domain.Slot{slot42}}
	v := &visitor{t: t, r: setupHandler(t, new(MockBooker), days)}

	w := v.do(http.MethodGet, "/api/days/2024-06-01", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"slot_id":42`)

	w = v.do(http.MethodGet, "/api/days/tomorrow", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
