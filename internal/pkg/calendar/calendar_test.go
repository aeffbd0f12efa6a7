package calendar

import (
	"bytes"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glazestudio/internal/domain"
)

func testBuilder(t *testing.T) *Builder {
	t.Helper()
	loc := time.FixedZone("ART", -3*60*60)
	return NewBuilder(Event{
		Title:    "Turno Uñas - Glaze Studio",
		Details:  "Reserva confirmada en Glaze Studio.",
		Location: "Glaze Studio",
	}, loc)
}

func TestSlotLink(t *testing.T) {
	b := testBuilder(t)

	link, err := b.SlotLink(domain.Slot{ID: 42, Date: "2024-06-01", Time: "10:00"})
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "calendar.google.com", u.Host)
	q := u.Query()
	assert.Equal(t, "TEMPLATE", q.Get("action"))
	assert.Equal(t, "20240601T130000Z/20240601T140000Z", q.Get("dates"))
	assert.Equal(t, "Turno Uñas - Glaze Studio", q.Get("text"))
	assert.Equal(t, "Glaze Studio", q.Get("location"))
	assert.Contains(t, link, "text=Turno%20U%C3%B1as%20-%20Glaze%20Studio")
}

func TestLink_Deterministic(t *testing.T) {
	b := testBuilder(t)
	start := time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)

	assert.Equal(t, b.Link(start), b.Link(start))
	// an evening slot ends on the next day
	assert.Contains(t, b.Link(start), "dates=20240601T230000Z/20240602T000000Z")
}

func TestSlotLink_InvalidTime(t *testing.T) {
	_, err := testBuilder(t).SlotLink(domain.Slot{Date: "2024-06-01", Time: "ten"})
	assert.Error(t, err)
}

func TestQRCode(t *testing.T) {
	png, err := QRCode("https://calendar.google.com/calendar/render?action=TEMPLATE", 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = QRCode("", 128)
	assert.Error(t, err)
}
