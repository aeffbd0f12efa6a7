// Package calendar builds "add to calendar" links for confirmed bookings.
package calendar

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"glazestudio/internal/domain"
)

const (
	baseURL     = "https://calendar.google.com/calendar/render"
	stampLayout = "20060102T150405Z"

	// Duration is the fixed length of every appointment.
	Duration = time.Hour

	DefaultQRSize = 256
)

type Event struct {
	Title    string
	Details  string
	Location string
}

// Builder turns a booked slot into a calendar link. Slot times are read in Loc.
type Builder struct {
	Event Event
	Loc   *time.Location
}

func NewBuilder(ev Event, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.Local
	}
	return &Builder{Event: ev, Loc: loc}
}

// Link returns the calendar URL for a one-hour event starting at start.
// The same start always yields the same link.
func (b *Builder) Link(start time.Time) string {
	end := start.Add(Duration)

	var sb strings.Builder
	sb.WriteString(baseURL)
	sb.WriteString("?action=TEMPLATE")
	sb.WriteString("&text=" + escape(b.Event.Title))
	sb.WriteString("&dates=" + stamp(start) + "/" + stamp(end))
	sb.WriteString("&details=" + escape(b.Event.Details))
	sb.WriteString("&location=" + escape(b.Event.Location))
	return sb.String()
}

// SlotLink is Link for the start of slot.
func (b *Builder) SlotLink(slot domain.Slot) (string, error) {
	start, err := slot.Start(b.Loc)
	if err != nil {
		return "", err
	}
	return b.Link(start), nil
}

// QRCode renders link as a PNG of size x size pixels.
func QRCode(link string, size int) ([]byte, error) {
	if link == "" {
		return nil, fmt.Errorf("calendar: empty link")
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("calendar: encode qr: %w", err)
	}
	return png, nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(stampLayout)
}

// escape matches encodeURIComponent: spaces become %20, not '+'.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
