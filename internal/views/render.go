// Package views maps slot state to what the admin, agenda and public booking
// pages show. The builders here are pure; Live wires them to the cache.
package views

import (
	"time"

	"glazestudio/internal/domain"
)

const (
	StatusOpen   = "Open"
	StatusBooked = "Booked"

	missingField = "N/A"
	weekDays     = 7
)

// AdminRow is one line of the admin slot list.
type AdminRow struct {
	ID       int64
	Date     string
	Time     string
	IsBooked bool
	Status   string
}

// AdminList lists every slot by (date, time), ties in input order.
func AdminList(s *domain.Snapshot) []AdminRow {
	slots := s.Slots()
	rows := make([]AdminRow, 0, len(slots))
	for _, sl := range slots {
		status := StatusOpen
		if sl.IsBooked {
			status = StatusBooked
		}
		rows = append(rows, AdminRow{
			ID:       sl.ID,
			Date:     sl.Date,
			Time:     sl.Time,
			IsBooked: sl.IsBooked,
			Status:   status,
		})
	}
	return rows
}

type AgendaEntry struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
}

type Agenda struct {
	Entries []AgendaEntry `json:"entries"`
	Empty   bool          `json:"empty"`
}

// BuildAgenda keeps booked slots only, oldest first.
func BuildAgenda(s *domain.Snapshot) Agenda {
	booked := s.Booked()
	out := Agenda{Entries: make([]AgendaEntry, 0, len(booked))}
	for _, sl := range booked {
		out.Entries = append(out.Entries, AgendaEntry{
			ID:          sl.ID,
			Date:        sl.Date,
			Time:        sl.Time,
			ClientName:  orMissing(sl.ClientName),
			ClientEmail: orMissing(sl.ClientEmail),
		})
	}
	out.Empty = len(out.Entries) == 0
	return out
}

func orMissing(v string) string {
	if v == "" {
		return missingField
	}
	return v
}

// Chip is a selectable open hour in the day grid.
type Chip struct {
	SlotID int64  `json:"slot_id"`
	Time   string `json:"time"`
}

type DayGrid struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	Chips []Chip `json:"chips"`
	// NoAvailability is set when the backend has no slots at all for the date.
	NoAvailability bool `json:"no_availability"`
	// FullyBooked is set when slots exist but every one is taken.
	FullyBooked bool `json:"fully_booked"`
}

// BuildDayGrid turns one date's slots into chips. Booked slots never get a chip.
func BuildDayGrid(date string, slots []domain.Slot) DayGrid {
	grid := DayGrid{
		Date:           date,
		Label:          DayLabel(date),
		Chips:          make([]Chip, 0, len(slots)),
		NoAvailability: len(slots) == 0,
	}
	for _, sl := range domain.SortSlots(slots) {
		if sl.IsBooked || sl.Date != date {
			continue
		}
		grid.Chips = append(grid.Chips, Chip{SlotID: sl.ID, Time: sl.Time})
	}
	grid.FullyBooked = !grid.NoAvailability && len(grid.Chips) == 0
	return grid
}

// DayLabel formats a YYYY-MM-DD date like "Saturday, 1 June".
func DayLabel(date string) string {
	t, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("Monday, 2 January")
}

type Day struct {
	Date     string
	Weekday  string
	Number   int
	Selected bool
	IsToday  bool
}

// Week is the 7-day carousel shown above the day grid.
type Week struct {
	Start      string
	MonthLabel string
	Days       []Day
	PrevStart  string
	NextStart  string
	Selected   string
}

// BuildWeek lays out seven days from start. Navigation moves by whole weeks.
// today and selected are YYYY-MM-DD or empty.
func BuildWeek(start time.Time, selected, today string) Week {
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)

	w := Week{
		Start:      start.Format(domain.DateLayout),
		MonthLabel: start.Format("January 2006"),
		Days:       make([]Day, 0, weekDays),
		PrevStart:  start.AddDate(0, 0, -weekDays).Format(domain.DateLayout),
		NextStart:  start.AddDate(0, 0, weekDays).Format(domain.DateLayout),
		Selected:   selected,
	}
	for i := 0; i < weekDays; i++ {
		d := start.AddDate(0, 0, i)
		date := d.Format(domain.DateLayout)
		w.Days = append(w.Days, Day{
			Date:     date,
			Weekday:  d.Format("Mon"),
			Number:   d.Day(),
			Selected: date == selected,
			IsToday:  date == today,
		})
	}
	return w
}

// ParseWeekStart reads a YYYY-MM-DD week start, falling back to fallback.
func ParseWeekStart(v string, fallback time.Time) time.Time {
	if v == "" {
		return fallback
	}
	t, err := time.Parse(domain.DateLayout, v)
	if err != nil {
		return fallback
	}
	return t
}
