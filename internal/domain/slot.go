package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Slot is a single bookable hour on a given date.
type Slot struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	IsBooked    bool   `json:"is_booked"`
	ClientName  string `json:"client_name,omitempty"`
	ClientEmail string `json:"client_email,omitempty"`
}

// SortKey is the composite ordering key date ++ time.
func (s Slot) SortKey() string {
	return s.Date + s.Time
}

// Start returns the wall-clock start of the slot in loc.
func (s Slot) Start(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, s.Date+" "+s.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("slot %d: invalid date/time %q %q: %w", s.ID, s.Date, s.Time, err)
	}
	return t, nil
}

// HourLabel formats an hour of the day as HH:00.
func HourLabel(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

// SortSlots returns a copy of slots ordered by SortKey. Ties keep input order.
func SortSlots(slots []Slot) []Slot {
	out := slices.Clone(slots)
	slices.SortStableFunc(out, func(a, b Slot) int {
		return strings.Compare(a.SortKey(), b.SortKey())
	})
	return out
}

// Snapshot is the full slot collection as of one successful fetch.
// It is never mutated after construction.
type Snapshot struct {
	slots     []Slot
	Seq       uint64
	FetchedAt time.Time
}

func NewSnapshot(slots []Slot, seq uint64, fetchedAt time.Time) *Snapshot {
	return &Snapshot{
		slots:     SortSlots(slots),
		Seq:       seq,
		FetchedAt: fetchedAt,
	}
}

// Slots returns a copy of the ordered slot list.
func (s *Snapshot) Slots() []Slot {
	if s == nil {
		return nil
	}
	return slices.Clone(s.slots)
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.slots)
}

// Booked returns the booked slots in snapshot order.
func (s *Snapshot) Booked() []Slot {
	if s == nil {
		return nil
	}
	out := make([]Slot, 0, len(s.slots))
	for _, sl := range s.slots {
		if sl.IsBooked {
			out = append(out, sl)
		}
	}
	return out
}

// Equal compares the ordered slot lists by value. Seq and FetchedAt are ignored.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	return cmp.Equal(s.slots, other.slots, cmpopts.EquateEmpty())
}

// Diff is a human-readable diff of the slot lists, empty when equal.
func (s *Snapshot) Diff(other *Snapshot) string {
	return cmp.Diff(s.Slots(), other.Slots())
}
