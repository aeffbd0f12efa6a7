package booking

import (
	"context"

	"glazestudio/internal/domain"
)

// Booker places a booking with the backend.
type Booker interface {
	Book(ctx context.Context, id int64, clientName, clientEmail string) error
}

// DayLister loads one date's slots, bypassing the shared cache.
type DayLister interface {
	ListByDate(ctx context.Context, date string) ([]domain.Slot, error)
}

// Refresher is the part of the snapshot cache a confirmed booking pokes.
type Refresher interface {
	Trigger(ctx context.Context)
}
