package admin

import (
	"context"

	"glazestudio/internal/domain"
	"glazestudio/internal/repository"
	"glazestudio/internal/snapshot"
	"glazestudio/internal/views"
)

// SlotWriter is the part of the backend client admin actions use.
type SlotWriter interface {
	Create(ctx context.Context, date, hhmm, idempotencyKey string) (*domain.Slot, error)
	DeleteOne(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) (int, error)
}

// Ledger records which create requests were already sent.
type Ledger interface {
	Claim(ctx context.Context, key string) (bool, error)
	Complete(ctx context.Context, key string, status repository.CreationStatus, slotID *int64) error
	ReleaseSlot(ctx context.Context, id int64) (int64, error)
	ReleaseAll(ctx context.Context) (int64, error)
}

type Refresher interface {
	Refresh(ctx context.Context) (snapshot.Result, error)
}

// AdminView serves the last rendered admin list.
type AdminView interface {
	Admin() ([]views.AdminRow, uint64)
}
