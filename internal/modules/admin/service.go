package admin

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"glazestudio/internal/domain"
	"glazestudio/internal/pkg/logger"
	"glazestudio/internal/pkg/validator"
	"glazestudio/internal/repository"
	"glazestudio/internal/slotapi"
)

type Service struct {
	slots   SlotWriter
	ledger  Ledger
	refresh Refresher
	log     *zap.Logger
}

// NewService wires the admin actions. ledger may be nil, in which case
// replayed batches are not detected.
func NewService(slots SlotWriter, ledger Ledger, refresh Refresher, l *zap.Logger) *Service {
	return &Service{
		slots:   slots,
		ledger:  ledger,
		refresh: refresh,
		log:     logger.OrNop(l),
	}
}

// CreationKey is the idempotency key of one hour within a batch.
func CreationKey(batchKey, date, hhmm string) string {
	return batchKey + "/" + date + "/" + hhmm
}

// CreateRange creates one open slot per hour in [StartHour, EndHour) on Date.
// Hours whose key was already used by this batch are skipped, as are hours
// the backend reports as existing.
func (s *Service) CreateRange(ctx context.Context, req CreateRangeRequest) (*CreateRangeResult, error) {
	if fields := validator.Validate(req); fields != nil {
		return nil, errors.Wrapf(ErrInvalidRange, "%v", fields)
	}
	if req.BatchKey == "" {
		req.BatchKey = uuid.NewString()
	}

	res := &CreateRangeResult{Date: req.Date, Slots: []domain.Slot{}}
	var firstErr error
	for h := req.StartHour; h < req.EndHour; h++ {
		hhmm := domain.HourLabel(h)
		key := CreationKey(req.BatchKey, req.Date, hhmm)

		if s.ledger != nil {
			claimed, err := s.ledger.Claim(ctx, key)
			if err != nil {
				return nil, errors.Wrapf(err, "claim %s", key)
			}
			if !claimed {
				res.Skipped++
				continue
			}
		}

		slot, err := s.slots.Create(ctx, req.Date, hhmm, key)
		switch {
		case err == nil:
			res.Created++
			res.Slots = append(res.Slots, *slot)
			s.complete(ctx, key, repository.CreationCreated, &slot.ID)
		case errors.Is(err, slotapi.ErrConflict):
			res.Skipped++
			s.complete(ctx, key, repository.CreationExists, nil)
		default:
			res.Failed++
			if firstErr == nil {
				firstErr = err
			}
			s.complete(ctx, key, repository.CreationFailed, nil)
			s.log.Warn("slot create failed", zap.String("date", req.Date), zap.String("time", hhmm), zap.Error(err))
		}
	}

	res.Message = fmt.Sprintf("Created %d slots for %s.", res.Created, req.Date)
	if res.Failed > 0 {
		res.Message += fmt.Sprintf(" %d failed: %s", res.Failed, slotapi.UserMessage(firstErr))
	}
	s.log.Info("slot range created",
		zap.String("date", req.Date),
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)

	s.forceRefresh(ctx)
	return res, nil
}

// DeleteSlot removes one slot once the user confirmed it.
func (s *Service) DeleteSlot(ctx context.Context, id int64, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	if id <= 0 {
		return ErrInvalidID
	}
	if err := s.slots.DeleteOne(ctx, id); err != nil {
		return err
	}
	s.log.Info("slot deleted", zap.Int64("slot_id", id))
	s.release(ctx, func(ctx context.Context) (int64, error) { return s.ledger.ReleaseSlot(ctx, id) })
	s.forceRefresh(ctx)
	return nil
}

// DeleteAll wipes every slot once the user confirmed it.
func (s *Service) DeleteAll(ctx context.Context, confirmed bool) (*DeleteAllResult, error) {
	if !confirmed {
		return nil, ErrConfirmationRequired
	}
	n, err := s.slots.DeleteAll(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Warn("all slots deleted", zap.Int("deleted", n))
	s.release(ctx, func(ctx context.Context) (int64, error) { return s.ledger.ReleaseAll(ctx) })
	s.forceRefresh(ctx)
	return &DeleteAllResult{Deleted: n, Message: fmt.Sprintf("Deleted %d slots.", n)}, nil
}

// complete records the outcome even when the request was cancelled, so the
// key does not stay claimed.
func (s *Service) complete(ctx context.Context, key string, status repository.CreationStatus, slotID *int64) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Complete(context.WithoutCancel(ctx), key, status, slotID); err != nil {
		s.log.Error("creation ledger update failed", zap.String("key", key), zap.Error(err))
	}
}

// release lets deleted hours be created again by a replayed batch.
func (s *Service) release(ctx context.Context, fn func(context.Context) (int64, error)) {
	if s.ledger == nil {
		return
	}
	n, err := fn(context.WithoutCancel(ctx))
	if err != nil {
		s.log.Error("creation ledger release failed", zap.Error(err))
		return
	}
	s.log.Debug("creation keys released", zap.Int64("keys", n))
}

// forceRefresh re-reads the slot list after a mutation. A failed refresh
// leaves the views stale; the push channel will trigger another one.
func (s *Service) forceRefresh(ctx context.Context) {
	if s.refresh == nil {
		return
	}
	if _, err := s.refresh.Refresh(ctx); err != nil {
		s.log.Warn("refresh after admin action failed", zap.Error(err))
	}
}
