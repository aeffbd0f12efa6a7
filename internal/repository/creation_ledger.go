package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrKeyNotFound = errors.New("creation key not found")

type CreationStatus string

const (
	CreationClaimed CreationStatus = "claimed"
	CreationCreated CreationStatus = "created"
	CreationExists  CreationStatus = "exists"
	CreationFailed  CreationStatus = "failed"
)

// CreationRecord tracks one slot-create request by its idempotency key.
type CreationRecord struct {
	Key       string         `gorm:"column:idem_key;primaryKey;size:255"`
	SlotID    *int64         `gorm:"column:slot_id"`
	Status    CreationStatus `gorm:"column:status;size:16;not null;index"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

func (CreationRecord) TableName() string { return "slot_creation_keys" }

// DefaultClaimTimeout is how long a claim may stay unresolved before the key
// can be claimed again.
const DefaultClaimTimeout = 2 * time.Minute

// CreationLedger remembers which slot-create keys were already sent so a
// replayed batch does not create duplicates.
type CreationLedger struct {
	db           *gorm.DB
	claimTimeout time.Duration
	now          func() time.Time
}

type LedgerOption func(*CreationLedger)

// WithClaimTimeout sets how long an unresolved claim blocks its key.
func WithClaimTimeout(d time.Duration) LedgerOption {
	return func(r *CreationLedger) {
		if d > 0 {
			r.claimTimeout = d
		}
	}
}

func NewCreationLedger(db *gorm.DB, opts ...LedgerOption) *CreationLedger {
	r := &CreationLedger{db: db, claimTimeout: DefaultClaimTimeout, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *CreationLedger) Migrate() error {
	return r.db.AutoMigrate(&CreationRecord{})
}

// Claim reserves key. It returns false when the key is already claimed or
// done. A key whose earlier attempt failed, or whose claim was never resolved
// within the claim timeout, can be claimed again.
func (r *CreationLedger) Claim(ctx context.Context, key string) (bool, error) {
	rec := CreationRecord{Key: key, Status: CreationClaimed}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	now := r.now().UTC()
	res = r.db.WithContext(ctx).Model(&CreationRecord{}).
		Where("idem_key = ?", key).
		Where(r.db.Where("status = ?", CreationFailed).
			Or("status = ? AND updated_at < ?", CreationClaimed, now.Add(-r.claimTimeout))).
		Updates(map[string]any{"status": CreationClaimed, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Complete records the outcome for a claimed key.
func (r *CreationLedger) Complete(ctx context.Context, key string, status CreationStatus, slotID *int64) error {
	updates := map[string]any{"status": status, "updated_at": r.now().UTC()}
	if slotID != nil {
		updates["slot_id"] = *slotID
	}
	res := r.db.WithContext(ctx).Model(&CreationRecord{}).
		Where("idem_key = ?", key).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (r *CreationLedger) Get(ctx context.Context, key string) (*CreationRecord, error) {
	var rec CreationRecord
	err := r.db.WithContext(ctx).Where("idem_key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ReleaseSlot forgets the keys that created slot id, so a later batch for the
// same hour creates it again.
func (r *CreationLedger) ReleaseSlot(ctx context.Context, id int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("slot_id = ?", id).
		Delete(&CreationRecord{})
	return res.RowsAffected, res.Error
}

// ReleaseAll forgets every resolved key. Claims still in flight are kept.
func (r *CreationLedger) ReleaseAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status <> ?", CreationClaimed).
		Delete(&CreationRecord{})
	return res.RowsAffected, res.Error
}

// Prune deletes records last touched before cutoff.
func (r *CreationLedger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("updated_at < ?", cutoff.UTC()).
		Delete(&CreationRecord{})
	return res.RowsAffected, res.Error
}
