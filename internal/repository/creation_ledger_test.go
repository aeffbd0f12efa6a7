package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glazestudio/internal/database"
)

func newLedger(t *testing.T) *CreationLedger {
	t.Helper()
	db, err := database.Connect(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	l := NewCreationLedger(db)
	require.NoError(t, l.Migrate())
	return l
}

func TestCreationLedger_ClaimOnce(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	ok, err := l.Claim(ctx, "batch/2024-06-01/10:00")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Claim(ctx, "batch/2024-06-01/10:00")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Claim(ctx, "batch/2024-06-01/11:00")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreationLedger_FailedKeyCanBeReclaimed(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	key := "batch/2024-06-01/10:00"

	_, err := l.Claim(ctx, key)
	require.NoError(t, err)
	require.NoError(t, l.Complete(ctx, key, CreationFailed, nil))

	ok, err := l.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	id := int64(7)
	require.NoError(t, l.Complete(ctx, key, CreationCreated, &id))
	ok, err = l.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := l.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, CreationCreated, rec.Status)
	require.NotNil(t, rec.SlotID)
	assert.Equal(t, int64(7), *rec.SlotID)
}

func TestCreationLedger_CompleteUnknownKey(t *testing.T) {
	l := newLedger(t)
	err := l.Complete(context.Background(), "nope", CreationCreated, nil)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = l.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestCreationLedger_Prune(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	_, err := l.Claim(ctx, "old")
	require.NoError(t, err)

	n, err := l.Prune(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = l.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCreationLedger_AbandonedClaimExpires(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	key := "batch/2024-06-01/10:00"

	ok, err := l.Claim(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "fresh claim still blocks")

	l.now = func() time.Time { return time.Now().Add(DefaultClaimTimeout + time.Minute) }
	ok, err = l.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreationLedger_Release(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	for i, key := range []string{"b/2024-06-01/10:00", "b/2024-06-01/11:00"} {
		_, err := l.Claim(ctx, key)
		require.NoError(t, err)
		id := int64(i + 1)
		require.NoError(t, l.Complete(ctx, key, CreationCreated, &id))
	}
	_, err := l.Claim(ctx, "b/2024-06-01/12:00")
	require.NoError(t, err)

	n, err := l.ReleaseSlot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	ok, err := l.Claim(ctx, "b/2024-06-01/10:00")
	require.NoError(t, err)
	assert.True(t, ok)

	// 10:00 is claimed again and in flight, so only 11:00 goes
	n, err = l.ReleaseAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = l.Get(ctx, "b/2024-06-01/12:00")
	assert.NoError(t, err)
}
