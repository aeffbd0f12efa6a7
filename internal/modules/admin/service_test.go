package admin

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"glazestudio/internal/database"
	"glazestudio/internal/domain"
	"glazestudio/internal/repository"
	"glazestudio/internal/snapshot"
	"glazestudio/internal/slotapi"
)

type MockSlotWriter struct {
	mock.Mock
}

func (m *MockSlotWriter) Create(ctx context.Context, date, hhmm, key string) (*domain.Slot, error) {
	args := m.Called(ctx, date, hhmm, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Slot), args.Error(1)
}

func (m *MockSlotWriter) DeleteOne(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSlotWriter) DeleteAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Claim(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) Complete(ctx context.Context, key string, status repository.CreationStatus, slotID *int64) error {
	return m.Called(ctx, key, status, slotID).Error(0)
}

func (m *MockLedger) ReleaseSlot(ctx context.Context, id int64) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) ReleaseAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) Refresh(ctx context.Context) (snapshot.Result, error) {
	args := m.Called(ctx)
	return args.Get(0).(snapshot.Result), args.Error(1)
}

func conflictErr(detail string) error {
	return errors.Mark(&slotapi.APIError{Method: "POST", Path: "/slots/", Status: http.StatusBadRequest, Detail: detail}, slotapi.ErrConflict)
}

func networkErr() error {
	return errors.Mark(errors.New("connection refused"), slotapi.ErrNetwork)
}

func TestCreateRange_HourlySlots(t *testing.T) {
	slots := new(MockSlotWriter)
	slots.On("Create", mock.Anything, "2024-06-01", "10:00", "b1/2024-06-01/10:00").
		Return(&domain.Slot{ID: 1, Date: "2024-06-01", Time: "10:00"}, nil).Once()
	slots.On("Create", mock.Anything, "2024-06-01", "11:00", "b1/2024-06-01/11:00").
		Return(&domain.Slot{ID: 2, Date: "2024-06-01", Time: "11:00"}, nil).Once()
	refresh := new(MockRefresher)
	refresh.On("Refresh", mock.Anything).Return(snapshot.Result{Changed: true}, nil).Once()

	svc := NewService(slots, nil, refresh, nil)
	res, err := svc.CreateRange(context.Background(), CreateRangeRequest{Date: "2024-06-01", StartHour: 10, EndHour: 12, BatchKey: "b1"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Created)
	assert.Equal(t, "Created 2 slots for 2024-06-01.", res.Message)
	require.Len(t, res.Slots, 2)
	assert.Equal(t, "10:00", res.Slots[0].Time)
	assert.Equal(t, "11:00", res.Slots[1].Time)
	slots.AssertExpectations(t)
	refresh.AssertExpectations(t)
}

func TestCreateRange_InvalidInputs(t *testing.T) {
	slots := new(MockSlotWriter)
	svc := NewService(slots, nil, nil, nil)

	cases := []CreateRangeRequest{
		{Date: "", StartHour: 10, EndHour: 12},
		{Date: "2024-06-01", StartHour: 12, EndHour: 12},
		{Date: "2024-06-01", StartHour: 14, EndHour: 12},
		{Date: "2024-06-01", StartHour: -1, EndHour: 12},
		{Date: "2024-06-01", StartHour: 10, EndHour: 25},
		{Date: "01/06/2024", StartHour: 10, EndHour: 12},
	}
	for _, req := range cases {
		_, err := svc.CreateRange(context.Background(), req)
		assert.True(t, errors.Is(err, ErrInvalidRange), "%+v", req)
	}
	slots.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateRange_ReplayedBatchSkipsClaimedKeys(t *testing.T) {
	slots := new(MockSlotWriter)
	slots.On("Create", mock.Anything, "2024-06-01", "11:00", "b1/2024-06-01/11:00").
		Return(&domain.Slot{ID: 2, Date: "2024-06-01", Time: "11:00"}, nil).Once()

	ledger := new(MockLedger)
	ledger.On("Claim", mock.Anything, "b1/2024-06-01/10:00").Return(false, nil).Once()
	ledger.On("Claim", mock.Anything, "b1/2024-06-01/11:00").Return(true, nil).Once()
	id := int64(2)
	ledger.On("Complete", mock.Anything, "b1/2024-06-01/11:00", repository.CreationCreated, &id).Return(nil).Once()

	svc := NewService(slots, ledger, nil, nil)
	res, err := svc.CreateRange(context.Background(), CreateRangeRequest{Date: "2024-06-01", StartHour: 10, EndHour: 12, BatchKey: "b1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Skipped)
	slots.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestCreateRange_ExistingAndFailedHours(t *testing.T) {
	slots := new(MockSlotWriter)
	slots.On("Create", mock.Anything, "2024-06-01", "10:00", mock.Anything).Return(nil, conflictErr("Slot already exists")).Once()
	slots.On("Create", mock.Anything, "2024-06-01", "11:00", mock.Anything).
		Return(nil, networkErr()).Once()

	ledger := new(MockLedger)
	ledger.On("Claim", mock.Anything, mock.Anything).Return(true, nil)
	ledger.On("Complete", mock.Anything, mock.Anything, repository.CreationExists, (*int64)(nil)).Return(nil).Once()
	ledger.On("Complete", mock.Anything, mock.Anything, repository.CreationFailed, (*int64)(nil)).Return(nil).Once()

	refresh := new(MockRefresher)
	refresh.On("Refresh", mock.Anything).Return(snapshot.Result{}, errors.New("down")).Once()

	svc := NewService(slots, ledger, refresh, nil)
	res, err := svc.CreateRange(context.Background(), CreateRangeRequest{Date: "2024-06-01", StartHour: 10, EndHour: 12})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "Created 0 slots for 2024-06-01. 1 failed: Network Error.", res.Message)
	ledger.AssertExpectations(t)
}

func TestDeleteSlot(t *testing.T) {
	slots := new(MockSlotWriter)
	slots.On("DeleteOne", mock.Anything, int64(7)).Return(nil).Once()
	slots.On("DeleteOne", mock.Anything, int64(8)).Return(conflictErr("Slot not found")).Once()
	refresh := new(MockRefresher)
	refresh.On("Refresh", mock.Anything).Return(snapshot.Result{Changed: true}, nil).Once()

	svc := NewService(slots, nil, refresh, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.DeleteSlot(ctx, 7, false), ErrConfirmationRequired)
	assert.NoError(t, svc.DeleteSlot(ctx, 7, true))

	err := svc.DeleteSlot(ctx, 8, true)
	assert.True(t, errors.Is(err, slotapi.ErrConflict))
	assert.Equal(t, "Slot not found", slotapi.UserMessage(err))

	slots.AssertExpectations(t)
	refresh.AssertExpectations(t)
}

func TestDeleteAll(t *testing.T) {
	slots := new(MockSlotWriter)
	slots.On("DeleteAll", mock.Anything).Return(5, nil).Once()
	refresh := new(MockRefresher)
	refresh.On("Refresh", mock.Anything).Return(snapshot.Result{Changed: true}, nil).Once()

	svc := NewService(slots, nil, refresh, nil)

	_, err := svc.DeleteAll(context.Background(), false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)

	res, err := svc.DeleteAll(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Deleted)
	assert.Equal(t, "Deleted 5 slots.", res.Message)
	slots.AssertExpectations(t)
}

func TestCreateRange_CancelledCreateCanBeRetried(t *testing.T) {
	db, err := database.Connect(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
	require.NoError(t, err)
	ledger := repository.NewCreationLedger(db)
	require.NoError(t, ledger.Migrate())

	ctx, cancel := context.WithCancel(context.Background())
	slots := new(MockSlotWriter)
	slots.On("Create", mock.Anything, "2024-06-01", "10:00", "b1/2024-06-01/10:00").
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, errors.Mark(context.Canceled, slotapi.ErrNetwork)).Once()
	slots.On("Create", mock.Anything, "2024-06-01", "10:00", "b1/2024-06-01/10:00").
		Return(&domain.Slot{ID: 4, Date: "2024-06-01", Time: "10:00"}, nil).Once()

	svc := NewService(slots, ledger, nil, nil)
	req := CreateRangeRequest{Date: "2024-06-01", StartHour: 10, EndHour: 11, BatchKey: "b1"}

	res, err := svc.CreateRange(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	rec, err := ledger.Get(context.Background(), "b1/2024-06-01/10:00")
	require.NoError(t, err)
	assert.Equal(t, repository.CreationFailed, rec.Status)

	res, err = svc.CreateRange(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Skipped)
	slots.AssertExpectations(t)
}

func TestDelete_ReleasesCreationKeys(t *testing.T) {
	slots := new(MockSlotWriter)
	slots.On("DeleteOne", mock.Anything, int64(7)).Return(nil).Once()
	slots.On("DeleteAll", mock.Anything).Return(3, nil).Once()

	ledger := new(MockLedger)
	ledger.On("ReleaseSlot", mock.Anything, int64(7)).Return(int64(1), nil).Once()
	ledger.On("ReleaseAll", mock.Anything).Return(int64(2), nil).Once()

	svc := NewService(slots, ledger, nil, nil)
	require.NoError(t, svc.DeleteSlot(context.Background(), 7, true))
	_, err := svc.DeleteAll(context.Background(), true)
	require.NoError(t, err)

	ledger.AssertExpectations(t)
}
