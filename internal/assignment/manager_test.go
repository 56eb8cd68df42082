package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/goride/dispatch/internal/models"
	"github.com/goride/dispatch/pkg/common"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateOffer(ctx context.Context, rideID, driverID int64, now time.Time) (int64, error) {
	args := m.Called(ctx, rideID, driverID, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) AcceptAssignment(ctx context.Context, assignmentID, driverID int64, now time.Time) (*models.Trip, error) {
	args := m.Called(ctx, assignmentID, driverID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *mockStore) DeclineAssignment(ctx context.Context, assignmentID, driverID int64) error {
	args := m.Called(ctx, assignmentID, driverID)
	return args.Error(0)
}

func (m *mockStore) ExpireAssignment(ctx context.Context, assignmentID int64) (bool, error) {
	args := m.Called(ctx, assignmentID)
	return args.Bool(0), args.Error(1)
}

func TestOfferArmsTimerThatExpiresTheAssignment(t *testing.T) {
	store := new(mockStore)
	now := time.Now()

	store.On("CreateOffer", mock.Anything, int64(1), int64(7), now).Return(int64(42), nil)
	store.On("ExpireAssignment", mock.Anything, int64(42)).Return(true, nil)

	m := New(store, 20*time.Millisecond)
	assignmentID, err := m.Offer(context.Background(), 1, 7, now)

	assert.NoError(t, err)
	assert.Equal(t, int64(42), assignmentID)
	assert.Equal(t, 1, m.PendingTimers())

	assert.Eventually(t, func() bool {
		return m.PendingTimers() == 0
	}, time.Second, 5*time.Millisecond)
	store.AssertCalled(t, "ExpireAssignment", mock.Anything, int64(42))
}

func TestAcceptWinsRaceAndDropsTimer(t *testing.T) {
	store := new(mockStore)
	now := time.Now()
	trip := &models.Trip{ID: 9, RideID: 1, DriverID: 7, Status: models.TripStatusOngoing}

	store.On("CreateOffer", mock.Anything, int64(1), int64(7), now).Return(int64(42), nil)
	store.On("AcceptAssignment", mock.Anything, int64(42), int64(7), now).Return(trip, nil)

	m := New(store, time.Hour)
	_, err := m.Offer(context.Background(), 1, 7, now)
	assert.NoError(t, err)

	got, err := m.Accept(context.Background(), 7, 42, now)

	assert.NoError(t, err)
	assert.Equal(t, trip, got)
	assert.Equal(t, 0, m.PendingTimers())
	store.AssertNotCalled(t, "ExpireAssignment", mock.Anything, int64(42))
}

func TestAcceptAfterExpiryReturnsCannotAccept(t *testing.T) {
	store := new(mockStore)
	now := time.Now()

	store.On("AcceptAssignment", mock.Anything, int64(42), int64(7), now).
		Return(nil, common.ErrCannotAccept)

	m := New(store, time.Hour)
	_, err := m.Accept(context.Background(), 7, 42, now)

	assert.ErrorIs(t, err, common.ErrCannotAccept)
}

func TestExpireIsIdempotentOnTerminalAssignment(t *testing.T) {
	store := new(mockStore)

	store.On("ExpireAssignment", mock.Anything, int64(42)).Return(false, nil)

	m := New(store, time.Hour)
	expired, err := m.Expire(context.Background(), 42)

	assert.NoError(t, err)
	assert.False(t, expired)
}

func TestDeclineFreesRideAndDropsTimer(t *testing.T) {
	store := new(mockStore)
	now := time.Now()

	store.On("CreateOffer", mock.Anything, int64(1), int64(7), now).Return(int64(42), nil)
	store.On("DeclineAssignment", mock.Anything, int64(42), int64(7)).Return(nil)

	m := New(store, time.Hour)
	_, err := m.Offer(context.Background(), 1, 7, now)
	assert.NoError(t, err)

	err = m.Decline(context.Background(), 7, 42)

	assert.NoError(t, err)
	assert.Equal(t, 0, m.PendingTimers())
}

func TestDeclineByNonOwnerKeepsTimer(t *testing.T) {
	store := new(mockStore)
	now := time.Now()

	store.On("CreateOffer", mock.Anything, int64(1), int64(7), now).Return(int64(42), nil)
	store.On("DeclineAssignment", mock.Anything, int64(42), int64(8)).
		Return(common.ErrCannotAccept)

	m := New(store, time.Hour)
	_, err := m.Offer(context.Background(), 1, 7, now)
	assert.NoError(t, err)

	err = m.Decline(context.Background(), 8, 42)

	assert.ErrorIs(t, err, common.ErrCannotAccept)
	assert.Equal(t, 1, m.PendingTimers())

	m.Shutdown()
	assert.Equal(t, 0, m.PendingTimers())
}
