package store

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goride/dispatch/internal/models"
	"github.com/goride/dispatch/pkg/common"
)

// setupTestStore connects to the database named by DISPATCH_TEST_DATABASE_URL
// and resets the dispatch tables. Tests are skipped when the variable is not
// set, so the suite stays runnable without infrastructure.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	databaseURL := os.Getenv("DISPATCH_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DISPATCH_TEST_DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), databaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool)
	require.NoError(t, s.EnsureSchema(context.Background()))

	_, err = pool.Exec(context.Background(),
		`TRUNCATE payments, trips, assignments, rides, drivers, idempotency_keys RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	return s
}

func insertTestRide(t *testing.T, s *Store) *models.Ride {
	t.Helper()

	ride := &models.Ride{
		Pickup:      models.Location{Lat: 12.9716, Lon: 77.5946},
		Destination: models.Location{Lat: 12.9750, Lon: 77.5990},
		Status:      models.RideStatusSearching,
	}
	require.NoError(t, s.InsertRide(context.Background(), ride))
	return ride
}

func TestRideLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	ride := insertTestRide(t, s)
	require.NoError(t, s.UpsertDriver(ctx, 7))

	assignmentID, err := s.CreateOffer(ctx, ride.ID, 7, now)
	require.NoError(t, err)

	got, err := s.GetRide(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RideStatusAssigned, got.Status)

	a, err := s.GetLatestAssignmentByRide(ctx, ride.ID)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, assignmentID, a.ID)
	assert.Equal(t, models.AssignmentStatusOffered, a.Status)

	trip, err := s.AcceptAssignment(ctx, assignmentID, 7, now)
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusOngoing, trip.Status)
	assert.Equal(t, ride.ID, trip.RideID)

	// Expiry arriving after acceptance is a no-op.
	expired, err := s.ExpireAssignment(ctx, assignmentID)
	require.NoError(t, err)
	assert.False(t, expired)

	completed, payment, err := s.CompleteTrip(ctx, trip.ID, now.Add(90*time.Second), 1.2, 90, 4.1)
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusCompleted, completed.Status)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.InDelta(t, 4.1, payment.Amount, 1e-9)

	// Completing twice is illegal.
	_, _, err = s.CompleteTrip(ctx, trip.ID, now, 1.2, 90, 4.1)
	assert.ErrorIs(t, err, common.ErrIllegalState)

	updated, err := s.SettlePayment(ctx, payment.ID, models.PaymentStatusSuccess, []byte(`{"provider":"simulated"}`))
	require.NoError(t, err)
	assert.True(t, updated)

	// A second settlement attempt finds the payment already terminal.
	updated, err = s.SettlePayment(ctx, payment.ID, models.PaymentStatusSuccess, nil)
	require.NoError(t, err)
	assert.False(t, updated)

	receipt, err := s.GetReceipt(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, receipt.PaymentID)
	assert.Equal(t, models.PaymentStatusSuccess, receipt.Status)
	assert.Equal(t, int64(7), receipt.DriverID)
}

func TestExpireFreesRideForNewOffer(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	ride := insertTestRide(t, s)
	require.NoError(t, s.UpsertDriver(ctx, 7))

	assignmentID, err := s.CreateOffer(ctx, ride.ID, 7, now)
	require.NoError(t, err)

	expired, err := s.ExpireAssignment(ctx, assignmentID)
	require.NoError(t, err)
	assert.True(t, expired)

	got, err := s.GetRide(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RideStatusSearching, got.Status)

	// The ride is re-eligible: a second offer succeeds.
	_, err = s.CreateOffer(ctx, ride.ID, 7, now.Add(time.Second))
	require.NoError(t, err)
}

func TestAcceptByWrongDriver(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	ride := insertTestRide(t, s)
	require.NoError(t, s.UpsertDriver(ctx, 7))

	assignmentID, err := s.CreateOffer(ctx, ride.ID, 7, now)
	require.NoError(t, err)

	_, err = s.AcceptAssignment(ctx, assignmentID, 8, now)
	assert.ErrorIs(t, err, common.ErrCannotAccept)

	a, err := s.GetAssignment(ctx, assignmentID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusOffered, a.Status)
}

func TestDeclineRequiresOwner(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	ride := insertTestRide(t, s)
	require.NoError(t, s.UpsertDriver(ctx, 7))

	assignmentID, err := s.CreateOffer(ctx, ride.ID, 7, now)
	require.NoError(t, err)

	err = s.DeclineAssignment(ctx, assignmentID, 8)
	assert.ErrorIs(t, err, common.ErrCannotAccept)

	require.NoError(t, s.DeclineAssignment(ctx, assignmentID, 7))

	got, err := s.GetRide(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RideStatusSearching, got.Status)
}

// TestIdempotencyKeyConcurrentCreates hammers one key from more goroutines
// than the pool has connections. produce itself needs a connection, so the
// store must not hold one while it runs; otherwise this wedges.
func TestIdempotencyKeyConcurrentCreates(t *testing.T) {
	databaseURL := os.Getenv("DISPATCH_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DISPATCH_TEST_DATABASE_URL not set")
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	require.NoError(t, err)
	poolCfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool)
	require.NoError(t, s.EnsureSchema(context.Background()))
	_, err = pool.Exec(context.Background(),
		`TRUNCATE payments, trips, assignments, rides, drivers, idempotency_keys RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	const workers = 8
	var calls atomic.Int64
	produce := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		ride := &models.Ride{
			Pickup:      models.Location{Lat: 12.9716, Lon: 77.5946},
			Destination: models.Location{Lat: 12.9750, Lon: 77.5990},
			Status:      models.RideStatusSearching,
		}
		if err := s.InsertRide(ctx, ride); err != nil {
			return nil, err
		}
		return []byte(`{"id":1,"status":"searching"}`), nil
	}

	responses := make([][]byte, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i], _, errs[i] = s.GetOrInsertIdempotency(context.Background(), "key-race", produce)
		}(i)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("concurrent keyed creates did not finish")
	}

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, responses[0], responses[i])
	}
	assert.Equal(t, int64(1), calls.Load())

	var rideCount int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM rides`).Scan(&rideCount))
	assert.Equal(t, 1, rideCount)
}

func TestIdempotencyKeyReplaysFirstResponse(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	calls := 0
	produce := func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte(`{"id":1,"status":"assigned"}`), nil
	}

	first, replayed, err := s.GetOrInsertIdempotency(ctx, "key-1", produce)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := s.GetOrInsertIdempotency(ctx, "key-1", produce)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}
