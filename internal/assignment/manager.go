package assignment

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/goride/dispatch/internal/models"
	"github.com/goride/dispatch/pkg/logger"
)

var offerOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dispatch_assignment_outcomes_total",
		Help: "Assignment offers by final outcome",
	},
	[]string{"outcome"},
)

// Store is the persistence surface the manager drives the assignment state
// machine through. Every method is transactional and serializes on the
// assignment row.
type Store interface {
	CreateOffer(ctx context.Context, rideID, driverID int64, now time.Time) (int64, error)
	AcceptAssignment(ctx context.Context, assignmentID, driverID int64, now time.Time) (*models.Trip, error)
	DeclineAssignment(ctx context.Context, assignmentID, driverID int64) error
	ExpireAssignment(ctx context.Context, assignmentID int64) (bool, error)
}

// Manager owns the offer lifecycle: it creates offers, arms one expiry timer
// per offer, and resolves the accept/decline/expire race through the store's
// row-locked transitions. Timers live in a registry keyed by assignment ID
// and are dropped as soon as a terminal state is observed, whichever side
// observed it first.
type Manager struct {
	store Store
	ttl   time.Duration

	mu     sync.Mutex
	timers map[int64]*time.Timer
}

// New creates an assignment manager with the given offer TTL.
func New(store Store, ttl time.Duration) *Manager {
	return &Manager{
		store:  store,
		ttl:    ttl,
		timers: make(map[int64]*time.Timer),
	}
}

// Offer creates an assignment in Offered state for the ride and driver, then
// arms its expiry timer. The timer is armed only after the creating
// transaction commits, so an expiry can never observe an uncommitted offer.
func (m *Manager) Offer(ctx context.Context, rideID, driverID int64, now time.Time) (int64, error) {
	assignmentID, err := m.store.CreateOffer(ctx, rideID, driverID, now)
	if err != nil {
		return 0, err
	}

	m.armTimer(assignmentID)

	logger.InfoContext(ctx, "assignment offered",
		zap.Int64("assignment_id", assignmentID),
		zap.Int64("ride_id", rideID),
		zap.Int64("driver_id", driverID))
	offerOutcomes.WithLabelValues("offered").Inc()

	return assignmentID, nil
}

// Accept resolves the offer in the driver's favor and opens the trip. The
// race with the expiry timer is decided by the store: whichever transition
// commits first wins, the loser becomes a no-op.
func (m *Manager) Accept(ctx context.Context, driverID, assignmentID int64, now time.Time) (*models.Trip, error) {
	trip, err := m.store.AcceptAssignment(ctx, assignmentID, driverID, now)
	if err != nil {
		return nil, err
	}

	m.dropTimer(assignmentID)

	logger.InfoContext(ctx, "assignment accepted",
		zap.Int64("assignment_id", assignmentID),
		zap.Int64("driver_id", driverID),
		zap.Int64("trip_id", trip.ID))
	offerOutcomes.WithLabelValues("accepted").Inc()

	return trip, nil
}

// Decline resolves the offer against the driver and frees the ride.
func (m *Manager) Decline(ctx context.Context, driverID, assignmentID int64) error {
	if err := m.store.DeclineAssignment(ctx, assignmentID, driverID); err != nil {
		return err
	}

	m.dropTimer(assignmentID)

	logger.InfoContext(ctx, "assignment declined",
		zap.Int64("assignment_id", assignmentID),
		zap.Int64("driver_id", driverID))
	offerOutcomes.WithLabelValues("declined").Inc()

	return nil
}

// Expire transitions a still-offered assignment to Expired and frees the
// ride. Idempotent: a terminal assignment is left alone.
func (m *Manager) Expire(ctx context.Context, assignmentID int64) (bool, error) {
	expired, err := m.store.ExpireAssignment(ctx, assignmentID)
	if err != nil {
		return false, err
	}

	m.dropTimer(assignmentID)

	if expired {
		logger.InfoContext(ctx, "assignment expired", zap.Int64("assignment_id", assignmentID))
		offerOutcomes.WithLabelValues("expired").Inc()
	}

	return expired, nil
}

// PendingTimers reports how many expiry timers are currently registered.
func (m *Manager) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Shutdown stops all registered timers. In-flight expiries already past the
// timer are unaffected; their store transition is idempotent.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) armTimer(assignmentID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timers[assignmentID] = time.AfterFunc(m.ttl, func() {
		// The timer outlives the request that created the offer; it runs
		// against a fresh background context.
		if _, err := m.Expire(context.Background(), assignmentID); err != nil {
			logger.Error("assignment expiry failed",
				zap.Int64("assignment_id", assignmentID), zap.Error(err))
		}
	})
}

func (m *Manager) dropTimer(assignmentID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[assignmentID]; ok {
		t.Stop()
		delete(m.timers, assignmentID)
	}
}
