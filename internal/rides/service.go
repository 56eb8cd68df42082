package rides

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/goride/dispatch/internal/geoindex"
	"github.com/goride/dispatch/internal/models"
	"github.com/goride/dispatch/pkg/logger"
)

var ridesCreated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dispatch_rides_created_total",
		Help: "Rides created by initial matching outcome",
	},
	[]string{"outcome"},
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	InsertRide(ctx context.Context, ride *models.Ride) error
	GetRide(ctx context.Context, id int64) (*models.Ride, error)
	UpdateRideStatus(ctx context.Context, id int64, status models.RideStatus) error
	GetLatestAssignmentByRide(ctx context.Context, rideID int64) (*models.Assignment, error)
	GetOrInsertIdempotency(ctx context.Context, key string, produce func(ctx context.Context) ([]byte, error)) ([]byte, bool, error)
}

// Matcher finds the nearest eligible driver for a pickup point.
type Matcher interface {
	FindNearest(ctx context.Context, pickup geoindex.Location, maxKm float64, now time.Time) (int64, bool, error)
}

// Offerer creates the assignment offer for a matched driver.
type Offerer interface {
	Offer(ctx context.Context, rideID, driverID int64, now time.Time) (int64, error)
}

// Orchestrator drives ride creation: persist the ride, match a driver, offer
// the ride, and fall back to NoDriver when matching or offering fails.
type Orchestrator struct {
	store         Store
	matcher       Matcher
	offers        Offerer
	matchRadiusKm float64
}

// NewOrchestrator creates a ride orchestrator.
func NewOrchestrator(store Store, matcher Matcher, offers Offerer, matchRadiusKm float64) *Orchestrator {
	return &Orchestrator{
		store:         store,
		matcher:       matcher,
		offers:        offers,
		matchRadiusKm: matchRadiusKm,
	}
}

// CreateRide creates a ride and attempts to match it. With an idempotency
// key, the first response is stored and replayed unchanged on repeats, even
// for a different payload under the same key.
func (o *Orchestrator) CreateRide(ctx context.Context, req *models.CreateRideRequest, idempotencyKey string) (*models.RideOut, error) {
	if idempotencyKey == "" {
		return o.createRide(ctx, req)
	}

	data, replayed, err := o.store.GetOrInsertIdempotency(ctx, idempotencyKey, func(ctx context.Context) ([]byte, error) {
		out, err := o.createRide(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		logger.InfoContext(ctx, "ride create replayed from idempotency key",
			zap.String("idempotency_key", idempotencyKey))
	}

	out := &models.RideOut{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decode cached ride response: %w", err)
	}

	return out, nil
}

func (o *Orchestrator) createRide(ctx context.Context, req *models.CreateRideRequest) (*models.RideOut, error) {
	now := time.Now()

	ride := &models.Ride{
		RiderID:       req.RiderID,
		Pickup:        *req.Pickup,
		Destination:   *req.Destination,
		Tier:          req.Tier,
		PaymentMethod: req.PaymentMethod,
		Status:        models.RideStatusSearching,
	}

	if err := o.store.InsertRide(ctx, ride); err != nil {
		return nil, err
	}

	pickup := geoindex.Location{Lat: ride.Pickup.Lat, Lon: ride.Pickup.Lon}
	driverID, found, err := o.matcher.FindNearest(ctx, pickup, o.matchRadiusKm, now)
	if err != nil {
		logger.ErrorContext(ctx, "matching failed, ride falls back to no_driver",
			zap.Int64("ride_id", ride.ID), zap.Error(err))
		found = false
	}

	if !found {
		return o.noDriver(ctx, ride)
	}

	if _, err := o.offers.Offer(ctx, ride.ID, driverID, now); err != nil {
		// The failed offer left no partial state; the ride is abandoned
		// rather than retried.
		logger.ErrorContext(ctx, "offer failed, ride falls back to no_driver",
			zap.Int64("ride_id", ride.ID), zap.Int64("driver_id", driverID), zap.Error(err))
		return o.noDriver(ctx, ride)
	}

	ride.Status = models.RideStatusAssigned
	ridesCreated.WithLabelValues(string(models.RideStatusAssigned)).Inc()

	return rideOut(ride), nil
}

func (o *Orchestrator) noDriver(ctx context.Context, ride *models.Ride) (*models.RideOut, error) {
	if err := o.store.UpdateRideStatus(ctx, ride.ID, models.RideStatusNoDriver); err != nil {
		return nil, err
	}
	ride.Status = models.RideStatusNoDriver
	ridesCreated.WithLabelValues(string(models.RideStatusNoDriver)).Inc()
	return rideOut(ride), nil
}

// GetRide returns a ride with its most recent assignment, if any.
func (o *Orchestrator) GetRide(ctx context.Context, rideID int64) (*models.RideDetail, error) {
	ride, err := o.store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}

	detail := &models.RideDetail{
		ID:          ride.ID,
		Status:      ride.Status,
		Pickup:      ride.Pickup,
		Destination: ride.Destination,
	}

	a, err := o.store.GetLatestAssignmentByRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if a != nil {
		detail.Assignment = &models.AssignmentOut{
			ID:       a.ID,
			DriverID: a.DriverID,
			Status:   a.Status,
		}
	}

	return detail, nil
}

func rideOut(ride *models.Ride) *models.RideOut {
	return &models.RideOut{
		ID:          ride.ID,
		Status:      ride.Status,
		Pickup:      ride.Pickup,
		Destination: ride.Destination,
	}
}
