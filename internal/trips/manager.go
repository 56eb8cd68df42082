package trips

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/goride/dispatch/internal/geoindex"
	"github.com/goride/dispatch/internal/models"
	"github.com/goride/dispatch/pkg/geo"
	"github.com/goride/dispatch/pkg/logger"
)

const (
	baseFare      = 2.0
	perKmRate     = 1.5
	perMinuteRate = 0.2
)

// Store is the persistence surface the trip manager needs.
type Store interface {
	GetTrip(ctx context.Context, id int64) (*models.Trip, error)
	CompleteTrip(ctx context.Context, tripID int64, endAt time.Time, distanceKm float64, durationSec int, fare float64) (*models.Trip, *models.Payment, error)
}

// GeoIndex supplies the driver's cached position as the distance reference
// at trip close.
type GeoIndex interface {
	Get(ctx context.Context, driverID int64, now time.Time) (*geoindex.Position, error)
}

// Settler receives the pending payment created at trip close.
type Settler interface {
	Enqueue(paymentID int64)
}

// Manager closes trips: it computes the traveled distance, duration and fare,
// persists the completed trip with its pending payment, and hands the payment
// off for asynchronous settlement.
type Manager struct {
	store   Store
	index   GeoIndex
	settler Settler
}

// New creates a trip manager.
func New(store Store, index GeoIndex, settler Settler) *Manager {
	return &Manager{store: store, index: index, settler: settler}
}

// Fare computes the fare for a trip of distanceKm and durationSec.
func Fare(distanceKm float64, durationSec int) float64 {
	return baseFare + distanceKm*perKmRate + (float64(durationSec)/60.0)*perMinuteRate
}

// Close completes an ongoing trip. When endLoc is given and the driver still
// has a fresh cached position, the distance is the Haversine from that cached
// position to endLoc; otherwise the trip's recorded distance is retained.
// The distance reference is the driver's current cached position rather than
// a persisted trip-start location, mirroring how positions are tracked.
// Returns common.ErrNotFound for an unknown trip and common.ErrIllegalState
// when the trip is not ongoing.
func (m *Manager) Close(ctx context.Context, tripID int64, endLoc *models.Location, now time.Time) (*models.Trip, *models.Payment, error) {
	trip, err := m.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, nil, err
	}

	distanceKm := trip.DistanceKm
	if endLoc != nil {
		pos, err := m.index.Get(ctx, trip.DriverID, now)
		if err != nil {
			logger.WarnContext(ctx, "no position reference for trip close",
				zap.Int64("trip_id", tripID), zap.Error(err))
		} else if pos != nil {
			distanceKm = geo.Haversine(pos.Lat, pos.Lon, endLoc.Lat, endLoc.Lon)
		}
	}

	durationSec := int(math.Floor(now.Sub(trip.StartAt).Seconds()))
	if durationSec < 0 {
		durationSec = 0
	}

	fare := Fare(distanceKm, durationSec)

	completed, payment, err := m.store.CompleteTrip(ctx, tripID, now, distanceKm, durationSec, fare)
	if err != nil {
		return nil, nil, err
	}

	m.settler.Enqueue(payment.ID)

	logger.InfoContext(ctx, "trip completed",
		zap.Int64("trip_id", tripID),
		zap.Float64("distance_km", distanceKm),
		zap.Int("duration_sec", durationSec),
		zap.Float64("fare", fare))

	return completed, payment, nil
}
