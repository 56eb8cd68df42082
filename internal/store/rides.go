package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/goride/dispatch/internal/models"
	"github.com/goride/dispatch/pkg/common"
)

// InsertRide creates a new ride in Searching state and returns it.
func (s *Store) InsertRide(ctx context.Context, ride *models.Ride) error {
	query := `
		INSERT INTO rides (rider_id, pickup_lat, pickup_lon, destination_lat, destination_lon, tier, payment_method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query,
		ride.RiderID,
		ride.Pickup.Lat,
		ride.Pickup.Lon,
		ride.Destination.Lat,
		ride.Destination.Lon,
		ride.Tier,
		ride.PaymentMethod,
		ride.Status,
	).Scan(&ride.ID, &ride.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert ride: %w", err)
	}

	return nil
}

// GetRide retrieves a ride by ID.
func (s *Store) GetRide(ctx context.Context, id int64) (*models.Ride, error) {
	query := `
		SELECT id, rider_id, pickup_lat, pickup_lon, destination_lat, destination_lon,
		       tier, payment_method, status, created_at
		FROM rides
		WHERE id = $1
	`

	ride := &models.Ride{}
	err := s.db.QueryRow(ctx, query, id).Scan(
		&ride.ID,
		&ride.RiderID,
		&ride.Pickup.Lat,
		&ride.Pickup.Lon,
		&ride.Destination.Lat,
		&ride.Destination.Lon,
		&ride.Tier,
		&ride.PaymentMethod,
		&ride.Status,
		&ride.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}

	return ride, nil
}

// UpdateRideStatus updates a ride's status.
func (s *Store) UpdateRideStatus(ctx context.Context, id int64, status models.RideStatus) error {
	tag, err := s.db.Exec(ctx, `UPDATE rides SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update ride status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

// GetLatestAssignmentByRide returns the most recent assignment for a ride,
// or nil when the ride has never been offered.
func (s *Store) GetLatestAssignmentByRide(ctx context.Context, rideID int64) (*models.Assignment, error) {
	query := `
		SELECT id, ride_id, driver_id, status, offered_at
		FROM assignments
		WHERE ride_id = $1
		ORDER BY id DESC
		LIMIT 1
	`

	a := &models.Assignment{}
	err := s.db.QueryRow(ctx, query, rideID).Scan(&a.ID, &a.RideID, &a.DriverID, &a.Status, &a.OfferedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get assignment for ride: %w", err)
	}

	return a, nil
}

// UpsertDriver registers a driver on first contact and marks it available.
func (s *Store) UpsertDriver(ctx context.Context, driverID int64) error {
	query := `
		INSERT INTO drivers (id, available) VALUES ($1, TRUE)
		ON CONFLICT (id) DO UPDATE SET available = TRUE
	`
	if _, err := s.db.Exec(ctx, query, driverID); err != nil {
		return fmt.Errorf("failed to upsert driver: %w", err)
	}
	return nil
}
