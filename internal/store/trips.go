package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/goride/dispatch/internal/models"
	"github.com/goride/dispatch/pkg/common"
)

// GetTrip retrieves a trip by ID.
func (s *Store) GetTrip(ctx context.Context, id int64) (*models.Trip, error) {
	query := `
		SELECT id, ride_id, driver_id, start_at, end_at, distance_km, duration_sec, fare, status
		FROM trips
		WHERE id = $1
	`

	t := &models.Trip{}
	err := s.db.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.RideID, &t.DriverID, &t.StartAt, &t.EndAt,
		&t.DistanceKm, &t.DurationSec, &t.Fare, &t.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}

	return t, nil
}

// CompleteTrip closes an ongoing trip with its computed fields and creates the
// pending payment for it, in one transaction. Returns common.ErrNotFound when
// the trip does not exist and common.ErrIllegalState when it is not ongoing.
func (s *Store) CompleteTrip(ctx context.Context, tripID int64, endAt time.Time, distanceKm float64, durationSec int, fare float64) (*models.Trip, *models.Payment, error) {
	trip := &models.Trip{}
	payment := &models.Payment{}

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT id, ride_id, driver_id, start_at, distance_km, status
			FROM trips
			WHERE id = $1
			FOR UPDATE
		`, tripID).Scan(&trip.ID, &trip.RideID, &trip.DriverID, &trip.StartAt, &trip.DistanceKm, &trip.Status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.ErrNotFound
			}
			return fmt.Errorf("failed to lock trip: %w", err)
		}

		if trip.Status != models.TripStatusOngoing {
			return common.ErrIllegalState
		}

		end := endAt.UTC()
		trip.EndAt = &end
		trip.DistanceKm = distanceKm
		trip.DurationSec = durationSec
		trip.Fare = fare
		trip.Status = models.TripStatusCompleted

		if _, err := tx.Exec(ctx, `
			UPDATE trips
			SET end_at = $1, distance_km = $2, duration_sec = $3, fare = $4, status = $5
			WHERE id = $6
		`, end, distanceKm, durationSec, fare, models.TripStatusCompleted, tripID); err != nil {
			return fmt.Errorf("failed to complete trip: %w", err)
		}

		payment.TripID = tripID
		payment.Amount = fare
		payment.Status = models.PaymentStatusPending

		err = tx.QueryRow(ctx, `
			INSERT INTO payments (trip_id, amount, status)
			VALUES ($1, $2, $3)
			RETURNING id
		`, tripID, fare, models.PaymentStatusPending).Scan(&payment.ID)
		if err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return trip, payment, nil
}
