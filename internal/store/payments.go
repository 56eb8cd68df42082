package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/goride/dispatch/internal/models"
	"github.com/goride/dispatch/pkg/common"
)

// GetPayment retrieves a payment by ID.
func (s *Store) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	query := `
		SELECT id, trip_id, amount, status, provider_response
		FROM payments
		WHERE id = $1
	`

	p := &models.Payment{}
	err := s.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.TripID, &p.Amount, &p.Status, &p.ProviderResponse)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return p, nil
}

// GetLatestPaymentByTrip returns the most recent payment for a trip, or nil
// when the trip has no payment yet.
func (s *Store) GetLatestPaymentByTrip(ctx context.Context, tripID int64) (*models.Payment, error) {
	query := `
		SELECT id, trip_id, amount, status, provider_response
		FROM payments
		WHERE trip_id = $1
		ORDER BY id DESC
		LIMIT 1
	`

	p := &models.Payment{}
	err := s.db.QueryRow(ctx, query, tripID).Scan(&p.ID, &p.TripID, &p.Amount, &p.Status, &p.ProviderResponse)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment for trip: %w", err)
	}

	return p, nil
}

// SettlePayment moves a pending payment to a terminal state with the provider
// response. Settlement is at-least-once, so the update is guarded: a payment
// already in a terminal state is left untouched and false is returned.
func (s *Store) SettlePayment(ctx context.Context, paymentID int64, status models.PaymentStatus, providerResponse []byte) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payments
		SET status = $1, provider_response = $2
		WHERE id = $3 AND status = $4
	`, status, providerResponse, paymentID, models.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to settle payment: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// GetReceipt assembles the receipt for a trip's payment by joining the
// payment with its trip and ride.
func (s *Store) GetReceipt(ctx context.Context, tripID int64) (*models.Receipt, error) {
	query := `
		SELECT p.id, p.trip_id, r.rider_id, t.driver_id, p.amount, r.payment_method,
		       p.status, t.distance_km, t.duration_sec,
		       r.pickup_lat, r.pickup_lon, r.destination_lat, r.destination_lon,
		       COALESCE(t.end_at, t.start_at)
		FROM payments p
		JOIN trips t ON t.id = p.trip_id
		JOIN rides r ON r.id = t.ride_id
		WHERE p.trip_id = $1
		ORDER BY p.id DESC
		LIMIT 1
	`

	rec := &models.Receipt{}
	err := s.db.QueryRow(ctx, query, tripID).Scan(
		&rec.PaymentID, &rec.TripID, &rec.RiderID, &rec.DriverID, &rec.Amount, &rec.PaymentMethod,
		&rec.Status, &rec.DistanceKm, &rec.DurationSec,
		&rec.Pickup.Lat, &rec.Pickup.Lon, &rec.Destination.Lat, &rec.Destination.Lon,
		&rec.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to build receipt: %w", err)
	}

	return rec, nil
}
