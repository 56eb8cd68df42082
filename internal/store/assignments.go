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

// assignmentForUpdate reads an assignment with a row lock, serializing every
// state transition on it for the duration of the transaction.
func assignmentForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Assignment, error) {
	query := `
		SELECT id, ride_id, driver_id, status, offered_at
		FROM assignments
		WHERE id = $1
		FOR UPDATE
	`

	a := &models.Assignment{}
	err := tx.QueryRow(ctx, query, id).Scan(&a.ID, &a.RideID, &a.DriverID, &a.Status, &a.OfferedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock assignment: %w", err)
	}

	return a, nil
}

// CreateOffer atomically inserts an assignment in Offered state and moves the
// ride to Assigned. Returns the new assignment ID.
func (s *Store) CreateOffer(ctx context.Context, rideID, driverID int64, now time.Time) (int64, error) {
	var assignmentID int64

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO assignments (ride_id, driver_id, status, offered_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, rideID, driverID, models.AssignmentStatusOffered, now.UTC()).Scan(&assignmentID)
		if err != nil {
			return fmt.Errorf("failed to insert assignment: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE rides SET status = $1 WHERE id = $2`,
			models.RideStatusAssigned, rideID); err != nil {
			return fmt.Errorf("failed to mark ride assigned: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return assignmentID, nil
}

// AcceptAssignment transitions an Offered assignment to Accepted and opens
// the trip, all in one transaction. Returns common.ErrCannotAccept when the
// assignment does not exist, belongs to another driver, or is already
// terminal (the offer expired or was declined first).
func (s *Store) AcceptAssignment(ctx context.Context, assignmentID, driverID int64, now time.Time) (*models.Trip, error) {
	trip := &models.Trip{}

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		a, err := assignmentForUpdate(ctx, tx, assignmentID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrCannotAccept
			}
			return err
		}

		if a.DriverID != driverID || a.Status != models.AssignmentStatusOffered {
			return common.ErrCannotAccept
		}

		if _, err := tx.Exec(ctx, `UPDATE assignments SET status = $1 WHERE id = $2`,
			models.AssignmentStatusAccepted, assignmentID); err != nil {
			return fmt.Errorf("failed to accept assignment: %w", err)
		}

		trip.RideID = a.RideID
		trip.DriverID = driverID
		trip.StartAt = now.UTC()
		trip.Status = models.TripStatusOngoing

		err = tx.QueryRow(ctx, `
			INSERT INTO trips (ride_id, driver_id, start_at, status)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, trip.RideID, trip.DriverID, trip.StartAt, trip.Status).Scan(&trip.ID)
		if err != nil {
			return fmt.Errorf("failed to open trip: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return trip, nil
}

// ExpireAssignment transitions an Offered assignment to Expired and frees the
// ride back to Searching. Idempotent: an already-terminal assignment is a
// no-op and returns false.
func (s *Store) ExpireAssignment(ctx context.Context, assignmentID int64) (bool, error) {
	expired := false

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		a, err := assignmentForUpdate(ctx, tx, assignmentID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil
			}
			return err
		}

		if a.Status != models.AssignmentStatusOffered {
			return nil
		}

		if _, err := tx.Exec(ctx, `UPDATE assignments SET status = $1 WHERE id = $2`,
			models.AssignmentStatusExpired, assignmentID); err != nil {
			return fmt.Errorf("failed to expire assignment: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE rides SET status = $1 WHERE id = $2`,
			models.RideStatusSearching, a.RideID); err != nil {
			return fmt.Errorf("failed to free ride: %w", err)
		}

		expired = true
		return nil
	})

	return expired, err
}

// DeclineAssignment transitions an Offered assignment to Declined by its
// owning driver and frees the ride back to Searching. Returns
// common.ErrCannotAccept for a missing assignment, a non-owner driver, or an
// already-terminal offer.
func (s *Store) DeclineAssignment(ctx context.Context, assignmentID, driverID int64) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		a, err := assignmentForUpdate(ctx, tx, assignmentID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrCannotAccept
			}
			return err
		}

		if a.DriverID != driverID || a.Status != models.AssignmentStatusOffered {
			return common.ErrCannotAccept
		}

		if _, err := tx.Exec(ctx, `UPDATE assignments SET status = $1 WHERE id = $2`,
			models.AssignmentStatusDeclined, assignmentID); err != nil {
			return fmt.Errorf("failed to decline assignment: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE rides SET status = $1 WHERE id = $2`,
			models.RideStatusSearching, a.RideID); err != nil {
			return fmt.Errorf("failed to free ride: %w", err)
		}

		return nil
	})
}

// GetAssignment retrieves an assignment by ID without locking it.
func (s *Store) GetAssignment(ctx context.Context, id int64) (*models.Assignment, error) {
	query := `
		SELECT id, ride_id, driver_id, status, offered_at
		FROM assignments
		WHERE id = $1
	`

	a := &models.Assignment{}
	err := s.db.QueryRow(ctx, query, id).Scan(&a.ID, &a.RideID, &a.DriverID, &a.Status, &a.OfferedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	return a, nil
}
