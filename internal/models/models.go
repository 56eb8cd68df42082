package models

import "time"

// RideStatus is the lifecycle state of a ride request.
type RideStatus string

const (
	RideStatusSearching RideStatus = "searching"
	RideStatusAssigned  RideStatus = "assigned"
	RideStatusNoDriver  RideStatus = "no_driver"
	RideStatusCancelled RideStatus = "cancelled"
)

// AssignmentStatus is the lifecycle state of a driver offer.
type AssignmentStatus string

const (
	AssignmentStatusOffered  AssignmentStatus = "offered"
	AssignmentStatusAccepted AssignmentStatus = "accepted"
	AssignmentStatusDeclined AssignmentStatus = "declined"
	AssignmentStatusExpired  AssignmentStatus = "expired"
)

// Terminal reports whether the assignment can no longer change state.
func (s AssignmentStatus) Terminal() bool {
	return s != AssignmentStatusOffered
}

// TripStatus is the lifecycle state of a trip.
type TripStatus string

const (
	TripStatusOngoing   TripStatus = "ongoing"
	TripStatusPaused    TripStatus = "paused"
	TripStatusCompleted TripStatus = "completed"
)

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Terminal reports whether the payment has reached a final state.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed
}

// Location is a point in decimal degrees.
type Location struct {
	Lat float64 `json:"lat" binding:"min=-90,max=90"`
	Lon float64 `json:"lon" binding:"min=-180,max=180"`
}

// Driver is a registered driver. Drivers are registered implicitly on their
// first location report and are never deleted.
type Driver struct {
	ID        int64   `json:"id"`
	Name      *string `json:"name,omitempty"`
	Available bool    `json:"available"`
}

// Ride is a rider's request for transportation.
type Ride struct {
	ID            int64      `json:"id"`
	RiderID       *int64     `json:"rider_id,omitempty"`
	Pickup        Location   `json:"pickup"`
	Destination   Location   `json:"destination"`
	Tier          string     `json:"tier,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	Status        RideStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Assignment is a time-bounded offer of a specific ride to a specific driver.
type Assignment struct {
	ID        int64            `json:"id"`
	RideID    int64            `json:"ride_id"`
	DriverID  int64            `json:"driver_id"`
	Status    AssignmentStatus `json:"status"`
	OfferedAt time.Time        `json:"offered_at"`
}

// Trip tracks an accepted ride from pickup to completion.
type Trip struct {
	ID          int64      `json:"id"`
	RideID      int64      `json:"ride_id"`
	DriverID    int64      `json:"driver_id"`
	StartAt     time.Time  `json:"start_at"`
	EndAt       *time.Time `json:"end_at,omitempty"`
	DistanceKm  float64    `json:"distance_km"`
	DurationSec int        `json:"duration_sec"`
	Fare        float64    `json:"fare"`
	Status      TripStatus `json:"status"`
}

// Payment settles the fare of a completed trip.
type Payment struct {
	ID               int64         `json:"id"`
	TripID           int64         `json:"trip_id"`
	Amount           float64       `json:"amount"`
	Status           PaymentStatus `json:"status"`
	ProviderResponse []byte        `json:"provider_response,omitempty"`
}
