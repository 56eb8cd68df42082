package models

import "time"

// CreateRideRequest is the body of POST /v1/rides. Pickup and destination are
// pointers so presence is checked by nil, not by the zero value; a literal
// (0, 0) coordinate is a valid point.
type CreateRideRequest struct {
	RiderID       *int64    `json:"rider_id,omitempty" binding:"omitempty,min=1"`
	Pickup        *Location `json:"pickup" binding:"required"`
	Destination   *Location `json:"destination" binding:"required"`
	Tier          string    `json:"tier,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty"`
}

// RideOut is the response of POST /v1/rides. It is the payload cached under
// an idempotency key, so repeated creates replay it byte-for-byte.
type RideOut struct {
	ID          int64      `json:"id"`
	Status      RideStatus `json:"status"`
	Pickup      Location   `json:"pickup"`
	Destination Location   `json:"destination"`
}

// AssignmentOut is the assignment summary embedded in GET /v1/rides/{id}.
type AssignmentOut struct {
	ID       int64            `json:"id"`
	DriverID int64            `json:"driver_id"`
	Status   AssignmentStatus `json:"status"`
}

// RideDetail is the response of GET /v1/rides/{id}.
type RideDetail struct {
	ID          int64          `json:"id"`
	Status      RideStatus     `json:"status"`
	Pickup      Location       `json:"pickup"`
	Destination Location       `json:"destination"`
	Assignment  *AssignmentOut `json:"assignment,omitempty"`
}

// LocationReport is the body of POST /v1/drivers/{id}/location.
type LocationReport struct {
	Lat float64 `json:"lat" binding:"min=-90,max=90"`
	Lon float64 `json:"lon" binding:"min=-180,max=180"`
}

// AcceptRequest is the body of POST /v1/drivers/{id}/accept.
type AcceptRequest struct {
	AssignmentID int64 `json:"assignment_id" binding:"required,min=1"`
}

// DeclineRequest is the body of POST /v1/drivers/{id}/decline.
type DeclineRequest struct {
	AssignmentID int64 `json:"assignment_id" binding:"required,min=1"`
}

// EndTripRequest is the body of POST /v1/trips/{id}/end.
type EndTripRequest struct {
	EndLat *float64 `json:"end_lat,omitempty" binding:"omitempty,min=-90,max=90"`
	EndLon *float64 `json:"end_lon,omitempty" binding:"omitempty,min=-180,max=180"`
}

// PaymentRequest is the body of POST /v1/payments.
type PaymentRequest struct {
	TripID int64  `json:"trip_id" binding:"required,min=1"`
	Method string `json:"method,omitempty"`
}

// Receipt is the response of POST /v1/payments.
type Receipt struct {
	PaymentID     int64         `json:"payment_id"`
	TripID        int64         `json:"trip_id"`
	RiderID       *int64        `json:"rider_id,omitempty"`
	DriverID      int64         `json:"driver_id"`
	Amount        float64       `json:"amount"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	Status        PaymentStatus `json:"status"`
	DistanceKm    float64       `json:"distance_km"`
	DurationSec   int           `json:"duration_sec"`
	Pickup        Location      `json:"pickup"`
	Destination   Location      `json:"destination"`
	Timestamp     time.Time     `json:"timestamp"`
}
