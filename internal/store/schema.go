package store

import (
	"context"
	"fmt"
)

// Schema migrations are out of scope; the service ensures its tables exist at
// boot, matching how the original deployment ran.
const schema = `
CREATE TABLE IF NOT EXISTS drivers (
	id BIGINT PRIMARY KEY,
	name TEXT,
	available BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS rides (
	id BIGSERIAL PRIMARY KEY,
	rider_id BIGINT,
	pickup_lat DOUBLE PRECISION NOT NULL,
	pickup_lon DOUBLE PRECISION NOT NULL,
	destination_lat DOUBLE PRECISION NOT NULL,
	destination_lon DOUBLE PRECISION NOT NULL,
	tier TEXT NOT NULL DEFAULT '',
	payment_method TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'searching',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS assignments (
	id BIGSERIAL PRIMARY KEY,
	ride_id BIGINT NOT NULL REFERENCES rides(id),
	driver_id BIGINT NOT NULL,
	status TEXT NOT NULL DEFAULT 'offered',
	offered_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- At most one live offer per ride and per driver at any instant.
CREATE UNIQUE INDEX IF NOT EXISTS assignments_one_offer_per_ride
	ON assignments (ride_id) WHERE status = 'offered';
CREATE UNIQUE INDEX IF NOT EXISTS assignments_one_offer_per_driver
	ON assignments (driver_id) WHERE status = 'offered';

CREATE TABLE IF NOT EXISTS trips (
	id BIGSERIAL PRIMARY KEY,
	ride_id BIGINT NOT NULL REFERENCES rides(id),
	driver_id BIGINT NOT NULL,
	start_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	end_at TIMESTAMPTZ,
	distance_km DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_sec INTEGER NOT NULL DEFAULT 0,
	fare DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'ongoing'
);

CREATE TABLE IF NOT EXISTS payments (
	id BIGSERIAL PRIMARY KEY,
	trip_id BIGINT NOT NULL REFERENCES trips(id),
	amount DOUBLE PRECISION NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	provider_response JSONB
);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	id BIGSERIAL PRIMARY KEY,
	key TEXT NOT NULL UNIQUE,
	response JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the dispatch tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
