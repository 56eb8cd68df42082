package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type idempotencyResult struct {
	response []byte
	replayed bool
}

// GetOrInsertIdempotency replays the stored response for key if one exists;
// otherwise it runs produce, stores its response under key, and returns it.
// The second return value reports whether the response was replayed.
//
// In-process duplicates of the same key are collapsed by singleflight, so
// produce never runs concurrently for one key and no pool connection is held
// while it executes. Across processes the UNIQUE constraint on the key
// arbitrates: the first stored response wins and losers re-read it.
func (s *Store) GetOrInsertIdempotency(ctx context.Context, key string, produce func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	v, err, shared := s.keyed.Do(key, func() (interface{}, error) {
		var response []byte

		err := s.db.QueryRow(ctx, `SELECT response FROM idempotency_keys WHERE key = $1`, key).Scan(&response)
		if err == nil {
			return idempotencyResult{response: response, replayed: true}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to read idempotency key: %w", err)
		}

		response, err = produce(ctx)
		if err != nil {
			return nil, err
		}

		tag, err := s.db.Exec(ctx, `
			INSERT INTO idempotency_keys (key, response) VALUES ($1, $2)
			ON CONFLICT (key) DO NOTHING
		`, key, response)
		if err != nil {
			return nil, fmt.Errorf("failed to store idempotency key: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Another process stored a response first; its version is the
			// one every duplicate must see.
			var stored []byte
			if err := s.db.QueryRow(ctx, `SELECT response FROM idempotency_keys WHERE key = $1`, key).Scan(&stored); err != nil {
				return nil, fmt.Errorf("failed to read idempotency key after conflict: %w", err)
			}
			return idempotencyResult{response: stored, replayed: true}, nil
		}

		return idempotencyResult{response: response, replayed: false}, nil
	})
	if err != nil {
		return nil, false, err
	}

	r := v.(idempotencyResult)
	return r.response, r.replayed || shared, nil
}
