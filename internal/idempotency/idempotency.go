// Package idempotency deduplicates side-effecting requests by a
// client-supplied key. The first writer for a key wins; everyone else gets
// the stored response verbatim. The uniqueness constraint on the key column
// is what makes the race of two same-key requests safe across server
// instances: exactly one claim succeeds, so exactly one underlying
// operation executes.
package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CachedResponse is the verbatim stored response for a key.
type CachedResponse struct {
	StatusCode int
	Body       []byte
}

// staleClaimAge bounds how long an unfulfilled claim blocks its key. A
// process that crashes between claim and complete never settles the row;
// after this age the claim is treated as abandoned and may be taken over.
const staleClaimAge = 5 * time.Minute

// Store persists idempotent request outcomes in PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new idempotency store
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Claim reserves the key for the calling request. It returns
// (true, nil, nil) when this request won the key and must execute the
// operation, (false, cached, nil) when a previous request completed, and
// (false, nil, nil) when the winning request is still in flight. A claim
// left unsettled for longer than staleClaimAge counts as won rather than
// in flight.
func (s *Store) Claim(ctx context.Context, key string) (bool, *CachedResponse, error) {
	query := `
		INSERT INTO idempotent_requests (id, idempotency_key, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query, uuid.NewString(), key, time.Now())
	if err != nil {
		return false, nil, fmt.Errorf("failed to claim idempotency key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return true, nil, nil
	}

	cached, err := s.Lookup(ctx, key)
	if err != nil {
		return false, nil, err
	}
	if cached != nil {
		return false, cached, nil
	}

	// The winner is still in flight, or it died without settling. Take
	// over claims old enough to be abandoned so a crashed process cannot
	// block its key forever.
	reclaim := `
		UPDATE idempotent_requests
		SET id = $2, created_at = $3
		WHERE idempotency_key = $1 AND response_data IS NULL AND created_at < $4
	`

	reclaimed, err := s.db.ExecContext(ctx, reclaim,
		key, uuid.NewString(), time.Now(), time.Now().Add(-staleClaimAge))
	if err != nil {
		return false, nil, fmt.Errorf("failed to reclaim idempotency key: %w", err)
	}
	rows, err := reclaimed.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return true, nil, nil
	}

	return false, nil, nil
}

// Lookup returns the stored response for a key, or nil if the key is
// unknown or its request has not completed yet.
func (s *Store) Lookup(ctx context.Context, key string) (*CachedResponse, error) {
	query := `
		SELECT status_code, response_data
		FROM idempotent_requests
		WHERE idempotency_key = $1 AND response_data IS NOT NULL
	`

	var row struct {
		StatusCode int    `db:"status_code"`
		Body       []byte `db:"response_data"`
	}
	err := s.db.GetContext(ctx, &row, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}

	return &CachedResponse{StatusCode: row.StatusCode, Body: row.Body}, nil
}

// Complete stores the response computed for a claimed key. Writing is
// once-only in practice: the claim protocol guarantees a single completer.
func (s *Store) Complete(ctx context.Context, key string, statusCode int, body []byte) error {
	query := `
		UPDATE idempotent_requests
		SET status_code = $2, response_data = $3
		WHERE idempotency_key = $1 AND response_data IS NULL
	`

	if _, err := s.db.ExecContext(ctx, query, key, statusCode, body); err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}

	return nil
}

// Release frees an unfulfilled claim so the client may retry after its
// request failed. Completed keys are never released.
func (s *Store) Release(ctx context.Context, key string) error {
	query := `
		DELETE FROM idempotent_requests
		WHERE idempotency_key = $1 AND response_data IS NULL
	`

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}

	return nil
}
