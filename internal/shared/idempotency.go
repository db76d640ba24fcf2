package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MarkerStore persists effect markers so warehouse mutations stay idempotent
// when the retry loop re-invokes them.
type MarkerStore struct {
	pool *pgxpool.Pool
}

// NewMarkerStore constructs the store.
func NewMarkerStore(pool *pgxpool.Pool) *MarkerStore {
	return &MarkerStore{pool: pool}
}

// ErrAlreadyApplied indicates the effect was recorded by an earlier attempt.
var ErrAlreadyApplied = errors.New("effect already applied")

// Mark records an effect key for a subsystem. A duplicate key reports
// ErrAlreadyApplied instead of inserting twice.
func (s *MarkerStore) Mark(ctx context.Context, key, subsystem string) error {
	if s == nil {
		return errors.New("marker store not initialised")
	}
	if key == "" || subsystem == "" {
		return errors.New("marker key and subsystem required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO effect_markers (key, subsystem, created_at) VALUES ($1, $2, $3)`, key, subsystem, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyApplied
		}
		return err
	}
	return nil
}

// Release removes a key so the effect can legitimately run again, e.g. after
// its stock mutation has been reversed. It reports whether a marker existed.
func (s *MarkerStore) Release(ctx context.Context, key string) (bool, error) {
	if s == nil {
		return false, nil
	}
	if key == "" {
		return false, errors.New("marker key required")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM effect_markers WHERE key=$1`, key)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
