package campaigns

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrNotFound        = errors.New("campaigns: not found")
	ErrInvalidArgument = errors.New("campaigns: invalid argument")
	ErrBadTransition   = errors.New("campaigns: invalid state transition")
)

// Store abstracts campaign persistence.
type Store interface {
	Create(ctx context.Context, c Campaign) error
	Get(ctx context.Context, id string) (Campaign, error)
	// Transition moves the campaign from one state to another. It is
	// conditional on the current state and returns ErrBadTransition when the
	// row is not in `from`.
	Transition(ctx context.Context, id string, from, to State) error
	// ApplyDelta increments aggregate counters. Callers gate this behind the
	// queue item's reconciled marker so a delta is applied at most once.
	ApplyDelta(ctx context.Context, id string, d Delta) error
	// AddTotal bumps total_calls when items are enqueued.
	AddTotal(ctx context.Context, id string, n int) error
}

// PGStore is the Postgres-backed campaign store.
//
// Assumes table:
//   campaigns(id, name, description, scenario, state, total_calls,
//             succeeded_calls, failed_calls, positive_count, negative_count,
//             started_at, completed_at, created_at, updated_at)
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Create(ctx context.Context, c Campaign) error {
	const q = `
INSERT INTO campaigns (
  id, name, description, scenario, state, total_calls, succeeded_calls,
  failed_calls, positive_count, negative_count, started_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
`
	_, err := s.db.ExecContext(ctx, q,
		c.ID,
		c.Name,
		c.Description,
		c.Scenario,
		c.State,
		c.TotalCalls,
		c.SucceededCalls,
		c.FailedCalls,
		c.PositiveCount,
		c.NegativeCount,
		c.StartedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id string) (Campaign, error) {
	const q = `
SELECT id, name, description, scenario, state, total_calls, succeeded_calls,
       failed_calls, positive_count, negative_count, started_at, completed_at,
       created_at, updated_at
FROM campaigns
WHERE id = $1
`
	var c Campaign
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.Scenario,
		&c.State,
		&c.TotalCalls,
		&c.SucceededCalls,
		&c.FailedCalls,
		&c.PositiveCount,
		&c.NegativeCount,
		&c.StartedAt,
		&c.CompletedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, err
	}
	return c, nil
}

func (s *PGStore) Transition(ctx context.Context, id string, from, to State) error {
	const q = `
UPDATE campaigns
SET state = $3,
    started_at   = CASE WHEN $3 = 'active' AND started_at IS NULL THEN now() ELSE started_at END,
    completed_at = CASE WHEN $3 = 'completed' THEN now() ELSE completed_at END,
    updated_at = now()
WHERE id = $1 AND state = $2
`
	res, err := s.db.ExecContext(ctx, q, id, from, to)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either missing or not in `from`; disambiguate for the caller.
		if _, getErr := s.Get(ctx, id); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrBadTransition
	}
	return nil
}

func (s *PGStore) ApplyDelta(ctx context.Context, id string, d Delta) error {
	const q = `
UPDATE campaigns
SET succeeded_calls = succeeded_calls + $2,
    failed_calls    = failed_calls    + $3,
    positive_count  = positive_count  + $4,
    negative_count  = negative_count  + $5,
    updated_at = now()
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q, id, b2i(d.Succeeded), b2i(d.Failed), b2i(d.Positive), b2i(d.Negative))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) AddTotal(ctx context.Context, id string, n int) error {
	const q = `
UPDATE campaigns
SET total_calls = total_calls + $2, updated_at = now()
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q, id, n)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
