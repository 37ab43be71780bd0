package queue

import (
	"context"
	"database/sql"
	"errors"

	"callwave/pkg/utils"
)

var (
	ErrNotFound     = errors.New("queue: item not found")
	ErrNotClaimable = errors.New("queue: item not claimable")
)

// Store abstracts queue persistence. All mutating operations are conditional
// on the item's current status and report whether they took effect, so callers
// can run them repeatedly without corrupting state.
type Store interface {
	Enqueue(ctx context.Context, it Item) error

	// EnqueueBatch inserts a set of items atomically: either every item in the
	// import becomes dialable or none do.
	EnqueueBatch(ctx context.Context, items []Item) error

	Get(ctx context.Context, id string) (Item, error)

	// NextPending returns up to limit pending items ordered by priority
	// descending then created_at ascending, skipping any phone that already
	// has a calling item in the same campaign.
	NextPending(ctx context.Context, limit int) ([]Item, error)

	// MarkCalling claims a pending item for an attempt: status -> calling,
	// attempts+1, call_id and last_attempt_at recorded. Returns
	// ErrNotClaimable when the item is not pending anymore.
	MarkCalling(ctx context.Context, id, callID string) error

	CountCalling(ctx context.Context, campaignID string) (int, error)

	// Complete finishes a calling item: the call ran to a scripted end.
	Complete(ctx context.Context, id string, qualified bool, finalLabel string) error

	// Fail finishes a calling attempt. A retryable failure with remaining
	// attempts goes back to pending; otherwise the item is terminally failed
	// with the message recorded.
	Fail(ctx context.Context, id, message string, retryable bool) error

	// ReclaimStuck moves calling items whose attempt started before cutoff
	// back to pending (or failed when attempts are exhausted) and returns
	// the affected items.
	ReclaimStuck(ctx context.Context, cutoff int64) ([]Item, error)

	// ListUnreconciled returns terminal items whose outcome has not yet been
	// folded into campaign counters.
	ListUnreconciled(ctx context.Context, limit int) ([]Item, error)

	// MarkReconciled sets the reconciled marker. It reports true exactly once
	// per item; a second call is a no-op returning false.
	MarkReconciled(ctx context.Context, id string) (bool, error)

	// FailPending terminally fails all pending items of a campaign. Used when
	// a campaign is stopped with work still queued.
	FailPending(ctx context.Context, campaignID, message string) (int, error)
}

// PGStore is the Postgres-backed queue.
//
// Assumes table:
//   queue_items(id, campaign_id, phone, scenario, status, attempts,
//               max_attempts, priority, call_id, qualified DEFAULT false,
//               final_label, reconciled, error_message, last_attempt_at,
//               created_at, updated_at)
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

const itemColumns = `
id, campaign_id, phone, scenario, status, attempts, max_attempts, priority,
COALESCE(call_id, ''), qualified, COALESCE(final_label, ''), reconciled,
COALESCE(error_message, ''), last_attempt_at, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (Item, error) {
	var it Item
	err := row.Scan(
		&it.ID,
		&it.CampaignID,
		&it.Phone,
		&it.Scenario,
		&it.Status,
		&it.Attempts,
		&it.MaxAttempts,
		&it.Priority,
		&it.CallID,
		&it.Qualified,
		&it.FinalLabel,
		&it.Reconciled,
		&it.ErrorMessage,
		&it.LastAttemptAt,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	return it, err
}

const enqueueSQL = `
INSERT INTO queue_items (
  id, campaign_id, phone, scenario, status, attempts, max_attempts, priority,
  reconciled, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false,now(),now())
`

func (s *PGStore) Enqueue(ctx context.Context, it Item) error {
	_, err := s.db.ExecContext(ctx, enqueueSQL,
		it.ID, it.CampaignID, it.Phone, it.Scenario,
		it.Status, it.Attempts, it.MaxAttempts, it.Priority,
	)
	return err
}

func (s *PGStore) EnqueueBatch(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, it := range items {
			_, err := tx.ExecContext(ctx, enqueueSQL,
				it.ID, it.CampaignID, it.Phone, it.Scenario,
				it.Status, it.Attempts, it.MaxAttempts, it.Priority,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PGStore) Get(ctx context.Context, id string) (Item, error) {
	q := `SELECT ` + itemColumns + ` FROM queue_items WHERE id = $1`
	it, err := scanItem(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

func (s *PGStore) NextPending(ctx context.Context, limit int) ([]Item, error) {
	q := `
SELECT ` + itemColumns + `
FROM queue_items q
WHERE q.status = 'pending'
  AND NOT EXISTS (
    SELECT 1 FROM queue_items c
    WHERE c.campaign_id = q.campaign_id
      AND c.phone = q.phone
      AND c.status = 'calling'
  )
ORDER BY q.priority DESC, q.created_at ASC
LIMIT $1
`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PGStore) MarkCalling(ctx context.Context, id, callID string) error {
	const q = `
UPDATE queue_items
SET status = 'calling',
    attempts = attempts + 1,
    call_id = $2,
    last_attempt_at = now(),
    updated_at = now()
WHERE id = $1 AND status = 'pending'
`
	res, err := s.db.ExecContext(ctx, q, id, callID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotClaimable
	}
	return nil
}

func (s *PGStore) CountCalling(ctx context.Context, campaignID string) (int, error) {
	var (
		n   int
		err error
	)
	if campaignID == "" {
		err = s.db.QueryRowContext(ctx,
			`SELECT count(*) FROM queue_items WHERE status = 'calling'`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT count(*) FROM queue_items WHERE status = 'calling' AND campaign_id = $1`,
			campaignID).Scan(&n)
	}
	return n, err
}

func (s *PGStore) Complete(ctx context.Context, id string, qualified bool, finalLabel string) error {
	const q = `
UPDATE queue_items
SET status = 'completed', qualified = $2, final_label = $3, call_id = NULL,
    updated_at = now()
WHERE id = $1 AND status = 'calling'
`
	res, err := s.db.ExecContext(ctx, q, id, qualified, finalLabel)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotClaimable
	}
	return nil
}

func (s *PGStore) Fail(ctx context.Context, id, message string, retryable bool) error {
	// Retryable failures return to pending while attempts remain; the same
	// statement terminally fails exhausted or non-retryable items.
	const q = `
UPDATE queue_items
SET status = CASE WHEN $3 AND attempts < max_attempts THEN 'pending' ELSE 'failed' END,
    error_message = $2,
    call_id = NULL,
    updated_at = now()
WHERE id = $1 AND status = 'calling'
`
	res, err := s.db.ExecContext(ctx, q, id, message, retryable)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotClaimable
	}
	return nil
}

func (s *PGStore) ReclaimStuck(ctx context.Context, cutoffSeconds int64) ([]Item, error) {
	q := `
UPDATE queue_items
SET status = CASE WHEN attempts < max_attempts THEN 'pending' ELSE 'failed' END,
    error_message = CASE WHEN attempts < max_attempts THEN error_message ELSE 'call attempt timed out' END,
    call_id = NULL,
    updated_at = now()
WHERE status = 'calling'
  AND last_attempt_at < now() - make_interval(secs => $1)
RETURNING ` + itemColumns + `
`
	rows, err := s.db.QueryContext(ctx, q, cutoffSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PGStore) ListUnreconciled(ctx context.Context, limit int) ([]Item, error) {
	q := `
SELECT ` + itemColumns + `
FROM queue_items
WHERE status IN ('completed', 'failed') AND reconciled = false
ORDER BY updated_at ASC
LIMIT $1
`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PGStore) MarkReconciled(ctx context.Context, id string) (bool, error) {
	const q = `
UPDATE queue_items
SET reconciled = true, updated_at = now()
WHERE id = $1 AND reconciled = false AND status IN ('completed', 'failed')
`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PGStore) FailPending(ctx context.Context, campaignID, message string) (int, error) {
	const q = `
UPDATE queue_items
SET status = 'failed', error_message = $2, updated_at = now()
WHERE campaign_id = $1 AND status = 'pending'
`
	res, err := s.db.ExecContext(ctx, q, campaignID, message)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
