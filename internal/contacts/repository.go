package contacts

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("contacts: not found")

// Store abstracts contact persistence. The Postgres implementation uses
// single-row updates only; the memory implementation backs tests.
type Store interface {
	// Upsert inserts the contact or refreshes an existing row with the same
	// phone, keyed on the unique phone column.
	Upsert(ctx context.Context, c Contact) error
	GetByPhone(ctx context.Context, phone string) (Contact, error)
	// SetStatus applies the call outcome to the contact.
	SetStatus(ctx context.Context, phone string, status Status) error
	// RecordAttempt mirrors queue attempt bookkeeping onto the contact row.
	RecordAttempt(ctx context.Context, phone string, attempts int, at time.Time) error
}

// PGStore is the Postgres-backed contact store.
//
// Assumes table:
//   contacts(id, first_name, last_name, phone UNIQUE, email, company,
//            status, priority, attempts, last_attempt_at, created_at, updated_at)
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Upsert(ctx context.Context, c Contact) error {
	const q = `
INSERT INTO contacts (
  id, first_name, last_name, phone, email, company, status, priority,
  attempts, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,now(),now())
ON CONFLICT (phone) DO UPDATE SET
  first_name = EXCLUDED.first_name,
  last_name  = EXCLUDED.last_name,
  email      = EXCLUDED.email,
  company    = EXCLUDED.company,
  status     = EXCLUDED.status,
  priority   = EXCLUDED.priority,
  updated_at = now()
`
	_, err := s.db.ExecContext(ctx, q,
		c.ID,
		c.FirstName,
		c.LastName,
		c.Phone,
		c.Email,
		c.Company,
		c.Status,
		c.Priority,
	)
	return err
}

func (s *PGStore) GetByPhone(ctx context.Context, phone string) (Contact, error) {
	const q = `
SELECT id, first_name, last_name, phone, email, company, status, priority,
       attempts, last_attempt_at, created_at, updated_at
FROM contacts
WHERE phone = $1
`
	var c Contact
	err := s.db.QueryRowContext(ctx, q, phone).Scan(
		&c.ID,
		&c.FirstName,
		&c.LastName,
		&c.Phone,
		&c.Email,
		&c.Company,
		&c.Status,
		&c.Priority,
		&c.Attempts,
		&c.LastAttemptAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	return c, nil
}

func (s *PGStore) SetStatus(ctx context.Context, phone string, status Status) error {
	const q = `
UPDATE contacts
SET status = $2, updated_at = now()
WHERE phone = $1
`
	res, err := s.db.ExecContext(ctx, q, phone, status)
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

func (s *PGStore) RecordAttempt(ctx context.Context, phone string, attempts int, at time.Time) error {
	const q = `
UPDATE contacts
SET attempts = $2, last_attempt_at = $3, updated_at = now()
WHERE phone = $1
`
	res, err := s.db.ExecContext(ctx, q, phone, attempts, at)
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
