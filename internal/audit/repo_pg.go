package audit

import (
	"context"
	"database/sql"
)

// PGRepo is the Postgres-backed audit repository.
//
// Assumes table:
//   audit_events(id, type, operator_id, role, ip_address, campaign_id,
//                message, metadata, created_at)
// The table should carry an INSERT-only policy.
type PGRepo struct {
	db *sql.DB
}

func NewPGRepo(db *sql.DB) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, operator_id, role, ip_address, campaign_id, message, metadata, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Type,
		e.OperatorID,
		e.Role,
		e.IPAddress,
		e.CampaignID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}
