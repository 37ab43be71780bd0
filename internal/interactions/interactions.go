package interactions

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Interaction is the persisted record of one scripted step of a call:
// which step ran, what the counterpart said, and how it was classified.
// Rows are append-only; nothing ever updates them.
type Interaction struct {
	ID         string `json:"id" db:"id"`
	CallID     string `json:"call_id" db:"call_id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	Phone      string `json:"phone" db:"phone"`

	// Sequence is the 1-based position of the step within the call.
	Sequence int    `json:"sequence" db:"sequence"`
	Step     string `json:"step" db:"step"`

	Transcription string  `json:"transcription" db:"transcription"`
	Label         string  `json:"label" db:"label"`
	Confidence    float64 `json:"confidence" db:"confidence"`

	// ResponseLatency is the delay between end of prompt and end of capture.
	ResponseLatency time.Duration `json:"response_latency" db:"response_latency"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Store persists interactions. Append is the only mutation.
type Store interface {
	Append(ctx context.Context, in Interaction) error
	ListByCall(ctx context.Context, callID string) ([]Interaction, error)
}

type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Append(ctx context.Context, in Interaction) error {
	const q = `
INSERT INTO interactions (
  id, call_id, campaign_id, phone, sequence, step, transcription, label,
  confidence, response_latency_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
`
	_, err := s.db.ExecContext(ctx, q,
		in.ID, in.CallID, in.CampaignID, in.Phone,
		in.Sequence, in.Step, in.Transcription, in.Label,
		in.Confidence, in.ResponseLatency.Milliseconds(),
	)
	return err
}

func (s *PGStore) ListByCall(ctx context.Context, callID string) ([]Interaction, error) {
	const q = `
SELECT id, call_id, campaign_id, phone, sequence, step, transcription, label,
       confidence, response_latency_ms, created_at
FROM interactions
WHERE call_id = $1
ORDER BY sequence ASC
`
	rows, err := s.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		var latencyMS int64
		if err := rows.Scan(
			&in.ID, &in.CallID, &in.CampaignID, &in.Phone,
			&in.Sequence, &in.Step, &in.Transcription, &in.Label,
			&in.Confidence, &latencyMS, &in.CreatedAt,
		); err != nil {
			return nil, err
		}
		in.ResponseLatency = time.Duration(latencyMS) * time.Millisecond
		out = append(out, in)
	}
	return out, rows.Err()
}

// MemoryStore is the in-memory implementation for tests.
type MemoryStore struct {
	mu   sync.Mutex
	rows []Interaction
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(ctx context.Context, in Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in.CreatedAt = time.Now()
	s.rows = append(s.rows, in)
	return nil
}

func (s *MemoryStore) ListByCall(ctx context.Context, callID string) ([]Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Interaction
	for _, in := range s.rows {
		if in.CallID == callID {
			out = append(out, in)
		}
	}
	return out, nil
}
