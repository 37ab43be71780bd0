package audit

import "time"

// Event is an immutable, append-only record of an operator action.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor and ip capture are best-effort; never block control flows on audit
//   failures.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the record.
	Type EventType `json:"type" db:"type"`

	// OperatorID is the authenticated operator causing the event.
	OperatorID string `json:"operator_id,omitempty" db:"operator_id"`
	Role       string `json:"role,omitempty" db:"role"`

	// IPAddress should capture the original client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCampaignControl EventType = "campaign_control"
	EventTypeContactImport   EventType = "contact_import"
	EventTypeTokenIssued     EventType = "token_issued"
)
