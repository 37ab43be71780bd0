package queue

import "time"

// Item is one dialable unit of work inside a campaign.
//
// Lifecycle: pending -> calling -> completed | failed, with calling -> pending
// on a retryable failure while attempts < max_attempts. Every transition is a
// conditional single-row update keyed on the current status, so a crashed or
// duplicated dispatcher cannot double-launch an item.
type Item struct {
	ID         string `json:"id" db:"id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	Phone      string `json:"phone" db:"phone"`
	Scenario   string `json:"scenario" db:"scenario"`

	Status      Status `json:"status" db:"status"`
	Attempts    int    `json:"attempts" db:"attempts"`
	MaxAttempts int    `json:"max_attempts" db:"max_attempts"`
	Priority    int    `json:"priority" db:"priority"`

	// CallID is the telephony channel identifier of the attempt currently
	// in flight, empty when not calling.
	CallID string `json:"call_id,omitempty" db:"call_id"`

	// Qualified and FinalLabel record the call's result on completion; the
	// reconciliation step folds them into campaign counters.
	Qualified  bool   `json:"qualified" db:"qualified"`
	FinalLabel string `json:"final_label,omitempty" db:"final_label"`

	// Reconciled marks that this item's terminal outcome has been folded
	// into its campaign's counters. Set exactly once.
	Reconciled   bool   `json:"reconciled" db:"reconciled"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCalling   Status = "calling"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
