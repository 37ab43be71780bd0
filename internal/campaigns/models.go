package campaigns

import "time"

// Campaign is a named batch of outbound calls with aggregate counters.
//
// Counter invariant: counters are only moved by conditional single-row
// increments applied when a queue item is reconciled. Never read-modify-write
// counters in memory; multiple session controllers resolve concurrently.
type Campaign struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`
	Scenario    string `json:"scenario" db:"scenario"`

	State State `json:"state" db:"state"`

	TotalCalls     int `json:"total_calls" db:"total_calls"`
	SucceededCalls int `json:"succeeded_calls" db:"succeeded_calls"`
	FailedCalls    int `json:"failed_calls" db:"failed_calls"`
	PositiveCount  int `json:"positive_count" db:"positive_count"`
	NegativeCount  int `json:"negative_count" db:"negative_count"`

	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
)

// Delta is one reconciliation's contribution to campaign counters.
// Succeeded/Failed are mutually exclusive; Positive/Negative may both be zero.
type Delta struct {
	Succeeded bool
	Failed    bool
	Positive  bool
	Negative  bool
}
