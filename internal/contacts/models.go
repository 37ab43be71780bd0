package contacts

import "time"

// Contact is one callable person. Phone is the unique key.
//
// Status is mutated in exactly two places: by the session controller when a
// call concludes, and by the dispatcher when an item exhausts its attempts.
// Bulk import/export lives outside this process.
type Contact struct {
	ID        string `json:"id" db:"id"`
	FirstName string `json:"first_name,omitempty" db:"first_name"`
	LastName  string `json:"last_name,omitempty" db:"last_name"`
	Phone     string `json:"phone" db:"phone"`
	Email     string `json:"email,omitempty" db:"email"`
	Company   string `json:"company,omitempty" db:"company"`

	Status   Status `json:"status" db:"status"`
	Priority int    `json:"priority" db:"priority"`

	Attempts      int        `json:"attempts" db:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty" db:"last_attempt_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusNew           Status = "New"
	StatusQueued        Status = "Queued"
	StatusLeads         Status = "Leads"
	StatusNotInterested Status = "Not_interested"
	StatusNoAnswer      Status = "No_answer"
)

// Terminal reports whether the status ends the contact's participation in a
// campaign. No_answer is not terminal: such contacts stay eligible for retry.
func (s Status) Terminal() bool {
	return s == StatusLeads || s == StatusNotInterested
}
