package reporting

// Report aggregates one campaign's progress and outcome quality. All counts
// come from reconciled counters, so the rates lag live calls by at most one
// dispatcher pass.
type Report struct {
	CampaignID string `json:"campaign_id"`
	State      string `json:"state"`

	TotalCalls     int `json:"total_calls"`
	SucceededCalls int `json:"succeeded_calls"`
	FailedCalls    int `json:"failed_calls"`
	PositiveCount  int `json:"positive_count"`
	NegativeCount  int `json:"negative_count"`

	// ActiveCalls is live queue occupancy, not a counter.
	ActiveCalls int `json:"active_calls"`

	// Progress is resolved items over total enqueued, 0..1.
	Progress float64 `json:"progress"`
	// ConnectionRate is completed conversations over resolved items.
	ConnectionRate float64 `json:"connection_rate"`
	// ConversionRate is qualified leads over resolved items.
	ConversionRate float64 `json:"conversion_rate"`
}
