package reporting

import (
	"context"
	"errors"

	"callwave/internal/campaigns"
	"callwave/internal/queue"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Service derives campaign metrics from reconciled counters and live queue
// occupancy. It never writes.
type Service struct {
	campaigns campaigns.Store
	queue     queue.Store
}

func NewService(c campaigns.Store, q queue.Store) *Service {
	return &Service{campaigns: c, queue: q}
}

func (s *Service) CampaignReport(ctx context.Context, campaignID string) (Report, error) {
	if campaignID == "" {
		return Report{}, ErrInvalidRequest
	}

	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return Report{}, err
	}
	calling, err := s.queue.CountCalling(ctx, campaignID)
	if err != nil {
		return Report{}, err
	}

	out := Report{
		CampaignID:     c.ID,
		State:          string(c.State),
		TotalCalls:     c.TotalCalls,
		SucceededCalls: c.SucceededCalls,
		FailedCalls:    c.FailedCalls,
		PositiveCount:  c.PositiveCount,
		NegativeCount:  c.NegativeCount,
		ActiveCalls:    calling,
	}

	resolved := c.SucceededCalls + c.FailedCalls
	if c.TotalCalls > 0 {
		out.Progress = float64(resolved) / float64(c.TotalCalls)
	}
	if resolved > 0 {
		out.ConnectionRate = float64(c.SucceededCalls) / float64(resolved)
		out.ConversionRate = float64(c.PositiveCount) / float64(resolved)
	}
	return out, nil
}
