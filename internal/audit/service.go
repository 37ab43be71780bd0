package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only. No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// Service logs operator actions. Callers should treat audit logging as
// best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogCampaignControl records a lifecycle action on a campaign.
func (s *Service) LogCampaignControl(ctx context.Context, operatorID, role, ip, campaignID, action string) error {
	return s.Append(ctx, Event{
		Type:       EventTypeCampaignControl,
		OperatorID: operatorID,
		Role:       role,
		IPAddress:  ip,
		CampaignID: campaignID,
		Message:    action,
	})
}

// LogContactImport records a batch enqueue into a campaign.
func (s *Service) LogContactImport(ctx context.Context, operatorID, role, ip, campaignID, metadata string) error {
	return s.Append(ctx, Event{
		Type:       EventTypeContactImport,
		OperatorID: operatorID,
		Role:       role,
		IPAddress:  ip,
		CampaignID: campaignID,
		Message:    "contacts enqueued",
		Metadata:   metadata,
	})
}
