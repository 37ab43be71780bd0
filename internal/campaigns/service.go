package campaigns

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Service owns campaign lifecycle operations.
//
// State machine: pending -> active <-> paused -> completed.
// Pausing stops new admissions only; the dispatcher never pre-empts sessions
// that are already on a call.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Scenario    string `json:"scenario"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Campaign, error) {
	if req.Name == "" || req.Scenario == "" {
		return Campaign{}, ErrInvalidArgument
	}
	c := Campaign{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Scenario:    req.Scenario,
		State:       StatePending,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return Campaign{}, err
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (Campaign, error) {
	if id == "" {
		return Campaign{}, ErrInvalidArgument
	}
	return s.store.Get(ctx, id)
}

// Launch activates a pending campaign. The caller is responsible for having
// enqueued its queue items first.
func (s *Service) Launch(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	return s.store.Transition(ctx, id, StatePending, StateActive)
}

func (s *Service) Pause(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	return s.store.Transition(ctx, id, StateActive, StatePaused)
}

func (s *Service) Resume(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	return s.store.Transition(ctx, id, StatePaused, StateActive)
}

// Stop completes a campaign from either active or paused.
func (s *Service) Stop(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	err := s.store.Transition(ctx, id, StateActive, StateCompleted)
	if errors.Is(err, ErrBadTransition) {
		return s.store.Transition(ctx, id, StatePaused, StateCompleted)
	}
	return err
}

// AddTotal bumps total_calls after a batch of items is enqueued.
func (s *Service) AddTotal(ctx context.Context, id string, n int) error {
	if id == "" || n <= 0 {
		return ErrInvalidArgument
	}
	return s.store.AddTotal(ctx, id, n)
}

// Admission maps a campaign state to what the dispatcher may do with its
// pending items: admit them, or terminally fail them because the campaign
// was stopped.
func Admission(state State) (admit bool, drop bool) {
	switch state {
	case StateActive:
		return true, false
	case StateCompleted:
		return false, true
	default:
		// pending or paused: leave items where they are.
		return false, false
	}
}

// AdmissionState reports whether the dispatcher may admit new items for the
// campaign, and whether pending items should instead be terminally failed.
func (s *Service) AdmissionState(ctx context.Context, id string) (admit bool, drop bool, err error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return false, false, err
	}
	admit, drop = Admission(c.State)
	return admit, drop, nil
}
