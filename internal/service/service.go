package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/eventreg/internal/audit"
	"github.com/Shivanand-hulikatti/eventreg/internal/auth"
	"github.com/Shivanand-hulikatti/eventreg/internal/model"
	"github.com/Shivanand-hulikatti/eventreg/internal/repository"
)

const maxCapacity = 100_000

// EventService orchestrates event management. Active counts come from the
// ledger so both storage backends report them the same way.
type EventService struct {
	events repository.EventStore
	ledger repository.Ledger
	audit  *audit.Logger
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(events repository.EventStore, ledger repository.Ledger, auditLog *audit.Logger) *EventService {
	if auditLog == nil {
		auditLog = audit.Nop()
	}
	return &EventService{events: events, ledger: ledger, audit: auditLog}
}

// CreateEvent validates the request and delegates to the store. Admin only.
func (s *EventService) CreateEvent(ctx context.Context, id *model.Identity, req model.CreateEventRequest) (*model.Event, error) {
	if err := auth.Authorize(id, auth.ActionManageEvents, ""); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: event name is required", model.ErrInvalidInput)
	}
	if req.Capacity != nil {
		if *req.Capacity <= 0 {
			return nil, fmt.Errorf("%w: capacity must be a positive integer", model.ErrInvalidInput)
		}
		if *req.Capacity > maxCapacity {
			return nil, fmt.Errorf("%w: capacity cannot exceed 100,000", model.ErrInvalidInput)
		}
	}

	event, err := s.events.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.audit.Log(audit.Entry{
		Action:       audit.ActionEventCreate,
		ActorID:      id.UserID,
		ActorRole:    string(id.Role),
		ResourceType: "event",
		ResourceID:   event.ID,
		Status:       audit.StatusSuccess,
	})
	return event, nil
}

// ListEvents returns all events with their active registration counts.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := s.events.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		return []model.Event{}, nil
	}

	ids := make([]string, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	counts, err := s.ledger.ActiveCounts(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}
	for i := range events {
		events[i].ActiveCount = counts[events[i].ID]
	}
	return events, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: event id is required", model.ErrInvalidInput)
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.ledger.ActiveCounts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}
	event.ActiveCount = counts[id]
	return event, nil
}
