// Package notify publishes registration lifecycle events.
package notify

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/eventreg/internal/model"
)

const (
	SubjectRegistrationCreated   = "registrations.created"
	SubjectRegistrationCancelled = "registrations.cancelled"
)

// Publisher delivers lifecycle events to subscribers. Delivery is best
// effort; callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
	Close() error
}

// RegistrationEvent is the payload for both lifecycle subjects.
type RegistrationEvent struct {
	Registration model.Registration `json:"registration"`
	ActorID      string             `json:"actorId"`
	OccurredAt   time.Time          `json:"occurredAt"`
}

func NewRegistrationEvent(reg *model.Registration, actorID string, at time.Time) RegistrationEvent {
	return RegistrationEvent{
		Registration: *reg,
		ActorID:      actorID,
		OccurredAt:   at.UTC(),
	}
}

// NoopPublisher is used when NATS is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (NoopPublisher) Close() error { return nil }
