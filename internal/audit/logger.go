// Package audit records registration lifecycle decisions as structured log
// entries.
package audit

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	ActionRegister    = "registration.create"
	ActionCancel      = "registration.cancel"
	ActionEventCreate = "event.create"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

const resourceRegistration = "registration"

// Entry is a single audit record.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	ActorID      string    `json:"actor_id"`
	ActorRole    string    `json:"actor_role,omitempty"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	EventID      string    `json:"event_id,omitempty"`
	Status       string    `json:"status"`
	Code         string    `json:"code,omitempty"`
}

type Logger struct {
	output zerolog.Logger
	now    func() time.Time
}

func NewLogger(base zerolog.Logger) *Logger {
	return &Logger{
		output: base.With().Str("log_type", "audit").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Nop discards every entry.
func Nop() *Logger {
	return NewLogger(zerolog.Nop())
}

func (l *Logger) Log(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	l.output.Info().Interface("audit", entry).Msg(entry.Action)
}

// Success records a completed state transition on a registration.
func (l *Logger) Success(action, actorID, actorRole, registrationID, eventID string) {
	l.Log(Entry{
		Action:       action,
		ActorID:      actorID,
		ActorRole:    actorRole,
		ResourceType: resourceRegistration,
		ResourceID:   registrationID,
		EventID:      eventID,
		Status:       StatusSuccess,
	})
}

// Failure records a rejected transition with its machine code.
func (l *Logger) Failure(action, actorID, actorRole, eventID, code string) {
	l.Log(Entry{
		Action:       action,
		ActorID:      actorID,
		ActorRole:    actorRole,
		ResourceType: resourceRegistration,
		EventID:      eventID,
		Status:       StatusFailure,
		Code:         code,
	})
}
