// Package model defines the core domain types for the event registration system.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a registration.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// ParseStatus converts a query-string value into a Status.
// An empty string yields the zero Status (no filter).
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case StatusActive:
		return StatusActive, nil
	case StatusCancelled:
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
	}
}

// Role is the coarse authorization role carried by an Identity.
type Role string

const (
	RoleAttendee Role = "attendee"
	RoleAdmin    Role = "admin"
)

// Identity is the verified caller supplied by the authentication layer.
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// IsAdmin reports whether the identity carries the administrator role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// Event is the Directory's view of an event: existence, capacity and cutoff.
type Event struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// Capacity is nil for events without a seat limit.
	Capacity             *int       `json:"capacity"`
	RegistrationClosesAt *time.Time `json:"registrationClosesAt,omitempty"`
	ActiveCount          int        `json:"activeCount"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// HasRoom reports whether one more active registration fits.
func (e *Event) HasRoom(active int) bool {
	if e.Capacity == nil {
		return true
	}
	return active < *e.Capacity
}

// Remaining returns the number of available seats, or -1 when unbounded.
func (e *Event) Remaining() int {
	if e.Capacity == nil {
		return -1
	}
	if left := *e.Capacity - e.ActiveCount; left > 0 {
		return left
	}
	return 0
}

// IsOpen reports whether registration is still accepted at now.
func (e *Event) IsOpen(now time.Time) bool {
	return e.RegistrationClosesAt == nil || now.Before(*e.RegistrationClosesAt)
}

// Registration represents one user's binding to one event.
type Registration struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	EventID     string     `json:"eventId"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

// IsActive reports whether the registration currently holds a seat.
func (r *Registration) IsActive() bool {
	return r.Status == StatusActive
}

// RegistrationFilter narrows an administrative listing.
type RegistrationFilter struct {
	EventID string
	Status  Status
	Limit   int
	Offset  int
}

// Matches reports whether reg passes the EventID and Status filters.
func (f RegistrationFilter) Matches(reg *Registration) bool {
	if f.EventID != "" && reg.EventID != f.EventID {
		return false
	}
	if f.Status != "" && reg.Status != f.Status {
		return false
	}
	return true
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name                 string     `json:"name" validate:"required,max=200"`
	Description          string     `json:"description" validate:"max=5000"`
	Capacity             *int       `json:"capacity" validate:"omitempty,min=1,max=100000"`
	RegistrationClosesAt *time.Time `json:"registrationClosesAt"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	EventID string `json:"eventId" validate:"required,max=128"`
}
