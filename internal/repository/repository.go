// Package repository implements the registration ledger and the event
// directory adapters. Postgres access uses pgx directly (no ORM).
package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/eventreg/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Directory answers existence, capacity and cutoff questions about events.
// Unknown ids yield model.ErrEventNotFound.
type Directory interface {
	Lookup(ctx context.Context, eventID string) (*model.Event, error)
}

// EventStore is a Directory that also owns event records.
type EventStore interface {
	Directory
	Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// Ledger is the sole authority over registration records.
//
// Create and Cancel for the same event are linearized. Listing operations take
// no exclusive lock and may miss writes that are still in flight.
type Ledger interface {
	Create(ctx context.Context, userID, eventID string) (*model.Registration, error)
	Cancel(ctx context.Context, userID, eventID string) (*model.Registration, error)
	ListAll(ctx context.Context, filter model.RegistrationFilter) ([]model.Registration, error)
	ListForUser(ctx context.Context, userID string) ([]model.Registration, error)
	// ActiveCounts returns active registrations per event. With no ids it
	// covers every event that has at least one.
	ActiveCounts(ctx context.Context, eventIDs ...string) (map[string]int, error)
}

// LedgerOptions bounds the external calls a ledger makes.
type LedgerOptions struct {
	// LookupTimeout bounds the Directory lookup done before locking.
	LookupTimeout time.Duration
	// StoreTimeout bounds each storage transaction.
	StoreTimeout time.Duration
	Now          func() time.Time
}

func (o LedgerOptions) withDefaults() LedgerOptions {
	if o.Now == nil {
		// Postgres keeps microseconds; truncating keeps values round-trippable.
		o.Now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	return o
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// lookupOpenEvent resolves an event and rejects it once registration closed.
func lookupOpenEvent(ctx context.Context, dir Directory, opts LedgerOptions, eventID string) (*model.Event, error) {
	lookupCtx, cancel := withTimeout(ctx, opts.LookupTimeout)
	defer cancel()

	event, err := dir.Lookup(lookupCtx, eventID)
	if err != nil {
		return nil, classify("lookup event", err)
	}
	if !event.IsOpen(opts.Now()) {
		return nil, model.ErrRegistrationClosed
	}
	return event, nil
}

func newRegistration(userID, eventID string, now time.Time) *model.Registration {
	return &model.Registration{
		ID:        uuid.New().String(),
		UserID:    userID,
		EventID:   eventID,
		Status:    model.StatusActive,
		CreatedAt: now,
	}
}

const activePairIndex = "registrations_active_pair_idx"

// classify wraps err with op and tags infrastructure failures as transient.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case model.IsBusiness(err), model.IsTransient(err):
		return fmt.Errorf("%s: %w", op, err)
	case isUniqueViolation(err, activePairIndex):
		return fmt.Errorf("%s: %w", op, model.ErrAlreadyRegistered)
	case isTransient(err):
		return fmt.Errorf("%s: %w: %w", op, model.ErrTransient, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01": // serialization failure, deadlock
			return true
		case pgErr.Code == "53300": // too many connections
			return true
		case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03": // shutdown
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return pgconn.SafeToRetry(err)
}
