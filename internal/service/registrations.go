// Package service implements business logic, authorization, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/eventreg/internal/audit"
	"github.com/Shivanand-hulikatti/eventreg/internal/auth"
	"github.com/Shivanand-hulikatti/eventreg/internal/metrics"
	"github.com/Shivanand-hulikatti/eventreg/internal/model"
	"github.com/Shivanand-hulikatti/eventreg/internal/notify"
	"github.com/Shivanand-hulikatti/eventreg/internal/repository"
	"github.com/Shivanand-hulikatti/eventreg/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxPageLimit caps an explicit page size on administrative listings.
const MaxPageLimit = 1000

const (
	opRegister   = "register"
	opList       = "list_all"
	opListUser   = "list_user"
	opUnregister = "unregister"
)

// RegistrationService is the operations surface over the ledger.
type RegistrationService struct {
	ledger    repository.Ledger
	publisher notify.Publisher
	audit     *audit.Logger
	retry     RetryPolicy
	now       func() time.Time
	tracer    trace.Tracer
}

type Option func(*RegistrationService)

func WithPublisher(p notify.Publisher) Option {
	return func(s *RegistrationService) { s.publisher = p }
}

func WithAudit(l *audit.Logger) Option {
	return func(s *RegistrationService) { s.audit = l }
}

func WithRetry(p RetryPolicy) Option {
	return func(s *RegistrationService) { s.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *RegistrationService) { s.now = now }
}

// NewRegistrationService constructs a RegistrationService. Without options
// notifications and audit entries are discarded.
func NewRegistrationService(ledger repository.Ledger, opts ...Option) *RegistrationService {
	s := &RegistrationService{
		ledger:    ledger,
		publisher: notify.NoopPublisher{},
		audit:     audit.Nop(),
		retry:     DefaultRetryPolicy,
		now:       time.Now,
		tracer:    telemetry.Tracer("eventreg/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterUser books the caller onto eventID.
func (s *RegistrationService) RegisterUser(ctx context.Context, id *model.Identity, eventID string) (reg *model.Registration, err error) {
	ctx, finish := s.begin(ctx, opRegister, id, eventID)
	defer func() { finish(err) }()

	if err := auth.Authorize(id, auth.ActionRegister, ""); err != nil {
		return nil, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: eventId is required", model.ErrInvalidInput)
	}

	reg, err = withRetry(ctx, opRegister, s.retry, func(ctx context.Context) (*model.Registration, error) {
		return s.ledger.Create(ctx, id.UserID, eventID)
	})
	if err != nil {
		s.auditFailure(audit.ActionRegister, id, eventID, err)
		return nil, err
	}

	s.audit.Success(audit.ActionRegister, id.UserID, string(id.Role), reg.ID, reg.EventID)
	s.publish(ctx, notify.SubjectRegistrationCreated, reg, id)
	return reg, nil
}

// GetRegistrations lists every registration matching filter. A zero Limit
// returns all matches.
func (s *RegistrationService) GetRegistrations(ctx context.Context, id *model.Identity, filter model.RegistrationFilter) (regs []model.Registration, err error) {
	ctx, finish := s.begin(ctx, opList, id, filter.EventID)
	defer func() { finish(err) }()

	if err := auth.Authorize(id, auth.ActionListAll, ""); err != nil {
		return nil, err
	}
	filter, err = normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	return withRetry(ctx, opList, s.retry, func(ctx context.Context) ([]model.Registration, error) {
		return s.ledger.ListAll(ctx, filter)
	})
}

// GetUserRegistrations lists targetUserID's registrations, newest last.
// Callers may read their own; admins may read anyone's.
func (s *RegistrationService) GetUserRegistrations(ctx context.Context, id *model.Identity, targetUserID string) (regs []model.Registration, err error) {
	ctx, finish := s.begin(ctx, opListUser, id, "")
	defer func() { finish(err) }()

	targetUserID = strings.TrimSpace(targetUserID)
	if err := auth.Authorize(id, auth.ActionReadUser, targetUserID); err != nil {
		return nil, err
	}
	if targetUserID == "" {
		return nil, fmt.Errorf("%w: userId is required", model.ErrInvalidInput)
	}
	return withRetry(ctx, opListUser, s.retry, func(ctx context.Context) ([]model.Registration, error) {
		return s.ledger.ListForUser(ctx, targetUserID)
	})
}

// UnregisterEvent cancels the caller's active registration for eventID.
func (s *RegistrationService) UnregisterEvent(ctx context.Context, id *model.Identity, eventID string) (reg *model.Registration, err error) {
	ctx, finish := s.begin(ctx, opUnregister, id, eventID)
	defer func() { finish(err) }()

	if id == nil {
		return nil, model.ErrAuthRequired
	}
	if err := auth.Authorize(id, auth.ActionCancel, id.UserID); err != nil {
		return nil, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: eventId is required", model.ErrInvalidInput)
	}

	reg, err = withRetry(ctx, opUnregister, s.retry, func(ctx context.Context) (*model.Registration, error) {
		return s.ledger.Cancel(ctx, id.UserID, eventID)
	})
	if err != nil {
		s.auditFailure(audit.ActionCancel, id, eventID, err)
		return nil, err
	}

	s.audit.Success(audit.ActionCancel, id.UserID, string(id.Role), reg.ID, reg.EventID)
	s.publish(ctx, notify.SubjectRegistrationCancelled, reg, id)
	return reg, nil
}

func normalizeFilter(f model.RegistrationFilter) (model.RegistrationFilter, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return f, fmt.Errorf("%w: limit and offset must not be negative", model.ErrInvalidInput)
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	f.EventID = strings.TrimSpace(f.EventID)
	return f, nil
}

// begin opens a span and returns a closure that records the outcome in the
// span, the operation metrics and the request log.
func (s *RegistrationService) begin(ctx context.Context, op string, id *model.Identity, eventID string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "registration."+op)
	if eventID != "" {
		span.SetAttributes(attribute.String("event.id", eventID))
	}
	if id != nil {
		span.SetAttributes(attribute.String("user.id", id.UserID), attribute.String("user.role", string(id.Role)))
	}

	return ctx, func(err error) {
		code := model.CodeOf(err)
		metrics.RegistrationOperationsTotal.WithLabelValues(op, string(code)).Inc()
		metrics.RegistrationOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

		span.SetAttributes(attribute.String("result.code", string(code)))
		if err != nil && !model.IsBusiness(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			zerolog.Ctx(ctx).Error().Err(err).Str("operation", op).Str("event_id", eventID).Msg("registration operation failed")
		}
		span.End()
	}
}

func (s *RegistrationService) auditFailure(action string, id *model.Identity, eventID string, err error) {
	if !model.IsBusiness(err) {
		return
	}
	s.audit.Failure(action, id.UserID, string(id.Role), eventID, string(model.CodeOf(err)))
}

// publish is best effort and never fails the operation.
func (s *RegistrationService) publish(ctx context.Context, subject string, reg *model.Registration, id *model.Identity) {
	event := notify.NewRegistrationEvent(reg, id.UserID, s.now())
	if err := s.publisher.Publish(context.WithoutCancel(ctx), subject, event); err != nil {
		metrics.NotificationFailuresTotal.WithLabelValues(subject).Inc()
		zerolog.Ctx(ctx).Warn().Err(err).Str("subject", subject).Str("registration_id", reg.ID).Msg("lifecycle notification dropped")
	}
}
