package repository

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/eventreg/internal/model"
	"github.com/google/uuid"
)

// MemoryDirectory is a map-backed EventStore for tests and single-process runs.
type MemoryDirectory struct {
	mu     sync.RWMutex
	events map[string]model.Event
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{events: make(map[string]model.Event)}
}

// Add stores event as-is, replacing any event with the same ID.
func (d *MemoryDirectory) Add(event model.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events[event.ID] = cloneEvent(event)
}

func (d *MemoryDirectory) Create(_ context.Context, req model.CreateEventRequest) (*model.Event, error) {
	event := model.Event{
		ID:                   uuid.New().String(),
		Name:                 strings.TrimSpace(req.Name),
		Description:          req.Description,
		Capacity:             req.Capacity,
		RegistrationClosesAt: req.RegistrationClosesAt,
		CreatedAt:            time.Now().UTC(),
	}
	d.Add(event)
	out := cloneEvent(event)
	return &out, nil
}

func (d *MemoryDirectory) List(_ context.Context) ([]model.Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	events := make([]model.Event, 0, len(d.events))
	for _, e := range d.events {
		events = append(events, cloneEvent(e))
	}
	slices.SortFunc(events, func(a, b model.Event) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return events, nil
}

func (d *MemoryDirectory) GetByID(_ context.Context, id string) (*model.Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.events[id]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	out := cloneEvent(e)
	return &out, nil
}

func (d *MemoryDirectory) Lookup(ctx context.Context, eventID string) (*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.GetByID(ctx, eventID)
}

func cloneEvent(e model.Event) model.Event {
	if e.Capacity != nil {
		c := *e.Capacity
		e.Capacity = &c
	}
	if e.RegistrationClosesAt != nil {
		t := *e.RegistrationClosesAt
		e.RegistrationClosesAt = &t
	}
	return e
}

// MemoryLedger keeps registrations in process memory. Each event has its own
// mutex, so creates for one event are linearized while other events proceed.
// It is only correct when a single process owns the data.
type MemoryLedger struct {
	dir  Directory
	opts LedgerOptions

	mu     sync.RWMutex // guards the events map, not its buckets
	events map[string]*eventBucket
}

type eventBucket struct {
	mu     sync.Mutex
	rows   []*model.Registration
	active map[string]*model.Registration // by user ID
}

func NewMemoryLedger(dir Directory, opts LedgerOptions) *MemoryLedger {
	return &MemoryLedger{
		dir:    dir,
		opts:   opts.withDefaults(),
		events: make(map[string]*eventBucket),
	}
}

func (l *MemoryLedger) bucket(eventID string) *eventBucket {
	l.mu.RLock()
	b, ok := l.events[eventID]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.events[eventID]; ok {
		return b
	}
	b = &eventBucket{active: make(map[string]*model.Registration)}
	l.events[eventID] = b
	return b
}

func (l *MemoryLedger) Create(ctx context.Context, userID, eventID string) (*model.Registration, error) {
	event, err := lookupOpenEvent(ctx, l.dir, l.opts, eventID)
	if err != nil {
		return nil, err
	}

	b := l.bucket(eventID)
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, classify("create registration", err)
	}
	if _, ok := b.active[userID]; ok {
		return nil, model.ErrAlreadyRegistered
	}
	if !event.HasRoom(len(b.active)) {
		return nil, model.ErrEventFull
	}

	reg := newRegistration(userID, eventID, l.opts.Now())
	b.rows = append(b.rows, reg)
	b.active[userID] = reg
	out := *reg
	return &out, nil
}

func (l *MemoryLedger) Cancel(_ context.Context, userID, eventID string) (*model.Registration, error) {
	b := l.bucket(eventID)
	b.mu.Lock()
	defer b.mu.Unlock()

	reg, ok := b.active[userID]
	if !ok {
		return nil, model.ErrNotRegistered
	}
	now := l.opts.Now()
	reg.Status = model.StatusCancelled
	reg.CancelledAt = &now
	delete(b.active, userID)

	out := *reg
	return &out, nil
}

func (l *MemoryLedger) ListAll(_ context.Context, filter model.RegistrationFilter) ([]model.Registration, error) {
	regs := l.collect(filter.Matches)
	return paginate(regs, filter.Limit, filter.Offset), nil
}

func (l *MemoryLedger) ListForUser(_ context.Context, userID string) ([]model.Registration, error) {
	return l.collect(func(r *model.Registration) bool { return r.UserID == userID }), nil
}

func (l *MemoryLedger) ActiveCounts(_ context.Context, eventIDs ...string) (map[string]int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[string]int)
	count := func(id string, b *eventBucket) {
		b.mu.Lock()
		n := len(b.active)
		b.mu.Unlock()
		if n > 0 {
			counts[id] = n
		}
	}
	if len(eventIDs) == 0 {
		for id, b := range l.events {
			count(id, b)
		}
		return counts, nil
	}
	for _, id := range eventIDs {
		if b, ok := l.events[id]; ok {
			count(id, b)
		}
	}
	return counts, nil
}

// collect copies matching rows bucket by bucket. Each bucket is a consistent
// snapshot; the result as a whole is read-committed.
func (l *MemoryLedger) collect(keep func(*model.Registration) bool) []model.Registration {
	l.mu.RLock()
	buckets := make([]*eventBucket, 0, len(l.events))
	for _, b := range l.events {
		buckets = append(buckets, b)
	}
	l.mu.RUnlock()

	regs := []model.Registration{}
	for _, b := range buckets {
		b.mu.Lock()
		for _, r := range b.rows {
			if keep(r) {
				regs = append(regs, *r)
			}
		}
		b.mu.Unlock()
	}
	slices.SortFunc(regs, func(a, b model.Registration) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return regs
}

func paginate(regs []model.Registration, limit, offset int) []model.Registration {
	if offset > 0 {
		if offset >= len(regs) {
			return []model.Registration{}
		}
		regs = regs[offset:]
	}
	if limit > 0 && limit < len(regs) {
		regs = regs[:limit]
	}
	return regs
}
