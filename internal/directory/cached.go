// Package directory layers caching over an event Directory.
package directory

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/eventreg/internal/metrics"
	"github.com/Shivanand-hulikatti/eventreg/internal/model"
	"github.com/Shivanand-hulikatti/eventreg/internal/repository"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const DefaultCleanupInterval = 5 * time.Minute

// Cached remembers successful lookups for a fixed TTL. Misses and errors are
// never cached, so a newly created event is visible immediately.
type Cached struct {
	next   repository.Directory
	cache  *gocache.Cache
	logger zerolog.Logger
}

// NewCached wraps next. A non-positive ttl disables caching and returns next.
func NewCached(next repository.Directory, ttl time.Duration, logger zerolog.Logger) repository.Directory {
	if ttl <= 0 {
		return next
	}
	return &Cached{
		next:   next,
		cache:  gocache.New(ttl, DefaultCleanupInterval),
		logger: logger.With().Str("component", "directory_cache").Logger(),
	}
}

func (c *Cached) Lookup(ctx context.Context, eventID string) (*model.Event, error) {
	if v, found := c.cache.Get(eventID); found {
		if event, ok := v.(model.Event); ok {
			metrics.DirectoryLookupsTotal.WithLabelValues("hit").Inc()
			return copyEvent(event), nil
		}
		c.logger.Error().Str("event_id", eventID).Msg("wrong type in directory cache")
		c.cache.Delete(eventID)
	}

	metrics.DirectoryLookupsTotal.WithLabelValues("miss").Inc()
	event, err := c.next.Lookup(ctx, eventID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(eventID, *copyEvent(*event), gocache.DefaultExpiration)
	return event, nil
}

func copyEvent(e model.Event) *model.Event {
	if e.Capacity != nil {
		v := *e.Capacity
		e.Capacity = &v
	}
	if e.RegistrationClosesAt != nil {
		v := *e.RegistrationClosesAt
		e.RegistrationClosesAt = &v
	}
	return &e
}
