// Package dedup decides whether an event has already been processed.
//
// The gate is advisory: it short-circuits obvious duplicates cheaply, but
// multiple consumers may still race on the same event ID. Final correctness
// rests on the storage boundary's idempotent upsert, never on this check.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/disaster-mail-ingest/internal/domain"
	"github.com/redis/go-redis/v9"
)

// EventFinder is the slice of the storage boundary the gate consults.
type EventFinder interface {
	FindByID(ctx context.Context, id string) (*domain.Event, error)
}

// Gate answers "has this event ID been processed?" using an optional Redis
// front cache and the persisted store.
type Gate struct {
	store  EventFinder
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a dedup gate. A nil cache disables the Redis layer; every
// check then falls through to the store lookup.
func New(store EventFinder, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Gate {
	return &Gate{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func cacheKey(id string) string {
	return "dedup:" + id
}

// Seen reports whether the event ID has already been stored. Cache failures
// degrade to the store lookup; store failures surface as errors because the
// caller cannot safely decide either way without an answer.
func (g *Gate) Seen(ctx context.Context, id string) (bool, error) {
	if g.cache != nil {
		n, err := g.cache.Exists(ctx, cacheKey(id)).Result()
		if err != nil {
			g.logger.Warn("dedup cache lookup failed", "event_id", id, "error", err)
		} else if n > 0 {
			return true, nil
		}
	}

	event, err := g.store.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	return event != nil, nil
}

// Mark records a successfully stored event ID in the cache. Called only
// after the upsert succeeds, so a failed attempt never poisons the gate for
// its own retry. Best effort: a cache write failure is logged and ignored.
func (g *Gate) Mark(ctx context.Context, id string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, cacheKey(id), 1, g.ttl).Err(); err != nil {
		g.logger.Warn("dedup cache mark failed", "event_id", id, "error", err)
	}
}
