// Package cache holds the Redis-backed seat availability cache.  The
// cache is purely an optimization for the read-heavy availability view;
// correctness always comes from the seat store, and every committed
// status transition invalidates the affected event's entry.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Availability caches the rendered seat map per event under seats:{id}.
// A nil *Availability or a nil Redis client disables caching; every
// method degrades to a miss or a no-op.
type Availability struct {
	logger *logrus.Logger
	rdb    *redis.Client
	ttl    time.Duration
}

// NewAvailability returns an availability cache with the given entry TTL.
// rdb may be nil when Redis is unavailable.
func NewAvailability(logger *logrus.Logger, rdb *redis.Client, ttl time.Duration) *Availability {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Availability{logger: logger, rdb: rdb, ttl: ttl}
}

func key(eventID uint64) string {
	return fmt.Sprintf("seats:%d", eventID)
}

// Get returns the cached seat map payload for an event, if present.
func (c *Availability) Get(ctx context.Context, eventID uint64) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	payload, err := c.rdb.Get(ctx, key(eventID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Debug("availability cache read failed")
		}
		return nil, false
	}
	return payload, true
}

// Set stores the rendered seat map payload for an event.  Failures are
// logged and ignored; the next reader simply misses.
func (c *Availability) Set(ctx context.Context, eventID uint64, payload []byte) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, key(eventID), payload, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Debug("availability cache write failed")
	}
}

// InvalidateEvent implements engine.AvailabilityCache by dropping the
// event's entry after a committed seat transition.
func (c *Availability) InvalidateEvent(ctx context.Context, eventID uint64) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, key(eventID)).Err()
}
