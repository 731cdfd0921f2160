// Read-through Redis cache for the active rule list. Rules change rarely and
// every allocation reads them, so a short TTL takes the rule store off the
// hot path without making operator edits invisible for long.
package rules

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fleetbook/internal/logging"
)

const activeRulesKey = "rules:active"

// Lister is the slice of the store the cache sits in front of.
type Lister interface {
	ListActive(ctx context.Context) ([]Rule, error)
}

// CachedLister serves ListActive from Redis, falling back to the underlying
// store on miss or cache error. Cache failures are logged, never surfaced:
// the store remains the source of truth.
type CachedLister struct {
	inner Lister
	redis *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCachedLister(inner Lister, client *redis.Client, ttl time.Duration) *CachedLister {
	return &CachedLister{
		inner: inner,
		redis: client,
		ttl:   ttl,
		log:   logging.New("rules.cache"),
	}
}

func (c *CachedLister) ListActive(ctx context.Context) ([]Rule, error) {
	if cached, ok := c.get(ctx); ok {
		return cached, nil
	}

	list, err := c.inner.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, list)
	return list, nil
}

// Invalidate drops the cached list. Called by operator tooling after rule edits.
func (c *CachedLister) Invalidate(ctx context.Context) {
	if err := c.redis.Del(ctx, activeRulesKey).Err(); err != nil {
		c.log.Warn().Err(err).Msg("rule cache invalidate failed")
	}
}

func (c *CachedLister) get(ctx context.Context) ([]Rule, bool) {
	raw, err := c.redis.Get(ctx, activeRulesKey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("rule cache read failed")
		return nil, false
	}
	var list []Rule
	if err := json.Unmarshal(raw, &list); err != nil {
		c.log.Warn().Err(err).Msg("rule cache payload corrupt, ignoring")
		return nil, false
	}
	return list, true
}

func (c *CachedLister) set(ctx context.Context, list []Rule) {
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, activeRulesKey, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("rule cache write failed")
	}
}
