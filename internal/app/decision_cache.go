package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openctemio/authz/internal/infra/redis"
	"github.com/openctemio/authz/internal/metrics"
	"github.com/openctemio/authz/pkg/domain/accesscontrol"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/logger"
)

const decisionCachePrefix = "authz:dec"

// CachedDecision is the cached outcome of one single-scope check.
type CachedDecision struct {
	Allowed bool                 `json:"allowed"`
	Source  accesscontrol.Source `json:"source,omitempty"`
}

// DecisionCache caches resolver outcomes in Redis.
//
// Key format: authz:dec:{user}:{org|-}:{type}:{gv}.{uv}
//
// gv is the global catalog version and uv the user's grant version.
// Mutations bump a version after they commit, which moves every later
// lookup to a fresh key. Concurrent misses on the same key share one
// database read.
type DecisionCache struct {
	cache    *redis.Cache[CachedDecision]
	versions *redis.VersionStore
	group    singleflight.Group
	logger   *logger.Logger
}

// NewDecisionCache creates a decision cache over a Redis client.
func NewDecisionCache(client *redis.Client, ttl time.Duration, log *logger.Logger) (*DecisionCache, error) {
	cache, err := redis.NewCache[CachedDecision](client, decisionCachePrefix, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}
	versions, err := redis.NewVersionStore(client, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create version store: %w", err)
	}
	return &DecisionCache{
		cache:    cache,
		versions: versions,
		logger:   log.With("service", "decision_cache"),
	}, nil
}

func decisionKey(userID shared.ID, organizationID *shared.ID, t permission.Type, gv, uv int64) string {
	org := "-"
	if organizationID != nil {
		org = organizationID.String()
	}
	return fmt.Sprintf("%s:%s:%s:%d.%d", userID.String(), org, t, gv, uv)
}

// Resolve returns the cached decision or computes it with load. Any
// Redis failure falls through to load.
func (c *DecisionCache) Resolve(
	ctx context.Context,
	userID shared.ID,
	organizationID *shared.ID,
	t permission.Type,
	load func(ctx context.Context) (CachedDecision, error),
) (CachedDecision, error) {
	gv, uv, err := c.versions.Versions(ctx, userID.String())
	if err != nil {
		metrics.RecordCache(metrics.CacheError)
		c.logger.Warn("decision versions unavailable, reading database", "error", err)
		return load(ctx)
	}

	key := decisionKey(userID, organizationID, t, gv, uv)
	cached, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		metrics.RecordCache(metrics.CacheHit)
		return *cached, nil
	case errors.Is(err, redis.ErrCacheMiss):
		metrics.RecordCache(metrics.CacheMiss)
	default:
		metrics.RecordCache(metrics.CacheError)
		c.logger.Warn("decision cache read failed, reading database", "error", err)
		return load(ctx)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		d, err := load(ctx)
		if err != nil {
			return CachedDecision{}, err
		}
		if err := c.cache.Set(ctx, key, d); err != nil {
			c.logger.Warn("failed to cache decision", "error", err)
		}
		return d, nil
	})
	if err != nil {
		return CachedDecision{}, err
	}
	return v.(CachedDecision), nil
}

// InvalidateUsers moves the given users to fresh decision keys. It is
// safe on a nil cache.
func (c *DecisionCache) InvalidateUsers(ctx context.Context, userIDs ...shared.ID) {
	if c == nil || len(userIDs) == 0 {
		return
	}
	ids := shared.IDStrings(shared.UniqueIDs(userIDs))
	err := c.versions.BumpUsers(ctx, ids...)
	if err == nil {
		return
	}
	c.logger.Error("failed to bump user decision versions", "user_count", len(ids), "error", err)
	for _, id := range ids {
		if err := c.versions.ResetUser(ctx, id); err != nil {
			c.logger.Error("failed to reset user decision version", "user_id", id, "error", err)
		}
	}
}

// InvalidateCatalog moves every user to fresh decision keys. It is safe
// on a nil cache.
func (c *DecisionCache) InvalidateCatalog(ctx context.Context) {
	if c == nil {
		return
	}
	err := c.versions.BumpGlobal(ctx)
	if err == nil {
		return
	}
	c.logger.Error("failed to bump global decision version", "error", err)
	if err := c.versions.ResetGlobal(ctx); err != nil {
		c.logger.Error("failed to reset global decision version", "error", err)
	}
}
