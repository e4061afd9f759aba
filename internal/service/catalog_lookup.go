package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/noah-isme/event-reward-api/internal/models"
	appErrors "github.com/noah-isme/event-reward-api/pkg/errors"
)

type eventFinder interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
}

type rewardFinder interface {
	FindByID(ctx context.Context, id string) (*models.Reward, error)
}

// catalogLookup resolves events and rewards through the read-through cache. The bool
// results report a cache hit.
type catalogLookup struct {
	events  eventFinder
	rewards rewardFinder
	cache   *CacheService
	ttl     time.Duration
}

func (c *catalogLookup) event(ctx context.Context, id string) (*models.Event, bool, error) {
	return readThrough(ctx, c.cache, eventCacheKey(id), c.ttl, func(ctx context.Context) (*models.Event, error) {
		event, err := c.events.FindByID(ctx, id)
		return event, catalogError(err, "event")
	})
}

func (c *catalogLookup) reward(ctx context.Context, id string) (*models.Reward, bool, error) {
	return readThrough(ctx, c.cache, rewardCacheKey(id), c.ttl, func(ctx context.Context) (*models.Reward, error) {
		reward, err := c.rewards.FindByID(ctx, id)
		return reward, catalogError(err, "reward")
	})
}

func catalogError(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	default:
		return appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load "+entity)
	}
}
