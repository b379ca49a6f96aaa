package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/internal/product"
	"github.com/fekuna/qurban-engine/pkg/cache"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"go.uber.org/zap"
)

const catalogKeyPrefix = "qurban:catalog:"

// JSONCache is satisfied by *cache.RedisClient.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedCatalog serves by-product lists from Redis and falls through to next
// on a miss. Cache failures degrade to uncached reads.
type CachedCatalog struct {
	next   product.Catalog
	cache  JSONCache
	ttl    time.Duration
	logger logger.ZapLogger
}

var (
	_ product.Catalog            = (*CachedCatalog)(nil)
	_ product.CatalogInvalidator = (*CachedCatalog)(nil)
)

func NewCachedCatalog(next product.Catalog, c JSONCache, ttl time.Duration, log logger.ZapLogger) *CachedCatalog {
	return &CachedCatalog{next: next, cache: c, ttl: ttl, logger: log}
}

func (c *CachedCatalog) ListByAnimalType(ctx context.Context, animalTypeID string) ([]model.ByProductType, error) {
	key := catalogKeyPrefix + animalTypeID

	var cached []model.ByProductType
	err := c.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		c.logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
	}

	items, err := c.next.ListByAnimalType(ctx, animalTypeID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.ByProductType{}
	}
	if err := c.cache.SetJSON(ctx, key, items, c.ttl); err != nil {
		c.logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
	return items, nil
}

func (c *CachedCatalog) Invalidate(ctx context.Context, animalTypeID string) error {
	return c.cache.Delete(ctx, catalogKeyPrefix+animalTypeID)
}
