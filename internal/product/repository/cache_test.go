package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/internal/product/repository"
	"github.com/fekuna/qurban-engine/pkg/cache"
	"github.com/fekuna/qurban-engine/pkg/logger"
)

type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	readErr error
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) GetJSON(_ context.Context, key string, dst any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return c.readErr
	}
	b, ok := c.data[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(b, dst)
}

func (c *mapCache) SetJSON(_ context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	c.ttls[key] = ttl
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func seedCatalog(t *testing.T) *repository.MemoryRepository {
	t.Helper()
	repo := repository.NewMemoryRepository()
	now := time.Now()
	for _, p := range []model.ByProductType{
		{BaseModel: model.BaseModel{ID: "p-meat", CreatedAt: now}, AnimalTypeID: "type-cow", Name: "meat pack", Kind: model.ProductMeat},
		{BaseModel: model.BaseModel{ID: "p-hide", CreatedAt: now}, AnimalTypeID: "type-cow", Name: "hide", Kind: model.ProductHide},
	} {
		require.NoError(t, repo.CreateProduct(context.Background(), &p))
	}
	return repo
}

func TestCachedCatalog_FillsAndServesFromCache(t *testing.T) {
	ctx := context.Background()
	repo := seedCatalog(t)
	c := newMapCache()
	catalog := repository.NewCachedCatalog(repo, c, 10*time.Minute, logger.NewNop())

	items, err := catalog.ListByAnimalType(ctx, "type-cow")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 10*time.Minute, c.ttls["qurban:catalog:type-cow"])

	// A product added behind the cache stays invisible until invalidation.
	require.NoError(t, repo.CreateProduct(ctx, &model.ByProductType{BaseModel: model.BaseModel{ID: "p-head"}, AnimalTypeID: "type-cow", Name: "head", Kind: model.ProductHead}))
	items, err = catalog.ListByAnimalType(ctx, "type-cow")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.NoError(t, catalog.Invalidate(ctx, "type-cow"))
	items, err = catalog.ListByAnimalType(ctx, "type-cow")
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestCachedCatalog_EmptyAndFailingCache(t *testing.T) {
	ctx := context.Background()
	c := newMapCache()
	catalog := repository.NewCachedCatalog(seedCatalog(t), c, time.Minute, logger.NewNop())

	items, err := catalog.ListByAnimalType(ctx, "type-goat")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	c.readErr = errors.New("connection refused")
	items, err = catalog.ListByAnimalType(ctx, "type-cow")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
